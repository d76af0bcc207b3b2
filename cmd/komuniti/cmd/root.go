package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dasmlab/komuniti/pkg/config"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "komuniti",
	Short: "Bilingual translation backend for the komuniti community app",
	Long: `komuniti serves cached English/Chinese machine translation for the
community events platform.

Commands:
  serve      - run the HTTP (and optional gRPC health) server
  translate  - translate texts from the command line`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", os.Getenv("KOMUNITI_CONFIG"), "config file (.toml or .yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}
