package cmd

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dasmlab/komuniti/pkg/app"
	"github.com/dasmlab/komuniti/pkg/service"
)

var (
	targetLang string
	force      bool
)

var translateCmd = &cobra.Command{
	Use:   "translate [texts...]",
	Short: "Translate texts through the cache and translator",
	Long: `Translate each argument, or each line of stdin when no arguments are
given, and print one translation per line in input order.`,
	Example: `  komuniti translate --to zh "Tampines Mall" "Bus stop 12345"
  cat titles.txt | komuniti translate --to en`,
	RunE: func(cmd *cobra.Command, args []string) error {
		texts := args
		if len(texts) == 0 {
			var err error
			texts, err = readLines(cmd.InOrStdin())
			if err != nil {
				printError("failed to read stdin", err)
				return err
			}
		}

		req := service.TranslateRequest{Texts: texts, TargetLang: targetLang, ForceTranslate: force}
		if err := req.Validate(); err != nil {
			printError("invalid input", err)
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			printError("failed to load config", err)
			return err
		}
		if logLevel == "" {
			cfg.Log.Level = "warn"
		}

		logger := app.NewLogger(cfg.Log)
		a, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			printError("failed to initialise", err)
			return err
		}
		defer a.Close()

		translations := a.Service.TranslateTexts(cmd.Context(), req.Texts, req.TargetLang, req.ForceTranslate)
		return writeLines(cmd.OutOrStdout(), translations)
	},
}

func init() {
	translateCmd.Flags().StringVar(&targetLang, "to", "zh", "target language: en or zh")
	translateCmd.Flags().BoolVar(&force, "force", false, "translate even when the text is already in the target language")
	rootCmd.AddCommand(translateCmd)
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func writeLines(w io.Writer, lines []string) error {
	bw := bufio.NewWriter(w)
	for _, line := range lines {
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

