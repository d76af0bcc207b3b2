// Package main is the entry point for the translation Lambda function.
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"github.com/dasmlab/komuniti/pkg/app"
	"github.com/dasmlab/komuniti/pkg/config"
	"github.com/dasmlab/komuniti/pkg/handler"
	"github.com/dasmlab/komuniti/pkg/service"
)

func main() {
	cfg, err := config.Load(os.Getenv("KOMUNITI_CONFIG"))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	cfg.Log.Format = "json"
	logger := app.NewLogger(cfg.Log)

	// Built once per container and reused across invocations.
	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise application")
	}
	defer a.Close()

	h := handler.New(a.Service, logger)
	lambda.Start(func(ctx context.Context, event json.RawMessage) (interface{}, error) {
		return handleRequest(ctx, h, logger, event)
	})
}

func handleRequest(ctx context.Context, h *handler.Handler, logger *logrus.Logger, event json.RawMessage) (interface{}, error) {
	// Warmup detection comes before any other processing.
	if warmup, ok := IsWarmupEvent(event); ok {
		return HandleWarmup(ctx, warmup, logger)
	}

	var req service.TranslateRequest
	if err := json.Unmarshal(event, &req); err != nil {
		return &handler.Response{Error: "Invalid request body: texts must be an array of strings"}, nil
	}

	return h.Handle(ctx, req)
}
