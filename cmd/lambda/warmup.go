package main

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	lambdasdk "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/sirupsen/logrus"
)

const (
	// WarmupSource identifies scheduled warmup events.
	WarmupSource = "warmup"

	// WarmupDelay keeps this instance busy long enough for the self-invocations to land elsewhere.
	WarmupDelay = 75 * time.Millisecond

	// maxWarmupConcurrency bounds self-invocations per event.
	maxWarmupConcurrency = 20
)

// WarmupEvent is the scheduled payload that keeps instances warm.
type WarmupEvent struct {
	Source      string `json:"source"`
	Concurrency int    `json:"concurrency"`
}

// WarmupResponse reports how many instances were touched.
type WarmupResponse struct {
	Status          string `json:"status"`
	InstancesWarmed int    `json:"instancesWarmed"`
}

// IsWarmupEvent reports whether event is a warmup ping.
func IsWarmupEvent(event json.RawMessage) (*WarmupEvent, bool) {
	var probe struct {
		Source      string   `json:"source"`
		Concurrency *float64 `json:"concurrency"`
	}
	if err := json.Unmarshal(event, &probe); err != nil || probe.Source != WarmupSource {
		return nil, false
	}

	warmup := &WarmupEvent{Source: probe.Source}
	if probe.Concurrency != nil && *probe.Concurrency > 0 {
		warmup.Concurrency = int(*probe.Concurrency)
	}
	if warmup.Concurrency > maxWarmupConcurrency {
		warmup.Concurrency = maxWarmupConcurrency
	}
	return warmup, true
}

// HandleWarmup answers a warmup event and fans out to Concurrency more instances.
func HandleWarmup(ctx context.Context, warmup *WarmupEvent, logger *logrus.Logger) (*WarmupResponse, error) {
	instancesWarmed := 1

	if warmup.Concurrency > 0 {
		if err := selfInvoke(ctx, warmup.Concurrency); err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"concurrency": warmup.Concurrency,
			}).Warn("Warmup self-invocation failed")
		} else {
			instancesWarmed += warmup.Concurrency
		}
	}

	time.Sleep(WarmupDelay)

	return &WarmupResponse{Status: "warm", InstancesWarmed: instancesWarmed}, nil
}

// selfInvoke asynchronously invokes this function count times.
func selfInvoke(ctx context.Context, count int) error {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return err
	}

	client := lambdasdk.NewFromConfig(cfg)
	functionName := os.Getenv("AWS_LAMBDA_FUNCTION_NAME")

	// Children get concurrency 0 so they do not fan out again.
	payload, err := json.Marshal(WarmupEvent{Source: WarmupSource})
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	var invokeErr error
	var errMu sync.Mutex

	for i := 0; i < count; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := client.Invoke(ctx, &lambdasdk.InvokeInput{
				FunctionName:   aws.String(functionName),
				InvocationType: types.InvocationTypeEvent,
				Payload:        payload,
			})
			if err != nil {
				errMu.Lock()
				if invokeErr == nil {
					invokeErr = err
				}
				errMu.Unlock()
			}
		}()
	}

	wg.Wait()
	return invokeErr
}
