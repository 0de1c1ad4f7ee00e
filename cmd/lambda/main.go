package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/rs/zerolog/log"

	"github.com/shiimaxx/logs-insights-newrelic-metrics/internal/app"
	"github.com/shiimaxx/logs-insights-newrelic-metrics/internal/metrics"
	appConfig "github.com/shiimaxx/logs-insights-newrelic-metrics/pkg/config"
	"github.com/shiimaxx/logs-insights-newrelic-metrics/pkg/models"
)

type Handler struct {
	processor *metrics.Processor
}

func NewHandler(ctx context.Context) (*Handler, error) {
	cfg, err := appConfig.Load()
	if err != nil {
		return nil, err
	}
	app.ConfigureLogging(cfg, os.Stdout)

	clients, err := app.LoadClients(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Handler{processor: app.NewProcessor(cfg, clients)}, nil
}

// HandleInvocation runs one scheduled invocation. Failures are reported in
// the returned envelope so the scheduler never retries a partial run.
func (h *Handler) HandleInvocation(ctx context.Context, event models.InvocationEvent) (models.InvocationResult, error) {
	var requestID string
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		requestID = lc.AwsRequestID
	}

	logger := log.With().Str("request_id", requestID).Logger()
	ctx = logger.WithContext(ctx)

	return h.processor.HandleEvent(ctx, requestID, event), nil
}

func main() {
	handler, err := NewHandler(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create handler")
	}

	lambda.Start(handler.HandleInvocation)
}
