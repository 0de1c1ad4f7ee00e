package app

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shiimaxx/logs-insights-newrelic-metrics/internal/archive"
	"github.com/shiimaxx/logs-insights-newrelic-metrics/internal/insights"
	"github.com/shiimaxx/logs-insights-newrelic-metrics/internal/metrics"
	"github.com/shiimaxx/logs-insights-newrelic-metrics/internal/newrelic"
	"github.com/shiimaxx/logs-insights-newrelic-metrics/internal/publisher"
	"github.com/shiimaxx/logs-insights-newrelic-metrics/internal/secrets"
	"github.com/shiimaxx/logs-insights-newrelic-metrics/pkg/config"
)

// Clients groups the AWS API clients a Processor needs.
type Clients struct {
	Logs       insights.LogsAPI
	Secrets    secrets.SecretsManagerAPI
	CloudWatch publisher.CloudWatchAPI
	S3         archive.S3API
}

// ConfigureLogging sets up the global zerolog logger from cfg and writes to w.
func ConfigureLogging(cfg *config.Config, w io.Writer) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.Debug {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

// LoadClients builds AWS clients for the configured region.
func LoadClients(ctx context.Context, cfg *config.Config) (Clients, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return Clients{}, fmt.Errorf("load AWS config: %w", err)
	}
	return NewClients(awsCfg), nil
}

func NewClients(awsCfg aws.Config) Clients {
	return Clients{
		Logs:       cloudwatchlogs.NewFromConfig(awsCfg),
		Secrets:    secretsmanager.NewFromConfig(awsCfg),
		CloudWatch: cloudwatch.NewFromConfig(awsCfg),
		S3:         s3.NewFromConfig(awsCfg),
	}
}

// NewProcessor wires the query, publish and reporting components described by cfg.
func NewProcessor(cfg *config.Config, clients Clients) *metrics.Processor {
	resolver := secrets.NewResolver(clients.Secrets)
	nr := newrelic.NewPublisher(
		resolver,
		cfg.NewRelic.SecretName,
		newrelic.WithEndpoint(cfg.NewRelic.Endpoint),
		newrelic.WithHTTPClient(&http.Client{Timeout: cfg.NewRelic.HTTPTimeout}),
		newrelic.WithDryRun(cfg.DryRun),
	)

	poller := insights.NewPoller(
		clients.Logs,
		nr,
		insights.WithInterval(cfg.Poll.Interval),
		insights.WithMaxWait(cfg.Poll.MaxWait),
		insights.WithLocation(cfg.Location),
	)

	opts := []metrics.Option{
		metrics.WithFailFast(cfg.FailFast),
		metrics.WithInvocationCache(resolver),
	}
	if cfg.Stats.Namespace != "" {
		opts = append(opts, metrics.WithStats(publisher.NewStatsPublisher(clients.CloudWatch, cfg.Stats.Namespace)))
	}
	if cfg.Archive.Bucket != "" {
		opts = append(opts, metrics.WithArchiver(archive.NewArchiver(clients.S3, cfg.Archive.Bucket, cfg.Archive.Prefix)))
	}

	return metrics.NewProcessor(insights.NewRunner(clients.Logs), poller, opts...)
}
