package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiimaxx/logs-insights-newrelic-metrics/pkg/models"
)

// QueryRunner submits a Logs Insights query and returns its id.
type QueryRunner interface {
	Start(ctx context.Context, logGroup, query string, window models.TimeWindow) (string, error)
}

// ResultCollector waits for a query and publishes its rows.
type ResultCollector interface {
	Collect(ctx context.Context, queryID, metricName string) ([]json.RawMessage, error)
}

type StatsPublisher interface {
	Publish(ctx context.Context, result models.InvocationResult, at time.Time) error
}

// CacheResetter is implemented by caches that must not outlive an invocation.
type CacheResetter interface {
	Reset()
}

type ResultArchiver interface {
	Store(ctx context.Context, invocationID string, window models.TimeWindow, result models.InvocationResult) (string, error)
}

// Processor runs every requested metric of an invocation in order.
type Processor struct {
	runner    QueryRunner
	collector ResultCollector
	stats     StatsPublisher
	archiver  ResultArchiver
	caches    []CacheResetter
	failFast  bool
	now       func() time.Time
}

type Option func(*Processor)

// WithFailFast stops at the first failed metric. Metrics processed before the
// failure stay in the result.
func WithFailFast(failFast bool) Option {
	return func(p *Processor) { p.failFast = failFast }
}

func WithStats(stats StatsPublisher) Option {
	return func(p *Processor) { p.stats = stats }
}

func WithArchiver(archiver ResultArchiver) Option {
	return func(p *Processor) { p.archiver = archiver }
}

// WithInvocationCache registers a cache that is reset at the start of every
// invocation, so values such as rotated secrets are re-read.
func WithInvocationCache(cache CacheResetter) Option {
	return func(p *Processor) { p.caches = append(p.caches, cache) }
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func NewProcessor(runner QueryRunner, collector ResultCollector, opts ...Option) *Processor {
	p := &Processor{
		runner:    runner,
		collector: collector,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleEvent queries and publishes every metric in event over the previous
// full hour. Errors are reported in the returned envelope, never returned.
func (p *Processor) HandleEvent(ctx context.Context, invocationID string, event models.InvocationEvent) models.InvocationResult {
	logger := zerolog.Ctx(ctx)

	if err := event.Validate(); err != nil {
		logger.Error().Err(err).Msg("Rejecting invocation event")
		return models.BadRequest(err)
	}

	for _, c := range p.caches {
		c.Reset()
	}

	now := p.now()
	window := models.PreviousHour(now)
	logger.Info().
		Int("metrics", len(event.QueryMetricList)).
		Time("window_start", window.Start).
		Time("window_end", window.End).
		Msg("Starting function execution")

	result := models.InvocationResult{
		PerMetricResults: make([]models.MetricResult, 0, len(event.QueryMetricList)),
	}

	for _, req := range event.QueryMetricList {
		metricResult := p.processMetric(ctx, req, window)
		result.PerMetricResults = append(result.PerMetricResults, metricResult)

		if p.failFast && metricResult.StatusCode != http.StatusOK {
			logger.Warn().Str("metric_name", req.MetricName).Msg("Fail fast enabled, skipping remaining metrics")
			break
		}
	}
	result.Finalize()

	p.report(ctx, invocationID, window, result, now)

	logger.Info().Int("overall_status", result.OverallStatus).Msg("Finished function execution")
	return result
}

func (p *Processor) processMetric(ctx context.Context, req models.MetricQueryRequest, window models.TimeWindow) models.MetricResult {
	logger := zerolog.Ctx(ctx).With().Str("metric_name", req.MetricName).Logger()

	queryID, err := p.runner.Start(ctx, req.LogGroupName, req.Query, window)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start CloudWatch query")
		return models.FailedMetric(req.MetricName, err)
	}

	results, err := p.collector.Collect(ctx, queryID, req.MetricName)
	if err != nil {
		logger.Error().Err(err).Str("query_id", queryID).Msg("Failed to retrieve query results")
		return models.FailedMetric(req.MetricName, err)
	}

	failed := 0
	for _, r := range results {
		if r == nil {
			failed++
		}
	}
	return models.SucceededMetric(req.MetricName, results, failed)
}

// report sends run statistics and archives the envelope. Failures are logged only.
func (p *Processor) report(ctx context.Context, invocationID string, window models.TimeWindow, result models.InvocationResult, at time.Time) {
	logger := zerolog.Ctx(ctx)

	if p.stats != nil {
		if err := p.stats.Publish(ctx, result, at); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish run statistics")
		}
	}

	if p.archiver != nil {
		key, err := p.archiver.Store(ctx, invocationID, window, result)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to archive invocation result")
			return
		}
		logger.Debug().Str("key", key).Msg("Archived invocation result")
	}
}
