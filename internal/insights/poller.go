package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"

	"github.com/shiimaxx/logs-insights-newrelic-metrics/internal/newrelic"
	"github.com/shiimaxx/logs-insights-newrelic-metrics/pkg/models"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollMaxWait  = 10 * time.Minute

	// DefaultDeadlineMargin is kept free before the invocation deadline so
	// the result can still be returned after a poll gives up.
	DefaultDeadlineMargin = 5 * time.Second

	stopQueryTimeout = 5 * time.Second
)

var (
	// ErrQueryNotComplete is returned when a query ends in a terminal status other than Complete.
	ErrQueryNotComplete = errors.New("query did not complete successfully")
	// ErrPollTimeout is returned when a query is still running after the maximum wait.
	ErrPollTimeout = errors.New("query still running after maximum wait")

	errQueryPending = errors.New("query pending")
)

// Publisher sends a single data point and returns the API response body.
type Publisher interface {
	Publish(ctx context.Context, metricName string, timestampMillis, value int64) (json.RawMessage, error)
}

// Poller waits for Logs Insights queries to finish and publishes every result row.
type Poller struct {
	client    LogsAPI
	publisher Publisher
	interval  time.Duration
	maxWait   time.Duration
	margin    time.Duration
	location  *time.Location
}

type PollerOption func(*Poller)

func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

func WithMaxWait(d time.Duration) PollerOption {
	return func(p *Poller) { p.maxWait = d }
}

// WithDeadlineMargin sets how long before the context deadline polling stops.
func WithDeadlineMargin(d time.Duration) PollerOption {
	return func(p *Poller) { p.margin = d }
}

// WithLocation sets the zone eventTimestamp values are interpreted in.
func WithLocation(loc *time.Location) PollerOption {
	return func(p *Poller) { p.location = loc }
}

func NewPoller(client LogsAPI, publisher Publisher, opts ...PollerOption) *Poller {
	p := &Poller{
		client:    client,
		publisher: publisher,
		interval:  DefaultPollInterval,
		maxWait:   DefaultPollMaxWait,
		margin:    DefaultDeadlineMargin,
		location:  time.UTC,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Collect waits for queryID to finish and publishes one data point per row.
// A query that matched nothing yields an empty, non-nil slice. A row whose
// publish failed is recorded as a nil entry; any other problem fails the
// whole metric.
func (p *Poller) Collect(ctx context.Context, queryID, metricName string) ([]json.RawMessage, error) {
	logger := zerolog.Ctx(ctx).With().Str("query_id", queryID).Str("metric_name", metricName).Logger()
	ctx = logger.WithContext(ctx)

	res, err := p.wait(ctx, queryID)
	if err != nil {
		logger.Error().Err(err).Msg("Error getting query results")
		return nil, err
	}

	results := make([]json.RawMessage, 0, len(res.Results))
	for i, fields := range res.Results {
		row := flattenRow(fields)

		timestamp, err := row.EventTimestamp(p.location)
		if err != nil {
			logger.Error().Err(err).Int("row", i).Msg("Invalid query result row")
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		value, err := row.MetricValue()
		if err != nil {
			logger.Error().Err(err).Int("row", i).Msg("Invalid query result row")
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		resp, err := p.publisher.Publish(ctx, metricName, timestamp, value)
		if err != nil {
			if errors.Is(err, newrelic.ErrCredentials) {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			logger.Warn().Err(err).Int("row", i).Msg("Dropping data point after failed publish")
			results = append(results, nil)
			continue
		}
		results = append(results, resp)
	}

	logger.Info().Int("rows", len(res.Results)).Msg("Query results published")
	return results, nil
}

// wait polls GetQueryResults on a fixed interval until the query reaches a
// terminal status or the poll budget elapses. A query abandoned for any
// reason, cancellation included, is stopped.
func (p *Poller) wait(ctx context.Context, queryID string) (*cloudwatchlogs.GetQueryResultsOutput, error) {
	logger := zerolog.Ctx(ctx)

	budget := p.budget(ctx)
	pollCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var complete *cloudwatchlogs.GetQueryResultsOutput
	operation := func() error {
		res, err := p.client.GetQueryResults(pollCtx, &cloudwatchlogs.GetQueryResultsInput{
			QueryId: aws.String(queryID),
		})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("get query results: %w", err))
		}

		logger.Debug().Str("status", string(res.Status)).Int("rows", len(res.Results)).Msg("Query status")

		switch res.Status {
		case types.QueryStatusComplete:
			complete = res
			return nil
		case types.QueryStatusFailed, types.QueryStatusCancelled, types.QueryStatusTimeout, types.QueryStatusUnknown:
			return backoff.Permanent(fmt.Errorf("%w: status %s", ErrQueryNotComplete, res.Status))
		default:
			return errQueryPending
		}
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.NewConstantBackOff(p.interval), pollCtx))
	if err == nil {
		return complete, nil
	}

	if pollCtx.Err() == nil {
		return nil, err
	}

	p.stop(ctx, queryID)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("%w (%s)", ErrPollTimeout, budget)
}

// budget is maxWait, shortened so polling ends margin before the ctx deadline.
func (p *Poller) budget(ctx context.Context) time.Duration {
	budget := p.maxWait
	if deadline, ok := ctx.Deadline(); ok {
		budget = min(budget, time.Until(deadline)-p.margin)
	}
	return budget
}

// stop cancels a query that is no longer awaited. It runs detached from ctx
// so a cancelled invocation still releases the query.
func (p *Poller) stop(ctx context.Context, queryID string) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopQueryTimeout)
	defer cancel()

	if _, err := p.client.StopQuery(stopCtx, &cloudwatchlogs.StopQueryInput{QueryId: aws.String(queryID)}); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to stop abandoned query")
	}
}

// flattenRow turns a result row into a field map. Later duplicates win and
// pairs with an empty field or value are skipped.
func flattenRow(fields []types.ResultField) models.QueryResultRow {
	row := make(models.QueryResultRow, len(fields))
	for _, f := range fields {
		field, value := aws.ToString(f.Field), aws.ToString(f.Value)
		if field == "" || value == "" {
			continue
		}
		row[field] = value
	}
	return row
}
