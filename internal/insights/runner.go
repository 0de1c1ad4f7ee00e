package insights

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/rs/zerolog"

	"github.com/shiimaxx/logs-insights-newrelic-metrics/pkg/models"
)

// LogsAPI is the subset of the CloudWatch Logs client used for Logs Insights queries.
type LogsAPI interface {
	StartQuery(ctx context.Context, params *cloudwatchlogs.StartQueryInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error)
	GetQueryResults(ctx context.Context, params *cloudwatchlogs.GetQueryResultsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error)
	StopQuery(ctx context.Context, params *cloudwatchlogs.StopQueryInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StopQueryOutput, error)
}

// Runner submits Logs Insights queries.
type Runner struct {
	client LogsAPI
}

func NewRunner(client LogsAPI) *Runner {
	return &Runner{client: client}
}

// Start submits query against logGroup over window and returns the query id.
func (r *Runner) Start(ctx context.Context, logGroup, query string, window models.TimeWindow) (string, error) {
	logger := zerolog.Ctx(ctx).With().Str("log_group", logGroup).Logger()
	logger.Info().Str("query", query).Msg("Starting CloudWatch Logs Insights query")

	// StartQuery takes epoch seconds and both bounds are inclusive, so the
	// last second before the window end is the final one queried.
	out, err := r.client.StartQuery(ctx, &cloudwatchlogs.StartQueryInput{
		LogGroupName: aws.String(logGroup),
		QueryString:  aws.String(query),
		StartTime:    aws.Int64(window.Start.Unix()),
		EndTime:      aws.Int64(window.End.Unix() - 1),
	})
	if err != nil {
		logger.Error().Err(err).Msg("Error starting query")
		return "", fmt.Errorf("start query: %w", err)
	}

	queryID := aws.ToString(out.QueryId)
	if queryID == "" {
		logger.Error().Msg("StartQuery returned an empty query id")
		return "", errors.New("start query: empty query id")
	}

	logger.Info().Str("query_id", queryID).Msg("Query started")
	return queryID, nil
}
