package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"

	"github.com/shiimaxx/logs-insights-newrelic-metrics/pkg/models"
)

const (
	defaultMetricBatchSize = 20

	metricNameQueryRows       = "QueryRows"
	metricNamePublishedPoints = "PublishedPoints"
	metricNameFailedPoints    = "FailedPoints"
	metricNameMetricFailed    = "MetricFailed"

	metricDimensionMetricName = "MetricName"
)

// CloudWatchAPI is the subset of the CloudWatch client used by StatsPublisher.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// StatsPublisher reports how each invocation went as CloudWatch metrics.
type StatsPublisher struct {
	client       CloudWatchAPI
	namespace    string
	maxBatchSize int
}

func NewStatsPublisher(client CloudWatchAPI, namespace string) *StatsPublisher {
	return &StatsPublisher{
		client:       client,
		namespace:    namespace,
		maxBatchSize: defaultMetricBatchSize,
	}
}

// Publish sends per-metric run statistics stamped at the given time.
func (p *StatsPublisher) Publish(ctx context.Context, result models.InvocationResult, at time.Time) error {
	data := p.convertToCloudWatchMetrics(result, at)
	if len(data) == 0 {
		return nil
	}

	chunks, err := p.chunkMetricData(data)
	if err != nil {
		return fmt.Errorf("prepare metric batches: %w", err)
	}

	zerolog.Ctx(ctx).Debug().Int("metrics", len(data)).Int("batches", len(chunks)).Str("namespace", p.namespace).Msg("Publishing run statistics to CloudWatch")

	for i, chunk := range chunks {
		input := &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: chunk,
		}

		if _, err := p.client.PutMetricData(ctx, input); err != nil {
			return fmt.Errorf("put metric data batch %d: %w", i+1, err)
		}
	}

	return nil
}

func (p *StatsPublisher) convertToCloudWatchMetrics(result models.InvocationResult, at time.Time) []types.MetricDatum {
	var metrics []types.MetricDatum

	for _, r := range result.PerMetricResults {
		dimensions := []types.Dimension{
			{Name: aws.String(metricDimensionMetricName), Value: aws.String(r.MetricName)},
		}

		failed := 0.0
		if r.StatusCode >= 300 {
			failed = 1
		}

		values := []struct {
			name  string
			value float64
		}{
			{metricNameQueryRows, float64(r.Rows)},
			{metricNamePublishedPoints, float64(r.Rows - r.FailedRows)},
			{metricNameFailedPoints, float64(r.FailedRows)},
			{metricNameMetricFailed, failed},
		}

		for _, v := range values {
			metrics = append(metrics, types.MetricDatum{
				MetricName: aws.String(v.name),
				Value:      aws.Float64(v.value),
				Unit:       types.StandardUnitCount,
				Timestamp:  aws.Time(at),
				Dimensions: dimensions,
			})
		}
	}

	return metrics
}

// chunkMetricData splits the provided metric data into size-bounded batches.
func (p *StatsPublisher) chunkMetricData(data []types.MetricDatum) ([][]types.MetricDatum, error) {
	size := p.maxBatchSize
	if size <= 0 {
		return nil, fmt.Errorf("invalid max batch size %d", size)
	}

	if len(data) == 0 {
		return [][]types.MetricDatum{}, nil
	}

	batches := make([][]types.MetricDatum, 0, (len(data)+size-1)/size)
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		batches = append(batches, data[start:end])
	}

	return batches, nil
}
