package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiimaxx/logs-insights-newrelic-metrics/internal/insights"
	"github.com/shiimaxx/logs-insights-newrelic-metrics/internal/newrelic"
	"github.com/shiimaxx/logs-insights-newrelic-metrics/internal/secrets"
	"github.com/shiimaxx/logs-insights-newrelic-metrics/pkg/models"
)

type fakeLogs struct {
	status types.QueryStatus
	rows   [][]types.ResultField
}

func (f *fakeLogs) StartQuery(_ context.Context, _ *cloudwatchlogs.StartQueryInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error) {
	return &cloudwatchlogs.StartQueryOutput{QueryId: aws.String("q-1")}, nil
}

func (f *fakeLogs) GetQueryResults(_ context.Context, _ *cloudwatchlogs.GetQueryResultsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error) {
	return &cloudwatchlogs.GetQueryResultsOutput{Status: f.status, Results: f.rows}, nil
}

func (f *fakeLogs) StopQuery(_ context.Context, _ *cloudwatchlogs.StopQueryInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StopQueryOutput, error) {
	return &cloudwatchlogs.StopQueryOutput{}, nil
}

type fakeSecrets struct{}

func (fakeSecrets) GetSecretValue(_ context.Context, _ *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String("fake-key")}, nil
}

func newScenarioProcessor(t *testing.T, logs *fakeLogs) (*Processor, *[]string) {
	t.Helper()

	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fake-key", r.Header.Get("Api-Key"))
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"requestId":"abc"}`))
	}))
	t.Cleanup(server.Close)

	publisher := newrelic.NewPublisher(secrets.NewResolver(fakeSecrets{}), "New_Relic_License", newrelic.WithEndpoint(server.URL))
	poller := insights.NewPoller(logs, publisher, insights.WithInterval(time.Millisecond), insights.WithMaxWait(50*time.Millisecond))

	return NewProcessor(insights.NewRunner(logs), poller, WithClock(fixedClock)), &bodies
}

func scenarioEvent() models.InvocationEvent {
	return models.InvocationEvent{QueryMetricList: []models.MetricQueryRequest{{
		Query:        "fields @timestamp | stats count() as metricValue by bin(1h) as eventTimestamp",
		MetricName:   "conn_count",
		LogGroupName: "/my/log/group",
	}}}
}

func TestScenario_SingleRowPublished(t *testing.T) {
	logs := &fakeLogs{
		status: types.QueryStatusComplete,
		rows: [][]types.ResultField{{
			{Field: aws.String("eventTimestamp"), Value: aws.String("2024-01-01 00:00:00.000000")},
			{Field: aws.String("metricValue"), Value: aws.String("7")},
		}},
	}
	p, bodies := newScenarioProcessor(t, logs)

	result := p.HandleEvent(context.Background(), "inv-1", scenarioEvent())

	got, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"overallStatus": 200,
		"perMetricResults": [
			{"metricName": "conn_count", "statusCode": 200, "body": {"results": [{"requestId": "abc"}]}}
		]
	}`, string(got))

	require.Len(t, *bodies, 1)
	assert.JSONEq(t, `[{"metrics":[{"name":"conn_count","type":"gauge","value":7,"timestamp":1704067200000,"interval.ms":30000}]}]`, (*bodies)[0])
}

func TestScenario_QueryNeverFinishes(t *testing.T) {
	p, bodies := newScenarioProcessor(t, &fakeLogs{status: types.QueryStatusRunning})

	result := p.HandleEvent(context.Background(), "inv-1", scenarioEvent())

	assert.Equal(t, http.StatusInternalServerError, result.OverallStatus)
	require.Len(t, result.PerMetricResults, 1)
	assert.Contains(t, result.PerMetricResults[0].Error, "maximum wait")
	assert.Empty(t, *bodies)
}

type rotatingSecrets struct {
	value string
}

func (s *rotatingSecrets) GetSecretValue(_ context.Context, _ *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(s.value)}, nil
}

func TestScenario_RotatedKeyUsedByNextInvocation(t *testing.T) {
	var keys []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Api-Key"))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"requestId":"abc"}`))
	}))
	defer server.Close()

	store := &rotatingSecrets{value: "old-key"}
	resolver := secrets.NewResolver(store)
	publisher := newrelic.NewPublisher(resolver, "New_Relic_License", newrelic.WithEndpoint(server.URL))

	logs := &fakeLogs{
		status: types.QueryStatusComplete,
		rows: [][]types.ResultField{
			{
				{Field: aws.String("eventTimestamp"), Value: aws.String("2024-01-01 00:00:00.000000")},
				{Field: aws.String("metricValue"), Value: aws.String("7")},
			},
			{
				{Field: aws.String("eventTimestamp"), Value: aws.String("2024-01-01 00:30:00.000000")},
				{Field: aws.String("metricValue"), Value: aws.String("8")},
			},
		},
	}
	poller := insights.NewPoller(logs, publisher, insights.WithInterval(time.Millisecond), insights.WithMaxWait(50*time.Millisecond))
	p := NewProcessor(insights.NewRunner(logs), poller, WithClock(fixedClock), WithInvocationCache(resolver))

	first := p.HandleEvent(context.Background(), "inv-1", scenarioEvent())
	require.Equal(t, http.StatusOK, first.OverallStatus)

	store.value = "rotated-key"

	second := p.HandleEvent(context.Background(), "inv-2", scenarioEvent())
	require.Equal(t, http.StatusOK, second.OverallStatus)

	assert.Equal(t, []string{"old-key", "old-key", "rotated-key", "rotated-key"}, keys)
}
