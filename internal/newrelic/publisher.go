package newrelic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/shiimaxx/logs-insights-newrelic-metrics/pkg/models"
)

const DefaultEndpoint = "https://metric-api.newrelic.com/metric/v1"

var (
	// ErrCredentials is returned when the API key cannot be resolved.
	ErrCredentials = errors.New("resolve New Relic API key")
	// ErrPublish is returned when the Metric API rejects or never receives a data point.
	ErrPublish = errors.New("send metric to New Relic")
)

var dryRunResponse = json.RawMessage(`{"dryRun":true}`)

// SecretResolver returns a secret value by name.
type SecretResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// Publisher posts gauge data points to the New Relic Metric API.
type Publisher struct {
	endpoint   string
	secretName string
	secrets    SecretResolver
	client     *http.Client
	dryRun     bool
}

type Option func(*Publisher)

func WithEndpoint(endpoint string) Option {
	return func(p *Publisher) { p.endpoint = endpoint }
}

func WithHTTPClient(client *http.Client) Option {
	return func(p *Publisher) { p.client = client }
}

// WithDryRun logs payloads instead of sending them.
func WithDryRun(dryRun bool) Option {
	return func(p *Publisher) { p.dryRun = dryRun }
}

func NewPublisher(secrets SecretResolver, secretName string, opts ...Option) *Publisher {
	p := &Publisher{
		endpoint:   DefaultEndpoint,
		secretName: secretName,
		secrets:    secrets,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends one gauge and returns the response body as received.
func (p *Publisher) Publish(ctx context.Context, metricName string, timestampMillis, value int64) (json.RawMessage, error) {
	logger := zerolog.Ctx(ctx)

	apiKey, err := p.secrets.Resolve(ctx, p.secretName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentials, err)
	}

	payload := []models.MetricBatch{
		{Metrics: []models.GaugeMetric{models.NewGauge(metricName, timestampMillis, value)}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal payload: %w", ErrPublish, err)
	}

	logger.Info().RawJSON("payload", body).Msg("Sending data to New Relic")

	if p.dryRun {
		logger.Info().Msg("Dry run enabled, skipping actual publishing")
		return dryRunResponse, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrPublish, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("Error sending metric to New Relic")
		return nil, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrPublish, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Error().Int("status_code", resp.StatusCode).Bytes("response", respBody).Msg("New Relic rejected metric")
		return nil, fmt.Errorf("%w: status code %d", ErrPublish, resp.StatusCode)
	}

	if !gjson.ValidBytes(respBody) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrPublish)
	}

	logger.Info().Str("request_id", gjson.GetBytes(respBody, "requestId").String()).Msg("Metric accepted by New Relic")
	return json.RawMessage(respBody), nil
}
