package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/shiimaxx/logs-insights-newrelic-metrics/pkg/models"
)

type queryMetricTOML struct {
	Query      string `toml:"Query"`
	MetricName string `toml:"MetricName"`
	LogGrpName string `toml:"LogGrpName"`
}

type queryFileTOML struct {
	QueryMetric []queryMetricTOML `toml:"QueryMetric"`
}

// LoadQueryFile reads an invocation event from disk. Files ending in .toml use
// [[QueryMetric]] tables; anything else is decoded as the Lambda event JSON.
func LoadQueryFile(path string) (*models.InvocationEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query file '%s': %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return decodeQueryTOML(data)
	}

	var event models.InvocationEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to decode query file: %w", err)
	}
	return &event, nil
}

func decodeQueryTOML(data []byte) (*models.InvocationEvent, error) {
	var file queryFileTOML
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode query file: %w", err)
	}

	event := &models.InvocationEvent{
		QueryMetricList: make([]models.MetricQueryRequest, 0, len(file.QueryMetric)),
	}
	for _, q := range file.QueryMetric {
		event.QueryMetricList = append(event.QueryMetricList, models.MetricQueryRequest{
			Query:        q.Query,
			MetricName:   q.MetricName,
			LogGroupName: q.LogGrpName,
		})
	}
	return event, nil
}
