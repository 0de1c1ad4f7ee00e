package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiimaxx/logs-insights-newrelic-metrics/pkg/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadQueryFile_TOML(t *testing.T) {
	path := writeFile(t, "queries.toml", `
[[QueryMetric]]
Query = "fields @timestamp | stats count() as metricValue by bin(1h) as eventTimestamp"
MetricName = "conn_count"
LogGrpName = "/my/log/group"

[[QueryMetric]]
Query = "filter level = 'ERROR' | stats count() as metricValue by bin(1h) as eventTimestamp"
MetricName = "error_count"
LogGrpName = "/my/other/group"
`)

	event, err := LoadQueryFile(path)
	require.NoError(t, err)

	assert.Equal(t, []models.MetricQueryRequest{
		{Query: "fields @timestamp | stats count() as metricValue by bin(1h) as eventTimestamp", MetricName: "conn_count", LogGroupName: "/my/log/group"},
		{Query: "filter level = 'ERROR' | stats count() as metricValue by bin(1h) as eventTimestamp", MetricName: "error_count", LogGroupName: "/my/other/group"},
	}, event.QueryMetricList)
}

func TestLoadQueryFile_JSON(t *testing.T) {
	path := writeFile(t, "event.json", `{"queryMetricList":[{"query":"q","metricName":"m","logGrpName":"/g"}]}`)

	event, err := LoadQueryFile(path)
	require.NoError(t, err)
	require.Len(t, event.QueryMetricList, 1)
	assert.Equal(t, "/g", event.QueryMetricList[0].LogGroupName)
}

func TestLoadQueryFile_Errors(t *testing.T) {
	_, err := LoadQueryFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadQueryFile(writeFile(t, "bad.toml", "[[QueryMetric]\n"))
	assert.Error(t, err)

	_, err = LoadQueryFile(writeFile(t, "bad.json", "{"))
	assert.Error(t, err)
}
