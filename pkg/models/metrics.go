package models

const (
	MetricTypeGauge = "gauge"

	// DefaultIntervalMillis is the interval.ms reported with every gauge.
	DefaultIntervalMillis = 30000
)

// GaugeMetric is a single data point in the New Relic Metric API format.
type GaugeMetric struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Value          int64  `json:"value"`
	Timestamp      int64  `json:"timestamp"`
	IntervalMillis int64  `json:"interval.ms"`
}

type MetricBatch struct {
	Metrics []GaugeMetric `json:"metrics"`
}

func NewGauge(name string, timestampMillis, value int64) GaugeMetric {
	return GaugeMetric{
		Name:           name,
		Type:           MetricTypeGauge,
		Value:          value,
		Timestamp:      timestampMillis,
		IntervalMillis: DefaultIntervalMillis,
	}
}
