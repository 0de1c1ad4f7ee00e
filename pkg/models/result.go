package models

import (
	"encoding/json"
	"net/http"
)

// MetricResultBody carries one publish response per result row. A null entry
// marks a row whose publish failed.
type MetricResultBody struct {
	Results []json.RawMessage `json:"results"`
}

type MetricResult struct {
	MetricName string            `json:"metricName"`
	StatusCode int               `json:"statusCode"`
	Body       *MetricResultBody `json:"body,omitempty"`
	Error      string            `json:"error,omitempty"`

	// Rows and FailedRows feed run statistics only.
	Rows       int `json:"-"`
	FailedRows int `json:"-"`
}

// InvocationResult is the envelope returned for every invocation, successful or not.
type InvocationResult struct {
	OverallStatus    int            `json:"overallStatus"`
	Error            string         `json:"error,omitempty"`
	PerMetricResults []MetricResult `json:"perMetricResults"`
}

func SucceededMetric(name string, results []json.RawMessage, failedRows int) MetricResult {
	if results == nil {
		results = []json.RawMessage{}
	}
	return MetricResult{
		MetricName: name,
		StatusCode: http.StatusOK,
		Body:       &MetricResultBody{Results: results},
		Rows:       len(results),
		FailedRows: failedRows,
	}
}

func FailedMetric(name string, err error) MetricResult {
	return MetricResult{
		MetricName: name,
		StatusCode: http.StatusInternalServerError,
		Error:      err.Error(),
	}
}

func BadRequest(err error) InvocationResult {
	return InvocationResult{
		OverallStatus:    http.StatusBadRequest,
		Error:            err.Error(),
		PerMetricResults: []MetricResult{},
	}
}

// Finalize sets OverallStatus to 200 when every metric succeeded and 500 otherwise.
func (r *InvocationResult) Finalize() {
	r.OverallStatus = http.StatusOK
	for _, m := range r.PerMetricResults {
		if m.StatusCode != http.StatusOK {
			r.OverallStatus = http.StatusInternalServerError
			return
		}
	}
}
