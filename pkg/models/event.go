package models

import (
	"errors"
	"fmt"
)

// ErrInvalidEvent marks an invocation event rejected before any query runs.
var ErrInvalidEvent = errors.New("invalid invocation event")

// MetricQueryRequest describes one Logs Insights query and the metric its rows feed.
type MetricQueryRequest struct {
	Query        string `json:"query"`
	MetricName   string `json:"metricName"`
	LogGroupName string `json:"logGrpName"`
}

type InvocationEvent struct {
	QueryMetricList []MetricQueryRequest `json:"queryMetricList"`
}

// Validate checks every entry up front so a bad event never reaches CloudWatch.
func (e InvocationEvent) Validate() error {
	if len(e.QueryMetricList) == 0 {
		return fmt.Errorf("%w: \"queryMetricList\" is missing or empty", ErrInvalidEvent)
	}

	for i, req := range e.QueryMetricList {
		if req.Query == "" {
			return fmt.Errorf("%w: \"query\" parameter is missing in entry %d", ErrInvalidEvent, i)
		}
		if req.MetricName == "" {
			return fmt.Errorf("%w: \"metricName\" parameter is missing in entry %d", ErrInvalidEvent, i)
		}
		if req.LogGroupName == "" {
			return fmt.Errorf("%w: \"logGrpName\" parameter is missing in entry %d", ErrInvalidEvent, i)
		}
	}

	return nil
}
