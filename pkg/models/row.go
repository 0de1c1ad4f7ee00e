package models

import (
	"fmt"
	"strconv"
	"time"
)

const (
	FieldEventTimestamp = "eventTimestamp"
	FieldMetricValue    = "metricValue"

	// Logs Insights renders timestamps without a zone. Fractional seconds of
	// any precision are accepted by time.Parse after the seconds field.
	eventTimestampLayout = "2006-01-02 15:04:05"
)

// QueryResultRow is one Logs Insights result row keyed by field name.
type QueryResultRow map[string]string

// EventTimestamp parses the eventTimestamp field in loc and returns epoch
// milliseconds, truncating sub-millisecond precision.
func (r QueryResultRow) EventTimestamp(loc *time.Location) (int64, error) {
	raw, ok := r[FieldEventTimestamp]
	if !ok {
		return 0, fmt.Errorf("missing field %q", FieldEventTimestamp)
	}

	if loc == nil {
		loc = time.UTC
	}

	ts, err := time.ParseInLocation(eventTimestampLayout, raw, loc)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", FieldEventTimestamp, raw, err)
	}

	return ts.UnixMilli(), nil
}

// MetricValue parses the metricValue field as a base-10 integer.
func (r QueryResultRow) MetricValue() (int64, error) {
	raw, ok := r[FieldMetricValue]
	if !ok {
		return 0, fmt.Errorf("missing field %q", FieldMetricValue)
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", FieldMetricValue, raw, err)
	}

	return value, nil
}
