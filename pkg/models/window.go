package models

import "time"

// TimeWindow is a half-open query range [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// PreviousHour returns the most recently completed full clock hour before now.
func PreviousHour(now time.Time) TimeWindow {
	end := now.UTC().Truncate(time.Hour)
	return TimeWindow{Start: end.Add(-time.Hour), End: end}
}

func (w TimeWindow) StartMillis() int64 { return w.Start.UnixMilli() }

func (w TimeWindow) EndMillis() int64 { return w.End.UnixMilli() }
