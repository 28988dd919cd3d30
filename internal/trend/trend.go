// Package trend produces time-bucketed error counts for dashboard charts.
// Bucket width scales with the requested range so the point count stays in
// a bounded band, and every bucket in the window is present even when its
// count is zero so consumers can render a continuous axis.
package trend

import (
	"fmt"
	"time"
)

// TimeRange is the supported set of trend query windows.
type TimeRange string

const (
	RangeHour  TimeRange = "1h"
	RangeDay   TimeRange = "24h"
	RangeWeek  TimeRange = "7d"
	RangeMonth TimeRange = "30d"
)

// rangeSpec fixes the bucket width and count per range. Counts stay within
// 20-100 points: 60, 48, 56, 30.
type rangeSpec struct {
	width   time.Duration
	buckets int
}

var specs = map[TimeRange]rangeSpec{
	RangeHour:  {time.Minute, 60},
	RangeDay:   {30 * time.Minute, 48},
	RangeWeek:  {3 * time.Hour, 56},
	RangeMonth: {24 * time.Hour, 30},
}

// ParseTimeRange validates a raw query value. Empty input defaults to 24h.
func ParseTimeRange(s string) (TimeRange, error) {
	if s == "" {
		return RangeDay, nil
	}
	r := TimeRange(s)
	if _, ok := specs[r]; !ok {
		return "", fmt.Errorf("unsupported time_range %q", s)
	}
	return r, nil
}

// BucketWidth returns the bucket duration for the range.
func (r TimeRange) BucketWidth() time.Duration {
	return specs[r].width
}

// BucketCount returns the fixed number of buckets for the range.
func (r TimeRange) BucketCount() int {
	return specs[r].buckets
}

// Window returns the [start, end) query window ending at the bucket that
// contains now. start is aligned to the bucket width so identical queries
// within one bucket hit the same window (and the same cache entry).
func (r TimeRange) Window(now time.Time) (start, end time.Time) {
	spec := specs[r]
	end = now.UTC().Truncate(spec.width).Add(spec.width)
	start = end.Add(-time.Duration(spec.buckets) * spec.width)
	return start, end
}

// Point is one trend bucket. Info-severity events are intentionally
// excluded from Count so diagnostic noise never dominates the chart.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
	Critical  int       `json:"critical"`
	Error     int       `json:"error"`
	Warning   int       `json:"warning"`
}

// BucketRow is a non-empty bucket as returned by the store.
type BucketRow struct {
	Bucket   time.Time
	Critical int
	Error    int
	Warning  int
}

// BuildSeries assembles the full zero-filled series for a range from the
// store's sparse bucket rows. Rows outside the window are ignored.
func BuildSeries(r TimeRange, now time.Time, rows []BucketRow) []Point {
	spec := specs[r]
	start, _ := r.Window(now)

	points := make([]Point, spec.buckets)
	index := make(map[int64]*Point, spec.buckets)
	for i := range points {
		ts := start.Add(time.Duration(i) * spec.width)
		points[i] = Point{Timestamp: ts}
		index[ts.Unix()] = &points[i]
	}

	for _, row := range rows {
		p, ok := index[row.Bucket.UTC().Unix()]
		if !ok {
			continue
		}
		p.Critical += row.Critical
		p.Error += row.Error
		p.Warning += row.Warning
		p.Count += row.Critical + row.Error + row.Warning
	}

	return points
}

// SeriesMax returns the largest bucket count, floored at 1 so an all-zero
// series never produces a division by zero when consumers scale the chart.
func SeriesMax(points []Point) int {
	max := 1
	for _, p := range points {
		if p.Count > max {
			max = p.Count
		}
	}
	return max
}
