// Package collect provides metric collectors that pull arrival-rate series
// from external systems and normalize them into forecast samples.
//
// Available collectors:
//   - PrometheusCollector: fetches series via the Prometheus range-query API
//   - HTTPCollector: generic collector for any REST API with JSON responses
//
// Collectors are intentionally thin: they fetch raw points, shape them into
// timestamp-ordered samples, and leave forecasting and planning to the upper
// layers. A collector is also how the evaluation loop reads scalar fleet
// facts (current workers, backlog): query the series and take the last point.
package collect

import (
	"context"
	"errors"
	"time"

	"github.com/HatiCode/queuecap/pkg/forecast"
)

// ErrNoData is returned when a query succeeds but yields no points.
var ErrNoData = errors.New("collect: query returned no data points")

// Collector fetches a trailing window of arrival-rate samples.
//
// Series is synchronous and must respect context cancellation. Samples are
// returned in ascending time order.
type Collector interface {
	Series(ctx context.Context, window time.Duration) ([]forecast.Sample, error)

	// Name returns a short identifier, e.g. "prometheus" or "http".
	Name() string
}

// Latest returns the most recent sample of a series.
func Latest(samples []forecast.Sample) (forecast.Sample, error) {
	if len(samples) == 0 {
		return forecast.Sample{}, ErrNoData
	}
	return samples[len(samples)-1], nil
}

// AlignTimestamp truncates ts to a consistent step boundary.
func AlignTimestamp(ts time.Time, stepSec int) time.Time {
	return ts.Truncate(time.Duration(stepSec) * time.Second)
}
