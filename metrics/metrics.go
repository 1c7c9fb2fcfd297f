// Package metrics provides lightweight instrumentation helpers for
// store and engine operations.
package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var opDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "assetsync",
		Name:      "operation_duration_seconds",
		Help:      "Elapsed wall-clock time of store and engine operations.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	},
	[]string{"op"},
)

func init() {
	prometheus.MustRegister(opDuration)
}

// RecordElapsed records the time since t0 against the calling
// function's name. Designed to be deferred at the top of an operation:
//
//	defer metrics.RecordElapsed(time.Now())
func RecordElapsed(t0 time.Time) {
	name := "unknown"
	if pc, _, _, ok := runtime.Caller(1); ok {
		if f := runtime.FuncForPC(pc); f != nil {
			name = f.Name()
		}
	}
	opDuration.WithLabelValues(name).Observe(time.Since(t0).Seconds())
}
