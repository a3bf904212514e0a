package metrics

import (
	"time"
)

// Helpers on the process-wide manager, for packages that don't carry one

// MetricSince records the time elapsed since start
func MetricSince(topic, function string, start time.Time) {
	GetInstance().RecordDuration(topic, function, time.Since(start))
}

// MetricInc increments a counter by 1
func MetricInc(topic, function string) {
	GetInstance().AddCounter(topic, function, 1)
}

// MetricFailWithReason records a failed operation with a specific reason
func MetricFailWithReason(topic, operation, reason string) {
	GetInstance().RecordFailure(topic, operation, reason)
}
