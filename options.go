package meshdof

import "runtime"

type options struct {
	logger      *Logger
	metrics     MetricsCollector
	parallelism int
}

func defaultOptions() options {
	return options{
		logger:      NoopLogger(),
		metrics:     NoopMetricsCollector{},
		parallelism: runtime.GOMAXPROCS(0),
	}
}

// Option configures Handler construction.
type Option func(*options)

// WithLogger sets the logger used for operational logging.
// Passing nil restores the no-op logger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetrics sets the metrics collector invoked after each pass.
// Passing nil restores the no-op collector.
func WithMetrics(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}

// WithParallelism bounds how many levels CompressAll and UncompressAll
// rewrite concurrently. Values below 1 mean "one level at a time".
func WithParallelism(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.parallelism = n
	}
}
