package jobqueue

import (
	"time"

	"github.com/md-rashed-zaman/gobarber/libs/config"
)

// WorkerConfigFromEnv reads the WORKER_* and JOB_RETRY_* variables shared by
// every process that runs a Worker.
func WorkerConfigFromEnv() WorkerConfig {
	def := DefaultRetryPolicy()
	return WorkerConfig{
		Concurrency:  config.Int("WORKER_CONCURRENCY", 2),
		Lease:        config.Duration("WORKER_LEASE", time.Minute),
		PollInterval: config.Duration("WORKER_POLL_INTERVAL", time.Second),
		StatsEvery:   config.Duration("WORKER_STATS_EVERY", 15*time.Second),
		Retry: RetryPolicy{
			MaxAttempts: config.Int("JOB_MAX_ATTEMPTS", def.MaxAttempts),
			Initial:     config.Duration("JOB_RETRY_INITIAL", def.Initial),
			Max:         config.Duration("JOB_RETRY_MAX", def.Max),
			Multiplier:  def.Multiplier,
			Jitter:      def.Jitter,
		},
		RatePerSecond: float64(config.Int("WORKER_RATE_PER_SECOND", 0)),
		Burst:         config.Int("WORKER_BURST", 1),
		SettleTimeout: config.Duration("WORKER_SETTLE_TIMEOUT", 5*time.Second),
	}
}
