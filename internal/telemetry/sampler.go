package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultSampleInterval = time.Minute

// Stats is a point-in-time snapshot of portal totals.
type Stats struct {
	ActiveUsers   int64
	InactiveUsers int64
	ActiveRoles   int
	DBOpenConns   int
	DBInUse       int
}

// StatsFunc is called on every sample to gather current totals.
type StatsFunc func(ctx context.Context) (Stats, error)

// Sampler periodically copies Stats into the metrics gauges.
type Sampler struct {
	metrics  *Metrics
	statsFn  StatsFunc
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSampler returns nil when metrics are disabled.
func NewSampler(m *Metrics, fn StatsFunc, interval time.Duration, logger *slog.Logger) *Sampler {
	if m == nil || fn == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultSampleInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{metrics: m, statsFn: fn, interval: interval, logger: logger}
}

// Start samples once immediately and then on every interval. Non-blocking.
func (s *Sampler) Start() {
	if s == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.sample(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sample(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the background loop.
func (s *Sampler) Shutdown() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sampler) sample(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	stats, err := s.statsFn(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("metrics sample failed", "error", err)
		}
		return
	}
	s.metrics.Users.WithLabelValues("active").Set(float64(stats.ActiveUsers))
	s.metrics.Users.WithLabelValues("inactive").Set(float64(stats.InactiveUsers))
	s.metrics.ActiveRoles.Set(float64(stats.ActiveRoles))
	s.metrics.DBOpenConns.Set(float64(stats.DBOpenConns))
	s.metrics.DBInUse.Set(float64(stats.DBInUse))
}
