package registry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/coderoomhq/coderoom/internal/metrics"
)

// Reaper periodically evicts rooms that are empty and idle beyond the TTL.
// It runs independently of request processing; each tick is bounded by the
// room count.
type Reaper struct {
	registry *Registry
	interval time.Duration
	maxIdle  time.Duration
	logger   *zerolog.Logger
}

func NewReaper(reg *Registry, interval, maxIdle time.Duration, logger *zerolog.Logger) *Reaper {
	return &Reaper{
		registry: reg,
		interval: interval,
		maxIdle:  maxIdle,
		logger:   logger,
	}
}

func (rp *Reaper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(rp.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if evicted := rp.registry.Sweep(time.Now(), rp.maxIdle); evicted > 0 {
					metrics.RoomsSwept.Add(float64(evicted))
					rp.logger.Info().Int("evicted", evicted).Msg("idle room sweep finished")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
