// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/epgmerge/internal/log"
)

// Refresher runs one refresh and waits for it.
type Refresher interface {
	Run(ctx context.Context) (*Status, error)
}

// Scheduler runs refreshes on an interval. The interval is re-read after
// every run so a reloaded config takes effect on the next cycle.
type Scheduler struct {
	runner   Refresher
	interval func() time.Duration
	logger   zerolog.Logger
}

func NewScheduler(r Refresher, interval func() time.Duration) *Scheduler {
	return &Scheduler{
		runner:   r,
		interval: interval,
		logger:   xglog.WithComponent("scheduler"),
	}
}

// Start runs a refresh immediately and then every interval until ctx is
// done. With a zero interval it runs once and returns that run's error.
func (s *Scheduler) Start(ctx context.Context) error {
	for {
		err := s.tick(ctx)

		d := s.interval()
		if d <= 0 {
			return err
		}
		s.logger.Debug().Dur("next_in", d).Msg("next refresh scheduled")

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	_, err := s.runner.Run(ctx)
	if errors.Is(err, ErrRunInProgress) {
		// a manual refresh got there first
		s.logger.Info().Msg("scheduled refresh skipped, run in progress")
		return nil
	}
	return err
}
