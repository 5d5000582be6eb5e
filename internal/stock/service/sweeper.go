package service

import (
	"context"
	"time"

	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// ReservationSweeper periodically releases holds past their TTL, so
// reservations expire deterministically even when the caller that took them
// never comes back.
type ReservationSweeper struct {
	reservations *ReservationService
	logger       *logger.Logger
	interval     time.Duration
	stop         chan struct{}
	done         chan struct{}
}

// NewReservationSweeper creates a new reservation sweeper
func NewReservationSweeper(reservations *ReservationService, log *logger.Logger, interval time.Duration) *ReservationSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReservationSweeper{
		reservations: reservations,
		logger:       log.WithComponent("reservation_sweeper"),
		interval:     interval,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs the sweep loop in a background goroutine. One sweep runs
// immediately so a restart cannot leave stale holds waiting a full interval.
func (s *ReservationSweeper) Start() {
	s.logger.Info().Dur("interval", s.interval).Msg("reservation sweeper started")

	go func() {
		defer close(s.done)

		s.sweep()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				s.logger.Info().Msg("reservation sweeper stopped")
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for the current sweep to finish
func (s *ReservationSweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *ReservationSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	released, err := s.reservations.ReleaseExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("reservation sweep failed")
		return
	}
	if released > 0 {
		s.logger.Info().Int("quantity", released).Msg("reservation sweep released expired holds")
	}
}
