package app

import (
	"context"
	"time"

	"github.com/cimillas/ticket-inventory/internal/clock"
	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/metrics"
	"go.uber.org/zap"
)

type SweepRepository interface {
	ReleaseRepository
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
}

// Sweeper periodically expires pending reservations whose hold has lapsed
// and returns their tickets to the pool.
type Sweeper struct {
	repo      SweepRepository
	clock     clock.Clock
	log       *zap.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
}

type SweeperOption func(*Sweeper)

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSweepBatchSize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func NewSweeper(repo SweepRepository, clk clock.Clock, log *zap.Logger, m *metrics.Metrics, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		repo:      repo,
		clock:     clk,
		log:       log,
		metrics:   m,
		interval:  time.Minute,
		batchSize: 500,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SweepResult struct {
	Found    int
	Released int
	Failed   int
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("expiry sweeper started", zap.Duration("interval", s.interval))
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("expiry sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopping")
			return nil
		case <-t.C:
		}
	}
}

// Sweep releases every lapsed pending reservation, each in its own
// transaction, paging through them batchSize at a time. One failure does
// not stop the rest. Paging stops once a page holds nothing new, so items
// that keep failing are retried on the next run instead.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	attempted := make(map[string]struct{})

	for {
		page, err := s.repo.ListExpiredReservations(ctx, s.clock.Now(), s.batchSize)
		if err != nil {
			s.metrics.Sweep("error")
			return result, err
		}

		fresh := 0
		for _, res := range page {
			if _, ok := attempted[res.ID]; ok {
				continue
			}
			attempted[res.ID] = struct{}{}
			fresh++
			result.Found++

			released, err := s.expire(ctx, res.ID)
			if err != nil {
				result.Failed++
				s.metrics.Sweep("item_failed")
				s.log.Error("failed to expire reservation", zap.String("reservation_id", res.ID), zap.Error(err))
				continue
			}
			if released {
				result.Released++
				s.metrics.Released(string(domain.ReservationStatusExpired))
			}
		}

		if len(page) < s.batchSize || fresh == 0 || ctx.Err() != nil {
			break
		}
	}

	s.metrics.Sweep("ok")
	if result.Found > 0 {
		s.log.Info("expiry sweep finished",
			zap.Int("found", result.Found),
			zap.Int("released", result.Released),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (s *Sweeper) expire(ctx context.Context, reservationID string) (bool, error) {
	var released bool
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		// Paid, cancelled or already swept since it was listed.
		if res.Status != domain.ReservationStatusPending || !res.Lapsed(s.clock.Now()) {
			return nil
		}
		if _, err := releaseReservation(txCtx, s.repo, res, domain.ReservationStatusExpired); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}
