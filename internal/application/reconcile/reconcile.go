package reconcile

import (
	"context"

	"arrozal-backend/internal/application/extraction"
	"arrozal-backend/internal/domain"
	"arrozal-backend/internal/pkg/metrics"
	"arrozal-backend/internal/pkg/silolock"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Sweeper recomputes each silo's occupancy from its batches and repairs
// the cached value when it drifted. Drift should never happen while all
// writes go through the ledger; the sweep exists to notice when something
// bypassed it.
type Sweeper struct {
	DB    *gorm.DB
	Locks *silolock.Locker
}

// Run sweeps every silo once. Locked silos are skipped, not awaited: the
// next run will catch them.
func (s *Sweeper) Run(ctx context.Context) error {
	var silos []domain.Silo
	if err := s.DB.WithContext(ctx).Find(&silos).Error; err != nil {
		return err
	}

	for i := range silos {
		if err := s.reconcileSilo(ctx, &silos[i]); err != nil {
			log.Error().Err(err).Str("silo_id", silos[i].SiloID.String()).Msg("Reconciliation failed for silo")
		}
	}
	return nil
}

func (s *Sweeper) reconcileSilo(ctx context.Context, silo *domain.Silo) error {
	if s.Locks != nil {
		lease, err := s.Locks.Acquire(ctx, silo.SiloID)
		if err != nil {
			return nil // busy silo, skip this round
		}
		defer lease.Release(ctx)
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sum float64
		err := tx.Model(&domain.Batch{}).
			Where("silo_id = ?", silo.SiloID).
			Select("COALESCE(SUM(remaining_tonnage), 0)").
			Scan(&sum).Error
		if err != nil {
			return err
		}
		actual := extraction.Round2(sum)

		var current domain.Silo
		if err := tx.Where("silo_id = ?", silo.SiloID).First(&current).Error; err != nil {
			return err
		}
		if current.Occupancy == actual {
			return nil
		}

		metrics.ReconciliationDrift.Inc()
		log.Warn().
			Str("silo_id", current.SiloID.String()).
			Float64("cached", current.Occupancy).
			Float64("actual", actual).
			Msg("Occupancy drift detected; repairing cached value")

		current.Occupancy = actual
		return tx.Save(&current).Error
	})
}

// Start schedules the sweep with the given cron spec and returns the
// running scheduler. An empty spec disables the sweep.
func Start(spec string, sweeper *Sweeper) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := sweeper.Run(context.Background()); err != nil {
			log.Error().Err(err).Msg("Reconciliation sweep failed")
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
