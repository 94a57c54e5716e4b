package ledger

import (
	"context"
	"errors"

	"arrozal-backend/internal/application/extraction"
	"arrozal-backend/internal/domain"
	"arrozal-backend/internal/pkg/metrics"
	"arrozal-backend/internal/pkg/silolock"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service is the authoritative batch/silo ledger. All tonnage mutations go
// through it; callers that mutate hold the silo lock (Locks may be nil in
// tests, where there is a single caller anyway).
type Service struct {
	DB    *gorm.DB
	Locks *silolock.Locker
}

// SiloState is the read model for a silo with its live batches.
type SiloState struct {
	Silo    domain.Silo    `json:"silo"`
	Batches []domain.Batch `json:"batches"`
}

// GetSiloState returns the silo and its non-exhausted batches in layer order.
func (s *Service) GetSiloState(ctx context.Context, siloID uuid.UUID) (*SiloState, error) {
	return s.GetSiloStateTx(s.DB.WithContext(ctx), siloID)
}

// GetSiloStateTx is GetSiloState inside an open transaction, so the
// transfer executor can plan and apply against one consistent snapshot.
func (s *Service) GetSiloStateTx(tx *gorm.DB, siloID uuid.UUID) (*SiloState, error) {
	var silo domain.Silo
	if err := tx.Where("silo_id = ?", siloID).First(&silo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewLedgerError(domain.ErrSiloNotFound, siloID, 0, 0)
		}
		return nil, err
	}

	batches, err := s.liveBatches(tx, siloID)
	if err != nil {
		return nil, err
	}
	return &SiloState{Silo: silo, Batches: batches}, nil
}

// CreateSilo registers a silo administratively.
func (s *Service) CreateSilo(ctx context.Context, name, siloType string, maxCapacity, diameterM float64) (*domain.Silo, error) {
	if maxCapacity <= 0 {
		return nil, domain.NewLedgerError(domain.ErrInvalidAmount, uuid.Nil, maxCapacity, 0)
	}
	if siloType == "" {
		siloType = domain.SiloTypeStorage
	}
	silo := domain.Silo{
		Name:        name,
		Type:        siloType,
		MaxCapacity: extraction.Round2(maxCapacity),
		DiameterM:   diameterM,
	}
	if err := s.DB.WithContext(ctx).Create(&silo).Error; err != nil {
		return nil, err
	}
	return &silo, nil
}

// ListSilos returns all silos.
func (s *Service) ListSilos(ctx context.Context) ([]domain.Silo, error) {
	var silos []domain.Silo
	if err := s.DB.WithContext(ctx).Order("name ASC").Find(&silos).Error; err != nil {
		return nil, err
	}
	return silos, nil
}

// AcceptDelivery is the intake path: an upstream transport document was
// unloaded into a silo, creating a new top layer.
func (s *Service) AcceptDelivery(ctx context.Context, siloID uuid.UUID, prov domain.Provenance, tonnage float64) (*domain.Batch, error) {
	if tonnage <= 0 {
		return nil, domain.NewLedgerError(domain.ErrInvalidAmount, siloID, tonnage, 0)
	}

	if s.Locks != nil {
		lease, err := s.Locks.Acquire(ctx, siloID)
		if err != nil {
			return nil, err
		}
		defer lease.Release(ctx)
	}

	var batch *domain.Batch
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var silo domain.Silo
		if err := tx.Where("silo_id = ?", siloID).First(&silo).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NewLedgerError(domain.ErrSiloNotFound, siloID, tonnage, 0)
			}
			return err
		}
		b, err := s.CreateBatchTx(tx, &silo, prov, nil, tonnage)
		if err != nil {
			return err
		}
		batch = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("silo_id", siloID.String()).
		Str("batch_id", batch.BatchID.String()).
		Float64("tonnage", tonnage).
		Int("layer_order", batch.LayerOrder).
		Msg("Delivery accepted into silo")
	return batch, nil
}

// CreateBatchTx creates a new batch inside an open transaction. The silo's
// cached occupancy is updated in the same transaction. originID links a
// transfer-created batch back to the source batch it was drawn from.
func (s *Service) CreateBatchTx(tx *gorm.DB, silo *domain.Silo, prov domain.Provenance, originID *uuid.UUID, tonnage float64) (*domain.Batch, error) {
	tonnage = extraction.Round2(tonnage)
	if tonnage <= 0 {
		return nil, domain.NewLedgerError(domain.ErrInvalidAmount, silo.SiloID, tonnage, silo.Available())
	}
	if extraction.Round2(silo.Occupancy+tonnage) > silo.MaxCapacity {
		return nil, domain.NewLedgerError(domain.ErrCapacityExceeded, silo.SiloID, tonnage, silo.Available())
	}

	layer, err := nextLayerOrder(tx, silo.SiloID)
	if err != nil {
		return nil, err
	}

	batch := domain.Batch{
		SiloID:           silo.SiloID,
		DeliveryRef:      prov.DeliveryRef,
		PlotRef:          prov.PlotRef,
		OriginBatchID:    originID,
		Variety:          prov.Variety,
		Certification:    prov.Certification,
		MoisturePct:      prov.MoisturePct,
		BrokenPct:        prov.BrokenPct,
		OriginalTonnage:  tonnage,
		RemainingTonnage: tonnage,
		LayerOrder:       layer,
	}
	if err := tx.Create(&batch).Error; err != nil {
		return nil, err
	}

	silo.Occupancy = extraction.Round2(silo.Occupancy + tonnage)
	if err := tx.Save(silo).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// ApplyWithdrawalTx debits every batch in the plan inside an open
// transaction. Each line is re-validated against the batch's current
// remaining tonnage; any shortfall fails the whole transaction with
// PlanStale, so a plan computed against outdated state can never drive a
// batch negative.
func (s *Service) ApplyWithdrawalTx(tx *gorm.DB, silo *domain.Silo, plan *extraction.WithdrawalPlan) error {
	for _, line := range plan.Lines {
		var batch domain.Batch
		if err := tx.Where("batch_id = ? AND silo_id = ?", line.BatchID, silo.SiloID).First(&batch).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				metrics.PlansRejected.WithLabelValues("plan_stale").Inc()
				return domain.NewLedgerError(domain.ErrPlanStale, silo.SiloID, line.Amount, 0)
			}
			return err
		}
		if batch.RemainingTonnage < line.Amount {
			metrics.PlansRejected.WithLabelValues("plan_stale").Inc()
			return domain.NewLedgerError(domain.ErrPlanStale, silo.SiloID, line.Amount, batch.RemainingTonnage)
		}
		batch.RemainingTonnage = extraction.Round2(batch.RemainingTonnage - line.Amount)
		if err := tx.Save(&batch).Error; err != nil {
			return err
		}
	}

	silo.Occupancy = extraction.Round2(silo.Occupancy - plan.TotalAmount)
	if silo.Occupancy < 0 {
		// Cached occupancy lagging behind the batches; the stale check
		// above should have caught this first.
		metrics.PlansRejected.WithLabelValues("plan_stale").Inc()
		return domain.NewLedgerError(domain.ErrPlanStale, silo.SiloID, plan.TotalAmount, 0)
	}
	return tx.Save(silo).Error
}

// LiveBatches returns the non-exhausted batches of a silo in layer order.
func (s *Service) LiveBatches(ctx context.Context, siloID uuid.UUID) ([]domain.Batch, error) {
	return s.liveBatches(s.DB.WithContext(ctx), siloID)
}

func (s *Service) liveBatches(tx *gorm.DB, siloID uuid.UUID) ([]domain.Batch, error) {
	var batches []domain.Batch
	err := tx.
		Where("silo_id = ? AND remaining_tonnage > 0", siloID).
		Order("layer_order ASC").
		Find(&batches).Error
	return batches, err
}

// ListTransfers returns the audit trail of a silo, newest first. The silo
// appears as source or destination.
func (s *Service) ListTransfers(ctx context.Context, siloID uuid.UUID) ([]domain.TransferRecord, error) {
	var records []domain.TransferRecord
	err := s.DB.WithContext(ctx).
		Where("source_silo_id = ? OR dest_silo_id = ?", siloID, siloID).
		Order(`"createdAt" DESC`).
		Find(&records).Error
	return records, err
}

// ListReservations returns all reservations against a sales order.
func (s *Service) ListReservations(ctx context.Context, salesOrderRef string) ([]domain.Reservation, error) {
	var reservations []domain.Reservation
	err := s.DB.WithContext(ctx).
		Where("sales_order_ref = ?", salesOrderRef).
		Order(`"createdAt" ASC`).
		Find(&reservations).Error
	return reservations, err
}

func nextLayerOrder(tx *gorm.DB, siloID uuid.UUID) (int, error) {
	var max int
	err := tx.Model(&domain.Batch{}).
		Where("silo_id = ?", siloID).
		Select("COALESCE(MAX(layer_order), -1)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}
