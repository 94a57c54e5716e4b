package transfers

import (
	"context"
	"encoding/json"

	"arrozal-backend/internal/application/extraction"
	"arrozal-backend/internal/application/ledger"
	"arrozal-backend/internal/domain"
	"arrozal-backend/internal/pkg/metrics"
	"arrozal-backend/internal/pkg/silolock"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service orchestrates plan -> apply -> destination effect as one atomic
// unit, under per-silo locks when a Locker is configured.
type Service struct {
	DB     *gorm.DB
	Ledger *ledger.Service
	Locks  *silolock.Locker
}

// ReservationSet is the result of assigning stock to a sales order: one
// reservation per batch the plan touched, under a single transfer record.
type ReservationSet struct {
	TransferID    uuid.UUID            `json:"transfer_id"`
	SalesOrderRef string               `json:"sales_order_ref"`
	TotalAmount   float64              `json:"total_amount"`
	Reservations  []domain.Reservation `json:"reservations"`
}

// PreviewWithdrawal computes a plan without touching state. Safe to call
// repeatedly while a user edits the amount field.
func (s *Service) PreviewWithdrawal(ctx context.Context, siloID uuid.UUID, amount float64, policy string) (*extraction.WithdrawalPlan, error) {
	state, err := s.Ledger.GetSiloState(ctx, siloID)
	if err != nil {
		return nil, err
	}
	return extraction.PlanWithdrawal(&state.Silo, state.Batches, amount, policy)
}

// ExecuteSiloToSilo withdraws amount from the source silo under policy and
// lays it down as new batches in the destination silo, provenance carried
// over. Planning, the destination capacity check, the debit and the new
// layers commit or roll back together.
func (s *Service) ExecuteSiloToSilo(ctx context.Context, sourceID, destID uuid.UUID, amount float64, policy, notes string) (*domain.TransferRecord, error) {
	if s.Locks != nil {
		leaseA, leaseB, err := s.Locks.AcquireOrdered(ctx, sourceID, destID)
		if err != nil {
			return nil, err
		}
		defer leaseA.Release(ctx)
		defer leaseB.Release(ctx)
	}

	var record *domain.TransferRecord
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		source, err := s.Ledger.GetSiloStateTx(tx, sourceID)
		if err != nil {
			return err
		}

		plan, err := extraction.PlanWithdrawal(&source.Silo, source.Batches, amount, policy)
		if err != nil {
			return err
		}

		dest, err := s.Ledger.GetSiloStateTx(tx, destID)
		if err != nil {
			return err
		}
		if extraction.Round2(dest.Silo.Occupancy+amount) > dest.Silo.MaxCapacity {
			metrics.PlansRejected.WithLabelValues("capacity_exceeded").Inc()
			return domain.NewLedgerError(domain.ErrCapacityExceeded, destID, amount, dest.Silo.Available())
		}

		if err := s.Ledger.ApplyWithdrawalTx(tx, &source.Silo, plan); err != nil {
			return err
		}

		sourceByID := make(map[uuid.UUID]*domain.Batch, len(source.Batches))
		for i := range source.Batches {
			sourceByID[source.Batches[i].BatchID] = &source.Batches[i]
		}
		for _, line := range plan.Lines {
			origin := sourceByID[line.BatchID]
			originID := origin.BatchID
			if _, err := s.Ledger.CreateBatchTx(tx, &dest.Silo, domain.ProvenanceOf(origin), &originID, line.Amount); err != nil {
				return err
			}
		}

		breakdown, err := json.Marshal(plan.Lines)
		if err != nil {
			return err
		}
		record = &domain.TransferRecord{
			SourceSiloID: sourceID,
			DestSiloID:   &destID,
			TotalAmount:  amount,
			Policy:       policy,
			Breakdown:    datatypes.JSON(breakdown),
			Notes:        notes,
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return nil, err
	}

	metrics.TransfersExecuted.WithLabelValues("silo").Inc()
	log.Info().
		Str("transfer_id", record.TransferID.String()).
		Str("source_silo_id", sourceID.String()).
		Str("dest_silo_id", destID.String()).
		Float64("amount", amount).
		Str("policy", policy).
		Msg("Silo-to-silo transfer executed")
	return record, nil
}

// ExecuteSaleReservation withdraws amount from the source silo and records
// one reservation per consumed batch against the sales order. Assignment
// is a physical commitment: occupancy drops now, not at dispatch.
func (s *Service) ExecuteSaleReservation(ctx context.Context, sourceID uuid.UUID, amount float64, policy, salesOrderRef, notes string) (*ReservationSet, error) {
	if s.Locks != nil {
		lease, err := s.Locks.Acquire(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		defer lease.Release(ctx)
	}

	var set *ReservationSet
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		source, err := s.Ledger.GetSiloStateTx(tx, sourceID)
		if err != nil {
			return err
		}

		plan, err := extraction.PlanWithdrawal(&source.Silo, source.Batches, amount, policy)
		if err != nil {
			return err
		}

		if err := s.Ledger.ApplyWithdrawalTx(tx, &source.Silo, plan); err != nil {
			return err
		}

		breakdown, err := json.Marshal(plan.Lines)
		if err != nil {
			return err
		}
		record := &domain.TransferRecord{
			SourceSiloID:  sourceID,
			SalesOrderRef: &salesOrderRef,
			TotalAmount:   amount,
			Policy:        policy,
			Breakdown:     datatypes.JSON(breakdown),
			Notes:         notes,
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}

		reservations := make([]domain.Reservation, 0, len(plan.Lines))
		for _, line := range plan.Lines {
			r := domain.Reservation{
				SalesOrderRef: salesOrderRef,
				BatchID:       line.BatchID,
				SiloID:        sourceID,
				TransferID:    record.TransferID,
				Tonnage:       line.Amount,
			}
			if err := tx.Create(&r).Error; err != nil {
				return err
			}
			reservations = append(reservations, r)
		}

		set = &ReservationSet{
			TransferID:    record.TransferID,
			SalesOrderRef: salesOrderRef,
			TotalAmount:   amount,
			Reservations:  reservations,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TransfersExecuted.WithLabelValues("sale").Inc()
	metrics.ReservationsCreated.Add(float64(len(set.Reservations)))
	log.Info().
		Str("transfer_id", set.TransferID.String()).
		Str("source_silo_id", sourceID.String()).
		Str("sales_order_ref", salesOrderRef).
		Float64("amount", amount).
		Msg("Sale reservation executed")
	return set, nil
}
