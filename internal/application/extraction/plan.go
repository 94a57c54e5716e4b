package extraction

import (
	"math"
	"sort"

	"arrozal-backend/internal/domain"

	"github.com/google/uuid"
)

// PlanLine is the amount a plan takes from one batch.
type PlanLine struct {
	BatchID uuid.UUID `json:"batch_id"`
	Amount  float64   `json:"amount"`
}

// WithdrawalPlan is pure data: how a requested amount is distributed across
// a silo's batches under one policy. Producing it mutates nothing, so the
// same request can be previewed any number of times.
type WithdrawalPlan struct {
	SiloID      uuid.UUID  `json:"silo_id"`
	TotalAmount float64    `json:"total_amount"`
	Policy      string     `json:"policy"`
	Lines       []PlanLine `json:"lines"`
}

// Round2 rounds to the ledger precision of two decimals (kilogram-of-ton
// granularity). Every amount that enters or leaves a batch goes through it.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// PlanWithdrawal computes the withdrawal plan for amount tons out of silo
// under the given policy. Batches must belong to the silo; exhausted
// batches are ignored.
func PlanWithdrawal(silo *domain.Silo, batches []domain.Batch, amount float64, policy string) (*WithdrawalPlan, error) {
	if amount <= 0 {
		return nil, domain.NewLedgerError(domain.ErrInvalidAmount, silo.SiloID, amount, silo.Occupancy)
	}

	live := make([]domain.Batch, 0, len(batches))
	occupancy := 0.0
	for _, b := range batches {
		if b.RemainingTonnage > 0 {
			live = append(live, b)
			occupancy += b.RemainingTonnage
		}
	}
	occupancy = Round2(occupancy)

	if occupancy == 0 {
		return nil, domain.NewLedgerError(domain.ErrEmptySilo, silo.SiloID, amount, 0)
	}
	if amount > occupancy {
		return nil, domain.NewLedgerError(domain.ErrInsufficientStock, silo.SiloID, amount, occupancy)
	}

	var lines []PlanLine
	switch policy {
	case domain.PolicyProportionalMix:
		lines = planProportional(live, amount, occupancy)
	case domain.PolicyFifoLayers:
		lines = planFifo(live, amount)
	default:
		return nil, domain.NewLedgerError(domain.ErrInvalidAmount, silo.SiloID, amount, occupancy)
	}

	return &WithdrawalPlan{
		SiloID:      silo.SiloID,
		TotalAmount: amount,
		Policy:      policy,
		Lines:       lines,
	}, nil
}

// planProportional withdraws the same percentage from every batch. Per-line
// rounding can drift the sum away from the requested amount by at most
// 0.01 per batch; the residual is assigned to the largest batch so that
// the plan conserves tonnage exactly.
func planProportional(live []domain.Batch, amount, occupancy float64) []PlanLine {
	ratio := amount / occupancy

	lines := make([]PlanLine, 0, len(live))
	sum := 0.0
	largestIdx := -1
	largestTonnage := -1.0
	for _, b := range live {
		take := Round2(b.RemainingTonnage * ratio)
		if take == 0 {
			continue
		}
		lines = append(lines, PlanLine{BatchID: b.BatchID, Amount: take})
		sum = Round2(sum + take)
		if b.RemainingTonnage > largestTonnage {
			largestTonnage = b.RemainingTonnage
			largestIdx = len(lines) - 1
		}
	}

	residual := Round2(amount - sum)
	if residual != 0 && largestIdx >= 0 {
		lines[largestIdx].Amount = Round2(lines[largestIdx].Amount + residual)
	}

	// A negative residual can zero out a line; drop it.
	out := lines[:0]
	for _, l := range lines {
		if l.Amount > 0 {
			out = append(out, l)
		}
	}
	return out
}

// planFifo consumes layers bottom-up: lowest layer order first, entry time
// then batch id breaking ties so the plan is fully deterministic.
func planFifo(live []domain.Batch, amount float64) []PlanLine {
	sort.Slice(live, func(i, j int) bool {
		if live[i].LayerOrder != live[j].LayerOrder {
			return live[i].LayerOrder < live[j].LayerOrder
		}
		if !live[i].EnteredAt.Equal(live[j].EnteredAt) {
			return live[i].EnteredAt.Before(live[j].EnteredAt)
		}
		return live[i].BatchID.String() < live[j].BatchID.String()
	})

	lines := make([]PlanLine, 0, len(live))
	remaining := amount
	for _, b := range live {
		if remaining <= 0 {
			break
		}
		take := math.Min(remaining, b.RemainingTonnage)
		take = Round2(take)
		if take == 0 {
			continue
		}
		lines = append(lines, PlanLine{BatchID: b.BatchID, Amount: take})
		remaining = Round2(remaining - take)
	}
	return lines
}
