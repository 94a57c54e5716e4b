package compat

import (
	"context"
	"fmt"
	"sort"

	"arrozal-backend/internal/application/extraction"
	"arrozal-backend/internal/application/ledger"
	"arrozal-backend/internal/domain"

	"github.com/google/uuid"
)

// Thresholds drive the advisory rules; they come from configuration, not
// constants in here.
type Thresholds struct {
	MoistureWarnPct    float64
	BrokenRecommendPct float64
}

// Rates price the move; external configuration as well.
type Rates struct {
	TransferPerTon     float64
	StoragePerTonMonth float64
}

// Report is the advisory output. It never blocks a transfer; a
// certification conflict is the highest-severity warning it can raise,
// because purity cannot be un-mixed once layers are combined.
type Report struct {
	VarietyMixFlag            bool     `json:"variety_mix_flag"`
	CertificationConflictFlag bool     `json:"certification_conflict_flag"`
	Varieties                 []string `json:"varieties"`
	Certifications            []string `json:"certifications"`
	BlendedMoisture           *float64 `json:"blended_moisture"`
	BlendedBroken             *float64 `json:"blended_broken"`
	EstimatedTransferCost     float64  `json:"estimated_transfer_cost"`
	EstimatedStorageCost      float64  `json:"estimated_storage_cost"`
	Warnings                  []string `json:"warnings"`
	Recommendations           []string `json:"recommendations"`
}

// Analyzer evaluates a prospective plan against a destination silo.
// Read-only and advisory: it persists nothing and only errors when no
// plan can be computed at all.
type Analyzer struct {
	Ledger     *ledger.Service
	Thresholds Thresholds
	Rates      Rates
}

// Analyze plans the withdrawal (propagating planning errors) and reports
// on what the destination would look like after the move. If the
// destination state cannot be read, blended fields are omitted and a
// warning is added instead.
func (a *Analyzer) Analyze(ctx context.Context, sourceSiloID, destSiloID uuid.UUID, amount float64, policy string) (*Report, error) {
	source, err := a.Ledger.GetSiloState(ctx, sourceSiloID)
	if err != nil {
		return nil, err
	}
	plan, err := extraction.PlanWithdrawal(&source.Silo, source.Batches, amount, policy)
	if err != nil {
		return nil, err
	}

	sourceByID := make(map[uuid.UUID]*domain.Batch, len(source.Batches))
	for i := range source.Batches {
		sourceByID[source.Batches[i].BatchID] = &source.Batches[i]
	}
	incoming := make([]weighted, 0, len(plan.Lines))
	for _, line := range plan.Lines {
		b := sourceByID[line.BatchID]
		incoming = append(incoming, weighted{
			variety:       b.Variety,
			certification: b.Certification,
			moisture:      b.MoisturePct,
			broken:        b.BrokenPct,
			tonnage:       line.Amount,
		})
	}

	var existing []weighted
	destReadable := true
	dest, err := a.Ledger.GetSiloState(ctx, destSiloID)
	if err != nil {
		destReadable = false
	} else {
		for _, b := range dest.Batches {
			existing = append(existing, weighted{
				variety:       b.Variety,
				certification: b.Certification,
				moisture:      b.MoisturePct,
				broken:        b.BrokenPct,
				tonnage:       b.RemainingTonnage,
			})
		}
	}

	report := buildReport(incoming, existing, amount, a.Thresholds, a.Rates)
	if !destReadable {
		report.BlendedMoisture = nil
		report.BlendedBroken = nil
		report.Warnings = append(report.Warnings,
			"Destination silo state unavailable; blended quality omitted")
	}
	return report, nil
}

type weighted struct {
	variety       string
	certification string
	moisture      float64
	broken        float64
	tonnage       float64
}

func buildReport(incoming, existing []weighted, amount float64, th Thresholds, rates Rates) *Report {
	all := append(append([]weighted{}, existing...), incoming...)

	varietySet := map[string]bool{}
	certSet := map[string]bool{}
	hasOrganic, hasConventional := false, false
	var moistureSum, brokenSum, tonnageSum float64
	for _, w := range all {
		if w.variety != "" {
			varietySet[w.variety] = true
		}
		cert := w.certification
		if cert == "" {
			cert = domain.CertConventional
		}
		certSet[cert] = true
		if cert == domain.CertOrganic {
			hasOrganic = true
		} else {
			hasConventional = true
		}
		moistureSum += w.moisture * w.tonnage
		brokenSum += w.broken * w.tonnage
		tonnageSum += w.tonnage
	}

	report := &Report{
		VarietyMixFlag:            len(varietySet) > 1,
		CertificationConflictFlag: hasOrganic && hasConventional,
		Varieties:                 sortedKeys(varietySet),
		Certifications:            sortedKeys(certSet),
		EstimatedTransferCost:     extraction.Round2(amount * rates.TransferPerTon),
		EstimatedStorageCost:      extraction.Round2(amount * rates.StoragePerTonMonth),
		Warnings:                  []string{},
		Recommendations:           []string{},
	}

	if tonnageSum > 0 {
		moisture := extraction.Round2(moistureSum / tonnageSum)
		broken := extraction.Round2(brokenSum / tonnageSum)
		report.BlendedMoisture = &moisture
		report.BlendedBroken = &broken

		if moisture > th.MoistureWarnPct {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"Blended moisture %.2f%% exceeds %.2f%%; consider drying before storage", moisture, th.MoistureWarnPct))
		}
		if broken > th.BrokenRecommendPct {
			report.Recommendations = append(report.Recommendations, fmt.Sprintf(
				"Blended broken grain %.2f%% exceeds %.2f%%; consider routing through cleaning", broken, th.BrokenRecommendPct))
		}
	}

	if report.CertificationConflictFlag {
		report.Warnings = append(report.Warnings,
			"Mixing organic and conventional stock: certification purity cannot be recovered")
	}
	if report.VarietyMixFlag {
		report.Recommendations = append(report.Recommendations,
			"Destination will hold more than one variety; verify downstream requirements")
	}
	return report
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
