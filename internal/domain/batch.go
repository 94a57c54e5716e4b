package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Certification tags. Anything that is not organic counts as conventional
// for the purity-conflict check.
const (
	CertOrganic      = "organic"
	CertConventional = "conventional"
)

// Batch is a provenance-tagged quantity of rice inside exactly one silo.
// Provenance (delivery/plot refs, variety, certification, quality) is
// immutable; only RemainingTonnage moves, and only downward. A drained
// batch is kept for audit and excluded from withdrawal plans.
type Batch struct {
	BatchID          uuid.UUID  `gorm:"column:batch_id;type:uuid;primaryKey" json:"batch_id"`
	SiloID           uuid.UUID  `gorm:"column:silo_id;type:uuid;not null;index" json:"silo_id"`
	DeliveryRef      string     `gorm:"column:delivery_ref;type:varchar(64)" json:"delivery_ref"`
	PlotRef          string     `gorm:"column:plot_ref;type:varchar(64)" json:"plot_ref"`
	OriginBatchID    *uuid.UUID `gorm:"column:origin_batch_id;type:uuid" json:"origin_batch_id"`
	Variety          string     `gorm:"column:variety;type:varchar(50);not null" json:"variety"`
	Certification    string     `gorm:"column:certification;type:varchar(20);not null;default:conventional" json:"certification"`
	MoisturePct      float64    `gorm:"column:moisture_pct;type:decimal(5,2)" json:"moisture_pct"`
	BrokenPct        float64    `gorm:"column:broken_pct;type:decimal(5,2)" json:"broken_pct"`
	OriginalTonnage  float64    `gorm:"column:original_tonnage;type:decimal(18,2);not null" json:"original_tonnage"`
	RemainingTonnage float64    `gorm:"column:remaining_tonnage;type:decimal(18,2);not null" json:"remaining_tonnage"`
	LayerOrder       int        `gorm:"column:layer_order;not null" json:"layer_order"`
	EnteredAt        time.Time  `gorm:"column:entered_at;not null" json:"entered_at"`
	CreatedAt        time.Time  `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt        time.Time  `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Batch) TableName() string {
	return "Batches"
}

func (b *Batch) BeforeCreate(tx *gorm.DB) error {
	if b.BatchID == uuid.Nil {
		b.BatchID = uuid.New()
	}
	if b.EnteredAt.IsZero() {
		b.EnteredAt = time.Now()
	}
	return nil
}

// Exhausted reports whether the batch has been fully drained.
func (b *Batch) Exhausted() bool {
	return b.RemainingTonnage <= 0
}

// Provenance is the immutable part of a batch, carried over verbatim when a
// transfer creates a new layer in a destination silo.
type Provenance struct {
	DeliveryRef   string  `json:"delivery_ref"`
	PlotRef       string  `json:"plot_ref"`
	Variety       string  `json:"variety"`
	Certification string  `json:"certification"`
	MoisturePct   float64 `json:"moisture_pct"`
	BrokenPct     float64 `json:"broken_pct"`
}

// ProvenanceOf extracts the immutable provenance fields of a batch.
func ProvenanceOf(b *Batch) Provenance {
	return Provenance{
		DeliveryRef:   b.DeliveryRef,
		PlotRef:       b.PlotRef,
		Variety:       b.Variety,
		Certification: b.Certification,
		MoisturePct:   b.MoisturePct,
		BrokenPct:     b.BrokenPct,
	}
}
