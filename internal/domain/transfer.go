package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Extraction policies. Stored verbatim on transfer records.
const (
	PolicyProportionalMix = "proportional_mix"
	PolicyFifoLayers      = "fifo_layers"
)

// ValidPolicy reports whether p names a known extraction policy.
func ValidPolicy(p string) bool {
	return p == PolicyProportionalMix || p == PolicyFifoLayers
}

// TransferRecord is the immutable audit entry of one withdrawal operation.
// Exactly one of DestSiloID / SalesOrderRef is set. Breakdown holds the
// per-batch amounts as JSON and is the sole source of truth for why a
// batch's tonnage decreased.
type TransferRecord struct {
	TransferID    uuid.UUID      `gorm:"column:transfer_id;type:uuid;primaryKey" json:"transfer_id"`
	SourceSiloID  uuid.UUID      `gorm:"column:source_silo_id;type:uuid;not null;index" json:"source_silo_id"`
	DestSiloID    *uuid.UUID     `gorm:"column:dest_silo_id;type:uuid;index" json:"dest_silo_id"`
	SalesOrderRef *string        `gorm:"column:sales_order_ref;type:varchar(64);index" json:"sales_order_ref"`
	TotalAmount   float64        `gorm:"column:total_amount;type:decimal(18,2);not null" json:"total_amount"`
	Policy        string         `gorm:"column:policy;type:varchar(30);not null" json:"policy"`
	Breakdown     datatypes.JSON `gorm:"column:breakdown" json:"breakdown"`
	Notes         string         `gorm:"column:notes;type:text" json:"notes"`
	CreatedAt     time.Time      `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt     time.Time      `gorm:"column:updatedAt" json:"updatedAt"`
}

func (TransferRecord) TableName() string {
	return "TransferRecords"
}

func (t *TransferRecord) BeforeCreate(tx *gorm.DB) error {
	if t.TransferID == uuid.Nil {
		t.TransferID = uuid.New()
	}
	return nil
}
