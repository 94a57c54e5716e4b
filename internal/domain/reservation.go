package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reservation is a committed claim on a specific batch tied to an external
// sales order. Assignment deducts the tonnage from the batch immediately,
// so a reservation row records a withdrawal that already happened.
type Reservation struct {
	ReservationID uuid.UUID `gorm:"column:reservation_id;type:uuid;primaryKey" json:"reservation_id"`
	SalesOrderRef string    `gorm:"column:sales_order_ref;type:varchar(64);not null;index" json:"sales_order_ref"`
	BatchID       uuid.UUID `gorm:"column:batch_id;type:uuid;not null;index" json:"batch_id"`
	SiloID        uuid.UUID `gorm:"column:silo_id;type:uuid;not null" json:"silo_id"`
	TransferID    uuid.UUID `gorm:"column:transfer_id;type:uuid;not null" json:"transfer_id"`
	Tonnage       float64   `gorm:"column:tonnage;type:decimal(18,2);not null" json:"tonnage"`
	CreatedAt     time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Reservation) TableName() string {
	return "Reservations"
}

func (r *Reservation) BeforeCreate(tx *gorm.DB) error {
	if r.ReservationID == uuid.Nil {
		r.ReservationID = uuid.New()
	}
	return nil
}
