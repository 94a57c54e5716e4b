package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SiloType values match the physical unit classes of the plant.
const (
	SiloTypeStorage    = "storage"
	SiloTypeDrying     = "drying"
	SiloTypeAeration   = "aeration"
	SiloTypeCleaning   = "cleaning"
	SiloTypePreStorage = "pre-storage"
)

// ValidSiloType reports whether t is one of the known silo types.
func ValidSiloType(t string) bool {
	switch t {
	case SiloTypeStorage, SiloTypeDrying, SiloTypeAeration, SiloTypeCleaning, SiloTypePreStorage:
		return true
	}
	return false
}

// Silo is a physical storage unit. Occupancy is the cached sum of the
// remaining tonnage of its batches and is updated in the same transaction
// as every batch mutation.
type Silo struct {
	SiloID      uuid.UUID `gorm:"column:silo_id;type:uuid;primaryKey" json:"silo_id"`
	Name        string    `gorm:"column:name;type:varchar(100);not null" json:"name"`
	Type        string    `gorm:"column:type;type:varchar(20);not null;default:storage" json:"type"`
	MaxCapacity float64   `gorm:"column:max_capacity;type:decimal(18,2);not null" json:"max_capacity"`
	DiameterM   float64   `gorm:"column:diameter_m;type:decimal(10,2)" json:"diameter_m"`
	Occupancy   float64   `gorm:"column:occupancy;type:decimal(18,2);not null;default:0" json:"occupancy"`
	CreatedAt   time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Silo) TableName() string {
	return "Silos"
}

func (s *Silo) BeforeCreate(tx *gorm.DB) error {
	if s.SiloID == uuid.Nil {
		s.SiloID = uuid.New()
	}
	return nil
}

// Available returns the free capacity of the silo.
func (s *Silo) Available() float64 {
	return s.MaxCapacity - s.Occupancy
}
