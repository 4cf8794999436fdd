package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Model is embedded by every mutable entity.
type Model struct {
	ID        uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate UUID
func (m *Model) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// All lists every table in migration order.
func All() []interface{} {
	return []interface{}{
		&Vendor{},
		&Customer{},
		&Software{},
		&SoftwareVersion{},
		&Package{},
		&PackageItem{},
		&LPAR{},
		&LparSoftware{},
		&AuditLog{},
	}
}
