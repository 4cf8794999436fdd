package models

import (
	"time"

	"github.com/google/uuid"
)

type LPAR struct {
	Model
	Name             string     `gorm:"size:100;not null" json:"name"`
	Code             string     `gorm:"size:20;uniqueIndex;not null" json:"code"`
	CustomerID       uuid.UUID  `gorm:"type:varchar(36);index;not null" json:"customer_id"`
	Description      string     `gorm:"size:500" json:"description"`
	Active           bool       `gorm:"not null" json:"active"`
	CurrentPackageID *uuid.UUID `gorm:"type:varchar(36);index" json:"current_package_id"`

	Customer       *Customer      `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	CurrentPackage *Package       `gorm:"foreignKey:CurrentPackageID" json:"current_package,omitempty"`
	Software       []LparSoftware `gorm:"foreignKey:LparID" json:"software,omitempty"`
}

func (LPAR) TableName() string { return "lpars" }

// LparSoftware is an installation snapshot. Version strings are copied from
// the SoftwareVersion at install time and stay stable if that row changes.
type LparSoftware struct {
	Model
	LparID           uuid.UUID  `gorm:"type:varchar(36);not null;uniqueIndex:idx_lpar_software" json:"lpar_id"`
	SoftwareID       uuid.UUID  `gorm:"type:varchar(36);not null;uniqueIndex:idx_lpar_software" json:"software_id"`
	CurrentVersion   string     `gorm:"size:50;not null" json:"current_version"`
	CurrentPtfLevel  *string    `gorm:"size:50" json:"current_ptf_level"`
	PreviousVersion  *string    `gorm:"size:50" json:"previous_version"`
	PreviousPtfLevel *string    `gorm:"size:50" json:"previous_ptf_level"`
	InstalledDate    time.Time  `json:"installed_date"`
	RolledBack       bool       `gorm:"not null" json:"rolled_back"`
	RolledBackAt     *time.Time `json:"rolled_back_at"`
	RollbackReason   *string    `gorm:"size:500" json:"rollback_reason"`

	Software *Software `gorm:"foreignKey:SoftwareID" json:"software,omitempty"`
}

func (LparSoftware) TableName() string { return "lpar_software" }
