package models

import (
	"time"

	"github.com/google/uuid"
)

// Software is a vendor product. CurrentVersionID, when set, points at one of
// its own versions; it is a plain column to keep the two tables acyclic.
type Software struct {
	Model
	Name             string     `gorm:"size:100;not null" json:"name"`
	VendorID         uuid.UUID  `gorm:"type:varchar(36);index;not null" json:"vendor_id"`
	Description      string     `gorm:"size:500" json:"description"`
	Active           bool       `gorm:"not null" json:"active"`
	CurrentVersionID *uuid.UUID `gorm:"type:varchar(36)" json:"current_version_id"`

	Vendor   *Vendor           `gorm:"foreignKey:VendorID" json:"vendor,omitempty"`
	Versions []SoftwareVersion `gorm:"foreignKey:SoftwareID" json:"versions,omitempty"`
}

func (Software) TableName() string { return "software" }

type SoftwareVersion struct {
	Model
	SoftwareID   uuid.UUID  `gorm:"type:varchar(36);index;not null" json:"software_id"`
	Version      string     `gorm:"size:50;not null" json:"version"`
	PtfLevel     *string    `gorm:"size:50" json:"ptf_level"`
	ReleaseDate  time.Time  `json:"release_date"`
	EndOfSupport *time.Time `json:"end_of_support"`
	ReleaseNotes string     `gorm:"type:text" json:"release_notes"`
	IsCurrent    bool       `gorm:"not null" json:"is_current"`

	Software *Software `gorm:"foreignKey:SoftwareID" json:"software,omitempty"`
}

func (SoftwareVersion) TableName() string { return "software_versions" }
