package models

import (
	"time"

	"github.com/google/uuid"
)

type Package struct {
	Model
	Name        string    `gorm:"size:100;not null" json:"name"`
	Code        string    `gorm:"size:20;not null;uniqueIndex:idx_package_code_version" json:"code"`
	Version     string    `gorm:"size:50;not null;uniqueIndex:idx_package_code_version" json:"version"`
	Description string    `gorm:"size:500" json:"description"`
	ReleaseDate time.Time `json:"release_date"`
	Active      bool      `gorm:"not null" json:"active"`

	Items []PackageItem `gorm:"foreignKey:PackageID" json:"items,omitempty"`
}

// PackageItem pins one software of a package to a required version.
// Required is kept for older packages; catalog writes it as true.
type PackageItem struct {
	Model
	PackageID         uuid.UUID `gorm:"type:varchar(36);not null;uniqueIndex:idx_package_item_software;uniqueIndex:idx_package_item_order" json:"package_id"`
	SoftwareID        uuid.UUID `gorm:"type:varchar(36);not null;uniqueIndex:idx_package_item_software" json:"software_id"`
	SoftwareVersionID uuid.UUID `gorm:"type:varchar(36);not null;index" json:"software_version_id"`
	Required          bool      `gorm:"not null" json:"required"`
	OrderIndex        int       `gorm:"not null;uniqueIndex:idx_package_item_order" json:"order_index"`

	Software        *Software        `gorm:"foreignKey:SoftwareID" json:"software,omitempty"`
	SoftwareVersion *SoftwareVersion `gorm:"foreignKey:SoftwareVersionID" json:"software_version,omitempty"`
}
