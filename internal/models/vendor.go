package models

type Vendor struct {
	Model
	Name         string `gorm:"size:100;not null" json:"name"`
	Code         string `gorm:"size:20;uniqueIndex;not null" json:"code"`
	Website      string `gorm:"size:500" json:"website"`
	ContactEmail string `gorm:"size:255" json:"contact_email"`
	Active       bool   `gorm:"not null" json:"active"`

	Software []Software `gorm:"foreignKey:VendorID" json:"software,omitempty"`
}
