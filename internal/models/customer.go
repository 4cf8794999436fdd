package models

type Customer struct {
	Model
	Name        string `gorm:"size:100;not null" json:"name"`
	Code        string `gorm:"size:20;uniqueIndex;not null" json:"code"`
	Description string `gorm:"size:500" json:"description"`
	Active      bool   `gorm:"not null" json:"active"`

	LPARs []LPAR `gorm:"foreignKey:CustomerID" json:"lpars,omitempty"`
}
