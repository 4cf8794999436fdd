package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditAction string

const (
	ActionCreate        AuditAction = "create"
	ActionUpdate        AuditAction = "update"
	ActionDelete        AuditAction = "delete"
	ActionRollback      AuditAction = "rollback"
	ActionVersionUpdate AuditAction = "version_update"
	ActionClone         AuditAction = "clone"
	ActionDeploy        AuditAction = "deploy"
)

// Entity type tags used in audit entries.
const (
	EntityVendor          = "vendor"
	EntityCustomer        = "customer"
	EntitySoftware        = "software"
	EntitySoftwareVersion = "software_version"
	EntityPackage         = "package"
	EntityPackageItem     = "package_item"
	EntityLPAR            = "lpar"
	EntityLparSoftware    = "lpar_software"
)

// AuditLog is append-only: rows are inserted and never updated or deleted.
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:varchar(36);primaryKey" json:"id"`
	EntityType string         `gorm:"size:50;not null;index:idx_audit_entity" json:"entity_type"`
	EntityID   uuid.UUID      `gorm:"type:varchar(36);not null;index:idx_audit_entity" json:"entity_id"`
	Action     AuditAction    `gorm:"size:30;not null;index" json:"action"`
	Changes    datatypes.JSON `json:"changes"` // details of what changed
	UserID     *string        `gorm:"size:100;index" json:"user_id"` // nullable (system actions)
	Timestamp  time.Time      `gorm:"not null;index" json:"timestamp"`
}

func (AuditLog) TableName() string { return "audit_log" }

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
