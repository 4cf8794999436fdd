// Package deploy plans and applies package deployments to LPARs.
package deploy

import (
	"github.com/google/uuid"

	"lpar_inventory/internal/compliance"
	"lpar_inventory/internal/models"
	"lpar_inventory/internal/versioncmp"
)

// Upgrade is a package item whose software is installed at a lower level.
type Upgrade struct {
	Item    models.PackageItem     `json:"item"`
	Current versioncmp.Designation `json:"current"`
}

type Plan struct {
	ToInstall []models.PackageItem  `json:"to_install"`
	ToUpgrade []Upgrade             `json:"to_upgrade"`
	ToRemove  []models.LparSoftware `json:"to_remove"`
	Unchanged []models.LparSoftware `json:"unchanged"`
}

// PlanDeployment partitions the target items against what is installed.
// An item is an upgrade when the installed version+PTF orders below the
// required one; installed software not named by the package goes to ToRemove.
func PlanDeployment(installed []models.LparSoftware, items []models.PackageItem) Plan {
	plan := Plan{
		ToInstall: []models.PackageItem{},
		ToUpgrade: []Upgrade{},
		ToRemove:  []models.LparSoftware{},
		Unchanged: []models.LparSoftware{},
	}
	idx := compliance.IndexBySoftware(installed)
	target := make(map[uuid.UUID]struct{}, len(items))

	for _, item := range items {
		target[item.SoftwareID] = struct{}{}
		ls, ok := idx[item.SoftwareID]
		if !ok {
			plan.ToInstall = append(plan.ToInstall, item)
			continue
		}
		have := compliance.InstalledDesignation(*ls)
		if versioncmp.Compare(have, compliance.RequiredDesignation(item)) < 0 {
			plan.ToUpgrade = append(plan.ToUpgrade, Upgrade{Item: item, Current: have})
		} else {
			plan.Unchanged = append(plan.Unchanged, *ls)
		}
	}

	for _, ls := range installed {
		if _, ok := target[ls.SoftwareID]; !ok {
			plan.ToRemove = append(plan.ToRemove, ls)
		}
	}
	return plan
}

type ChangeKind string

const (
	ChangeInstall   ChangeKind = "install"
	ChangeUpgrade   ChangeKind = "upgrade"
	ChangeDowngrade ChangeKind = "downgrade"
	ChangeNone      ChangeKind = "no_change"
)

// Impact is one line of a deployment preview.
type Impact struct {
	SoftwareID     uuid.UUID               `json:"software_id"`
	SoftwareName   string                  `json:"software_name"`
	CurrentVersion *versioncmp.Designation `json:"current_version"`
	TargetVersion  versioncmp.Designation  `json:"target_version"`
	Required       bool                    `json:"required"`
	Change         ChangeKind              `json:"change_type"`
}

// ImpactOf classifies each item the way Apply would change it.
func ImpactOf(installed []models.LparSoftware, items []models.PackageItem) []Impact {
	idx := compliance.IndexBySoftware(installed)
	out := make([]Impact, 0, len(items))

	for _, item := range items {
		imp := Impact{
			SoftwareID:    item.SoftwareID,
			TargetVersion: compliance.RequiredDesignation(item),
			Required:      item.Required,
			Change:        ChangeInstall,
		}
		if item.Software != nil {
			imp.SoftwareName = item.Software.Name
		}
		if ls, ok := idx[item.SoftwareID]; ok {
			have := compliance.InstalledDesignation(*ls)
			imp.CurrentVersion = &have
			switch c := versioncmp.Compare(have, imp.TargetVersion); {
			case c < 0:
				imp.Change = ChangeUpgrade
			case c > 0:
				imp.Change = ChangeDowngrade
			default:
				imp.Change = ChangeNone
			}
		}
		out = append(out, imp)
	}
	return out
}
