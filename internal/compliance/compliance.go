// Package compliance classifies an LPAR's installed software against the
// items of a package.
package compliance

import (
	"math"

	"github.com/google/uuid"

	"lpar_inventory/internal/models"
	"lpar_inventory/internal/versioncmp"
)

type Status string

const (
	StatusMissing         Status = "MISSING"
	StatusRolledBack      Status = "ROLLED_BACK"
	StatusVersionMismatch Status = "VERSION_MISMATCH"
	StatusPtfMismatch     Status = "PTF_MISMATCH"
	StatusCompliant       Status = "COMPLIANT"
)

// Priority ranks severity: 1 is the worst (MISSING), 5 is COMPLIANT.
func (s Status) Priority() int {
	switch s {
	case StatusMissing:
		return 1
	case StatusRolledBack:
		return 2
	case StatusVersionMismatch:
		return 3
	case StatusPtfMismatch:
		return 4
	default:
		return 5
	}
}

// WorstStatus picks the most severe status; no input is COMPLIANT.
func WorstStatus(statuses ...Status) Status {
	worst := StatusCompliant
	for _, s := range statuses {
		if s.Priority() < worst.Priority() {
			worst = s
		}
	}
	return worst
}

type Row struct {
	SoftwareID   uuid.UUID               `json:"software_id"`
	SoftwareName string                  `json:"software_name,omitempty"`
	Required     versioncmp.Designation  `json:"required"`
	Installed    *versioncmp.Designation `json:"installed,omitempty"`
	Status       Status                  `json:"status"`
}

type Result struct {
	Rows []Row `json:"rows"`
}

func (r Result) Worst() Status {
	statuses := make([]Status, len(r.Rows))
	for i, row := range r.Rows {
		statuses[i] = row.Status
	}
	return WorstStatus(statuses...)
}

func (r Result) Compliant() bool {
	return r.Worst() == StatusCompliant
}

func (r Result) Count(s Status) int {
	n := 0
	for _, row := range r.Rows {
		if row.Status == s {
			n++
		}
	}
	return n
}

// RequiredDesignation is the version an item pins. Items whose version
// relation was not loaded yield an empty designation.
func RequiredDesignation(item models.PackageItem) versioncmp.Designation {
	if item.SoftwareVersion == nil {
		return versioncmp.Designation{}
	}
	return versioncmp.New(item.SoftwareVersion.Version, item.SoftwareVersion.PtfLevel)
}

// InstalledDesignation is the current version snapshot of an installation.
func InstalledDesignation(ls models.LparSoftware) versioncmp.Designation {
	return versioncmp.New(ls.CurrentVersion, ls.CurrentPtfLevel)
}

// IndexBySoftware maps software id to installation.
func IndexBySoftware(installed []models.LparSoftware) map[uuid.UUID]*models.LparSoftware {
	idx := make(map[uuid.UUID]*models.LparSoftware, len(installed))
	for i := range installed {
		idx[installed[i].SoftwareID] = &installed[i]
	}
	return idx
}

// Classify returns the status of one item given its installation (nil when
// absent). The required flag is not consulted here. An item whose pinned
// version was not loaded cannot be proven compliant and is a mismatch.
func Classify(item models.PackageItem, installed *models.LparSoftware) Status {
	if installed == nil {
		return StatusMissing
	}
	if installed.RolledBack {
		return StatusRolledBack
	}
	if item.SoftwareVersion == nil {
		return StatusVersionMismatch
	}
	req := RequiredDesignation(item)
	have := InstalledDesignation(*installed)
	if have.Version != req.Version {
		return StatusVersionMismatch
	}
	if have.Ptf != req.Ptf {
		return StatusPtfMismatch
	}
	return StatusCompliant
}

// Evaluate classifies every package item. Missing items are reported only
// when they are flagged required.
func Evaluate(installed []models.LparSoftware, items []models.PackageItem) Result {
	idx := IndexBySoftware(installed)
	res := Result{Rows: make([]Row, 0, len(items))}

	for _, item := range items {
		ls := idx[item.SoftwareID]
		status := Classify(item, ls)
		if status == StatusMissing && !item.Required {
			continue
		}
		row := Row{
			SoftwareID: item.SoftwareID,
			Required:   RequiredDesignation(item),
			Status:     status,
		}
		if item.Software != nil {
			row.SoftwareName = item.Software.Name
		}
		if ls != nil {
			d := InstalledDesignation(*ls)
			row.Installed = &d
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}

// Score is the percentage of package items whose software is installed,
// rounded to the nearest integer. It uses the same classification as
// Evaluate and counts every item that is not MISSING. An empty package
// scores 100.
func Score(installed []models.LparSoftware, items []models.PackageItem) int {
	if len(items) == 0 {
		return 100
	}
	idx := IndexBySoftware(installed)
	present := 0
	for _, item := range items {
		if Classify(item, idx[item.SoftwareID]) != StatusMissing {
			present++
		}
	}
	return int(math.Round(float64(present) * 100 / float64(len(items))))
}
