package deploy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lpar_inventory/internal/apperr"
	"lpar_inventory/internal/audit"
	"lpar_inventory/internal/compliance"
	"lpar_inventory/internal/models"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log}
}

type LparResult struct {
	LparID    uuid.UUID `json:"lpar_id"`
	LparCode  string    `json:"lpar_code"`
	Installed int       `json:"installed"`
	Updated   int       `json:"updated"`
}

type Report struct {
	PackageID uuid.UUID    `json:"package_id"`
	Items     int          `json:"items"`
	LPARs     []LparResult `json:"lpars"`
}

type installKey struct {
	lpar, software uuid.UUID
}

// Apply deploys a package to every listed LPAR in one transaction: either
// every installation, package pointer and audit entry is written, or none.
// Installed software that the package does not name is left in place.
func (s *Service) Apply(ctx context.Context, lparIDs []uuid.UUID, packageID uuid.UUID) (Report, error) {
	lparIDs = dedupe(lparIDs)
	if len(lparIDs) == 0 {
		return Report{}, apperr.Validation("lpar_ids", "select at least one LPAR")
	}

	report := Report{PackageID: packageID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pkg, items, err := loadPackage(tx, packageID)
		if err != nil {
			return err
		}
		report.Items = len(items)

		var lpars []models.LPAR
		if err := tx.Where("id IN ?", lparIDs).Find(&lpars).Error; err != nil {
			return apperr.Wrap("load lpars", "lpar", err)
		}
		if len(lpars) != len(lparIDs) {
			return apperr.NotFound("lpar")
		}

		softwareIDs := make([]uuid.UUID, 0, len(items))
		for _, it := range items {
			softwareIDs = append(softwareIDs, it.SoftwareID)
		}
		existing := map[installKey]models.LparSoftware{}
		if len(softwareIDs) > 0 {
			var rows []models.LparSoftware
			if err := tx.Where("lpar_id IN ? AND software_id IN ?", lparIDs, softwareIDs).Find(&rows).Error; err != nil {
				return apperr.Wrap("load installations", "lpar", err)
			}
			for _, r := range rows {
				existing[installKey{r.LparID, r.SoftwareID}] = r
			}
		}

		now := time.Now().UTC()
		var created []models.LparSoftware
		entries := make([]audit.Entry, 0, len(lpars))

		for _, lpar := range lpars {
			res := LparResult{LparID: lpar.ID, LparCode: lpar.Code}
			for _, it := range items {
				target := compliance.RequiredDesignation(it)
				cur, ok := existing[installKey{lpar.ID, it.SoftwareID}]
				if !ok {
					created = append(created, models.LparSoftware{
						LparID:          lpar.ID,
						SoftwareID:      it.SoftwareID,
						CurrentVersion:  target.Version,
						CurrentPtfLevel: target.PtfPtr(),
						InstalledDate:   now,
					})
					res.Installed++
					continue
				}
				if err := tx.Model(&models.LparSoftware{}).Where("id = ?", cur.ID).Updates(map[string]interface{}{
					"previous_version":   cur.CurrentVersion,
					"previous_ptf_level": cur.CurrentPtfLevel,
					"current_version":    target.Version,
					"current_ptf_level":  target.PtfPtr(),
					"installed_date":     now,
					"rolled_back":        false,
					"rolled_back_at":     nil,
					"rollback_reason":    nil,
				}).Error; err != nil {
					return apperr.Wrap("update installation", "installation", err)
				}
				res.Updated++
			}
			report.LPARs = append(report.LPARs, res)
			entries = append(entries, audit.Entry{
				EntityType: models.EntityLPAR,
				EntityID:   lpar.ID,
				Action:     models.ActionDeploy,
				Changes: map[string]interface{}{
					"package_id":      pkg.ID,
					"package_code":    pkg.Code,
					"package_version": pkg.Version,
					"items_installed": res.Installed,
					"items_updated":   res.Updated,
				},
			})
		}

		if len(created) > 0 {
			if err := tx.CreateInBatches(&created, 100).Error; err != nil {
				return apperr.Wrap("create installations", "installation", err)
			}
		}
		if err := tx.Model(&models.LPAR{}).Where("id IN ?", lparIDs).
			Update("current_package_id", pkg.ID).Error; err != nil {
			return apperr.Wrap("assign package", "lpar", err)
		}
		return audit.RecordAll(ctx, tx, entries)
	})
	if err != nil {
		s.log.Error("Package deployment failed",
			zap.String("package_id", packageID.String()),
			zap.Int("lpars", len(lparIDs)),
			zap.Error(err))
		return Report{}, err
	}

	s.log.Info("Package deployed",
		zap.String("package_id", packageID.String()),
		zap.Int("lpars", len(report.LPARs)),
		zap.Int("items", report.Items))
	return report, nil
}

// Preview is the read-only impact of deploying packageID to lparID.
func (s *Service) Preview(ctx context.Context, lparID, packageID uuid.UUID) ([]Impact, error) {
	installed, items, err := s.load(ctx, lparID, packageID)
	if err != nil {
		return nil, err
	}
	return ImpactOf(installed, items), nil
}

// PlanFor loads current state and partitions it with PlanDeployment.
func (s *Service) PlanFor(ctx context.Context, lparID, packageID uuid.UUID) (Plan, error) {
	installed, items, err := s.load(ctx, lparID, packageID)
	if err != nil {
		return Plan{}, err
	}
	return PlanDeployment(installed, items), nil
}

type LparStatus struct {
	LparID        uuid.UUID `json:"lpar_id"`
	LparCode      string    `json:"lpar_code"`
	LparName      string    `json:"lpar_name"`
	CustomerName  string    `json:"customer_name"`
	IsCurrent     bool      `json:"is_current"`
	ChangesNeeded int       `json:"changes_needed"`
	NewInstalls   int       `json:"new_installs"`
	Status        string    `json:"status"`
	Score         int       `json:"score"`
}

// Status lists every active LPAR with how far it is from packageID, ordered
// by customer name, then LPAR name.
func (s *Service) Status(ctx context.Context, packageID uuid.UUID) ([]LparStatus, error) {
	tx := s.db.WithContext(ctx)
	_, items, err := loadPackage(tx, packageID)
	if err != nil {
		return nil, err
	}

	var lpars []models.LPAR
	if err := tx.Joins("Customer").Preload("Software").
		Where("lpars.active = ?", true).
		Order(clause.OrderByColumn{Column: clause.Column{Table: "Customer", Name: "name"}}).
		Order(clause.OrderByColumn{Column: clause.Column{Table: "lpars", Name: "name"}}).
		Find(&lpars).Error; err != nil {
		return nil, apperr.Wrap("load lpars", "lpar", err)
	}

	out := make([]LparStatus, 0, len(lpars))
	for _, l := range lpars {
		st := LparStatus{
			LparID:    l.ID,
			LparCode:  l.Code,
			LparName:  l.Name,
			IsCurrent: l.CurrentPackageID != nil && *l.CurrentPackageID == packageID,
		}
		if l.Customer != nil {
			st.CustomerName = l.Customer.Name
		}
		for _, imp := range ImpactOf(l.Software, items) {
			switch imp.Change {
			case ChangeInstall:
				st.NewInstalls++
			case ChangeUpgrade, ChangeDowngrade:
				st.ChangesNeeded++
			case ChangeNone:
				// equal ordering but different spelling, e.g. "2.4" and "2.4.0"
				if *imp.CurrentVersion != imp.TargetVersion {
					st.ChangesNeeded++
				}
			}
		}
		st.Score = compliance.Score(l.Software, items)
		switch {
		case st.IsCurrent:
			st.Status = "compliant"
		case st.ChangesNeeded+st.NewInstalls > 0:
			st.Status = "needs_update"
		default:
			st.Status = "unknown"
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, lparID, packageID uuid.UUID) ([]models.LparSoftware, []models.PackageItem, error) {
	tx := s.db.WithContext(ctx)

	var n int64
	if err := tx.Model(&models.LPAR{}).Where("id = ?", lparID).Count(&n).Error; err != nil {
		return nil, nil, apperr.Wrap("load lpar", "lpar", err)
	}
	if n == 0 {
		return nil, nil, apperr.NotFound("lpar")
	}

	_, items, err := loadPackage(tx, packageID)
	if err != nil {
		return nil, nil, err
	}

	var installed []models.LparSoftware
	if err := tx.Where("lpar_id = ?", lparID).Find(&installed).Error; err != nil {
		return nil, nil, apperr.Wrap("load installations", "lpar", err)
	}
	return installed, items, nil
}

func loadPackage(tx *gorm.DB, packageID uuid.UUID) (models.Package, []models.PackageItem, error) {
	var pkg models.Package
	if err := tx.Where("id = ?", packageID).First(&pkg).Error; err != nil {
		return pkg, nil, apperr.Wrap("load package", "package", err)
	}
	var items []models.PackageItem
	if err := tx.Preload("Software").Preload("SoftwareVersion").
		Where("package_id = ?", packageID).Order("order_index ASC").Find(&items).Error; err != nil {
		return pkg, nil, apperr.Wrap("load package items", "package", err)
	}
	return pkg, items, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
