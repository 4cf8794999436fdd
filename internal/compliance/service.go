package compliance

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lpar_inventory/internal/apperr"
	"lpar_inventory/internal/models"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log}
}

// Report is the compliance view of one LPAR against one package.
type Report struct {
	LparID    uuid.UUID  `json:"lpar_id"`
	PackageID *uuid.UUID `json:"package_id"`
	Rows      []Row      `json:"rows"`
	Worst     Status     `json:"worst_status"`
	Compliant bool       `json:"compliant"`
	Score     int        `json:"score"`
}

// ForLPAR evaluates an LPAR against packageID, or against its current
// package when packageID is nil. An LPAR without a package yields an empty,
// fully compatible report.
func (s *Service) ForLPAR(ctx context.Context, lparID uuid.UUID, packageID *uuid.UUID) (Report, error) {
	tx := s.db.WithContext(ctx)

	var lpar models.LPAR
	if err := tx.Where("id = ?", lparID).First(&lpar).Error; err != nil {
		return Report{}, apperr.Wrap("load lpar", "lpar", err)
	}
	if packageID == nil {
		packageID = lpar.CurrentPackageID
	}

	report := Report{LparID: lparID, PackageID: packageID, Rows: []Row{}, Worst: StatusCompliant, Compliant: true, Score: 100}
	if packageID == nil {
		return report, nil
	}

	var items []models.PackageItem
	if err := tx.Preload("Software").Preload("SoftwareVersion").
		Where("package_id = ?", *packageID).Order("order_index ASC").
		Find(&items).Error; err != nil {
		return Report{}, apperr.Wrap("load package items", "package", err)
	}
	if len(items) == 0 {
		var n int64
		if err := tx.Model(&models.Package{}).Where("id = ?", *packageID).Count(&n).Error; err != nil {
			return Report{}, apperr.Wrap("load package", "package", err)
		}
		if n == 0 {
			return Report{}, apperr.NotFound("package")
		}
	}

	var installed []models.LparSoftware
	if err := tx.Where("lpar_id = ?", lparID).Find(&installed).Error; err != nil {
		return Report{}, apperr.Wrap("load installations", "lpar", err)
	}

	res := Evaluate(installed, items)
	report.Rows = res.Rows
	report.Worst = res.Worst()
	report.Compliant = res.Compliant()
	report.Score = Score(installed, items)

	s.log.Debug("Compliance evaluated",
		zap.String("lpar_id", lparID.String()),
		zap.String("package_id", packageID.String()),
		zap.String("worst_status", string(report.Worst)),
		zap.Int("score", report.Score))
	return report, nil
}
