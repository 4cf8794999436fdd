// Package seed loads a YAML fixture of vendors, software, packages, customers
// and LPARs into the inventory. Seeding is idempotent: rows are matched on
// their natural keys and only missing rows are created.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"lpar_inventory/internal/models"
	"lpar_inventory/internal/validation"
	"lpar_inventory/internal/versioncmp"
)

//go:embed default.yaml
var defaultFixture []byte

const dateLayout = "2006-01-02"

// Date is a calendar day written as YYYY-MM-DD.
type Date struct{ time.Time }

func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	t, err := time.Parse(dateLayout, value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid date %q, want YYYY-MM-DD", value.Line, value.Value)
	}
	d.Time = t
	return nil
}

type Fixture struct {
	Vendors   []VendorFixture   `yaml:"vendors"`
	Packages  []PackageFixture  `yaml:"packages"`
	Customers []CustomerFixture `yaml:"customers"`
}

type VendorFixture struct {
	Code         string            `yaml:"code"`
	Name         string            `yaml:"name"`
	Website      string            `yaml:"website"`
	ContactEmail string            `yaml:"contact_email"`
	Software     []SoftwareFixture `yaml:"software"`
}

type SoftwareFixture struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Versions    []VersionFixture `yaml:"versions"`
}

type VersionFixture struct {
	Version      string `yaml:"version"`
	PtfLevel     string `yaml:"ptf_level"`
	ReleaseDate  Date   `yaml:"release_date"`
	EndOfSupport *Date  `yaml:"end_of_support"`
	ReleaseNotes string `yaml:"release_notes"`
	Current      bool   `yaml:"current"`
}

// Pin names a catalogued version by software name and designation.
type Pin struct {
	Software string `yaml:"software"`
	Version  string `yaml:"version"`
	PtfLevel string `yaml:"ptf_level"`
	// Required defaults to true for package items.
	Required *bool `yaml:"required"`
}

// InstallFixture is an installation snapshot; previous_* records the level
// it was upgraded from.
type InstallFixture struct {
	Pin              `yaml:",inline"`
	PreviousVersion  string `yaml:"previous_version"`
	PreviousPtfLevel string `yaml:"previous_ptf_level"`
	InstalledDate    *Date  `yaml:"installed_date"`
}

type PackageFixture struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	ReleaseDate Date   `yaml:"release_date"`
	Items       []Pin  `yaml:"items"`
}

type CustomerFixture struct {
	Code        string        `yaml:"code"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	LPARs       []LPARFixture `yaml:"lpars"`
}

type LPARFixture struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Package is "CODE@VERSION" of the package the LPAR is on.
	Package   string           `yaml:"package"`
	Installed []InstallFixture `yaml:"installed"`
}

// Stats counts the rows a seed run created.
type Stats struct {
	Vendors       int
	Software      int
	Versions      int
	Packages      int
	PackageItems  int
	Customers     int
	LPARs         int
	Installations int
}

// Parse decodes a fixture, rejecting unknown keys.
func Parse(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return f, fmt.Errorf("decode fixture: %w", err)
	}
	return f, nil
}

func ParseFile(path string) (Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fixture{}, err
	}
	defer file.Close()
	return Parse(file)
}

// Default returns the embedded sample inventory.
func Default() (Fixture, error) {
	return Parse(bytes.NewReader(defaultFixture))
}

type versionKey struct {
	software string
	design   versioncmp.Designation
}

type seeder struct {
	tx       *gorm.DB
	now      time.Time
	stats    Stats
	versions map[versionKey]models.SoftwareVersion
	packages map[string]models.Package
}

// Apply writes the fixture in one transaction.
func Apply(ctx context.Context, db *gorm.DB, log *zap.Logger, f Fixture) (Stats, error) {
	s := &seeder{
		now:      time.Now().UTC(),
		versions: map[versionKey]models.SoftwareVersion{},
		packages: map[string]models.Package{},
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s.tx = tx
		for _, v := range f.Vendors {
			if err := s.vendor(v); err != nil {
				return err
			}
		}
		for _, p := range f.Packages {
			if err := s.pkg(p); err != nil {
				return err
			}
		}
		for _, c := range f.Customers {
			if err := s.customer(c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	log.Info("Seed OK",
		zap.Int("vendors", s.stats.Vendors),
		zap.Int("software", s.stats.Software),
		zap.Int("versions", s.stats.Versions),
		zap.Int("packages", s.stats.Packages),
		zap.Int("customers", s.stats.Customers),
		zap.Int("lpars", s.stats.LPARs),
		zap.Int("installations", s.stats.Installations),
	)
	return s.stats, nil
}

// ensure loads the row matching query into dst, creating dst when there is
// none, and bumps n for a new row.
func ensure(tx *gorm.DB, dst interface{}, n *int, query string, args ...interface{}) error {
	res := tx.Where(query, args...).Limit(1).Find(dst)
	if res.Error != nil || res.RowsAffected > 0 {
		return res.Error
	}
	if err := tx.Create(dst).Error; err != nil {
		return err
	}
	*n++
	return nil
}

// ptf maps an empty string to NULL.
func ptf(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *seeder) vendor(f VendorFixture) error {
	if err := validation.Var("code", f.Code, validation.CodeRule); err != nil {
		return fmt.Errorf("vendor %q: %w", f.Code, err)
	}
	v := models.Vendor{Name: f.Name, Code: f.Code, Website: f.Website, ContactEmail: f.ContactEmail, Active: true}
	if err := ensure(s.tx, &v, &s.stats.Vendors, "code = ?", f.Code); err != nil {
		return fmt.Errorf("vendor %s: %w", f.Code, err)
	}

	for _, sf := range f.Software {
		sw := models.Software{Name: sf.Name, VendorID: v.ID, Description: sf.Description, Active: true}
		if err := ensure(s.tx, &sw, &s.stats.Software, "vendor_id = ? AND name = ?", v.ID, sf.Name); err != nil {
			return fmt.Errorf("software %s: %w", sf.Name, err)
		}

		for _, vf := range sf.Versions {
			if err := s.version(sw, vf); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *seeder) version(sw models.Software, f VersionFixture) error {
	query, args := "software_id = ? AND version = ? AND ptf_level IS NULL", []interface{}{sw.ID, f.Version}
	if f.PtfLevel != "" {
		query, args = "software_id = ? AND version = ? AND ptf_level = ?", append(args, f.PtfLevel)
	}
	sv := models.SoftwareVersion{
		SoftwareID:   sw.ID,
		Version:      f.Version,
		PtfLevel:     ptf(f.PtfLevel),
		ReleaseDate:  f.ReleaseDate.Time,
		ReleaseNotes: f.ReleaseNotes,
		IsCurrent:    f.Current,
	}
	if f.EndOfSupport != nil {
		eos := f.EndOfSupport.Time
		sv.EndOfSupport = &eos
	}
	if err := ensure(s.tx, &sv, &s.stats.Versions, query, args...); err != nil {
		return fmt.Errorf("version %s %s: %w", sw.Name, f.Version, err)
	}
	s.versions[versionKey{sw.Name, versioncmp.New(sv.Version, sv.PtfLevel)}] = sv

	if f.Current {
		if err := s.tx.Model(&models.SoftwareVersion{}).
			Where("software_id = ? AND id <> ?", sw.ID, sv.ID).
			Update("is_current", false).Error; err != nil {
			return err
		}
		if err := s.tx.Model(&models.Software{}).Where("id = ?", sw.ID).
			Update("current_version_id", sv.ID).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) resolve(p Pin) (models.SoftwareVersion, error) {
	sv, ok := s.versions[versionKey{p.Software, versioncmp.New(p.Version, ptf(p.PtfLevel))}]
	if !ok {
		return sv, fmt.Errorf("unknown version %s %s %s", p.Software, p.Version, p.PtfLevel)
	}
	return sv, nil
}

func (s *seeder) pkg(f PackageFixture) error {
	if err := validation.Var("code", f.Code, validation.CodeRule); err != nil {
		return fmt.Errorf("package %q: %w", f.Code, err)
	}
	p := models.Package{
		Name:        f.Name,
		Code:        f.Code,
		Version:     f.Version,
		Description: f.Description,
		ReleaseDate: f.ReleaseDate.Time,
		Active:      true,
	}
	if err := ensure(s.tx, &p, &s.stats.Packages, "code = ? AND version = ?", f.Code, f.Version); err != nil {
		return fmt.Errorf("package %s: %w", f.Code, err)
	}
	s.packages[f.Code+"@"+f.Version] = p

	for i, pin := range f.Items {
		sv, err := s.resolve(pin)
		if err != nil {
			return fmt.Errorf("package %s@%s: %w", f.Code, f.Version, err)
		}
		item := models.PackageItem{
			PackageID:         p.ID,
			SoftwareID:        sv.SoftwareID,
			SoftwareVersionID: sv.ID,
			Required:          pin.Required == nil || *pin.Required,
			OrderIndex:        i + 1,
		}
		if err := ensure(s.tx, &item, &s.stats.PackageItems, "package_id = ? AND software_id = ?", p.ID, sv.SoftwareID); err != nil {
			return fmt.Errorf("package %s@%s item %s: %w", f.Code, f.Version, pin.Software, err)
		}
	}
	return nil
}

func (s *seeder) customer(f CustomerFixture) error {
	if err := validation.Var("code", f.Code, validation.CodeRule); err != nil {
		return fmt.Errorf("customer %q: %w", f.Code, err)
	}
	c := models.Customer{Name: f.Name, Code: f.Code, Description: f.Description, Active: true}
	if err := ensure(s.tx, &c, &s.stats.Customers, "code = ?", f.Code); err != nil {
		return fmt.Errorf("customer %s: %w", f.Code, err)
	}

	for _, lf := range f.LPARs {
		if err := validation.Var("code", lf.Code, validation.CodeRule); err != nil {
			return fmt.Errorf("lpar %q: %w", lf.Code, err)
		}
		l := models.LPAR{Name: lf.Name, Code: lf.Code, CustomerID: c.ID, Description: lf.Description, Active: true}
		if lf.Package != "" {
			p, ok := s.packages[lf.Package]
			if !ok {
				return fmt.Errorf("lpar %s: unknown package %s", lf.Code, lf.Package)
			}
			l.CurrentPackageID = &p.ID
		}
		if err := ensure(s.tx, &l, &s.stats.LPARs, "code = ?", lf.Code); err != nil {
			return fmt.Errorf("lpar %s: %w", lf.Code, err)
		}

		for _, in := range lf.Installed {
			sv, err := s.resolve(in.Pin)
			if err != nil {
				return fmt.Errorf("lpar %s: %w", lf.Code, err)
			}
			inst := models.LparSoftware{
				LparID:           l.ID,
				SoftwareID:       sv.SoftwareID,
				CurrentVersion:   sv.Version,
				CurrentPtfLevel:  sv.PtfLevel,
				PreviousVersion:  ptf(in.PreviousVersion),
				PreviousPtfLevel: ptf(in.PreviousPtfLevel),
				InstalledDate:    s.now,
			}
			if in.InstalledDate != nil {
				inst.InstalledDate = in.InstalledDate.Time
			}
			if err := ensure(s.tx, &inst, &s.stats.Installations, "lpar_id = ? AND software_id = ?", l.ID, sv.SoftwareID); err != nil {
				return fmt.Errorf("lpar %s install %s: %w", lf.Code, in.Software, err)
			}
		}
	}
	return nil
}
