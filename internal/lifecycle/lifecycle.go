// Package lifecycle moves catalog entities through active, inactive and
// deleted. Deactivating a customer or vendor cascades to its LPARs or
// software; deleting requires an inactive entity with no dependants.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lpar_inventory/internal/apperr"
	"lpar_inventory/internal/audit"
	"lpar_inventory/internal/models"
)

type State string

const (
	StateActive   State = "active"
	StateInactive State = "inactive"
	StateDeleted  State = "deleted"
)

type Event string

const (
	EventActivate   Event = "activate"
	EventDeactivate Event = "deactivate"
	EventDelete     Event = "delete"
)

var transitions = map[State]map[Event]State{
	StateActive:   {EventDeactivate: StateInactive},
	StateInactive: {EventActivate: StateActive, EventDelete: StateDeleted},
}

// Transition returns the state reached from "from" on ev.
func Transition(from State, ev Event) (State, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, apperr.Validation("active", fmt.Sprintf("cannot %s an entity that is %s", ev, from))
}

func stateOf(active bool) State {
	if active {
		return StateActive
	}
	return StateInactive
}

// dependant is a child table that blocks deletion of its parent.
type dependant struct {
	model  func() interface{}
	column string
	label  string
}

// kind describes how one entity type takes part in the lifecycle.
type kind struct {
	model      func() interface{}
	dependants []dependant
	// owned rows are removed together with the entity
	owned   []dependant
	cascade *dependant
}

var kinds = map[string]kind{
	models.EntityVendor: {
		model:      func() interface{} { return &models.Vendor{} },
		dependants: []dependant{{func() interface{} { return &models.Software{} }, "vendor_id", "software"}},
		cascade:    &dependant{func() interface{} { return &models.Software{} }, "vendor_id", "software"},
	},
	models.EntityCustomer: {
		model:      func() interface{} { return &models.Customer{} },
		dependants: []dependant{{func() interface{} { return &models.LPAR{} }, "customer_id", "lpars"}},
		cascade:    &dependant{func() interface{} { return &models.LPAR{} }, "customer_id", "lpars"},
	},
	models.EntitySoftware: {
		model: func() interface{} { return &models.Software{} },
		dependants: []dependant{
			{func() interface{} { return &models.PackageItem{} }, "software_id", "package_items"},
			{func() interface{} { return &models.LparSoftware{} }, "software_id", "installations"},
		},
		owned: []dependant{{func() interface{} { return &models.SoftwareVersion{} }, "software_id", "versions"}},
	},
	models.EntityPackage: {
		model:      func() interface{} { return &models.Package{} },
		dependants: []dependant{{func() interface{} { return &models.LPAR{} }, "current_package_id", "lpars"}},
		owned:      []dependant{{func() interface{} { return &models.PackageItem{} }, "package_id", "items"}},
	},
	models.EntityLPAR: {
		model: func() interface{} { return &models.LPAR{} },
		owned: []dependant{{func() interface{} { return &models.LparSoftware{} }, "lpar_id", "installations"}},
	},
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log}
}

// Result reports the new state and how many child rows were touched.
type Result struct {
	State    State `json:"state"`
	Cascaded int64 `json:"cascaded"`
}

func lookup(entity string) (kind, error) {
	k, ok := kinds[entity]
	if !ok {
		return kind{}, apperr.Validation("kind", "unsupported entity type "+entity)
	}
	return k, nil
}

func current(tx *gorm.DB, k kind, entity string, id uuid.UUID) (State, error) {
	var active []bool
	if err := tx.Model(k.model()).Where("id = ?", id).Pluck("active", &active).Error; err != nil {
		return "", apperr.Database("load "+entity, err)
	}
	if len(active) == 0 {
		return "", apperr.NotFound(entity)
	}
	return stateOf(active[0]), nil
}

func (s *Service) Deactivate(ctx context.Context, entity string, id uuid.UUID) (Result, error) {
	return s.toggle(ctx, entity, id, EventDeactivate)
}

func (s *Service) Activate(ctx context.Context, entity string, id uuid.UUID) (Result, error) {
	return s.toggle(ctx, entity, id, EventActivate)
}

func (s *Service) toggle(ctx context.Context, entity string, id uuid.UUID, ev Event) (Result, error) {
	k, err := lookup(entity)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		from, err := current(tx, k, entity, id)
		if err != nil {
			return err
		}
		to, err := Transition(from, ev)
		if err != nil {
			return err
		}
		active := to == StateActive
		if err := tx.Model(k.model()).Where("id = ?", id).Update("active", active).Error; err != nil {
			return apperr.Database("update "+entity, err)
		}
		res.State = to

		changes := map[string]interface{}{"active": active}
		if ev == EventDeactivate {
			if res.Cascaded, err = cascade(tx, k, entity, id, changes); err != nil {
				return err
			}
		}
		return audit.Record(ctx, tx, audit.Entry{EntityType: entity, EntityID: id, Action: models.ActionUpdate, Changes: changes})
	})
	if err != nil {
		return Result{}, err
	}

	s.log.Info("Entity state changed",
		zap.String("entity", entity),
		zap.String("id", id.String()),
		zap.String("state", string(res.State)),
		zap.Int64("cascaded", res.Cascaded))
	return res, nil
}

// Cascade deactivates the active children of an entity that tx has just
// deactivated, adding the count to changes under "cascaded_<children>".
// Entities without children to cascade to touch nothing.
func Cascade(tx *gorm.DB, entity string, id uuid.UUID, changes map[string]interface{}) (int64, error) {
	k, err := lookup(entity)
	if err != nil {
		return 0, err
	}
	return cascade(tx, k, entity, id, changes)
}

func cascade(tx *gorm.DB, k kind, entity string, id uuid.UUID, changes map[string]interface{}) (int64, error) {
	if k.cascade == nil {
		return 0, nil
	}
	q := tx.Model(k.cascade.model()).Where(k.cascade.column+" = ? AND active = ?", id, true).Update("active", false)
	if q.Error != nil {
		return 0, apperr.Database("cascade "+entity, q.Error)
	}
	changes["cascaded_"+k.cascade.label] = q.RowsAffected
	return q.RowsAffected, nil
}

// Delete removes an inactive entity that nothing references. Rows the
// entity owns (versions, package items, installations) go with it.
func (s *Service) Delete(ctx context.Context, entity string, id uuid.UUID) (Result, error) {
	k, err := lookup(entity)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		from, err := current(tx, k, entity, id)
		if err != nil {
			return err
		}
		to, err := Transition(from, EventDelete)
		if err != nil {
			return err
		}

		for _, d := range k.dependants {
			var n int64
			if err := tx.Model(d.model()).Where(d.column+" = ?", id).Count(&n).Error; err != nil {
				return apperr.Database("count "+d.label, err)
			}
			if n > 0 {
				return apperr.Validation("id", fmt.Sprintf("%s is still referenced by %d %s", entity, n, d.label))
			}
		}

		changes := map[string]interface{}{}
		for _, o := range k.owned {
			q := tx.Where(o.column+" = ?", id).Delete(o.model())
			if q.Error != nil {
				return apperr.Database("delete "+o.label, q.Error)
			}
			res.Cascaded += q.RowsAffected
			changes[o.label+"_deleted"] = q.RowsAffected
		}
		if err := tx.Where("id = ?", id).Delete(k.model()).Error; err != nil {
			return apperr.Database("delete "+entity, err)
		}
		res.State = to
		return audit.Record(ctx, tx, audit.Entry{EntityType: entity, EntityID: id, Action: models.ActionDelete, Changes: changes})
	})
	if err != nil {
		return Result{}, err
	}

	s.log.Info("Entity deleted", zap.String("entity", entity), zap.String("id", id.String()))
	return res, nil
}
