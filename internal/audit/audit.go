// Package audit is the append-only audit trail. Every state-changing service
// call records exactly the entries it documents, inside its own transaction.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"lpar_inventory/internal/apperr"
	"lpar_inventory/internal/models"
)

type actorKey struct{}

// WithActor attaches the acting user id to ctx.
func WithActor(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFrom returns the acting user id, or nil for system actions.
func ActorFrom(ctx context.Context) *string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return &v
	}
	return nil
}

type Entry struct {
	EntityType string
	EntityID   uuid.UUID
	Action     models.AuditAction
	Changes    map[string]interface{}
}

// Record appends one entry using tx, which is normally the caller's open
// transaction.
func Record(ctx context.Context, tx *gorm.DB, e Entry) error {
	return RecordAll(ctx, tx, []Entry{e})
}

// RecordAll appends several entries in one insert.
func RecordAll(ctx context.Context, tx *gorm.DB, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	actor := ActorFrom(ctx)
	now := time.Now().UTC()

	rows := make([]models.AuditLog, 0, len(entries))
	for _, e := range entries {
		changes, err := json.Marshal(e.Changes)
		if err != nil {
			return fmt.Errorf("marshal audit changes: %w", err)
		}
		rows = append(rows, models.AuditLog{
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Action:     e.Action,
			Changes:    datatypes.JSON(changes),
			UserID:     actor,
			Timestamp:  now,
		})
	}
	if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
		return apperr.Database("write audit log", err)
	}
	return nil
}

// Query filters the audit listing. Limit defaults to 20 and is capped at 100.
type Query struct {
	EntityType string
	EntityID   *uuid.UUID
	Action     models.AuditAction
	Search     string
	Limit      int
	After      string // cursor returned as Page.NextCursor
}

type Page struct {
	Logs       []models.AuditLog `json:"logs"`
	NextCursor *string           `json:"next_cursor"`
}

// List returns entries newest first with keyset pagination on
// (timestamp, id).
func List(ctx context.Context, db *gorm.DB, q Query) (Page, error) {
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := db.WithContext(ctx).Model(&models.AuditLog{}).Order("timestamp DESC").Order("id DESC")
	if q.EntityType != "" {
		query = query.Where("entity_type = ?", q.EntityType)
	}
	if q.EntityID != nil {
		query = query.Where("entity_id = ?", *q.EntityID)
	}
	if q.Action != "" {
		query = query.Where("action = ?", q.Action)
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		like := "%" + search + "%"
		query = query.Where("(entity_type LIKE ? OR action LIKE ? OR user_id LIKE ?)", like, like, like)
	}
	if q.After != "" {
		ts, id, err := decodeCursor(q.After)
		if err != nil {
			return Page{}, apperr.Validation("after", "invalid cursor")
		}
		query = query.Where("(timestamp < ? OR (timestamp = ? AND id < ?))", ts, ts, id)
	}

	var logs []models.AuditLog
	if err := query.Limit(limit + 1).Find(&logs).Error; err != nil {
		return Page{}, apperr.Database("list audit log", err)
	}

	page := Page{Logs: logs}
	if len(logs) > limit {
		last := logs[limit-1]
		next := encodeCursor(last.Timestamp, last.ID)
		page.Logs = logs[:limit]
		page.NextCursor = &next
	}
	return page, nil
}

func encodeCursor(ts time.Time, id uuid.UUID) string {
	return ts.UTC().Format(time.RFC3339Nano) + "_" + id.String()
}

func decodeCursor(s string) (time.Time, uuid.UUID, error) {
	tsPart, idPart, ok := strings.Cut(s, "_")
	if !ok {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor %q", s)
	}
	ts, err := time.Parse(time.RFC3339Nano, tsPart)
	if err != nil {
		return time.Time{}, uuid.Nil, err
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return time.Time{}, uuid.Nil, err
	}
	return ts, id, nil
}
