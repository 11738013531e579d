// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the audit log: append and ordered scan
// only. No update or delete is exposed anywhere in the codebase, which is
// how the append-only invariant is enforced.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-task-assistant/internal/domain"
)

// AppendAudit inserts one audit event. Metadata is marshaled to JSON; a nil
// map produces "{}" so the column is never empty. Run it on a transaction
// handle to couple the event with a mutation, or on the plain DB handle for
// gating failures.
func AppendAudit(tx *gorm.DB, sender, eventType string, metadata map[string]any) (*domain.AuditEvent, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	ev := &domain.AuditEvent{
		Timestamp: time.Now().UTC(),
		Sender:    sender,
		EventType: eventType,
		Metadata:  string(raw),
	}
	if err := tx.Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// ListAuditEvents returns the full event history in insertion order.
// The history is sufficient to reconstruct all state transitions.
func ListAuditEvents(ctx context.Context, db *gorm.DB) ([]domain.AuditEvent, error) {
	var out []domain.AuditEvent
	err := db.WithContext(ctx).Order("event_id asc").Find(&out).Error
	return out, err
}

// ListAuditEventsBySender returns one sender's events in insertion order.
func ListAuditEventsBySender(ctx context.Context, db *gorm.DB, sender string) ([]domain.AuditEvent, error) {
	var out []domain.AuditEvent
	err := db.WithContext(ctx).
		Where("sender = ?", sender).
		Order("event_id asc").
		Find(&out).Error
	return out, err
}
