// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the replay-suppression primitives: an
// insert-only dedup table keyed by the relay's delivery ID, plus the
// immutable copy of each accepted delivery.
package repo

import (
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-task-assistant/internal/domain"
)

// InsertDedup records deliveryID as seen. The insert is the atomic
// check-and-set: a primary-key violation means the delivery was already
// accepted once and maps to ErrDuplicate. Rows are never updated or deleted.
func InsertDedup(tx *gorm.DB, deliveryID string, now time.Time) error {
	rec := &domain.DedupRecord{
		DeliveryID:  deliveryID,
		FirstSeenAt: now,
	}
	if err := tx.Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// InsertInbound persists the immutable record of one accepted delivery.
// Callers run it in the same transaction as InsertDedup so a delivery is
// either fully recorded or not at all.
func InsertInbound(tx *gorm.DB, deliveryID, sender, body string, receivedAt time.Time) error {
	m := &domain.InboundMessage{
		DeliveryID: deliveryID,
		Sender:     sender,
		Body:       body,
		ReceivedAt: receivedAt,
	}
	if err := tx.Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}
