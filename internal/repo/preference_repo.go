// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Preference
// model (a sender's currently active list).
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-task-assistant/internal/domain"
)

// GetPreference returns the sender's preference row, or ErrNotFound when the
// sender has never selected a list.
func GetPreference(ctx context.Context, db *gorm.DB, sender string) (*domain.Preference, error) {
	var p domain.Preference
	err := db.WithContext(ctx).Where("sender = ?", sender).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetPreference upserts the sender's active list. Only the use-list command
// reaches this function.
func SetPreference(tx *gorm.DB, sender string, listID int64) error {
	p := &domain.Preference{
		Sender:       sender,
		ActiveListID: listID,
		UpdatedAt:    time.Now().UTC(),
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sender"}},
		DoUpdates: clause.AssignmentColumns([]string{"active_list_id", "updated_at"}),
	}).Create(p).Error
}
