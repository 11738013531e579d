// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the RateWindow
// model. The limiter in internal/ratelimit owns the windowing logic; these
// functions only load and store rows.
package repo

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-task-assistant/internal/domain"
)

// GetRateWindow returns the sender's window row, or ErrNotFound when the
// sender has never been counted.
func GetRateWindow(tx *gorm.DB, sender string) (*domain.RateWindow, error) {
	var w domain.RateWindow
	if err := tx.Where("sender = ?", sender).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// SaveRateWindow upserts the sender's window row.
func SaveRateWindow(tx *gorm.DB, w *domain.RateWindow) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sender"}},
		DoUpdates: clause.AssignmentColumns([]string{"window_start", "count"}),
	}).Create(w).Error
}
