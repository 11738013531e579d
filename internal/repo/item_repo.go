// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Item model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-task-assistant/internal/domain"
)

// CreateItem inserts a new item into listID with the next per-list item ID.
// The max-plus-one read and the insert share the caller's transaction, so
// two concurrent /todo commands on the same list cannot collide; if they
// race anyway the composite primary key rejects the loser.
func CreateItem(tx *gorm.DB, listID int64, text string) (*domain.Item, error) {
	var maxID int64
	err := tx.Model(&domain.Item{}).
		Where("list_id = ?", listID).
		Select("COALESCE(MAX(item_id), 0)").
		Scan(&maxID).Error
	if err != nil {
		return nil, err
	}

	it := &domain.Item{
		ListID:    listID,
		ItemID:    maxID + 1,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Create(it).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return it, nil
}

// ListItems returns all items of listID ordered by item ID ascending.
func ListItems(ctx context.Context, db *gorm.DB, listID int64) ([]domain.Item, error) {
	var out []domain.Item
	err := db.WithContext(ctx).
		Where("list_id = ?", listID).
		Order("item_id asc").
		Find(&out).Error
	return out, err
}

// ListOpenItems returns the not-yet-done items of listID, ordered by item ID.
// Used by the advisory snapshot.
func ListOpenItems(ctx context.Context, db *gorm.DB, listID int64) ([]domain.Item, error) {
	var out []domain.Item
	err := db.WithContext(ctx).
		Where("list_id = ? AND done = ?", listID, false).
		Order("item_id asc").
		Find(&out).Error
	return out, err
}

// GetItem fetches one item by (listID, itemID), or ErrNotFound.
func GetItem(tx *gorm.DB, listID, itemID int64) (*domain.Item, error) {
	var it domain.Item
	err := tx.Where("list_id = ? AND item_id = ?", listID, itemID).First(&it).Error
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// MarkItemDone flips an item to done and stamps CompletedAt. Completing an
// already-done item is a no-op that still succeeds. Returns ErrNotFound when
// the item does not exist in listID.
func MarkItemDone(tx *gorm.DB, listID, itemID int64, now time.Time) error {
	res := tx.Model(&domain.Item{}).
		Where("list_id = ? AND item_id = ?", listID, itemID).
		Updates(map[string]any{"done": true, "completed_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
