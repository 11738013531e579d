// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the List model.
//
// All functions are context-aware or accept a transaction-bound *gorm.DB
// handle. They follow the "thin repository" approach: no business logic,
// only CRUD persistence and query composition.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-task-assistant/internal/domain"
)

// CreateList inserts a new List owned by sender. The list ID is assigned by
// the database inside the caller's transaction, so IDs stay monotonic without
// gaps-vs-collisions races. A (owner, name) unique violation maps to
// ErrDuplicate.
func CreateList(tx *gorm.DB, sender, name string) (*domain.List, error) {
	l := &domain.List{
		Name:        name,
		OwnerSender: sender,
		CreatedAt:   time.Now().UTC(),
	}
	if err := tx.Create(l).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return l, nil
}

// ListLists returns all lists owned by sender, ordered by ID ascending.
func ListLists(ctx context.Context, db *gorm.DB, sender string) ([]domain.List, error) {
	var out []domain.List
	err := db.WithContext(ctx).
		Where("owner_sender = ?", sender).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// GetList fetches a list by ID regardless of owner. Callers enforce
// ownership; the executor needs the row either way to distinguish
// not_found from not_owner.
func GetList(tx *gorm.DB, id int64) (*domain.List, error) {
	var l domain.List
	if err := tx.Where("id = ?", id).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}
