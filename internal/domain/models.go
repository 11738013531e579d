// Package domain defines the persistence models for task lists, items, and
// per-sender preferences. These types are mapped with GORM and form the core
// data layer of the assistant.
package domain

import "time"

// List is a named task list owned by a single sender. Names are unique per
// owner; a sender may reuse a name another sender already took.
//
// Fields:
//   - ID: monotonic integer primary key assigned by the database.
//   - Name: normalized (lowercase) list name, 1-30 chars.
//   - OwnerSender: identifier of the sender who created the list.
//   - CreatedAt: creation timestamp (UTC).
type List struct {
	ID          int64     `json:"id"           gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name"         gorm:"type:varchar(30);not null;uniqueIndex:ux_lists_owner_name,priority:2"`
	OwnerSender string    `json:"owner_sender" gorm:"type:varchar(64);not null;index;uniqueIndex:ux_lists_owner_name,priority:1"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for List.
func (List) TableName() string { return "lists" }

// Item is a single task inside a list. Item IDs are assigned monotonically
// within their list, so (ListID, ItemID) is the primary key and the number a
// sender sees in /list is stable and compact.
//
// CompletedAt is set exactly when Done flips to true and is never cleared.
type Item struct {
	ListID      int64      `json:"list_id"      gorm:"primaryKey;autoIncrement:false"`
	ItemID      int64      `json:"item_id"      gorm:"primaryKey;autoIncrement:false"`
	Text        string     `json:"text"         gorm:"type:varchar(300);not null"`
	Done        bool       `json:"done"         gorm:"not null;default:false"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// List is the owning list. Items are cascade-deleted with their list.
	List List `json:"-" gorm:"foreignKey:ListID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Item.
func (Item) TableName() string { return "items" }

// Preference records which list a sender currently operates on. It is the
// only row the use-list command mutates.
type Preference struct {
	Sender       string    `json:"sender"         gorm:"type:varchar(64);primaryKey"`
	ActiveListID int64     `json:"active_list_id" gorm:"not null"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Preference.
func (Preference) TableName() string { return "preferences" }
