// Package domain defines the core persistence models for the application.
// This file holds the ingestion-side records: the immutable copy of every
// accepted delivery, the replay-suppression table, per-sender rate windows,
// and the append-only audit log.
package domain

import "time"

// Audit event types. The audit log is the authoritative record of every
// inbound delivery and every action it caused; these values are stable and
// must not be renamed once written.
const (
	EventMessageReceived = "MESSAGE_RECEIVED"
	EventAuthFail        = "AUTH_FAIL"
	EventReplayRejected  = "REPLAY_REJECTED"
	EventRateLimited     = "RATE_LIMITED"
	EventCommandExecuted = "COMMAND_EXECUTED"
	EventCommandRejected = "COMMAND_REJECTED"
)

// InboundMessage is the immutable record of one webhook delivery that passed
// signature verification and replay suppression. Rows are inserted once and
// never updated or deleted.
type InboundMessage struct {
	DeliveryID string    `json:"delivery_id" gorm:"type:varchar(64);primaryKey"`
	Sender     string    `json:"sender"      gorm:"type:varchar(64);not null;index"`
	Body       string    `json:"body"        gorm:"type:text;not null"`
	ReceivedAt time.Time `json:"received_at" gorm:"not null"`
}

// TableName returns the database table name for InboundMessage.
func (InboundMessage) TableName() string { return "inbound_messages" }

// DedupRecord maps a relay-assigned delivery ID to the instant it was first
// accepted. The primary-key constraint on DeliveryID is the second line of
// defense against concurrent duplicates; the insert itself is the check.
type DedupRecord struct {
	DeliveryID  string    `json:"delivery_id"   gorm:"type:varchar(64);primaryKey"`
	FirstSeenAt time.Time `json:"first_seen_at" gorm:"not null"`
}

// TableName returns the database table name for DedupRecord.
func (DedupRecord) TableName() string { return "message_dedup" }

// RateWindow is the per-sender fixed-window counter. Count covers accepted
// messages in [WindowStart, WindowStart+size); the limiter rolls the row over
// when the window elapses. Persisting the row keeps limits intact across
// restarts and across multiple processes sharing the store.
type RateWindow struct {
	Sender      string    `json:"sender"       gorm:"type:varchar(64);primaryKey"`
	WindowStart time.Time `json:"window_start" gorm:"not null"`
	Count       int       `json:"count"        gorm:"not null"`
}

// TableName returns the database table name for RateWindow.
func (RateWindow) TableName() string { return "rate_windows" }

// AuditEvent is one append-only row in the audit log. Metadata is a JSON
// object (command name, arguments, resulting IDs, rejection reason) holding
// enough context to reconstruct every state transition from the log alone.
// The repo layer exposes no update or delete for this table.
type AuditEvent struct {
	EventID   int64     `json:"event_id"   gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `json:"timestamp"  gorm:"not null;index"`
	Sender    string    `json:"sender"     gorm:"type:varchar(64);index"`
	EventType string    `json:"event_type" gorm:"type:varchar(32);not null;index"`
	Metadata  string    `json:"metadata"   gorm:"type:text;not null"`
}

// TableName returns the database table name for AuditEvent.
func (AuditEvent) TableName() string { return "audit_log" }
