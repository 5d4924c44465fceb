package models

import "time"

// FollowupKind distinguishes the two delayed nudges scheduled after a user's
// first question. The stored values match the legacy database contents.
type FollowupKind string

const (
	FollowupShort FollowupKind = "1hour"
	FollowupLong  FollowupKind = "3days"
)

// Followup is a scheduled delayed message. State machine: pending → sent, terminal.
// Entries are never cancelled or rescheduled once created.
type Followup struct {
	ID            int64        `json:"id"`
	UserID        int64        `json:"user_id"`
	Kind          FollowupKind `json:"message_type"`
	ScheduledTime time.Time    `json:"scheduled_time"`
	Sent          bool         `json:"sent"`
	SentAt        *time.Time   `json:"sent_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}
