package models

import (
	"encoding/json"
	"time"
)

// AuditEntity names the kind of configuration row an audit entry is about.
type AuditEntity string

const (
	AuditVersion    AuditEntity = "VERSION"
	AuditWeeklyDay  AuditEntity = "DAY_SCHEDULE"
	AuditSlotPolicy AuditEntity = "SLOT_CONFIG"
	AuditException  AuditEntity = "AVAILABILITY_EXCEPTION"
)

// AuditAction is what happened to the entity.
type AuditAction string

const (
	ActionCreated  AuditAction = "CREATED"
	ActionUpdated  AuditAction = "UPDATED"
	ActionDeleted  AuditAction = "DELETED"
	ActionArchived AuditAction = "ARCHIVED"
	ActionSynced   AuditAction = "SYNCED"
)

// AuditEntry records one administrative change to schedule configuration.
type AuditEntry struct {
	ID         int64           `json:"id"`
	EventID    string          `json:"event_id"`
	EntityType AuditEntity     `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	ServiceID  int64           `json:"service_id"`
	Action     AuditAction     `json:"action"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
