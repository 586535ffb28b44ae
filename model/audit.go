package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records user and administrator actions.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36" json:"trace_id"`
	UserID     string         `gorm:"index:idx_audit_user;size:64" json:"user_id"`
	Username   string         `gorm:"size:64" json:"username"`
	Role       string         `gorm:"size:16" json:"role"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	Target     string         `gorm:"size:128" json:"target"`
	Request    datatypes.JSON `json:"request"`
	Response   datatypes.JSON `json:"response"`
	Error      string         `gorm:"type:text" json:"error"`
	IP         string         `gorm:"size:45" json:"ip"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
