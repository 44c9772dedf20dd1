package model

import "time"

type AuditEntry struct {
	ID         int64          `json:"id"`
	Action     string         `json:"action"`
	OccurredAt time.Time      `json:"occurred_at"`
	ActorID    string         `json:"actor_id,omitempty"`
	SubjectID  string         `json:"subject_id,omitempty"`
	IP         string         `json:"ip,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

type AuditQuery struct {
	Action    string
	ActorID   string
	SubjectID string
	Page      int
	Limit     int
}
