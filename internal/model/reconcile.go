package model

import "time"

// ReconcileJob asks the reconcile worker to recount a user's usage.
type ReconcileJob struct {
	UserID      string    `json:"user_id"`
	Reason      string    `json:"reason"`
	Operation   string    `json:"operation,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}
