package accounts

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a stored account.
type Status string

const (
	// StatusActive means the stored session authenticated the last time
	// anyone used it.
	StatusActive Status = "active"
	// StatusFailed means a session-reuse consumer found the stored session
	// no longer authenticates.
	StatusFailed Status = "failed"
)

// Account is the persisted result of a successful provisioning task.
// Read-only after creation except for Status, which session-reuse
// consumers may flip to failed.
type Account struct {
	Email     string          `json:"email"`
	Password  string          `json:"password"`
	Proxy     string          `json:"proxy"`
	Session   json.RawMessage `json:"session"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}
