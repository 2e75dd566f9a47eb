package model

import "time"

// Run status constants.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunCacheHit  = "cache_hit"
)

// Run is the persisted record of one resolution attempt: either a cache hit
// or one invocation of the resolver program.
type Run struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	DisplayName string    `json:"channel_name,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int       `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProgramState describes the currently installed resolver program. Owned
// exclusively by the program store; read by the engine and status reporter.
type ProgramState struct {
	Path        string     `json:"path"`
	SourceURL   string     `json:"source_url,omitempty"`
	Version     string     `json:"version"`
	InstalledAt *time.Time `json:"installed_at,omitempty"`
}

// ScheduleState describes the refresh schedule. HumanInterval retains the
// operator's original "H:MM" string for display.
type ScheduleState struct {
	HumanInterval string `json:"interval"`
	Active        bool   `json:"active"`
}
