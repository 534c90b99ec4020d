package model

import "time"

// Run status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning: true,
		StatusFailed:  true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether status ends a run.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Run is one journaled driver run.
type Run struct {
	ID         string     `json:"id"`
	Scenario   string     `json:"scenario"`
	Status     string     `json:"status"`
	Engines    []string   `json:"engines"`
	Steps      int        `json:"steps"`
	Error      string     `json:"error,omitempty"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Exchange is one journaled command and the size of its payload. Payload
// values are never journaled.
type Exchange struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Seq        int       `json:"seq"`
	Role       string    `json:"role"`
	Command    string    `json:"command"`
	Step       int       `json:"step"`
	Elements   int       `json:"elements"`
	DurationUS int64     `json:"duration_us"`
	CreatedAt  time.Time `json:"created_at"`
}
