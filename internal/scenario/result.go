package scenario

import "time"

type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Result is the outcome of one scenario run.
type Result struct {
	RunID     string       `json:"run_id"`
	Scenario  string       `json:"scenario"`
	Status    Status       `json:"status"`
	Error     string       `json:"error,omitempty"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at"`
	Steps     []StepResult `json:"steps"`

	// PageHTML is the document captured when a step failed with a page open.
	PageHTML string `json:"-"`
}

// Passed reports whether every step passed.
func (r *Result) Passed() bool {
	return r != nil && r.Status == StatusPassed
}

// Step returns the result of the named step.
func (r *Result) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}
