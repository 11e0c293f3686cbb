package model

import "time"

// RunState represents the lifecycle state of a collection run.
type RunState string

const (
	RunStateRunning   RunState = "RUNNING"
	RunStateCompleted RunState = "COMPLETED"
	RunStateFailed    RunState = "FAILED"
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	return string(s)
}

// IsTerminal returns true if the run is in a final state.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// Run is the history entry of one gdc-maf-tool collect invocation.
type Run struct {
	ID         string     `json:"id"`
	Scope      string     `json:"scope"`
	Output     string     `json:"output"`
	ReportPath string     `json:"report_path,omitempty"`
	State      RunState   `json:"state"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
