package rollout

import (
	"time"
)

// State is a deployment's lifecycle state. Transitions only move forward:
// Queued to InProgress to one of Succeeded or Failed. A finished deployment
// never changes again.
type State string

const (
	StateQueued     State = "queued"
	StateInProgress State = "in_progress"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Terminal reports whether a deployment in this state is finished.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Step names one phase of a deployment.
type Step string

const (
	StepUpload  Step = "upload"
	StepInstall Step = "install"
	StepStart   Step = "start"
)

// StepResult records the outcome of one executed step.
type StepResult struct {
	Step       Step      `json:"step"`
	ExitCode   int       `json:"exit_code"`
	Stdout     string    `json:"stdout,omitempty"`
	Stderr     string    `json:"stderr,omitempty"`
	Error      string    `json:"error,omitempty"`
	Retried    bool      `json:"retried,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// LogLine is one appended line of a deployment's log. Seq is contiguous
// per deployment and matches the order the lines were published.
type LogLine struct {
	Seq  int       `json:"seq"`
	Time time.Time `json:"time"`
	Step Step      `json:"step"`
	Line string    `json:"line"`
}

// Deployment is the persisted record of one artifact rollout to one device.
type Deployment struct {
	ID          string       `json:"id"`
	DeviceID    string       `json:"device_id"`
	ArtifactRef string       `json:"artifact_ref"`
	State       State        `json:"state"`
	Steps       []StepResult `json:"steps,omitempty"`
	LogLines    []LogLine    `json:"log_lines,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}

// Summary is the list-view projection of a deployment, without step output
// or log lines.
type Summary struct {
	ID          string     `json:"id"`
	DeviceID    string     `json:"device_id"`
	ArtifactRef string     `json:"artifact_ref"`
	State       State      `json:"state"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
