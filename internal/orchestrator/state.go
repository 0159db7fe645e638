package orchestrator

import "time"

// Status enumerates phase and step outcomes.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusSkipped marks work that never started because something before
	// it failed.
	StatusSkipped Status = "skipped"
	// StatusSatisfied marks a step whose goal already held, such as removing
	// an environment that does not exist.
	StatusSatisfied Status = "satisfied"
)

// Report captures one dispatch. It is persisted as the run record.
type Report struct {
	RunID      string        `json:"run_id"`
	Target     string        `json:"target"`
	Plan       []string      `json:"plan,omitempty"`
	Status     Status        `json:"status"`
	Error      string        `json:"error,omitempty"`
	DryRun     bool          `json:"dry_run,omitempty"`
	Phases     []PhaseReport `json:"phases,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Phase returns the report for name.
func (r Report) Phase(name string) (PhaseReport, bool) {
	for _, p := range r.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return PhaseReport{}, false
}

// Succeeded reports whether every planned phase succeeded.
func (r Report) Succeeded() bool { return r.Status == StatusSucceeded }

// PhaseReport captures one phase of a dispatch.
type PhaseReport struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Steps    []StepReport  `json:"steps,omitempty"`
	Duration time.Duration `json:"duration"`
}

// StepReport captures one step of a phase.
type StepReport struct {
	Op       string        `json:"op"`
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
