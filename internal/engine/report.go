package engine

import (
	"time"
)

// Action is what the orchestrator decided to do with a pair.
type Action string

const (
	ActionClone     Action = "clone"
	ActionResume    Action = "resume"
	ActionTranslate Action = "translate"
	ActionSkip      Action = "skip"
)

// Skip reasons recorded on ActionSkip outcomes.
const (
	ReasonArchived      = "archived"
	ReasonNotInLedger   = "not in ledger"
	ReasonTerminal      = "terminal"
	ReasonBlocked       = "blocked"
	ReasonInFlight      = "in flight"
	ReasonQuota         = "product limit reached"
	ReasonCancelled     = "cancelled"
	ReasonPhaseMismatch = "status has no automated next step"
)

// Outcome records what happened to one (product, store) pair in a run.
// Product-level skips leave Store empty.
type Outcome struct {
	Seq       int64  `json:"seq"`
	ProductID string `json:"product_id"`
	Store     string `json:"store,omitempty"`
	Action    Action `json:"action"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	GID       string `json:"gid,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Failed reports whether the pair ended in a blocking status or with an error.
func (o Outcome) Failed() bool {
	if o.Error != "" {
		return true
	}
	return o.Action != ActionSkip && isBlockingString(o.To)
}

// Report summarizes a run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Window     string    `json:"window,omitempty"`

	Discovered int      `json:"discovered"`
	Added      []string `json:"added,omitempty"`
	Processed  int      `json:"processed"`
	Succeeded  int      `json:"succeeded"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	Finalized  []string `json:"finalized,omitempty"`
	Archived   []string `json:"archived,omitempty"`

	Outcomes []Outcome `json:"outcomes"`
}

// HasFailures reports whether any pair failed during the run.
func (r *Report) HasFailures() bool {
	return r.Failed > 0
}

func (r *Report) add(o Outcome) {
	switch {
	case o.Action == ActionSkip:
		r.Skipped++
	case o.Failed():
		r.Failed++
	default:
		r.Succeeded++
	}
	r.Outcomes = append(r.Outcomes, o)
}
