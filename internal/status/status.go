// Package status models the per-(product, store) workflow state.
//
// A Status is a tagged union of a Phase and, for store-scoped phases, the store
// suffix. The ledger persists statuses as strings ("PENDING", "DONE_ES", ...);
// Parse and String convert between the two forms so no other package formats
// status strings by hand.
package status

import (
	"fmt"
	"strings"
)

// Phase identifies one state of the replication workflow.
type Phase int

const (
	PhasePending Phase = iota
	PhaseCloned
	PhaseTranslated
	PhaseDone
	PhaseApproved
	PhaseErrorFetchingSource
	PhaseErrorCloning
	PhaseErrorCloneMissing
	PhaseSkippedHandleExists
	PhaseErrorTranslating
	PhaseErrorMissingData
	PhaseErrorException
)

var phaseNames = map[Phase]string{
	PhasePending:             "PENDING",
	PhaseCloned:              "CLONED",
	PhaseTranslated:          "TRANSLATED",
	PhaseDone:                "DONE",
	PhaseApproved:            "APPROVED",
	PhaseErrorFetchingSource: "ERROR_FETCHING_SOURCE",
	PhaseErrorCloning:        "ERROR_CLONING",
	PhaseErrorCloneMissing:   "ERROR_CLONE_MISSING",
	PhaseSkippedHandleExists: "SKIPPED_HANDLE_EXISTS",
	PhaseErrorTranslating:    "ERROR_TRANSLATING",
	PhaseErrorMissingData:    "ERROR_MISSING_DATA",
	PhaseErrorException:      "ERROR_EXCEPTION",
}

// String returns the ledger spelling of the phase without any store suffix.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// IsError reports whether the phase is an ERROR_* or SKIPPED_* side state.
func (p Phase) IsError() bool {
	switch p {
	case PhaseErrorFetchingSource, PhaseErrorCloning, PhaseErrorCloneMissing,
		PhaseSkippedHandleExists, PhaseErrorTranslating, PhaseErrorMissingData,
		PhaseErrorException:
		return true
	}
	return false
}

// IsTerminalSuccess reports whether a store's work is complete.
func (p Phase) IsTerminalSuccess() bool {
	return p == PhaseDone || p == PhaseApproved || p == PhaseTranslated
}

// Status is the state of one (product, store) pair.
//
// Store holds the upper-case store suffix ("ES") and is only meaningful for
// PhaseDone; every other phase is rendered without it.
type Status struct {
	Store string
	Phase Phase
}

// Pending is the zero-work status written for freshly discovered products.
var Pending = Status{Phase: PhasePending}

// Of returns a status for a phase that carries no store suffix.
func Of(p Phase) Status {
	return Status{Phase: p}
}

// Done returns the terminal-success status for the given store suffix.
func Done(suffix string) Status {
	return Status{Store: strings.ToUpper(suffix), Phase: PhaseDone}
}

// String renders the status the way it is stored in the ledger.
func (s Status) String() string {
	if s.Phase == PhaseDone && s.Store != "" {
		return "DONE_" + s.Store
	}
	return s.Phase.String()
}

// IsTerminalSuccess reports whether the pair needs no further work.
func (s Status) IsTerminalSuccess() bool {
	return s.Phase.IsTerminalSuccess()
}

// IsBlocking reports whether normal runs must skip the pair until someone
// resets it by hand.
func (s Status) IsBlocking() bool {
	return s.Phase.IsError()
}

// Parse converts a ledger cell into a Status.
//
// Blank cells read as PENDING. "DONE" and "DONE_<SUFFIX>" both parse to
// PhaseDone. Store-suffixed error spellings written by older tooling
// ("ERROR_TRANSLATING_ES") are accepted and mapped to the plain phase.
func Parse(raw string) (Status, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return Pending, nil
	}
	if s == "DONE" {
		return Status{Phase: PhaseDone}, nil
	}
	if suffix, ok := strings.CutPrefix(s, "DONE_"); ok {
		return Done(suffix), nil
	}

	best := Phase(-1)
	bestLen := 0
	for p, name := range phaseNames {
		if p == PhaseDone {
			continue
		}
		if s == name {
			return Of(p), nil
		}
		if strings.HasPrefix(s, name+"_") && len(name) > bestLen {
			best, bestLen = p, len(name)
		}
	}
	if bestLen > 0 && best.IsError() {
		return Of(best), nil
	}
	return Status{}, fmt.Errorf("unknown status %q", raw)
}

// MustParse is Parse for literals in tests and tables.
func MustParse(raw string) Status {
	s, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return s
}
