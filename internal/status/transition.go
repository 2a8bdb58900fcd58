package status

// transitions is the directed graph followed by automated runs. Manual resets
// are handled by CanReset and are not edges of this graph.
var transitions = map[Phase][]Phase{
	PhasePending: {
		PhaseCloned,
		PhaseErrorFetchingSource,
		PhaseErrorCloning,
		PhaseErrorCloneMissing,
		PhaseSkippedHandleExists,
		PhaseErrorMissingData,
		PhaseErrorException,
	},
	PhaseCloned: {
		PhaseTranslated,
		PhaseDone,
		PhaseErrorTranslating,
		PhaseErrorCloneMissing,
		PhaseErrorMissingData,
		PhaseErrorException,
	},
	PhaseTranslated: {
		PhaseDone,
	},
}

// CanTransition reports whether an automated run may move a pair from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from.Phase] {
		if next == to.Phase {
			return true
		}
	}
	return false
}

// Next returns the phases reachable from p in one automated step.
func Next(p Phase) []Phase {
	out := make([]Phase, len(transitions[p]))
	copy(out, transitions[p])
	return out
}

// CanReset reports whether a manual reset back to PENDING is allowed.
// Only blocking side states are reset; successful pairs stay put.
func CanReset(from Status) bool {
	return from.IsBlocking()
}
