package unitofwork

import "fmt"

// Phase is a stage in the lifecycle of a unit of work. Phases are totally
// ordered; a unit only ever moves forward through them.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseStarted
	PhasePrepareCommit
	PhaseCommit
	PhaseRollback
	PhaseAfterCommit
	PhaseCleanup
	PhaseClosed
)

var phaseTraits = [...]struct {
	name    string
	started bool
	reverse bool
}{
	PhaseNotStarted:    {"NOT_STARTED", false, false},
	PhaseStarted:       {"STARTED", true, false},
	PhasePrepareCommit: {"PREPARE_COMMIT", true, false},
	PhaseCommit:        {"COMMIT", true, false},
	PhaseRollback:      {"ROLLBACK", true, true},
	PhaseAfterCommit:   {"AFTER_COMMIT", true, true},
	PhaseCleanup:       {"CLEANUP", false, true},
	PhaseClosed:        {"CLOSED", false, true},
}

func (p Phase) valid() bool {
	return p >= PhaseNotStarted && int(p) < len(phaseTraits)
}

// String returns the upper-case phase name.
func (p Phase) String() string {
	if !p.valid() {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseTraits[p].name
}

// IsStarted reports whether a unit in this phase counts as active.
func (p Phase) IsStarted() bool {
	return p.valid() && phaseTraits[p].started
}

// IsReverseCallbackOrder reports whether callbacks for this phase run
// last-registered-first.
func (p Phase) IsReverseCallbackOrder() bool {
	return p.valid() && phaseTraits[p].reverse
}

// IsBefore reports whether p comes strictly before other.
func (p Phase) IsBefore(other Phase) bool {
	return p < other
}

// IsAfter reports whether p comes strictly after other.
func (p Phase) IsAfter(other Phase) bool {
	return p > other
}

// onCommitPath reports whether the phase is only reached when committing.
func (p Phase) onCommitPath() bool {
	return p == PhasePrepareCommit || p == PhaseCommit || p == PhaseAfterCommit
}
