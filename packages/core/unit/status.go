package unit

import "github.com/abdul-hamid-achik/hitplan/packages/core/failure"

// Status is the execution state of a unit.
type Status int

const (
	Pending Status = iota
	InProgress
	Successful
	Failed
	Errored
	Skipped
)

var statusNames = [...]string{"PENDING", "IN_PROGRESS", "SUCCESSFUL", "FAILED", "ERRORED", "SKIPPED"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "UNKNOWN"
	}
	return statusNames[s]
}

// IsTerminal reports whether the unit has finished, whatever the outcome.
func (s Status) IsTerminal() bool {
	return s >= Successful
}

// IsHealthy reports whether s is a terminal state dependents may build on.
func (s Status) IsHealthy() bool {
	return s == Successful
}

// severity orders terminal states for roll-up.
func (s Status) severity() int {
	switch s {
	case Errored:
		return 3
	case Failed:
		return 2
	case Skipped:
		return 1
	default:
		return 0
	}
}

// Rollup combines statuses with precedence ERRORED > FAILED > SKIPPED >
// SUCCESSFUL. No input rolls up to SUCCESSFUL.
func Rollup(statuses ...Status) Status {
	out := Successful
	for _, s := range statuses {
		if s.severity() > out.severity() {
			out = s
		}
	}
	return out
}

// StatusOf maps an error to the status it gives the unit that raised it.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return Successful
	case failure.IsExpectedMismatch(err), failure.IsStep(err):
		return Errored
	case failure.IsValidation(err):
		return Failed
	case failure.IsSkip(err):
		return Skipped
	default:
		return Errored
	}
}

// Phase identifies which part of a unit's lifecycle a report refers to.
type Phase int

const (
	PhaseSetup Phase = iota
	PhasePreChild
	PhaseDataSetup
	PhaseMain
	PhaseSteps
	PhaseDataCleanup
	PhasePostChild
	PhaseCleanup
)

var phaseNames = [...]string{"SETUP", "PRE_CHILD", "DATA_SETUP", "MAIN", "STEPS", "DATA_CLEANUP", "POST_CHILD", "CLEANUP"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "UNKNOWN"
	}
	return phaseNames[p]
}
