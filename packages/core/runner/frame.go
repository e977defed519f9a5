package runner

import (
	"github.com/abdul-hamid-achik/hitplan/packages/core/env"
	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
)

// mode is the role a frame plays for the frame below it.
type mode int

const (
	modeMain mode = iota
	modeSetup
	modePreChild
	modeDataSetup
	modeDataCleanup
	modePostChild
	modeCleanup
)

// phase is the report phase of a frame running in mode m.
func (m mode) phase() unit.Phase {
	switch m {
	case modeSetup:
		return unit.PhaseSetup
	case modePreChild:
		return unit.PhasePreChild
	case modeDataSetup:
		return unit.PhaseDataSetup
	case modeDataCleanup:
		return unit.PhaseDataCleanup
	case modePostChild:
		return unit.PhasePostChild
	case modeCleanup:
		return unit.PhaseCleanup
	default:
		return unit.PhaseMain
	}
}

// blocking reports whether an unhealthy hook in mode m prevents the main
// phases of the unit that owns it.
func (m mode) blocking() bool {
	return m == modeSetup || m == modePreChild || m == modeDataSetup
}

// frame is the traversal state of one unit. Frames live in the
// orchestrator's arena and refer to their parent by index.
type frame struct {
	unit   *unit.Unit
	owner  *unit.Unit // declares the before/after-child hooks wrapping this frame
	mode   mode
	parent int
	sc     *env.Context
	// track is false inside hook subtrees, which may run many times and so
	// do not record unit status.
	track bool

	initialized     bool
	beforeChildDone bool
	setupDone       bool
	dataSetupDone   bool
	childrenDone    bool
	stepsDone       bool
	dataCleanupDone bool
	cleanupDone     bool
	afterChildDone  bool

	childIndex int
	stepIndex  int
	loaded     bool
	children   []*unit.Unit
	results    map[*unit.Unit]unit.Status

	setupEntered     bool
	dataSetupEntered bool
	// blocked is set when a before-child, setup or data-setup hook did not
	// succeed. Children and steps are then skipped.
	blocked bool

	statuses []unit.Status
	err      error

	onInit           func()
	onSuccess        func()
	onComplete       func(status unit.Status, err error)
	exceptionHandler func(err error)
}

func (f *frame) done() bool {
	return f.beforeChildDone && f.setupDone && f.dataSetupDone && f.childrenDone &&
		f.stepsDone && f.dataCleanupDone && f.cleanupDone && f.afterChildDone
}

// fail records an error raised by the frame's own work.
func (f *frame) fail(err error) {
	if err == nil {
		return
	}
	f.statuses = append(f.statuses, unit.StatusOf(err))
	if f.err == nil {
		f.err = err
	}
}

// absorb records the outcome of a child.
func (f *frame) absorb(child *unit.Unit, status unit.Status, err error) {
	f.statuses = append(f.statuses, status)
	if f.results == nil {
		f.results = make(map[*unit.Unit]unit.Status)
	}
	f.results[child] = status
	if f.err == nil && err != nil && unit.StatusOf(err) != unit.Skipped {
		f.err = err
	}
}

func (f *frame) status() unit.Status {
	return unit.Rollup(f.statuses...)
}
