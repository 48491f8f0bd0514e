package schedulerun

import "github.com/flowgraph/graphengine/store"

// RunSchedule and Store are aliases onto the store package's persisted
// shape: the daemon has no storage concerns of its own, it only polls
// and executes what store.ScheduleStore reports as due.
type (
	RunSchedule = store.RunSchedule
	Store       = store.ScheduleStore
)

// Result summaries recorded in RunSchedule.LastResult. "OK" and the
// execsvc sentinel strings cover every outcome execsvc.Service.Execute
// can report; SkippedOverlap is schedulerun's own addition for a tick
// that found the previous run of the same schedule still active.
const (
	ResultOK             = "OK"
	ResultSkippedOverlap = "SKIPPED_OVERLAP"
)
