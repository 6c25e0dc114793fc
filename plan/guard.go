package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/crestline/taskflow/store"
	"github.com/crestline/taskflow/svcerr"
)

// The edit guard protects materialized entities: once a stage or task has
// an execution record its semantics are visible to owners and approvers,
// so only additive successor links to not-yet-materialized targets may
// change. Stage start/end/duration stay editable because adding new
// downstream tasks can widen a stage's window.

func guardStage(p *StagePayload, old *store.Stage, materializedStages map[int64]bool) error {
	if p.Name != old.Name {
		return svcerr.New(fmt.Sprintf("stage %s already generated, cannot modify basic info", old.Name))
	}
	if !sameIDSet(p.PredecessorStages, old.Predecessors) {
		return svcerr.New(fmt.Sprintf("stage %s already generated, cannot modify predecessors", old.Name))
	}
	return guardSuccessors("stage", old.Name, p.SuccessorStages, old.Successors, materializedStages)
}

func guardTask(p *TaskPayload, old *store.Task, materializedTasks map[int64]bool) error {
	frozen := p.Name != old.Name ||
		!sameStrPtr(p.Description, old.Description) ||
		!sameDate(p.StartTime, old.StartDate) ||
		!sameDate(p.EndTime, old.EndDate) ||
		!sameIntPtr(p.Duration, old.DurationDays) ||
		!sameStrPtr(p.JobNumber, old.JobNumber) ||
		p.ApprovalType != string(old.ApprovalType) ||
		!sameIDList(p.ApprovalNodes, old.ApprovalNodes)
	if frozen {
		return svcerr.New(fmt.Sprintf("task %s already generated, cannot modify basic info", old.Name))
	}
	if !sameIDSet(p.PredecessorTasks, old.Predecessors) {
		return svcerr.New(fmt.Sprintf("task %s already generated, cannot modify predecessors", old.Name))
	}
	return guardSuccessors("task", old.Name, p.SuccessorTasks, old.Successors, materializedTasks)
}

// guardSuccessors allows only additions, and only toward targets that are
// not themselves materialized.
func guardSuccessors(kind, name string, next []int64, prev store.Int64List, materialized map[int64]bool) error {
	nextSet := make(map[int64]bool, len(next))
	for _, id := range next {
		nextSet[id] = true
	}
	for _, id := range prev {
		if !nextSet[id] {
			return svcerr.New(fmt.Sprintf("%s %s already generated, cannot remove successors", kind, name))
		}
	}
	for _, id := range next {
		if !prev.Contains(id) && materialized[id] {
			return svcerr.New(fmt.Sprintf(
				"%s %s already generated, new successors must not be generated yet", kind, name))
		}
	}
	return nil
}

func sameIDSet(a []int64, b store.Int64List) bool {
	as := append([]int64{}, a...)
	bs := append([]int64{}, b...)
	sort.Slice(as, func(i, j int) bool { return as[i] < as[j] })
	sort.Slice(bs, func(i, j int) bool { return bs[i] < bs[j] })
	return sameIDList(as, bs)
}

func sameIDList(a []int64, b store.Int64List) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameDate(a *Date, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Format(dateLayout) == b.Format(dateLayout)
}
