package plan

import (
	"github.com/crestline/taskflow/store"
)

// Project status values reported by the project views.
const (
	StatusNormal       = "normal"
	StatusAbnormal     = "abnormal"
	StatusUnconfigured = "unconfigured"
)

// Health summarizes the configuration quality of one project's plan.
type Health struct {
	MissingInfoCount       int
	TimeRelationErrorCount int
	UnassignedStageCount   int
	Status                 string
}

// AnalyzePlan computes the validation counters over stored plan rows. A
// project with no rows is unconfigured; any non-zero counter makes it
// abnormal. Abnormal and unconfigured projects are excluded from the
// explicit generation trigger.
func AnalyzePlan(stages []store.Stage, tasks []store.Task) Health {
	h := Health{}
	if len(stages) == 0 && len(tasks) == 0 {
		h.Status = StatusUnconfigured
		return h
	}

	for _, t := range tasks {
		if taskMissingInfo(&t) {
			h.MissingInfoCount++
		}
		if t.StageID == nil {
			h.UnassignedStageCount++
		}
	}

	h.TimeRelationErrorCount = countTimeRelationErrors(stages, tasks)

	if h.MissingInfoCount > 0 || h.TimeRelationErrorCount > 0 || h.UnassignedStageCount > 0 {
		h.Status = StatusAbnormal
	} else {
		h.Status = StatusNormal
	}
	return h
}

func taskMissingInfo(t *store.Task) bool {
	if t.JobNumber == nil || *t.JobNumber == "" {
		return true
	}
	if t.StartDate == nil || t.EndDate == nil {
		return true
	}
	if t.StartDate.After(*t.EndDate) {
		return true
	}
	if (t.ApprovalType == store.ApprovalSpecified || t.ApprovalType == store.ApprovalSequential) &&
		len(t.ApprovalNodes) == 0 {
		return true
	}
	return false
}

// countTimeRelationErrors counts linked pairs whose schedules overlap, at
// both the stage and the task level. Each directed pair counts once.
func countTimeRelationErrors(stages []store.Stage, tasks []store.Task) int {
	count := 0
	stageByID := make(map[int64]*store.Stage, len(stages))
	for i := range stages {
		stageByID[stages[i].StageID] = &stages[i]
	}
	for i := range stages {
		s := &stages[i]
		for _, id := range s.Predecessors {
			pred := stageByID[id]
			if pred == nil {
				continue
			}
			if s.StartDate != nil && pred.EndDate != nil && !s.StartDate.After(*pred.EndDate) {
				count++
			}
		}
	}
	taskByID := make(map[int64]*store.Task, len(tasks))
	for i := range tasks {
		taskByID[tasks[i].TaskID] = &tasks[i]
	}
	for i := range tasks {
		t := &tasks[i]
		for _, id := range t.Predecessors {
			pred := taskByID[id]
			if pred == nil {
				continue
			}
			if t.StartDate != nil && pred.EndDate != nil && !t.StartDate.After(*pred.EndDate) {
				count++
			}
		}
	}
	return count
}
