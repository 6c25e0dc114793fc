package plan

import (
	"fmt"
)

// ValidationError is a semantic graph violation naming the offending
// entity. The first failing check aborts validation.
type ValidationError struct {
	Kind    string // "stage" or "task"
	Name    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Kind, e.Name, e.Message)
}

// Validate runs the ordered structural checks over a payload. It is pure:
// only the payload is consulted. Time-order violations are returned as
// warnings and never block persistence.
func Validate(p *Payload) ([]string, error) {
	if err := checkStageSelfLoops(p.Stages); err != nil {
		return nil, err
	}
	if err := checkStageEndpoints(p.Stages); err != nil {
		return nil, err
	}
	if err := checkStageAcyclic(p.Stages); err != nil {
		return nil, err
	}
	if err := checkTaskSelfLoops(p.Tasks); err != nil {
		return nil, err
	}
	if err := checkTaskEndpoints(p.Tasks); err != nil {
		return nil, err
	}
	if err := checkCrossStageEdges(p.Tasks); err != nil {
		return nil, err
	}
	if err := checkTaskAcyclic(p.Tasks); err != nil {
		return nil, err
	}
	return timeOrderWarnings(p), nil
}

func checkStageSelfLoops(stages []StagePayload) error {
	for _, s := range stages {
		if contains(s.PredecessorStages, s.ID) || contains(s.SuccessorStages, s.ID) {
			return &ValidationError{Kind: "stage", Name: s.Name, Message: "references itself"}
		}
	}
	return nil
}

func checkStageEndpoints(stages []StagePayload) error {
	ids := make(map[int64]bool, len(stages))
	for _, s := range stages {
		ids[s.ID] = true
	}
	for _, s := range stages {
		for _, id := range append(append([]int64{}, s.PredecessorStages...), s.SuccessorStages...) {
			if !ids[id] {
				return &ValidationError{Kind: "stage", Name: s.Name,
					Message: fmt.Sprintf("references unknown stage %d", id)}
			}
		}
	}
	return nil
}

func checkStageAcyclic(stages []StagePayload) error {
	order, adj := stageGraph(stages)
	names := make(map[int64]string, len(stages))
	for _, s := range stages {
		names[s.ID] = s.Name
	}
	if cycleAt, ok := findCycle(order, adj); ok {
		return &ValidationError{Kind: "stage", Name: names[cycleAt], Message: "is part of a dependency cycle"}
	}
	return nil
}

// stageGraph merges both edge directions into one forward adjacency.
func stageGraph(stages []StagePayload) ([]int64, map[int64][]int64) {
	order := make([]int64, 0, len(stages))
	adj := make(map[int64][]int64, len(stages))
	for _, s := range stages {
		order = append(order, s.ID)
		for _, p := range s.PredecessorStages {
			adj[p] = append(adj[p], s.ID)
		}
		adj[s.ID] = append(adj[s.ID], s.SuccessorStages...)
	}
	return order, adj
}

func checkTaskSelfLoops(tasks []TaskPayload) error {
	for _, t := range tasks {
		if contains(t.PredecessorTasks, t.ID) || contains(t.SuccessorTasks, t.ID) {
			return &ValidationError{Kind: "task", Name: t.Name, Message: "references itself"}
		}
	}
	return nil
}

func checkTaskEndpoints(tasks []TaskPayload) error {
	ids := make(map[int64]bool, len(tasks))
	for _, t := range tasks {
		ids[t.ID] = true
	}
	for _, t := range tasks {
		for _, id := range append(append([]int64{}, t.PredecessorTasks...), t.SuccessorTasks...) {
			if !ids[id] {
				return &ValidationError{Kind: "task", Name: t.Name,
					Message: fmt.Sprintf("references unknown task %d", id)}
			}
		}
	}
	return nil
}

// checkCrossStageEdges enforces that task edges stay within one stage and
// that stage-less tasks carry no edges at all.
func checkCrossStageEdges(tasks []TaskPayload) error {
	stageOf := make(map[int64]*int64, len(tasks))
	for i := range tasks {
		stageOf[tasks[i].ID] = tasks[i].StageID
	}
	for _, t := range tasks {
		if t.StageID == nil {
			if len(t.PredecessorTasks) > 0 || len(t.SuccessorTasks) > 0 {
				return &ValidationError{Kind: "task", Name: t.Name,
					Message: "has no stage and cannot carry links"}
			}
			continue
		}
		for _, id := range append(append([]int64{}, t.PredecessorTasks...), t.SuccessorTasks...) {
			other := stageOf[id]
			if other == nil || *other != *t.StageID {
				return &ValidationError{Kind: "task", Name: t.Name, Message: "cross-stage task link"}
			}
		}
	}
	return nil
}

func checkTaskAcyclic(tasks []TaskPayload) error {
	// Per stage; the cross-stage check already confined every edge to one
	// stage, so a single pass over all tasks is equivalent.
	order := make([]int64, 0, len(tasks))
	adj := make(map[int64][]int64, len(tasks))
	names := make(map[int64]string, len(tasks))
	for _, t := range tasks {
		order = append(order, t.ID)
		names[t.ID] = t.Name
		for _, p := range t.PredecessorTasks {
			adj[p] = append(adj[p], t.ID)
		}
		adj[t.ID] = append(adj[t.ID], t.SuccessorTasks...)
	}
	if cycleAt, ok := findCycle(order, adj); ok {
		return &ValidationError{Kind: "task", Name: names[cycleAt], Message: "is part of a dependency cycle"}
	}
	return nil
}

// findCycle runs a three-color DFS and reports the node where a back edge
// was found.
func findCycle(order []int64, adj map[int64][]int64) (int64, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int64]int, len(order))
	var visit func(id int64) (int64, bool)
	visit = func(id int64) (int64, bool) {
		color[id] = gray
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				return next, true
			case white:
				if at, found := visit(next); found {
					return at, true
				}
			}
		}
		color[id] = black
		return 0, false
	}
	for _, id := range order {
		if color[id] == white {
			if at, found := visit(id); found {
				return at, true
			}
		}
	}
	return 0, false
}

// timeOrderWarnings collects non-fatal schedule overlaps between linked
// entities.
func timeOrderWarnings(p *Payload) []string {
	var warnings []string
	stageByID := make(map[int64]*StagePayload, len(p.Stages))
	for i := range p.Stages {
		stageByID[p.Stages[i].ID] = &p.Stages[i]
	}
	for _, s := range p.Stages {
		for _, id := range s.PredecessorStages {
			pred := stageByID[id]
			if s.StartTime != nil && pred.EndTime != nil && !s.StartTime.After(pred.EndTime.Time) {
				warnings = append(warnings, fmt.Sprintf(
					"stage %q starts before predecessor %q ends", s.Name, pred.Name))
			}
		}
		for _, id := range s.SuccessorStages {
			succ := stageByID[id]
			if s.EndTime != nil && succ.StartTime != nil && !succ.StartTime.After(s.EndTime.Time) {
				warnings = append(warnings, fmt.Sprintf(
					"stage %q ends after successor %q starts", s.Name, succ.Name))
			}
		}
	}
	taskByID := make(map[int64]*TaskPayload, len(p.Tasks))
	for i := range p.Tasks {
		taskByID[p.Tasks[i].ID] = &p.Tasks[i]
	}
	for _, t := range p.Tasks {
		for _, id := range t.PredecessorTasks {
			pred := taskByID[id]
			if t.StartTime != nil && pred.EndTime != nil && !t.StartTime.After(pred.EndTime.Time) {
				warnings = append(warnings, fmt.Sprintf(
					"task %q starts before predecessor %q ends", t.Name, pred.Name))
			}
		}
		for _, id := range t.SuccessorTasks {
			succ := taskByID[id]
			if t.EndTime != nil && succ.StartTime != nil && !succ.StartTime.After(t.EndTime.Time) {
				warnings = append(warnings, fmt.Sprintf(
					"task %q ends after successor %q starts", t.Name, succ.Name))
			}
		}
	}
	return warnings
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
