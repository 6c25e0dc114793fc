// Package query builds the read-side projections: project summaries and
// plan views, my-task and history listings with category counters, the
// full task detail with approval history, and the workbench counters.
// Everything here is read-only and tolerates slightly stale data.
package query

import (
	"fmt"

	"github.com/crestline/taskflow/plan"
	"github.com/crestline/taskflow/store"
)

// ProjectSummary is one row of the project list, with the validation
// counters the configuration UI shows.
type ProjectSummary struct {
	ProjectID              int64  `json:"projectId"`
	ProjectName            string `json:"projectName"`
	StageCount             int    `json:"stageCount"`
	TaskCount              int    `json:"taskCount"`
	ProjectStatus          string `json:"projectStatus"`
	MissingInfoCount       int    `json:"missingInfoCount"`
	TimeRelationErrorCount int    `json:"timeRelationErrorCount"`
	UnassignedStageCount   int    `json:"unassignedStageCount"`
	TasksGenerated         bool   `json:"tasksGenerated"`
}

// ProjectView is the full plan of one project with per-entity edit flags.
type ProjectView struct {
	ProjectID      int64       `json:"projectId"`
	TasksGenerated bool        `json:"tasksGenerated"`
	Stages         []StageView `json:"stages"`
	Tasks          []TaskView  `json:"tasks"`
	// Warnings carries the non-blocking save diagnostics, such as
	// time-order issues. Empty outside the save response.
	Warnings []string `json:"warnings,omitempty"`
}

// StageView is one stage of the project view.
type StageView struct {
	ID                int64          `json:"id"`
	Name              string         `json:"name"`
	StartTime         *plan.Date     `json:"startTime"`
	EndTime           *plan.Date     `json:"endTime"`
	Duration          *int           `json:"duration"`
	PredecessorStages []int64        `json:"predecessorStages"`
	SuccessorStages   []int64        `json:"successorStages"`
	Position          store.JSONBlob `json:"position"`
	IsEditable        bool           `json:"isEditable"`
}

// TaskView is one task of the project view.
type TaskView struct {
	ID               int64          `json:"id"`
	Name             string         `json:"name"`
	Description      *string        `json:"description"`
	StartTime        *plan.Date     `json:"startTime"`
	EndTime          *plan.Date     `json:"endTime"`
	Duration         *int           `json:"duration"`
	JobNumber        *string        `json:"jobNumber"`
	StageID          *int64         `json:"stageId"`
	PredecessorTasks []int64        `json:"predecessorTasks"`
	SuccessorTasks   []int64        `json:"successorTasks"`
	Position         store.JSONBlob `json:"position"`
	ApprovalType     string         `json:"approvalType"`
	ApprovalNodes    []int64        `json:"approvalNodes"`
	IsEditable       bool           `json:"isEditable"`
}

// TaskRow is one row of the my-tasks and history listings.
type TaskRow struct {
	TaskID         int64   `json:"taskId"`
	TaskName       string  `json:"taskName"`
	ProjectID      int64   `json:"projectId"`
	ProjectName    string  `json:"projectName"`
	DeptID         *int64  `json:"deptId"`
	DeptName       *string `json:"deptName"`
	TaskStatus     int     `json:"taskStatus"`
	TaskStatusName string  `json:"taskStatusName"`
	JobNumber      *string `json:"jobNumber"`
	AssigneeName   *string `json:"assigneeName"`
	Deadline       *string `json:"deadline"`
	StageID        *int64  `json:"stageId"`
	StageName      *string `json:"stageName"`
	RejectTime     *string `json:"rejectTime"`
	CompleteTime   *string `json:"completeTime"`
}

// Page is a paginated listing.
type Page struct {
	Total int       `json:"total"`
	Rows  []TaskRow `json:"rows"`
}

// TaskFilter narrows a listing. DeptID refers to a second-level
// department.
type TaskFilter struct {
	ProjectID *int64
	DeptID    *int64
	Status    *int
	PageNum   int
	PageSize  int
}

// ProjectCount, DeptCount and StatusCount are the category counters of
// the three listing axes.
type ProjectCount struct {
	ProjectID   int64  `json:"projectId"`
	ProjectName string `json:"projectName"`
	Count       int    `json:"count"`
}

type DeptCount struct {
	DeptID   int64  `json:"deptId"`
	DeptName string `json:"deptName"`
	Count    int    `json:"count"`
}

type StatusCount struct {
	Status     int    `json:"status"`
	StatusName string `json:"statusName"`
	Count      int    `json:"count"`
}

// Categories groups the counters of one listing.
type Categories struct {
	Project struct {
		Total int            `json:"total"`
		Items []ProjectCount `json:"items"`
	} `json:"project"`
	Department struct {
		Total int         `json:"total"`
		Items []DeptCount `json:"items"`
	} `json:"department"`
	Status struct {
		Total int           `json:"total"`
		Items []StatusCount `json:"items"`
	} `json:"status"`
}

// WorkbenchStats are the landing-page counters for one viewer.
type WorkbenchStats struct {
	PendingCount  int `json:"pendingCount"`
	ApprovalCount int `json:"approvalCount"`
	RejectedCount int `json:"rejectedCount"`
}

// TaskDetail is the full view of one task: plan, execution, and every
// Application ever opened for it.
type TaskDetail struct {
	TaskID          int64             `json:"taskId"`
	TaskName        string            `json:"taskName"`
	TaskDescription *string           `json:"taskDescription"`
	ProjectID       int64             `json:"projectId"`
	ProjectName     string            `json:"projectName"`
	StageID         *int64            `json:"stageId"`
	StageName       *string           `json:"stageName"`
	DeptID          *int64            `json:"deptId"`
	DeptName        *string           `json:"deptName"`
	JobNumber       *string           `json:"jobNumber"`
	AssigneeName    *string           `json:"assigneeName"`
	StartTime       *plan.Date        `json:"startTime"`
	EndTime         *plan.Date        `json:"endTime"`
	TaskStatus      int               `json:"taskStatus"`
	TaskStatusName  string            `json:"taskStatusName"`
	Generated       bool              `json:"generated"`
	Applications    []ApplicationView `json:"applications"`
	Predecessors    []RelatedTask     `json:"predecessors"`
	Successors      []RelatedTask     `json:"successors"`
}

// ApplicationView is one submission attempt with its node statuses.
type ApplicationView struct {
	ApplyID      string     `json:"applyId"`
	ApplyStatus  int        `json:"applyStatus"`
	SubmitText   *string    `json:"submitText"`
	SubmitImages []string   `json:"submitImages"`
	SubmitTime   string     `json:"submitTime"`
	Nodes        []NodeView `json:"nodes"`
}

// Node statuses of an ApplicationView.
const (
	NodePending  = "pending"
	NodeCurrent  = "current"
	NodeApproved = "approved"
	NodeRejected = "rejected"
)

// NodeView is one approval node of an Application with its computed
// status.
type NodeView struct {
	Node         int64   `json:"node"`
	NodeName     string  `json:"nodeName"`
	Status       string  `json:"status"`
	ApproverID   *string `json:"approverId"`
	ApproverName *string `json:"approverName"`
	Comment      *string `json:"comment"`
	DecidedAt    *string `json:"decidedAt"`
}

// RelatedTask is an enriched predecessor or successor projection. Status
// NotGenerated marks tasks present on the plan but absent from execution.
type RelatedTask struct {
	TaskID       int64      `json:"taskId"`
	TaskName     string     `json:"taskName"`
	JobNumber    *string    `json:"jobNumber"`
	AssigneeName *string    `json:"assigneeName"`
	StartTime    *plan.Date `json:"startTime"`
	EndTime      *plan.Date `json:"endTime"`
	Status       int        `json:"status"`
	StatusName   string     `json:"statusName"`
}

// NotGenerated is the pseudo-status of a plan task with no execution.
const NotGenerated = -1

var statusNames = map[int]string{
	NotGenerated:              "not-generated",
	int(store.TaskNotStarted): "not-started",
	int(store.TaskInProgress): "pending-submit",
	int(store.TaskSubmitted):  "in-approval",
	int(store.TaskCompleted):  "completed",
	int(store.TaskRejected):   "rejected",
}

func statusName(status int) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return fmt.Sprintf("status-%d", status)
}

// projectName renders the display name of a project tag. Names come from
// an external dictionary service outside this core; the tag itself is the
// fallback.
func projectName(projectID int64) string {
	return fmt.Sprintf("Project %d", projectID)
}

const deadlineSuffix = " 18:00:00"

const timestampLayout = "2006-01-02 15:04:05"
