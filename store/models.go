package store

import "time"

// Stage is a plan-side stage row. Edges reference other stages of the same
// project; the stage graph is validated acyclic before any write.
type Stage struct {
	StageID      int64      `db:"stage_id"`
	ProjectID    int64      `db:"project_id"`
	Name         string     `db:"name"`
	StartDate    *time.Time `db:"start_date"`
	EndDate      *time.Time `db:"end_date"`
	DurationDays *int       `db:"duration_days"`
	Predecessors Int64List  `db:"predecessor_ids"`
	Successors   Int64List  `db:"successor_ids"`
	Layout       JSONBlob   `db:"layout"`
	Enable       bool       `db:"enable"`
	CreateBy     string     `db:"create_by"`
	CreateAt     time.Time  `db:"create_at"`
	UpdateBy     string     `db:"update_by"`
	UpdateAt     time.Time  `db:"update_at"`
}

// Task is a plan-side task row. A task without a stage may exist while
// drafting but cannot carry edges and never materializes.
type Task struct {
	TaskID        int64        `db:"task_id"`
	ProjectID     int64        `db:"project_id"`
	StageID       *int64       `db:"stage_id"`
	Name          string       `db:"name"`
	Description   *string      `db:"description"`
	StartDate     *time.Time   `db:"start_date"`
	EndDate       *time.Time   `db:"end_date"`
	DurationDays  *int         `db:"duration_days"`
	JobNumber     *string      `db:"job_number"`
	Predecessors  Int64List    `db:"predecessor_ids"`
	Successors    Int64List    `db:"successor_ids"`
	Layout        JSONBlob     `db:"layout"`
	ApprovalType  ApprovalType `db:"approval_type"`
	ApprovalNodes Int64List    `db:"approval_nodes"`
	Enable        bool         `db:"enable"`
	CreateBy      string       `db:"create_by"`
	CreateAt      time.Time    `db:"create_at"`
	UpdateBy      string       `db:"update_by"`
	UpdateAt      time.Time    `db:"update_at"`
}

// StageExecution is the materialized instance of a plan stage. It shares
// the plan stage's ID and snapshots the edge sets at materialization time.
// Stages are born in progress.
type StageExecution struct {
	StageID          int64      `db:"stage_id"`
	ProjectID        int64      `db:"project_id"`
	Status           StageStatus `db:"status"`
	Predecessors     Int64List  `db:"predecessor_ids"`
	Successors       Int64List  `db:"successor_ids"`
	ActualStartAt    *time.Time `db:"actual_start_at"`
	ActualCompleteAt *time.Time `db:"actual_complete_at"`
	CreateAt         time.Time  `db:"create_at"`
	UpdateAt         time.Time  `db:"update_at"`
}

// TaskExecution is the materialized instance of a plan task, carrying a
// snapshot of every field an owner or approver acts on.
type TaskExecution struct {
	ID               int64      `db:"id"`
	TaskID           int64      `db:"task_id"`
	ProjectID        int64      `db:"project_id"`
	StageID          *int64     `db:"stage_id"`
	Name             string     `db:"name"`
	Description      *string    `db:"description"`
	StartDate        *time.Time `db:"start_date"`
	EndDate          *time.Time `db:"end_date"`
	DurationDays     *int       `db:"duration_days"`
	JobNumber        *string    `db:"job_number"`
	Predecessors     Int64List    `db:"predecessor_ids"`
	Successors       Int64List    `db:"successor_ids"`
	ApprovalType     ApprovalType `db:"approval_type"`
	ApprovalNodes    Int64List    `db:"approval_nodes"`
	Status           TaskStatus   `db:"status"`
	IsSkipped        bool       `db:"is_skipped"`
	ActualStartAt    *time.Time `db:"actual_start_at"`
	ActualCompleteAt *time.Time `db:"actual_complete_at"`
	CreateAt         time.Time  `db:"create_at"`
	UpdateAt         time.Time  `db:"update_at"`
}

// Application is one submission attempt of a task. A rejected and
// resubmitted task opens a fresh Application on its next submit.
type Application struct {
	ApplyID     string      `db:"apply_id"`
	ApplyType   int         `db:"apply_type"`
	ApplyStatus ApplyStatus `db:"apply_status"`
	CreateAt    time.Time   `db:"create_at"`
	UpdateAt    time.Time   `db:"update_at"`
}

// ApplyTypeTask is the only application type the core opens.
const ApplyTypeTask = 1

// ApprovalRule holds the immutable node sequence of an Application and the
// advancing cursor. ApprovedNodes is a prefix of Nodes by construction;
// CurrentNode is nil once the prefix is complete or after a rejection.
type ApprovalRule struct {
	ApplyID       string    `db:"apply_id"`
	Nodes         Int64List `db:"nodes"`
	ApprovedNodes Int64List `db:"approved_nodes"`
	CurrentNode   *int64    `db:"current_node"`
	CreateAt      time.Time `db:"create_at"`
	UpdateAt      time.Time `db:"update_at"`
}

// ApprovalLog is an append-only decision record.
type ApprovalLog struct {
	ID         int64          `db:"id"`
	ApplyID    string         `db:"apply_id"`
	Node       int64          `db:"node"`
	ApproverID string         `db:"approver_id"`
	Result     ApprovalResult `db:"result"`
	Comment    *string        `db:"comment"`
	Images     StringList     `db:"images"`
	StartAt    time.Time      `db:"start_at"`
	EndAt      time.Time      `db:"end_at"`
}

// TaskSubmission stores the payload the submitter attached when the
// Application was opened.
type TaskSubmission struct {
	ID              int64      `db:"id"`
	ApplyID         string     `db:"apply_id"`
	TaskExecutionID int64      `db:"task_execution_id"`
	SubmitText      *string    `db:"submit_text"`
	SubmitImages    StringList `db:"submit_images"`
	SubmitAt        time.Time  `db:"submit_at"`
}

// Employee is a read-only directory record synced by an external HR
// system. The core only ever reads it.
type Employee struct {
	JobNumber      string `db:"job_number"`
	Name           string `db:"name"`
	OrganizationID *int64 `db:"organization_id"`
	Enable         bool   `db:"enable"`
}

// Department is a read-only directory record. Code is hierarchical; the
// first five characters identify the second-level department.
type Department struct {
	ID       int64  `db:"id"`
	Code     string `db:"code"`
	Name     string `db:"name"`
	ParentID *int64 `db:"parent_id"`
	Enable   bool   `db:"enable"`
}
