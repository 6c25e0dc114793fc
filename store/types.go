package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StageStatus is the lifecycle status of a StageExecution.
type StageStatus int

const (
	StageNotStarted StageStatus = 0
	StageInProgress StageStatus = 1
	StageCompleted  StageStatus = 2
)

// TaskStatus is the lifecycle status of a TaskExecution.
type TaskStatus int

const (
	TaskNotStarted TaskStatus = 0
	TaskInProgress TaskStatus = 1
	TaskSubmitted  TaskStatus = 2
	TaskCompleted  TaskStatus = 3
	TaskRejected   TaskStatus = 4
)

// ApplyStatus is the lifecycle status of an Application.
type ApplyStatus int

const (
	ApplyInApproval ApplyStatus = 0
	ApplyCompleted  ApplyStatus = 1
	ApplyRejected   ApplyStatus = 2
	ApplyWithdrawn  ApplyStatus = 3
)

// ApprovalResult classifies an ApprovalLog entry.
type ApprovalResult int

const (
	ResultSubmit  ApprovalResult = 0
	ResultApprove ApprovalResult = 1
	ResultReject  ApprovalResult = 2
)

// ApprovalType selects how a task is approved after submission.
type ApprovalType string

const (
	ApprovalNone       ApprovalType = "none"
	ApprovalSpecified  ApprovalType = "specified"
	ApprovalSequential ApprovalType = "sequential"
)

// Int64List is an []int64 stored as a jsonb column. An empty list is
// persisted as NULL and scans back as a nil slice.
type Int64List []int64

// Value implements driver.Valuer.
func (l Int64List) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	return json.Marshal([]int64(l))
}

// Scan implements sql.Scanner.
func (l *Int64List) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Int64List", src)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	var out []int64
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decode Int64List: %w", err)
	}
	*l = out
	return nil
}

// Contains reports whether id is present in the list.
func (l Int64List) Contains(id int64) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// StringList is a []string stored as a jsonb column, with the same
// NULL/empty convention as Int64List.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	return json.Marshal([]string(l))
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decode StringList: %w", err)
	}
	*l = out
	return nil
}

// JSONBlob is an opaque jsonb payload the core never interprets, such as
// the canvas layout the configuration UI attaches to stages and tasks.
type JSONBlob []byte

// Value implements driver.Valuer.
func (b JSONBlob) Value() (driver.Value, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return []byte(b), nil
}

// Scan implements sql.Scanner.
func (b *JSONBlob) Scan(src any) error {
	if src == nil {
		*b = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		*b = append((*b)[:0], v...)
	case string:
		*b = JSONBlob(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONBlob", src)
	}
	return nil
}

// MarshalJSON renders the raw payload, or null when empty.
func (b JSONBlob) MarshalJSON() ([]byte, error) {
	if len(b) == 0 {
		return []byte("null"), nil
	}
	return b, nil
}

// UnmarshalJSON stores the raw payload verbatim.
func (b *JSONBlob) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	*b = append((*b)[:0], data...)
	return nil
}
