// Package plan holds the configuration payload schema, the pure graph
// validator, the edit guard protecting materialized entities, and the
// two-pass identity reconciler that persists a payload under row locks.
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/crestline/taskflow/store"
)

// Date is a calendar day serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate wraps a time as a Date.
func NewDate(t time.Time) *Date {
	return &Date{Time: t}
}

// UnmarshalJSON parses a YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	d.Time = t
	return nil
}

// MarshalJSON renders YYYY-MM-DD.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

// FlexInt64 accepts both a JSON number and a numeric string.
type FlexInt64 int64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("must be an integer or numeric string: %w", err)
	}
	*f = FlexInt64(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f FlexInt64) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(f))
}

// Payload is the full plan of one project as submitted by the
// configuration UI. IDs at or below zero are temporary handles resolved
// by the reconciler.
type Payload struct {
	ProjectID FlexInt64      `json:"projectId" validate:"required"`
	Stages    []StagePayload `json:"stages" validate:"dive"`
	Tasks     []TaskPayload  `json:"tasks" validate:"dive"`
}

// StagePayload is one stage of the payload.
type StagePayload struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name" validate:"required"`
	StartTime         *Date           `json:"startTime"`
	EndTime           *Date           `json:"endTime"`
	Duration          *int            `json:"duration" validate:"omitempty,min=0"`
	PredecessorStages []int64         `json:"predecessorStages"`
	SuccessorStages   []int64         `json:"successorStages"`
	Position          json.RawMessage `json:"position"`
	ProjectID         FlexInt64       `json:"projectId"`
}

// TaskPayload is one task of the payload.
type TaskPayload struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name" validate:"required"`
	Description      *string         `json:"description"`
	StartTime        *Date           `json:"startTime"`
	EndTime          *Date           `json:"endTime"`
	Duration         *int            `json:"duration" validate:"omitempty,min=0"`
	JobNumber        *string         `json:"jobNumber"`
	StageID          *int64          `json:"stageId"`
	PredecessorTasks []int64         `json:"predecessorTasks"`
	SuccessorTasks   []int64         `json:"successorTasks"`
	Position         json.RawMessage `json:"position"`
	ProjectID        FlexInt64       `json:"projectId"`
	ApprovalType     string          `json:"approvalType" validate:"omitempty,oneof=none specified sequential"`
	ApprovalNodes    []int64         `json:"approvalNodes"`
}

// FieldError is one structured schema violation, rendered in the 400
// envelope as data.errors entries.
type FieldError struct {
	Field   string `json:"field"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Input   any    `json:"input"`
}

// SchemaError carries every field violation of one payload.
type SchemaError struct {
	Errors []FieldError
}

func (e *SchemaError) Error() string {
	if len(e.Errors) == 0 {
		return "invalid payload"
	}
	return fmt.Sprintf("invalid payload: %s %s", e.Errors[0].Field, e.Errors[0].Message)
}

var validate = validator.New()

// DecodePayload strictly decodes and validates a payload. Unknown keys
// are rejected; field violations come back as a SchemaError.
func DecodePayload(r io.Reader) (*Payload, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, &SchemaError{Errors: []FieldError{{
			Field:   "body",
			Type:    "json",
			Message: err.Error(),
		}}}
	}
	if err := validate.Struct(&p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("validate payload: %w", err)
		}
		se := &SchemaError{}
		for _, fe := range verrs {
			se.Errors = append(se.Errors, FieldError{
				Field:   fe.Namespace(),
				Type:    fe.Tag(),
				Message: fmt.Sprintf("failed %q validation", fe.Tag()),
				Input:   fe.Value(),
			})
		}
		return nil, se
	}
	normalize(&p)
	return &p, nil
}

// normalize fills defaults the UI omits.
func normalize(p *Payload) {
	for i := range p.Tasks {
		if p.Tasks[i].ApprovalType == "" {
			p.Tasks[i].ApprovalType = string(store.ApprovalNone)
		}
	}
}
