package store

import (
	"context"
	"fmt"
)

// ScopeKind selects a data-scope predicate applied to task listings.
type ScopeKind int

const (
	// ScopeAll imposes no restriction.
	ScopeAll ScopeKind = iota
	// ScopeSelf restricts to tasks owned by the caller.
	ScopeSelf
	// ScopeDept restricts to tasks owned by the caller's own department.
	ScopeDept
	// ScopeDeptAndChildren restricts to the caller's department and every
	// descendant department.
	ScopeDeptAndChildren
	// ScopeRoles restricts to tasks owned by an explicit set of job numbers.
	ScopeRoles
)

// Scope is a structured data-scope value. Role scopes carry the job
// numbers they grant.
type Scope struct {
	Kind       ScopeKind
	JobNumbers []string
}

// TaskScopePredicate translates a scope into a SQL fragment over a
// task_execution row aliased te and its owner employee aliased e. The
// fragment uses ? placeholders and must be rebound through in() together
// with the enclosing query. An unsatisfiable scope (caller without a
// department, empty role set) yields FALSE rather than an open filter.
func (q *queries) TaskScopePredicate(ctx context.Context, scope Scope, caller *Employee) (string, []any, error) {
	switch scope.Kind {
	case ScopeAll:
		return "TRUE", nil, nil
	case ScopeSelf:
		return "te.job_number = ?", []any{caller.JobNumber}, nil
	case ScopeDept:
		if caller.OrganizationID == nil {
			return "FALSE", nil, nil
		}
		return "e.organization_id = ?", []any{*caller.OrganizationID}, nil
	case ScopeDeptAndChildren:
		if caller.OrganizationID == nil {
			return "FALSE", nil, nil
		}
		ids, err := q.ChildDepartmentIDs(ctx, *caller.OrganizationID)
		if err != nil {
			return "", nil, err
		}
		if len(ids) == 0 {
			return "FALSE", nil, nil
		}
		return "e.organization_id IN (?)", []any{ids}, nil
	case ScopeRoles:
		if len(scope.JobNumbers) == 0 {
			return "FALSE", nil, nil
		}
		return "te.job_number IN (?)", []any{scope.JobNumbers}, nil
	default:
		return "", nil, fmt.Errorf("unknown scope kind %d", scope.Kind)
	}
}

// ScopedTaskExecutions lists executions visible under a data scope. The
// employee join supplies the owner columns department scopes filter on.
func (q *queries) ScopedTaskExecutions(ctx context.Context, scope Scope, caller *Employee, statuses []TaskStatus) ([]TaskExecution, error) {
	pred, args, err := q.TaskScopePredicate(ctx, scope, caller)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + prefixColumns("te.", taskExecColumns) + `
		FROM task_execution te
		LEFT JOIN employee e ON e.job_number = te.job_number
		WHERE ` + pred
	if len(statuses) > 0 {
		query += ` AND te.status IN (?)`
		args = append(args, statuses)
	}
	query += ` ORDER BY te.id`
	expanded, bound, err := q.in(query, args...)
	if err != nil {
		return nil, err
	}
	var out []TaskExecution
	if err := q.selectAll(ctx, &out, expanded, bound...); err != nil {
		return nil, fmt.Errorf("list scoped task executions: %w", err)
	}
	return out, nil
}
