package store

import (
	"context"
	"fmt"
)

const employeeColumns = `job_number, name, organization_id, enable`

const departmentColumns = `id, code, name, parent_id, enable`

// EmployeeByJobNumber returns one enabled employee.
func (q *queries) EmployeeByJobNumber(ctx context.Context, jobNumber string) (*Employee, error) {
	var e Employee
	if err := q.get(ctx, &e,
		`SELECT `+employeeColumns+` FROM employee WHERE job_number = $1 AND enable`, jobNumber); err != nil {
		return nil, err
	}
	return &e, nil
}

// EmployeesByJobNumbers returns the enabled employees with the given job
// numbers, for batch name enrichment in the query views.
func (q *queries) EmployeesByJobNumbers(ctx context.Context, jobNumbers []string) ([]Employee, error) {
	if len(jobNumbers) == 0 {
		return nil, nil
	}
	query, args, err := q.in(
		`SELECT `+employeeColumns+` FROM employee WHERE enable AND job_number IN (?)`, jobNumbers)
	if err != nil {
		return nil, err
	}
	var out []Employee
	if err := q.selectAll(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return out, nil
}

// PositionHasActiveEmployee reports whether any enabled employee occupies
// the organization position. Unstaffed positions auto-approve.
func (q *queries) PositionHasActiveEmployee(ctx context.Context, positionID int64) (bool, error) {
	var n int
	if err := q.get(ctx, &n,
		`SELECT COUNT(*) FROM employee WHERE organization_id = $1 AND enable`, positionID); err != nil {
		return false, fmt.Errorf("check position %d occupancy: %w", positionID, err)
	}
	return n > 0, nil
}

// Department returns one enabled department.
func (q *queries) Department(ctx context.Context, id int64) (*Department, error) {
	var d Department
	if err := q.get(ctx, &d,
		`SELECT `+departmentColumns+` FROM department WHERE id = $1 AND enable`, id); err != nil {
		return nil, err
	}
	return &d, nil
}

// DepartmentsByIDs returns the enabled departments with the given IDs.
func (q *queries) DepartmentsByIDs(ctx context.Context, ids []int64) ([]Department, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := q.in(
		`SELECT `+departmentColumns+` FROM department WHERE enable AND id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var out []Department
	if err := q.selectAll(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return out, nil
}

// DepartmentByCode returns one enabled department by its hierarchical code.
func (q *queries) DepartmentByCode(ctx context.Context, code string) (*Department, error) {
	var d Department
	if err := q.get(ctx, &d,
		`SELECT `+departmentColumns+` FROM department WHERE code = $1 AND enable`, code); err != nil {
		return nil, err
	}
	return &d, nil
}

// ChildDepartmentIDs returns the IDs of the department and every enabled
// descendant, for the dept-and-children data scope.
func (q *queries) ChildDepartmentIDs(ctx context.Context, rootID int64) ([]int64, error) {
	var ids []int64
	err := q.selectAll(ctx, &ids, `
		WITH RECURSIVE sub AS (
			SELECT id FROM department WHERE id = $1 AND enable
			UNION ALL
			SELECT d.id FROM department d JOIN sub ON d.parent_id = sub.id WHERE d.enable
		)
		SELECT id FROM sub ORDER BY id`, rootID)
	if err != nil {
		return nil, fmt.Errorf("list child departments of %d: %w", rootID, err)
	}
	return ids, nil
}
