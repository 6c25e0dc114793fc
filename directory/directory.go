// Package directory reads the HR-synced employee and department records.
// The records are write-owned by an external sync; this service only ever
// reads them, mainly to enrich task projections with owner names and
// second-level departments.
package directory

import (
	"context"
	"errors"
	"log/slog"

	"github.com/crestline/taskflow/store"
)

// Department codes are hierarchical; the first five characters identify
// the second-level department a code belongs to.
const secondLevelCodeLen = 5

// SecondLevelCode derives the second-level department code. Codes shorter
// than the prefix are already at or above the second level.
func SecondLevelCode(code string) string {
	if len(code) <= secondLevelCodeLen {
		return code
	}
	return code[:secondLevelCodeLen]
}

// Store is the read slice of the store the service uses.
type Store interface {
	EmployeeByJobNumber(ctx context.Context, jobNumber string) (*store.Employee, error)
	EmployeesByJobNumbers(ctx context.Context, jobNumbers []string) ([]store.Employee, error)
	Department(ctx context.Context, id int64) (*store.Department, error)
	DepartmentByCode(ctx context.Context, code string) (*store.Department, error)
	DepartmentsByIDs(ctx context.Context, ids []int64) ([]store.Department, error)
}

// Service resolves employees and their departments.
type Service struct {
	st     Store
	logger *slog.Logger
}

// NewService creates a directory service.
func NewService(st Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{st: st, logger: logger}
}

// Employee returns one enabled employee, or store.ErrNotFound.
func (s *Service) Employee(ctx context.Context, jobNumber string) (*store.Employee, error) {
	return s.st.EmployeeByJobNumber(ctx, jobNumber)
}

// SecondLevelDepartment resolves the second-level department of an
// employee. Employees without an organization, or whose department chain
// is broken, resolve to nil rather than an error: directory gaps must not
// break task listings.
func (s *Service) SecondLevelDepartment(ctx context.Context, emp *store.Employee) (*store.Department, error) {
	if emp.OrganizationID == nil {
		return nil, nil
	}
	dept, err := s.st.Department(ctx, *emp.OrganizationID)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("employee organization missing from directory",
			"job_number", emp.JobNumber, "organization_id", *emp.OrganizationID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	code := SecondLevelCode(dept.Code)
	if code == dept.Code {
		return dept, nil
	}
	second, err := s.st.DepartmentByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return second, nil
}

// DepartmentNames resolves display names for a set of department IDs.
// Unknown IDs are simply absent from the result.
func (s *Service) DepartmentNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	depts, err := s.st.DepartmentsByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(depts))
	for _, d := range depts {
		names[d.ID] = d.Name
	}
	return names, nil
}

// EmployeeNames resolves display names for a set of job numbers. Unknown
// numbers are simply absent from the result.
func (s *Service) EmployeeNames(ctx context.Context, jobNumbers []string) (map[string]string, error) {
	unique := make([]string, 0, len(jobNumbers))
	seen := make(map[string]bool, len(jobNumbers))
	for _, j := range jobNumbers {
		if j == "" || seen[j] {
			continue
		}
		seen[j] = true
		unique = append(unique, j)
	}
	emps, err := s.st.EmployeesByJobNumbers(ctx, unique)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(emps))
	for _, e := range emps {
		names[e.JobNumber] = e.Name
	}
	return names, nil
}
