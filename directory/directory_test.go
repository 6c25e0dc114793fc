package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline/taskflow/store"
)

type fakeStore struct {
	employees   map[string]*store.Employee
	departments map[int64]*store.Department
	byCode      map[string]*store.Department
}

func (f *fakeStore) EmployeeByJobNumber(_ context.Context, job string) (*store.Employee, error) {
	e, ok := f.employees[job]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e, nil
}

func (f *fakeStore) EmployeesByJobNumbers(_ context.Context, jobs []string) ([]store.Employee, error) {
	var out []store.Employee
	for _, j := range jobs {
		if e, ok := f.employees[j]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeStore) Department(_ context.Context, id int64) (*store.Department, error) {
	d, ok := f.departments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) DepartmentByCode(_ context.Context, code string) (*store.Department, error) {
	d, ok := f.byCode[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) DepartmentsByIDs(_ context.Context, ids []int64) ([]store.Department, error) {
	var out []store.Department
	for _, id := range ids {
		if d, ok := f.departments[id]; ok {
			out = append(out, *d)
		}
	}
	return out, nil
}

func TestSecondLevelCode(t *testing.T) {
	assert.Equal(t, "10203", SecondLevelCode("1020304050"))
	assert.Equal(t, "10203", SecondLevelCode("10203"))
	assert.Equal(t, "102", SecondLevelCode("102"))
}

func TestSecondLevelDepartment(t *testing.T) {
	org := int64(7)
	second := &store.Department{ID: 3, Code: "10203", Name: "Engineering", Enable: true}
	fs := &fakeStore{
		employees: map[string]*store.Employee{
			"E001": {JobNumber: "E001", OrganizationID: &org, Enable: true},
		},
		departments: map[int64]*store.Department{
			7: {ID: 7, Code: "1020304", Name: "Platform Team", Enable: true},
		},
		byCode: map[string]*store.Department{"10203": second},
	}
	svc := NewService(fs, nil)

	dept, err := svc.SecondLevelDepartment(context.Background(), fs.employees["E001"])
	require.NoError(t, err)
	require.NotNil(t, dept)
	assert.Equal(t, "Engineering", dept.Name)

	t.Run("employee without organization resolves to nil", func(t *testing.T) {
		dept, err := svc.SecondLevelDepartment(context.Background(), &store.Employee{JobNumber: "E002"})
		require.NoError(t, err)
		assert.Nil(t, dept)
	})

	t.Run("already second level returns itself", func(t *testing.T) {
		fs.departments[8] = second
		org8 := int64(8)
		dept, err := svc.SecondLevelDepartment(context.Background(),
			&store.Employee{JobNumber: "E003", OrganizationID: &org8})
		require.NoError(t, err)
		require.NotNil(t, dept)
		assert.Equal(t, int64(3), dept.ID)
	})
}

func TestEmployeeNamesSkipsUnknown(t *testing.T) {
	fs := &fakeStore{employees: map[string]*store.Employee{
		"E001": {JobNumber: "E001", Name: "Ada", Enable: true},
	}}
	names, err := NewService(fs, nil).EmployeeNames(context.Background(),
		[]string{"E001", "E001", "", "E999"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"E001": "Ada"}, names)
}
