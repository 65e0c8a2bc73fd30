// Package dummy provides an in-memory Repository implementation for tests.
package dummy

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/mahudhurio/core/student"
)

type studentRepo struct {
	mu       sync.RWMutex
	students map[string]student.Student // by roll number
}

var _ student.Repository = (*studentRepo)(nil)

func NewStudentRepository() *studentRepo {
	return &studentRepo{students: make(map[string]student.Student)}
}

func clone(s student.Student) student.Student {
	logs := make([]student.LateLog, len(s.LateLogs))
	copy(logs, s.LateLogs)
	s.LateLogs = logs
	return s
}

func (repo *studentRepo) GetStudent(_ context.Context, rollNo string) (student.Student, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	s, ok := repo.students[rollNo]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	return clone(s), nil
}

func (repo *studentRepo) CreateStudent(_ context.Context, s student.Student) (student.Student, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if _, ok := repo.students[s.RollNo]; ok {
		return student.Student{}, student.ErrRollNoExists
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	repo.students[s.RollNo] = clone(s)
	return clone(s), nil
}

func (repo *studentRepo) UpdateStudent(_ context.Context, s student.Student) (student.Student, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if _, ok := repo.students[s.RollNo]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	repo.students[s.RollNo] = clone(s)
	return clone(s), nil
}

func (repo *studentRepo) QueryStudents(_ context.Context, filter student.QueryFilter, page student.Pagination) ([]student.Student, int, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	var res []student.Student
	q := strings.ToLower(filter.Search)
	for _, s := range repo.students {
		if q != "" && !strings.Contains(strings.ToLower(s.RollNo), q) && !strings.Contains(strings.ToLower(s.Name), q) {
			continue
		}
		if filter.Year != 0 && s.Year != filter.Year {
			continue
		}
		res = append(res, clone(s))
	}
	sortStudents(res)
	total := len(res)
	return page.Slice(res), total, nil
}

func (repo *studentRepo) QueryLateBetween(_ context.Context, from, to time.Time, page student.Pagination) ([]student.Student, int, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	var res []student.Student
	for _, s := range repo.students {
		if len(s.LogsBetween(from, to)) > 0 {
			res = append(res, clone(s))
		}
	}
	sortStudents(res)
	total := len(res)
	return page.Slice(res), total, nil
}

func (repo *studentRepo) PromoteSemester(_ context.Context) (int, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for rollNo, s := range repo.students {
		s.Semester++
		resetAttendance(&s)
		repo.students[rollNo] = s
	}
	return len(repo.students), nil
}

func (repo *studentRepo) ResetAllData(_ context.Context) (int, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for rollNo, s := range repo.students {
		resetAttendance(&s)
		repo.students[rollNo] = s
	}
	return len(repo.students), nil
}

func (repo *studentRepo) DeleteStudent(_ context.Context, rollNo string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if _, ok := repo.students[rollNo]; !ok {
		return student.ErrNotFound
	}
	delete(repo.students, rollNo)
	return nil
}

func (repo *studentRepo) DeleteAllStudents(_ context.Context) (int, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	n := len(repo.students)
	repo.students = make(map[string]student.Student)
	return n, nil
}

func (repo *studentRepo) CountStudents(_ context.Context) (int, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	return len(repo.students), nil
}

func (repo *studentRepo) Stats(_ context.Context) (student.Stats, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	stats := student.Stats{ByYear: make(map[int]int)}
	for _, s := range repo.students {
		stats.TotalStudents++
		if s.LateDays > 0 {
			stats.StudentsWithLate++
		}
		switch s.Status {
		case student.StatusGracePeriod:
			stats.InGracePeriod++
		case student.StatusFined:
			stats.Fined++
		}
		stats.TotalFines += s.Fines
		stats.TotalLateDays += s.LateDays
		stats.ByYear[s.Year]++
	}
	return stats, nil
}

func resetAttendance(s *student.Student) {
	s.LateDays = 0
	s.Fines = 0
	s.LateLogs = nil
	s.LimitExceeded = false
	s.GracePeriodUsed = 0
	s.IsInGracePeriod = false
	s.Status = student.StatusNormal
}

func sortStudents(ss []student.Student) {
	sort.Slice(ss, func(i, j int) bool {
		if ss[i].LateDays != ss[j].LateDays {
			return ss[i].LateDays > ss[j].LateDays
		}
		return ss[i].RollNo < ss[j].RollNo
	})
}
