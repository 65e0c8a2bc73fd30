package student

import (
	"context"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
)

var (
	// ErrNotFound is returned when a roll number matches no student.
	ErrNotFound = errors.New("student not found")

	// ErrRollNoExists is returned on an attempt to register a roll number twice.
	ErrRollNoExists = errors.New("a student with this roll number already exists")

	// ErrNoRecordOnDate is returned when a removal targets a day with no ledger entries.
	ErrNoRecordOnDate = errors.New("no late record found for the specified date")

	// ErrNoStudents is returned by bulk operations that require at least one student.
	ErrNoStudents = errors.New("no students found")
)

type (
	// QueryFilter narrows repository listings. Zero values mean "no filter".
	QueryFilter struct {
		Search string
		Year   int
	}

	Repository interface {
		GetStudent(ctx context.Context, rollNo string) (Student, error)
		CreateStudent(ctx context.Context, s Student) (Student, error)
		UpdateStudent(ctx context.Context, s Student) (Student, error)
		QueryStudents(ctx context.Context, filter QueryFilter, page Pagination) ([]Student, int, error)
		QueryLateBetween(ctx context.Context, from, to time.Time, page Pagination) ([]Student, int, error)
		PromoteSemester(ctx context.Context) (int, error)
		ResetAllData(ctx context.Context) (int, error)
		DeleteStudent(ctx context.Context, rollNo string) error
		DeleteAllStudents(ctx context.Context) (int, error)
		CountStudents(ctx context.Context) (int, error)
		Stats(ctx context.Context) (Stats, error)
	}

	ServiceInterface interface {
		MarkLate(ctx context.Context, data MarkLateRequest) (*MarkLateResult, error)
		RemoveLateRecord(ctx context.Context, data RemoveLateRecordRequest) (*RemovalResult, error)
		LateToday(ctx context.Context, page Pagination) (*PeriodRecords, *PaginatedStudents, error)
		Records(ctx context.Context, period string) (*PeriodRecords, error)
		Search(ctx context.Context, data SearchRequest, page Pagination) (*PaginatedStudents, error)
		Get(ctx context.Context, rollNo string) (Student, error)
		All(ctx context.Context, page Pagination) (*PaginatedStudents, error)
		Export(ctx context.Context) ([]Student, error)
		PromoteSemester(ctx context.Context) (int, error)
		ResetAllData(ctx context.Context) (int, error)
		Delete(ctx context.Context, rollNo string) (Student, error)
		DeleteAll(ctx context.Context) (int, error)
		SystemStats(ctx context.Context) (Stats, error)
		Health(ctx context.Context) (int, error)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
		pol     Policy
		clock   func() time.Time // mockable
		locks   rollLocks
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
		pol:     PolicyFromConfig(conf),
		clock:   time.Now,
		locks:   rollLocks{locks: make(map[string]*sync.Mutex)},
	}
}

// MarkLate appends one late event to the student's ledger and resolves the
// consequences. An unknown roll number registers the student on the fly,
// provided name and year accompany the request.
//
// Marking is serialized per roll number so two concurrent marks cannot read
// the same ledger and drop an event.
func (svc *service) MarkLate(ctx context.Context, data MarkLateRequest) (*MarkLateResult, error) {
	unlock := svc.locks.lock(data.RollNo)
	defer unlock()

	now := svc.clock()
	var registered bool

	s, err := svc.repo.GetStudent(ctx, data.RollNo)
	switch errors.Cause(err) {
	case nil:
	case ErrNotFound:
		if data.Name == "" || data.Year == 0 {
			return nil, core.NewValidationError(
				errors.New("new student detected; name and year are required for first-time registration"),
				core.FieldError{Field: "name", Error: "required for new students"},
				core.FieldError{Field: "year", Error: "required for new students"},
			)
		}
		s = Student{
			RollNo:    data.RollNo,
			Name:      data.Name,
			Year:      data.Year,
			Semester:  1,
			Status:    StatusNormal,
			CreatedAt: now,
		}
		registered = true
	default:
		return nil, err
	}

	s.LateLogs = append(s.LateLogs, LateLog{ID: uuid.New().String(), Date: now})
	s.LateDays++
	s.UpdatedAt = now
	res := Resolve(&s, svc.pol)

	if registered {
		if s, err = svc.repo.CreateStudent(ctx, s); err != nil {
			return nil, err
		}
	} else {
		if s, err = svc.repo.UpdateStudent(ctx, s); err != nil {
			return nil, err
		}
	}

	if res.FineCharged > 0 && s.Fines == res.FineCharged {
		// first fine for this student
		svc.notifyFined(s, res)
	}
	svc.logger.Info(fmt.Sprintf("student marked late: %s (status=%s, lateDays=%d)", s.RollNo, s.Status, s.LateDays))

	return &MarkLateResult{
		Student:            s,
		Message:            res.Message,
		AlertType:          res.Alert,
		DaysRemaining:      DaysRemaining(s, svc.pol),
		GraceDaysRemaining: GraceDaysRemaining(s, svc.pol),
		NewlyRegistered:    registered,
	}, nil
}

// RemoveLateRecord removes every ledger entry on the given calendar day and
// rebuilds the student's attendance state from the remaining ledger.
// The correction is written to the audit log; it is not persisted.
func (svc *service) RemoveLateRecord(ctx context.Context, data RemoveLateRecordRequest) (*RemovalResult, error) {
	unlock := svc.locks.lock(data.RollNo)
	defer unlock()

	s, err := svc.repo.GetStudent(ctx, data.RollNo)
	if err != nil {
		return nil, err
	}

	start, end := core.DayBounds(data.Day())
	kept := make([]LateLog, 0, len(s.LateLogs))
	removed := 0
	for _, lg := range s.LateLogs {
		if !lg.Date.Before(start) && !lg.Date.After(end) {
			removed++
			continue
		}
		kept = append(kept, lg)
	}
	if removed == 0 {
		return nil, ErrNoRecordOnDate
	}

	prevLateDays, prevFines, prevStatus := s.LateDays, s.Fines, s.Status

	s.LateLogs = kept
	Recompute(&s, svc.pol)
	s.UpdatedAt = svc.clock()

	if s, err = svc.repo.UpdateStudent(ctx, s); err != nil {
		return nil, err
	}

	changes := ChangeSet{
		LateDaysChange: s.LateDays - prevLateDays,
		FinesChange:    s.Fines - prevFines,
		StatusChanged:  s.Status != prevStatus,
	}
	audit := AuditRecord{
		Action:         "remove_late_record",
		RollNo:         s.RollNo,
		StudentName:    s.Name,
		Date:           data.Date,
		Reason:         data.Reason,
		AuthorizedBy:   data.AuthorizedBy,
		Timestamp:      svc.clock(),
		RecordsRemoved: removed,
		Changes:        changes,
	}
	svc.logger.Info("late record removed", audit)

	return &RemovalResult{
		Student:        s,
		RemovedRecords: removed,
		Date:           data.Date,
		Changes:        changes,
		Audit:          audit,
	}, nil
}

// LateToday lists the students with at least one ledger entry today, each with
// their logs filtered down to today's window.
func (svc *service) LateToday(ctx context.Context, page Pagination) (*PeriodRecords, *PaginatedStudents, error) {
	page.Normalize()
	start, end := core.DayBounds(svc.clock())

	students, total, err := svc.repo.QueryLateBetween(ctx, start, end, page)
	if err != nil {
		return nil, nil, err
	}

	recs := &PeriodRecords{Period: "today", StartDate: start, EndDate: end}
	for _, s := range students {
		logs := s.LogsBetween(start, end)
		s.LateLogs = logs
		recs.Students = append(recs.Students, PeriodStudent{Student: s, LateCountInPeriod: len(logs)})
	}
	return recs, paginate(students, total, page), nil
}

// Records lists students late within the named period: weekly (last 7 days),
// monthly (since the 1st) or semester (since Aug 1 / Jan 1).
func (svc *service) Records(ctx context.Context, period string) (*PeriodRecords, error) {
	now := svc.clock()
	var start time.Time
	switch period {
	case "weekly":
		start = now.AddDate(0, 0, -7)
	case "monthly":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	case "semester":
		// Aug-Dec is the first semester, Jan-Jul the second.
		if now.Month() >= time.August {
			start = time.Date(now.Year(), time.August, 1, 0, 0, 0, 0, now.Location())
		} else {
			start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		}
	default:
		return nil, core.NewValidationError(
			errors.New("invalid period"),
			core.FieldError{Field: "period", Error: "must be one of: weekly, monthly, semester"},
		)
	}

	students, _, err := svc.repo.QueryLateBetween(ctx, start, now, Pagination{Page: 1, Limit: 0})
	if err != nil {
		return nil, err
	}

	recs := &PeriodRecords{Period: period, StartDate: start, EndDate: now}
	for _, s := range students {
		logs := s.LogsBetween(start, now)
		s.LateLogs = logs
		recs.Students = append(recs.Students, PeriodStudent{Student: s, LateCountInPeriod: len(logs)})
	}
	return recs, nil
}

func (svc *service) Search(ctx context.Context, data SearchRequest, page Pagination) (*PaginatedStudents, error) {
	page.Normalize()
	students, total, err := svc.repo.QueryStudents(ctx, QueryFilter{Search: data.Query, Year: data.Year}, page)
	if err != nil {
		return nil, err
	}
	return paginate(students, total, page), nil
}

func (svc *service) Get(ctx context.Context, rollNo string) (Student, error) {
	return svc.repo.GetStudent(ctx, core.CleanString(rollNo))
}

func (svc *service) All(ctx context.Context, page Pagination) (*PaginatedStudents, error) {
	page.Normalize()
	students, total, err := svc.repo.QueryStudents(ctx, QueryFilter{}, page)
	if err != nil {
		return nil, err
	}
	return paginate(students, total, page), nil
}

// Export returns the full student body, unpaginated, for file dumps.
func (svc *service) Export(ctx context.Context) ([]Student, error) {
	students, _, err := svc.repo.QueryStudents(ctx, QueryFilter{}, Pagination{Page: 1})
	return students, err
}

// PromoteSemester advances every student to the next semester and clears all
// attendance state for the new term.
func (svc *service) PromoteSemester(ctx context.Context) (int, error) {
	n, err := svc.repo.PromoteSemester(ctx)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNoStudents
	}
	svc.logger.Info(fmt.Sprintf("semester promoted for %d students", n))
	return n, nil
}

// ResetAllData clears every student's attendance state without touching
// registration or semester.
func (svc *service) ResetAllData(ctx context.Context) (int, error) {
	n, err := svc.repo.ResetAllData(ctx)
	if err != nil {
		return 0, err
	}
	svc.logger.Warn(fmt.Sprintf("attendance data reset for %d students", n))
	return n, nil
}

func (svc *service) Delete(ctx context.Context, rollNo string) (Student, error) {
	rollNo = core.CleanString(rollNo)
	s, err := svc.repo.GetStudent(ctx, rollNo)
	if err != nil {
		return Student{}, err
	}
	if err = svc.repo.DeleteStudent(ctx, rollNo); err != nil {
		return Student{}, err
	}
	svc.logger.Info(fmt.Sprintf("student deleted: %s (%s)", s.RollNo, s.Name))
	return s, nil
}

func (svc *service) DeleteAll(ctx context.Context) (int, error) {
	n, err := svc.repo.DeleteAllStudents(ctx)
	if err != nil {
		return 0, err
	}
	svc.logger.Warn(fmt.Sprintf("all students deleted (%d)", n))
	return n, nil
}

func (svc *service) SystemStats(ctx context.Context) (Stats, error) {
	return svc.repo.Stats(ctx)
}

// Health checks database connectivity with a hard 5s cap and returns the
// student count.
func (svc *service) Health(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := svc.repo.CountStudents(ctx)
	if err != nil {
		return 0, core.NewUnavailableError(err)
	}
	return n, nil
}

func (svc *service) notifyFined(s Student, res Resolution) {
	if svc.mailSvc == nil {
		return
	}
	msg := &core.EmailMessage{
		To:      []mail.Address{svc.conf.AdminNotifyEmail()},
		Subject: fmt.Sprintf("[%s] fine charged: %s (%s)", svc.conf.AppName, s.Name, s.RollNo),
		BodyStr: fmt.Sprintf(
			"%s\n\nroll no: %s\nyear: %d, semester: %d\nlate days: %d\ntotal fines: %d",
			res.Message, s.RollNo, s.Year, s.Semester, s.LateDays, s.Fines,
		),
	}
	svc.mailSvc.SendMessages(msg)
}

func paginate(students []Student, total int, page Pagination) *PaginatedStudents {
	totalPages := 0
	if page.Limit > 0 {
		totalPages = (total + page.Limit - 1) / page.Limit
	}
	return &PaginatedStudents{
		Students:    students,
		TotalCount:  total,
		TotalPages:  totalPages,
		CurrentPage: page.Page,
		HasNextPage: page.Page < totalPages,
		HasPrevPage: page.Page > 1,
	}
}

// rollLocks serializes writes per roll number. Entries are never evicted;
// the key space is bounded by the student body.
type rollLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *rollLocks) lock(key string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = new(sync.Mutex)
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
