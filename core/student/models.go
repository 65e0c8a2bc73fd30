package student

import (
	"time"

	"github.com/trezcool/mahudhurio/core"
)

type Status string

const (
	StatusNormal           Status = "normal"
	StatusApproachingLimit Status = "approaching_limit"
	StatusGracePeriod      Status = "grace_period"
	StatusFined            Status = "fined"
)

// LateLog is one late event in the append-only ledger. Multiple entries may
// share a calendar day; the ledger is never deduplicated.
type LateLog struct {
	ID   string    `json:"id"`
	Date time.Time `json:"date"`
}

type Student struct {
	ID              string    `json:"-"`
	RollNo          string    `json:"rollNo"`
	Name            string    `json:"name"`
	Year            int       `json:"year"`
	Semester        int       `json:"semester"`
	LateDays        int       `json:"lateDays"`
	Fines           int       `json:"fines"`
	LateLogs        []LateLog `json:"lateLogs"`
	LimitExceeded   bool      `json:"limitExceeded"`
	GracePeriodUsed int       `json:"gracePeriodUsed"`
	IsInGracePeriod bool      `json:"isInGracePeriod"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// LogsBetween returns the ledger entries falling within [from, to].
func (s Student) LogsBetween(from, to time.Time) []LateLog {
	logs := make([]LateLog, 0, len(s.LateLogs))
	for _, lg := range s.LateLogs {
		if !lg.Date.Before(from) && !lg.Date.After(to) {
			logs = append(logs, lg)
		}
	}
	return logs
}

// --------------------------------------------------------------------------
// requests

type MarkLateRequest struct {
	RollNo string `json:"rollNo" validate:"required,alphanum_"`
	// Name and Year are only required when the roll number is unknown;
	// first-time marking doubles as registration.
	Name string `json:"name" validate:"omitempty,min=2,max=255"`
	Year int    `json:"year" validate:"omitempty,min=1,max=4"`
}

func (r *MarkLateRequest) Validate() error {
	r.RollNo = core.CleanString(r.RollNo)
	r.Name = core.CleanString(r.Name)
	return core.Validate.Struct(r)
}

type RemoveLateRecordRequest struct {
	RollNo       string `json:"rollNo" validate:"required,alphanum_"`
	Date         string `json:"date" validate:"required,dateonly"`
	Reason       string `json:"reason" validate:"required,min=3"`
	AuthorizedBy string `json:"authorizedBy" validate:"required,min=2"`
}

func (r *RemoveLateRecordRequest) Validate() error {
	r.RollNo = core.CleanString(r.RollNo)
	r.Date = core.CleanString(r.Date)
	r.Reason = core.CleanString(r.Reason)
	r.AuthorizedBy = core.CleanString(r.AuthorizedBy)
	return core.Validate.Struct(r)
}

// Day returns the calendar day targeted by the request.
// Validate must have been called first.
func (r RemoveLateRecordRequest) Day() time.Time {
	t, _ := parseDay(r.Date)
	return t
}

type SearchRequest struct {
	Query string `json:"q" validate:"required,min=2"`
	Year  int    `json:"year" validate:"omitempty,min=1,max=4"`
}

func (r *SearchRequest) Validate() error {
	r.Query = core.CleanString(r.Query)
	return core.Validate.Struct(r)
}

// Pagination is normalized before hitting the repository.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func (p *Pagination) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 50
	}
	if p.Limit > 200 {
		p.Limit = 200
	}
}

func (p Pagination) Offset() int { return (p.Page - 1) * p.Limit }

// Slice applies the pagination window to an in-memory result set.
// A zero limit means no windowing.
func (p Pagination) Slice(ss []Student) []Student {
	if p.Limit <= 0 {
		return ss
	}
	off := p.Offset()
	if off >= len(ss) {
		return nil
	}
	if end := off + p.Limit; end < len(ss) {
		return ss[off:end]
	}
	return ss[off:]
}

// --------------------------------------------------------------------------
// results

type MarkLateResult struct {
	Student            Student   `json:"student"`
	Message            string    `json:"message"`
	AlertType          AlertType `json:"alertType"`
	DaysRemaining      int       `json:"daysRemaining"`
	GraceDaysRemaining int       `json:"graceDaysRemaining"`
	NewlyRegistered    bool      `json:"newlyRegistered"`
}

type ChangeSet struct {
	LateDaysChange int  `json:"lateDaysChange"`
	FinesChange    int  `json:"finesChange"`
	StatusChanged  bool `json:"statusChanged"`
}

// AuditRecord captures a manual ledger correction. It is logged, not persisted.
type AuditRecord struct {
	Action         string    `json:"action"`
	RollNo         string    `json:"rollNo"`
	StudentName    string    `json:"studentName"`
	Date           string    `json:"date"`
	Reason         string    `json:"reason"`
	AuthorizedBy   string    `json:"authorizedBy"`
	Timestamp      time.Time `json:"timestamp"`
	RecordsRemoved int       `json:"recordsRemoved"`
	Changes        ChangeSet `json:"changes"`
}

type RemovalResult struct {
	Student        Student     `json:"student"`
	RemovedRecords int         `json:"removedRecords"`
	Date           string      `json:"date"`
	Changes        ChangeSet   `json:"changes"`
	Audit          AuditRecord `json:"audit"`
}

type PaginatedStudents struct {
	Students    []Student `json:"students"`
	TotalCount  int       `json:"totalCount"`
	TotalPages  int       `json:"totalPages"`
	CurrentPage int       `json:"currentPage"`
	HasNextPage bool      `json:"hasNextPage"`
	HasPrevPage bool      `json:"hasPrevPage"`
}

// PeriodStudent carries a student plus their late count within the queried window.
type PeriodStudent struct {
	Student
	LateCountInPeriod int `json:"lateCountInPeriod"`
}

type PeriodRecords struct {
	Period    string          `json:"period"`
	StartDate time.Time       `json:"startDate"`
	EndDate   time.Time       `json:"endDate"`
	Students  []PeriodStudent `json:"students"`
}

type Stats struct {
	TotalStudents    int         `json:"totalStudents"`
	StudentsWithLate int         `json:"studentsWithLateRecords"`
	InGracePeriod    int         `json:"studentsInGracePeriod"`
	Fined            int         `json:"studentsFined"`
	TotalFines       int         `json:"totalFines"`
	TotalLateDays    int         `json:"totalLateDays"`
	ByYear           map[int]int `json:"byYear"`
}
