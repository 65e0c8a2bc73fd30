package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/student"
)

const pqUniqueViolation = "23505"

// studentRow mirrors the students table. The ledger lives in a jsonb column
// so a student and their logs are always read and written as one row.
type studentRow struct {
	ID              string    `db:"id"`
	RollNo          string    `db:"roll_no"`
	Name            string    `db:"name"`
	Year            int       `db:"year"`
	Semester        int       `db:"semester"`
	LateDays        int       `db:"late_days"`
	Fines           int       `db:"fines"`
	LateLogs        []byte    `db:"late_logs"`
	LimitExceeded   bool      `db:"limit_exceeded"`
	GracePeriodUsed int       `db:"grace_period_used"`
	IsInGracePeriod bool      `db:"is_in_grace_period"`
	Status          string    `db:"status"`
	CreatedAt       null.Time `db:"created_at"`
	UpdatedAt       null.Time `db:"updated_at"`
}

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo studentRepository) pack(s student.Student) (studentRow, error) {
	logs := s.LateLogs
	if logs == nil {
		logs = []student.LateLog{}
	}
	rawLogs, err := json.Marshal(logs)
	if err != nil {
		return studentRow{}, errors.Wrap(err, "encoding late logs")
	}
	return studentRow{
		ID:              s.ID,
		RollNo:          s.RollNo,
		Name:            s.Name,
		Year:            s.Year,
		Semester:        s.Semester,
		LateDays:        s.LateDays,
		Fines:           s.Fines,
		LateLogs:        rawLogs,
		LimitExceeded:   s.LimitExceeded,
		GracePeriodUsed: s.GracePeriodUsed,
		IsInGracePeriod: s.IsInGracePeriod,
		Status:          string(s.Status),
		CreatedAt:       null.NewTime(s.CreatedAt.UTC(), !s.CreatedAt.IsZero()),
		UpdatedAt:       null.NewTime(s.UpdatedAt.UTC(), !s.UpdatedAt.IsZero()),
	}, nil
}

func (repo studentRepository) unpack(row studentRow) (student.Student, error) {
	var logs []student.LateLog
	if len(row.LateLogs) > 0 {
		if err := json.Unmarshal(row.LateLogs, &logs); err != nil {
			return student.Student{}, errors.Wrap(err, "decoding late logs")
		}
	}
	return student.Student{
		ID:              row.ID,
		RollNo:          row.RollNo,
		Name:            row.Name,
		Year:            row.Year,
		Semester:        row.Semester,
		LateDays:        row.LateDays,
		Fines:           row.Fines,
		LateLogs:        logs,
		LimitExceeded:   row.LimitExceeded,
		GracePeriodUsed: row.GracePeriodUsed,
		IsInGracePeriod: row.IsInGracePeriod,
		Status:          student.Status(row.Status),
		CreatedAt:       row.CreatedAt.Time,
		UpdatedAt:       row.UpdatedAt.Time,
	}, nil
}

func (repo studentRepository) unpackSlice(rows []studentRow) ([]student.Student, error) {
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		s, err := repo.unpack(row)
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, nil
}

// trapErr maps driver errors to the domain taxonomy.
func (repo studentRepository) trapErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return student.ErrNotFound
	}
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
		return student.ErrRollNoExists
	}
	if isConnErr(err) {
		return core.NewUnavailableError(err)
	}
	return errors.Wrap(err, msg)
}

func isConnErr(err error) bool {
	if err == driver.ErrBadConn || err == context.DeadlineExceeded {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (repo studentRepository) GetStudent(ctx context.Context, rollNo string) (student.Student, error) {
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM students WHERE roll_no = $1", rollNo); err != nil {
		return student.Student{}, repo.trapErr(err, "getting student")
	}
	return repo.unpack(row)
}

const insertStudentQuery = `
INSERT INTO students (
	id, roll_no, name, year, semester, late_days, fines, late_logs,
	limit_exceeded, grace_period_used, is_in_grace_period, status, created_at, updated_at
) VALUES (
	:id, :roll_no, :name, :year, :semester, :late_days, :fines, :late_logs,
	:limit_exceeded, :grace_period_used, :is_in_grace_period, :status, :created_at, :updated_at
)`

func (repo studentRepository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	s.ID = uuid.New().String()
	row, err := repo.pack(s)
	if err != nil {
		return student.Student{}, err
	}
	if _, err = repo.db.NamedExecContext(ctx, insertStudentQuery, row); err != nil {
		return student.Student{}, repo.trapErr(err, "inserting student")
	}
	return s, nil
}

const updateStudentQuery = `
UPDATE students SET
	name = :name, year = :year, semester = :semester, late_days = :late_days,
	fines = :fines, late_logs = :late_logs, limit_exceeded = :limit_exceeded,
	grace_period_used = :grace_period_used, is_in_grace_period = :is_in_grace_period,
	status = :status, updated_at = :updated_at
WHERE id = :id`

func (repo studentRepository) UpdateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	row, err := repo.pack(s)
	if err != nil {
		return student.Student{}, err
	}
	res, err := repo.db.NamedExecContext(ctx, updateStudentQuery, row)
	if err != nil {
		return student.Student{}, repo.trapErr(err, "updating student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return s, nil
}

func (repo studentRepository) QueryStudents(
	ctx context.Context, filter student.QueryFilter, page student.Pagination,
) ([]student.Student, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(roll_no ILIKE $%d OR name ILIKE $%d)", len(args), len(args)))
	}
	if filter.Year != 0 {
		args = append(args, filter.Year)
		conds = append(conds, fmt.Sprintf("year = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	return repo.queryPage(ctx, where, args, page)
}

func (repo studentRepository) QueryLateBetween(
	ctx context.Context, from, to time.Time, page student.Pagination,
) ([]student.Student, int, error) {
	where := ` WHERE EXISTS (
		SELECT 1 FROM jsonb_array_elements(late_logs) entry
		WHERE (entry->>'date')::timestamptz BETWEEN $1 AND $2
	)`
	return repo.queryPage(ctx, where, []interface{}{from, to}, page)
}

// queryPage runs a filtered listing plus its total count. Students needing
// attention come first: most late days, then roll number.
func (repo studentRepository) queryPage(
	ctx context.Context, where string, args []interface{}, page student.Pagination,
) ([]student.Student, int, error) {
	var total int
	if err := repo.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students"+where, args...); err != nil {
		return nil, 0, repo.trapErr(err, "counting students")
	}

	query := "SELECT * FROM students" + where + " ORDER BY late_days DESC, roll_no ASC"
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Offset())
	}
	var rows []studentRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, repo.trapErr(err, "querying students")
	}
	students, err := repo.unpackSlice(rows)
	return students, total, err
}

const resetColumns = `
	late_days = 0, fines = 0, late_logs = '[]', limit_exceeded = false,
	grace_period_used = 0, is_in_grace_period = false, status = 'normal', updated_at = now()`

func (repo studentRepository) PromoteSemester(ctx context.Context) (int, error) {
	res, err := repo.db.ExecContext(ctx, "UPDATE students SET semester = semester + 1,"+resetColumns)
	if err != nil {
		return 0, repo.trapErr(err, "promoting semester")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (repo studentRepository) ResetAllData(ctx context.Context) (int, error) {
	res, err := repo.db.ExecContext(ctx, "UPDATE students SET"+resetColumns)
	if err != nil {
		return 0, repo.trapErr(err, "resetting attendance data")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (repo studentRepository) DeleteStudent(ctx context.Context, rollNo string) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM students WHERE roll_no = $1", rollNo)
	if err != nil {
		return repo.trapErr(err, "deleting student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return student.ErrNotFound
	}
	return nil
}

func (repo studentRepository) DeleteAllStudents(ctx context.Context) (int, error) {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM students")
	if err != nil {
		return 0, repo.trapErr(err, "deleting students")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (repo studentRepository) CountStudents(ctx context.Context) (int, error) {
	var n int
	if err := repo.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM students"); err != nil {
		return 0, repo.trapErr(err, "counting students")
	}
	return n, nil
}

const statsQuery = `
SELECT
	COUNT(*)                                           AS total_students,
	COUNT(*) FILTER (WHERE late_days > 0)              AS students_with_late,
	COUNT(*) FILTER (WHERE status = 'grace_period')    AS in_grace_period,
	COUNT(*) FILTER (WHERE status = 'fined')           AS fined,
	COALESCE(SUM(fines), 0)                            AS total_fines,
	COALESCE(SUM(late_days), 0)                        AS total_late_days
FROM students`

func (repo studentRepository) Stats(ctx context.Context) (student.Stats, error) {
	var row struct {
		TotalStudents    int `db:"total_students"`
		StudentsWithLate int `db:"students_with_late"`
		InGracePeriod    int `db:"in_grace_period"`
		Fined            int `db:"fined"`
		TotalFines       int `db:"total_fines"`
		TotalLateDays    int `db:"total_late_days"`
	}
	if err := repo.db.GetContext(ctx, &row, statsQuery); err != nil {
		return student.Stats{}, repo.trapErr(err, "querying stats")
	}

	stats := student.Stats{
		TotalStudents:    row.TotalStudents,
		StudentsWithLate: row.StudentsWithLate,
		InGracePeriod:    row.InGracePeriod,
		Fined:            row.Fined,
		TotalFines:       row.TotalFines,
		TotalLateDays:    row.TotalLateDays,
		ByYear:           make(map[int]int),
	}

	var years []struct {
		Year  int `db:"year"`
		Count int `db:"count"`
	}
	if err := repo.db.SelectContext(ctx, &years, "SELECT year, COUNT(*) AS count FROM students GROUP BY year"); err != nil {
		return student.Stats{}, repo.trapErr(err, "querying year distribution")
	}
	for _, y := range years {
		stats.ByYear[y.Year] = y.Count
	}
	return stats, nil
}
