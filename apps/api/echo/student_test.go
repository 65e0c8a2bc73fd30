package echoapi

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mahudhurio/core/student"
)

func seedStudent(t *testing.T, repo student.Repository, rollNo, name string, year, lateDays int, last time.Time) student.Student {
	t.Helper()
	s := student.Student{
		RollNo:   rollNo,
		Name:     name,
		Year:     year,
		Semester: 1,
		Status:   student.StatusNormal,
	}
	pol := student.Policy{LateLimit: 10, GracePeriodDays: 4, FinePerDay: 5}
	for i := lateDays - 1; i >= 0; i-- {
		s.LateLogs = append(s.LateLogs, student.LateLog{ID: uuid.New().String(), Date: last.AddDate(0, 0, -i)})
		s.LateDays++
		student.Resolve(&s, pol)
	}
	s, err := repo.CreateStudent(ctxBg, s)
	require.NoError(t, err)
	return s
}

func Test_studentApi_markLate(t *testing.T) {
	srv, _ := setup(t)
	token := getAdminToken(t)

	tests := []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: "/v1/students/mark-late",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "rollNo required", method: http.MethodPost, path: "/v1/students/mark-late",
			token: token, body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"rollNo": "this field is required"}),
		},
		{
			name: "registration details required for new students", method: http.MethodPost, path: "/v1/students/mark-late",
			token: token, body: []byte(`{"rollNo": "CS101"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name": "required for new students",
				"year": "required for new students",
			}),
		},
		{
			name: "year beyond the fourth is rejected", method: http.MethodPost, path: "/v1/students/mark-late",
			token: token, body: []byte(`{"rollNo": "CS102", "name": "Juma Bakari", "year": 5}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"year": "year must be 4 or less"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("first mark registers the student", func(t *testing.T) {
		body := []byte(`{"rollNo": "CS101", "name": "Asha Komba", "year": 2}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/students/mark-late", token, body)
		srv.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var res student.MarkLateResult
		decodeBody(t, rec, &res)
		assert.True(t, res.NewlyRegistered)
		assert.Equal(t, 1, res.Student.LateDays)
		assert.Equal(t, student.StatusNormal, res.Student.Status)
		assert.Equal(t, student.AlertSuccess, res.AlertType)
		assert.Equal(t, 9, res.DaysRemaining)
	})

	t.Run("subsequent marks accumulate", func(t *testing.T) {
		body := []byte(`{"rollNo": "CS101"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/students/mark-late", token, body)
		srv.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res student.MarkLateResult
		decodeBody(t, rec, &res)
		assert.False(t, res.NewlyRegistered)
		assert.Equal(t, 2, res.Student.LateDays)
	})
}

func Test_studentApi_removeLateRecord(t *testing.T) {
	srv, repo := setup(t)
	token := getAdminToken(t)
	today := time.Now()
	seedStudent(t, repo, "CS101", "Asha Komba", 2, 17, today)

	body := []byte(fmt.Sprintf(
		`{"rollNo": "CS101", "date": %q, "reason": "medical leave", "authorizedBy": "Principal Okonkwo"}`,
		today.Format("2006-01-02"),
	))

	t.Run("admin required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/students/remove-late-record", body)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("removes the day and recomputes", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/students/remove-late-record", token, body)
		srv.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res removalResponse
		decodeBody(t, rec, &res)
		assert.Contains(t, res.Message, "removed 1 late record(s)")
		assert.Equal(t, 16, res.Student.LateDays)
		assert.Equal(t, 10, res.Student.Fines)
		assert.Equal(t, -5, res.Changes.FinesChange)
	})

	t.Run("second removal finds nothing", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/students/remove-late-record", token, body)
		srv.ServeHTTP(rec, req)
		tt := httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "no late record found for the specified date"}),
		}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("missing fields are rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/students/remove-late-record", token, []byte(`{"rollNo": "CS101"}`))
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_studentApi_lateToday(t *testing.T) {
	srv, repo := setup(t)
	token := getAdminToken(t)
	now := time.Now()

	seedStudent(t, repo, "CS101", "Asha Komba", 2, 2, now)                    // today + yesterday
	seedStudent(t, repo, "CS102", "Juma Bakari", 1, 1, now.AddDate(0, 0, -1)) // yesterday only

	req, rec := newAuthRequest(http.MethodGet, "/v1/students/late-today", token)
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res lateTodayResponse
	decodeBody(t, rec, &res)
	assert.Equal(t, 1, res.TotalCount)
	require.Len(t, res.Students, 1)
	assert.Equal(t, "CS101", res.Students[0].RollNo)
	assert.Len(t, res.Students[0].LateLogs, 1) // only today's entry
	assert.False(t, res.HasNextPage)
}

func Test_studentApi_records(t *testing.T) {
	srv, repo := setup(t)
	token := getAdminToken(t)
	seedStudent(t, repo, "CS101", "Asha Komba", 2, 1, time.Now().AddDate(0, 0, -3))

	t.Run("weekly", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/records/weekly", token)
		srv.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res student.PeriodRecords
		decodeBody(t, rec, &res)
		assert.Equal(t, "weekly", res.Period)
		require.Len(t, res.Students, 1)
		assert.Equal(t, 1, res.Students[0].LateCountInPeriod)
	})

	t.Run("invalid period", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/records/yearly", token)
		srv.ServeHTTP(rec, req)
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"period": "must be one of: weekly, monthly, semester"}),
		}
		checkCodeAndData(t, tt, rec)
	})
}

func Test_studentApi_search(t *testing.T) {
	srv, repo := setup(t)
	token := getAdminToken(t)
	seedStudent(t, repo, "CS101", "Asha Komba", 2, 3, time.Now())
	seedStudent(t, repo, "EE205", "Juma Bakari", 3, 1, time.Now())

	t.Run("query too short", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/search?q=a", token)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("matches name or roll number", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/search?q=asha", token)
		srv.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res student.PaginatedStudents
		decodeBody(t, rec, &res)
		require.Len(t, res.Students, 1)
		assert.Equal(t, "CS101", res.Students[0].RollNo)
	})

	t.Run("year filter", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/search?q=ba&year=3", token)
		srv.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res student.PaginatedStudents
		decodeBody(t, rec, &res)
		require.Len(t, res.Students, 1)
		assert.Equal(t, "EE205", res.Students[0].RollNo)
	})
}

func Test_studentApi_query(t *testing.T) {
	srv, repo := setup(t)
	token := getAdminToken(t)
	now := time.Now()
	seedStudent(t, repo, "CS101", "Asha Komba", 2, 12, now)
	seedStudent(t, repo, "CS102", "Juma Bakari", 1, 3, now)

	req, rec := newAuthRequest(http.MethodGet, "/v1/students?page=1&limit=1", token)
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res student.PaginatedStudents
	decodeBody(t, rec, &res)
	assert.Equal(t, 2, res.TotalCount)
	assert.Equal(t, 2, res.TotalPages)
	assert.True(t, res.HasNextPage)
	require.Len(t, res.Students, 1)
	assert.Equal(t, "CS101", res.Students[0].RollNo) // most late days first
}

func Test_studentApi_retrieve(t *testing.T) {
	srv, repo := setup(t)
	token := getAdminToken(t)
	seedStudent(t, repo, "CS101", "Asha Komba", 2, 1, time.Now())

	t.Run("found", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/CS101", token)
		srv.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var s student.Student
		decodeBody(t, rec, &s)
		assert.Equal(t, "Asha Komba", s.Name)
	})

	t.Run("not found", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/NOPE", token)
		srv.ServeHTTP(rec, req)
		tt := httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "student not found"}),
		}
		checkCodeAndData(t, tt, rec)
	})
}

func Test_studentApi_stats(t *testing.T) {
	srv, repo := setup(t)
	token := getAdminToken(t)
	now := time.Now()
	seedStudent(t, repo, "CS101", "Asha Komba", 2, 15, now)
	seedStudent(t, repo, "CS102", "Juma Bakari", 1, 11, now)

	req, rec := newAuthRequest(http.MethodGet, "/v1/students/stats", token)
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats student.Stats
	decodeBody(t, rec, &stats)
	assert.Equal(t, 2, stats.TotalStudents)
	assert.Equal(t, 1, stats.Fined)
	assert.Equal(t, 1, stats.InGracePeriod)
	assert.Equal(t, 5, stats.TotalFines)
}

func Test_studentApi_bulkOps(t *testing.T) {
	srv, repo := setup(t)
	token := getAdminToken(t)

	t.Run("promote with no students", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/students/promote-semester", token)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	seedStudent(t, repo, "CS101", "Asha Komba", 2, 12, time.Now())

	t.Run("promote semester", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/students/promote-semester", token)
		srv.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		s, err := repo.GetStudent(ctxBg, "CS101")
		require.NoError(t, err)
		assert.Equal(t, 2, s.Semester)
		assert.Equal(t, 0, s.LateDays)
	})

	t.Run("reset all data", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/students/reset-all-data", token)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("delete one", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/students/CS101", token)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		_, err := repo.GetStudent(ctxBg, "CS101")
		assert.Equal(t, student.ErrNotFound, err)
	})

	t.Run("delete all", func(t *testing.T) {
		seedStudent(t, repo, "CS103", "Neema Juma", 1, 1, time.Now())
		req, rec := newAuthRequest(http.MethodDelete, "/v1/students", token)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		n, err := repo.CountStudents(ctxBg)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func Test_studentApi_export(t *testing.T) {
	srv, repo := setup(t)
	token := getAdminToken(t)
	seedStudent(t, repo, "CS101", "Asha Komba", 2, 3, time.Now())

	req, rec := newAuthRequest(http.MethodGet, "/v1/students/export", token)
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "rollNo,name,year,semester,lateDays,fines,gracePeriodUsed,status", lines[0])
	assert.Equal(t, "CS101,Asha Komba,2,1,3,0,0,normal", lines[1])
}

func Test_server_health(t *testing.T) {
	srv, repo := setup(t)
	seedStudent(t, repo, "CS101", "Asha Komba", 2, 1, time.Now())

	// no auth needed
	req, rec := newRequest(http.MethodGet, "/v1/health")
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res map[string]interface{}
	decodeBody(t, rec, &res)
	assert.Equal(t, "ok", res["status"])
	assert.EqualValues(t, 1, res["studentCount"])
}
