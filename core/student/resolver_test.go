package student

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testPolicy = Policy{LateLimit: 10, GracePeriodDays: 4, FinePerDay: 5}

func markN(s *Student, n int, pol Policy) Resolution {
	var res Resolution
	for i := 0; i < n; i++ {
		s.LateLogs = append(s.LateLogs, LateLog{})
		s.LateDays++
		res = Resolve(s, pol)
	}
	return res
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name          string
		marks         int
		wantStatus    Status
		wantAlert     AlertType
		wantFines     int
		wantGraceUsed int
		wantExceeded  bool
		wantInGrace   bool
	}{
		{name: "first mark is normal", marks: 1, wantStatus: StatusNormal, wantAlert: AlertSuccess},
		{name: "under warning threshold stays normal", marks: 7, wantStatus: StatusNormal, wantAlert: AlertSuccess},
		{name: "8th mark approaches the limit", marks: 8, wantStatus: StatusApproachingLimit, wantAlert: AlertWarning},
		{name: "at the limit still no grace", marks: 10, wantStatus: StatusApproachingLimit, wantAlert: AlertWarning},
		{
			name: "11th mark enters grace period", marks: 11,
			wantStatus: StatusGracePeriod, wantAlert: AlertWarning,
			wantGraceUsed: 1, wantExceeded: true, wantInGrace: true,
		},
		{
			name: "13th mark still accumulates grace without fines", marks: 13,
			wantStatus: StatusGracePeriod, wantAlert: AlertWarning,
			wantGraceUsed: 3, wantExceeded: true, wantInGrace: true,
		},
		{
			name: "14th mark exhausts grace and escalates the alert", marks: 14,
			wantStatus: StatusGracePeriod, wantAlert: AlertError,
			wantGraceUsed: 4, wantExceeded: true, wantInGrace: true,
		},
		{
			name: "15th mark charges the first fine", marks: 15,
			wantStatus: StatusFined, wantAlert: AlertError,
			wantFines: 5, wantGraceUsed: 4, wantExceeded: true, wantInGrace: true,
		},
		{
			name: "each fined day adds a flat charge", marks: 17,
			wantStatus: StatusFined, wantAlert: AlertError,
			wantFines: 15, wantGraceUsed: 4, wantExceeded: true, wantInGrace: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Student{Name: "Asha", Status: StatusNormal}
			res := markN(&s, tt.marks, testPolicy)

			assert.Equal(t, tt.wantStatus, s.Status)
			assert.Equal(t, tt.wantAlert, res.Alert)
			assert.Equal(t, tt.wantFines, s.Fines)
			assert.Equal(t, tt.wantGraceUsed, s.GracePeriodUsed)
			assert.Equal(t, tt.wantExceeded, s.LimitExceeded)
			assert.Equal(t, tt.wantInGrace, s.IsInGracePeriod)
			assert.Equal(t, tt.marks, s.LateDays)
			assert.Len(t, s.LateLogs, tt.marks)
			assert.NotEmpty(t, res.Message)
		})
	}
}

func TestResolve_graceFlagsAreSticky(t *testing.T) {
	s := Student{Name: "Asha", Status: StatusNormal}
	markN(&s, 11, testPolicy)
	assert.True(t, s.LimitExceeded)
	assert.True(t, s.IsInGracePeriod)

	// flags survive further marks; grace usage only grows
	markN(&s, 6, testPolicy)
	assert.True(t, s.LimitExceeded)
	assert.True(t, s.IsInGracePeriod)
	assert.Equal(t, 4, s.GracePeriodUsed)
}

func TestRecompute(t *testing.T) {
	tests := []struct {
		name          string
		lateDays      int
		wantStatus    Status
		wantFines     int
		wantGraceUsed int
		wantExceeded  bool
		wantInGrace   bool
	}{
		{name: "empty ledger is normal", lateDays: 0, wantStatus: StatusNormal},
		{name: "few days is normal", lateDays: 5, wantStatus: StatusNormal},
		{name: "8 days approaches the limit", lateDays: 8, wantStatus: StatusApproachingLimit},
		{name: "10 days approaches the limit", lateDays: 10, wantStatus: StatusApproachingLimit},
		{
			name: "11 days lands in grace", lateDays: 11,
			wantStatus: StatusGracePeriod, wantGraceUsed: 1, wantExceeded: true, wantInGrace: true,
		},
		{
			name: "14 days exhausts grace", lateDays: 14,
			wantStatus: StatusGracePeriod, wantGraceUsed: 4, wantExceeded: true, wantInGrace: true,
		},
		{
			name: "15 days is fined proportionally", lateDays: 15,
			wantStatus: StatusFined, wantFines: 5, wantGraceUsed: 4, wantExceeded: true,
		},
		{
			name: "20 days is fined proportionally", lateDays: 20,
			wantStatus: StatusFined, wantFines: 30, wantGraceUsed: 4, wantExceeded: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// stale derived fields must not survive a recompute
			s := Student{
				Name:            "Asha",
				LateLogs:        make([]LateLog, tt.lateDays),
				LateDays:        999,
				Fines:           999,
				GracePeriodUsed: 4,
				LimitExceeded:   true,
				IsInGracePeriod: true,
				Status:          StatusFined,
			}
			Recompute(&s, testPolicy)

			assert.Equal(t, tt.lateDays, s.LateDays)
			assert.Equal(t, tt.wantStatus, s.Status)
			assert.Equal(t, tt.wantFines, s.Fines)
			assert.Equal(t, tt.wantGraceUsed, s.GracePeriodUsed)
			assert.Equal(t, tt.wantExceeded, s.LimitExceeded)
			assert.Equal(t, tt.wantInGrace, s.IsInGracePeriod)
		})
	}
}

// The forward path charges a flat fine per marked day while the recompute
// path derives fines from the full ledger; the same ledger length can price
// differently depending on how it was reached.
func TestFineAsymmetry(t *testing.T) {
	forward := Student{Name: "Asha", Status: StatusNormal}
	markN(&forward, 17, testPolicy)
	assert.Equal(t, 15, forward.Fines)

	rebuilt := Student{Name: "Asha", LateLogs: make([]LateLog, 16)}
	Recompute(&rebuilt, testPolicy)
	assert.Equal(t, 10, rebuilt.Fines)
}

func TestDaysRemaining(t *testing.T) {
	s := Student{LateDays: 6}
	assert.Equal(t, 4, DaysRemaining(s, testPolicy))
	assert.Equal(t, 4, GraceDaysRemaining(s, testPolicy))

	s = Student{LateDays: 12, GracePeriodUsed: 2}
	assert.Equal(t, 0, DaysRemaining(s, testPolicy))
	assert.Equal(t, 2, GraceDaysRemaining(s, testPolicy))

	s = Student{LateDays: 20, GracePeriodUsed: 4}
	assert.Equal(t, 0, DaysRemaining(s, testPolicy))
	assert.Equal(t, 0, GraceDaysRemaining(s, testPolicy))
}
