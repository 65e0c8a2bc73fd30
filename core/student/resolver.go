package student

import (
	"fmt"

	"github.com/trezcool/mahudhurio/core"
)

type AlertType string

const (
	AlertSuccess AlertType = "success"
	AlertWarning AlertType = "warning"
	AlertError   AlertType = "error"
)

// Policy holds the attendance thresholds. Deployments never change these at
// runtime; tests do.
type Policy struct {
	LateLimit       int
	GracePeriodDays int
	FinePerDay      int
}

func PolicyFromConfig(conf *core.Config) Policy {
	return Policy{
		LateLimit:       conf.Attendance.LateLimit,
		GracePeriodDays: conf.Attendance.GracePeriodDays,
		FinePerDay:      conf.Attendance.FinePerDay,
	}
}

// Resolution describes the outcome of resolving one newly marked late day.
type Resolution struct {
	Message     string
	Alert       AlertType
	FineCharged int
}

// Resolve applies the forward marking rules to a student whose ledger was just
// extended by one entry (LateDays already incremented). It mutates the derived
// fields in place.
//
// The grace flags are sticky on this path: once LimitExceeded/IsInGracePeriod
// are set they stay set, and GracePeriodUsed only ever grows. Days marked
// while in the grace period consume a grace day but cost nothing; every mark
// after the grace period is exhausted charges a flat FinePerDay.
func Resolve(s *Student, pol Policy) Resolution {
	if s.LateDays <= pol.LateLimit {
		if s.LateDays >= pol.LateLimit-2 {
			s.Status = StatusApproachingLimit
			return Resolution{
				Message: fmt.Sprintf("warning: %s is approaching the late limit (%d/%d late days used)",
					s.Name, s.LateDays, pol.LateLimit),
				Alert: AlertWarning,
			}
		}
		s.Status = StatusNormal
		return Resolution{
			Message: fmt.Sprintf("%s marked late (%d/%d late days used)",
				s.Name, s.LateDays, pol.LateLimit),
			Alert: AlertSuccess,
		}
	}

	if s.GracePeriodUsed < pol.GracePeriodDays {
		if !s.LimitExceeded {
			s.LimitExceeded = true
			s.IsInGracePeriod = true
		}
		s.GracePeriodUsed++
		s.Status = StatusGracePeriod

		remaining := pol.GracePeriodDays - s.GracePeriodUsed
		if remaining > 0 {
			return Resolution{
				Message: fmt.Sprintf("grace period: %s exceeded the %d-day limit; %d of %d grace days used, %d remaining",
					s.Name, pol.LateLimit, s.GracePeriodUsed, pol.GracePeriodDays, remaining),
				Alert: AlertWarning,
			}
		}
		return Resolution{
			Message: fmt.Sprintf("grace period exhausted: %s has used all %d grace days; a fine of %d applies to every further late day",
				s.Name, pol.GracePeriodDays, pol.FinePerDay),
			Alert: AlertError,
		}
	}

	s.Fines += pol.FinePerDay
	s.Status = StatusFined
	return Resolution{
		Message: fmt.Sprintf("fine applied: %s charged %d for today; total outstanding fines: %d",
			s.Name, pol.FinePerDay, s.Fines),
		Alert:       AlertError,
		FineCharged: pol.FinePerDay,
	}
}

// Recompute derives every attendance field from the ledger alone. It is used
// after records are removed, where the sticky forward flags must not survive.
//
// Unlike the forward path, fines here are proportional: each day beyond the
// limit plus the full grace period costs FinePerDay. A student whose history
// is rebuilt this way can end up with a different fine total than one who
// accumulated the same days forward; the removal flow accepts that.
func Recompute(s *Student, pol Policy) {
	s.LateDays = len(s.LateLogs)
	s.Fines = 0
	s.LimitExceeded = false
	s.GracePeriodUsed = 0
	s.IsInGracePeriod = false

	graceEnd := pol.LateLimit + pol.GracePeriodDays

	switch {
	case s.LateDays <= pol.LateLimit:
		if s.LateDays >= pol.LateLimit-2 {
			s.Status = StatusApproachingLimit
		} else {
			s.Status = StatusNormal
		}
	case s.LateDays <= graceEnd:
		s.LimitExceeded = true
		s.IsInGracePeriod = true
		s.GracePeriodUsed = s.LateDays - pol.LateLimit
		s.Status = StatusGracePeriod
	default:
		s.LimitExceeded = true
		s.GracePeriodUsed = pol.GracePeriodDays
		s.Fines = (s.LateDays - graceEnd) * pol.FinePerDay
		s.Status = StatusFined
	}
}

// DaysRemaining reports how many more late days fit under the limit.
func DaysRemaining(s Student, pol Policy) int {
	if rem := pol.LateLimit - s.LateDays; rem > 0 {
		return rem
	}
	return 0
}

// GraceDaysRemaining reports the unconsumed grace days.
func GraceDaysRemaining(s Student, pol Policy) int {
	if rem := pol.GracePeriodDays - s.GracePeriodUsed; rem > 0 {
		return rem
	}
	return 0
}
