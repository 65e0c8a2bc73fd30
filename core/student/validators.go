package student

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mahudhurio/core"
)

var (
	dateOnlyTag  = "dateonly"
	dateOnlyText = "must be a valid date in YYYY-MM-DD or RFC 3339 format"
)

func init() {
	_ = core.Validate.RegisterValidation(dateOnlyTag, dateOnlyValidation)
	core.RegisterCustomTranslation(dateOnlyTag, dateOnlyText)
}

// parseDay accepts a bare date or a full RFC 3339 timestamp; either way the
// result identifies a calendar day in local time.
func parseDay(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.Local(), nil
}

func dateOnlyValidation(fl validator.FieldLevel) bool {
	_, err := parseDay(fl.Field().String())
	return err == nil
}
