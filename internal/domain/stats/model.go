package stats

import (
	"strconv"
	"strings"
	"time"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/pkg/caldate"
)

const (
	DefaultWindow = "30d"
	maxWindow     = 3660 * 24 * time.Hour
	minYear       = 1900
	maxYear       = 9999
)

// Summary holds totals and trailing-window counts.
type Summary struct {
	TotalPatients int          `json:"total_patients"`
	Window        string       `json:"window"`
	Since         caldate.Date `json:"since"`
	NewPatients   int          `json:"new_patients"`
	Visits        int          `json:"visits"`
}

type MonthCount struct {
	Month       int `json:"month"`
	NewPatients int `json:"new_patients"`
	Visits      int `json:"visits"`
}

// Monthly always holds twelve entries, January first.
type Monthly struct {
	Year   int          `json:"year"`
	Months []MonthCount `json:"months"`
}

// ParseWindow accepts a Go duration ("720h") or a day count ("30d").
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = DefaultWindow
	}

	maxDays := int(maxWindow / (24 * time.Hour))
	var d time.Duration
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, apperr.Validationf("stats", "invalid window %q", s)
		}
		if n <= 0 || n > maxDays {
			return 0, apperr.Validationf("stats", "window must be positive and at most %d days", maxDays)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return 0, apperr.Validationf("stats", "invalid window %q", s)
		}
	}

	if d <= 0 || d > maxWindow {
		return 0, apperr.Validationf("stats", "window must be positive and at most %d days", maxDays)
	}
	return d, nil
}

func validYear(year int) error {
	if year < minYear || year > maxYear {
		return apperr.Validationf("stats", "year must be between %d and %d", minYear, maxYear)
	}
	return nil
}
