package domain

import (
	"errors"
	"fmt"
	"time"
)

// Period is a fixed 6-character year-month booking token, e.g. "202401".
// Holdings, transfers, fundings and NAV records are grouped by Period
// before the period is closed. The string form sorts chronologically.
type Period string

// ParsePeriod validates and returns a Period from its string form.
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

// PeriodOf returns the booking period containing the given instant (UTC).
func PeriodOf(t time.Time) Period {
	return Period(t.UTC().Format("200601"))
}

// Validate ensures the period is a well-formed YYYYMM token.
func (p Period) Validate() error {
	if len(p) != 6 {
		return errors.New("booking period must be exactly 6 characters (YYYYMM)")
	}
	if _, err := time.Parse("200601", string(p)); err != nil {
		return fmt.Errorf("invalid booking period %q: %w", string(p), err)
	}
	return nil
}

// String returns the YYYYMM token.
func (p Period) String() string {
	return string(p)
}

// Start returns the first instant of the period (UTC).
func (p Period) Start() time.Time {
	t, _ := time.Parse("200601", string(p))
	return t.UTC()
}

// End returns the first instant of the following period (exclusive bound).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Next returns the immediately following booking period.
func (p Period) Next() Period {
	return PeriodOf(p.Start().AddDate(0, 1, 0))
}

// Previous returns the immediately preceding booking period.
func (p Period) Previous() Period {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

// Days returns the number of calendar days in the period.
// Used to pro-rate annual administration fees.
func (p Period) Days() int {
	return int(p.End().Sub(p.Start()).Hours() / 24)
}

// Before reports whether p is strictly earlier than other.
// YYYYMM tokens compare correctly as strings.
func (p Period) Before(other Period) bool {
	return string(p) < string(other)
}

// Contains reports whether the instant falls inside the period.
func (p Period) Contains(t time.Time) bool {
	u := t.UTC()
	return !u.Before(p.Start()) && u.Before(p.End())
}
