// Package orderid formats and parses human-readable order identifiers of the
// form ORD<YYYYMMDD><seq>, where seq is zero-padded to at least three digits.
package orderid

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// Literal is the fixed leading part of every order id.
	Literal = "ORD"

	dateLayout = "20060102"
	minDigits  = 3
)

var ErrMalformed = errors.New("malformed order id")

// Prefix returns ORD<YYYYMMDD> for the calendar date of t in t's location.
func Prefix(t time.Time) string {
	return Literal + t.Format(dateLayout)
}

// Format builds the id for the seq-th order of the day. Sequences past 999
// widen rather than wrap.
func Format(t time.Time, seq int) string {
	return fmt.Sprintf("%s%0*d", Prefix(t), minDigits, seq)
}

// Parse splits id into its calendar date (UTC midnight) and numeric sequence.
func Parse(id string) (time.Time, int, error) {
	head := len(Literal) + len(dateLayout)
	if len(id) < head+minDigits || id[:len(Literal)] != Literal {
		return time.Time{}, 0, fmt.Errorf("%w: %q", ErrMalformed, id)
	}

	date, err := time.Parse(dateLayout, id[len(Literal):head])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: %q", ErrMalformed, id)
	}

	digits := id[head:]
	for _, c := range digits {
		if c < '0' || c > '9' {
			return time.Time{}, 0, fmt.Errorf("%w: %q", ErrMalformed, id)
		}
	}
	seq, err := strconv.Atoi(digits)
	if err != nil || seq < 1 {
		return time.Time{}, 0, fmt.Errorf("%w: %q", ErrMalformed, id)
	}
	return date, seq, nil
}

// Today returns the business date of now in loc, at midnight in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
