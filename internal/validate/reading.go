// Package validate turns untrusted form fields and CSV cells into readings.
package validate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"github.com/shalteor/bplog/internal/models"
)

var (
	ErrInvalidNumber    = errors.New("invalid number")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// Raw holds unparsed reading fields. Missing fields are nil so that an absent
// value can be told apart from an empty one.
type Raw struct {
	Systolic  *string
	Diastolic *string
	Pulse     *string
	Comment   *string
	Time      *string
}

// Options controls how a Raw is turned into a reading.
type Options struct {
	// Location is attached to timestamps that carry no zone of their own and
	// used for the "now" fallback.
	Location *time.Location
	// StrictTime rejects a supplied but unparseable time instead of falling
	// back to the current time.
	StrictTime bool
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now().In(o.location())
	}
	return time.Now().In(o.location())
}

// Result is either an accepted reading or the reason it was rejected.
type Result struct {
	Reading models.Reading
	// TimeDefaulted is set when MeasuredAt was substituted with the current time.
	TimeDefaulted bool
	Err           error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Parse validates raw into a reading owned by userID. It never panics and
// reports every rejection through Result.Err.
func Parse(raw Raw, userID int64, opts Options) Result {
	sys, err := parseInt("sys", raw.Systolic)
	if err != nil {
		return Result{Err: err}
	}
	dia, err := parseInt("dia", raw.Diastolic)
	if err != nil {
		return Result{Err: err}
	}
	pul, err := parseInt("pul", raw.Pulse)
	if err != nil {
		return Result{Err: err}
	}

	res := Result{
		Reading: models.Reading{
			UserID:    userID,
			Systolic:  sys,
			Diastolic: dia,
			Pulse:     pul,
			Comment:   CleanComment(raw.Comment),
		},
	}

	text := ""
	if raw.Time != nil {
		text = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(*raw.Time), ";"))
	}

	if text == "" {
		res.Reading.MeasuredAt = opts.now()
		res.TimeDefaulted = true
		return res
	}

	t, err := ParseTime(text, opts.location())
	if err != nil {
		if opts.StrictTime {
			return Result{Err: err}
		}
		res.Reading.MeasuredAt = opts.now()
		res.TimeDefaulted = true
		return res
	}

	res.Reading.MeasuredAt = t
	return res
}

func parseInt(field string, s *string) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("%w: %s is missing", ErrInvalidNumber, field)
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return 0, fmt.Errorf("%w: %s is empty", ErrInvalidNumber, field)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidNumber, field, v)
	}
	return n, nil
}

// CleanComment trims whitespace and stray ';' separators and bounds the length.
func CleanComment(s *string) string {
	if s == nil {
		return ""
	}
	c := strings.TrimSpace(*s)
	c = strings.TrimSpace(strings.TrimRight(c, ";"))
	if utf8.RuneCountInString(c) > models.MaxCommentLength {
		c = string([]rune(c)[:models.MaxCommentLength])
	}
	return c
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"02.01.2006",
}

// ParseTime accepts ISO-8601-like input. Values without a zone are placed in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return t, nil
}
