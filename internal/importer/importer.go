// Package importer implements bulk import of readings from uploaded
// semicolon separated text files and Excel workbooks.
//
// A single bad row never aborts the batch: rows are parsed and validated one
// by one and collected into an ImportSummary. Only file level problems
// (unreadable input, broken encoding, missing columns) abort the import, and
// accepted rows are committed in one transaction so a failed batch leaves no
// trace.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shalteor/bplog/internal/models"
	"github.com/shalteor/bplog/internal/validate"
	"go.uber.org/zap"
)

var (
	ErrFileUnreadable = errors.New("file unreadable")
	ErrMalformedTable = errors.New("malformed table")
	ErrMalformedRow   = errors.New("malformed row")
)

const (
	Delimiter = ';'

	DefaultMaxBytes = 10 << 20
)

// Store persists an accepted batch atomically.
type Store interface {
	CreateReadings(ctx context.Context, readings []*models.Reading) error
}

type Importer struct {
	store    Store
	logger   *zap.Logger
	location *time.Location
	maxBytes int64
	now      func() time.Time
}

type Option func(*Importer)

// WithMaxBytes caps the accepted upload size.
func WithMaxBytes(n int64) Option {
	return func(im *Importer) {
		if n > 0 {
			im.maxBytes = n
		}
	}
}

// WithClock overrides the clock used for rows without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) {
		im.now = now
	}
}

func New(store Store, location *time.Location, logger *zap.Logger, opts ...Option) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.Local
	}
	im := &Importer{
		store:    store,
		logger:   logger,
		location: location,
		maxBytes: DefaultMaxBytes,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import reads the uploaded file and stores every valid row for userID.
// On error the returned summary is always empty.
func (im *Importer) Import(ctx context.Context, r io.Reader, filename string, userID int64) (models.ImportSummary, error) {
	log := im.logger.With(zap.Int64("user_id", userID), zap.String("file", filename))

	data, err := io.ReadAll(io.LimitReader(r, im.maxBytes+1))
	if err != nil {
		log.Warn("import aborted", zap.Error(err))
		return models.ImportSummary{}, fmt.Errorf("%w: %v", ErrFileUnreadable, err)
	}
	if int64(len(data)) > im.maxBytes {
		log.Warn("import aborted", zap.Int("bytes", len(data)), zap.Int64("max_bytes", im.maxBytes))
		return models.ImportSummary{}, fmt.Errorf("%w: larger than %d bytes", ErrFileUnreadable, im.maxBytes)
	}

	var tbl *table
	if isWorkbook(filename, data) {
		tbl, err = readWorkbook(data)
	} else {
		tbl, err = readDelimited(data)
	}
	if err != nil {
		log.Warn("import aborted", zap.Error(err))
		return models.ImportSummary{}, err
	}

	cols, err := mapColumns(tbl.header)
	if err != nil {
		log.Warn("import aborted", zap.Error(err), zap.Strings("header", tbl.header))
		return models.ImportSummary{}, err
	}

	opts := validate.Options{Location: im.location, StrictTime: true, Now: im.now}

	var summary models.ImportSummary
	accepted := make([]*models.Reading, 0, len(tbl.rows))
	for _, row := range tbl.rows {
		res := validate.Result{Err: row.err}
		if row.err == nil {
			res = validate.Parse(cols.raw(row.cells), userID, opts)
		}
		if !res.OK() {
			skip := models.RowSkip{Line: row.line, Reason: skipReason(res.Err)}
			summary.Skipped = append(summary.Skipped, skip)
			log.Warn("import row skipped", zap.Int("line", row.line), zap.String("reason", skip.Reason), zap.Error(res.Err))
			continue
		}
		if res.TimeDefaulted {
			log.Debug("import row has no time, using now", zap.Int("line", row.line))
		}
		reading := res.Reading
		accepted = append(accepted, &reading)
	}

	if len(accepted) > 0 {
		if err := im.store.CreateReadings(ctx, accepted); err != nil {
			log.Error("import insert failed", zap.Error(err), zap.Int("rows", len(accepted)))
			return models.ImportSummary{}, fmt.Errorf("failed to store readings: %w", err)
		}
	}

	summary.Imported = len(accepted)
	log.Info("import finished", zap.Int("imported", summary.Imported), zap.Int("skipped", len(summary.Skipped)))

	return summary, nil
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedRow):
		return "malformed row"
	case errors.Is(err, validate.ErrInvalidTimestamp):
		return "invalid timestamp"
	case errors.Is(err, validate.ErrInvalidNumber):
		return "invalid number"
	default:
		return "invalid row"
	}
}

type row struct {
	line  int
	cells []string
	// err is set when the line itself could not be split into fields.
	err error
}

type table struct {
	header []string
	rows   []row
}

// columns holds the header index of each known field, -1 when absent.
type columns struct {
	sys, dia, pul, comment, time int
}

var headerAliases = map[string]string{
	"sys":       "sys",
	"systolic":  "sys",
	"dia":       "dia",
	"diastolic": "dia",
	"pul":       "pul",
	"pulse":     "pul",
	"comment":   "comment",
	"note":      "comment",
	"notes":     "comment",
	"time":      "time",
	"timestamp": "time",
	"date":      "time",
	"datetime":  "time",
}

func mapColumns(header []string) (columns, error) {
	cols := columns{sys: -1, dia: -1, pul: -1, comment: -1, time: -1}
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		switch headerAliases[key] {
		case "sys":
			setOnce(&cols.sys, i)
		case "dia":
			setOnce(&cols.dia, i)
		case "pul":
			setOnce(&cols.pul, i)
		case "comment":
			setOnce(&cols.comment, i)
		case "time":
			setOnce(&cols.time, i)
		}
	}

	var missing []string
	if cols.sys < 0 {
		missing = append(missing, "sys")
	}
	if cols.dia < 0 {
		missing = append(missing, "dia")
	}
	if cols.pul < 0 {
		missing = append(missing, "pul")
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("%w: missing column(s) %s", ErrMalformedTable, strings.Join(missing, ", "))
	}

	return cols, nil
}

func setOnce(idx *int, i int) {
	if *idx < 0 {
		*idx = i
	}
}

func (c columns) raw(cells []string) validate.Raw {
	cell := func(i int) *string {
		if i < 0 || i >= len(cells) {
			return nil
		}
		return &cells[i]
	}
	return validate.Raw{
		Systolic:  cell(c.sys),
		Diastolic: cell(c.dia),
		Pulse:     cell(c.pul),
		Comment:   cell(c.comment),
		Time:      cell(c.time),
	}
}

var zipMagic = []byte("PK\x03\x04")

func isWorkbook(filename string, data []byte) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".xlsx") || bytes.HasPrefix(data, zipMagic)
}
