package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/shalteor/bplog/internal/db"
	"github.com/shalteor/bplog/internal/importer"
	"github.com/shalteor/bplog/internal/models"
	"github.com/shalteor/bplog/internal/validate"
)

// ReadingService manages a user's blood-pressure readings.
type ReadingService struct {
	db       *db.DB
	importer *importer.Importer
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// NewReadingService builds a ReadingService. Timestamps without a zone are
// interpreted in location.
func NewReadingService(database *db.DB, location *time.Location, maxUpload int64, logger *zap.Logger) *ReadingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.Local
	}
	return &ReadingService{
		db:       database,
		importer: importer.New(database, location, logger, importer.WithMaxBytes(maxUpload)),
		location: location,
		now:      time.Now,
		logger:   logger,
	}
}

// Location is the zone readings are rendered in.
func (s *ReadingService) Location() *time.Location {
	return s.location
}

// Create validates a manually entered reading and stores it. A missing or
// unreadable time falls back to the current time.
func (s *ReadingService) Create(ctx context.Context, userID int64, raw validate.Raw) (*models.Reading, error) {
	res := validate.Parse(raw, userID, validate.Options{Location: s.location, Now: s.now})
	if !res.OK() {
		return nil, res.Err
	}

	reading := res.Reading
	if err := s.db.Readings().Create(ctx, &reading); err != nil {
		return nil, fmt.Errorf("failed to store reading: %w", err)
	}
	return &reading, nil
}

// List returns the user's readings in the requested order.
func (s *ReadingService) List(ctx context.Context, userID int64, order models.SortOrder) ([]models.Reading, error) {
	readings, err := s.db.Readings().List(ctx, userID, order)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	for i := range readings {
		readings[i].MeasuredAt = readings[i].MeasuredAt.In(s.location)
	}
	return readings, nil
}

// Delete removes one of the user's readings. Unknown ids and readings of
// other users are ignored.
func (s *ReadingService) Delete(ctx context.Context, userID, readingID int64) error {
	err := s.db.Readings().Delete(ctx, readingID, userID)
	if errors.Is(err, db.ErrReadingNotFound) {
		s.logger.Debug("delete of missing or foreign reading ignored",
			zap.Int64("user_id", userID),
			zap.Int64("reading_id", readingID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete reading: %w", err)
	}
	return nil
}

// Import stores every valid row of an uploaded CSV or XLSX file.
func (s *ReadingService) Import(ctx context.Context, userID int64, r io.Reader, filename string) (models.ImportSummary, error) {
	return s.importer.Import(ctx, r, filename, userID)
}
