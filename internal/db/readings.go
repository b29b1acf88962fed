package db

import (
	"context"
	"fmt"
	"time"

	"github.com/shalteor/bplog/internal/models"
)

type ReadingRepository struct {
	db DBTX
}

func NewReadingRepository(db DBTX) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// Create inserts a reading. MeasuredAt is stored in UTC.
func (r *ReadingRepository) Create(ctx context.Context, reading *models.Reading) error {
	query := `
		INSERT INTO readings (user_id, systolic, diastolic, pulse, comment, measured_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		reading.UserID,
		reading.Systolic,
		reading.Diastolic,
		reading.Pulse,
		reading.Comment,
		reading.MeasuredAt.UTC(),
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create reading: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	reading.ID = id
	reading.CreatedAt = now

	return nil
}

// List returns the readings of one user ordered by measurement time
func (r *ReadingRepository) List(ctx context.Context, userID int64, order models.SortOrder) ([]models.Reading, error) {
	direction := "DESC"
	if order == models.SortAsc {
		direction = "ASC"
	}

	query := `
		SELECT id, user_id, systolic, diastolic, pulse, comment, measured_at, created_at
		FROM readings
		WHERE user_id = ?
		ORDER BY measured_at ` + direction + `, id ` + direction

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		var rd models.Reading
		if err := rows.Scan(
			&rd.ID,
			&rd.UserID,
			&rd.Systolic,
			&rd.Diastolic,
			&rd.Pulse,
			&rd.Comment,
			&rd.MeasuredAt,
			&rd.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, rd)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}

	return readings, nil
}

func (r *ReadingRepository) Count(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return n, nil
}

// Delete removes a reading only if it belongs to userID.
func (r *ReadingRepository) Delete(ctx context.Context, id, userID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM readings WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete reading: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrReadingNotFound
	}

	return nil
}

// DeleteByUser removes every reading owned by userID and reports how many went.
func (r *ReadingRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM readings WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete readings: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return n, nil
}
