package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shalteor/bplog/internal/models"
)

func TestCreateAndListReadingsOrdering(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")

	berlin := time.FixedZone("CET", 3600)
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, berlin)
	for _, offset := range []int{2, 0, 1} {
		r := &models.Reading{
			UserID:     alice.ID,
			Systolic:   120 + offset,
			Diastolic:  80,
			Pulse:      70,
			Comment:    "ok",
			MeasuredAt: base.Add(time.Duration(offset) * time.Hour),
		}
		if err := db.Readings().Create(ctx, r); err != nil {
			t.Fatalf("failed to create reading: %v", err)
		}
	}

	desc, err := db.Readings().List(ctx, alice.ID, models.SortDesc)
	if err != nil {
		t.Fatalf("failed to list readings: %v", err)
	}
	if len(desc) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(desc))
	}
	if desc[0].Systolic != 122 || desc[2].Systolic != 120 {
		t.Errorf("expected newest first, got %d..%d", desc[0].Systolic, desc[2].Systolic)
	}

	asc, err := db.Readings().List(ctx, alice.ID, models.SortAsc)
	if err != nil {
		t.Fatalf("failed to list readings: %v", err)
	}
	if asc[0].Systolic != 120 || asc[2].Systolic != 122 {
		t.Errorf("expected oldest first, got %d..%d", asc[0].Systolic, asc[2].Systolic)
	}

	if !asc[0].MeasuredAt.Equal(base) {
		t.Errorf("expected measured_at %v, got %v", base, asc[0].MeasuredAt)
	}
	if asc[0].Comment != "ok" {
		t.Errorf("expected comment ok, got %q", asc[0].Comment)
	}
}

func TestListReadingsIsPerUser(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	if err := db.Readings().Create(ctx, &models.Reading{UserID: alice.ID, Systolic: 1, MeasuredAt: time.Now()}); err != nil {
		t.Fatalf("failed to create reading: %v", err)
	}

	readings, err := db.Readings().List(ctx, bob.ID, models.SortDesc)
	if err != nil {
		t.Fatalf("failed to list readings: %v", err)
	}
	if len(readings) != 0 {
		t.Errorf("expected bob to see 0 readings, got %d", len(readings))
	}
}

func TestDeleteReadingRequiresOwner(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	r := &models.Reading{UserID: alice.ID, Systolic: 120, Diastolic: 80, Pulse: 70, MeasuredAt: time.Now()}
	if err := db.Readings().Create(ctx, r); err != nil {
		t.Fatalf("failed to create reading: %v", err)
	}

	if err := db.Readings().Delete(ctx, r.ID, bob.ID); err != ErrReadingNotFound {
		t.Errorf("expected ErrReadingNotFound for foreign reading, got %v", err)
	}
	if n, _ := db.Readings().Count(ctx, alice.ID); n != 1 {
		t.Fatalf("reading of alice must survive bob's delete, got %d", n)
	}

	if err := db.Readings().Delete(ctx, r.ID, alice.ID); err != nil {
		t.Fatalf("failed to delete reading: %v", err)
	}
	if n, _ := db.Readings().Count(ctx, alice.ID); n != 0 {
		t.Errorf("expected 0 readings after delete, got %d", n)
	}
}

func TestDeleteReadingNotFound(t *testing.T) {
	db := setupTestDB(t)
	alice := createTestUser(t, db, "alice")

	if err := db.Readings().Delete(context.Background(), 12345, alice.ID); err != ErrReadingNotFound {
		t.Errorf("expected ErrReadingNotFound, got %v", err)
	}
}

func TestListReadingsScanError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer conn.Close()

	rows := sqlmock.NewRows([]string{"id", "user_id", "systolic", "diastolic", "pulse", "comment", "measured_at", "created_at"}).
		AddRow("not-a-number", 1, 120, 80, 70, "", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM readings")).WithArgs(int64(1)).WillReturnRows(rows)

	_, err = NewReadingRepository(conn).List(context.Background(), 1, models.SortAsc)
	if err == nil {
		t.Error("expected scan error")
	}
}

func TestListReadingsOrderClause(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer conn.Close()

	empty := []string{"id", "user_id", "systolic", "diastolic", "pulse", "comment", "measured_at", "created_at"}
	mock.ExpectQuery(`ORDER BY measured_at ASC, id ASC`).WillReturnRows(sqlmock.NewRows(empty))
	mock.ExpectQuery(`ORDER BY measured_at DESC, id DESC`).WillReturnRows(sqlmock.NewRows(empty))

	repo := NewReadingRepository(conn)
	if _, err := repo.List(context.Background(), 1, models.SortAsc); err != nil {
		t.Fatalf("asc list failed: %v", err)
	}
	if _, err := repo.List(context.Background(), 1, models.SortDesc); err != nil {
		t.Fatalf("desc list failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeleteByUserWrapsDBError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer conn.Close()

	locked := errors.New("database is locked")
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM readings WHERE user_id = ?")).WillReturnError(locked)

	if _, err := NewReadingRepository(conn).DeleteByUser(context.Background(), 3); !errors.Is(err, locked) {
		t.Errorf("expected wrapped lock error, got %v", err)
	}
}
