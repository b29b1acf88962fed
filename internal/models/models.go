package models

import "time"

// MaxCommentLength is the maximum number of characters kept for a reading comment.
const MaxCommentLength = 255

// SortOrder selects the direction readings are returned in.
type SortOrder int

const (
	// SortDesc lists newest first (list view).
	SortDesc SortOrder = iota
	// SortAsc lists oldest first (chart view).
	SortAsc
)

// User represents an account in the database
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Reading is one blood-pressure measurement owned by a user
type Reading struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"-"`
	Systolic   int       `json:"sys"`
	Diastolic  int       `json:"dia"`
	Pulse      int       `json:"pul"`
	Comment    string    `json:"comment"`
	MeasuredAt time.Time `json:"time"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RowSkip records why a bulk import row was not imported.
type RowSkip struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ImportSummary is the outcome of one bulk import.
type ImportSummary struct {
	Imported int       `json:"imported"`
	Skipped  []RowSkip `json:"skipped,omitempty"`
}
