package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Session is one submitted questionnaire run: the answers frozen at
// submission time plus the recommendations they produced. Profile and
// results are stored as JSON text so the row shape never chases the
// questionnaire vocabulary.
type Session struct {
	ID          string
	CreatedAt   time.Time
	ProfileJSON string
	ResultsJSON string
	RemoteID    string
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
