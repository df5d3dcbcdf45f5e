// Package repository persists run history: one summary row per optimization request.
// File contents and archives are never stored here.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var (
	ErrNotFound  = errors.New("repository: run not found")
	ErrDuplicate = errors.New("repository: run already exists")
)

// Run is the persisted summary of one optimization request.
type Run struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	Status     string          `json:"status"`
	Options    json.RawMessage `json:"options,omitempty"`
	Stats      json.RawMessage `json:"stats,omitempty"`
	ArchiveURL string          `json:"archive_url,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Repository is a small, focused interface for run history persistence.
// Implementations must honour the supplied context for cancellation and timeouts.
type Repository interface {
	// Create inserts a new run.
	Create(ctx context.Context, run *Run) error

	// GetByID retrieves a run by its UUID.
	GetByID(ctx context.Context, id string) (*Run, error)

	// ListAll retrieves the most recent runs, newest first.
	ListAll(ctx context.Context, limit int) ([]*Run, error)

	// UpdateStatus sets a terminal or intermediate status with an optional error message.
	UpdateStatus(ctx context.Context, id, status, errMsg string) error

	// Complete stores the final statistics and archive location and marks the run completed.
	Complete(ctx context.Context, id string, stats json.RawMessage, archiveURL string) error

	Ping(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 || n > defaultListLimit {
		return defaultListLimit
	}
	return n
}
