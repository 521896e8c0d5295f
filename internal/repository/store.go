// Package repository defines the entry store and its SQLite implementation.
package repository

import (
	"context"
	"errors"

	"github.com/oddrm/pse25/internal/domain"
)

var (
	// ErrNotFound is returned by mutations whose target row does not exist.
	// Lookups return nil, nil instead.
	ErrNotFound = errors.New("not found")
	// ErrInvalidSequence is returned when a sequence ends before it starts.
	ErrInvalidSequence = errors.New("end_timestamp must be >= start_timestamp")
)

// Store defines the interface for entry persistence. Runs and logs are
// session state and never reach the store.
type Store interface {
	// Entry operations
	CreateEntry(ctx context.Context, entry *domain.Entry) error
	GetEntry(ctx context.Context, entryID int64) (*domain.Entry, error)
	GetEntryByPath(ctx context.Context, path string) (*domain.Entry, error)
	ListEntries(ctx context.Context, query domain.EntryQuery) ([]domain.Entry, error)

	// Tag operations
	AddTag(ctx context.Context, entryID int64, tag string) error
	RemoveTag(ctx context.Context, entryID int64, tag string) error

	// Sequence operations
	GetSequences(ctx context.Context, entryID int64) (map[int64]domain.Sequence, error)
	AddSequence(ctx context.Context, seq *domain.Sequence) error
	UpdateSequence(ctx context.Context, seq *domain.Sequence) error
	RemoveSequence(ctx context.Context, entryID, sequenceID int64) error

	// Metadata operations
	GetMetadata(ctx context.Context, entryID int64) (*domain.Metadata, error)
	UpdateMetadata(ctx context.Context, meta *domain.Metadata) error

	Ping(ctx context.Context) error
	Close() error
}
