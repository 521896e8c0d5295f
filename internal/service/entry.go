package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oddrm/pse25/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ListEntries returns a page of entries. Page numbers start at 1.
func (s *Service) ListEntries(ctx context.Context, q domain.EntryQuery) ([]domain.Entry, error) {
	if q.SortBy == "" {
		q.SortBy = domain.EntrySortName
	}
	if !q.SortBy.Valid() {
		return nil, fmt.Errorf("%w: unknown sort_by %q", ErrInvalidInput, q.SortBy)
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1", ErrInvalidInput)
	}
	if q.PageSize == 0 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize < 1 || q.PageSize > maxPageSize {
		return nil, fmt.Errorf("%w: page_size must be within 1..%d", ErrInvalidInput, maxPageSize)
	}

	entries, err := s.store.ListEntries(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	if entries == nil {
		entries = []domain.Entry{}
	}
	return entries, nil
}

// GetEntry returns the entry with the given id, or nil.
func (s *Service) GetEntry(ctx context.Context, entryID int64) (*domain.Entry, error) {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return entry, nil
}

// GetEntryByPath returns the entry stored at path, or nil.
func (s *Service) GetEntryByPath(ctx context.Context, path string) (*domain.Entry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidInput)
	}
	entry, err := s.store.GetEntryByPath(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry by path: %w", err)
	}
	return entry, nil
}

// CreateEntry registers a recording.
func (s *Service) CreateEntry(ctx context.Context, entry *domain.Entry) error {
	entry.Name = strings.TrimSpace(entry.Name)
	entry.Path = strings.TrimSpace(entry.Path)
	if entry.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if entry.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidInput)
	}
	if entry.Size < 0 {
		return fmt.Errorf("%w: size must not be negative", ErrInvalidInput)
	}
	if err := s.store.CreateEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	s.logger.Info().Int64("entry_id", entry.ID).Str("path", entry.Path).Msg("entry created")
	return nil
}

// AddTag tags an entry.
func (s *Service) AddTag(ctx context.Context, entryID int64, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return fmt.Errorf("%w: tag is required", ErrInvalidInput)
	}
	if err := s.store.AddTag(ctx, entryID, tag); err != nil {
		return fmt.Errorf("failed to add tag: %w", err)
	}
	return nil
}

// RemoveTag removes a tag from an entry.
func (s *Service) RemoveTag(ctx context.Context, entryID int64, tag string) error {
	if err := s.store.RemoveTag(ctx, entryID, tag); err != nil {
		return fmt.Errorf("failed to remove tag: %w", err)
	}
	return nil
}

// GetSequences returns the sequences of an entry keyed by id.
func (s *Service) GetSequences(ctx context.Context, entryID int64) (map[int64]domain.Sequence, error) {
	seqs, err := s.store.GetSequences(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sequences: %w", err)
	}
	return seqs, nil
}

// AddSequence adds a sequence to an entry.
func (s *Service) AddSequence(ctx context.Context, seq *domain.Sequence) error {
	if err := s.store.AddSequence(ctx, seq); err != nil {
		return fmt.Errorf("failed to add sequence: %w", err)
	}
	return nil
}

// UpdateSequence replaces a sequence of an entry.
func (s *Service) UpdateSequence(ctx context.Context, seq *domain.Sequence) error {
	if err := s.store.UpdateSequence(ctx, seq); err != nil {
		return fmt.Errorf("failed to update sequence: %w", err)
	}
	return nil
}

// RemoveSequence deletes a sequence of an entry.
func (s *Service) RemoveSequence(ctx context.Context, entryID, sequenceID int64) error {
	if err := s.store.RemoveSequence(ctx, entryID, sequenceID); err != nil {
		return fmt.Errorf("failed to remove sequence: %w", err)
	}
	return nil
}

// GetMetadata returns the metadata document of an entry, or nil.
func (s *Service) GetMetadata(ctx context.Context, entryID int64) (*domain.Metadata, error) {
	meta, err := s.store.GetMetadata(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}
	return meta, nil
}

// UpdateMetadata replaces the metadata document of an entry.
func (s *Service) UpdateMetadata(ctx context.Context, entryID int64, raw json.RawMessage) (*domain.Metadata, error) {
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: metadata must be valid JSON", ErrInvalidInput)
	}
	meta := &domain.Metadata{EntryID: entryID, JSON: raw}
	if err := s.store.UpdateMetadata(ctx, meta); err != nil {
		return nil, fmt.Errorf("failed to update metadata: %w", err)
	}
	return meta, nil
}
