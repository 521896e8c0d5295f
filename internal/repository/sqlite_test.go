package repository

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddrm/pse25/internal/domain"
)

// helpers.NewTestSQLiteStore imports this package, so tests here open their own.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createEntry(t *testing.T, s *SQLiteStore, name, path, platform string, size int64, tags ...string) *domain.Entry {
	t.Helper()
	e := &domain.Entry{Name: name, Path: path, Platform: platform, Size: size, Tags: tags}
	if err := s.CreateEntry(context.Background(), e); err != nil {
		t.Fatalf("CreateEntry %s: %v", name, err)
	}
	return e
}

func TestCreateAndGetEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e := createEntry(t, s, "log.mcap", "/data/log.mcap", "Platform B", 2048, "outdoor", "lidar")
	assert.NotZero(t, e.ID)

	got, err := s.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "log.mcap", got.Name)
	assert.Equal(t, int64(2048), got.Size)
	assert.Equal(t, []string{"outdoor", "lidar"}, got.Tags)

	byPath, err := s.GetEntryByPath(ctx, "/data/log.mcap")
	require.NoError(t, err)
	require.NotNil(t, byPath)
	assert.Equal(t, e.ID, byPath.ID)

	missing, err := s.GetEntry(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = s.CreateEntry(ctx, &domain.Entry{Name: "dup", Path: "/data/log.mcap"})
	assert.Error(t, err, "paths are unique")
}

func TestListEntries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	createEntry(t, s, "b.mcap", "/data/b.mcap", "Platform A", 300)
	createEntry(t, s, "a.mcap", "/data/a.mcap", "Platform B", 100, "night")
	createEntry(t, s, "c.bag", "/other/c.bag", "Platform A", 200)

	all, err := s.ListEntries(ctx, domain.EntryQuery{SortBy: domain.EntrySortName, Ascending: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a.mcap", all[0].Name)
	assert.Equal(t, []string{"night"}, all[0].Tags)
	assert.Equal(t, []string{}, all[1].Tags)

	bySize, err := s.ListEntries(ctx, domain.EntryQuery{SortBy: domain.EntrySortSize})
	require.NoError(t, err)
	assert.Equal(t, "b.mcap", bySize[0].Name, "descending by default")

	search, err := s.ListEntries(ctx, domain.EntryQuery{Search: "PLATFORM a", SortBy: domain.EntrySortName, Ascending: true})
	require.NoError(t, err)
	require.Len(t, search, 2)
	assert.Equal(t, "b.mcap", search[0].Name)

	byTag, err := s.ListEntries(ctx, domain.EntryQuery{Search: "nig"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "a.mcap", byTag[0].Name)

	page2, err := s.ListEntries(ctx, domain.EntryQuery{SortBy: domain.EntrySortName, Ascending: true, Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "c.bag", page2[0].Name)

	invalidSort, err := s.ListEntries(ctx, domain.EntryQuery{SortBy: "size; DROP TABLE entries", Ascending: true})
	require.NoError(t, err)
	assert.Len(t, invalidSort, 3)
}

func TestTags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := createEntry(t, s, "a.mcap", "/a.mcap", "P", 1)

	require.NoError(t, s.AddTag(ctx, e.ID, "Tag A"))
	require.NoError(t, s.AddTag(ctx, e.ID, "Tag A"))
	require.NoError(t, s.AddTag(ctx, e.ID, "Tag B"))

	got, err := s.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tag A", "Tag B"}, got.Tags)

	require.NoError(t, s.RemoveTag(ctx, e.ID, "Tag A"))
	assert.ErrorIs(t, s.RemoveTag(ctx, e.ID, "Tag A"), ErrNotFound)
	assert.ErrorIs(t, s.AddTag(ctx, 999, "x"), ErrNotFound)

	got, err = s.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tag B"}, got.Tags)
}

func TestSequences(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := createEntry(t, s, "a.mcap", "/a.mcap", "P", 1)

	seq := &domain.Sequence{EntryID: e.ID, Description: "takeoff", StartTimestamp: 10, EndTimestamp: 20}
	require.NoError(t, s.AddSequence(ctx, seq))
	assert.NotZero(t, seq.ID)

	point := &domain.Sequence{EntryID: e.ID, StartTimestamp: 30, EndTimestamp: 30}
	require.NoError(t, s.AddSequence(ctx, point), "zero-length sequences are valid")

	invalid := &domain.Sequence{EntryID: e.ID, StartTimestamp: 50, EndTimestamp: 40}
	assert.ErrorIs(t, s.AddSequence(ctx, invalid), ErrInvalidSequence)
	assert.ErrorIs(t, s.AddSequence(ctx, &domain.Sequence{EntryID: 999, StartTimestamp: 1, EndTimestamp: 2}), ErrNotFound)

	seqs, err := s.GetSequences(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, seqs, 2)
	assert.Equal(t, "takeoff", seqs[seq.ID].Description)

	seq.Description = "landing"
	seq.EndTimestamp = 25
	require.NoError(t, s.UpdateSequence(ctx, seq))
	seq.EndTimestamp = 5
	assert.ErrorIs(t, s.UpdateSequence(ctx, seq), ErrInvalidSequence)
	assert.ErrorIs(t, s.UpdateSequence(ctx, &domain.Sequence{ID: 999, EntryID: e.ID, StartTimestamp: 1, EndTimestamp: 2}), ErrNotFound)

	seqs, err = s.GetSequences(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "landing", seqs[seq.ID].Description)
	assert.Equal(t, int64(25), seqs[seq.ID].EndTimestamp)

	require.NoError(t, s.RemoveSequence(ctx, e.ID, seq.ID))
	assert.ErrorIs(t, s.RemoveSequence(ctx, e.ID, seq.ID), ErrNotFound)

	seqs, err = s.GetSequences(ctx, e.ID)
	require.NoError(t, err)
	assert.Len(t, seqs, 1)

	empty, err := s.GetSequences(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := createEntry(t, s, "a.mcap", "/a.mcap", "P", 1)

	missing, err := s.GetMetadata(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.UpdateMetadata(ctx, &domain.Metadata{EntryID: e.ID, JSON: json.RawMessage(`{"weather":"rain"}`)}))
	require.NoError(t, s.UpdateMetadata(ctx, &domain.Metadata{EntryID: e.ID, JSON: json.RawMessage(`{"weather":"sun"}`)}))

	meta, err := s.GetMetadata(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.JSONEq(t, `{"weather":"sun"}`, string(meta.JSON))

	assert.Error(t, s.UpdateMetadata(ctx, &domain.Metadata{EntryID: e.ID, JSON: json.RawMessage(`{broken`)}))
	assert.ErrorIs(t, s.UpdateMetadata(ctx, &domain.Metadata{EntryID: 999, JSON: json.RawMessage(`{}`)}), ErrNotFound)
}

func TestSeedDemo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SeedDemo(ctx))
	require.NoError(t, s.SeedDemo(ctx))

	entries, err := s.ListEntries(ctx, domain.EntryQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "entry.mcap", entries[0].Name)
	assert.Equal(t, "Platform A", entries[0].Platform)
	assert.Equal(t, []string{"Tag A", "Tag B"}, entries[0].Tags)
	assert.NoError(t, s.Ping(ctx))
}
