package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/oddrm/pse25/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to an in-memory database is a separate database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			path TEXT NOT NULL UNIQUE,
			platform TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_name ON entries(name)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (entry_id, name),
			FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS sequences (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_id INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			start_timestamp INTEGER NOT NULL,
			end_timestamp INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sequences_entry ON sequences(entry_id)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			entry_id INTEGER PRIMARY KEY,
			metadata_json TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// SeedDemo inserts the demo entry unless an entry with its path exists.
func (s *SQLiteStore) SeedDemo(ctx context.Context) error {
	existing, err := s.GetEntryByPath(ctx, "/data/entry.mcap")
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	entry := &domain.Entry{
		Name:     "entry.mcap",
		Path:     "/data/entry.mcap",
		Platform: "Platform A",
		Size:     1024,
	}
	if err := s.CreateEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to seed demo entry: %w", err)
	}
	for _, tag := range []string{"Tag A", "Tag B"} {
		if err := s.AddTag(ctx, entry.ID, tag); err != nil {
			return fmt.Errorf("failed to seed demo tag: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateEntry inserts an entry and its tags, filling in ID and timestamps.
func (s *SQLiteStore) CreateEntry(ctx context.Context, entry *domain.Entry) error {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO entries (name, path, platform, size, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Name, entry.Path, entry.Platform, entry.Size, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for _, tag := range entry.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO tags (entry_id, name, created_at) VALUES (?, ?, ?)`,
			id, tag, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entry: %w", err)
	}
	entry.ID = id
	return nil
}

const entryColumns = `id, name, path, platform, size, created_at, updated_at`

func scanEntry(scan func(dest ...interface{}) error) (*domain.Entry, error) {
	var e domain.Entry
	if err := scan(&e.ID, &e.Name, &e.Path, &e.Platform, &e.Size, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Tags = []string{}
	return &e, nil
}

// GetEntry retrieves an entry by ID.
func (s *SQLiteStore) GetEntry(ctx context.Context, entryID int64) (*domain.Entry, error) {
	return s.getEntryWhere(ctx, `id = ?`, entryID)
}

// GetEntryByPath retrieves an entry by its file path.
func (s *SQLiteStore) GetEntryByPath(ctx context.Context, path string) (*domain.Entry, error) {
	return s.getEntryWhere(ctx, `path = ?`, path)
}

func (s *SQLiteStore) getEntryWhere(ctx context.Context, where string, arg interface{}) (*domain.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE `+where, arg)
	entry, err := scanEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadTags(ctx, []*domain.Entry{entry}); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntries returns one page of entries matching the query. Search matches
// name, path, platform or any tag, case-insensitively.
func (s *SQLiteStore) ListEntries(ctx context.Context, q domain.EntryQuery) ([]domain.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries e`
	var args []interface{}

	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query += ` WHERE lower(e.name) LIKE ? OR lower(e.path) LIKE ? OR lower(e.platform) LIKE ?
			OR EXISTS (SELECT 1 FROM tags t WHERE t.entry_id = e.id AND lower(t.name) LIKE ?)`
		args = append(args, pattern, pattern, pattern, pattern)
	}

	sortBy := q.SortBy
	if !sortBy.Valid() {
		sortBy = domain.EntrySortName
	}
	direction := "DESC"
	if q.Ascending {
		direction = "ASC"
	}
	// sortBy is whitelisted above and maps 1:1 to a column name.
	query += fmt.Sprintf(" ORDER BY e.%s %s, e.id %s", string(sortBy), direction, direction)

	if q.PageSize > 0 {
		page := q.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", q.PageSize, (page-1)*q.PageSize)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*domain.Entry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadTags(ctx, list); err != nil {
		return nil, err
	}

	entries := make([]domain.Entry, len(list))
	for i, e := range list {
		entries[i] = *e
	}
	return entries, nil
}

func (s *SQLiteStore) loadTags(ctx context.Context, entries []*domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	byID := make(map[int64]*domain.Entry, len(entries))
	placeholders := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
		placeholders = append(placeholders, "?")
		args = append(args, e.ID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, name FROM tags WHERE entry_id IN (`+strings.Join(placeholders, ",")+`) ORDER BY entry_id, id`,
		args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var entryID int64
		var name string
		if err := rows.Scan(&entryID, &name); err != nil {
			return err
		}
		if e, ok := byID[entryID]; ok {
			e.Tags = append(e.Tags, name)
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) entryExists(ctx context.Context, entryID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM entries WHERE id = ?`, entryID).Scan(&n)
	return n > 0, err
}

// AddTag tags an entry. Adding a tag twice is a no-op.
func (s *SQLiteStore) AddTag(ctx context.Context, entryID int64, tag string) error {
	exists, err := s.entryExists(ctx, entryID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tags (entry_id, name, created_at) VALUES (?, ?, ?)`,
		entryID, tag, now); err != nil {
		return err
	}
	return s.touchEntry(ctx, entryID, now)
}

// RemoveTag removes a tag from an entry.
func (s *SQLiteStore) RemoveTag(ctx context.Context, entryID int64, tag string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE entry_id = ? AND name = ?`, entryID, tag)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return s.touchEntry(ctx, entryID, time.Now().UTC())
}

func (s *SQLiteStore) touchEntry(ctx context.Context, entryID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE entries SET updated_at = ? WHERE id = ?`, at, entryID)
	return err
}

// GetSequences returns the sequences of an entry keyed by sequence ID.
func (s *SQLiteStore) GetSequences(ctx context.Context, entryID int64) (map[int64]domain.Sequence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entry_id, description, start_timestamp, end_timestamp, created_at, updated_at
		FROM sequences WHERE entry_id = ? ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sequences := make(map[int64]domain.Sequence)
	for rows.Next() {
		var seq domain.Sequence
		if err := rows.Scan(&seq.ID, &seq.EntryID, &seq.Description, &seq.StartTimestamp, &seq.EndTimestamp, &seq.CreatedAt, &seq.UpdatedAt); err != nil {
			return nil, err
		}
		sequences[seq.ID] = seq
	}
	return sequences, rows.Err()
}

// AddSequence inserts a sequence and sets its ID.
func (s *SQLiteStore) AddSequence(ctx context.Context, seq *domain.Sequence) error {
	if seq.EndTimestamp < seq.StartTimestamp {
		return ErrInvalidSequence
	}
	exists, err := s.entryExists(ctx, seq.EntryID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	now := time.Now().UTC()
	seq.CreatedAt = now
	seq.UpdatedAt = now
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sequences (entry_id, description, start_timestamp, end_timestamp, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		seq.EntryID, seq.Description, seq.StartTimestamp, seq.EndTimestamp, seq.CreatedAt, seq.UpdatedAt)
	if err != nil {
		return err
	}
	seq.ID, err = res.LastInsertId()
	return err
}

// UpdateSequence replaces description and bounds of an existing sequence.
func (s *SQLiteStore) UpdateSequence(ctx context.Context, seq *domain.Sequence) error {
	if seq.EndTimestamp < seq.StartTimestamp {
		return ErrInvalidSequence
	}
	seq.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE sequences SET description = ?, start_timestamp = ?, end_timestamp = ?, updated_at = ?
		WHERE id = ? AND entry_id = ?`,
		seq.Description, seq.StartTimestamp, seq.EndTimestamp, seq.UpdatedAt, seq.ID, seq.EntryID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveSequence deletes a sequence of an entry.
func (s *SQLiteStore) RemoveSequence(ctx context.Context, entryID, sequenceID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sequences WHERE id = ? AND entry_id = ?`, sequenceID, entryID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMetadata retrieves the metadata document of an entry.
func (s *SQLiteStore) GetMetadata(ctx context.Context, entryID int64) (*domain.Metadata, error) {
	var meta domain.Metadata
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT entry_id, metadata_json, updated_at FROM metadata WHERE entry_id = ?`,
		entryID).Scan(&meta.EntryID, &raw, &meta.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if raw.Valid {
		meta.JSON = json.RawMessage(raw.String)
	}
	return &meta, nil
}

// UpdateMetadata stores the metadata document of an entry, replacing any
// previous one.
func (s *SQLiteStore) UpdateMetadata(ctx context.Context, meta *domain.Metadata) error {
	if len(meta.JSON) > 0 && !json.Valid(meta.JSON) {
		return fmt.Errorf("invalid metadata json")
	}
	exists, err := s.entryExists(ctx, meta.EntryID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	meta.UpdatedAt = time.Now().UTC()
	var raw interface{}
	if len(meta.JSON) > 0 {
		raw = string(meta.JSON)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO metadata (entry_id, metadata_json, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET metadata_json = excluded.metadata_json, updated_at = excluded.updated_at`,
		meta.EntryID, raw, meta.UpdatedAt, meta.UpdatedAt)
	return err
}
