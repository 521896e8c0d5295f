package domain

import (
	"encoding/json"
	"time"
)

// Entry is a recorded data file (e.g. an MCAP or rosbag file).
type Entry struct {
	ID        int64     `json:"entry_id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Platform  string    `json:"platform"`
	Size      int64     `json:"size"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sequence marks a time range within an entry.
type Sequence struct {
	ID             int64     `json:"sequence_id"`
	EntryID        int64     `json:"entry_id"`
	Description    string    `json:"description"`
	StartTimestamp int64     `json:"start_timestamp"`
	EndTimestamp   int64     `json:"end_timestamp"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Metadata is free-form JSON attached to an entry.
type Metadata struct {
	EntryID   int64           `json:"entry_id"`
	JSON      json.RawMessage `json:"metadata"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// EntryQuery selects a page of entries.
type EntryQuery struct {
	Search    string
	SortBy    EntrySort
	Ascending bool
	Page      int
	PageSize  int
}
