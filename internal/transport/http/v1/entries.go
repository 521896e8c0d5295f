package v1

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/oddrm/pse25/internal/domain"
)

// CreateEntryRequest is the body of an entry registration.
type CreateEntryRequest struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Platform string   `json:"platform"`
	Size     int64    `json:"size"`
	Tags     []string `json:"tags,omitempty"`
}

// SequenceRequest is the body of a sequence create or update.
type SequenceRequest struct {
	Description    string `json:"description"`
	StartTimestamp int64  `json:"start_timestamp"`
	EndTimestamp   int64  `json:"end_timestamp"`
}

// TagRequest is the body of a tag add.
type TagRequest struct {
	Tag string `json:"tag"`
}

// ListEntries lists a page of entries.
// GET /v1/entries?search=&sort_by=&ascending=&page=&page_size=
func (h *Handler) ListEntries(c echo.Context) error {
	ctx := c.Request().Context()

	q := domain.EntryQuery{
		Search: c.QueryParam("search"),
		SortBy: domain.EntrySort(c.QueryParam("sort_by")),
	}
	if raw := c.QueryParam("ascending"); raw != "" {
		asc, err := strconv.ParseBool(raw)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "ascending must be a boolean")
		}
		q.Ascending = asc
	}
	var err error
	if q.Page, err = queryInt(c, "page", 0); err != nil {
		return errorJSON(c, http.StatusBadRequest, "page must be an integer")
	}
	if q.PageSize, err = queryInt(c, "page_size", 0); err != nil {
		return errorJSON(c, http.StatusBadRequest, "page_size must be an integer")
	}

	entries, err := h.service.ListEntries(ctx, q)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

// CreateEntry registers an entry.
// POST /v1/entries
func (h *Handler) CreateEntry(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateEntryRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	entry := &domain.Entry{
		Name:     req.Name,
		Path:     req.Path,
		Platform: req.Platform,
		Size:     req.Size,
		Tags:     req.Tags,
	}
	if err := h.service.CreateEntry(ctx, entry); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, entry)
}

// GetEntry gets one entry.
// GET /v1/entries/:entry_id
func (h *Handler) GetEntry(c echo.Context) error {
	ctx := c.Request().Context()

	entryID, ok := int64Param(c, "entry_id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "entry_id must be an integer")
	}
	entry, err := h.service.GetEntry(ctx, entryID)
	if err != nil {
		return serviceError(c, err)
	}
	if entry == nil {
		return errorJSON(c, http.StatusNotFound, "entry not found")
	}
	return c.JSON(http.StatusOK, entry)
}

// GetEntryByPath gets the entry stored at a path.
// GET /v1/paths?path=
func (h *Handler) GetEntryByPath(c echo.Context) error {
	ctx := c.Request().Context()

	entry, err := h.service.GetEntryByPath(ctx, c.QueryParam("path"))
	if err != nil {
		return serviceError(c, err)
	}
	if entry == nil {
		return errorJSON(c, http.StatusNotFound, "entry not found")
	}
	return c.JSON(http.StatusOK, entry)
}

// GetSequences lists the sequences of an entry, keyed by sequence id.
// GET /v1/entries/:entry_id/sequences
func (h *Handler) GetSequences(c echo.Context) error {
	ctx := c.Request().Context()

	entryID, ok := int64Param(c, "entry_id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "entry_id must be an integer")
	}
	seqs, err := h.service.GetSequences(ctx, entryID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, seqs)
}

// AddSequence adds a sequence to an entry.
// POST /v1/entries/:entry_id/sequences
func (h *Handler) AddSequence(c echo.Context) error {
	ctx := c.Request().Context()

	entryID, ok := int64Param(c, "entry_id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "entry_id must be an integer")
	}
	var req SequenceRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	seq := &domain.Sequence{
		EntryID:        entryID,
		Description:    req.Description,
		StartTimestamp: req.StartTimestamp,
		EndTimestamp:   req.EndTimestamp,
	}
	if err := h.service.AddSequence(ctx, seq); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, seq)
}

// UpdateSequence replaces a sequence.
// PUT /v1/entries/:entry_id/sequences/:sequence_id
func (h *Handler) UpdateSequence(c echo.Context) error {
	ctx := c.Request().Context()

	entryID, ok := int64Param(c, "entry_id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "entry_id must be an integer")
	}
	sequenceID, ok := int64Param(c, "sequence_id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "sequence_id must be an integer")
	}
	var req SequenceRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	seq := &domain.Sequence{
		ID:             sequenceID,
		EntryID:        entryID,
		Description:    req.Description,
		StartTimestamp: req.StartTimestamp,
		EndTimestamp:   req.EndTimestamp,
	}
	if err := h.service.UpdateSequence(ctx, seq); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RemoveSequence deletes a sequence.
// DELETE /v1/entries/:entry_id/sequences/:sequence_id
func (h *Handler) RemoveSequence(c echo.Context) error {
	ctx := c.Request().Context()

	entryID, ok := int64Param(c, "entry_id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "entry_id must be an integer")
	}
	sequenceID, ok := int64Param(c, "sequence_id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "sequence_id must be an integer")
	}
	if err := h.service.RemoveSequence(ctx, entryID, sequenceID); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AddTag tags an entry.
// PUT /v1/entries/:entry_id/tags
func (h *Handler) AddTag(c echo.Context) error {
	ctx := c.Request().Context()

	entryID, ok := int64Param(c, "entry_id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "entry_id must be an integer")
	}
	var req TagRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if err := h.service.AddTag(ctx, entryID, req.Tag); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RemoveTag removes a tag from an entry.
// DELETE /v1/entries/:entry_id/tags/:tag
func (h *Handler) RemoveTag(c echo.Context) error {
	ctx := c.Request().Context()

	entryID, ok := int64Param(c, "entry_id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "entry_id must be an integer")
	}
	if err := h.service.RemoveTag(ctx, entryID, c.Param("tag")); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetMetadata gets the metadata document of an entry.
// GET /v1/entries/:entry_id/metadata
func (h *Handler) GetMetadata(c echo.Context) error {
	ctx := c.Request().Context()

	entryID, ok := int64Param(c, "entry_id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "entry_id must be an integer")
	}
	meta, err := h.service.GetMetadata(ctx, entryID)
	if err != nil {
		return serviceError(c, err)
	}
	if meta == nil {
		return errorJSON(c, http.StatusNotFound, "metadata not found")
	}
	return c.JSON(http.StatusOK, meta)
}

// UpdateMetadata replaces the metadata document of an entry with the raw
// JSON request body.
// PUT /v1/entries/:entry_id/metadata
func (h *Handler) UpdateMetadata(c echo.Context) error {
	ctx := c.Request().Context()

	entryID, ok := int64Param(c, "entry_id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "entry_id must be an integer")
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "failed to read request body")
	}
	if _, err := h.service.UpdateMetadata(ctx, entryID, json.RawMessage(body)); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
