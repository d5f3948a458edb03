package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/gatewise/gatewise/internal/api/models"
	"github.com/gatewise/gatewise/internal/api/response"
	"github.com/gatewise/gatewise/internal/entry"
	"github.com/gatewise/gatewise/internal/events"
)

// EntryHandler exposes registered controller entries over HTTP.
type EntryHandler struct {
	entries entry.Repository
	events  events.Publisher
	logger  zerolog.Logger
}

// NewEntryHandler creates a new EntryHandler.
func NewEntryHandler(entries entry.Repository, publisher events.Publisher, logger zerolog.Logger) *EntryHandler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &EntryHandler{entries: entries, events: publisher, logger: logger}
}

// ListEntries handles GET /v1/entries.
func (h *EntryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.entries.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list entries failed")
		response.InternalError(w, r, "could not list entries")
		return
	}

	resp := models.EntryListResponse{Entries: make([]models.EntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, entryResponse(e))
	}

	response.JSON(w, r, http.StatusOK, resp)
}

// GetEntry handles GET /v1/entries/{serialNumber}.
func (h *EntryHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	serialNumber := chi.URLParam(r, "serialNumber")

	e, err := h.entries.Get(r.Context(), serialNumber)
	if err != nil {
		if errors.Is(err, entry.ErrEntryNotFound) {
			response.NotFound(w, r, "entry not found")
			return
		}
		h.logger.Error().Err(err).Str("serial_number", serialNumber).Msg("get entry failed")
		response.InternalError(w, r, "could not load entry")
		return
	}

	response.JSON(w, r, http.StatusOK, entryResponse(e))
}

// DeleteEntry handles DELETE /v1/entries/{serialNumber}.
func (h *EntryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	serialNumber := chi.URLParam(r, "serialNumber")

	e, err := h.entries.Get(r.Context(), serialNumber)
	if err != nil {
		if errors.Is(err, entry.ErrEntryNotFound) {
			response.NotFound(w, r, "entry not found")
			return
		}
		h.logger.Error().Err(err).Str("serial_number", serialNumber).Msg("get entry failed")
		response.InternalError(w, r, "could not load entry")
		return
	}

	if err := h.entries.Delete(r.Context(), serialNumber); err != nil {
		if errors.Is(err, entry.ErrEntryNotFound) {
			response.NotFound(w, r, "entry not found")
			return
		}
		h.logger.Error().Err(err).Str("serial_number", serialNumber).Msg("delete entry failed")
		response.InternalError(w, r, "could not delete entry")
		return
	}

	if err := h.events.PublishEntryEvent(r.Context(), events.EntryEvent{
		Event:        events.EventEntryRemoved,
		SerialNumber: serialNumber,
		DeviceClass:  string(e.DeviceClass),
		OccurredAt:   time.Now().UTC(),
	}); err != nil {
		h.logger.Warn().Err(err).Msg("entry event publish failed")
	}

	response.NoContent(w, r)
}

// entryResponse maps a stored entry to its API shape, redacting the keys.
func entryResponse(e *entry.Entry) models.EntryResponse {
	return models.EntryResponse{
		SerialNumber:   e.SerialNumber,
		Title:          e.Title,
		Host:           e.Host,
		DeviceClass:    string(e.DeviceClass),
		SecretKeyLast4: e.KeyLast4(),
		CreatedAt:      models.Timestamp(e.CreatedAt),
	}
}
