package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/playsink/playsink/internal/state"
)

// HistoryHandler exposes the resume history.
type HistoryHandler struct {
	store *state.Store
}

// NewHistoryHandler creates a history handler.
func NewHistoryHandler(store *state.Store) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// HistoryEntryResponse is one saved position.
type HistoryEntryResponse struct {
	URL       string    `json:"url"`
	Position  float64   `json:"position"`
	Timestamp time.Time `json:"timestamp"`
	// Resumable reports whether the entry is still eligible for resume.
	Resumable bool `json:"resumable"`
}

// HistoryOutput wraps the history list.
type HistoryOutput struct {
	Body struct {
		Entries []HistoryEntryResponse `json:"entries"`
	}
}

// Register registers the history routes.
func (h *HistoryHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHistory",
		Method:      "GET",
		Path:        "/api/v1/history",
		Summary:     "Resume history",
		Description: "Returns the saved playback positions, most recent first.",
		Tags:        []string{"History"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "clearHistory",
		Method:      "DELETE",
		Path:        "/api/v1/history",
		Summary:     "Clear resume history",
		Tags:        []string{"History"},
	}, h.Clear)
}

// Get lists the saved positions.
func (h *HistoryHandler) Get(ctx context.Context, _ *struct{}) (*HistoryOutput, error) {
	history := h.store.History()

	out := &HistoryOutput{}
	out.Body.Entries = make([]HistoryEntryResponse, 0, len(history))
	for url, entry := range history {
		out.Body.Entries = append(out.Body.Entries, HistoryEntryResponse{
			URL:       url,
			Position:  entry.Position,
			Timestamp: entry.Timestamp,
			Resumable: h.store.SavedPosition(url) > 0,
		})
	}
	sort.Slice(out.Body.Entries, func(i, j int) bool {
		return out.Body.Entries[i].Timestamp.After(out.Body.Entries[j].Timestamp)
	})
	return out, nil
}

// Clear wipes the history mapping, in memory and in storage.
func (h *HistoryHandler) Clear(ctx context.Context, _ *struct{}) (*struct{}, error) {
	if err := h.store.ResetHistory(); err != nil {
		return nil, huma.Error500InternalServerError("clearing history failed", err)
	}
	return &struct{}{}, nil
}
