package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/playsink/playsink/internal/playback"
	"github.com/playsink/playsink/internal/state"
)

// PlaybackHandler exposes session control over the API.
type PlaybackHandler struct {
	manager *playback.Manager
	store   *state.Store
	logger  *slog.Logger
}

// NewPlaybackHandler creates a playback handler.
func NewPlaybackHandler(manager *playback.Manager, store *state.Store, logger *slog.Logger) *PlaybackHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybackHandler{
		manager: manager,
		store:   store,
		logger:  logger.With(slog.String("component", "api")),
	}
}

// SessionResponse is the API view of a session.
type SessionResponse struct {
	SessionID string  `json:"session_id"`
	URL       string  `json:"url"`
	Status    string  `json:"status"`
	Kind      string  `json:"kind"`
	Category  string  `json:"category"`
	Backend   string  `json:"backend"`
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration"`
}

// PlayRequest starts playback of a URL.
type PlayRequest struct {
	Body struct {
		URL string `json:"url" minLength:"1" doc:"Stream URL to play"`
	}
}

// PlayOutput wraps the started session.
type PlayOutput struct {
	Body SessionResponse
}

// StateOutput wraps the full player state snapshot.
type StateOutput struct {
	Body struct {
		Session *SessionResponse  `json:"session,omitempty"`
		State   state.PlayerState `json:"state"`
	}
}

// SeekRequest moves the playhead.
type SeekRequest struct {
	Body struct {
		Position float64 `json:"position" minimum:"0" doc:"Target position in seconds"`
	}
}

// Register registers the playback routes.
func (h *PlaybackHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "startPlayback",
		Method:      "POST",
		Path:        "/api/v1/playback",
		Summary:     "Start playback",
		Description: "Classifies the URL, selects a backend, and drives the session to ready. Any existing session is fully torn down first.",
		Tags:        []string{"Playback"},
	}, h.Start)

	huma.Register(api, huma.Operation{
		OperationID: "getPlayback",
		Method:      "GET",
		Path:        "/api/v1/playback",
		Summary:     "Current playback state",
		Tags:        []string{"Playback"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "stopPlayback",
		Method:      "DELETE",
		Path:        "/api/v1/playback",
		Summary:     "Stop playback",
		Description: "Tears down the live session and releases its resources.",
		Tags:        []string{"Playback"},
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "pausePlayback",
		Method:      "POST",
		Path:        "/api/v1/playback/pause",
		Summary:     "Pause playback",
		Tags:        []string{"Playback"},
	}, h.Pause)

	huma.Register(api, huma.Operation{
		OperationID: "resumePlayback",
		Method:      "POST",
		Path:        "/api/v1/playback/resume",
		Summary:     "Resume playback",
		Tags:        []string{"Playback"},
	}, h.Resume)

	huma.Register(api, huma.Operation{
		OperationID: "seekPlayback",
		Method:      "POST",
		Path:        "/api/v1/playback/seek",
		Summary:     "Seek",
		Tags:        []string{"Playback"},
	}, h.Seek)
}

// Start begins playback of a new URL.
func (h *PlaybackHandler) Start(ctx context.Context, input *PlayRequest) (*PlayOutput, error) {
	session, err := h.manager.Play(ctx, input.Body.URL, playback.SessionEvents{})
	if err != nil {
		switch {
		case errors.Is(err, playback.ErrInitializationInFlight):
			return nil, huma.Error409Conflict("a session is already initializing", err)
		case errors.Is(err, playback.ErrEngineUnsupported):
			return nil, huma.Error422UnprocessableEntity("no backend can play this stream", err)
		default:
			return nil, huma.Error502BadGateway("starting playback failed", err)
		}
	}
	return &PlayOutput{Body: h.sessionResponse(session)}, nil
}

// Get returns the live session and the player state snapshot.
func (h *PlaybackHandler) Get(ctx context.Context, _ *struct{}) (*StateOutput, error) {
	out := &StateOutput{}
	out.Body.State = h.store.State()
	if session := h.manager.Current(); session != nil {
		resp := h.sessionResponse(session)
		out.Body.Session = &resp
	}
	return out, nil
}

// Stop tears down the live session.
func (h *PlaybackHandler) Stop(ctx context.Context, _ *struct{}) (*struct{}, error) {
	h.manager.Stop()
	h.store.Reset()
	return &struct{}{}, nil
}

// Pause pauses the live session.
func (h *PlaybackHandler) Pause(ctx context.Context, _ *struct{}) (*PlayOutput, error) {
	session := h.manager.Current()
	if session == nil {
		return nil, huma.Error404NotFound("no live session")
	}
	session.Pause()
	return &PlayOutput{Body: h.sessionResponse(session)}, nil
}

// Resume resumes the live session.
func (h *PlaybackHandler) Resume(ctx context.Context, _ *struct{}) (*PlayOutput, error) {
	session := h.manager.Current()
	if session == nil {
		return nil, huma.Error404NotFound("no live session")
	}
	if err := session.Play(); err != nil {
		return nil, huma.Error409Conflict("resuming playback failed", err)
	}
	return &PlayOutput{Body: h.sessionResponse(session)}, nil
}

// Seek moves the playhead of the live session.
func (h *PlaybackHandler) Seek(ctx context.Context, input *SeekRequest) (*PlayOutput, error) {
	session := h.manager.Current()
	if session == nil {
		return nil, huma.Error404NotFound("no live session")
	}
	session.SeekTo(input.Body.Position)
	return &PlayOutput{Body: h.sessionResponse(session)}, nil
}

func (h *PlaybackHandler) sessionResponse(s *playback.Session) SessionResponse {
	snapshot := h.store.State()
	desc := s.Descriptor()
	return SessionResponse{
		SessionID: s.ID(),
		URL:       s.URL(),
		Status:    string(s.Status()),
		Kind:      desc.Kind.String(),
		Category:  desc.Category.String(),
		Backend:   s.Backend().Kind.String(),
		Position:  snapshot.CurrentTime,
		Duration:  snapshot.Duration,
	}
}
