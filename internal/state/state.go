// Package state implements the event-sourced player state store: a pure
// reducer over a closed action set, a single-writer dispatch loop with
// multi-reader snapshots, and a persisted per-URL resume history that
// outlives playback state resets.
package state

import (
	"math"
	"time"

	"github.com/playsink/playsink/internal/media"
)

// ActionKind enumerates the closed set of mutations.
type ActionKind string

const (
	ActionSetURL           ActionKind = "set-url"
	ActionSetPlaying       ActionKind = "set-playing"
	ActionSetTime          ActionKind = "set-time"
	ActionSetDuration      ActionKind = "set-duration"
	ActionSetBuffered      ActionKind = "set-buffered"
	ActionSetVolume        ActionKind = "set-volume"
	ActionSetMuted         ActionKind = "set-muted"
	ActionSetRate          ActionKind = "set-rate"
	ActionSetStreamInfo    ActionKind = "set-stream-info"
	ActionSetMediaInfo     ActionKind = "set-media-info"
	ActionSetStatus        ActionKind = "set-status"
	ActionSetError         ActionKind = "set-error"
	ActionSetRemuxProgress ActionKind = "set-remux-progress"
	ActionSavePosition     ActionKind = "save-position"
	ActionLoadHistory      ActionKind = "load-history"
	ActionReset            ActionKind = "reset"
)

// Action is one mutation request. Only the fields relevant to the Kind
// are read; the rest are ignored.
type Action struct {
	Kind       ActionKind
	URL        string
	Bool       bool
	Float      float64
	Text       string
	StreamInfo *media.StreamDescriptor
	MediaInfo  *media.MediaInfo
	History    History
	At         time.Time
}

// HistoryEntry is a saved playback position for one URL.
type HistoryEntry struct {
	Position  float64   `json:"position"`
	Timestamp time.Time `json:"timestamp"`
}

// History maps URL to its most recent saved position.
type History map[string]HistoryEntry

// Clone returns a copy so reducer output never aliases reducer input.
func (h History) Clone() History {
	out := make(History, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// PersistedState is the JSON layout written to storage.
type PersistedState struct {
	History History `json:"history"`
}

// PlayerState is the full observable state snapshot.
type PlayerState struct {
	URL           string                  `json:"url"`
	Playing       bool                    `json:"playing"`
	CurrentTime   float64                 `json:"current_time"`
	Duration      float64                 `json:"duration"`
	Buffered      float64                 `json:"buffered"`
	Volume        float64                 `json:"volume"`
	Muted         bool                    `json:"muted"`
	Rate          float64                 `json:"rate"`
	Status        string                  `json:"status"`
	ErrorMessage  string                  `json:"error_message,omitempty"`
	RemuxProgress float64                 `json:"remux_progress"`
	StreamInfo    *media.StreamDescriptor `json:"stream_info,omitempty"`
	MediaInfo     *media.MediaInfo        `json:"media_info,omitempty"`
	History       History                 `json:"history"`
}

// InitialState returns the zero playback state with defaults applied.
func InitialState() PlayerState {
	return PlayerState{
		Volume:  1.0,
		Rate:    1.0,
		Status:  "idle",
		History: History{},
	}
}

// Reducer applies actions to state. Pure and total: unknown action kinds
// are no-ops, never errors.
type Reducer struct {
	// SaveIntervalSeconds throttles save-position: a position in the same
	// elapsed interval as the existing entry for that URL is dropped.
	SaveIntervalSeconds float64
}

// Reduce returns the state after applying the action. The input state is
// never mutated; history is copied on write.
func (r Reducer) Reduce(s PlayerState, a Action) PlayerState {
	switch a.Kind {
	case ActionSetURL:
		// A new URL wipes per-session playback state, keeps user
		// preferences (volume/muted/rate) and history.
		s.URL = a.URL
		s.Playing = false
		s.CurrentTime = 0
		s.Duration = 0
		s.Buffered = 0
		s.Status = "idle"
		s.ErrorMessage = ""
		s.RemuxProgress = 0
		s.StreamInfo = nil
		s.MediaInfo = nil
		return s

	case ActionSetPlaying:
		s.Playing = a.Bool
		return s

	case ActionSetTime:
		s.CurrentTime = a.Float
		return s

	case ActionSetDuration:
		s.Duration = a.Float
		return s

	case ActionSetBuffered:
		s.Buffered = a.Float
		return s

	case ActionSetVolume:
		s.Volume = a.Float
		return s

	case ActionSetMuted:
		s.Muted = a.Bool
		return s

	case ActionSetRate:
		s.Rate = a.Float
		return s

	case ActionSetStreamInfo:
		s.StreamInfo = a.StreamInfo
		return s

	case ActionSetMediaInfo:
		s.MediaInfo = a.MediaInfo
		return s

	case ActionSetStatus:
		s.Status = a.Text
		return s

	case ActionSetError:
		s.Status = "error"
		s.ErrorMessage = a.Text
		s.Playing = false
		return s

	case ActionSetRemuxProgress:
		s.RemuxProgress = a.Float
		return s

	case ActionSavePosition:
		if a.URL == "" {
			return s
		}
		if existing, ok := s.History[a.URL]; ok && r.sameInterval(existing.Position, a.Float) {
			return s
		}
		history := s.History.Clone()
		history[a.URL] = HistoryEntry{Position: a.Float, Timestamp: a.At}
		s.History = history
		return s

	case ActionLoadHistory:
		if a.History == nil {
			s.History = History{}
			return s
		}
		s.History = a.History.Clone()
		return s

	case ActionReset:
		// History is process-wide state with its own lifecycle; it
		// survives resets.
		history := s.History
		s = InitialState()
		s.History = history
		return s

	default:
		return s
	}
}

// sameInterval reports whether two positions fall into the same elapsed
// save interval.
func (r Reducer) sameInterval(a, b float64) bool {
	interval := r.SaveIntervalSeconds
	if interval <= 0 {
		return false
	}
	return math.Floor(a/interval) == math.Floor(b/interval)
}
