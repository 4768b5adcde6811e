package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/playsink/playsink/internal/classifier"
	"github.com/playsink/playsink/internal/media"
	"github.com/playsink/playsink/internal/remux"
)

// Prober is the probing slice of the remux pipeline.
type Prober interface {
	Probe(ctx context.Context, url string, hint media.StreamKind) (*media.MediaInfo, error)
}

// ProbeHandler classifies and inspects a URL without starting playback.
type ProbeHandler struct {
	prober Prober
	logger *slog.Logger
}

// NewProbeHandler creates a probe handler.
func NewProbeHandler(prober Prober, logger *slog.Logger) *ProbeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProbeHandler{prober: prober, logger: logger}
}

// ProbeRequest names the URL to inspect.
type ProbeRequest struct {
	Body struct {
		URL string `json:"url" minLength:"1" doc:"Stream URL to inspect"`
	}
}

// ProbeOutput carries classification and the probed media snapshot.
type ProbeOutput struct {
	Body struct {
		Kind     string           `json:"kind"`
		Category string           `json:"category"`
		Media    *media.MediaInfo `json:"media,omitempty"`
	}
}

// Register registers the probe route.
func (h *ProbeHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "probeStream",
		Method:      "POST",
		Path:        "/api/v1/probe",
		Summary:     "Probe a stream",
		Description: "Classifies the URL and extracts a descriptive media snapshot from a bounded prefix of the source.",
		Tags:        []string{"Playback"},
	}, h.Probe)
}

// Probe classifies and inspects the URL. A probe failure degrades to
// classification-only output for adaptive manifests, which the executor
// cannot inspect from a byte prefix anyway.
func (h *ProbeHandler) Probe(ctx context.Context, input *ProbeRequest) (*ProbeOutput, error) {
	desc := classifier.Classify(input.Body.URL)

	out := &ProbeOutput{}
	out.Body.Kind = desc.Kind.String()
	out.Body.Category = desc.Category.String()

	if h.prober == nil || desc.Category == media.CategoryLive {
		return out, nil
	}

	info, err := h.prober.Probe(ctx, input.Body.URL, desc.Kind)
	if err != nil {
		if errors.Is(err, remux.ErrFetch) {
			return nil, huma.Error502BadGateway("fetching source failed", err)
		}
		h.logger.Warn("probe failed", slog.String("error", err.Error()))
		return out, nil
	}
	out.Body.Media = info
	return out, nil
}
