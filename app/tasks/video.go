package tasks

import (
	"context"
	"encoding/json"

	"reelforge/app/logger"
	"reelforge/app/model"
	"reelforge/app/progress"
	"reelforge/app/service"
	"reelforge/app/taskerr"
)

// VideoPayload is the input of a render task. Script and narration may come
// directly or from the preceding tts stage's result.
type VideoPayload struct {
	Script     string `json:"script"`
	AudioURL   string `json:"audio_url"`
	Style      string `json:"style"`
	Resolution string `json:"resolution"`
	Input      struct {
		Script   string `json:"script"`
		AudioURL string `json:"audio_url"`
	} `json:"input"`
}

func (p VideoPayload) script() string {
	if p.Script != "" {
		return p.Script
	}
	return p.Input.Script
}

func (p VideoPayload) audioURL() string {
	if p.AudioURL != "" {
		return p.AudioURL
	}
	return p.Input.AudioURL
}

// VideoResult points at the rendered video.
type VideoResult struct {
	VideoURL string `json:"video_url"`
}

// VideoHandler drives a render job to completion. The same handler serves
// the standard video kind and the ultra kind; the latter runs on the gpu
// queue with the high-quality render profile.
type VideoHandler struct {
	kind   model.TaskKind
	client *service.RenderClient
	logger *logger.Logger
}

// NewVideoHandler creates a render handler for one kind.
func NewVideoHandler(kind model.TaskKind, client *service.RenderClient, log *logger.Logger) *VideoHandler {
	return &VideoHandler{kind: kind, client: client, logger: log}
}

func (h *VideoHandler) Kind() model.TaskKind {
	return h.kind
}

func (h *VideoHandler) Validate(payload json.RawMessage) error {
	var p VideoPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return taskerr.Validation("video payload is not valid JSON: %v", err)
	}
	if p.script() == "" {
		return taskerr.Validation("video payload needs a script")
	}
	if p.audioURL() == "" {
		return taskerr.Validation("video payload needs narration audio")
	}
	return nil
}

func (h *VideoHandler) Execute(ctx context.Context, payload json.RawMessage, sink progress.Sink) (json.RawMessage, error) {
	var p VideoPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, taskerr.Validation("video payload is not valid JSON: %v", err)
	}
	script, audioURL := p.script(), p.audioURL()
	if script == "" || audioURL == "" {
		return nil, taskerr.Validation("video payload needs a script and narration audio")
	}

	sink.Publish(5, "submitting_render", nil)

	// Render progress 0-100 is mapped into the 10-95 band; the tail is the
	// result write-back.
	videoURL, err := h.client.Render(ctx, service.RenderRequest{
		Script:     script,
		AudioURL:   audioURL,
		Style:      p.Style,
		Resolution: p.Resolution,
		Ultra:      h.kind == model.TaskKindRenderUltra,
	}, func(renderProgress float64) {
		sink.Publish(10+renderProgress*0.85, "rendering", nil)
	})
	if err != nil {
		return nil, err
	}

	sink.Publish(95, "saving_video", nil)
	return json.Marshal(VideoResult{VideoURL: videoURL})
}
