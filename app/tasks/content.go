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

// ContentPayload is the input of a content generation task.
type ContentPayload struct {
	Topic    string `json:"topic"`
	Audience string `json:"audience"`
	Style    string `json:"style"`
	Duration int    `json:"duration"` // seconds
}

// ContentHandler generates reel scripts.
type ContentHandler struct {
	client *service.ContentClient
	logger *logger.Logger
}

// NewContentHandler creates the content generation handler.
func NewContentHandler(client *service.ContentClient, log *logger.Logger) *ContentHandler {
	return &ContentHandler{client: client, logger: log}
}

func (h *ContentHandler) Kind() model.TaskKind {
	return model.TaskKindContent
}

func (h *ContentHandler) Validate(payload json.RawMessage) error {
	var p ContentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return taskerr.Validation("content payload is not valid JSON: %v", err)
	}
	if p.Topic == "" {
		return taskerr.Validation("content payload needs a topic")
	}
	if p.Duration < 0 || p.Duration > 600 {
		return taskerr.Validation("duration must be between 0 and 600 seconds")
	}
	return nil
}

func (h *ContentHandler) Execute(ctx context.Context, payload json.RawMessage, sink progress.Sink) (json.RawMessage, error) {
	var p ContentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, taskerr.Validation("content payload is not valid JSON: %v", err)
	}
	if p.Style == "" {
		p.Style = "educational"
	}
	if p.Duration == 0 {
		p.Duration = 60
	}

	sink.Publish(5, "initializing", nil)

	sink.Publish(20, "generating_script", map[string]interface{}{"topic": p.Topic})
	script, err := h.client.GenerateScript(ctx, service.ScriptRequest{
		Topic:    p.Topic,
		Audience: p.Audience,
		Style:    p.Style,
		Duration: p.Duration,
	})
	if err != nil {
		return nil, err
	}

	sink.Publish(90, "formatting", nil)
	return json.Marshal(script)
}
