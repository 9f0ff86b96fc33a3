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

// TTSPayload is the input of a speech synthesis task. Text may come
// directly or from the preceding content stage's result.
type TTSPayload struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
	Input struct {
		Script string `json:"script"`
	} `json:"input"`
}

func (p TTSPayload) script() string {
	if p.Text != "" {
		return p.Text
	}
	return p.Input.Script
}

// TTSResult carries the narration plus the script so that the following
// video stage has both.
type TTSResult struct {
	AudioURL string  `json:"audio_url"`
	Duration float64 `json:"duration"`
	Script   string  `json:"script"`
}

// TTSHandler synthesizes narration audio.
type TTSHandler struct {
	client *service.TTSClient
	logger *logger.Logger
}

// NewTTSHandler creates the speech synthesis handler.
func NewTTSHandler(client *service.TTSClient, log *logger.Logger) *TTSHandler {
	return &TTSHandler{client: client, logger: log}
}

func (h *TTSHandler) Kind() model.TaskKind {
	return model.TaskKindTTS
}

func (h *TTSHandler) Validate(payload json.RawMessage) error {
	var p TTSPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return taskerr.Validation("tts payload is not valid JSON: %v", err)
	}
	if p.script() == "" {
		return taskerr.Validation("tts payload needs text or an input script")
	}
	return nil
}

func (h *TTSHandler) Execute(ctx context.Context, payload json.RawMessage, sink progress.Sink) (json.RawMessage, error) {
	var p TTSPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, taskerr.Validation("tts payload is not valid JSON: %v", err)
	}
	script := p.script()
	if script == "" {
		return nil, taskerr.Validation("tts payload needs text or an input script")
	}

	sink.Publish(10, "synthesizing", map[string]interface{}{"chars": len(script)})
	speech, err := h.client.Synthesize(ctx, script, p.Voice)
	if err != nil {
		return nil, err
	}

	sink.Publish(90, "saving_audio", nil)
	return json.Marshal(TTSResult{
		AudioURL: speech.AudioURL,
		Duration: speech.Duration,
		Script:   script,
	})
}
