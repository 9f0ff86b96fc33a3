package service

import (
	"context"

	"reelforge/app/config"
	"reelforge/app/logger"

	"resty.dev/v3"
)

// TTSClient talks to the speech synthesis service.
type TTSClient struct {
	config *config.Config
	logger *logger.Logger
	client *resty.Client
}

// NewTTSClient creates a new speech synthesis client.
func NewTTSClient(cfg *config.Config, log *logger.Logger) *TTSClient {
	client := resty.New()
	client.SetBaseURL(cfg.Services.TTS.URL)
	client.SetAuthToken(cfg.Services.TTS.APIKey)

	return &TTSClient{
		config: cfg,
		logger: log,
		client: client,
	}
}

// SpeechResult points at the synthesized narration.
type SpeechResult struct {
	AudioURL string  `json:"audio_url"`
	Duration float64 `json:"duration"` // seconds
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// Synthesize turns a script into narration audio. The service stores the
// audio and returns its URL. An empty voice falls back to the configured
// default.
func (c *TTSClient) Synthesize(ctx context.Context, text, voice string) (*SpeechResult, error) {
	if voice == "" {
		voice = c.config.Services.TTS.Voice
	}

	var result SpeechResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(synthesizeRequest{Text: text, Voice: voice}).
		SetResult(&result).
		Post("/v1/synthesize")
	if cerr := classify(resp, err, "tts service"); cerr != nil {
		return nil, cerr
	}

	c.logger.Debugf("narration synthesized: voice=%s duration=%.1fs", voice, result.Duration)
	return &result, nil
}
