// Package service holds the HTTP clients for the external collaborators:
// script generation, speech synthesis, video rendering and social
// publishing. Every client classifies vendor failures for the retry policy:
// network errors, 429 and 5xx are transient, other 4xx are fatal.
package service

import (
	"reelforge/app/config"
	"reelforge/app/logger"
	"reelforge/app/taskerr"

	"resty.dev/v3"
)

// Clients bundles the external service clients for handler wiring.
type Clients struct {
	Content *ContentClient
	TTS     *TTSClient
	Render  *RenderClient
	Social  *SocialClient
}

// NewClients builds all clients from configuration.
func NewClients(cfg *config.Config, log *logger.Logger) *Clients {
	return &Clients{
		Content: NewContentClient(cfg, log),
		TTS:     NewTTSClient(cfg, log),
		Render:  NewRenderClient(cfg, log),
		Social:  NewSocialClient(cfg, log),
	}
}

// classify maps a response to the failure taxonomy.
func classify(resp *resty.Response, err error, op string) error {
	if err != nil {
		return taskerr.Transient(err, "%s request failed", op)
	}
	if resp.IsSuccess() {
		return nil
	}
	code := resp.StatusCode()
	if code == 429 || code >= 500 {
		return taskerr.Transient(nil, "%s returned %d", op, code)
	}
	return taskerr.Fatal(nil, "%s returned %d: %s", op, code, resp.String())
}
