package service

import (
	"context"
	"encoding/json"
	"fmt"

	"reelforge/app/config"
	"reelforge/app/logger"
	"reelforge/app/taskerr"

	"resty.dev/v3"
)

// ContentClient talks to an OpenAI-compatible chat completion service to
// generate reel scripts.
type ContentClient struct {
	config *config.Config
	logger *logger.Logger
	client *resty.Client
}

// NewContentClient creates a new content generation client.
func NewContentClient(cfg *config.Config, log *logger.Logger) *ContentClient {
	client := resty.New()
	client.SetBaseURL(cfg.Services.Content.URL)
	client.SetAuthToken(cfg.Services.Content.APIKey)

	return &ContentClient{
		config: cfg,
		logger: log,
		client: client,
	}
}

// ScriptRequest describes the reel to write a script for.
type ScriptRequest struct {
	Topic    string `json:"topic"`
	Audience string `json:"audience"`
	Style    string `json:"style"`
	Duration int    `json:"duration"` // seconds
}

// ScriptResult is the generated script.
type ScriptResult struct {
	Title    string   `json:"title"`
	Script   string   `json:"script"`
	Hashtags []string `json:"hashtags,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const scriptSystemPrompt = "You write scripts for short vertical videos. " +
	"Respond with a JSON object holding title, script and hashtags."

// GenerateScript asks the model for a script.
func (c *ContentClient) GenerateScript(ctx context.Context, req ScriptRequest) (*ScriptResult, error) {
	prompt := fmt.Sprintf("Write a %d second %s reel script about %q for %s.",
		req.Duration, req.Style, req.Topic, req.Audience)

	var response chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: c.config.Services.Content.Model,
			Messages: []chatMessage{
				{Role: "system", Content: scriptSystemPrompt},
				{Role: "user", Content: prompt},
			},
			ResponseFormat: map[string]string{"type": "json_object"},
		}).
		SetResult(&response).
		Post("/v1/chat/completions")
	if cerr := classify(resp, err, "content service"); cerr != nil {
		return nil, cerr
	}

	if len(response.Choices) == 0 {
		return nil, taskerr.Transient(nil, "content service returned no choices")
	}

	content := response.Choices[0].Message.Content
	var result ScriptResult
	if err := json.Unmarshal([]byte(content), &result); err != nil || result.Script == "" {
		// The model did not honor the JSON format, keep the raw text
		result = ScriptResult{Script: content}
	}

	c.logger.Debugf("script generated for topic %q (%d chars)", req.Topic, len(result.Script))
	return &result, nil
}
