package service

import (
	"context"
	"time"

	"reelforge/app/config"
	"reelforge/app/logger"
	"reelforge/app/taskerr"

	"resty.dev/v3"
)

// RenderClient talks to the video render farm. Rendering is asynchronous on
// the service side: a job is submitted and then polled until it finishes.
// FFmpeg filter graphs, codecs and subtitles are the farm's business.
type RenderClient struct {
	config *config.Config
	logger *logger.Logger
	client *resty.Client
}

// NewRenderClient creates a new render client.
func NewRenderClient(cfg *config.Config, log *logger.Logger) *RenderClient {
	client := resty.New()
	client.SetBaseURL(cfg.Services.Render.URL)

	return &RenderClient{
		config: cfg,
		logger: log,
		client: client,
	}
}

// RenderRequest describes a render job.
type RenderRequest struct {
	Script     string `json:"script"`
	AudioURL   string `json:"audio_url"`
	Style      string `json:"style,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Ultra      bool   `json:"ultra,omitempty"` // high-quality GPU profile
}

// RenderStatus is one poll of a render job.
type RenderStatus struct {
	State    string  `json:"state"` // queued, rendering, completed, failed
	Progress float64 `json:"progress"`
	VideoURL string  `json:"video_url,omitempty"`
	Error    string  `json:"error,omitempty"`
}

type renderSubmitResponse struct {
	JobID string `json:"job_id"`
}

// Submit enqueues a render job on the farm.
func (c *RenderClient) Submit(ctx context.Context, req RenderRequest) (string, error) {
	var response renderSubmitResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&response).
		Post("/v1/jobs")
	if cerr := classify(resp, err, "render service"); cerr != nil {
		return "", cerr
	}
	if response.JobID == "" {
		return "", taskerr.Transient(nil, "render service returned no job id")
	}
	c.logger.Debugf("render job submitted: %s", response.JobID)
	return response.JobID, nil
}

// Status polls a render job.
func (c *RenderClient) Status(ctx context.Context, jobID string) (*RenderStatus, error) {
	var status RenderStatus
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&status).
		Get("/v1/jobs/" + jobID)
	if cerr := classify(resp, err, "render service"); cerr != nil {
		return nil, cerr
	}
	return &status, nil
}

// Render submits a job and polls it to completion, reporting render
// progress through onProgress. Returns the URL of the finished video.
func (c *RenderClient) Render(ctx context.Context, req RenderRequest, onProgress func(float64)) (string, error) {
	jobID, err := c.Submit(ctx, req)
	if err != nil {
		return "", err
	}

	interval := time.Duration(c.config.Services.Render.PollInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		status, err := c.Status(ctx, jobID)
		if err != nil {
			return "", err
		}

		switch status.State {
		case "completed":
			if onProgress != nil {
				onProgress(100)
			}
			return status.VideoURL, nil
		case "failed":
			return "", taskerr.Fatal(nil, "render job %s failed: %s", jobID, status.Error)
		default:
			if onProgress != nil {
				onProgress(status.Progress)
			}
		}
	}
}
