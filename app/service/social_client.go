package service

import (
	"context"

	"reelforge/app/config"
	"reelforge/app/logger"

	"resty.dev/v3"
)

// SocialClient talks to the publishing gateway that owns the platform
// credentials and upload flows for YouTube, Instagram and TikTok.
type SocialClient struct {
	config *config.Config
	logger *logger.Logger
	client *resty.Client
}

// NewSocialClient creates a new publishing client.
func NewSocialClient(cfg *config.Config, log *logger.Logger) *SocialClient {
	client := resty.New()
	client.SetBaseURL(cfg.Services.Social.URL)
	client.SetAuthToken(cfg.Services.Social.APIKey)

	return &SocialClient{
		config: cfg,
		logger: log,
		client: client,
	}
}

// PublishRequest describes one upload.
type PublishRequest struct {
	Platform string   `json:"platform"` // youtube, instagram, tiktok
	VideoURL string   `json:"video_url"`
	Caption  string   `json:"caption,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
}

// PublishResult identifies the published post.
type PublishResult struct {
	PostID string `json:"post_id"`
	URL    string `json:"url"`
}

// Publish uploads a finished video to a platform.
func (c *SocialClient) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	var result PublishResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/v1/publish")
	if cerr := classify(resp, err, "social service"); cerr != nil {
		return nil, cerr
	}

	c.logger.Infof("video published: platform=%s post=%s", req.Platform, result.PostID)
	return &result, nil
}
