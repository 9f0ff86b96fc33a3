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

var supportedPlatforms = map[string]struct{}{
	"youtube":   {},
	"instagram": {},
	"tiktok":    {},
}

// PublishPayload is the input of a publishing task. The video may come
// directly or from the preceding render stage's result.
type PublishPayload struct {
	Platform string   `json:"platform"`
	VideoURL string   `json:"video_url"`
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags"`
	Input    struct {
		VideoURL string `json:"video_url"`
	} `json:"input"`
}

func (p PublishPayload) videoURL() string {
	if p.VideoURL != "" {
		return p.VideoURL
	}
	return p.Input.VideoURL
}

// PublishHandler uploads finished videos to social platforms.
type PublishHandler struct {
	client *service.SocialClient
	logger *logger.Logger
}

// NewPublishHandler creates the publishing handler.
func NewPublishHandler(client *service.SocialClient, log *logger.Logger) *PublishHandler {
	return &PublishHandler{client: client, logger: log}
}

func (h *PublishHandler) Kind() model.TaskKind {
	return model.TaskKindPublish
}

func (h *PublishHandler) Validate(payload json.RawMessage) error {
	var p PublishPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return taskerr.Validation("publish payload is not valid JSON: %v", err)
	}
	if _, ok := supportedPlatforms[p.Platform]; !ok {
		return taskerr.Validation("unsupported platform %q", p.Platform)
	}
	if p.videoURL() == "" {
		return taskerr.Validation("publish payload needs a video url")
	}
	return nil
}

func (h *PublishHandler) Execute(ctx context.Context, payload json.RawMessage, sink progress.Sink) (json.RawMessage, error) {
	var p PublishPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, taskerr.Validation("publish payload is not valid JSON: %v", err)
	}
	videoURL := p.videoURL()
	if videoURL == "" {
		return nil, taskerr.Validation("publish payload needs a video url")
	}

	sink.Publish(10, "uploading", map[string]interface{}{"platform": p.Platform})
	result, err := h.client.Publish(ctx, service.PublishRequest{
		Platform: p.Platform,
		VideoURL: videoURL,
		Caption:  p.Caption,
		Hashtags: p.Hashtags,
	})
	if err != nil {
		return nil, err
	}

	sink.Publish(90, "confirming", nil)
	return json.Marshal(result)
}
