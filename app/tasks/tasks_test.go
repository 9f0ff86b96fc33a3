package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"reelforge/app/config"
	"reelforge/app/logger"
	"reelforge/app/model"
	"reelforge/app/service"
	"reelforge/app/taskerr"
)

// nopSink swallows progress updates.
type nopSink struct{}

func (nopSink) Publish(progress float64, status string, details map[string]interface{}) {}

// captureSink records published progress values.
type captureSink struct {
	values []float64
}

func (s *captureSink) Publish(progress float64, status string, details map[string]interface{}) {
	s.values = append(s.values, progress)
}

func TestContentValidate(t *testing.T) {
	h := NewContentHandler(nil, logger.NewNop())

	cases := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"topic":"go","duration":60}`, false},
		{"missing topic", `{"duration":60}`, true},
		{"duration too long", `{"topic":"go","duration":601}`, true},
		{"negative duration", `{"topic":"go","duration":-1}`, true},
		{"not json", `nope`, true},
	}
	for _, tc := range cases {
		err := h.Validate(json.RawMessage(tc.payload))
		if tc.wantErr && !taskerr.IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
	}
}

func TestTTSValidateAcceptsChainInput(t *testing.T) {
	h := NewTTSHandler(nil, logger.NewNop())

	if err := h.Validate(json.RawMessage(`{"text":"hello"}`)); err != nil {
		t.Errorf("direct text rejected: %v", err)
	}
	if err := h.Validate(json.RawMessage(`{"input":{"script":"hello"}}`)); err != nil {
		t.Errorf("chained script rejected: %v", err)
	}
	if err := h.Validate(json.RawMessage(`{}`)); !taskerr.IsValidation(err) {
		t.Errorf("empty payload accepted: %v", err)
	}
}

func TestVideoValidateFallsBackToInput(t *testing.T) {
	h := NewVideoHandler(model.TaskKindVideo, nil, logger.NewNop())

	if err := h.Validate(json.RawMessage(`{"script":"s","audio_url":"a.mp3"}`)); err != nil {
		t.Errorf("direct fields rejected: %v", err)
	}
	if err := h.Validate(json.RawMessage(`{"input":{"script":"s","audio_url":"a.mp3"}}`)); err != nil {
		t.Errorf("chained fields rejected: %v", err)
	}
	if err := h.Validate(json.RawMessage(`{"script":"s"}`)); !taskerr.IsValidation(err) {
		t.Errorf("missing audio accepted: %v", err)
	}
}

func TestPublishValidatePlatforms(t *testing.T) {
	h := NewPublishHandler(nil, logger.NewNop())

	for _, platform := range []string{"youtube", "instagram", "tiktok"} {
		payload := json.RawMessage(`{"platform":"` + platform + `","video_url":"v.mp4"}`)
		if err := h.Validate(payload); err != nil {
			t.Errorf("platform %s rejected: %v", platform, err)
		}
	}
	if err := h.Validate(json.RawMessage(`{"platform":"myspace","video_url":"v.mp4"}`)); !taskerr.IsValidation(err) {
		t.Errorf("unsupported platform accepted: %v", err)
	}
	if err := h.Validate(json.RawMessage(`{"platform":"youtube"}`)); !taskerr.IsValidation(err) {
		t.Errorf("missing video url accepted: %v", err)
	}
}

func TestMaintenanceValidate(t *testing.T) {
	h := NewMaintenanceHandler(nil, logger.NewNop())

	if err := h.Validate(json.RawMessage(`{}`)); err != nil {
		t.Errorf("default job rejected: %v", err)
	}
	if err := h.Validate(json.RawMessage(`{"job":"cleanup_expired"}`)); err != nil {
		t.Errorf("cleanup job rejected: %v", err)
	}
	if err := h.Validate(json.RawMessage(`{"job":"defrag"}`)); !taskerr.IsValidation(err) {
		t.Errorf("unknown job accepted: %v", err)
	}
}

func TestTTSExecuteCarriesScriptForward(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(service.SpeechResult{AudioURL: "https://cdn/a.mp3", Duration: 9})
	}))
	defer server.Close()

	cfg := &config.Config{}
	cfg.Services.TTS.URL = server.URL
	cfg.Services.TTS.Voice = "alloy"
	h := NewTTSHandler(service.NewTTSClient(cfg, logger.NewNop()), logger.NewNop())

	raw, err := h.Execute(context.Background(), json.RawMessage(`{"input":{"script":"hello world"}}`), nopSink{})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	var result TTSResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if result.AudioURL != "https://cdn/a.mp3" {
		t.Errorf("audio url: %q", result.AudioURL)
	}
	// The script rides along so the video stage gets both.
	if result.Script != "hello world" {
		t.Errorf("script not carried forward: %q", result.Script)
	}
}

func TestVideoExecuteMapsRenderProgress(t *testing.T) {
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost:
			var req service.RenderRequest
			json.NewDecoder(r.Body).Decode(&req)
			if !req.Ultra {
				t.Error("ultra flag not set for the render_ultra kind")
			}
			json.NewEncoder(w).Encode(map[string]string{"job_id": "j1"})
		default:
			polls++
			if polls == 1 {
				json.NewEncoder(w).Encode(service.RenderStatus{State: "rendering", Progress: 40})
			} else {
				json.NewEncoder(w).Encode(service.RenderStatus{State: "completed", VideoURL: "https://cdn/v.mp4"})
			}
		}
	}))
	defer server.Close()

	cfg := &config.Config{}
	cfg.Services.Render.URL = server.URL
	cfg.Services.Render.PollInterval = 1
	h := NewVideoHandler(model.TaskKindRenderUltra, service.NewRenderClient(cfg, logger.NewNop()), logger.NewNop())

	sink := &captureSink{}
	raw, err := h.Execute(context.Background(), json.RawMessage(`{"script":"s","audio_url":"a.mp3"}`), sink)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	var result VideoResult
	json.Unmarshal(raw, &result)
	if result.VideoURL != "https://cdn/v.mp4" {
		t.Errorf("video url: %q", result.VideoURL)
	}

	// Render progress 40 lands at 10 + 40*0.85 = 44 in the task's band.
	found := false
	for _, v := range sink.values {
		if v == 44 {
			found = true
		}
	}
	if !found {
		t.Errorf("render progress not mapped into the task band: %v", sink.values)
	}
}

func TestMaintenanceExecuteRunsCleaner(t *testing.T) {
	ran := false
	h := NewMaintenanceHandler(cleanerFunc(func() error {
		ran = true
		return nil
	}), logger.NewNop())

	if _, err := h.Execute(context.Background(), json.RawMessage(`{}`), nopSink{}); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !ran {
		t.Error("cleaner never ran")
	}

	h = NewMaintenanceHandler(cleanerFunc(func() error {
		return errors.New("db locked")
	}), logger.NewNop())
	_, err := h.Execute(context.Background(), json.RawMessage(`{}`), nopSink{})
	if !taskerr.Retryable(err) {
		t.Errorf("cleanup failure must be transient, got %v", err)
	}
}

type cleanerFunc func() error

func (f cleanerFunc) CleanupExpired() error { return f() }
