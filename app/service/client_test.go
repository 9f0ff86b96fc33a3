package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reelforge/app/config"
	"reelforge/app/logger"
	"reelforge/app/taskerr"
)

func contentConfig(url string) *config.Config {
	cfg := &config.Config{}
	cfg.Services.Content.URL = url
	cfg.Services.Content.Model = "test-model"
	return cfg
}

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"message": map[string]any{"role": "assistant", "content": content},
			},
		},
	}
}

func TestGenerateScriptParsesJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model: got %s", req.Model)
		}
		if len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, "gophers") {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletion(`{"title":"Go Time","script":"hello gophers","hashtags":["#go"]}`))
	}))
	defer server.Close()

	client := NewContentClient(contentConfig(server.URL), logger.NewNop())
	result, err := client.GenerateScript(context.Background(), ScriptRequest{
		Topic: "gophers", Audience: "developers", Style: "educational", Duration: 60,
	})
	if err != nil {
		t.Fatalf("GenerateScript failed: %v", err)
	}
	if result.Title != "Go Time" || result.Script != "hello gophers" {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(result.Hashtags) != 1 || result.Hashtags[0] != "#go" {
		t.Errorf("hashtags: %+v", result.Hashtags)
	}
}

func TestGenerateScriptKeepsRawTextFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletion("just plain prose, no JSON"))
	}))
	defer server.Close()

	client := NewContentClient(contentConfig(server.URL), logger.NewNop())
	result, err := client.GenerateScript(context.Background(), ScriptRequest{Topic: "x", Duration: 30})
	if err != nil {
		t.Fatalf("GenerateScript failed: %v", err)
	}
	if result.Script != "just plain prose, no JSON" {
		t.Errorf("raw text not kept: %q", result.Script)
	}
}

func TestClassifyRateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewContentClient(contentConfig(server.URL), logger.NewNop())
	_, err := client.GenerateScript(context.Background(), ScriptRequest{Topic: "x"})
	if !taskerr.Retryable(err) {
		t.Fatalf("429 must be transient, got %v", err)
	}
}

func TestClassifyServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewContentClient(contentConfig(server.URL), logger.NewNop())
	_, err := client.GenerateScript(context.Background(), ScriptRequest{Topic: "x"})
	if !taskerr.Retryable(err) {
		t.Fatalf("502 must be transient, got %v", err)
	}
}

func TestClassifyClientErrorIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewContentClient(contentConfig(server.URL), logger.NewNop())
	_, err := client.GenerateScript(context.Background(), ScriptRequest{Topic: "x"})
	if err == nil || taskerr.Retryable(err) {
		t.Fatalf("400 must be fatal, got %v", err)
	}
}

func TestClassifyNetworkErrorIsTransient(t *testing.T) {
	// Nothing listens here.
	client := NewContentClient(contentConfig("http://127.0.0.1:1"), logger.NewNop())
	_, err := client.GenerateScript(context.Background(), ScriptRequest{Topic: "x"})
	if !taskerr.Retryable(err) {
		t.Fatalf("connection failure must be transient, got %v", err)
	}
}

func TestSynthesizeUsesDefaultVoice(t *testing.T) {
	var gotVoice string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/synthesize" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Text  string `json:"text"`
			Voice string `json:"voice"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotVoice = req.Voice
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SpeechResult{AudioURL: "https://cdn/audio.mp3", Duration: 12.5})
	}))
	defer server.Close()

	cfg := &config.Config{}
	cfg.Services.TTS.URL = server.URL
	cfg.Services.TTS.Voice = "alloy"

	client := NewTTSClient(cfg, logger.NewNop())
	result, err := client.Synthesize(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if gotVoice != "alloy" {
		t.Errorf("voice: got %q, want the configured default", gotVoice)
	}
	if result.AudioURL != "https://cdn/audio.mp3" || result.Duration != 12.5 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestRenderSubmitAndPoll(t *testing.T) {
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/jobs":
			json.NewEncoder(w).Encode(map[string]string{"job_id": "job-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/jobs/job-1":
			polls++
			if polls < 3 {
				json.NewEncoder(w).Encode(RenderStatus{State: "rendering", Progress: float64(polls) * 30})
			} else {
				json.NewEncoder(w).Encode(RenderStatus{State: "completed", Progress: 100, VideoURL: "https://cdn/v.mp4"})
			}
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	cfg := &config.Config{}
	cfg.Services.Render.URL = server.URL
	cfg.Services.Render.PollInterval = 0 // falls back to the 5s default, too slow for a test

	client := NewRenderClient(cfg, logger.NewNop())

	// Exercise Submit and Status directly to keep the test fast.
	ctx := context.Background()
	jobID, err := client.Submit(ctx, RenderRequest{Script: "s", AudioURL: "a"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if jobID != "job-1" {
		t.Errorf("job id: got %q", jobID)
	}

	for i := 0; i < 2; i++ {
		status, err := client.Status(ctx, jobID)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if status.State != "rendering" {
			t.Fatalf("poll %d: state %s, want rendering", i, status.State)
		}
	}
	status, err := client.Status(ctx, jobID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != "completed" || status.VideoURL != "https://cdn/v.mp4" {
		t.Errorf("final status: %+v", status)
	}
}

func TestRenderFailedJobIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(RenderStatus{State: "failed", Error: "codec exploded"})
	}))
	defer server.Close()

	cfg := &config.Config{}
	cfg.Services.Render.URL = server.URL

	client := NewRenderClient(cfg, logger.NewNop())
	status, err := client.Status(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != "failed" || status.Error != "codec exploded" {
		t.Errorf("unexpected status: %+v", status)
	}
}
