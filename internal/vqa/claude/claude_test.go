package claude

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/vettriage/internal/vqa"
)

func TestLoad_RequiresKeyAndModel(t *testing.T) {
	t.Parallel()

	if _, err := New("", "claude-sonnet-4-20250514").Load(context.Background(), vqa.ModePortable); err == nil {
		t.Error("expected error for missing api key")
	}
	if _, err := New("sk-test", "").Load(context.Background(), vqa.ModePortable); err == nil {
		t.Error("expected error for missing model")
	}
}

func TestAccelerated_AlwaysFalse(t *testing.T) {
	t.Parallel()

	if New("k", "m").Accelerated(context.Background()) {
		t.Error("claude backend must report portable only")
	}
}

func TestExtractAnswer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		blocks []anthropic.ContentBlockUnion
		want   string
	}{
		{"single text", []anthropic.ContentBlockUnion{{Type: "text", Text: "Yes."}}, "Yes"},
		{"whitespace", []anthropic.ContentBlockUnion{{Type: "text", Text: "  no \n"}}, "no"},
		{"skips non-text", []anthropic.ContentBlockUnion{{Type: "thinking"}, {Type: "text", Text: "healthy"}}, "healthy"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := extractAnswer(tt.blocks); got != tt.want {
				t.Errorf("extractAnswer = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnswer_SendsImageAndQuestion(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("path = %q, want /v1/messages", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "No."}],
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 812, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	b := New("sk-test", "claude-sonnet-4-20250514", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	m, err := b.Load(context.Background(), vqa.ModePortable)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	text, score, err := m.Answer(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)), "Is the animal limping?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if text != "No" {
		t.Errorf("text = %q, want %q", text, "No")
	}
	if score != 1 {
		t.Errorf("score = %v, want 1", score)
	}

	msgs, ok := body["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Fatalf("messages = %v", body["messages"])
	}
	content := msgs[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("content blocks = %d, want 2", len(content))
	}
	if content[0].(map[string]any)["type"] != "image" {
		t.Errorf("first block type = %v, want image", content[0].(map[string]any)["type"])
	}
	if content[1].(map[string]any)["text"] != "Is the animal limping?" {
		t.Errorf("question block = %v", content[1])
	}
}

func TestAnswer_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	b := New("sk-bad", "claude-sonnet-4-20250514", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	m, err := b.Load(context.Background(), vqa.ModePortable)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, _, err := m.Answer(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)), "q?"); err == nil {
		t.Fatal("expected api error")
	}
}
