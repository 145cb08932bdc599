package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func chatServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Stream {
			t.Errorf("streaming must be disabled")
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Message: message{Role: "assistant", Content: content}})
	}))
}

func TestPracticePrompt(t *testing.T) {
	srv := chatServer(t, "  Describe your favorite meal in three sentences.  ", http.StatusOK)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test"})
	got, err := c.PracticePrompt(context.Background(), 1)
	if err != nil {
		t.Fatalf("PracticePrompt: %v", err)
	}
	if got != "Describe your favorite meal in three sentences." {
		t.Fatalf("unexpected prompt: %q", got)
	}
}

func TestPracticePromptEmptyResult(t *testing.T) {
	srv := chatServer(t, "   ", http.StatusOK)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test"})
	if _, err := c.PracticePrompt(context.Background(), 1); err == nil {
		t.Fatalf("expected error for empty generation")
	}
}

func TestPracticePromptServerError(t *testing.T) {
	srv := chatServer(t, "", http.StatusBadGateway)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test"})
	if _, err := c.PracticePrompt(context.Background(), 1); err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestAnalyzeFeedback(t *testing.T) {
	analysis := `{"reply": "Nice work!", "corrections": [{"original": "i goed", "improved": "I went", "category": "grammar", "importance": 4}]}`
	srv := chatServer(t, analysis, http.StatusOK)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test"})
	got, err := c.AnalyzeFeedback(context.Background(), "i goed to the store")
	if err != nil {
		t.Fatalf("AnalyzeFeedback: %v", err)
	}
	if got.Reply != "Nice work!" {
		t.Fatalf("unexpected reply: %q", got.Reply)
	}
	if len(got.Corrections) != 1 || got.Corrections[0].Improved != "I went" {
		t.Fatalf("unexpected corrections: %+v", got.Corrections)
	}
}

func TestAnalyzeFeedbackMalformedContent(t *testing.T) {
	srv := chatServer(t, "sorry, plain prose instead of JSON", http.StatusOK)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test"})
	if _, err := c.AnalyzeFeedback(context.Background(), "text"); err == nil {
		t.Fatalf("expected parse error for non-JSON content")
	}
}
