// Package generate talks to an Ollama-compatible chat endpoint for two jobs:
// producing general practice exercises and analyzing user-submitted text into
// correction phrases via schema-constrained JSON output.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client communicates with the generation backend over HTTP.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// message mirrors the chat message shape of the Ollama API.
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []message       `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format,omitempty"`
}

type chatResponse struct {
	Message message `json:"message"`
}

func (c *Client) chat(ctx context.Context, msgs []message, format json.RawMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   false,
		Format:   format,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting chat completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return out.Message.Content, nil
}

const practiceSystemPrompt = "You are a friendly language tutor. " +
	"Write one short practice exercise for a learner: a topic to write two or " +
	"three sentences about, or a sentence to translate. Keep it under 60 words " +
	"and do not include any preamble."

// PracticePrompt asks the backend for a fresh general practice exercise.
func (c *Client) PracticePrompt(ctx context.Context, userID int64) (string, error) {
	text, err := c.chat(ctx, []message{
		{Role: "system", Content: practiceSystemPrompt},
		{Role: "user", Content: "Give me a practice exercise."},
	}, nil)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty generation result")
	}
	return text, nil
}

// Correction is one original -> improved phrase extracted from a submission.
type Correction struct {
	Original   string `json:"original"`
	Improved   string `json:"improved"`
	Category   string `json:"category"`
	Importance int    `json:"importance"`
}

// Analysis is the structured result of analyzing a user submission.
type Analysis struct {
	Reply       string       `json:"reply"`
	Corrections []Correction `json:"corrections"`
}

// analysisSchema constrains the model output so the response parses reliably.
var analysisSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"reply": {"type": "string", "description": "encouraging feedback for the learner, at most three sentences"},
		"corrections": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"original": {"type": "string"},
					"improved": {"type": "string"},
					"category": {"type": "string", "description": "one of: improvement, pronunciation, grammar, general"},
					"importance": {"type": "integer", "description": "1 (minor) to 5 (critical)"}
				},
				"required": ["original", "improved"]
			}
		}
	},
	"required": ["reply", "corrections"]
}`)

const analysisSystemPrompt = "You are a language tutor reviewing a learner's " +
	"writing. Point out the most useful corrections as original/improved pairs. " +
	"Skip trivia; at most five corrections. Reply in the JSON shape you are given."

// AnalyzeFeedback extracts corrections from a learner submission.
func (c *Client) AnalyzeFeedback(ctx context.Context, text string) (*Analysis, error) {
	content, err := c.chat(ctx, []message{
		{Role: "system", Content: analysisSystemPrompt},
		{Role: "user", Content: text},
	}, analysisSchema)
	if err != nil {
		return nil, err
	}

	var a Analysis
	if err := json.Unmarshal([]byte(content), &a); err != nil {
		return nil, fmt.Errorf("parsing analysis: %w", err)
	}
	return &a, nil
}
