package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/midistudio/api/internal/config"
	"github.com/midistudio/api/internal/model"
)

// ComposerClient turns a set of musical parameters into a textual musical
// sketch via an OpenAI-compatible chat completion API. The sketch is fed to
// the melody service as its text input.
type ComposerClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// ChatMessage represents a message in the chat completion request
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest represents the request body for chat completion
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatCompletionResponse represents the response from chat completion
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

const composerSystemPrompt = "You are a music composition assistant. " +
	"Given musical parameters, describe a short musical composition as a " +
	"compact note-by-note sketch the downstream MIDI generator can consume. " +
	"Respond with the sketch only, no commentary."

// NewComposerClient creates a new composer client
func NewComposerClient(cfg *config.ComposerConfig) *ComposerClient {
	return &ComposerClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// ComposeSketch requests a musical sketch for the given parameters.
func (c *ComposerClient) ComposeSketch(ctx context.Context, req *model.GenerationRequest) (string, error) {
	userPrompt := ComposePrompt(req)

	reqBody := ChatCompletionRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: composerSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.7,
		MaxTokens:   1024,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{Service: "composer", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ComposerClient) IsConfigured() bool {
	return c != nil && c.apiKey != ""
}

// ComposePrompt renders the parameter prompt sent to the composer model.
// The same text doubles as the fallback sketch when no composer is
// configured.
func ComposePrompt(req *model.GenerationRequest) string {
	return fmt.Sprintf(
		"Given the following musical parameters: Key: %s, Scale: %s, Tempo: %d BPM, Mood: %s, Genre: %s, Phrase Type: %s, Voice Type: %s, Octave Range: %s, MIDI Length: %s, Beat: %s, generate a corresponding musical composition.",
		req.Key, req.Scale, req.Tempo, req.Mood, req.Genre,
		req.PhraseType, req.VoiceType, req.OctaveRange, req.MIDILength, req.Beat,
	)
}
