package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/midistudio/api/internal/config"
)

// MelodyGenerator defines the interface for note-sequence generation.
type MelodyGenerator interface {
	GenerateMIDI(ctx context.Context, req *MelodyRequest) ([]byte, error)
}

// MelodyClient implements MelodyGenerator against the melody service. The
// service answers a generation request with a URL to the produced MIDI
// file, which is then downloaded in a second step.
type MelodyClient struct {
	httpClient *http.Client
	baseURL    string
}

// MelodyRequest is the generation request sent to the melody service.
type MelodyRequest struct {
	TextInput          string `json:"text_input"`
	Tempo              int    `json:"tempo"`
	Structure          string `json:"structure,omitempty"`
	MaxDurationSeconds int    `json:"max_duration_seconds,omitempty"`
}

// melodyResponse is the service's JSON answer.
type melodyResponse struct {
	MIDIURL string `json:"midi_url"`
}

// NewMelodyClient creates a new melody service client
func NewMelodyClient(cfg *config.MelodyConfig) *MelodyClient {
	return &MelodyClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

// GenerateMIDI requests a note sequence and returns the raw MIDI bytes.
func (c *MelodyClient) GenerateMIDI(ctx context.Context, req *MelodyRequest) ([]byte, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	log.Printf("[Melody] → POST %s/generate", c.baseURL)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Service: "melody", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result melodyResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if result.MIDIURL == "" {
		return nil, fmt.Errorf("melody service did not return a MIDI URL")
	}

	log.Printf("[Melody] ← fetching MIDI from %s", result.MIDIURL)
	return c.download(ctx, result.MIDIURL)
}

// download fetches the generated MIDI file from the URL the service handed
// back.
func (c *MelodyClient) download(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to download MIDI: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Service: "melody", StatusCode: resp.StatusCode, Body: string(data)}
	}

	return data, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *MelodyClient) IsConfigured() bool {
	return c != nil && c.baseURL != ""
}
