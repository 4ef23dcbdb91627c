package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/makeasinger/samplepack/internal/config"
	"github.com/makeasinger/samplepack/internal/model"
)

// maxWAVBytes bounds a single synthesized sample read into memory.
const maxWAVBytes = 64 << 20

// AudioSynthesizer defines the interface for text-to-audio generation
type AudioSynthesizer interface {
	Generate(ctx context.Context, req *GenerateAudioRequest) (*model.Waveform, error)
	HealthCheck(ctx context.Context) error
}

// SynthClient implements AudioSynthesizer for the text-to-audio model microservice
type SynthClient struct {
	httpClient *http.Client
	baseURL    string
}

// GenerateAudioRequest represents the request for one audio sample
type GenerateAudioRequest struct {
	Prompt     string `json:"prompt"`
	Steps      int    `json:"steps"`
	Duration   int    `json:"duration"`
	SampleRate int    `json:"sample_rate"`
}

// NewSynthClient creates a new synthesis service client
func NewSynthClient(cfg *config.SynthConfig) *SynthClient {
	return &SynthClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: strings.TrimRight(cfg.ServiceURL, "/"),
	}
}

// Generate asks the service for one sample and decodes the WAV it returns
func (c *SynthClient) Generate(ctx context.Context, genReq *GenerateAudioRequest) (*model.Waveform, error) {
	bodyBytes, err := json.Marshal(genReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxWAVBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("synthesis service error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if len(respBody) > maxWAVBytes {
		return nil, fmt.Errorf("synthesis service response exceeds %d bytes", maxWAVBytes)
	}

	return DecodeWAV(respBody)
}

// HealthCheck checks if the synthesis service is available
func (c *SynthClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("synthesis service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}
