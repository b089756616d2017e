package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io/v1"
	elevenLabsTTSEndpoint  = "/text-to-speech/"
	elevenLabsDefaultModel = "eleven_monolingual_v1"
)

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsSynthesizer struct {
	client  *http.Client
	baseURL string
	apiKey  string
	modelID string
}

// NewElevenLabsSynthesizer creates a Synthesizer backed by the ElevenLabs REST API.
// An empty baseURL or modelID selects the public defaults.
func NewElevenLabsSynthesizer(apiKey, baseURL, modelID string, timeout time.Duration) Synthesizer {
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}
	if modelID == "" {
		modelID = elevenLabsDefaultModel
	}
	return &elevenLabsSynthesizer{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		modelID: modelID,
	}
}

func (s *elevenLabsSynthesizer) Name() string { return ProviderElevenLabs }

func (s *elevenLabsSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (*Audio, error) {
	bodyJSON, err := json.Marshal(elevenLabsRequest{
		Text:    req.Text,
		ModelID: s.modelID,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Style:           0.0,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, &ProviderError{Kind: ErrGeneration, Provider: ProviderElevenLabs, Message: fmt.Sprintf("marshal request body: %v", err)}
	}

	endpoint := s.baseURL + elevenLabsTTSEndpoint + url.PathEscape(req.VoiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, &ProviderError{Kind: ErrGeneration, Provider: ProviderElevenLabs, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("xi-api-key", s.apiKey)
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Kind: ErrGeneration, Provider: ProviderElevenLabs, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		defer func() {
			_ = resp.Body.Close()
		}()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, newProviderError(ProviderElevenLabs, resp.StatusCode, elevenLabsErrorMessage(body))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &Audio{
		Body:          resp.Body,
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
	}, nil
}

// elevenLabsErrorMessage extracts detail.message from an error body, falling back to the raw text.
func elevenLabsErrorMessage(body []byte) string {
	var errorResp struct {
		Detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"detail"`
	}
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Detail.Message != "" {
		return errorResp.Detail.Message
	}
	return strings.TrimSpace(string(body))
}
