package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type openAISynthesizer struct {
	client openai.Client
	model  string
}

// NewOpenAISynthesizer creates a Synthesizer backed by the OpenAI speech endpoint.
// SDK retries are disabled so each call is a single attempt.
func NewOpenAISynthesizer(apiKey, baseURL, model string, timeout time.Duration) Synthesizer {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = openai.SpeechModelTTS1
	}
	return &openAISynthesizer{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (s *openAISynthesizer) Name() string { return ProviderOpenAI }

func (s *openAISynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (*Audio, error) {
	params := openai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          s.model,
		Voice:          openai.AudioSpeechNewParamsVoice(req.VoiceID),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if req.Speed > 0 {
		params.Speed = openai.Float(req.Speed)
	}
	// Only the gpt-4o-mini-tts family accepts style instructions.
	if s.model == openai.SpeechModelGPT4oMiniTTS && req.Tone != "" {
		params.Instructions = openai.String("Speak in a " + req.Tone + " tone.")
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = http.StatusText(apiErr.StatusCode)
			}
			return nil, newProviderError(ProviderOpenAI, apiErr.StatusCode, msg)
		}
		return nil, &ProviderError{Kind: ErrGeneration, Provider: ProviderOpenAI, Message: err.Error()}
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
