package service

import (
	"context"
	"io"
)

const (
	ProviderElevenLabs = "elevenlabs"
	ProviderOpenAI     = "openai"
)

// SynthesisRequest is a provider-ready synthesis call. VoiceID is already
// resolved to the provider's own identifier.
type SynthesisRequest struct {
	Text    string
	VoiceID string
	Speed   float64
	Pitch   float64
	Tone    string
}

// Audio is a synthesized payload streamed from the provider. The caller must close Body.
type Audio struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64 // -1 when unknown
}

// Synthesizer issues exactly one call to a TTS provider per Synthesize.
// Failures are returned as *ProviderError.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req SynthesisRequest) (*Audio, error)
}
