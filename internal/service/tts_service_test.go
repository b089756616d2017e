package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sevenvoices/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSynth struct {
	name  string
	calls []SynthesisRequest
	err   error
}

func (f *fakeSynth) Name() string { return f.name }

func (f *fakeSynth) Synthesize(_ context.Context, req SynthesisRequest) (*Audio, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &Audio{Body: io.NopCloser(strings.NewReader("ID3audio")), ContentType: "audio/mpeg", ContentLength: 8}, nil
}

func floatPtr(f float64) *float64 { return &f }

func TestGenerateResolvesVoiceAndCallsProviderOnce(t *testing.T) {
	synth := &fakeSynth{name: ProviderElevenLabs}
	store := repository.NewMemoryStore()
	svc := NewTTSService(synth, store.TTSRequests(), zerolog.Nop())

	out, err := svc.Generate(context.Background(), GenerateInput{
		UserID: "u1",
		Text:   "Hello world",
		Voice:  "Rachel - Professional Female",
		Speed:  floatPtr(1.0),
	})
	require.NoError(t, err)
	defer out.Body.Close()

	require.Len(t, synth.calls, 1)
	assert.Equal(t, "21m00Tcm4TlvDq8ikWAM", synth.calls[0].VoiceID)
	assert.Equal(t, "Hello world", synth.calls[0].Text)
	assert.Equal(t, "neutral", synth.calls[0].Tone)
	assert.NotEmpty(t, out.RequestID)

	body, _ := io.ReadAll(out.Body)
	assert.Equal(t, "ID3audio", string(body))

	history, err := svc.History(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, out.RequestID, history[0].ID)
	assert.Equal(t, 1.0, history[0].Speed)
}

func TestGenerateValidationFailsBeforeProviderCall(t *testing.T) {
	tests := []struct {
		name  string
		in    GenerateInput
		field string
	}{
		{"empty text", GenerateInput{Text: "", Voice: "Rachel - Professional Female"}, "text"},
		{"text too long", GenerateInput{Text: strings.Repeat("a", MaxTextLength+1), Voice: "Rachel - Professional Female"}, "text"},
		{"missing voice", GenerateInput{Text: "hi"}, "voice"},
		{"speed too slow", GenerateInput{Text: "hi", Voice: "x", Speed: floatPtr(0.1)}, "speed"},
		{"zero speed", GenerateInput{Text: "hi", Voice: "x", Speed: floatPtr(0)}, "speed"},
		{"pitch too high", GenerateInput{Text: "hi", Voice: "x", Pitch: floatPtr(21)}, "pitch"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			synth := &fakeSynth{name: ProviderElevenLabs}
			svc := NewTTSService(synth, repository.NewDiscardTTSRequestRepo(), zerolog.Nop())

			_, err := svc.Generate(context.Background(), tc.in)

			require.ErrorIs(t, err, ErrValidation)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.field, ve.Fields[0].Field)
			assert.Empty(t, synth.calls)
		})
	}
}

func TestGenerateAcceptsMaxLengthText(t *testing.T) {
	synth := &fakeSynth{name: ProviderElevenLabs}
	svc := NewTTSService(synth, repository.NewDiscardTTSRequestRepo(), zerolog.Nop())

	out, err := svc.Generate(context.Background(), GenerateInput{Text: strings.Repeat("é", MaxTextLength), Voice: "Unknown voice"})
	require.NoError(t, err)
	out.Body.Close()

	require.Len(t, synth.calls, 1)
	assert.Equal(t, DefaultElevenLabsVoiceID, synth.calls[0].VoiceID)
}

func TestGenerateKeepsRecordWhenProviderFails(t *testing.T) {
	synth := &fakeSynth{name: ProviderElevenLabs, err: newProviderError(ProviderElevenLabs, 429, "quota exceeded")}
	store := repository.NewMemoryStore()
	svc := NewTTSService(synth, store.TTSRequests(), zerolog.Nop())

	_, err := svc.Generate(context.Background(), GenerateInput{UserID: "u1", Text: "hi", Voice: "Josh - Deep Male"})
	require.ErrorIs(t, err, ErrProviderUnavailable)

	history, _ := svc.History(context.Background(), "u1")
	assert.Len(t, history, 1)
}

func TestGenerateWrapsUnknownProviderErrors(t *testing.T) {
	synth := &fakeSynth{name: ProviderOpenAI, err: errors.New("connection reset")}
	svc := NewTTSService(synth, repository.NewDiscardTTSRequestRepo(), zerolog.Nop())

	_, err := svc.Generate(context.Background(), GenerateInput{Text: "hi", Voice: "Josh - Deep Male"})
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestGenerateWithoutProviderIsNotConfigured(t *testing.T) {
	svc := NewTTSService(nil, repository.NewDiscardTTSRequestRepo(), zerolog.Nop())

	_, err := svc.Generate(context.Background(), GenerateInput{Text: "hi", Voice: "Josh - Deep Male"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.Preview(context.Background(), "Josh - Deep Male")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPreviewUsesCannedTextAndRecordsNothing(t *testing.T) {
	synth := &fakeSynth{name: ProviderOpenAI}
	store := repository.NewMemoryStore()
	svc := NewTTSService(synth, store.TTSRequests(), zerolog.Nop())

	out, err := svc.Preview(context.Background(), "Bella - Young Female")
	require.NoError(t, err)
	out.Body.Close()

	require.Len(t, synth.calls, 1)
	assert.Equal(t, PreviewText, synth.calls[0].Text)
	assert.Equal(t, "shimmer", synth.calls[0].VoiceID)
	assert.Empty(t, out.RequestID)

	history, _ := svc.History(context.Background(), "")
	assert.Empty(t, history)

	_, err = svc.Preview(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestElevenLabsSynthesizerRequest(t *testing.T) {
	var got elevenLabsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/text-to-speech/21m00Tcm4TlvDq8ikWAM", r.URL.Path)
		assert.Equal(t, "xi-key", r.Header.Get("xi-api-key"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	synth := NewElevenLabsSynthesizer("xi-key", srv.URL, "", 5*time.Second)
	audio, err := synth.Synthesize(context.Background(), SynthesisRequest{Text: "Hello world", VoiceID: "21m00Tcm4TlvDq8ikWAM"})
	require.NoError(t, err)
	defer audio.Body.Close()

	body, _ := io.ReadAll(audio.Body)
	assert.Equal(t, "mp3-bytes", string(body))
	assert.Equal(t, "audio/mpeg", audio.ContentType)
	assert.Equal(t, "Hello world", got.Text)
	assert.Equal(t, "eleven_monolingual_v1", got.ModelID)
	assert.Equal(t, 0.5, got.VoiceSettings.Stability)
	assert.Equal(t, 0.75, got.VoiceSettings.SimilarityBoost)
	assert.True(t, got.VoiceSettings.UseSpeakerBoost)
}

func TestElevenLabsSynthesizerErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   error
	}{
		{http.StatusUnauthorized, ErrProviderUnavailable},
		{http.StatusPaymentRequired, ErrProviderUnavailable},
		{http.StatusTooManyRequests, ErrProviderUnavailable},
		{http.StatusBadGateway, ErrProviderUnavailable},
		{http.StatusBadRequest, ErrGeneration},
		{http.StatusUnprocessableEntity, ErrGeneration},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"detail":{"status":"quota_exceeded","message":"You exceeded your quota"}}`))
			}))
			defer srv.Close()

			_, err := NewElevenLabsSynthesizer("k", srv.URL, "", time.Second).
				Synthesize(context.Background(), SynthesisRequest{Text: "hi", VoiceID: "v"})

			require.ErrorIs(t, err, tc.kind)
			var perr *ProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tc.status, perr.StatusCode)
			assert.Equal(t, "You exceeded your quota", perr.Message)
		})
	}
}

func TestElevenLabsSynthesizerTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewElevenLabsSynthesizer("k", srv.URL, "", time.Second).
		Synthesize(context.Background(), SynthesisRequest{Text: "hi", VoiceID: "v"})
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestOpenAISynthesizerRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("openai-mp3"))
	}))
	defer srv.Close()

	synth := NewOpenAISynthesizer("sk-test", srv.URL+"/v1/", "gpt-4o-mini-tts", 5*time.Second)
	audio, err := synth.Synthesize(context.Background(), SynthesisRequest{Text: "Hello", VoiceID: "nova", Speed: 1.5, Tone: "cheerful"})
	require.NoError(t, err)
	defer audio.Body.Close()

	body, _ := io.ReadAll(audio.Body)
	assert.Equal(t, "openai-mp3", string(body))
	assert.Equal(t, "Hello", got["input"])
	assert.Equal(t, "nova", got["voice"])
	assert.Equal(t, "mp3", got["response_format"])
	assert.Equal(t, 1.5, got["speed"])
	assert.Contains(t, got["instructions"], "cheerful")
}

func TestOpenAISynthesizerQuotaIsUnavailable(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota","param":null}}`))
	}))
	defer srv.Close()

	synth := NewOpenAISynthesizer("sk-test", srv.URL+"/v1/", "", time.Second)
	_, err := synth.Synthesize(context.Background(), SynthesisRequest{Text: "Hello", VoiceID: "alloy"})

	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 1, calls)
}

func TestVoiceCatalog(t *testing.T) {
	voices := ListVoices()
	require.Len(t, voices, 10)
	assert.Equal(t, "Rachel - Professional Female", voices[0].ID)

	voices[0].Name = "mutated"
	assert.Equal(t, "Rachel", ListVoices()[0].Name)

	assert.Equal(t, "21m00Tcm4TlvDq8ikWAM", ResolveProviderVoiceID(ProviderElevenLabs, "Rachel - Professional Female"))
	assert.Equal(t, "pNInz6obpgDQGcFmaJgB", ResolveProviderVoiceID(ProviderElevenLabs, "Adam - Narration Male"))
	assert.Equal(t, DefaultElevenLabsVoiceID, ResolveProviderVoiceID(ProviderElevenLabs, "nobody"))
	assert.Equal(t, DefaultOpenAIVoice, ResolveProviderVoiceID(ProviderOpenAI, "nobody"))
	assert.Equal(t, "nova", ResolveProviderVoiceID(ProviderOpenAI, "Rachel - Professional Female"))
}
