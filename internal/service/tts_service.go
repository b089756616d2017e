package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"sevenvoices/internal/model"
	"sevenvoices/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PreviewText is the canned sentence synthesized by Preview.
const PreviewText = "Hello! This is a preview of my voice. I hope you like how I sound."

const (
	MaxTextLength = 5000
	MinSpeed      = 0.5
	MaxSpeed      = 2.0
	MinPitch      = -20.0
	MaxPitch      = 20.0
)

// GenerateInput is a synthesis request as received from a client. Nil optional
// fields take their defaults.
type GenerateInput struct {
	UserID string
	Text   string   `validate:"required,max=5000"`
	Voice  string   `validate:"required"`
	Speed  *float64 `validate:"omitnil,gte=0.5,lte=2"`
	Pitch  *float64 `validate:"omitnil,gte=-20,lte=20"`
	Tone   *string
}

// GeneratedAudio is the synthesized payload plus the id of the request record
// created for it. RequestID is empty for previews.
type GeneratedAudio struct {
	*Audio
	RequestID string
}

type TTSService interface {
	Voices() []model.Voice
	Generate(ctx context.Context, in GenerateInput) (*GeneratedAudio, error)
	Preview(ctx context.Context, voiceID string) (*GeneratedAudio, error)
	History(ctx context.Context, userID string) ([]model.TTSRequest, error)
}

type ttsService struct {
	synth    Synthesizer
	history  repository.TTSRequestRepository
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewTTSService creates a TTSService. A nil synth means no provider key is
// configured and every synthesis fails with ErrNotConfigured.
func NewTTSService(synth Synthesizer, history repository.TTSRequestRepository, logger zerolog.Logger) TTSService {
	return &ttsService{
		synth:    synth,
		history:  history,
		validate: validator.New(),
		logger:   logger.With().Str("service", "TTSService").Logger(),
	}
}

func (s *ttsService) Voices() []model.Voice {
	return ListVoices()
}

func (s *ttsService) Generate(ctx context.Context, in GenerateInput) (*GeneratedAudio, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	if s.synth == nil {
		return nil, fmt.Errorf("tts provider: %w", ErrNotConfigured)
	}

	req := &model.TTSRequest{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Text:      in.Text,
		Voice:     in.Voice,
		Speed:     model.DefaultSpeed,
		Pitch:     model.DefaultPitch,
		Tone:      model.DefaultTone,
		CreatedAt: time.Now().UTC(),
	}
	if in.Speed != nil {
		req.Speed = *in.Speed
	}
	if in.Pitch != nil {
		req.Pitch = *in.Pitch
	}
	if in.Tone != nil && strings.TrimSpace(*in.Tone) != "" {
		req.Tone = *in.Tone
	}

	// The record is kept even if synthesis fails below.
	if err := s.history.Create(ctx, req); err != nil {
		s.logger.Error().Err(err).Str("user_id", in.UserID).Msg("Failed to record TTS request")
		return nil, fmt.Errorf("record tts request: %w", err)
	}

	audio, err := s.synthesize(ctx, req.Voice, SynthesisRequest{
		Text:  req.Text,
		Speed: req.Speed,
		Pitch: req.Pitch,
		Tone:  req.Tone,
	})
	if err != nil {
		return nil, err
	}
	return &GeneratedAudio{Audio: audio, RequestID: req.ID}, nil
}

func (s *ttsService) Preview(ctx context.Context, voiceID string) (*GeneratedAudio, error) {
	if strings.TrimSpace(voiceID) == "" {
		return nil, newValidationError("voice", "Voice is required")
	}
	if s.synth == nil {
		return nil, fmt.Errorf("tts provider: %w", ErrNotConfigured)
	}
	audio, err := s.synthesize(ctx, voiceID, SynthesisRequest{
		Text:  PreviewText,
		Speed: model.DefaultSpeed,
		Tone:  model.DefaultTone,
	})
	if err != nil {
		return nil, err
	}
	return &GeneratedAudio{Audio: audio}, nil
}

func (s *ttsService) History(ctx context.Context, userID string) ([]model.TTSRequest, error) {
	list, err := s.history.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list TTS history")
		return nil, fmt.Errorf("list tts history: %w", err)
	}
	if list == nil {
		list = []model.TTSRequest{}
	}
	return list, nil
}

// synthesize resolves the catalog voice and makes the single provider call.
func (s *ttsService) synthesize(ctx context.Context, catalogID string, req SynthesisRequest) (*Audio, error) {
	req.VoiceID = ResolveProviderVoiceID(s.synth.Name(), catalogID)

	audio, err := s.synth.Synthesize(ctx, req)
	if err != nil {
		var perr *ProviderError
		if !errors.As(err, &perr) {
			err = &ProviderError{Kind: ErrGeneration, Provider: s.synth.Name(), Message: err.Error()}
		}
		s.logger.Error().Err(err).
			Str("provider", s.synth.Name()).
			Str("voice_id", catalogID).
			Msg("Speech synthesis failed")
		return nil, err
	}
	s.logger.Debug().
		Str("provider", s.synth.Name()).
		Str("voice_id", catalogID).
		Int("text_length", utf8.RuneCountInString(req.Text)).
		Msg("Speech synthesized")
	return audio, nil
}

func (s *ttsService) validateInput(in GenerateInput) error {
	var fields []FieldError
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate tts request: %w", err)
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: jsonFieldName(fe.Field()), Message: generateFieldMessage(fe)})
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func jsonFieldName(structField string) string {
	return strings.ToLower(structField)
}

func generateFieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Text":
		if fe.Tag() == "max" {
			return fmt.Sprintf("Text must be at most %d characters", MaxTextLength)
		}
		return "Text is required"
	case "Voice":
		return "Voice is required"
	case "Speed":
		return fmt.Sprintf("Speed must be between %.1f and %.1f", MinSpeed, MaxSpeed)
	case "Pitch":
		return fmt.Sprintf("Pitch must be between %.0f and %.0f", MinPitch, MaxPitch)
	}
	return fe.Error()
}
