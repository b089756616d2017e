package dto

import "time"

// GenerateSpeechRequest is the body of POST /api/tts/generate
type GenerateSpeechRequest struct {
	Text  string   `json:"text"`
	Voice string   `json:"voice"`
	Speed *float64 `json:"speed,omitempty"`
	Pitch *float64 `json:"pitch,omitempty"`
	Tone  *string  `json:"tone,omitempty"`
}

// PreviewVoiceRequest is the body of POST /api/tts/preview
type PreviewVoiceRequest struct {
	Voice string `json:"voice" validate:"required"`
}

type VoiceResponseDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type TTSRequestResponseDTO struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Voice     string    `json:"voice"`
	Speed     float64   `json:"speed"`
	Pitch     float64   `json:"pitch"`
	Tone      string    `json:"tone"`
	CreatedAt time.Time `json:"createdAt"`
}
