package model

import "time"

const (
	DefaultSpeed = 1.0
	DefaultPitch = 0.0
	DefaultTone  = "neutral"
)

// TTSRequest is one synthesis call as shown in the request history.
type TTSRequest struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id,omitempty"`
	Text      string    `db:"text" json:"text"`
	Voice     string    `db:"voice" json:"voice"`
	Speed     float64   `db:"speed" json:"speed"`
	Pitch     float64   `db:"pitch" json:"pitch"`
	Tone      string    `db:"tone" json:"tone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Voice is one entry of the voice catalog.
type Voice struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	ElevenLabsID string `json:"-"`
	OpenAIVoice  string `json:"-"`
}
