package service

import "sevenvoices/internal/model"

const (
	DefaultElevenLabsVoiceID = "21m00Tcm4TlvDq8ikWAM"
	DefaultOpenAIVoice       = "alloy"
)

var voiceCatalog = []model.Voice{
	{ID: "Rachel - Professional Female", Name: "Rachel", Description: "Professional Female", Category: "Professional", ElevenLabsID: "21m00Tcm4TlvDq8ikWAM", OpenAIVoice: "nova"},
	{ID: "Drew - Warm Male", Name: "Drew", Description: "Warm Male", Category: "Conversational", ElevenLabsID: "29vD33N1CtxCmqQRPOHJ", OpenAIVoice: "echo"},
	{ID: "Clyde - Middle Aged Male", Name: "Clyde", Description: "Middle Aged Male", Category: "Mature", ElevenLabsID: "2EiwWnXFnvU5JabPnv8n", OpenAIVoice: "onyx"},
	{ID: "Bella - Young Female", Name: "Bella", Description: "Young Female", Category: "Youthful", ElevenLabsID: "EXAVITQu4vr4xnSDxMaL", OpenAIVoice: "shimmer"},
	{ID: "Antoni - Well-Rounded Male", Name: "Antoni", Description: "Well-Rounded Male", Category: "Versatile", ElevenLabsID: "ErXwobaYiN019PkySvjV", OpenAIVoice: "alloy"},
	{ID: "Elli - Emotional Female", Name: "Elli", Description: "Emotional Female", Category: "Expressive", ElevenLabsID: "MF3mGyEYCl7XYWbV9V6O", OpenAIVoice: "coral"},
	{ID: "Josh - Deep Male", Name: "Josh", Description: "Deep Male", Category: "Authoritative", ElevenLabsID: "TxGEqnHWrfWFTfGW9XjX", OpenAIVoice: "ash"},
	{ID: "Arnold - Crisp Male", Name: "Arnold", Description: "Crisp Male", Category: "Clear", ElevenLabsID: "VR6AewLTigWG4xSOukaG", OpenAIVoice: "echo"},
	{ID: "Adam - Narration Male", Name: "Adam", Description: "Narration Male", Category: "Storytelling", ElevenLabsID: "pNInz6obpgDQGcFmaJgB", OpenAIVoice: "fable"},
	{ID: "Sam - Raspy Male", Name: "Sam", Description: "Raspy Male", Category: "Character", ElevenLabsID: "yoZ06aMxZJJ28mfd3POQ", OpenAIVoice: "sage"},
}

// ListVoices returns the catalog in display order. The slice is a copy.
func ListVoices() []model.Voice {
	out := make([]model.Voice, len(voiceCatalog))
	copy(out, voiceCatalog)
	return out
}

// LookupVoice returns the catalog entry for id.
func LookupVoice(id string) (model.Voice, bool) {
	for _, v := range voiceCatalog {
		if v.ID == id {
			return v, true
		}
	}
	return model.Voice{}, false
}

// ResolveProviderVoiceID maps a catalog voice id to the provider's own voice
// identifier. Unknown ids resolve to the provider's default voice.
func ResolveProviderVoiceID(provider, catalogID string) string {
	v, ok := LookupVoice(catalogID)
	switch provider {
	case ProviderOpenAI:
		if !ok || v.OpenAIVoice == "" {
			return DefaultOpenAIVoice
		}
		return v.OpenAIVoice
	default:
		if !ok || v.ElevenLabsID == "" {
			return DefaultElevenLabsVoiceID
		}
		return v.ElevenLabsID
	}
}
