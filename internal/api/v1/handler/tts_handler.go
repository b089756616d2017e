package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"sevenvoices/internal/api/v1/dto"
	"sevenvoices/internal/middleware"
	"sevenvoices/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// TTSHandler serves the voice catalog and speech synthesis endpoints.
type TTSHandler struct {
	ttsService service.TTSService
	validate   *validator.Validate
	logger     zerolog.Logger
}

func NewTTSHandler(ttsService service.TTSService, validate *validator.Validate, logger zerolog.Logger) *TTSHandler {
	return &TTSHandler{
		ttsService: ttsService,
		validate:   validate,
		logger:     logger.With().Str("handler", "TTSHandler").Logger(),
	}
}

// RegisterRoutes mounts the TTS routes. Synthesis is open to anonymous callers;
// optionalAuthMw attaches the session user when there is one.
func (h *TTSHandler) RegisterRoutes(mux *http.ServeMux, authMw, optionalAuthMw func(http.Handler) http.Handler) {
	mux.Handle("POST /api/tts/generate", optionalAuthMw(http.HandlerFunc(h.generate)))
	mux.HandleFunc("POST /api/tts/preview", h.preview)
	mux.HandleFunc("GET /api/tts/voices", h.listVoices)
	mux.Handle("GET /api/tts/history", authMw(http.HandlerFunc(h.history)))
}

// generate godoc
// @Summary Synthesize speech
// @Tags tts
// @Accept json
// @Produce audio/mpeg
// @Param request body dto.GenerateSpeechRequest true "Text and voice settings"
// @Success 200 {file} binary
// @Failure 400 {object} errorResponse
// @Failure 429 {object} errorResponse
// @Failure 500 {object} errorResponse
// @Router /api/tts/generate [post]
func (h *TTSHandler) generate(w http.ResponseWriter, r *http.Request) {
	var req dto.GenerateSpeechRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := service.GenerateInput{
		Text:  req.Text,
		Voice: req.Voice,
		Speed: req.Speed,
		Pitch: req.Pitch,
		Tone:  req.Tone,
	}
	if u, ok := middleware.UserFromContext(r.Context()); ok {
		in.UserID = u.UserID
	}

	audio, err := h.ttsService.Generate(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, err, "TTS provider", "Failed to generate speech")
		return
	}
	h.writeAudio(w, audio.Audio, fmt.Sprintf("speech-%s.mp3", audio.RequestID))
}

// preview godoc
// @Summary Synthesize a short sample of a voice
// @Tags tts
// @Accept json
// @Produce audio/mpeg
// @Param request body dto.PreviewVoiceRequest true "Voice to preview"
// @Success 200 {file} binary
// @Failure 400 {object} errorResponse
// @Failure 501 {object} errorResponse
// @Router /api/tts/preview [post]
func (h *TTSHandler) preview(w http.ResponseWriter, r *http.Request) {
	var req dto.PreviewVoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateDTO(w, h.validate, &req) {
		return
	}
	audio, err := h.ttsService.Preview(r.Context(), req.Voice)
	if err != nil {
		writeServiceError(w, h.logger, err, "TTS provider", "Failed to preview voice")
		return
	}
	h.writeAudio(w, audio.Audio, "")
}

// listVoices godoc
// @Summary List the voice catalog
// @Tags tts
// @Produce json
// @Success 200 {array} dto.VoiceResponseDTO
// @Router /api/tts/voices [get]
func (h *TTSHandler) listVoices(w http.ResponseWriter, r *http.Request) {
	voices := h.ttsService.Voices()
	resp := make([]dto.VoiceResponseDTO, 0, len(voices))
	for _, v := range voices {
		resp = append(resp, dto.VoiceResponseDTO{
			ID:          v.ID,
			Name:        v.Name,
			Description: v.Description,
			Category:    v.Category,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// history godoc
// @Summary List the caller's synthesis requests
// @Tags tts
// @Produce json
// @Success 200 {array} dto.TTSRequestResponseDTO
// @Failure 401 {object} errorResponse
// @Router /api/tts/history [get]
func (h *TTSHandler) history(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	records, err := h.ttsService.History(r.Context(), u.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err, "History", "Error fetching history")
		return
	}
	resp := make([]dto.TTSRequestResponseDTO, 0, len(records))
	for _, rec := range records {
		resp = append(resp, dto.TTSRequestResponseDTO{
			ID:        rec.ID,
			Text:      rec.Text,
			Voice:     rec.Voice,
			Speed:     rec.Speed,
			Pitch:     rec.Pitch,
			Tone:      rec.Tone,
			CreatedAt: rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeAudio streams the provider's audio body to the client unmodified.
func (h *TTSHandler) writeAudio(w http.ResponseWriter, audio *service.Audio, filename string) {
	defer func() {
		_ = audio.Body.Close()
	}()
	contentType := audio.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	if audio.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(audio.ContentLength, 10))
	}
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, audio.Body); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to stream audio to client")
	}
}
