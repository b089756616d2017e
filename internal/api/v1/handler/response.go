package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"sevenvoices/internal/api/v1/dto"
	"sevenvoices/internal/model"
	"sevenvoices/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const maxJSONBodyBytes = 1 << 20

type errorResponse struct {
	Message string               `json:"message"`
	Errors  []service.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON payload")
		return false
	}
	return true
}

// validateDTO runs struct validation and writes a 400 on failure.
func validateDTO(w http.ResponseWriter, v *validator.Validate, req any) bool {
	err := v.Struct(req)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeMessage(w, http.StatusBadRequest, "Validation failed")
		return false
	}
	ve := &service.ValidationError{}
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, service.FieldError{Field: lowerFirst(fe.Field()), Message: fieldMessage(fe)})
	}
	writeValidationError(w, ve)
	return false
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "gt":
		return name + " must be greater than " + fe.Param()
	default:
		return name + " is invalid"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}

func writeValidationError(w http.ResponseWriter, ve *service.ValidationError) {
	msg := "Validation error"
	if len(ve.Fields) == 1 {
		msg = ve.Fields[0].Message
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Message: msg, Errors: ve.Fields})
}

var providerDisplayNames = map[string]string{
	service.ProviderElevenLabs: "ElevenLabs",
	service.ProviderOpenAI:     "OpenAI",
	service.ProviderStripe:     "Stripe",
}

// writeServiceError maps a service error onto its HTTP status. feature names the
// component for "not configured" responses; fallback is the message for
// unclassified failures. Raw error text never reaches the client.
func writeServiceError(w http.ResponseWriter, logger zerolog.Logger, err error, feature, fallback string) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		writeValidationError(w, ve)
		return
	}

	switch {
	case errors.Is(err, service.ErrValidation):
		writeMessage(w, http.StatusBadRequest, "Validation error")
	case errors.Is(err, service.ErrAuthRequired):
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, service.ErrUserNotFound):
		writeMessage(w, http.StatusNotFound, "User not found")
	case errors.Is(err, service.ErrConflict):
		writeMessage(w, http.StatusConflict, "User already exists with this email")
	case errors.Is(err, service.ErrAlreadySubscribed):
		writeMessage(w, http.StatusBadRequest, "User already has an active subscription")
	case errors.Is(err, service.ErrPaymentIncomplete):
		writeMessage(w, http.StatusBadRequest, "Unable to create payment intent for subscription")
	case errors.Is(err, service.ErrInvalidSignature):
		writeMessage(w, http.StatusBadRequest, "Webhook signature verification failed")
	case errors.Is(err, service.ErrNotConfigured):
		writeMessage(w, http.StatusNotImplemented, feature+" not configured")
	case errors.Is(err, service.ErrProviderUnavailable):
		name := "Provider"
		var perr *service.ProviderError
		if errors.As(err, &perr) {
			if n, ok := providerDisplayNames[perr.Provider]; ok {
				name = n
			}
		}
		logger.Warn().Err(err).Msg("Provider unavailable")
		writeMessage(w, http.StatusTooManyRequests, name+" API error. Please check your API key and quota, or try again later.")
	default:
		logger.Error().Err(err).Msg(fallback)
		writeMessage(w, http.StatusInternalServerError, fallback)
	}
}

func toUserDTO(u *model.User) dto.UserResponseDTO {
	cached := service.CachedStatusOf(u)
	return dto.UserResponseDTO{
		ID:                 u.UserID,
		Username:           deref(u.Username),
		DisplayName:        deref(u.DisplayName),
		Email:              deref(u.Email),
		AvatarURL:          deref(u.AvatarURL),
		SubscriptionPlan:   string(cached.SubscriptionPlan),
		SubscriptionStatus: string(cached.SubscriptionStatus),
		CreatedAt:          u.CreatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
