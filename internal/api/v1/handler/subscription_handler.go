package handler

import (
	"errors"
	"io"
	"net/http"

	"sevenvoices/internal/api/v1/dto"
	"sevenvoices/internal/middleware"
	"sevenvoices/internal/model"
	"sevenvoices/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const maxWebhookBodyBytes = int64(512 << 10)

// SubscriptionHandler handles subscription-related endpoints.
type SubscriptionHandler struct {
	subSvc   service.SubscriptionService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subSvc service.SubscriptionService, validate *validator.Validate, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subSvc:   subSvc,
		validate: validate,
		logger:   logger.With().Str("handler", "SubscriptionHandler").Logger(),
	}
}

// RegisterRoutes registers the subscription endpoints.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("POST /api/stripe/create-subscription", authMw(http.HandlerFunc(h.createSubscription)))
	mux.Handle("GET /api/stripe/subscription-status", authMw(http.HandlerFunc(h.subscriptionStatus)))
	mux.Handle("POST /api/stripe/create-payment-intent", authMw(http.HandlerFunc(h.createPaymentIntent)))
	mux.HandleFunc("POST /api/stripe/webhook", h.webhook)
	mux.Handle("GET /api/subscription/status", authMw(http.HandlerFunc(h.cachedStatus)))
}

// createSubscription godoc
// @Summary Start a paid plan
// @Description Creates a Stripe subscription in the incomplete state and returns the client secret that confirms its first payment.
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param subscription body dto.CreateSubscriptionRequest true "Plan to subscribe to"
// @Success 200 {object} dto.CreateSubscriptionResponseDTO
// @Failure 400 {object} errorResponse "validation failed or already subscribed"
// @Failure 401 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 501 {object} errorResponse "stripe not configured"
// @Router /api/stripe/create-subscription [post]
func (h *SubscriptionHandler) createSubscription(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var req dto.CreateSubscriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateDTO(w, h.validate, &req) {
		return
	}
	res, err := h.subSvc.CreateSubscription(r.Context(), u.UserID, model.SubscriptionPlan(req.Plan))
	if err != nil {
		writeServiceError(w, h.logger, err, "Stripe", "Failed to create subscription")
		return
	}
	writeJSON(w, http.StatusOK, dto.CreateSubscriptionResponseDTO{
		SubscriptionID: res.SubscriptionID,
		ClientSecret:   res.ClientSecret,
		Plan:           string(res.Plan),
		Amount:         float64(res.AmountCents) / 100,
	})
}

// subscriptionStatus godoc
// @Summary Read live subscription status from Stripe
// @Tags subscriptions
// @Produce json
// @Success 200 {object} dto.SubscriptionStatusResponseDTO
// @Failure 401 {object} errorResponse
// @Failure 501 {object} errorResponse
// @Router /api/stripe/subscription-status [get]
func (h *SubscriptionHandler) subscriptionStatus(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	view, err := h.subSvc.GetSubscriptionStatus(r.Context(), u.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Stripe", "Error checking subscription status")
		return
	}
	writeJSON(w, http.StatusOK, dto.SubscriptionStatusResponseDTO{
		Active:            view.Active,
		Status:            view.Status,
		Plan:              string(view.Plan),
		CurrentPeriodEnd:  view.CurrentPeriodEnd,
		CancelAtPeriodEnd: view.CancelAtPeriodEnd,
	})
}

// createPaymentIntent godoc
// @Summary Create a one-off payment intent
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param payment body dto.CreatePaymentIntentRequest true "Amount in dollars and plan"
// @Success 200 {object} dto.PaymentIntentResponseDTO
// @Failure 400 {object} errorResponse
// @Failure 501 {object} errorResponse
// @Router /api/stripe/create-payment-intent [post]
func (h *SubscriptionHandler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req dto.CreatePaymentIntentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateDTO(w, h.validate, &req) {
		return
	}
	secret, err := h.subSvc.CreatePaymentIntent(r.Context(), req.Amount, req.Plan)
	if err != nil {
		writeServiceError(w, h.logger, err, "Stripe", "Error creating payment intent")
		return
	}
	writeJSON(w, http.StatusOK, dto.PaymentIntentResponseDTO{ClientSecret: secret})
}

// webhook godoc
// @Summary Receive Stripe events
// @Description Verifies the Stripe-Signature header and mirrors subscription state onto the user.
// @Tags subscriptions
// @Accept json
// @Produce json
// @Success 200 {object} dto.WebhookAckDTO
// @Failure 400 {object} errorResponse "signature verification failed"
// @Failure 413 {object} errorResponse
// @Failure 501 {object} errorResponse
// @Router /api/stripe/webhook [post]
func (h *SubscriptionHandler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn().Int64("limit", tooLarge.Limit).Msg("Webhook body too large")
			writeMessage(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		h.logger.Warn().Err(err).Msg("Failed to read webhook body")
		writeMessage(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if err := h.subSvc.HandleWebhookEvent(r.Context(), body, r.Header.Get("Stripe-Signature")); err != nil {
		writeServiceError(w, h.logger, err, "Stripe webhook", "Webhook handling failed")
		return
	}
	writeJSON(w, http.StatusOK, dto.WebhookAckDTO{Received: true})
}

// cachedStatus godoc
// @Summary Read the locally cached subscription status
// @Tags subscriptions
// @Produce json
// @Success 200 {object} dto.CachedSubscriptionResponseDTO
// @Failure 401 {object} errorResponse
// @Router /api/subscription/status [get]
func (h *SubscriptionHandler) cachedStatus(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	cached := service.CachedStatusOf(u)
	writeJSON(w, http.StatusOK, dto.CachedSubscriptionResponseDTO{
		SubscriptionPlan:      string(cached.SubscriptionPlan),
		SubscriptionStatus:    string(cached.SubscriptionStatus),
		HasActiveSubscription: cached.HasActiveSubscription,
	})
}
