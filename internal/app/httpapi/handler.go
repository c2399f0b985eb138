// Package httpapi exposes the Clicklone services over HTTP.
package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	app "github.com/clicklone/clicklone/internal/app"
	"github.com/clicklone/clicklone/internal/app/domain/analytics"
	"github.com/clicklone/clicklone/internal/app/domain/generation"
	"github.com/clicklone/clicklone/internal/app/metrics"
	"github.com/clicklone/clicklone/internal/app/services/checkout"
	"github.com/clicklone/clicklone/internal/app/services/funnel"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/clicklone/clicklone/internal/logging"
	"github.com/clicklone/clicklone/internal/middleware"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app      *app.Application
	log      *logging.Logger
	audit    *auditLog
	upgrader websocket.Upgrader
	started  time.Time
}

// NewHandler returns the router with every public and admin route plus the
// shared middleware chain.
func NewHandler(application *app.Application, log *logging.Logger) http.Handler {
	if log == nil {
		log = logging.NewDefault("httpapi")
	}
	cfg := application.Config()
	cors := middleware.NewCORSMiddleware(cfg.Origins())
	tracing := middleware.NewTracingMiddleware(log.Component("http"))

	h := &handler{
		app:     application,
		log:     log,
		audit:   newAuditLog(200, loggerSink{log: log.Component("audit")}),
		started: time.Now(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || cors.Allowed(origin)
		},
	}

	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, log, &apperrors.ServiceError{Code: apperrors.CodeBadRequest, HTTPStatus: http.StatusMethodNotAllowed, Message: "method not allowed"})
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, log, apperrors.NotFound("route", r.URL.Path))
	})

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/config", h.config).Methods(http.MethodGet)
	api.Handle("/generate", application.Limiter.Handler(http.HandlerFunc(h.generate))).Methods(http.MethodPost)
	api.HandleFunc("/checkout/return", h.checkoutReturn).Methods(http.MethodGet)
	api.HandleFunc("/checkout/{result_id}", h.restartCheckout).Methods(http.MethodPost)
	api.HandleFunc("/stripe/webhook", h.stripeWebhook).Methods(http.MethodPost)
	api.HandleFunc("/events", h.recordEvent).Methods(http.MethodPost)
	api.HandleFunc("/seo", h.seo).Methods(http.MethodGet)

	api.HandleFunc("/admin/login", h.adminLogin).Methods(http.MethodPost)
	admin := api.PathPrefix("/admin").Subrouter()
	var verifier middleware.TokenVerifier
	if application.Auth != nil {
		verifier = application.Auth.Tokens()
	}
	admin.Use(middleware.NewAdminAuth(verifier, log.Component("admin-auth")).Handler, h.audit.middleware)
	admin.HandleFunc("/analytics", h.adminAnalytics).Methods(http.MethodGet)
	admin.HandleFunc("/analytics/live", h.adminAnalyticsLive).Methods(http.MethodGet)
	admin.HandleFunc("/settings", h.adminGetSettings).Methods(http.MethodGet)
	admin.HandleFunc("/settings", h.adminUpdateSettings).Methods(http.MethodPut)
	admin.HandleFunc("/seo", h.adminListSEO).Methods(http.MethodGet)
	admin.HandleFunc("/seo", h.adminUpsertSEO).Methods(http.MethodPut)
	admin.HandleFunc("/seo", h.adminDeleteSEO).Methods(http.MethodDelete)
	admin.HandleFunc("/orders", h.adminOrders).Methods(http.MethodGet)
	admin.HandleFunc("/users", h.adminUsers).Methods(http.MethodGet)
	admin.HandleFunc("/audit", h.adminAudit).Methods(http.MethodGet)

	// CORS sits outside the router so preflight requests never reach route
	// method matching.
	return tracing.Handler(tracing.Recover(metrics.InstrumentHandler(cors.Handler(r))))
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"storage":        h.app.Config().StorageDriver,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

func (h *handler) config(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.app.Funnel.Config(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type generatePayload struct {
	Concept    string          `json:"concept"`
	Tone       generation.Tone `json:"tone"`
	Language   string          `json:"language"`
	TrialCount int             `json:"trial_count"`
	VisitorID  string          `json:"visitor_id"`
}

func (h *handler) generate(w http.ResponseWriter, r *http.Request) {
	var payload generatePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	out, err := h.app.Funnel.Generate(r.Context(), funnel.GenerateInput{
		Request: generation.Request{
			Concept:  payload.Concept,
			Tone:     payload.Tone,
			Language: payload.Language,
		},
		TrialCount: payload.TrialCount,
		VisitorID:  visitorID(r, payload.VisitorID),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) restartCheckout(w http.ResponseWriter, r *http.Request) {
	resultID := mux.Vars(r)["result_id"]
	out, err := h.app.Funnel.RestartCheckout(r.Context(), resultID, visitorID(r, ""))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) checkoutReturn(w http.ResponseWriter, r *http.Request) {
	out, err := h.app.Funnel.Return(r.Context(), r.URL.Query())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, checkout.WebhookBodyLimit)
	defer body.Close()
	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, h.log, &apperrors.ServiceError{Code: apperrors.CodeBadRequest, HTTPStatus: http.StatusRequestEntityTooLarge, Message: "webhook payload too large"})
			return
		}
		writeError(w, r, h.log, apperrors.BadRequest("could not read webhook payload"))
		return
	}

	result, err := h.app.Checkout.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type eventPayload struct {
	Type      analytics.EventType `json:"type"`
	Path      string              `json:"path"`
	Referrer  string              `json:"referrer"`
	VisitorID string              `json:"visitor_id"`
}

// recordEvent accepts page views from the browser. Funnel events are only
// recorded server side.
func (h *handler) recordEvent(w http.ResponseWriter, r *http.Request) {
	var payload eventPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if payload.Type == "" {
		payload.Type = analytics.EventPageView
	}
	if payload.Type != analytics.EventPageView {
		writeError(w, r, h.log, apperrors.Validation("type", "only page_view events can be submitted"))
		return
	}
	evt, err := h.app.Analytics.RecordEvent(r.Context(), analytics.Event{
		Type:      payload.Type,
		Path:      payload.Path,
		Referrer:  payload.Referrer,
		VisitorID: visitorID(r, payload.VisitorID),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, evt)
}

func (h *handler) seo(w http.ResponseWriter, r *http.Request) {
	meta, err := h.app.SEO.Get(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}
