package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reliefline/chloe-voice/internal/dialog"
	"github.com/reliefline/chloe-voice/internal/store"
	"github.com/reliefline/chloe-voice/pkg/logging"
)

// Handler owns the HTTP surface of the service: the voice webhook, the relay
// websocket, report and calendar downloads, and the usual probes.
type Handler struct {
	controller *dialog.Controller
	store      *store.Store
	logger     *logging.Logger
	upgrader   websocket.Upgrader

	relayURL   string
	appVersion string
	gitCommit  string
	registry   *prometheus.Registry
}

// Config carries the wiring the handler needs from main.
type Config struct {
	Controller *dialog.Controller
	Store      *store.Store
	Logger     *logging.Logger
	RelayURL   string
	AppVersion string
	GitCommit  string
	Registry   *prometheus.Registry
}

func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		controller: cfg.Controller,
		store:      cfg.Store,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Twilio connects server-to-server with no Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		relayURL:   cfg.RelayURL,
		appVersion: cfg.AppVersion,
		gitCommit:  cfg.GitCommit,
		registry:   cfg.Registry,
	}
}

// Router builds the chi mux for the service.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, "OK")
	})
	r.Get("/health", h.handleHealth)
	r.Get("/version", h.handleVersion)
	r.Post("/voice", h.handleVoice)
	r.Get("/relay", h.handleRelay)
	r.Get("/reports/{date}.csv", h.handleReport)
	r.Get("/calendar/{id}.ics", h.handleCalendar)

	if h.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	}
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (h *Handler) handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"app_version": h.appVersion,
		"git_commit":  h.gitCommit,
	})
}

// handleVoice answers the provider's inbound-call webhook with TwiML that
// hands the call to the ConversationRelay websocket.
func (h *Handler) handleVoice(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	fmt.Fprintf(w, voiceTwiML, h.relayURL)
}

const voiceTwiML = `<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Connect>
    <ConversationRelay url="%s" transcriptionProvider="Deepgram" speechModel="nova-3-general" ttsProvider="Amazon">
      <Language code="en-US" voice="Joanna-Neural" />
      <Language code="es-US" voice="Lupe-Neural" />
    </ConversationRelay>
  </Connect>
</Response>
`

func (h *Handler) handleRelay(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("relay: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Short call id scopes every log line for this connection.
	logger := h.logger.With("call_id", uuid.NewString()[:8])
	logger.Info("relay: call connected")

	cs := newCallSession(conn, h.controller, logger)
	cs.run(r.Context())
	logger.Info("relay: call ended")
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	csvBody, err := h.store.RenderReport(date)
	if err != nil {
		if errors.Is(err, store.ErrBadRequest) {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		h.logger.Error("relay: report render failed", "date", date, "error", err)
		http.Error(w, "report unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", date))
	fmt.Fprint(w, csvBody)
}

func (h *Handler) handleCalendar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ics, err := h.store.Calendar(id)
	if err != nil {
		if errors.Is(err, store.ErrBadRequest) {
			http.Error(w, "invalid calendar id", http.StatusBadRequest)
			return
		}
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Error("relay: calendar read failed", "id", id, "error", err)
		http.Error(w, "calendar unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	fmt.Fprint(w, ics)
}
