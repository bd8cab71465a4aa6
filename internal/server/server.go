package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/parcelpoint/fulfillment/internal/fulfillment"
	"github.com/parcelpoint/fulfillment/internal/order"
	"github.com/parcelpoint/fulfillment/internal/store"
	"github.com/parcelpoint/fulfillment/internal/telemetry"
	"github.com/parcelpoint/fulfillment/internal/webhook"
	"github.com/parcelpoint/fulfillment/pkg/shiprocket"
)

// SignatureHeader carries the webhook shared secret.
const SignatureHeader = "X-Webhook-Signature"

// Server is the HTTP server for the fulfillment service.
type Server struct {
	port       int
	store      store.Store
	svc        *fulfillment.Service
	reconciler *webhook.Reconciler
	logger     *otelzap.Logger
	metrics    *telemetry.Metrics
}

// Config holds server configuration.
type Config struct {
	Port int
}

// New creates a new server instance.
func New(cfg Config, st store.Store, svc *fulfillment.Service, reconciler *webhook.Reconciler, logger *otelzap.Logger) *Server {
	return &Server{
		port:       cfg.Port,
		store:      st,
		svc:        svc,
		reconciler: reconciler,
		logger:     logger,
		metrics:    telemetry.NewMetrics(),
	}
}

// Handler builds the route table. Split from Run for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /orders/{id}", s.handleGetOrder)
	mux.HandleFunc("POST /orders/{id}/actions", s.handleAction)
	mux.HandleFunc("POST /orders/{id}/status", s.handleStatus)
	mux.HandleFunc("POST /webhooks/courier", s.handleWebhook)

	return mux
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.store.FindOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type actionRequest struct {
	Action    string `json:"action"`
	Note      string `json:"note,omitempty"`
	UpdatedBy string `json:"updatedBy,omitempty"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	action, err := fulfillment.ParseAction(req.Action)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	start := time.Now()
	res, err := s.svc.Execute(r.Context(), r.PathValue("id"), action, fulfillment.ExtraOptions{
		Note:      req.Note,
		UpdatedBy: req.UpdatedBy,
	})
	if err != nil {
		s.metrics.RecordAction(string(action), "error", time.Since(start).Seconds())
		s.writeError(w, err)
		return
	}
	s.metrics.RecordAction(string(action), "ok", time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, res)
}

type statusRequest struct {
	Status        string `json:"status"`
	Note          string `json:"note,omitempty"`
	UpdatedBy     string `json:"updatedBy,omitempty"`
	Notify        *bool  `json:"notify,omitempty"`
	RequestRefund bool   `json:"requestRefund,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	newStatus := order.Status(req.Status)
	if !newStatus.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown status: %q", req.Status)})
		return
	}

	o, err := s.svc.Transition(r.Context(), r.PathValue("id"), newStatus, fulfillment.TransitionOptions{
		Note:          req.Note,
		UpdatedBy:     req.UpdatedBy,
		Notify:        req.Notify,
		RequestRefund: req.RequestRefund,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.RecordTransition(string(newStatus), "admin")
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable body"})
		return
	}

	res, err := s.reconciler.Ingest(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrInvalidSignature):
			s.metrics.RecordWebhook("unauthorized")
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid signature"})
		case errors.Is(err, webhook.ErrMalformedPayload):
			// Data-shape issues are acknowledged so the courier does not
			// disable delivery over perceived failures.
			s.metrics.RecordWebhook("malformed")
			s.logger.Warn("Discarding malformed webhook", zap.Error(err))
			writeJSON(w, http.StatusOK, webhook.Result{Matched: false})
		default:
			s.metrics.RecordWebhook("error")
			s.logger.Error("Webhook processing failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return
	}

	if res.Matched {
		s.metrics.RecordWebhook("applied")
		s.metrics.RecordTransition(string(res.Status), "webhook")
	} else {
		s.metrics.RecordWebhook("unmatched")
	}
	writeJSON(w, http.StatusOK, res)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP status codes. Conflicts with
// the state machine or an action precondition are 409, provider
// failures surface as 502 so callers can tell them from our own 5xx.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ite *order.InvalidTransitionError
	switch {
	case store.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &ite), fulfillment.IsPrecondition(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case shiprocket.IsAuth(err), shiprocket.IsRemote(err):
		s.metrics.RecordProviderError(providerErrorType(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("Request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func providerErrorType(err error) string {
	if shiprocket.IsAuth(err) {
		return "auth"
	}
	return "api"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
