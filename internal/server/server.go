// Package server exposes the HTTP front door: subscriptions, externally captured change batches,
// published message history, dead-letter inspection, metrics and health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"CryptoWatch/internal/alert"
	"CryptoWatch/internal/metrics"
	"CryptoWatch/internal/model"
	"CryptoWatch/internal/recorder"
	"CryptoWatch/internal/topic"
)

const maxBatchBytes = 1 << 20

// BatchHandler processes an ordered batch of change events.
type BatchHandler interface {
	HandleBatch(ctx context.Context, batch []model.ChangeEvent) error
}

// MessageHistory returns the most recently published topic messages.
type MessageHistory interface {
	History(ctx context.Context, n int64) ([]topic.Message, error)
}

// Server routes HTTP requests to the service components.
type Server struct {
	Subscribe http.Handler
	Changes   BatchHandler
	Messages  MessageHistory
	Recorder  recorder.Recorder
	Metrics   *metrics.Metrics

	srv *http.Server
}

// New builds a Server listening on addr.
func New(addr string, subscribe http.Handler, changes BatchHandler, msgs MessageHistory, rec recorder.Recorder, m *metrics.Metrics) *Server {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	s := &Server{Subscribe: subscribe, Changes: changes, Messages: msgs, Recorder: rec, Metrics: m}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes returns the request multiplexer.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	if s.Subscribe != nil {
		mux.Handle("POST /subscribe", s.Subscribe)
	}
	if s.Changes != nil {
		mux.HandleFunc("POST /changes", s.handleChanges)
	}
	if s.Messages != nil {
		mux.HandleFunc("GET /messages", s.handleMessages)
	}
	mux.HandleFunc("GET /dead-letters", s.handleDeadLetters)
	mux.Handle("GET /metrics", s.Metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) ListenAndServe() error {
	log.Printf("[INFO] http server listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBatchBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read request body"})
		return
	}
	var b alert.Batch
	if err := json.Unmarshal(body, &b); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	batch, err := alert.DecodeBatch(b)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.Changes.HandleBatch(r.Context(), batch); err != nil {
		log.Printf("[ERROR] handle change batch: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": len(batch)})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	msgs, err := s.Messages.History(r.Context(), int64(limit))
	if err != nil {
		log.Printf("[ERROR] list topic messages: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not list messages"})
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	dls, err := s.Recorder.DeadLetters(limit)
	if err != nil {
		log.Printf("[ERROR] list dead letters: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not list dead letters"})
		return
	}
	if dls == nil {
		dls = []recorder.DeadLetter{}
	}
	writeJSON(w, http.StatusOK, dls)
}

// queryLimit reads ?limit=, defaulting to 50. It writes a 400 and reports false when invalid.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 50, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] write response: %v", err)
	}
}
