// Package server provides the thin HTTP transport over the pipeline:
// a REST API for the ticker set, Server-Sent Events and WebSocket batch
// streams, and the Prometheus metrics endpoint.
//
// The transport holds no state of its own; every operation delegates to
// the core behind the [Core] interface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tickwatch/tickwatch/quote"
)

const (
	// streamWriteTimeout bounds a single SSE or WebSocket write so a
	// stalled client cannot leak its handler goroutine. Must be <= the
	// shutdown timeout.
	streamWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Core is the boundary the transport exposes to callers. The watcher
// implements it.
type Core interface {
	AddTicker(ctx context.Context, ticker string) error
	RemoveTicker(ticker string)
	ListTickers() []string
	Subscribe() (string, <-chan quote.Batch)
	Unsubscribe(id string)
	Touch(id string)
	Stats() quote.Stats
}

// Server handles HTTP requests for the ticker API and batch streams.
//
// Endpoints:
//   - GET    /api/tickers          list active tickers
//   - POST   /api/tickers          add a ticker
//   - DELETE /api/tickers/{ticker} remove a ticker
//   - GET    /api/stats            pipeline gauges
//   - GET    /api/stream           Server-Sent Events batch stream
//   - GET    /api/ws               WebSocket batch stream
//   - GET    /metrics              Prometheus metrics
type Server struct {
	core       Core
	port       int
	logger     *slog.Logger
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates a [Server]. It is not started until [Server.Start] is
// called.
func New(core Core, port int, logger *slog.Logger) *Server {
	return &Server{
		core:   core,
		port:   port,
		logger: logger,
		upgrader: websocket.Upgrader{
			// the API carries no credentials; cross-origin reads are fine
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tickers", s.handleList)
	mux.HandleFunc("POST /api/tickers", s.handleAdd)
	mux.HandleFunc("DELETE /api/tickers/{ticker}", s.handleRemove)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/stream", s.handleSSE)
	mux.HandleFunc("GET /api/ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start begins serving in a background goroutine.
//
// Start is non-blocking and returns after the listener is bound; binding
// failures surface synchronously. The server shuts down gracefully when
// ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler: s.Handler(),
		// request contexts derive from the server context, so stream
		// handlers observe shutdown as request cancellation
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// addRequest is the POST /api/tickers body.
type addRequest struct {
	Ticker string `json:"ticker"`
}

// tickerResponse reports the outcome of an add or remove.
type tickerResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.ListTickers(), s.logger)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Ticker == "" {
		writeJSON(w, http.StatusBadRequest, tickerResponse{Reason: "body must be {\"ticker\": \"...\"}"}, s.logger)
		return
	}

	if err := s.core.AddTicker(r.Context(), req.Ticker); err != nil {
		writeJSON(w, http.StatusBadGateway, tickerResponse{Reason: err.Error()}, s.logger)
		return
	}
	writeJSON(w, http.StatusOK, tickerResponse{Accepted: true}, s.logger)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	s.core.RemoveTicker(r.PathValue("ticker"))
	writeJSON(w, http.StatusOK, tickerResponse{Accepted: true}, s.logger)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Stats(), s.logger)
}

// handleSSE streams batches via Server-Sent Events.
//
// Writes carry deadlines so a slow or disconnected client cannot block
// the handler past the shutdown timeout; a subscriber that stops reading
// backs up its delivery channel and is evicted by the broadcaster.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	id, batches := s.core.Subscribe()
	defer s.core.Unsubscribe(id)

	for {
		select {
		case batch, ok := <-batches:
			if !ok {
				// evicted or shutting down
				return
			}
			data, err := json.Marshal(batch)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}

// handleWS streams batches over a WebSocket. Any message from the client
// counts as a keep-alive.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	id, batches := s.core.Subscribe()
	defer s.core.Unsubscribe(id)
	defer func() { _ = conn.Close() }()

	// reader: consume client frames as keep-alives, detect disconnect
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			s.core.Touch(id)
		}
	}()

	for {
		select {
		case batch, ok := <-batches:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(batch); err != nil {
				return
			}

		case <-readerDone:
			return

		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
