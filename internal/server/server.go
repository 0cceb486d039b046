package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/jpalmerr/slackpulse/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write.
	// Must be <= shutdownTimeout so slow clients cannot stall shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second
)

// ChannelLookup resolves a channel name to its ID.
type ChannelLookup func(name string) (string, bool)

// Server exposes a workspace snapshot over HTTP.
//
// Server provides four endpoints:
//   - GET /api/stats: the current snapshot as JSON
//   - GET /api/sse: Server-Sent Events stream of snapshots
//   - GET /api/channels/{name}: channel name to ID lookup
//   - GET /healthz: 200 once the workspace is ready, 503 before
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	workspace  string
	port       int
	lookup     ChannelLookup
	httpServer *http.Server
	logger     *slog.Logger
	marshal    func(any) ([]byte, error)
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store holding the workspace snapshot
//   - workspace: key of the snapshot served by /api/stats and /healthz
//   - port: TCP port to listen on
//   - lookup: channel name resolver (may be nil, every lookup then 404s)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, workspace string, port int, lookup ChannelLookup, logger *slog.Logger) *Server {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	return &Server{
		store:     st,
		workspace: workspace,
		port:      port,
		lookup:    lookup,
		logger:    logger,
		marshal:   json.Marshal,
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/sse", s.handleSSE)
	mux.HandleFunc("GET /api/channels/{name}", s.handleChannel)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns once the listener is bound. The server
// runs until ctx is cancelled, then shuts down with a 5-second timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// bind synchronously so port errors reach the caller
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return goerr.Wrap(err, "failed to bind", goerr.V("port", s.port))
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts end with ctx so SSE handlers exit on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
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

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// snapshot returns the stored snapshot or an empty one naming the workspace.
func (s *Server) snapshot() store.Snapshot {
	snap, ok := s.store.Get(s.workspace)
	if !ok {
		return store.Snapshot{Workspace: s.workspace}
	}
	return snap
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.snapshot().Ready {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	id, ok := s.lookup(name)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "channel not found", "name": name})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"name": name, "id": id})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// handleSSE streams snapshots via Server-Sent Events.
//
// Every write carries a deadline so a stalled client cannot pin the handler
// past shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(snap store.Snapshot) error {
		data, err := s.marshal(snap)
		if err != nil {
			// drop this snapshot, the stream stays open for the next one
			s.logger.Error("failed to encode snapshot", "workspace", snap.Workspace, "error", err)
			return nil
		}

		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
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

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	if err := writeAndFlush(s.snapshot()); err != nil {
		return
	}

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if snap.Workspace != s.workspace {
				continue
			}
			if err := writeAndFlush(snap); err != nil {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}
