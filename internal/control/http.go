package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"droneswarm/internal/command"
	"droneswarm/internal/fleet"
	"droneswarm/internal/logging"
)

// DefaultHTTPAddr is the listen address of the HTTP and websocket API.
const DefaultHTTPAddr = ":8080"

// Stater reports the current fleet state.
type Stater interface {
	State() fleet.State
}

// HTTPServer serves /ws (commands in, status out), /command, /state and
// /health.
type HTTPServer struct {
	addr     string
	hub      *Hub
	dispatch Dispatcher
	state    Stater
	upgrader websocket.Upgrader

	ln    net.Listener
	conns conns
}

// NewHTTPServer creates the API server.
func NewHTTPServer(addr string, hub *Hub, d Dispatcher, state Stater) *HTTPServer {
	if addr == "" {
		addr = DefaultHTTPAddr
	}
	return &HTTPServer{
		addr:     addr,
		hub:      hub,
		dispatch: d,
		state:    state,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routes. ctx carries the logger used by handlers.
func (s *HTTPServer) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) { s.handleWS(ctx, w, r) })
	mux.HandleFunc("/command", func(w http.ResponseWriter, r *http.Request) { s.handleCommand(ctx, w, r) })
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Listen binds the socket.
func (s *HTTPServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *HTTPServer) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs until ctx is cancelled, then shuts down gracefully and closes
// open websockets.
func (s *HTTPServer) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	log := logging.FromContext(ctx)
	srv := &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(s.ln) }()
	log.Info("http api listening", "addr", s.ln.Addr().String())

	select {
	case err := <-errc:
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.conns.closeAll()
	s.conns.wg.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *HTTPServer) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(ctx)
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	s.conns.add(ws)
	defer s.conns.done(ws)

	id, out, unregister := s.hub.Register()
	log = log.With("client", id, "remote", r.RemoteAddr)
	log.Info("websocket client connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range out {
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug("websocket write failed", "err", err)
				_ = ws.Close()
				for range out {
				}
				return
			}
		}
	}()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read ended", "err", err)
			}
			break
		}
		s.hub.handle(ctx, s.dispatch, id, "ws", msg)
	}
	unregister()
	<-writerDone
	_ = ws.Close()
	log.Info("websocket client disconnected")
}

func (s *HTTPServer) handleCommand(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLine))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := command.Decode(body)
	if err == nil {
		err = s.dispatch.Dispatch(ctx, "http", c)
	}
	if err != nil {
		logging.FromContext(ctx).Warn("command rejected", "err", err)
		writeJSON(w, statusFor(err), Message{Type: MessageError, Value: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"queued": c.Name()})
}

func (s *HTTPServer) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.State())
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.state.State()
	connected := 0
	for _, v := range st.Vehicles {
		if v.State == "connected" {
			connected++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"executor":  st.Executor,
		"vehicles":  len(st.Vehicles),
		"connected": connected,
		"clients":   s.hub.Clients(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
