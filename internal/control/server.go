// Package control feeds parameter edits into a running simulation from
// outside the render loop and reports frame statistics back.
package control

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"oceancl/internal/ocean"
)

// EditSink accepts batches of parameter edits; *ocean.PendingEdits is one.
type EditSink interface {
	Push(edits ...ocean.Edit) error
}

// Request is a client message: one batch of edits applied atomically.
type Request struct {
	Edits []ocean.Edit `json:"edits"`
}

// Reply is a server message.
type Reply struct {
	Type  string            `json:"type"`
	Frame *ocean.FrameStats `json:"frame,omitempty"`
	Error string            `json:"error,omitempty"`
}

const writeTimeout = time.Second

// Server is a websocket endpoint. Clients send Requests and receive a
// "frame" Reply for every broadcast frame.
type Server struct {
	sink     EditSink
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
}

// NewServer returns a server pushing edits into sink.
func NewServer(sink EditSink, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sink: sink,
		log:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()

	wmu := &sync.Mutex{}
	s.mu.Lock()
	s.clients[conn] = wmu
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()
	s.log.Info("control client connected", "remote", r.RemoteAddr)

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("control client read failed", "remote", r.RemoteAddr, "err", err)
			}
			return
		}
		if len(req.Edits) == 0 {
			continue
		}
		if err := s.sink.Push(req.Edits...); err != nil {
			s.send(conn, wmu, Reply{Type: "error", Error: err.Error()})
			continue
		}
		s.log.Debug("edits queued", "remote", r.RemoteAddr, "count", len(req.Edits))
	}
}

func (s *Server) send(conn *websocket.Conn, wmu *sync.Mutex, msg Reply) error {
	wmu.Lock()
	defer wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

// Broadcast sends st to every client. Clients that fail to keep up are
// dropped.
func (s *Server) Broadcast(st ocean.FrameStats) {
	msg := Reply{Type: "frame", Frame: &st}
	s.mu.RLock()
	var failed []*websocket.Conn
	for conn, wmu := range s.clients {
		if err := s.send(conn, wmu, msg); err != nil {
			failed = append(failed, conn)
		}
	}
	s.mu.RUnlock()
	for _, conn := range failed {
		s.log.Debug("dropping control client", "remote", conn.RemoteAddr())
		conn.Close()
	}
}

// Clients is the number of connected clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ListenAndServe serves the endpoint at /ws until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	s.log.Info("control endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
