// ABOUTME: Websocket bridge server for the session handle API
// ABOUTME: Serves /control and /metrics and broadcasts session state changes
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/miniaud/minitester/internal/version"
	"github.com/miniaud/minitester/pkg/session"
)

const (
	sendBuffer    = 64
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Config holds server configuration
type Config struct {
	Listen string
	Name   string
	Logger *zap.SugaredLogger
}

// Server bridges websocket hosts to a session engine
type Server struct {
	config   Config
	engine   *session.Engine
	log      *zap.SugaredLogger
	serverID string

	upgrader websocket.Upgrader
	mux      *http.ServeMux

	conns   map[string]*conn
	connsMu sync.RWMutex

	unsubscribe func()
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// conn is one connected host
type conn struct {
	id   string
	ws   *websocket.Conn
	send chan any

	// handles allocated through this connection
	mu    sync.Mutex
	owned map[session.Handle]struct{}
}

// New creates a server over engine and subscribes to its state changes
func New(engine *session.Engine, config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.Name == "" {
		config.Name = version.Product
	}

	s := &Server{
		config:   config,
		engine:   engine,
		log:      config.Logger.Named("bridge"),
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		conns:    make(map[string]*conn),
		upgrader: websocket.Upgrader{
			// Hosts are native test harnesses, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.mux.HandleFunc(ControlPath, s.handleWebSocket)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.unsubscribe = engine.Subscribe(s.broadcast)

	return s
}

// Handler returns the HTTP handler serving /control and /metrics
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx is cancelled, then closes every connection
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.Infow("Bridge listening", "addr", ln.Addr().String(), "name", s.config.Name)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warnw("HTTP shutdown error", "error", err)
	}
	s.Close()

	if serveErr != nil {
		return fmt.Errorf("bridge server failed: %w", serveErr)
	}
	return nil
}

// Close stops event delivery and disconnects every host
func (s *Server) Close() {
	s.closeOnce.Do(s.close)
}

func (s *Server) close() {
	s.unsubscribe()

	s.connsMu.RLock()
	for _, c := range s.conns {
		c.ws.Close()
	}
	s.connsMu.RUnlock()

	s.wg.Wait()
}

// Connections returns the number of connected hosts
func (s *Server) Connections() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	s.handleConnection(ws, r.RemoteAddr)
}

func (s *Server) handleConnection(ws *websocket.Conn, remote string) {
	c := &conn{
		id:    uuid.New().String(),
		ws:    ws,
		send:  make(chan any, sendBuffer),
		owned: make(map[session.Handle]struct{}),
	}
	log := s.log.With("connection", c.id)

	s.connsMu.Lock()
	s.conns[c.id] = c
	s.connsMu.Unlock()
	connections.Inc()
	log.Infow("Host connected", "remote", remote)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writer(c, log)
	}()

	defer func() {
		s.connsMu.Lock()
		delete(s.conns, c.id)
		s.connsMu.Unlock()
		connections.Dec()

		close(c.send)
		<-writerDone
		ws.Close()

		s.release(c, log)
		log.Infow("Host disconnected")
	}()

	c.reply(Hello{
		Type:         TypeHello,
		ServerID:     s.serverID,
		ConnectionID: c.id,
		Name:         s.config.Name,
		Version:      version.Version,
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugw("WebSocket read ended", "error", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			log.Warnw("Malformed request", "error", err)
			var id struct {
				ID string `json:"id"`
			}
			_ = json.Unmarshal(data, &id)
			c.reply(Result{Type: TypeResult, ID: id.ID, HasError: true, Error: fmt.Sprintf("malformed request: %v", err)})
			continue
		}

		res := s.Dispatch(req)
		if req.Op == OpPlay && res.Handle != 0 {
			c.own(res.Handle)
		}
		if req.Op == OpDeleteState {
			c.disown(req.Handle)
		}
		c.reply(res)
	}
}

// writer drains the send queue of c until it is closed
func (s *Server) writer(c *conn, log *zap.SugaredLogger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteJSON(msg); err != nil {
				log.Debugw("Write failed", "error", err)
				c.ws.Close()
				drain(c.send)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.ws.Close()
				drain(c.send)
				return
			}
		}
	}
}

func drain(ch <-chan any) {
	for range ch {
	}
}

// Dispatch runs one request against the engine
func (s *Server) Dispatch(req Request) Result {
	res := Result{Type: TypeResult, ID: req.ID, Handle: req.Handle}

	op, err := ParseOp(string(req.Op))
	if err != nil {
		res.HasError = true
		res.Error = err.Error()
		return res
	}
	requests.WithLabelValues(string(op)).Inc()

	switch op {
	case OpPlay:
		res.Handle = s.engine.Play(req.Handle, req.Backend)
	case OpPause:
		res.Handle = s.engine.Pause(req.Handle)
	case OpUninitialize:
		res.Handle = s.engine.Uninitialize(req.Handle)
	case OpDeleteState:
		s.engine.Delete(req.Handle)
		res.Handle = 0
		return res
	}

	res.Error = s.engine.Error(res.Handle)
	res.HasError = res.Error != ""
	if info, ok := s.engine.Info(res.Handle); ok {
		res.State = info.State.String()
	}
	return res
}

// broadcast forwards an engine event to every connection
func (s *Server) broadcast(ev session.StateChanged) {
	msg := StateEvent{Type: TypeState, Event: ev}

	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	for _, c := range s.conns {
		c.notify(msg)
	}
}

// release deletes the sessions a closed connection left behind
func (s *Server) release(c *conn, log *zap.SugaredLogger) {
	c.mu.Lock()
	owned := c.owned
	c.owned = nil
	c.mu.Unlock()

	for h := range owned {
		if _, live := s.engine.Info(h); live {
			log.Infow("Deleting session left by host", "handle", h)
			s.engine.Delete(h)
		}
	}
}

// notify queues a state event without blocking; a full queue drops it.
// Callers hold connsMu, so send is still open.
func (c *conn) notify(msg StateEvent) {
	select {
	case c.send <- msg:
	default:
		droppedMessages.Inc()
	}
}

// reply queues a message the host is waiting for. It blocks while the queue
// is full; the writer keeps draining until send is closed. Only the
// connection's read loop calls it.
func (c *conn) reply(msg any) {
	c.send <- msg
}

func (c *conn) own(h session.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owned != nil {
		c.owned[h] = struct{}{}
	}
}

func (c *conn) disown(h session.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.owned, h)
}
