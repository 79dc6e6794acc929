// Package websocket pushes regenerate notifications to browsers in dev mode.
//
// A single hub goroutine owns client registration and fan-out; each client
// has a buffered send channel drained by its own writer goroutine. Slow
// clients whose buffer fills up are dropped rather than blocking the hub.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	generrors "github.com/stdg/reqs-builder/internal/errors"
	"github.com/stdg/reqs-builder/internal/logging"
)

// Path is where the hub accepts connections.
const Path = "/ws"

const (
	sendBuffer   = 16
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// ReloadHub tracks connected browsers and broadcasts ReloadMessages.
type ReloadHub struct {
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *websocket.Conn

	originValidator OriginValidator
	logger          logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	hubDone      chan struct{}
}

// NewReloadHub creates a hub and starts its goroutine. A nil validator
// accepts loopback origins only.
func NewReloadHub(originValidator OriginValidator, logger logging.Logger) *ReloadHub {
	if originValidator == nil {
		originValidator = &LocalOrigins{}
	}
	if logger == nil {
		logger = logging.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	hub := &ReloadHub{
		clients:         make(map[*websocket.Conn]*Client),
		broadcast:       make(chan []byte, 64),
		register:        make(chan *Client, 16),
		unregister:      make(chan *websocket.Conn, 16),
		originValidator: originValidator,
		logger:          logger.WithComponent("reload"),
		ctx:             ctx,
		cancel:          cancel,
		hubDone:         make(chan struct{}),
	}

	go hub.runHub()
	return hub
}

// IsAllowedOrigin implements OriginValidator.
func (o *LocalOrigins) IsAllowedOrigin(origin string) bool {
	for _, allowed := range o.Allowed {
		if origin == allowed {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Handler returns a mux serving the hub at Path.
func (h *ReloadHub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, h.HandleWebSocket)
	return mux
}

// HandleWebSocket upgrades the request and registers the client.
func (h *ReloadHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	if origin != "" && !h.originValidator.IsAllowedOrigin(origin) {
		h.logger.Warn(r.Context(), nil, "Rejected websocket origin", "origin", origin, "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin was validated above.
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "Websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	client := &Client{
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		remoteAddr:   r.RemoteAddr,
		lastActivity: time.Now(),
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	// Browsers only listen; reading keeps control frames flowing and
	// notices disconnects.
	readCtx := conn.CloseRead(h.ctx)
	go h.writeToClient(readCtx, client)
}

func (h *ReloadHub) runHub() {
	defer close(h.hubDone)
	for {
		select {
		case client := <-h.register:
			h.clientsMutex.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(h.ctx, "Browser connected", "remote", client.remoteAddr, "clients", count)

		case conn := <-h.unregister:
			h.unregisterClient(conn)

		case message := <-h.broadcast:
			h.broadcastToClients(message)

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *ReloadHub) unregisterClient(conn *websocket.Conn) {
	h.clientsMutex.Lock()
	client, exists := h.clients[conn]
	if exists {
		delete(h.clients, conn)
		close(client.send)
	}
	h.clientsMutex.Unlock()
}

func (h *ReloadHub) broadcastToClients(message []byte) {
	h.clientsMutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.clientsMutex.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			h.logger.Warn(h.ctx, nil, "Dropping slow browser", "remote", client.remoteAddr)
			h.unregisterClient(client.conn)
			_ = client.conn.Close(websocket.StatusPolicyViolation, "too slow")
		}
	}
}

// writeToClient drains the client's send channel until it closes, the
// connection's read side fails, or the hub shuts down.
func (h *ReloadHub) writeToClient(readCtx context.Context, client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer func() {
		select {
		case h.unregister <- client.conn:
		case <-h.ctx.Done():
		}
		_ = client.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(readCtx, writeTimeout)
			err := client.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}
			client.lastActivity = time.Now()

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(readCtx, writeTimeout)
			err := client.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-readCtx.Done():
			return
		}
	}
}

// Broadcast queues msg for every connected browser. It never blocks; when
// the queue is full the message is dropped.
func (h *ReloadHub) Broadcast(msg ReloadMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(h.ctx, err, "Failed to encode reload message")
		return
	}

	if h.ctx.Err() != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn(h.ctx, nil, "Reload queue full, dropping message", "type", msg.Type)
	}
}

// NotifyRegenerated tells browsers a run finished and output changed.
func (h *ReloadHub) NotifyRegenerated(run uint64, documents int) {
	h.Broadcast(ReloadMessage{Type: TypeRegenerated, Run: run, Documents: documents})
}

// NotifyError implements errors.Notifier.
func (h *ReloadHub) NotifyError(_ context.Context, err error) error {
	msg := ReloadMessage{Type: TypeError, Error: err.Error()}

	var ge *generrors.GenError
	if errors.As(err, &ge) {
		msg.Kind = ge.Kind.String()
		msg.Path = ge.Path
	}
	h.Broadcast(msg)
	return nil
}

// ConnectedClients returns the number of connected browsers.
func (h *ReloadHub) ConnectedClients() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// ListenAndServe serves the hub on host:port until ctx is cancelled.
func (h *ReloadHub) ListenAndServe(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	h.logger.Info(ctx, "Reload notifier listening", "addr", addr, "path", Path)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Shutdown(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	}
}

// Shutdown closes every connection and stops the hub.
func (h *ReloadHub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.cancel()
		<-h.hubDone

		h.clientsMutex.Lock()
		for conn, client := range h.clients {
			close(client.send)
			_ = conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
		h.clients = make(map[*websocket.Conn]*Client)
		h.clientsMutex.Unlock()

		h.logger.Debug(ctx, "Reload hub shut down")
	})
	return nil
}

var _ generrors.Notifier = (*ReloadHub)(nil)
