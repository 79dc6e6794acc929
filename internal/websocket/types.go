package websocket

import (
	"time"

	"github.com/coder/websocket"
)

// Message types pushed to browsers.
const (
	TypeRegenerated = "regenerated"
	TypeError       = "error"
)

// Client represents a WebSocket client connection
type Client struct {
	conn         *websocket.Conn
	send         chan []byte
	remoteAddr   string
	lastActivity time.Time
}

// ReloadMessage is the JSON payload broadcast after every regenerate run.
type ReloadMessage struct {
	Type      string    `json:"type"`
	Run       uint64    `json:"run,omitempty"`
	Documents int       `json:"documents,omitempty"`
	Error     string    `json:"error,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Path      string    `json:"path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OriginValidator decides whether a browser origin may connect.
type OriginValidator interface {
	IsAllowedOrigin(origin string) bool
}

// LocalOrigins accepts loopback origins on any port, plus an explicit list.
type LocalOrigins struct {
	Allowed []string
}
