package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeMessage represents one consumed broker message
	EventTypeMessage EventType = "message"
	// EventTypeReplacement represents replacement rules firing on a message
	EventTypeReplacement EventType = "replacement"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	MessageID string      `json:"message_id,omitempty"`
}

// MessageEvent describes a consumed broker message
type MessageEvent struct {
	EventID     string `json:"event_id"`
	Source      string `json:"source"`
	MessageID   string `json:"message_id"`
	BodyPreview string `json:"body_preview"`
	IsJSON      bool   `json:"is_json"`
	Redelivered bool   `json:"redelivered"`
	SizeBytes   int    `json:"size_bytes"`
}

// ReplacementEvent describes rules that fired while processing a message
type ReplacementEvent struct {
	EventID   string   `json:"event_id"`
	Source    string   `json:"source"`
	MessageID string   `json:"message_id"`
	Applied   []string `json:"applied"`
	Count     int      `json:"count"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status            string `json:"status"`
	Uptime            string `json:"uptime"`
	TotalMessages     int64  `json:"total_messages"`
	TotalReplacements int64  `json:"total_replacements"`
	ActiveRules       int    `json:"active_rules"`
	ConnectedClients  int    `json:"connected_clients"`
	MemoryUsage       string `json:"memory_usage"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter restricts delivered events to the named broker sources
type EventFilter struct {
	Sources []string `json:"sources,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}
