package model

import "encoding/json"

// WebSocket message types
const (
	WSMessageTypeStatus = "status"
	WSMessageTypePing   = "ping"
	WSMessageTypePong   = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStatusMessage wraps one status snapshot pushed to subscribers. The
// snapshot is forwarded as stored; intermediate steps may be coalesced.
type WSStatusMessage struct {
	Type   string          `json:"type"`
	UserID string          `json:"userId"`
	Status json.RawMessage `json:"status"`
}
