package ws

import "time"

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	MessageFleetUpdated MessageType = "fleet.updated"
	MessageFleetCleared MessageType = "fleet.cleared"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// FleetUpdatedData is the payload for fleet.updated messages. The client
// refetches the device list when it sees one; the rows themselves are not
// pushed over the socket.
type FleetUpdatedData struct {
	BatchID    string    `json:"batch_id"`
	Devices    int       `json:"devices"`
	ReceivedAt time.Time `json:"received_at"`
}

// FleetClearedData is the payload for fleet.cleared messages.
type FleetClearedData struct {
	ClearedAt time.Time `json:"cleared_at"`
}
