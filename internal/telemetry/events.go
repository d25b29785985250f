package telemetry

import "time"

// Event topics published by the telemetry module.
const (
	// TopicBatchReceived fires after a collector batch has been cached and
	// persisted. Payload: BatchEvent.
	TopicBatchReceived = "telemetry.batch.received"

	// TopicStoreCleared fires after the snapshot cache has been emptied.
	// Payload: ClearedEvent.
	TopicStoreCleared = "telemetry.store.cleared"
)

// BatchEvent is the payload for TopicBatchReceived.
type BatchEvent struct {
	BatchID    string    `json:"batch_id"`
	Devices    int       `json:"devices"`
	ReceivedAt time.Time `json:"received_at"`
}

// ClearedEvent is the payload for TopicStoreCleared.
type ClearedEvent struct {
	ClearedAt time.Time `json:"cleared_at"`
}
