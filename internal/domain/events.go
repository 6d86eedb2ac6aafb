package domain

// EventType identifies a lifecycle event delivered by the ingest platform.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"

	// EventDeleted only appears in the audit trail; it is never delivered
	// on a queue.
	EventDeleted EventType = "deleted"
)

// LifecycleEvent is the payload of the live_stream.connected and
// live_stream.disconnected queues. LiveInputID correlates to Stream.UID.
type LifecycleEvent struct {
	LiveInputID string `json:"live_input_id"`
}

// TranscodeCompleted is the payload of the transcode-completion queue,
// produced by the background video pipeline.
type TranscodeCompleted struct {
	BunnyID       string `json:"bunnyId"`
	VideoFilePath string `json:"videoFilePath"`
}
