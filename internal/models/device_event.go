package models

import "time"

// Device event types.
const (
	EventOnline      = "ONLINE"
	EventOffline     = "OFFLINE"
	EventPush        = "PUSH"
	EventHeartbeat   = "HEARTBEAT"
	EventPluginError = "PLUGIN_ERROR"
)

// DeviceEvent is a single connectivity log entry.
type DeviceEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"` // ONLINE | OFFLINE | PUSH | HEARTBEAT | PLUGIN_ERROR
	UserID      int       `json:"user_id"`
	DashID      int       `json:"dash_id"`
	DeviceID    int       `json:"device_id"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
