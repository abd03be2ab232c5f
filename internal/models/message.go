package models

// Command names a message sent to app or hardware connections.
type Command string

const (
	CommandHardware          Command = "hardware"
	CommandDeviceOffline     Command = "device_offline"
	CommandHardwareConnected Command = "hardware_connected"
	CommandError             Command = "error"
	CommandInternal          Command = "internal"
	CommandPing              Command = "ping"
)

// ReadingMsgID tags messages produced by periodic reading widgets.
const ReadingMsgID = 7777

// Message is a framed command with a body.
type Message struct {
	Command Command `json:"type"`
	ID      int     `json:"id"`
	Body    string  `json:"body"`
}
