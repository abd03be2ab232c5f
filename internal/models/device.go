package models

import (
	"encoding/json"
	"sync"
	"time"

	"telemetry_relay/internal/plugin/fermentation"
)

// Status is the connectivity state of a device.
type Status string

const (
	StatusOnline         Status = "ONLINE"
	StatusPendingOffline Status = "PENDING_OFFLINE"
	StatusOffline        Status = "OFFLINE"
)

// DefaultHeartbeat is the heartbeat interval (seconds) assumed when hardware does not declare one.
const DefaultHeartbeat = 10

// Device is one physical unit. Connectivity fields are only mutated through methods.
type Device struct {
	ID        int                     `json:"id"`
	Name      string                  `json:"name"`
	Token     string                  `json:"token"`
	BoardType string                  `json:"board_type,omitempty"`
	Plaato    *fermentation.Processor `json:"plaato,omitempty"`

	mu             sync.RWMutex
	status         Status
	connectSeq     uint64
	connectTime    time.Time
	disconnectTime time.Time
	heartbeat      int
}

// DeviceState is a point-in-time copy of the connectivity fields.
type DeviceState struct {
	Status         Status    `json:"status"`
	ConnectTime    time.Time `json:"connect_time,omitempty"`
	DisconnectTime time.Time `json:"disconnect_time,omitempty"`
	Heartbeat      int       `json:"heartbeat_interval"`
}

// NewDevice creates an offline device with its own processor.
func NewDevice(id int, name, token string) *Device {
	return &Device{
		ID:     id,
		Name:   name,
		Token:  token,
		Plaato: fermentation.New(),
		status: StatusOffline,
	}
}

// Connected marks the device online for the login with sequence seq.
func (d *Device) Connected(seq uint64, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = StatusOnline
	d.connectSeq = seq
	d.connectTime = now
}

// MarkPendingOffline moves an online device into the debounce state.
func (d *Device) MarkPendingOffline() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != StatusOnline {
		return false
	}
	d.status = StatusPendingOffline
	return true
}

// Disconnected marks the device offline.
func (d *Device) Disconnected(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = StatusOffline
	d.disconnectTime = now
}

// ReconnectedSince reports whether a login happened after the disconnect captured as seq.
func (d *Device) ReconnectedSince(seq uint64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connectSeq > seq
}

// Restore puts the device back online after a superseded debounce found it still connected.
func (d *Device) Restore() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == StatusPendingOffline {
		d.status = StatusOnline
	}
}

func (d *Device) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.status == "" {
		return StatusOffline
	}
	return d.status
}

func (d *Device) DisconnectTime() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.disconnectTime
}

// Heartbeat returns the declared heartbeat interval in seconds, or 0 if undeclared.
func (d *Device) Heartbeat() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.heartbeat
}

func (d *Device) SetHeartbeat(seconds int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.heartbeat = seconds
}

// IsOfflineFor reports whether the device has been OFFLINE for at least dur.
func (d *Device) IsOfflineFor(dur time.Duration, now time.Time) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status == StatusOffline && !d.disconnectTime.IsZero() && now.Sub(d.disconnectTime) >= dur
}

// State returns a copy of the connectivity fields.
func (d *Device) State() DeviceState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st := DeviceState{
		Status:         d.status,
		ConnectTime:    d.connectTime,
		DisconnectTime: d.disconnectTime,
		Heartbeat:      d.heartbeat,
	}
	if st.Status == "" {
		st.Status = StatusOffline
	}
	return st
}

// adopt carries runtime state over from the device this one replaces.
func (d *Device) adopt(old *Device) {
	old.mu.RLock()
	defer old.mu.RUnlock()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = old.status
	d.connectSeq = old.connectSeq
	d.connectTime = old.connectTime
	d.disconnectTime = old.disconnectTime
	d.heartbeat = old.heartbeat
	if old.Plaato != nil {
		d.Plaato = old.Plaato
	}
	if d.Token == "" {
		d.Token = old.Token
	}
}

type deviceJSON struct {
	ID        int                     `json:"id"`
	Name      string                  `json:"name"`
	Token     string                  `json:"token"`
	BoardType string                  `json:"board_type,omitempty"`
	Plaato    *fermentation.Processor `json:"plaato,omitempty"`
	DeviceState
}

func (d *Device) MarshalJSON() ([]byte, error) {
	return json.Marshal(deviceJSON{
		ID:          d.ID,
		Name:        d.Name,
		Token:       d.Token,
		BoardType:   d.BoardType,
		Plaato:      d.Plaato,
		DeviceState: d.State(),
	})
}

// UnmarshalJSON restores a device. Loaded devices always start OFFLINE.
func (d *Device) UnmarshalJSON(b []byte) error {
	var v deviceJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	d.ID, d.Name, d.Token, d.BoardType = v.ID, v.Name, v.Token, v.BoardType
	d.Plaato = v.Plaato
	if d.Plaato == nil {
		d.Plaato = fermentation.New()
	}
	d.mu.Lock()
	d.status = StatusOffline
	d.disconnectTime = v.DisconnectTime
	d.heartbeat = v.Heartbeat
	d.mu.Unlock()
	return nil
}
