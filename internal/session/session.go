package session

import (
	"errors"
	"sync"

	"telemetry_relay/internal/models"
	"telemetry_relay/internal/pin"
)

var ErrSessionClosed = errors.New("session closed")

// HardwareConn is a live device connection bound to one dashboard device.
type HardwareConn interface {
	DashID() int
	DeviceID() int
	// IsWritable reports whether the outbound buffer has capacity.
	IsWritable() bool
	// Write buffers msg until the next Flush. It returns false if the message was dropped.
	Write(msg models.Message) bool
	Flush() error
	Close() error
}

// AppConn is a live app connection.
type AppConn interface {
	Send(msg models.Message) error
	Close() error
}

// Session aggregates the live connections of one user.
type Session struct {
	UserID  int
	Profile *models.Profile

	mu       sync.RWMutex
	closed   bool
	hardware []HardwareConn
	apps     []AppConn
}

func newSession(p *models.Profile) *Session {
	return &Session{UserID: p.UserID, Profile: p}
}

func (s *Session) addHardware(c HardwareConn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.hardware = append(s.hardware, c)
	return nil
}

func (s *Session) addApp(c AppConn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.apps = append(s.apps, c)
	return nil
}

// RemoveHardware detaches c. It reports whether c was attached.
func (s *Session) RemoveHardware(c HardwareConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.hardware {
		if h == c {
			s.hardware = append(s.hardware[:i:i], s.hardware[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveApp detaches c. It reports whether c was attached.
func (s *Session) RemoveApp(c AppConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.apps {
		if a == c {
			s.apps = append(s.apps[:i:i], s.apps[i+1:]...)
			return true
		}
	}
	return false
}

// HardwareConns returns a snapshot in attach order.
func (s *Session) HardwareConns() []HardwareConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HardwareConn, len(s.hardware))
	copy(out, s.hardware)
	return out
}

func (s *Session) appConns() []AppConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AppConn, len(s.apps))
	copy(out, s.apps)
	return out
}

func (s *Session) IsHardwareConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hardware) > 0
}

// IsHardwareConnectedTo reports whether a live connection exists for the device.
func (s *Session) IsHardwareConnectedTo(dashID, deviceID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.hardware {
		if h.DashID() == dashID && h.DeviceID() == deviceID {
			return true
		}
	}
	return false
}

func (s *Session) HasApps() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.apps) > 0
}

func (s *Session) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hardware) == 0 && len(s.apps) == 0
}

// SendToApps broadcasts a body addressed to one device to every app connection.
// Failed sends are collected and do not stop the broadcast.
func (s *Session) SendToApps(cmd models.Command, msgID, dashID, deviceID int, body string) error {
	return s.broadcast(models.Message{Command: cmd, ID: msgID, Body: pin.Prefix(dashID, deviceID, body)})
}

// SendOfflineMessageToApps tells the apps that a device went offline.
func (s *Session) SendOfflineMessageToApps(dashID, deviceID int) error {
	return s.broadcast(models.Message{Command: models.CommandDeviceOffline, Body: pin.DeviceKey(dashID, deviceID)})
}

// SendConnectedToApps tells the apps that a device logged in.
func (s *Session) SendConnectedToApps(dashID, deviceID int) error {
	return s.broadcast(models.Message{Command: models.CommandHardwareConnected, Body: pin.DeviceKey(dashID, deviceID)})
}

func (s *Session) broadcast(msg models.Message) error {
	var errs []error
	for _, a := range s.appConns() {
		if err := a.Send(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendToHardware writes msg to every connection of the device and flushes it.
// It returns how many connections accepted the message.
func (s *Session) SendToHardware(dashID, deviceID int, msg models.Message) int {
	sent := 0
	for _, h := range s.HardwareConns() {
		if h.DashID() != dashID || h.DeviceID() != deviceID {
			continue
		}
		if h.IsWritable() && h.Write(msg) {
			sent++
		}
		_ = h.Flush()
	}
	return sent
}
