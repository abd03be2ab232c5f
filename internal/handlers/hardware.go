package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"telemetry_relay/internal/models"
	"telemetry_relay/internal/service"
	"telemetry_relay/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// hardwareHighWater is how many frames may wait for a flush before a device counts as not writable.
const hardwareHighWater = 64

const heartbeatPrefix = "h-beat"

var errBadFrame = errors.New("bad frame")

// formatFrame renders a message as "<command> <id> <body>".
func formatFrame(m models.Message) string {
	s := string(m.Command) + " " + strconv.Itoa(m.ID)
	if m.Body != "" {
		s += " " + m.Body
	}
	return s
}

// parseFrame is the inverse of formatFrame.
func parseFrame(s string) (models.Message, error) {
	parts := strings.SplitN(strings.TrimSpace(s), " ", 3)
	if len(parts) < 2 || parts[0] == "" {
		return models.Message{}, fmt.Errorf("%w: %q", errBadFrame, s)
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return models.Message{}, fmt.Errorf("%w: message id %q", errBadFrame, parts[1])
	}
	m := models.Message{Command: models.Command(parts[0]), ID: id}
	if len(parts) == 3 {
		m.Body = parts[2]
	}
	return m, nil
}

// hwConn buffers frames for one device and writes them on Flush. It implements session.HardwareConn.
type hwConn struct {
	conn     *websocket.Conn
	dashID   int
	deviceID int

	mu      sync.Mutex
	pending []models.Message
	closed  bool
}

var _ session.HardwareConn = (*hwConn)(nil)

func newHWConn(conn *websocket.Conn, dashID, deviceID int) *hwConn {
	return &hwConn{conn: conn, dashID: dashID, deviceID: deviceID}
}

func (h *hwConn) DashID() int   { return h.dashID }
func (h *hwConn) DeviceID() int { return h.deviceID }

func (h *hwConn) IsWritable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed && len(h.pending) < hardwareHighWater
}

func (h *hwConn) Write(m models.Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || len(h.pending) >= hardwareHighWater {
		return false
	}
	h.pending = append(h.pending, m)
	return true
}

func (h *hwConn) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	for i, m := range h.pending {
		_ = h.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := h.conn.WriteMessage(websocket.TextMessage, []byte(formatFrame(m))); err != nil {
			h.pending = h.pending[i+1:]
			return err
		}
	}
	h.pending = h.pending[:0]
	return nil
}

// send writes one message immediately.
func (h *hwConn) send(m models.Message) error {
	if !h.Write(m) {
		return fmt.Errorf("device %d-%d is not writable", h.dashID, h.deviceID)
	}
	return h.Flush()
}

func (h *hwConn) Close() error {
	h.mu.Lock()
	h.closed = true
	h.pending = nil
	h.mu.Unlock()
	return h.conn.Close()
}

// @Summary      Hardware connection
// @Description  Upgrades to a websocket for a device authenticated by its token. Frames are "<command> <id> <body>".
// @Tags         realtime
// @Param        token  query  string  true  "Device token"
// @Failure      401    {object}  map[string]string
// @Router       /hardware [get]
func (h *Handler) hardwareConnect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	profile, dashID, deviceID, err := h.services.Profiles.ByToken(token)
	if err != nil {
		h.logAndJSONError(c, http.StatusUnauthorized, "invalid device token", "hardware_login_failed", err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	hw := newHWConn(conn, dashID, deviceID)
	conn.SetReadLimit(maxMsgSize)

	ctx := c.Request.Context()
	sess := h.services.Sessions.AddHardware(profile, hw)
	defer func() {
		_ = hw.Close()
		sess.RemoveHardware(hw)
		h.services.Lifecycle.OnDisconnect(sess, dashID, deviceID)
		h.services.Sessions.ReleaseIfEmpty(sess)
	}()

	if err := h.services.Lifecycle.OnLogin(ctx, sess, dashID, deviceID); err != nil {
		if h.log != nil {
			h.log.Warnw("hardware_login_rejected", "user_id", sess.UserID, "dash_id", dashID, "device_id", deviceID, "err", err)
		}
		return
	}

	heartbeat := 0
	if _, dev := profile.DeviceByID(dashID, deviceID); dev != nil {
		heartbeat = dev.Heartbeat()
	}
	idle := service.IdleTimeout(heartbeat)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(idle))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if h.log != nil {
				h.log.Infow("hardware_read_closed", "user_id", sess.UserID, "dash_id", dashID, "device_id", deviceID, "err", err)
			}
			return
		}
		if next, err := h.handleHardwareFrame(ctx, sess, hw, string(data)); err != nil {
			if h.log != nil {
				h.log.Infow("hardware_frame_failed", "user_id", sess.UserID, "dash_id", dashID, "device_id", deviceID, "err", err)
			}
		} else if next > 0 {
			idle = next
		}
	}
}

// handleHardwareFrame processes one device frame. A positive duration is the new idle timeout.
func (h *Handler) handleHardwareFrame(ctx context.Context, sess *session.Session, hw *hwConn, frame string) (time.Duration, error) {
	msg, err := parseFrame(frame)
	if err != nil {
		if werr := hw.send(models.Message{Command: models.CommandError, Body: err.Error()}); werr != nil && h.log != nil {
			h.log.Debugw("hardware_reply_failed", "err", werr)
		}
		return 0, err
	}

	var idle time.Duration
	switch msg.Command {
	case models.CommandHardware:
		err = h.services.Pins.HardwareWrite(ctx, sess, hw.dashID, hw.deviceID, msg.Body)
	case models.CommandInternal:
		idle, err = h.internal(sess, hw, msg.Body)
	case models.CommandPing:
		// echoed below; reading it already refreshed the deadline
	default:
		err = fmt.Errorf("%w: unknown command %q", errBadFrame, msg.Command)
	}

	reply := models.Message{Command: msg.Command, ID: msg.ID}
	if err != nil {
		reply = models.Message{Command: models.CommandError, ID: msg.ID, Body: err.Error()}
	}
	if msg.Command != models.CommandHardware || err != nil {
		if werr := hw.send(reply); werr != nil && h.log != nil {
			h.log.Debugw("hardware_reply_failed", "err", werr)
		}
	}
	return idle, err
}

// internal handles device settings such as "h-beat 5".
func (h *Handler) internal(sess *session.Session, hw *hwConn, body string) (time.Duration, error) {
	fields := strings.Fields(body)
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i] != heartbeatPrefix {
			continue
		}
		seconds, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return 0, fmt.Errorf("%w: heartbeat %q", errBadFrame, fields[i+1])
		}
		return h.services.Lifecycle.SetHeartbeat(sess, hw.dashID, hw.deviceID, seconds)
	}
	return 0, nil
}
