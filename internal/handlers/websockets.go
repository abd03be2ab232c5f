package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"telemetry_relay/internal/models"
	"telemetry_relay/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB
)

// App request types.
const (
	appRequestHardware = "hardware"
	appRequestSelect   = "select"
)

var errUnknownRequest = errors.New("unknown request type")

// Envelope used for WebSocket messages.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// appRequest is a command sent by an app over its websocket.
type appRequest struct {
	Type     string `json:"type"`
	DashID   int    `json:"dash_id"`
	DeviceID int    `json:"device_id"`
	WidgetID int    `json:"widget_id,omitempty"`
	Body     string `json:"body,omitempty"`
}

// Upgrader for HTTP -> WebSocket.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origins once app hosts are configurable
}

// appConn serializes writes to one app websocket. It implements session.AppConn.
type appConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

var _ session.AppConn = (*appConn)(nil)

func (a *appConn) Send(msg models.Message) error {
	return a.writeJSON(wsEnvelope{Type: string(msg.Command), Data: msg})
}

func (a *appConn) writeJSON(v any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return a.conn.WriteJSON(v)
}

func (a *appConn) ping() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return a.conn.WriteMessage(websocket.PingMessage, nil)
}

func (a *appConn) Close() error { return a.conn.Close() }

// @Summary      App connection
// @Description  Upgrades to a websocket. The server sends the profile first, then live device messages.
// @Tags         realtime
// @Router       /api/v1/ws [get]
// @Security     BearerAuth
func (h *Handler) appConnect(c *gin.Context) {
	uid, _ := userID(c)
	ctx := c.Request.Context()

	profile, err := h.services.Profiles.Get(ctx, uid)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load profile", "app_profile_failed", err, "user_id", uid)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	app := &appConn{conn: conn}
	defer func() { _ = app.Close() }()

	// Configure read limits and pong handler to extend read deadline.
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	sess := h.services.Sessions.AddApp(profile, app)
	defer func() {
		sess.RemoveApp(app)
		h.services.Sessions.ReleaseIfEmpty(sess)
	}()

	if err := app.writeJSON(wsEnvelope{Type: "profile", Data: profile}); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	done := make(chan struct{})
	go h.startAppReader(ctx, sess, app, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := app.ping(); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		}
	}
}

// startAppReader handles app requests until the connection closes.
func (h *Handler) startAppReader(ctx context.Context, sess *session.Session, app *appConn, done chan<- struct{}) {
	defer close(done)
	for {
		var req appRequest
		if err := app.conn.ReadJSON(&req); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "user_id", sess.UserID, "err", err)
			}
			return
		}
		if err := h.handleAppRequest(ctx, sess, req); err != nil {
			if h.log != nil {
				h.log.Infow("app_request_failed", "user_id", sess.UserID, "type", req.Type, "err", err)
			}
			_ = app.writeJSON(wsEnvelope{Type: string(models.CommandError), Error: err.Error()})
		}
	}
}

func (h *Handler) handleAppRequest(ctx context.Context, sess *session.Session, req appRequest) error {
	switch req.Type {
	case appRequestHardware:
		return h.services.Pins.AppWrite(ctx, sess, req.DashID, req.DeviceID, req.Body)
	case appRequestSelect:
		return h.services.Pins.Select(ctx, sess, req.DashID, req.WidgetID, req.DeviceID)
	default:
		return errUnknownRequest
	}
}
