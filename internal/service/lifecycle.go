package service

import (
	"context"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"telemetry_relay/internal/logger"
	"telemetry_relay/internal/metrics"
	"telemetry_relay/internal/models"
	"telemetry_relay/internal/notify"
	"telemetry_relay/internal/publisher"
	"telemetry_relay/internal/repository"
	"telemetry_relay/internal/session"
)

const (
	// DefaultOfflineDelay debounces a disconnect of a device with the default heartbeat.
	DefaultOfflineDelay = 2 * time.Second
	// DefaultFastOfflineDelay applies to devices that declared their own heartbeat.
	DefaultFastOfflineDelay = 50 * time.Millisecond

	idleFactor    = 2.3
	notifyTimeout = 10 * time.Second

	// PushTemplate is the offline push body; DeviceNamePlaceholder is replaced with the device name.
	PushTemplate          = "Your {DEVICE_NAME} went offline."
	DeviceNamePlaceholder = "{DEVICE_NAME}"
)

// IdleTimeout is how long a hardware connection may stay silent before it is closed.
func IdleTimeout(heartbeatSeconds int) time.Duration {
	if heartbeatSeconds <= 0 {
		heartbeatSeconds = models.DefaultHeartbeat
	}
	ms := math.Round(float64(heartbeatSeconds) * idleFactor * 1000)
	return time.Duration(ms) * time.Millisecond
}

// PushMessage renders the offline push for a device.
func PushMessage(deviceName string) string {
	if deviceName == "" {
		deviceName = "device"
	}
	return strings.ReplaceAll(PushTemplate, DeviceNamePlaceholder, deviceName)
}

type LifecycleService struct {
	sessions  *session.Registry
	eventRepo repository.EventRepo
	publisher StatusPublisher
	pusher    Pusher
	metrics   *metrics.Relay
	log       *logger.Logger

	offlineDelay     time.Duration
	fastOfflineDelay time.Duration

	// strictly increasing across all logins of the process
	seq atomic.Uint64

	now       func() time.Time
	afterFunc func(d time.Duration, f func())
}

func NewLifecycleService(d Deps) *LifecycleService {
	l := &LifecycleService{
		sessions:         d.Sessions,
		eventRepo:        d.Repos.EventRepo,
		publisher:        d.Publisher,
		pusher:           d.Pusher,
		metrics:          d.Metrics,
		log:              d.Log,
		offlineDelay:     d.OfflineDelay,
		fastOfflineDelay: d.FastOfflineDelay,
		now:              time.Now,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
	if l.pusher == nil {
		l.pusher = notify.Nop{}
	}
	if l.publisher == nil {
		l.publisher = publisher.Nop{}
	}
	if l.log == nil {
		l.log = logger.Nop()
	}
	if l.offlineDelay <= 0 {
		l.offlineDelay = DefaultOfflineDelay
	}
	if l.fastOfflineDelay <= 0 {
		l.fastOfflineDelay = DefaultFastOfflineDelay
	}
	return l
}

// OnLogin marks the device online and tells the user's apps about it.
func (l *LifecycleService) OnLogin(ctx context.Context, s *session.Session, dashID, deviceID int) error {
	_, dev := s.Profile.DeviceByID(dashID, deviceID)
	if dev == nil {
		return ErrDeviceNotFound
	}

	now := l.now()
	dev.Connected(l.seq.Add(1), now)
	l.metrics.RecordStatus(string(models.StatusOnline))
	l.record(ctx, models.DeviceEvent{
		OccurredAt:  now,
		Type:        models.EventOnline,
		UserID:      s.UserID,
		DashID:      dashID,
		DeviceID:    deviceID,
		Description: "device connected",
	})

	if err := s.SendConnectedToApps(dashID, deviceID); err != nil {
		l.log.Debugw("hardware_connected_send_failed", "user_id", s.UserID, "dash_id", dashID, "device_id", deviceID, "err", err)
	}
	return nil
}

// OnDisconnect starts the offline debounce for a closed or idle hardware connection.
// The decision is taken when the timer fires; later logins supersede it.
func (l *LifecycleService) OnDisconnect(s *session.Session, dashID, deviceID int) {
	seq := l.seq.Load()
	_, dev := s.Profile.DeviceByID(dashID, deviceID)
	if dev == nil || dev.Status() == models.StatusOffline {
		return
	}
	dev.MarkPendingOffline()

	delay := l.offlineDelay
	if hb := dev.Heartbeat(); hb != 0 && hb != models.DefaultHeartbeat {
		delay = l.fastOfflineDelay
	}

	l.afterFunc(delay, func() {
		l.confirmOffline(s, dashID, deviceID, seq)
	})
}

// SetHeartbeat stores the heartbeat declared by hardware and returns the new idle timeout.
func (l *LifecycleService) SetHeartbeat(s *session.Session, dashID, deviceID, seconds int) (time.Duration, error) {
	_, dev := s.Profile.DeviceByID(dashID, deviceID)
	if dev == nil {
		return 0, ErrDeviceNotFound
	}
	if seconds <= 0 {
		return 0, ErrInvalidHeartbeat
	}
	dev.SetHeartbeat(seconds)
	return IdleTimeout(seconds), nil
}

func (l *LifecycleService) confirmOffline(s *session.Session, dashID, deviceID int, seq uint64) {
	dash, dev := s.Profile.DeviceByID(dashID, deviceID)
	if dev == nil {
		return
	}
	if dev.ReconnectedSince(seq) {
		l.log.Debugw("offline_skipped_relogin", "user_id", s.UserID, "dash_id", dashID, "device_id", deviceID)
		return
	}

	// the session may have been released and recreated since the disconnect
	current := s
	if live, ok := l.sessions.Get(s.UserID); ok {
		current = live
	}
	if current.IsHardwareConnectedTo(dashID, deviceID) {
		dev.Restore()
		l.log.Debugw("offline_skipped_still_connected", "user_id", s.UserID, "dash_id", dashID, "device_id", deviceID)
		return
	}

	now := l.now()
	dev.Disconnected(now)
	l.metrics.RecordStatus(string(models.StatusOffline))

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	l.record(ctx, models.DeviceEvent{
		OccurredAt:  now,
		Type:        models.EventOffline,
		UserID:      s.UserID,
		DashID:      dashID,
		DeviceID:    deviceID,
		Description: "device went offline",
	})

	if !dash.Active {
		return
	}

	if n := dash.NotificationWidget(); n != nil && n.NotifyWhenOffline {
		l.schedulePush(s, dashID, dev, n)
	} else if !dash.NotificationsOff {
		if err := current.SendOfflineMessageToApps(dashID, deviceID); err != nil {
			l.log.Debugw("offline_message_send_failed", "user_id", s.UserID, "dash_id", dashID, "device_id", deviceID, "err", err)
		}
	}
}

func (l *LifecycleService) schedulePush(s *session.Session, dashID int, dev *models.Device, n *models.Notification) {
	deviceID := dev.ID
	msg := PushMessage(dev.Name)
	ignore := n.IgnoreFor()
	if ignore <= 0 {
		l.push(s.UserID, dashID, deviceID, n.ChatIDs, msg)
		return
	}
	l.afterFunc(ignore, func() {
		// a profile save during the ignore period swaps in new device objects
		profile := s.Profile
		if live, ok := l.sessions.Get(s.UserID); ok {
			profile = live.Profile
		}
		_, current := profile.DeviceByID(dashID, deviceID)
		if current == nil || !current.IsOfflineFor(ignore, l.now()) {
			l.metrics.RecordPush(metrics.PushIgnored)
			return
		}
		l.push(s.UserID, dashID, deviceID, n.ChatIDs, msg)
	})
}

func (l *LifecycleService) push(userID, dashID, deviceID int, chatIDs []int64, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := l.pusher.Push(ctx, chatIDs, msg); err != nil {
		l.metrics.RecordPush(metrics.PushFailed)
		l.log.Warnw("offline_push_failed", "user_id", userID, "dash_id", dashID, "device_id", deviceID, "err", err)
		return
	}
	l.metrics.RecordPush(metrics.PushSent)
	l.record(ctx, models.DeviceEvent{
		OccurredAt:  l.now(),
		Type:        models.EventPush,
		UserID:      userID,
		DashID:      dashID,
		DeviceID:    deviceID,
		Description: msg,
	})
}

// record stores a status event and streams it. Failures are logged only.
func (l *LifecycleService) record(ctx context.Context, e models.DeviceEvent) {
	if err := l.eventRepo.Append(ctx, e); err != nil {
		l.log.Errorw("device_event_append_failed", "type", e.Type, "err", err)
	}
	if err := l.publisher.PublishStatus(ctx, e); err != nil {
		l.log.Warnw("device_event_publish_failed", "type", e.Type, "err", err)
	}
}
