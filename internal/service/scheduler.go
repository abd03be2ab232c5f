package service

import (
	"context"
	"fmt"
	"time"

	"telemetry_relay/internal/logger"
	"telemetry_relay/internal/metrics"
	"telemetry_relay/internal/models"
	"telemetry_relay/internal/pin"
	"telemetry_relay/internal/plugin/fermentation"
	"telemetry_relay/internal/repository"
	"telemetry_relay/internal/session"
	"telemetry_relay/internal/target"
)

const (
	// DefaultTick is the scheduler resolution.
	DefaultTick = time.Second

	// Readings of devices offline for this long are no longer reported.
	reportOfflineCutoff = 7 * time.Minute

	summaryInterval = time.Minute
)

// SchedulerService sends periodic read commands to hardware and pushes
// plugin-derived readings to apps.
type SchedulerService struct {
	sessions    *session.Registry
	readingRepo repository.ReadingRepo
	metrics     *metrics.Relay
	log         *logger.Logger

	// reports whether a pin is served by the device plugin instead of hardware
	reserved func(t pin.Type, p int) bool
	now      func() time.Time

	// summary counters, owned by the Run goroutine
	lastSummary   time.Time
	ticks         int
	tickedWidgets int
	pluginReads   int
	busy          time.Duration
}

func NewSchedulerService(sessions *session.Registry, readingRepo repository.ReadingRepo, m *metrics.Relay, log *logger.Logger) *SchedulerService {
	if log == nil {
		log = logger.Nop()
	}
	return &SchedulerService{
		sessions:    sessions,
		readingRepo: readingRepo,
		metrics:     m,
		log:         log,
		reserved:    fermentation.IsReservedByApp,
		now:         time.Now,
	}
}

// Run ticks at the given interval until ctx is canceled.
func (s *SchedulerService) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = DefaultTick
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs both passes once.
func (s *SchedulerService) Tick(ctx context.Context) {
	now := s.now()
	started := time.Now()

	hw := s.dispatchReadCommands(now)
	plugin := s.dispatchPluginReadings(ctx, now)

	took := time.Since(started)
	s.metrics.RecordTicked(metrics.PassHardware, hw)
	s.metrics.RecordTicked(metrics.PassPlugin, plugin)
	s.metrics.RecordTick(took.Seconds())

	s.tickedWidgets += hw
	s.pluginReads += plugin
	s.busy += took
	s.ticks++
	if s.lastSummary.IsZero() {
		s.lastSummary = now
	}
	if now.Sub(s.lastSummary) >= summaryInterval {
		s.logSummary()
		s.lastSummary = now
	}
}

// logSummary reports the counters gathered since the previous summary and resets them.
func (s *SchedulerService) logSummary() {
	s.log.Infow("reading_widgets_summary",
		"ticks", s.ticks,
		"ticked", s.tickedWidgets,
		"per_tick", s.tickedWidgets/s.ticks,
		"plugin", s.pluginReads,
		"plugin_per_tick", s.pluginReads/s.ticks,
		"busy_ms", s.busy.Milliseconds(),
	)
	s.ticks, s.tickedWidgets, s.pluginReads, s.busy = 0, 0, 0, 0
}

// guard recovers a panic of one unit of work so the rest of the tick proceeds.
func (s *SchedulerService) guard(event string, fields []any, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw(event, append(fields, "panic", fmt.Sprint(r))...)
		}
	}()
	fn()
}

// ---- pass A: read commands to hardware ----

func (s *SchedulerService) dispatchReadCommands(now time.Time) int {
	total := 0
	s.sessions.Range(func(sess *session.Session) bool {
		if !sess.IsHardwareConnected() {
			return true
		}
		s.guard("read_commands_failed", []any{"user_id", sess.UserID}, func() {
			total += s.readCommandsForSession(sess, now)
		})
		return true
	})
	return total
}

func (s *SchedulerService) readCommandsForSession(sess *session.Session, now time.Time) int {
	n := 0
	conns := sess.HardwareConns()
	for _, dash := range sess.Profile.Dashboards() {
		if !dash.Active {
			continue
		}
		for _, c := range conns {
			if c.DashID() != dash.ID {
				continue
			}
			deviceID := c.DeviceID()
			for _, w := range dash.Widgets {
				switch w := w.(type) {
				case *models.ReadingWidget:
					n += s.readWidget(c, dash, w, deviceID, now)
				case *models.DeviceTiles:
					n += s.readTiles(c, w, deviceID, now)
				}
			}
			if err := c.Flush(); err != nil {
				s.log.Debugw("hardware_flush_failed", "user_id", sess.UserID, "dash_id", dash.ID, "device_id", deviceID, "err", err)
			}
		}
	}
	return n
}

func (s *SchedulerService) readWidget(c session.HardwareConn, dash *models.Dashboard, w *models.ReadingWidget, deviceID int, now time.Time) int {
	if !w.IsValid() || s.reserved(w.PinType, w.Pin) || !c.IsWritable() {
		return 0
	}
	if !target.Selects(dash, w.TargetID, deviceID) || !w.IsDue(now) {
		return 0
	}
	if !c.Write(readCommand(w.PinType, w.Pin)) {
		return 0
	}
	return 1
}

func (s *SchedulerService) readTiles(c session.HardwareConn, tiles *models.DeviceTiles, deviceID int, now time.Time) int {
	n := 0
	for _, tile := range tiles.Tiles {
		if tile.DeviceID != deviceID {
			continue
		}
		if ds := tile.DataStream; ds != nil && s.reserved(ds.PinType, ds.Pin) {
			continue
		}
		if !tile.IsDue(now) {
			continue
		}
		tpl := tiles.TemplateByID(tile.TemplateID)
		if tpl == nil {
			continue
		}
		for _, w := range tpl.Widgets {
			// a full connection drops the command
			if !w.IsValid() || !c.IsWritable() {
				continue
			}
			if c.Write(readCommand(w.PinType, w.Pin)) {
				n++
			}
		}
	}
	return n
}

func readCommand(t pin.Type, p int) models.Message {
	return models.Message{
		Command: models.CommandHardware,
		ID:      models.ReadingMsgID,
		Body:    pin.MakeReadingCommand(t, p),
	}
}

// ---- pass B: plugin readings to apps ----

func (s *SchedulerService) dispatchPluginReadings(ctx context.Context, now time.Time) int {
	total := 0
	s.sessions.Range(func(sess *session.Session) bool {
		s.guard("plugin_readings_failed", []any{"user_id", sess.UserID}, func() {
			total += s.pluginReadingsForSession(ctx, sess, now)
		})
		return true
	})
	return total
}

func (s *SchedulerService) pluginReadingsForSession(ctx context.Context, sess *session.Session, now time.Time) int {
	n := 0
	for _, dash := range sess.Profile.Dashboards() {
		if !dash.Active {
			continue
		}
		for _, w := range dash.Widgets {
			switch w := w.(type) {
			case *models.ReadingWidget:
				if s.reserved(w.PinType, w.Pin) && w.IsDue(now) {
					n += s.pullPlugin(ctx, sess, dash, w.PinType, w.Pin, w.TargetID, now)
				}
			case *models.DeviceTiles:
				n += s.pluginTiles(ctx, sess, dash, w, now)
			}
		}
	}
	return n
}

func (s *SchedulerService) pluginTiles(ctx context.Context, sess *session.Session, dash *models.Dashboard, tiles *models.DeviceTiles, now time.Time) int {
	n := 0
	for _, tile := range tiles.Tiles {
		ds := tile.DataStream
		if ds == nil || !s.reserved(ds.PinType, ds.Pin) || !tile.IsDuePlugin(now) {
			continue
		}
		n += s.pullPlugin(ctx, sess, dash, ds.PinType, ds.Pin, tile.DeviceID, now)
		tpl := tiles.TemplateByID(tile.TemplateID)
		if tpl == nil {
			continue
		}
		for _, w := range tpl.Widgets {
			if w.IsValid() {
				n += s.pullPlugin(ctx, sess, dash, w.PinType, w.Pin, tile.DeviceID, now)
			}
		}
	}
	return n
}

// pullPlugin reads one plugin pin of every device of the target and fans the value out.
func (s *SchedulerService) pullPlugin(ctx context.Context, sess *session.Session, dash *models.Dashboard, t pin.Type, p, targetID int, now time.Time) int {
	n := 0
	for _, deviceID := range target.Resolve(dash, targetID) {
		s.guard("plugin_pin_failed", []any{"user_id", sess.UserID, "dash_id", dash.ID, "device_id", deviceID, "pin", p}, func() {
			dev := dash.DeviceByID(deviceID)
			if dev == nil || dev.Plaato == nil {
				return
			}
			value, ok := dev.Plaato.Pull(p)
			if !ok {
				return
			}

			if !dev.IsOfflineFor(reportOfflineCutoff, now) {
				err := s.readingRepo.Process(ctx, models.Reading{
					UserID:   sess.UserID,
					DashID:   dash.ID,
					DeviceID: deviceID,
					PinType:  t,
					Pin:      p,
					Value:    value,
					At:       now,
				})
				if err != nil {
					s.log.Warnw("plugin_reading_report_failed", "user_id", sess.UserID, "err", err)
				}
			}
			dash.Update(deviceID, t, p, value, now)

			body := pin.MakeHardwareBody(t, p, value)
			if err := sess.SendToApps(models.CommandHardware, models.ReadingMsgID, dash.ID, deviceID, body); err != nil {
				s.log.Debugw("plugin_reading_send_failed", "user_id", sess.UserID, "err", err)
			}
			n++
		})
	}
	return n
}
