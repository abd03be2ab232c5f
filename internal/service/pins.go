package service

import (
	"context"
	"fmt"
	"time"

	"telemetry_relay/internal/logger"
	"telemetry_relay/internal/models"
	"telemetry_relay/internal/pin"
	"telemetry_relay/internal/plugin/fermentation"
	"telemetry_relay/internal/repository"
	"telemetry_relay/internal/session"
)

type PinService struct {
	readingRepo repository.ReadingRepo
	eventRepo   repository.EventRepo
	log         *logger.Logger
	now         func() time.Time
}

func NewPinService(readingRepo repository.ReadingRepo, eventRepo repository.EventRepo, log *logger.Logger) *PinService {
	if log == nil {
		log = logger.Nop()
	}
	return &PinService{
		readingRepo: readingRepo,
		eventRepo:   eventRepo,
		log:         log,
		now:         time.Now,
	}
}

// HardwareWrite handles a pin value reported by a device. Plugin pins feed the
// device processor; any other pin is cached and forwarded to the user's apps.
func (s *PinService) HardwareWrite(ctx context.Context, sess *session.Session, dashID, deviceID int, body string) error {
	cmd, err := parseWrite(body)
	if err != nil {
		return err
	}
	dash, dev := sess.Profile.DeviceByID(dashID, deviceID)
	if dev == nil {
		return ErrDeviceNotFound
	}

	now := s.now()
	err = s.readingRepo.Process(ctx, models.Reading{
		UserID:   sess.UserID,
		DashID:   dashID,
		DeviceID: deviceID,
		PinType:  cmd.Type,
		Pin:      cmd.Pin,
		Value:    cmd.Value,
		At:       now,
	})
	if err != nil {
		s.log.Warnw("hardware_reading_report_failed", "user_id", sess.UserID, "err", err)
	}

	if fermentation.IsReservedByHardware(cmd.Type, cmd.Pin) {
		if err := dev.Plaato.ProcessHardware(cmd.Pin, cmd.Value); err != nil {
			s.pluginError(ctx, sess.UserID, dashID, deviceID, body, err)
			return fmt.Errorf("hardware pin %d: %w", cmd.Pin, err)
		}
		return nil
	}

	dash.Update(deviceID, cmd.Type, cmd.Pin, cmd.Value, now)
	if err := sess.SendToApps(models.CommandHardware, 0, dashID, deviceID, body); err != nil {
		s.log.Debugw("hardware_forward_failed", "user_id", sess.UserID, "err", err)
	}
	return nil
}

// AppWrite handles a pin write from an app. Plugin settings stay on the server;
// other pins are sent to the device.
func (s *PinService) AppWrite(ctx context.Context, sess *session.Session, dashID, deviceID int, body string) error {
	cmd, err := parseWrite(body)
	if err != nil {
		return err
	}
	dash, dev := sess.Profile.DeviceByID(dashID, deviceID)
	if dev == nil {
		return ErrDeviceNotFound
	}

	if fermentation.IsReservedByApp(cmd.Type, cmd.Pin) {
		if err := dev.Plaato.ProcessApp(cmd.Pin, cmd.Value); err != nil {
			s.pluginError(ctx, sess.UserID, dashID, deviceID, body, err)
			return fmt.Errorf("app pin %d: %w", cmd.Pin, err)
		}
		return nil
	}

	dash.Update(deviceID, cmd.Type, cmd.Pin, cmd.Value, s.now())
	msg := models.Message{Command: models.CommandHardware, Body: body}
	if sess.SendToHardware(dashID, deviceID, msg) == 0 {
		return ErrDeviceNotConnected
	}
	return nil
}

// Select changes the active device of a device selector.
func (s *PinService) Select(_ context.Context, sess *session.Session, dashID, widgetID, deviceID int) error {
	dash := sess.Profile.DashboardByID(dashID)
	if dash == nil {
		return ErrDashboardNotFound
	}
	sel := dash.DeviceSelector(widgetID)
	if sel == nil {
		return ErrWidgetNotFound
	}
	return sel.Select(deviceID)
}

func (s *PinService) pluginError(ctx context.Context, userID, dashID, deviceID int, body string, cause error) {
	err := s.eventRepo.Append(ctx, models.DeviceEvent{
		OccurredAt:  s.now(),
		Type:        models.EventPluginError,
		UserID:      userID,
		DashID:      dashID,
		DeviceID:    deviceID,
		Description: cause.Error(),
		Metadata:    map[string]string{"body": body},
	})
	if err != nil {
		s.log.Errorw("plugin_error_append_failed", "user_id", userID, "err", err)
	}
}

func parseWrite(body string) (pin.Command, error) {
	cmd, err := pin.Parse(body)
	if err != nil {
		return pin.Command{}, err
	}
	if cmd.Op != pin.Write {
		return pin.Command{}, fmt.Errorf("%w: %q", ErrNotAWrite, body)
	}
	return cmd, nil
}
