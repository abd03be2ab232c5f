package service

import (
	"context"
	"errors"
	"time"

	"telemetry_relay/internal/logger"
	"telemetry_relay/internal/metrics"
	"telemetry_relay/internal/models"
	"telemetry_relay/internal/repository"
	"telemetry_relay/internal/session"
)

var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDashboardNotFound  = errors.New("dashboard not found")
	ErrWidgetNotFound     = errors.New("widget not found")
	ErrDeviceNotConnected = errors.New("device is not connected")
	ErrNotAWrite          = errors.New("only pin writes are accepted")
	ErrInvalidHeartbeat   = errors.New("heartbeat must be positive")
	ErrInvalidDeviceToken = errors.New("invalid device token")
	ErrInvalidProfile     = errors.New("invalid profile")
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Profiles owns the in-memory profiles and their persistence.
type Profiles interface {
	Get(ctx context.Context, userID int) (*models.Profile, error)
	Update(ctx context.Context, userID int, body []byte) (*models.Profile, error)
	ByToken(token string) (*models.Profile, int, int, error)
	DeviceState(ctx context.Context, userID, dashID, deviceID int) (models.DeviceState, error)
	SaveAll(ctx context.Context) error
	Autosave(ctx context.Context, interval time.Duration)
}

// Pins handles pin writes coming from hardware and apps.
type Pins interface {
	HardwareWrite(ctx context.Context, s *session.Session, dashID, deviceID int, body string) error
	AppWrite(ctx context.Context, s *session.Session, dashID, deviceID int, body string) error
	Select(ctx context.Context, s *session.Session, dashID, widgetID, deviceID int) error
}

// Lifecycle tracks device connectivity.
type Lifecycle interface {
	OnLogin(ctx context.Context, s *session.Session, dashID, deviceID int) error
	OnDisconnect(s *session.Session, dashID, deviceID int)
	SetHeartbeat(s *session.Session, dashID, deviceID, seconds int) (time.Duration, error)
}

// Scheduler runs the periodic reading dispatch. Stop via context cancellation.
type Scheduler interface {
	Run(ctx context.Context, tick time.Duration)
}

// EventLog exposes the device status log of a user.
type EventLog interface {
	List(ctx context.Context, userID int, f LogFilter) ([]models.DeviceEvent, error)
}

// Readings exposes the reported pin history.
type Readings interface {
	History(ctx context.Context, f repository.ReadingFilter) ([]models.Reading, error)
}

// Pusher delivers offline notifications.
type Pusher interface {
	Push(ctx context.Context, chatIDs []int64, message string) error
}

// StatusPublisher streams device status events.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, e models.DeviceEvent) error
}

// Deps carries the collaborators and tuning of the services.
type Deps struct {
	Repos     *repository.Repository
	Sessions  *session.Registry
	Pusher    Pusher
	Publisher StatusPublisher
	Metrics   *metrics.Relay
	Log       *logger.Logger

	OfflineDelay     time.Duration
	FastOfflineDelay time.Duration
	SigningKey       string
	TokenTTL         time.Duration
}

type Service struct {
	Authorization
	Profiles
	Pins
	Lifecycle
	Scheduler
	EventLog
	Readings

	Sessions *session.Registry
}

func NewService(d Deps) (*Service, error) {
	if d.Sessions == nil {
		d.Sessions = session.NewRegistry()
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}

	profiles, err := NewProfileService(d.Repos.ProfileRepo, d.Log.Named("profiles"))
	if err != nil {
		return nil, err
	}

	return &Service{
		Authorization: NewAuthService(d.Repos.Auth, d.SigningKey, d.TokenTTL),
		Profiles:      profiles,
		Pins:          NewPinService(d.Repos.ReadingRepo, d.Repos.EventRepo, d.Log.Named("pins")),
		Lifecycle:     NewLifecycleService(d),
		Scheduler:     NewSchedulerService(d.Sessions, d.Repos.ReadingRepo, d.Metrics, d.Log.Named("scheduler")),
		EventLog:      NewEventLogService(d.Repos.EventRepo),
		Readings:      NewReadingService(d.Repos.ReadingRepo),
		Sessions:      d.Sessions,
	}, nil
}
