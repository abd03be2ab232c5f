package repository

import (
	"context"
	"database/sql"
	"time"

	"telemetry_relay/internal/models"
	"telemetry_relay/internal/pin"
)

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// ProfileRepo stores one profile document per user.
type ProfileRepo interface {
	Save(ctx context.Context, p *models.Profile) error
	Load(ctx context.Context, userID int) (*models.Profile, error)
	LoadAll(ctx context.Context) ([]*models.Profile, error)
}

// EventFilter narrows a device event listing. Zero fields are ignored.
type EventFilter struct {
	UserID   int
	DeviceID *int
	From     time.Time
	To       time.Time
	Type     string
}

type EventRepo interface {
	Append(ctx context.Context, e models.DeviceEvent) error
	List(ctx context.Context, f EventFilter) ([]models.DeviceEvent, error)
}

// ReadingFilter narrows a pin reading listing. Limit <= 0 means the default limit.
type ReadingFilter struct {
	UserID   int
	DashID   int
	DeviceID int
	PinType  pin.Type
	Pin      int
	From     time.Time
	To       time.Time
	Limit    int
}

// ReadingRepo is the reporting sink for pin values.
type ReadingRepo interface {
	Process(ctx context.Context, r models.Reading) error
	List(ctx context.Context, f ReadingFilter) ([]models.Reading, error)
}

type Repository struct {
	ProfileRepo ProfileRepo
	EventRepo   EventRepo
	ReadingRepo ReadingRepo
	Auth        Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		ProfileRepo: NewProfileSQLite(db),
		EventRepo:   NewEventSQLite(db),
		ReadingRepo: NewReadingSQLite(db),
		Auth:        NewUserRepository(db),
	}
}
