package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"telemetry_relay/internal/logger"
	"telemetry_relay/internal/models"
	"telemetry_relay/internal/repository"

	"github.com/jaevor/go-nanoid"
)

// DeviceTokenLength is the size of generated device tokens.
const DeviceTokenLength = 32

const finalSaveTimeout = 10 * time.Second

// NewTokenGenerator returns a generator of url-safe device tokens.
func NewTokenGenerator() (func() string, error) {
	gen, err := nanoid.Standard(DeviceTokenLength)
	if err != nil {
		return nil, fmt.Errorf("init token generator: %w", err)
	}
	return gen, nil
}

type deviceRef struct {
	userID   int
	dashID   int
	deviceID int
}

// ProfileService caches profiles, resolves device tokens and persists changes.
type ProfileService struct {
	repo     repository.ProfileRepo
	log      *logger.Logger
	newToken func() string

	mu       sync.RWMutex
	profiles map[int]*models.Profile
	tokens   map[string]deviceRef
}

func NewProfileService(repo repository.ProfileRepo, log *logger.Logger) (*ProfileService, error) {
	gen, err := NewTokenGenerator()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ProfileService{
		repo:     repo,
		log:      log,
		newToken: gen,
		profiles: make(map[int]*models.Profile),
		tokens:   make(map[string]deviceRef),
	}, nil
}

// LoadAll warms the cache with every stored profile so devices can log in
// before their owner opens an app.
func (s *ProfileService) LoadAll(ctx context.Context) error {
	ps, err := s.repo.LoadAll(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		s.profiles[p.UserID] = p
		s.indexLocked(p)
	}
	s.log.Infow("profiles_loaded", "count", len(ps), "devices", len(s.tokens))
	return nil
}

// Get returns the cached profile, loading it or creating an empty one on first use.
func (s *ProfileService) Get(ctx context.Context, userID int) (*models.Profile, error) {
	s.mu.RLock()
	p, ok := s.profiles[userID]
	s.mu.RUnlock()
	if ok {
		return p, nil
	}

	loaded, err := s.repo.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if loaded == nil {
		loaded = models.NewProfile(userID, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[userID]; ok {
		return p, nil
	}
	s.profiles[userID] = loaded
	s.indexLocked(loaded)
	return loaded, nil
}

// Update replaces the dashboards of a user. Devices keep their runtime state;
// devices without a token get a fresh one.
func (s *ProfileService) Update(ctx context.Context, userID int, body []byte) (*models.Profile, error) {
	dashes, err := models.ParseDashboards(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if err := validateDashboards(dashes); err != nil {
		return nil, err
	}

	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	// tokens are set before Replace publishes the devices to readers
	s.mu.Lock()
	s.assignTokens(p, dashes)
	p.Replace(dashes)
	s.reindexLocked()
	s.mu.Unlock()

	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ByToken resolves a hardware token to its profile, dashboard and device.
func (s *ProfileService) ByToken(token string) (*models.Profile, int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.tokens[token]
	if !ok || token == "" {
		return nil, 0, 0, ErrInvalidDeviceToken
	}
	return s.profiles[ref.userID], ref.dashID, ref.deviceID, nil
}

func (s *ProfileService) DeviceState(ctx context.Context, userID, dashID, deviceID int) (models.DeviceState, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return models.DeviceState{}, err
	}
	_, dev := p.DeviceByID(dashID, deviceID)
	if dev == nil {
		return models.DeviceState{}, ErrDeviceNotFound
	}
	return dev.State(), nil
}

// SaveAll persists every cached profile. All profiles are attempted.
func (s *ProfileService) SaveAll(ctx context.Context) error {
	s.mu.RLock()
	ps := make([]*models.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		ps = append(ps, p)
	}
	s.mu.RUnlock()

	var errs []error
	for _, p := range ps {
		if err := s.repo.Save(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Autosave persists profiles every interval and once more when ctx is canceled.
func (s *ProfileService) Autosave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), finalSaveTimeout)
			if err := s.SaveAll(final); err != nil {
				s.log.Errorw("profiles_final_save_failed", "err", err)
			}
			cancel()
			return
		case <-t.C:
			if err := s.SaveAll(ctx); err != nil {
				s.log.Errorw("profiles_save_failed", "err", err)
			}
		}
	}
}

// assignTokens keeps the token of a device that already exists in p and
// generates one for every other device that arrives without it.
func (s *ProfileService) assignTokens(p *models.Profile, dashes []*models.Dashboard) {
	for _, d := range dashes {
		for _, dev := range d.Devices {
			if dev.Token != "" {
				continue
			}
			if _, old := p.DeviceByID(d.ID, dev.ID); old != nil && old.Token != "" {
				dev.Token = old.Token
				continue
			}
			dev.Token = s.newToken()
		}
	}
}

func (s *ProfileService) reindexLocked() {
	s.tokens = make(map[string]deviceRef, len(s.tokens))
	for _, p := range s.profiles {
		s.indexLocked(p)
	}
}

func (s *ProfileService) indexLocked(p *models.Profile) {
	for _, d := range p.Dashboards() {
		for _, dev := range d.Devices {
			if dev.Token != "" {
				s.tokens[dev.Token] = deviceRef{userID: p.UserID, dashID: d.ID, deviceID: dev.ID}
			}
		}
	}
}

// validateDashboards rejects duplicate ids and devices outside the device id range.
func validateDashboards(dashes []*models.Dashboard) error {
	seen := make(map[int]bool, len(dashes))
	for _, d := range dashes {
		if d == nil {
			return fmt.Errorf("%w: null dashboard", ErrInvalidProfile)
		}
		if seen[d.ID] {
			return fmt.Errorf("%w: duplicate dashboard %d", ErrInvalidProfile, d.ID)
		}
		seen[d.ID] = true

		devices := make(map[int]bool, len(d.Devices))
		for _, dev := range d.Devices {
			if dev == nil || dev.ID < 0 || dev.ID >= models.TagStartID {
				return fmt.Errorf("%w: dashboard %d has an invalid device id", ErrInvalidProfile, d.ID)
			}
			if devices[dev.ID] {
				return fmt.Errorf("%w: dashboard %d has duplicate device %d", ErrInvalidProfile, d.ID, dev.ID)
			}
			devices[dev.ID] = true
		}
		for _, t := range d.Tags {
			if t == nil || t.ID < models.TagStartID || t.ID >= models.DeviceSelectorStartID {
				return fmt.Errorf("%w: dashboard %d has a tag outside the tag id range", ErrInvalidProfile, d.ID)
			}
		}
	}
	return nil
}
