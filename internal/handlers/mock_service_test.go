package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"telemetry_relay/internal/models"
	"telemetry_relay/internal/repository"
	"telemetry_relay/internal/service"
	"telemetry_relay/internal/session"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(_ context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(_ context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockProfiles struct {
	profile  *models.Profile
	getErr   error
	updated  []byte
	updErr   error
	state    models.DeviceState
	stateErr error

	tokenDash   int
	tokenDevice int
	tokenErr    error
}

func (m *mockProfiles) Get(_ context.Context, userID int) (*models.Profile, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.profile == nil {
		return models.NewProfile(userID, nil), nil
	}
	return m.profile, nil
}
func (m *mockProfiles) Update(_ context.Context, _ int, body []byte) (*models.Profile, error) {
	m.updated = body
	return m.profile, m.updErr
}
func (m *mockProfiles) ByToken(string) (*models.Profile, int, int, error) {
	if m.tokenErr != nil {
		return nil, 0, 0, m.tokenErr
	}
	return m.profile, m.tokenDash, m.tokenDevice, nil
}
func (m *mockProfiles) DeviceState(context.Context, int, int, int) (models.DeviceState, error) {
	return m.state, m.stateErr
}
func (m *mockProfiles) SaveAll(context.Context) error           { return nil }
func (m *mockProfiles) Autosave(context.Context, time.Duration) {}

type mockPins struct {
	mu        sync.Mutex
	hardware  []string
	app       []string
	selected  []int
	appErr    error
	hwErr     error
	selectErr error
}

func (m *mockPins) HardwareWrite(_ context.Context, _ *session.Session, _, _ int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hardware = append(m.hardware, body)
	return m.hwErr
}
func (m *mockPins) AppWrite(_ context.Context, _ *session.Session, _, _ int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.app = append(m.app, body)
	return m.appErr
}
func (m *mockPins) Select(_ context.Context, _ *session.Session, _, _, deviceID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = append(m.selected, deviceID)
	return m.selectErr
}

func (m *mockPins) hardwareBodies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.hardware...)
}

func (m *mockPins) appBodies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.app...)
}

type mockLifecycle struct {
	mu          sync.Mutex
	logins      int
	disconnects int
	heartbeats  []int
	loginErr    error
}

func (m *mockLifecycle) OnLogin(context.Context, *session.Session, int, int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins++
	return m.loginErr
}
func (m *mockLifecycle) OnDisconnect(*session.Session, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
}
func (m *mockLifecycle) SetHeartbeat(_ *session.Session, _, _, seconds int) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats = append(m.heartbeats, seconds)
	return service.IdleTimeout(seconds), nil
}

func (m *mockLifecycle) counts() (int, int, []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logins, m.disconnects, append([]int(nil), m.heartbeats...)
}

type mockEventLog struct {
	resp       []models.DeviceEvent
	err        error
	lastUserID int
	lastFilter service.LogFilter
}

func (m *mockEventLog) List(_ context.Context, userID int, f service.LogFilter) ([]models.DeviceEvent, error) {
	m.lastUserID = userID
	m.lastFilter = f
	return m.resp, m.err
}

type mockReadings struct {
	resp       []models.Reading
	err        error
	lastFilter repository.ReadingFilter
}

func (m *mockReadings) History(_ context.Context, f repository.ReadingFilter) ([]models.Reading, error) {
	m.lastFilter = f
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
