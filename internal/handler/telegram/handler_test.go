package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendlens/admin-api/internal/model"
	apperrors "github.com/trendlens/admin-api/pkg/errors"
)

type fakeSettings struct {
	cfg       model.DeliverySettings
	lastPatch model.DeliverySettingsPatch
}

func (f *fakeSettings) Get(ctx context.Context) (*model.DeliverySettings, error) {
	cfg := f.cfg
	cfg.Normalize()
	return &cfg, nil
}

func (f *fakeSettings) Patch(ctx context.Context, patch model.DeliverySettingsPatch) (*model.DeliverySettings, error) {
	f.lastPatch = patch
	f.cfg.Normalize()
	patch.Apply(&f.cfg)
	cfg := f.cfg
	return &cfg, nil
}

type fakeDispatch struct {
	result  *model.DispatchResult
	testErr error
	dryRun  bool
	limit   int
}

func (f *fakeDispatch) DispatchPending(ctx context.Context, dryRun bool, limit int) (*model.DispatchResult, error) {
	f.dryRun = dryRun
	f.limit = limit
	return f.result, nil
}

func (f *fakeDispatch) SendTestMessage(ctx context.Context) (string, error) {
	if f.testErr != nil {
		return "", f.testErr
	}
	return "test message", nil
}

type fakeConnections struct {
	status      *model.ConnectionStatus
	prefsErr    error
	lastUpdate  map[string]bool
	lastUserID  string
	disconnects int
}

func (f *fakeConnections) CreateLinkToken(ctx context.Context, userID string) (*model.LinkToken, error) {
	f.lastUserID = userID
	return &model.LinkToken{
		Token:       "deadbeef",
		Code:        "123456",
		Link:        model.DeepLink("trendlens_bot", "deadbeef"),
		ExpiresIn:   600,
		BotUsername: "trendlens_bot",
	}, nil
}

func (f *fakeConnections) Status(ctx context.Context, userID string) (*model.ConnectionStatus, error) {
	f.lastUserID = userID
	return f.status, nil
}

func (f *fakeConnections) Disconnect(ctx context.Context, userID string) error {
	f.disconnects++
	return nil
}

func (f *fakeConnections) GetPreferences(ctx context.Context, userID string) (map[model.AlertType]bool, error) {
	if f.prefsErr != nil {
		return nil, f.prefsErr
	}
	return map[model.AlertType]bool{model.AlertTypeEarlyBreakout: true}, nil
}

func (f *fakeConnections) UpdatePreferences(ctx context.Context, userID string, raw map[string]bool) (map[model.AlertType]bool, error) {
	if len(raw) == 0 {
		return nil, apperrors.ErrEmptyPreferencePut
	}
	f.lastUpdate = raw
	return map[model.AlertType]bool{model.AlertTypeEarlyBreakout: false}, nil
}

type fakeHistory struct {
	records []*model.DeliveryRecord
	stats   *model.DeliveryStats
	since   time.Time
	limit   int
}

func (f *fakeHistory) List(ctx context.Context, limit int) ([]*model.DeliveryRecord, error) {
	f.limit = limit
	return f.records, nil
}

func (f *fakeHistory) Stats(ctx context.Context, since time.Time) (*model.DeliveryStats, error) {
	f.since = since
	return f.stats, nil
}

type fixture struct {
	engine      *gin.Engine
	settings    *fakeSettings
	dispatch    *fakeDispatch
	connections *fakeConnections
	history     *fakeHistory
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		settings:    &fakeSettings{cfg: model.DeliverySettings{Enabled: true}},
		dispatch:    &fakeDispatch{result: &model.DispatchResult{Sent: 2, Skipped: 1}},
		connections: &fakeConnections{status: &model.ConnectionStatus{Connected: false}},
		history:     &fakeHistory{stats: &model.DeliveryStats{Total: 5, Sent: 3, Skipped: 1, Failed: 1}},
	}

	f.engine = gin.New()
	group := f.engine.Group("/api/admin")
	group.Use(func(c *gin.Context) {
		c.Set("username", "admin")
		c.Next()
	})
	NewHandler(f.settings, f.dispatch, f.connections, f.history).RegisterRoutes(group)
	return f
}

func (f *fixture) request(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return w, envelope
}

func TestGetSettings(t *testing.T) {
	f := newFixture()

	w, env := f.request(t, http.MethodGet, "/api/admin/connections/telegram/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, env["ok"])

	data := env["data"].(map[string]interface{})
	assert.Equal(t, true, data["enabled"])
	assert.Contains(t, data, "cooldown_hours")
	assert.Contains(t, data, "type_enabled")
}

func TestUpdateSettingsDropsUnknownTypeKeys(t *testing.T) {
	f := newFixture()

	w, env := f.request(t, http.MethodPatch, "/api/admin/connections/telegram/settings", gin.H{
		"preview_only": false,
		"cooldown_hours": gin.H{
			"EARLY_BREAKOUT": 6,
			"NOT_A_TYPE":     1,
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, env["ok"])

	require.NotNil(t, f.settings.lastPatch.PreviewOnly)
	assert.False(t, *f.settings.lastPatch.PreviewOnly)
	assert.Equal(t, map[model.AlertType]float64{model.AlertTypeEarlyBreakout: 6}, f.settings.lastPatch.CooldownHrs)
}

func TestUpdateSettingsRejectsMalformedBody(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/connections/telegram/settings",
		bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStatsParsesHours(t *testing.T) {
	f := newFixture()

	w, env := f.request(t, http.MethodGet, "/api/admin/connections/telegram/stats?hours=48", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := env["data"].(map[string]interface{})
	assert.Equal(t, float64(48), data["hours"])
	stats := data["stats"].(map[string]interface{})
	assert.Equal(t, float64(5), stats["total"])
	assert.WithinDuration(t, time.Now().Add(-48*time.Hour), f.history.since, time.Minute)
}

func TestGetStatsRejectsBadHours(t *testing.T) {
	f := newFixture()

	w, env := f.request(t, http.MethodGet, "/api/admin/connections/telegram/stats?hours=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, env["ok"])
	assert.Equal(t, "bad_request", env["error"])
}

func TestGetHistoryDefaultsAndCapsLimit(t *testing.T) {
	f := newFixture()

	w, env := f.request(t, http.MethodGet, "/api/admin/connections/telegram/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50, f.history.limit)
	// Empty history is an empty list, never null.
	assert.NotNil(t, env["data"])

	w, _ = f.request(t, http.MethodGet, "/api/admin/connections/telegram/history?limit=9999", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxHistoryLimit, f.history.limit)
}

func TestSendTestSuccess(t *testing.T) {
	f := newFixture()

	w, env := f.request(t, http.MethodPost, "/api/admin/connections/telegram/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := env["data"].(map[string]interface{})
	assert.Equal(t, "test message", data["message"])
}

func TestSendTestWhenDisabled(t *testing.T) {
	f := newFixture()
	f.dispatch.testErr = apperrors.ErrDeliveryDisabled

	w, env := f.request(t, http.MethodPost, "/api/admin/connections/telegram/test", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, env["ok"])
	assert.Equal(t, "precondition_failed", env["error"])
	assert.Equal(t, "telegram delivery is disabled", env["message"])
}

func TestDispatchPassesFlags(t *testing.T) {
	f := newFixture()

	w, env := f.request(t, http.MethodPost, "/api/admin/connections/telegram/dispatch", gin.H{
		"dryRun": true,
		"limit":  10,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.dispatch.dryRun, "dryRun in the request must reach the service as a dry run")
	assert.Equal(t, 10, f.dispatch.limit)

	data := env["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["sent"])
}

func TestDispatchEmptyBodyDefaults(t *testing.T) {
	f := newFixture()

	w, _ := f.request(t, http.MethodPost, "/api/admin/connections/telegram/dispatch", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.dispatch.dryRun)
	assert.Zero(t, f.dispatch.limit)
}

func TestCreateConnectLink(t *testing.T) {
	f := newFixture()

	w, env := f.request(t, http.MethodGet, "/api/admin/connections/telegram/connect-link", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := env["data"].(map[string]interface{})
	assert.Equal(t, "https://t.me/trendlens_bot?start=link_deadbeef", data["link"])
	assert.Equal(t, float64(600), data["expiresIn"])
	assert.Equal(t, "admin", f.connections.lastUserID)
}

func TestGetStatusDisconnected(t *testing.T) {
	f := newFixture()

	w, env := f.request(t, http.MethodGet, "/api/admin/connections/telegram/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := env["data"].(map[string]interface{})
	assert.Equal(t, false, data["connected"])
}

func TestDisconnect(t *testing.T) {
	f := newFixture()

	w, env := f.request(t, http.MethodPost, "/api/admin/connections/telegram/disconnect", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, env["ok"])
	assert.Equal(t, 1, f.connections.disconnects)
}

func TestUpdateEventPreferences(t *testing.T) {
	f := newFixture()

	w, env := f.request(t, http.MethodPut, "/api/admin/connections/telegram/events", gin.H{
		"EARLY_BREAKOUT": false,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]bool{"EARLY_BREAKOUT": false}, f.connections.lastUpdate)

	data := env["data"].(map[string]interface{})
	assert.Equal(t, false, data["EARLY_BREAKOUT"])
}

func TestUpdateEventPreferencesEmptyBody(t *testing.T) {
	f := newFixture()

	w, env := f.request(t, http.MethodPut, "/api/admin/connections/telegram/events", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", env["error"])
}

func TestGetEventPreferencesWithoutConnection(t *testing.T) {
	f := newFixture()
	f.connections.prefsErr = apperrors.ErrNoConnection

	w, env := f.request(t, http.MethodGet, "/api/admin/connections/telegram/events", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "precondition_failed", env["error"])
}
