package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rajivgeraev/flippy-swap/internal/config"
	"github.com/rajivgeraev/flippy-swap/internal/identity"
	"github.com/rajivgeraev/flippy-swap/internal/models"
)

const testSecret = "app-test-secret"

func testConfig() config.Config {
	cfg := config.Default()
	cfg.JWTSecret = testSecret
	cfg.Storage.Driver = config.DriverSQLite
	cfg.Storage.SQLitePath = ":memory:"
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, a.Shutdown(ctx))
	})
	return a
}

func seedItem(t *testing.T, a *App, owner uuid.UUID) models.Item {
	t.Helper()

	status, body := call(t, a, http.MethodPost, "/api/items", owner, map[string]string{"title": "item"})
	require.Equal(t, http.StatusCreated, status, body)

	raw, err := json.Marshal(body["item"])
	require.NoError(t, err)
	var item models.Item
	require.NoError(t, json.Unmarshal(raw, &item))
	return item
}

func call(t *testing.T, a *App, method, path string, user uuid.UUID, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != uuid.Nil {
		token, err := identity.NewJWTService(testSecret, time.Hour).GenerateToken(identity.Identity{UserID: user, Verified: true})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.HTTP().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp.StatusCode, out
}

func TestNewRejectsNilLogger(t *testing.T) {
	_, err := New(context.Background(), testConfig(), nil)
	require.Error(t, err)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Driver = "mongo"

	_, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	a := newTestApp(t, testConfig())

	status, body := call(t, a, http.MethodGet, "/health", uuid.Nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestSwapRoutesRequireToken(t *testing.T) {
	a := newTestApp(t, testConfig())

	status, _ := call(t, a, http.MethodGet, "/api/swaps/incoming", uuid.Nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestSwapLifecycleThroughHTTP(t *testing.T) {
	a := newTestApp(t, testConfig())

	owner, requester := uuid.New(), uuid.New()
	requested := seedItem(t, a, owner)
	offered := seedItem(t, a, requester)

	status, body := call(t, a, http.MethodPost, "/api/swaps", requester, map[string]string{
		"requested_item_id": requested.ID.String(),
		"offered_item_id":   offered.ID.String(),
		"message":           "меняемся?",
	})
	require.Equal(t, http.StatusCreated, status, body)
	created := body["swap"].(map[string]any)
	swapID := created["id"].(string)
	assert.Equal(t, string(models.SwapPending), created["status"])

	status, body = call(t, a, http.MethodGet, "/api/swaps/incoming", owner, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, body = call(t, a, http.MethodPut, "/api/swaps/"+swapID+"/status", owner, map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, string(models.SwapAccepted), body["swap"].(map[string]any)["status"])

	status, _ = call(t, a, http.MethodPut, "/api/swaps/"+swapID+"/status", requester, map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = call(t, a, http.MethodPut, "/api/swaps/"+swapID+"/status", owner, map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, string(models.SwapCompleted), body["swap"].(map[string]any)["status"])

	status, body = call(t, a, http.MethodGet, "/api/items/"+requested.ID.String(), requester, nil)
	require.Equal(t, http.StatusOK, status)
	item := body["item"].(map[string]any)
	assert.Equal(t, requester.String(), item["owner_id"])
	assert.Equal(t, false, item["available"])
}

func TestOptionalRoutesDisabledByDefault(t *testing.T) {
	a := newTestApp(t, testConfig())

	status, _ := call(t, a, http.MethodGet, "/api/notifications", uuid.New(), nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, a, http.MethodPost, "/api/auth/telegram", uuid.Nil, map[string]string{"init_data": "x"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestTelegramRouteEnabledWithBotToken(t *testing.T) {
	cfg := testConfig()
	cfg.TelegramBotToken = "123:bot"
	a := newTestApp(t, cfg)

	status, _ := call(t, a, http.MethodPost, "/api/auth/telegram", uuid.Nil, map[string]string{"init_data": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestInboxReceivesSwapNotifications(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Redis.Addr = mr.Addr()
	a := newTestApp(t, cfg)

	owner, requester := uuid.New(), uuid.New()
	requested := seedItem(t, a, owner)
	offered := seedItem(t, a, requester)

	status, _ := call(t, a, http.MethodPost, "/api/swaps", requester, map[string]string{
		"requested_item_id": requested.ID.String(),
		"offered_item_id":   offered.ID.String(),
	})
	require.Equal(t, http.StatusCreated, status)

	assert.Eventually(t, func() bool {
		status, body := call(t, a, http.MethodGet, "/api/notifications", owner, nil)
		count, _ := body["count"].(float64)
		return status == http.StatusOK && count == 1
	}, 2*time.Second, 20*time.Millisecond)

	status, body := call(t, a, http.MethodGet, "/api/notifications", requester, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])
}

func TestUnreachableRedisDisablesInbox(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig()
	cfg.Redis.Addr = addr
	a := newTestApp(t, cfg)

	assert.Nil(t, a.redis)
	status, _ := call(t, a, http.MethodGet, "/api/notifications", uuid.New(), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMigrateSQLiteIsIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "swap.db")
	log := zaptest.NewLogger(t)

	require.NoError(t, Migrate(context.Background(), cfg, log))
	require.NoError(t, Migrate(context.Background(), cfg, log))
}

func TestShutdownIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
	require.NoError(t, a.Shutdown(ctx))
}
