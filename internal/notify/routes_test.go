package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swap/internal/identity"
	"github.com/rajivgeraev/flippy-swap/internal/middleware"
)

func TestInboxRoute(t *testing.T) {
	_, client := newMiniRedisClient(t)
	inbox := NewRedisInbox(client, 10, time.Hour)
	tokens := identity.NewJWTService("secret", time.Hour)

	app := fiber.New()
	inbox.SetupRoutes(app, middleware.AuthMiddleware(tokens), zap.NewNop())

	user := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, inbox.Emit(context.Background(), Notification{ID: uuid.New(), UserID: user, Type: TypeSwapRequest}))
	}

	token, err := tokens.GenerateToken(identity.Identity{UserID: user})
	require.NoError(t, err)

	get := func(path string) (int, []byte) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, body
	}

	code, body := get("/api/notifications?limit=2")
	require.Equal(t, http.StatusOK, code)

	var out struct {
		Notifications []Notification `json:"notifications"`
		Count         int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, user, out.Notifications[0].UserID)

	code, _ = get("/api/notifications?limit=zero")
	assert.Equal(t, http.StatusBadRequest, code)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/notifications", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
