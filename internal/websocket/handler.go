package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Authenticator извлекает ID пользователя из токена
type Authenticator interface {
	ExtractUserID(token string) (uuid.UUID, error)
}

// Handler поднимает WebSocket соединения аутентифицированных пользователей
type Handler struct {
	manager  *Manager
	auth     Authenticator
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHandler создает обработчик подключений
func NewHandler(manager *Manager, auth Authenticator, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		manager: manager,
		auth:    auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin проверяет токен, а не заголовок
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Routes возвращает маршруты WebSocket сервера
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", h)
	return mux
}

// ServeHTTP принимает токен в ?token= или в заголовке Authorization
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	userID, err := h.auth.ExtractUserID(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(userID, conn, h.manager)
	client.Start()

	hello, err := json.Marshal(Event{Type: EventConnected, UserID: userID.String(), Timestamp: time.Now()})
	if err == nil {
		client.enqueue(hello)
	}
}
