package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"

	"github.com/rajivgeraev/flippy-swap/internal/models"
	"github.com/rajivgeraev/flippy-swap/internal/storage"
)

// ErrInvalidInitData возвращается, если initData не прошли проверку подписи или устарели
var ErrInvalidInitData = errors.New("invalid telegram init data")

// initDataExpiration задаёт, сколько живут initData мини-приложения
const initDataExpiration = 24 * time.Hour

// UserEnsurer находит или создаёт пользователя по профилю Telegram
type UserEnsurer interface {
	EnsureTelegramUser(ctx context.Context, profile storage.TelegramProfile) (models.User, error)
}

// TelegramExchanger обменивает initData Telegram на JWT
type TelegramExchanger struct {
	botToken string
	users    UserEnsurer
	tokens   *JWTService
}

// NewTelegramExchanger создаёт обменник initData
func NewTelegramExchanger(botToken string, users UserEnsurer, tokens *JWTService) *TelegramExchanger {
	return &TelegramExchanger{botToken: botToken, users: users, tokens: tokens}
}

// Exchange проверяет initData, находит пользователя и выпускает токен
func (e *TelegramExchanger) Exchange(ctx context.Context, rawInitData string) (string, models.User, error) {
	if err := initdata.Validate(rawInitData, e.botToken, initDataExpiration); err != nil {
		return "", models.User{}, fmt.Errorf("%w: %v", ErrInvalidInitData, err)
	}

	data, err := initdata.Parse(rawInitData)
	if err != nil {
		return "", models.User{}, fmt.Errorf("%w: %v", ErrInvalidInitData, err)
	}
	if data.User.ID == 0 {
		return "", models.User{}, fmt.Errorf("%w: no user", ErrInvalidInitData)
	}

	user, err := e.users.EnsureTelegramUser(ctx, storage.TelegramProfile{
		TelegramID: data.User.ID,
		Username:   data.User.Username,
		FirstName:  data.User.FirstName,
		LastName:   data.User.LastName,
		PhotoURL:   data.User.PhotoURL,
	})
	if err != nil {
		return "", models.User{}, fmt.Errorf("ошибка при сохранении пользователя: %w", err)
	}

	token, err := e.tokens.GenerateToken(Identity{UserID: user.ID, Verified: user.Verified})
	if err != nil {
		return "", models.User{}, err
	}
	return token, user, nil
}
