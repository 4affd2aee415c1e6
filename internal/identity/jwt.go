// Package identity выдаёт и проверяет удостоверения пользователей.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken возвращается, если токен не прошёл проверку
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity представляет аутентифицированного пользователя
type Identity struct {
	UserID   uuid.UUID
	Verified bool
}

// Claims представляет содержимое JWT
type Claims struct {
	UserID   string `json:"user_id"`
	Verified bool   `json:"verified"`
	jwt.RegisteredClaims
}

// JWTService отвечает за создание и валидацию JWT токенов
type JWTService struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewJWTService создаёт новый экземпляр JWTService
func NewJWTService(secretKey string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTService{secretKey: []byte(secretKey), ttl: ttl, now: time.Now}
}

// GenerateToken создаёт JWT токен
func (s *JWTService) GenerateToken(id Identity) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:   id.UserID.String(),
		Verified: id.Verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, nil
}

// ValidateToken проверяет JWT токен и возвращает удостоверение
func (s *JWTService) ValidateToken(tokenString string) (Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil || userID == uuid.Nil {
		return Identity{}, fmt.Errorf("%w: bad user id", ErrInvalidToken)
	}

	return Identity{UserID: userID, Verified: claims.Verified}, nil
}

// ExtractUserID возвращает ID пользователя из токена
func (s *JWTService) ExtractUserID(tokenString string) (uuid.UUID, error) {
	id, err := s.ValidateToken(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	return id.UserID, nil
}
