package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/lesson-calendar-api/internal/models"
	"github.com/noah-isme/lesson-calendar-api/pkg/config"
	appErrors "github.com/noah-isme/lesson-calendar-api/pkg/errors"
)

// TokenService verifies viewer tokens issued by the identity layer.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService constructs a token service from the shared HS256 secret.
func NewTokenService(cfg config.JWTConfig) *TokenService {
	ttl := cfg.Expiration
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(cfg.Secret), ttl: ttl, now: time.Now}
}

// ValidateToken parses a bearer token and returns its viewer claims.
func (s *TokenService) ValidateToken(tokenString string) (*models.ViewerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.ViewerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.ViewerClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if !claims.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token carries an unknown role")
	}
	return claims, nil
}

// Issue signs a token for viewer; used by the identity layer in development and by tests.
func (s *TokenService) Issue(viewer models.Viewer) (string, time.Time, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.ttl)
	claims := models.ViewerClaims{
		Role:      viewer.Role,
		TeacherID: viewer.TeacherID,
		StudentID: viewer.StudentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   viewer.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign viewer token: %w", err)
	}
	return signed, expiresAt, nil
}
