package service

import (
	"errors"
	"fmt"
	"time"

	"trash2action-backend/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const accessTokenDuration = 24 * time.Hour

// TokenService validates the access tokens issued by the auth subsystem.
// Issue exists for local tooling and tests; account flows live elsewhere.
type TokenService struct {
	jwtSecret []byte
	now       func() time.Time
}

func NewTokenService(jwtSecret string) *TokenService {
	return &TokenService{
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
}

// Validate returns the caller behind tokenString.
func (s *TokenService) Validate(tokenString string) (model.Caller, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return model.Caller{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return model.Caller{}, ErrInvalidToken
	}

	id, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	role, _ := claims["role"].(string)
	if id == "" {
		return model.Caller{}, ErrInvalidToken
	}
	if role == "" {
		role = string(model.RoleUser)
	}
	if !model.Role(role).IsValid() {
		return model.Caller{}, ErrInvalidToken
	}

	return model.Caller{ID: id, Name: name, Role: model.Role(role)}, nil
}

// Issue signs an access token for req.
func (s *TokenService) Issue(req model.IssueTokenRequest, ttl time.Duration) (string, error) {
	if req.Subject == "" || !req.Role.IsValid() {
		return "", fmt.Errorf("issue token: subject and a valid role are required")
	}
	if ttl <= 0 {
		ttl = accessTokenDuration
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub":  req.Subject,
		"name": req.Name,
		"role": string(req.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}
