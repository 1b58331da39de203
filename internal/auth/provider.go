package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/flexprice/planshift/internal/config"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/golang-jwt/jwt/v4"
)

// Claims identifies the caller behind a bearer token
type Claims struct {
	UserID string
	Email  string
}

// Provider validates bearer tokens issued by the identity service
type Provider interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

type jwtProvider struct {
	secret []byte
	issuer string
}

func NewProvider(cfg *config.Configuration) Provider {
	return &jwtProvider{
		secret: []byte(cfg.Auth.Secret),
		issuer: cfg.Auth.Issuer,
	}
}

func (p *jwtProvider) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid or expired token").
			Mark(ierr.ErrUnauthenticated)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ierr.NewError("invalid token claims").
			WithHint("Invalid token claims").
			Mark(ierr.ErrUnauthenticated)
	}

	if p.issuer != "" && !claims.VerifyIssuer(p.issuer, true) {
		return nil, ierr.NewError("unexpected token issuer").
			WithHint("Invalid token issuer").
			Mark(ierr.ErrUnauthenticated)
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		userID, _ = claims["user_id"].(string)
	}
	if userID == "" {
		return nil, ierr.NewError("token missing user ID").
			WithHint("Token missing user ID").
			Mark(ierr.ErrUnauthenticated)
	}

	email, _ := claims["email"].(string)
	return &Claims{UserID: userID, Email: email}, nil
}

// GenerateToken signs a token for the given user. Used by local tooling and tests.
func GenerateToken(cfg *config.Configuration, userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if cfg.Auth.Issuer != "" {
		claims["iss"] = cfg.Auth.Issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Auth.Secret))
}
