package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/cinequiz/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTokenTTL  = 5 * time.Minute
	DefaultRefreshTokenTTL = 24 * time.Hour
)

// TokenType distinguishes access from refresh tokens inside the claims.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenClaims is the JWT payload for both token types.
type TokenClaims struct {
	TokenType TokenType `json:"token_type"`
	UserID    int64     `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenPair is returned by login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// RefreshClaims is the verified content of a refresh token.
type RefreshClaims struct {
	TokenID   string
	UserID    int64
	ExpiresAt time.Time
}

// RevokedSet stores refresh token ids that may no longer be used.
type RevokedSet interface {
	Revoke(ctx context.Context, token types.RevokedToken) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// TokenService issues, verifies and revokes HS256 tokens.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	revoked    RevokedSet
	now        func() time.Time
	newID      func() string
}

type TokenOption func(*TokenService)

// WithTokenTTLs overrides the token lifetimes. Non-positive values keep the
// defaults.
func WithTokenTTLs(access, refresh time.Duration) TokenOption {
	return func(s *TokenService) {
		if access > 0 {
			s.accessTTL = access
		}
		if refresh > 0 {
			s.refreshTTL = refresh
		}
	}
}

// WithRevokedSet enables refresh token revocation. Without it Revoke fails
// with ErrRevocationUnsupported.
func WithRevokedSet(set RevokedSet) TokenOption {
	return func(s *TokenService) {
		s.revoked = set
	}
}

func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

func NewTokenService(secret string, opts ...TokenOption) *TokenService {
	s := &TokenService{
		secret:     []byte(secret),
		accessTTL:  DefaultAccessTokenTTL,
		refreshTTL: DefaultRefreshTokenTTL,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RevocationEnabled reports whether a revoked set is configured.
func (s *TokenService) RevocationEnabled() bool {
	return s.revoked != nil
}

// Issue mints a fresh access and refresh token for the user.
func (s *TokenService) Issue(userID int64) (TokenPair, error) {
	access, err := s.sign(userID, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(userID, TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *TokenService) sign(userID int64, tokenType TokenType, ttl time.Duration) (string, error) {
	now := s.now()
	claims := TokenClaims{
		TokenType: tokenType,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.newID(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *TokenService) parse(tokenString string, want TokenType) (TokenClaims, error) {
	var claims TokenClaims
	token, err := jwt.ParseWithClaims(
		strings.TrimSpace(tokenString),
		&claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return s.secret, nil
		},
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenClaims{}, ErrTokenExpired
		}
		return TokenClaims{}, ErrTokenMalformed
	}
	if !token.Valid || claims.TokenType != want || claims.ID == "" || claims.UserID < 1 {
		return TokenClaims{}, ErrTokenMalformed
	}
	if claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return TokenClaims{}, ErrTokenMalformed
	}
	return claims, nil
}

// VerifyAccess checks an access token and returns its user id.
func (s *TokenService) VerifyAccess(tokenString string) (int64, error) {
	claims, err := s.parse(tokenString, TokenTypeAccess)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// ParseRefresh checks a refresh token's signature, type and expiry. It does
// not consult the revoked set.
func (s *TokenService) ParseRefresh(tokenString string) (RefreshClaims, error) {
	claims, err := s.parse(tokenString, TokenTypeRefresh)
	if err != nil {
		return RefreshClaims{}, err
	}
	return RefreshClaims{
		TokenID:   claims.ID,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke adds the refresh token to the revoked set. Revoking an already
// revoked token succeeds.
func (s *TokenService) Revoke(ctx context.Context, refresh string) error {
	claims, err := s.ParseRefresh(refresh)
	if err != nil {
		return err
	}
	return s.revokeClaims(ctx, claims)
}

func (s *TokenService) revokeClaims(ctx context.Context, claims RefreshClaims) error {
	if s.revoked == nil {
		return ErrRevocationUnsupported
	}
	return s.revoked.Revoke(ctx, types.RevokedToken{
		TokenID:   claims.TokenID,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt,
		RevokedAt: s.now().UTC(),
	})
}

// Refresh exchanges a valid, unrevoked refresh token for a new access token.
func (s *TokenService) Refresh(ctx context.Context, refresh string) (string, error) {
	claims, err := s.ParseRefresh(refresh)
	if err != nil {
		return "", err
	}
	if s.revoked != nil {
		revoked, err := s.revoked.IsRevoked(ctx, claims.TokenID)
		if err != nil {
			return "", err
		}
		if revoked {
			return "", ErrTokenRevoked
		}
	}
	return s.sign(claims.UserID, TokenTypeAccess, s.accessTTL)
}
