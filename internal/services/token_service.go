package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"collegefeedback/internal/cache"
	"collegefeedback/internal/config"
	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	contextutils "collegefeedback/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TokenKindAccess authenticates API requests
	TokenKindAccess = "access"
	// TokenKindRefresh can only be exchanged for a new pair
	TokenKindRefresh = "refresh"

	revokedTokenPrefix = "revoked_jti:"
)

// Claims are the JWT claims issued to a user
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
	Scope string `json:"scope,omitempty"`
	Kind  string `json:"kind"`
}

// UserID returns the numeric subject
func (c *Claims) UserID() int {
	id, _ := strconv.Atoi(c.Subject)
	return id
}

// TokenPair represents a pair of access and refresh tokens
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// TokenService issues and validates HS256 tokens. Revoked token ids are kept
// in the keyed cache until the token would have expired anyway.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      cache.Store
	logger     *observability.Logger
	now        func() time.Time
}

// NewTokenService creates a new TokenService instance.
func NewTokenService(cfg config.AuthConfig, store cache.Store, logger *observability.Logger) *TokenService {
	if cfg.JWTSecret == "" {
		panic("NewTokenService: jwt secret is empty")
	}
	if store == nil {
		panic("NewTokenService: store is nil")
	}
	return &TokenService{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// IssuePair generates both access and refresh tokens
func (s *TokenService) IssuePair(user *models.User) (*TokenPair, error) {
	access, err := s.sign(user, TokenKindAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(user, TokenKindRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		TokenType:    "Bearer",
	}, nil
}

func (s *TokenService) sign(user *models.User, kind string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: user.Email,
		Role:  string(user.Role),
		Scope: string(user.CategoryScope),
		Kind:  kind,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to sign token")
	}
	return signed, nil
}

// Parse validates a token of the given kind and rejects revoked ones
func (s *TokenService) Parse(ctx context.Context, raw, kind string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, contextutils.WrapError(contextutils.ErrSessionExpired, "token expired")
		}
		return nil, contextutils.WrapError(contextutils.ErrUnauthorized, "invalid token")
	}
	if !token.Valid || claims.Kind != kind || claims.UserID() == 0 {
		return nil, contextutils.WrapError(contextutils.ErrUnauthorized, "invalid token claims")
	}

	_, revoked, err := s.store.Get(ctx, revokedTokenPrefix+claims.ID)
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrServiceUnavailable, "token revocation check failed")
	}
	if revoked {
		return nil, contextutils.WrapError(contextutils.ErrUnauthorized, "token revoked")
	}
	return claims, nil
}

// Revoke blocks a token until it expires
func (s *TokenService) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.store.Set(ctx, revokedTokenPrefix+claims.ID, "1", ttl); err != nil {
		return contextutils.WrapError(err, "failed to revoke token")
	}
	return nil
}

// claimRefresh revokes a refresh token with set-if-absent so only one
// concurrent exchange of the same token can win
func (s *TokenService) claimRefresh(ctx context.Context, claims *Claims) error {
	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return contextutils.WrapError(contextutils.ErrSessionExpired, "token expired")
	}
	won, err := s.store.SetNX(ctx, revokedTokenPrefix+claims.ID, "1", ttl)
	if err != nil {
		return contextutils.WrapError(contextutils.ErrServiceUnavailable, "failed to revoke refresh token")
	}
	if !won {
		s.logger.Security(ctx, "Refresh token reused", map[string]interface{}{"user_id": claims.UserID()})
		return contextutils.WrapError(contextutils.ErrUnauthorized, "token revoked")
	}
	return nil
}

// UserLoader fetches the account a refresh token belongs to
type UserLoader interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

// Refresh exchanges a refresh token for a new pair. The old refresh token is
// revoked; the account's current role and scope go into the new tokens.
func (s *TokenService) Refresh(ctx context.Context, raw string, users UserLoader) (*TokenPair, *models.User, error) {
	claims, err := s.Parse(ctx, raw, TokenKindRefresh)
	if err != nil {
		return nil, nil, err
	}
	user, err := users.GetUserByID(ctx, claims.UserID())
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrRecordNotFound) {
			return nil, nil, contextutils.WrapError(contextutils.ErrUnauthorized, "account no longer exists")
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, contextutils.WrapError(contextutils.ErrUnauthorized, "account is deactivated")
	}
	if err := s.claimRefresh(ctx, claims); err != nil {
		return nil, nil, err
	}
	pair, err := s.IssuePair(user)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}
