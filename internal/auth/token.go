package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"worktrack.org/internal/ids"
)

const (
	defaultIssuer     = "worktrack"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenConfig configures token signing and lifetimes.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims is the JWT payload of both access and refresh tokens.
type Claims struct {
	Role      Role   `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a login or a rotation.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenID          string    `json:"-"`
}

// PrincipalSource reloads a principal by id so refreshed tokens carry the
// current role and inactive accounts stop refreshing.
type PrincipalSource interface {
	Principal(ctx context.Context, userID string) (Principal, error)
}

// TokenObserver is notified of every token operation outcome.
type TokenObserver func(op string, err error)

// TokenService issues, verifies, rotates and revokes session credentials.
type TokenService struct {
	cfg      TokenConfig
	ledger   Ledger
	source   PrincipalSource
	observer TokenObserver
	now      func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithPrincipalSource enables role reload on refresh.
func WithPrincipalSource(src PrincipalSource) TokenOption {
	return func(s *TokenService) { s.source = src }
}

// WithTokenObserver registers a callback for metrics.
func WithTokenObserver(fn TokenObserver) TokenOption {
	return func(s *TokenService) { s.observer = fn }
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService validates cfg and builds the service.
func NewTokenService(cfg TokenConfig, ledger Ledger, opts ...TokenOption) (*TokenService, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("auth: token secret must be at least 32 bytes")
	}
	if ledger == nil {
		return nil, errors.New("auth: revocation ledger is required")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("auth: refresh ttl must exceed access ttl")
	}
	s := &TokenService{cfg: cfg, ledger: ledger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssuePair signs an access and a refresh token sharing a fresh token id and
// records the id as active in the ledger.
func (s *TokenService) IssuePair(ctx context.Context, p Principal) (pair TokenPair, err error) {
	defer func() { s.observe("issue", err) }()
	return s.issue(ctx, p)
}

func (s *TokenService) issue(ctx context.Context, p Principal) (TokenPair, error) {
	if strings.TrimSpace(p.ID) == "" {
		return TokenPair{}, fmt.Errorf("%w: principal id is required", ErrInvalidInput)
	}
	if !p.Role.Valid() {
		return TokenPair{}, fmt.Errorf("%w: %q", ErrInvalidRole, string(p.Role))
	}
	now := s.now().UTC().Truncate(time.Second)
	tokenID := ids.New()
	accessExp := now.Add(s.cfg.AccessTTL)
	refreshExp := now.Add(s.cfg.RefreshTTL)

	access, err := s.sign(p, tokenID, tokenTypeAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(p, tokenID, tokenTypeRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.ledger.Record(ctx, LedgerEntry{
		TokenID:   tokenID,
		UserID:    p.ID,
		State:     TokenActive,
		IssuedAt:  now,
		ExpiresAt: refreshExp,
	}); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		TokenID:          tokenID,
	}, nil
}

// VerifyAccess checks signature and expiry of an access token. It does not
// consult the ledger; access tokens are short-lived instead.
func (s *TokenService) VerifyAccess(token string) (Principal, error) {
	claims, err := s.parse(token, tokenTypeAccess, true)
	if err != nil {
		return Principal{}, err
	}
	return Principal{ID: claims.Subject, Role: claims.Role, Active: true}, nil
}

// Refresh rotates a refresh token. The old id is marked rotated by a single
// conditional ledger update; a second use yields ErrTokenReused.
func (s *TokenService) Refresh(ctx context.Context, token string) (pair TokenPair, err error) {
	defer func() { s.observe("refresh", err) }()

	claims, err := s.parse(token, tokenTypeRefresh, true)
	if err != nil {
		return TokenPair{}, err
	}
	if _, err := s.ledger.Consume(ctx, claims.ID, TokenRotated, s.now().UTC()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrTokenInvalid
		}
		return TokenPair{}, err
	}

	principal := Principal{ID: claims.Subject, Role: claims.Role, Active: true}
	if s.source != nil {
		principal, err = s.source.Principal(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return TokenPair{}, ErrTokenInvalid
			}
			return TokenPair{}, err
		}
		if !principal.Active {
			return TokenPair{}, ErrTokenInvalid
		}
	}
	return s.issue(ctx, principal)
}

// Revoke marks the refresh token's id revoked. It is idempotent: revoking an
// already consumed or unknown id succeeds. Expired tokens may still be revoked
// but the signature must verify.
func (s *TokenService) Revoke(ctx context.Context, token string) (err error) {
	defer func() { s.observe("revoke", err) }()

	claims, err := s.parse(token, tokenTypeRefresh, false)
	if err != nil {
		return err
	}
	entry := LedgerEntry{TokenID: claims.ID, UserID: claims.Subject, State: TokenRevoked}
	if claims.IssuedAt != nil {
		entry.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		entry.ExpiresAt = claims.ExpiresAt.Time
	}
	return s.ledger.Revoke(ctx, entry, s.now().UTC())
}

// RevokeAll revokes every active session of userID.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) (n int, err error) {
	defer func() { s.observe("revoke_all", err) }()
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.ledger.RevokeAllForUser(ctx, userID, s.now().UTC())
}

// PurgeExpired drops ledger entries that expired before now. Expired entries
// are rejected by their timestamp anyway, so this is housekeeping only.
func (s *TokenService) PurgeExpired(ctx context.Context) (int, error) {
	return s.ledger.Purge(ctx, s.now().UTC())
}

func (s *TokenService) sign(p Principal, tokenID, typ string, now, exp time.Time) (string, error) {
	claims := Claims{
		Role:      p.Role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        tokenID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) parse(token, wantType string, checkExpiry bool) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(5 * time.Second),
	}
	if !checkExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != wantType || strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	if !checkExpiry && claims.Issuer != s.cfg.Issuer {
		return nil, ErrTokenInvalid
	}
	if !claims.Role.Valid() {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *TokenService) observe(op string, err error) {
	if s.observer != nil {
		s.observer(op, err)
	}
}
