// Package credential issues, verifies and rotates signed access/refresh
// token pairs.
//
// Tokens are HS256 JWTs carrying the subject, a unique id (jti), the expiry
// and a private "kind" claim. The manager keeps no copy of issued tokens;
// the only server-side state is the revocation store, which is consulted on
// every verification.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/txn2/trip-planner/pkg/metrics"
	"github.com/txn2/trip-planner/pkg/revocation"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	minSigningKeyLen  = 32
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

// Token kinds.
const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Config configures the credential manager.
type Config struct {
	// Issuer is written to and required in the iss claim.
	Issuer string

	// SigningKey is the HMAC key. Must be at least 32 bytes.
	SigningKey []byte

	// AccessTTL is the access token lifetime. Defaults to 15 minutes.
	AccessTTL time.Duration

	// RefreshTTL is the refresh token lifetime. Defaults to 7 days.
	RefreshTTL time.Duration
}

// Claims is the JWT claim set.
type Claims struct {
	Kind Kind `json:"kind"`
	jwt.RegisteredClaims
}

// Token is the verified content of a credential.
type Token struct {
	Subject   string
	ID        string
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Pair is a freshly issued access/refresh pair.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Manager implements the credential lifecycle.
type Manager struct {
	cfg     Config
	revoked revocation.Store
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithMetrics records credential events.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a credential manager backed by the given revocation store.
func NewManager(cfg Config, revoked revocation.Store, opts ...Option) (*Manager, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("credential issuer is required")
	}
	if len(cfg.SigningKey) < minSigningKeyLen {
		return nil, fmt.Errorf("credential signing key must be at least %d bytes", minSigningKeyLen)
	}
	if revoked == nil {
		return nil, fmt.Errorf("revocation store is required")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}

	m := &Manager{
		cfg:     cfg,
		revoked: revoked,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// IssueAccess issues a short-lived access token for subject.
func (m *Manager) IssueAccess(subject string) (string, *Token, error) {
	return m.issue(subject, KindAccess, m.cfg.AccessTTL)
}

// IssueRefresh issues a long-lived refresh token for subject.
func (m *Manager) IssueRefresh(subject string) (string, *Token, error) {
	return m.issue(subject, KindRefresh, m.cfg.RefreshTTL)
}

// IssuePair issues a new access and refresh token for subject.
func (m *Manager) IssuePair(subject string) (*Pair, error) {
	access, at, err := m.IssueAccess(subject)
	if err != nil {
		return nil, err
	}
	refresh, rt, err := m.IssueRefresh(subject)
	if err != nil {
		return nil, err
	}
	m.metrics.CredentialEvent(metrics.EventIssued)
	return &Pair{
		AccessToken:      access,
		AccessExpiresAt:  at.ExpiresAt,
		RefreshToken:     refresh,
		RefreshExpiresAt: rt.ExpiresAt,
	}, nil
}

func (m *Manager) issue(subject string, kind Kind, ttl time.Duration) (string, *Token, error) {
	if subject == "" {
		return "", nil, fmt.Errorf("subject is required")
	}

	now := m.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.SigningKey)
	if err != nil {
		return "", nil, fmt.Errorf("signing %s token: %w", kind, err)
	}
	return signed, claims.token(), nil
}

// Verify checks the signature, expiry and kind of a token and that its id
// has not been revoked.
func (m *Manager) Verify(ctx context.Context, tokenString string, expected Kind) (*Token, error) {
	tok, err := m.parse(tokenString)
	if err != nil {
		m.metrics.CredentialEvent(metrics.EventRejected)
		return nil, err
	}
	if tok.Kind != expected {
		m.metrics.CredentialEvent(metrics.EventRejected)
		return nil, fmt.Errorf("%w: got %s, want %s", ErrWrongKind, tok.Kind, expected)
	}

	revoked, err := m.revoked.Contains(ctx, tok.ID)
	if err != nil {
		return nil, fmt.Errorf("checking revocation: %w", err)
	}
	if revoked {
		m.metrics.CredentialEvent(metrics.EventRejected)
		return nil, ErrRevoked
	}
	return tok, nil
}

// Rotate exchanges a refresh token for a new pair. The presented token is
// revoked before the new pair is issued; of several concurrent rotations of
// the same token exactly one succeeds and the rest get ErrRevoked.
func (m *Manager) Rotate(ctx context.Context, refreshToken string) (*Pair, error) {
	tok, err := m.Verify(ctx, refreshToken, KindRefresh)
	if errors.Is(err, ErrRevoked) {
		m.reuseDetected(tok, refreshToken)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if err := m.revoked.Insert(ctx, tok.ID, tok.ExpiresAt); err != nil {
		if errors.Is(err, revocation.ErrAlreadyRevoked) {
			m.reuseDetected(tok, refreshToken)
			return nil, ErrRevoked
		}
		return nil, fmt.Errorf("revoking refresh token: %w", err)
	}

	pair, err := m.IssuePair(tok.Subject)
	if err != nil {
		return nil, err
	}
	m.metrics.CredentialEvent(metrics.EventRotated)
	return pair, nil
}

// RevokePair revokes both tokens of a pair (logout). Both must verify and
// belong to the same subject.
func (m *Manager) RevokePair(ctx context.Context, accessToken, refreshToken string) error {
	access, err := m.Verify(ctx, accessToken, KindAccess)
	if err != nil {
		return err
	}
	refresh, err := m.Verify(ctx, refreshToken, KindRefresh)
	if err != nil {
		return err
	}
	if access.Subject != refresh.Subject {
		return fmt.Errorf("%w: token subjects differ", ErrInvalid)
	}

	for _, tok := range []*Token{refresh, access} {
		if err := m.revoked.Insert(ctx, tok.ID, tok.ExpiresAt); err != nil {
			if errors.Is(err, revocation.ErrAlreadyRevoked) {
				return ErrRevoked
			}
			return fmt.Errorf("revoking %s token: %w", tok.Kind, err)
		}
	}
	m.metrics.CredentialEvent(metrics.EventRevoked)
	return nil
}

// parse validates the signature and registered claims and maps parser
// failures onto the package errors.
func (m *Manager) parse(tokenString string) (*Token, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return m.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", ErrInvalid)
	}
	if claims.Kind != KindAccess && claims.Kind != KindRefresh {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalid, claims.Kind)
	}
	return claims.token(), nil
}

// reuseDetected reports presentation of a refresh token that was already
// rotated or logged out. The legitimate holder and an attacker cannot both
// have used it, so the subject's credentials should be treated as leaked.
func (m *Manager) reuseDetected(tok *Token, raw string) {
	m.metrics.CredentialEvent(metrics.EventReuse)
	subject := ""
	if tok != nil {
		subject = tok.Subject
	} else if parsed, err := m.parse(raw); err == nil {
		subject = parsed.Subject
	}
	slog.Warn("refresh token reuse detected", "subject", subject)
}

func (c *Claims) token() *Token {
	t := &Token{
		Subject: c.Subject,
		ID:      c.ID,
		Kind:    c.Kind,
	}
	if c.IssuedAt != nil {
		t.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		t.ExpiresAt = c.ExpiresAt.Time
	}
	return t
}
