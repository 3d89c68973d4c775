package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/service-desk/internal/domain"
)

var (
	// ErrTokenExpired is returned for structurally valid but expired access tokens.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed covers unparseable tokens and access/refresh misuse.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrInvalidRefreshToken is returned when a refresh token cannot be honored.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// TokenUse distinguishes the two halves of a token pair. Refresh tokens are
// single-purpose: they never pass an access-token check and vice versa.
type TokenUse string

const (
	UseAccess  TokenUse = "access"
	UseRefresh TokenUse = "refresh"
)

// Claims describes the JWT payload for both token kinds.
type Claims struct {
	UserID         string          `json:"uid"`
	Role           domain.UserRole `json:"role"`
	OrganizationID *string         `json:"org,omitempty"`
	TokenUse       TokenUse        `json:"use"`
	LineageID      string          `json:"lineage"`
	jwt.RegisteredClaims
}

// TokenPair bundles a freshly issued access/refresh pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// RefreshStore tracks revoked refresh lineages. Revocation invalidates every
// refresh token descended from the same login.
type RefreshStore interface {
	Revoke(ctx context.Context, lineageID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, lineageID string) (bool, error)
}

// TokenManager issues, validates, and refreshes token pairs.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      RefreshStore
	now        func() time.Time
}

// NewTokenManager builds a manager. store may be nil, in which case refresh
// revocation is unavailable and logout is a client-side discard.
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration, store RefreshStore) *TokenManager {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		store:      store,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (tm *TokenManager) WithClock(now func() time.Time) *TokenManager {
	tm.now = now
	return tm
}

// IssuePair signs a new access/refresh pair for the user, starting a fresh
// refresh lineage.
func (tm *TokenManager) IssuePair(user *domain.User) (TokenPair, error) {
	lineage := uuid.NewString()

	access, accessExp, err := tm.sign(user.ID, user.Role, user.OrganizationID, UseAccess, lineage, tm.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := tm.sign(user.ID, user.Role, user.OrganizationID, UseRefresh, lineage, tm.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ParseAccess validates an access token and returns its claims.
func (tm *TokenManager) ParseAccess(tokenStr string) (*Claims, error) {
	claims, err := tm.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenUse != UseAccess {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// Refresh validates a refresh token and mints a new access token bound to
// the same identity and lineage.
func (tm *TokenManager) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := tm.parse(refreshToken)
	if err != nil {
		return "", time.Time{}, ErrInvalidRefreshToken
	}
	if claims.TokenUse != UseRefresh {
		return "", time.Time{}, ErrInvalidRefreshToken
	}
	if tm.store != nil {
		revoked, err := tm.store.IsRevoked(ctx, claims.LineageID)
		if err != nil {
			return "", time.Time{}, err
		}
		if revoked {
			return "", time.Time{}, ErrInvalidRefreshToken
		}
	}
	return tm.signFromClaims(claims)
}

// Revoke invalidates the lineage of the given refresh token. Unparseable
// input is reported as ErrInvalidRefreshToken.
func (tm *TokenManager) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := tm.parse(refreshToken)
	if err != nil || claims.TokenUse != UseRefresh {
		return ErrInvalidRefreshToken
	}
	if tm.store == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return tm.store.Revoke(ctx, claims.LineageID, ttl)
}

func (tm *TokenManager) signFromClaims(claims *Claims) (string, time.Time, error) {
	return tm.sign(claims.UserID, claims.Role, claims.OrganizationID, UseAccess, claims.LineageID, tm.accessTTL)
}

func (tm *TokenManager) sign(userID string, role domain.UserRole, orgID *string, use TokenUse, lineage string, ttl time.Duration) (string, time.Time, error) {
	issuedAt := tm.now()
	expiresAt := issuedAt.Add(ttl)
	claims := &Claims{
		UserID:         userID,
		Role:           role,
		OrganizationID: orgID,
		TokenUse:       use,
		LineageID:      lineage,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

func (tm *TokenManager) parse(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// MemoryRefreshStore is the single-process fallback revocation store, also
// used by tests.
type MemoryRefreshStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewMemoryRefreshStore builds an empty store.
func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{revoked: make(map[string]time.Time)}
}

func (s *MemoryRefreshStore) Revoke(_ context.Context, lineageID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[lineageID] = time.Now().Add(ttl)
	return nil
}

func (s *MemoryRefreshStore) IsRevoked(_ context.Context, lineageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.revoked[lineageID]
	if !ok {
		return false, nil
	}
	if time.Now().After(until) {
		delete(s.revoked, lineageID)
		return false, nil
	}
	return true, nil
}
