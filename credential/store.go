// Package credential owns the client's access/refresh credential pair and
// its durable persistence. It answers validity and near-expiry queries for
// the request pipeline and the background renewer; it never makes network
// calls of its own.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Storage keys. These mirror the flat key→string layout the backend's web
// client uses, so the stored state is inspectable with ordinary tools.
const (
	keyAccessToken  = "accessToken"
	keyRefreshToken = "refreshToken"
	keyUser         = "user"
)

// Pair is an access/refresh credential pair as issued by the login and
// token-refresh endpoints.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Identity is the minimal user record persisted alongside the credential
// pair.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Claims are the token claims the client inspects. The client cannot (and
// does not need to) verify the backend's signature: structural
// well-formedness plus an unexpired expiry claim is what validity means on
// this side of the wire.
type Claims struct {
	Subject string
	Expiry  time.Time
}

// Store holds the current credential pair and identity, persisting every
// mutation synchronously so a process restart observes the latest state.
type Store struct {
	mu            sync.RWMutex
	storage       Storage
	renewalWindow time.Duration

	pair        Pair
	identity    Identity
	hasIdentity bool
}

// NewStore creates a credential store backed by the given storage, loading
// any previously persisted state. renewalWindow is the margin before expiry
// at which NearExpiry starts reporting true.
func NewStore(storage Storage, renewalWindow time.Duration) *Store {
	s := &Store{
		storage:       storage,
		renewalWindow: renewalWindow,
	}

	s.pair.AccessToken, _ = storage.Get(keyAccessToken)
	s.pair.RefreshToken, _ = storage.Get(keyRefreshToken)

	if raw, ok := storage.Get(keyUser); ok {
		if err := json.Unmarshal([]byte(raw), &s.identity); err != nil {
			log.Warn().Err(err).Msg("credential: discarding unreadable stored identity")
		} else {
			s.hasIdentity = true
		}
	}

	return s
}

// Access returns the current access token, or the empty string when none is
// held.
func (s *Store) Access() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pair.AccessToken
}

// Refresh returns the current refresh token, or the empty string when none
// is held.
func (s *Store) Refresh() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pair.RefreshToken
}

// Set replaces the held pair and persists it before returning. An empty
// refresh token in the new pair retains the existing refresh token: the
// refresh endpoint may rotate only the access token.
func (s *Store) Set(ctx context.Context, pair Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pair.RefreshToken == "" {
		pair.RefreshToken = s.pair.RefreshToken
	}

	if err := s.storage.Set(keyAccessToken, pair.AccessToken); err != nil {
		return fmt.Errorf("persisting access token: %w", err)
	}
	if err := s.storage.Set(keyRefreshToken, pair.RefreshToken); err != nil {
		return fmt.Errorf("persisting refresh token: %w", err)
	}

	s.pair = pair

	log.Ctx(ctx).Debug().Msg("credential: pair updated")
	return nil
}

// SetIdentity persists the user identity record.
func (s *Store) SetIdentity(ctx context.Context, identity Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encoding identity: %w", err)
	}
	if err := s.storage.Set(keyUser, string(raw)); err != nil {
		return fmt.Errorf("persisting identity: %w", err)
	}

	s.identity = identity
	s.hasIdentity = true
	return nil
}

// Identity returns the persisted user identity, if one is held.
func (s *Store) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.identity, s.hasIdentity
}

// Clear removes the pair, the identity and all other persisted state. Called
// on logout and on irrecoverable renewal failure.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Clear(); err != nil {
		return fmt.Errorf("clearing credential storage: %w", err)
	}

	s.pair = Pair{}
	s.identity = Identity{}
	s.hasIdentity = false

	log.Ctx(ctx).Debug().Msg("credential: cleared")
	return nil
}

// Valid reports whether the token is structurally well-formed, carries a
// subject, and is unexpired.
func (s *Store) Valid(token string) bool {
	claims, err := ParseClaims(token)
	if err != nil {
		return false
	}

	return claims.Subject != "" && time.Now().Before(claims.Expiry)
}

// Authenticated reports whether a currently-valid access token is held.
func (s *Store) Authenticated() bool {
	return s.Valid(s.Access())
}

// NearExpiry reports whether the access token expires within the renewal
// window but has not yet expired. An already-expired token is not "near
// expiry": renewal for it happens reactively via the 401 path.
func (s *Store) NearExpiry() bool {
	claims, err := ParseClaims(s.Access())
	if err != nil {
		return false
	}

	now := time.Now()
	return claims.Expiry.After(now) && claims.Expiry.Sub(now) < s.renewalWindow
}

// ParseClaims decodes the claims the client cares about from a token,
// without signature verification.
func ParseClaims(token string) (Claims, error) {
	if token == "" {
		return Claims{}, errors.New("empty token")
	}

	mapClaims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, mapClaims); err != nil {
		return Claims{}, fmt.Errorf("malformed token: %w", err)
	}

	exp, err := mapClaims.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, errors.New("token has no expiry claim")
	}

	claims := Claims{Expiry: exp.Time}

	// The backend carries the user ID in a numeric userId claim; fall back
	// to the registered subject for tokens that use it instead.
	switch userID := mapClaims["userId"].(type) {
	case float64:
		claims.Subject = strconv.FormatInt(int64(userID), 10)
	case string:
		claims.Subject = userID
	default:
		if sub, err := mapClaims.GetSubject(); err == nil {
			claims.Subject = sub
		}
	}

	return claims, nil
}
