package credential

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, userID int64, expiry time.Time) string {
	t.Helper()

	claims := jwt.MapClaims{
		"userId":   userID,
		"username": "casey",
		"exp":      expiry.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestStore_SetAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryStorage(), 3*time.Minute)

	access := signedToken(t, 42, time.Now().Add(time.Hour))
	refresh := signedToken(t, 42, time.Now().Add(24*time.Hour))

	err := store.Set(ctx, Pair{AccessToken: access, RefreshToken: refresh})
	require.NoError(t, err)

	assert.Equal(t, access, store.Access())
	assert.Equal(t, refresh, store.Refresh())
}

func TestStore_SetRetainsRefreshWhenOmitted(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryStorage(), 3*time.Minute)

	refresh := signedToken(t, 42, time.Now().Add(24*time.Hour))
	require.NoError(t, store.Set(ctx, Pair{AccessToken: "first", RefreshToken: refresh}))

	// rotation that only replaces the access token
	require.NoError(t, store.Set(ctx, Pair{AccessToken: "second"}))

	assert.Equal(t, "second", store.Access())
	assert.Equal(t, refresh, store.Refresh())
}

func TestStore_PersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	store := NewStore(storage, 3*time.Minute)

	access := signedToken(t, 7, time.Now().Add(time.Hour))
	require.NoError(t, store.Set(ctx, Pair{AccessToken: access, RefreshToken: "refresh-token"}))
	require.NoError(t, store.SetIdentity(ctx, Identity{ID: 7, Username: "casey", Email: "casey@example.com"}))

	reloaded := NewStore(storage, 3*time.Minute)

	assert.Equal(t, access, reloaded.Access())
	assert.Equal(t, "refresh-token", reloaded.Refresh())

	identity, ok := reloaded.Identity()
	require.True(t, ok)
	assert.Equal(t, int64(7), identity.ID)
	assert.Equal(t, "casey", identity.Username)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryStorage(), 3*time.Minute)

	require.NoError(t, store.Set(ctx, Pair{AccessToken: "access", RefreshToken: "refresh"}))
	require.NoError(t, store.SetIdentity(ctx, Identity{ID: 1}))

	require.NoError(t, store.Clear(ctx))

	assert.Empty(t, store.Access())
	assert.Empty(t, store.Refresh())
	_, ok := store.Identity()
	assert.False(t, ok)
}

func TestStore_Valid(t *testing.T) {
	store := NewStore(NewMemoryStorage(), 3*time.Minute)

	assert.True(t, store.Valid(signedToken(t, 42, time.Now().Add(time.Hour))))
	assert.False(t, store.Valid(signedToken(t, 42, time.Now().Add(-time.Minute))), "expired token")
	assert.False(t, store.Valid("not-a-jwt"), "malformed token")
	assert.False(t, store.Valid(""), "empty token")
}

func TestStore_NearExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryStorage(), 3*time.Minute)

	// expires within the window
	require.NoError(t, store.Set(ctx, Pair{AccessToken: signedToken(t, 1, time.Now().Add(time.Minute))}))
	assert.True(t, store.NearExpiry())

	// comfortably far from expiry
	require.NoError(t, store.Set(ctx, Pair{AccessToken: signedToken(t, 1, time.Now().Add(time.Hour))}))
	assert.False(t, store.NearExpiry())

	// already expired: renewal happens reactively, not proactively
	require.NoError(t, store.Set(ctx, Pair{AccessToken: signedToken(t, 1, time.Now().Add(-time.Minute))}))
	assert.False(t, store.NearExpiry())
}

func TestParseClaims(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	claims, err := ParseClaims(signedToken(t, 42, expiry))
	require.NoError(t, err)

	assert.Equal(t, "42", claims.Subject)
	assert.WithinDuration(t, expiry, claims.Expiry, time.Second)
}

func TestParseClaims_NoExpiry(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": 42,
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = ParseClaims(token)
	assert.ErrorContains(t, err, "expiry")
}

func TestFileStorage_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tandem.json")

	storage, err := OpenFileStorage(path)
	require.NoError(t, err)

	require.NoError(t, storage.Set("accessToken", "token-value"))
	require.NoError(t, storage.Set("user", `{"id":7}`))

	// a fresh open simulates a process restart
	reopened, err := OpenFileStorage(path)
	require.NoError(t, err)

	value, ok := reopened.Get("accessToken")
	require.True(t, ok)
	assert.Equal(t, "token-value", value)

	require.NoError(t, reopened.Delete("accessToken"))
	_, ok = reopened.Get("accessToken")
	assert.False(t, ok)

	require.NoError(t, reopened.Clear())
	_, ok = reopened.Get("user")
	assert.False(t, ok)
}

func TestFileStorage_MissingFile(t *testing.T) {
	storage, err := OpenFileStorage(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	_, ok := storage.Get("anything")
	assert.False(t, ok)
}
