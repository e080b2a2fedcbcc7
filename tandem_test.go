package tandem

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talent-tandem/tandem-go/config"
	"github.com/talent-tandem/tandem-go/credential"
)

func defaultConfig(t *testing.T) config.Config {
	t.Helper()

	cfg, err := config.Load(context.Background())
	require.NoError(t, err)
	return cfg
}

func TestNew_BuildsComponentGraph(t *testing.T) {
	core, err := New(context.Background(), defaultConfig(t))
	require.NoError(t, err)
	defer core.Close()

	assert.NotNil(t, core.Credentials)
	assert.NotNil(t, core.Cache)
	assert.NotNil(t, core.API)
	assert.NotNil(t, core.Channel)
	assert.NotNil(t, core.Router)
}

func TestNew_ResumesSessionFromStorage(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Storage.Path = filepath.Join(t.TempDir(), "credentials.json")

	first, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, first.Credentials.Set(context.Background(), credential.Pair{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
	}))
	first.Close()

	second, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, "access-token", second.Credentials.Access())
	assert.Equal(t, "refresh-token", second.Credentials.Refresh())
}

func TestConnectRealtime_RequiresIdentity(t *testing.T) {
	core, err := New(context.Background(), defaultConfig(t))
	require.NoError(t, err)
	defer core.Close()

	err = core.ConnectRealtime(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log in")
}
