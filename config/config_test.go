package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/teradl/config"
)

const validConfig = `
resolver:
  base_url: https://resolver.example.com/api
  key: secret
subscription:
  channel: "@NetFusionTG"
  group: "@YourNetFusion"
allowed_groups:
  - id: -1001234567890
    name: main
save_peer: "@teradl_saves"
limits:
  dm_max_size: 1 GiB
  group_max_size: ""
cooldown: 45s
`

func TestFromString(t *testing.T) {
	t.Parallel()

	t.Run("Valid", func(t *testing.T) {
		t.Parallel()

		cfg, err := config.FromString(validConfig)
		require.NoError(t, err)

		assert.Equal(t, "https://resolver.example.com/api", cfg.Resolver.BaseURL)
		assert.Equal(t, 3, cfg.Resolver.MaxAttempts)
		assert.Equal(t, 15*time.Second, cfg.Resolver.Timeout)
		assert.Equal(t, "https://t.me/NetFusionTG", cfg.Subscription.ChannelURL)
		assert.Equal(t, "https://t.me/YourNetFusion", cfg.Subscription.GroupURL)
		assert.Equal(t, int64(1<<30), cfg.Limits.DMMaxSize.Ceiling())
		assert.Equal(t, int64(-1), cfg.Limits.GroupMaxSize.Ceiling())
		assert.Equal(t, "Unlimited", cfg.Limits.GroupMaxSize.String())
		assert.Equal(t, 45*time.Second, cfg.Cooldown)
		assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
		assert.Equal(t, "pretty", cfg.Log.Format)
		assert.True(t, cfg.IsAllowedGroup(-1001234567890))
		assert.False(t, cfg.IsAllowedGroup(-42))
	})

	t.Run("MissingKey", func(t *testing.T) {
		t.Parallel()

		_, err := config.FromString(`
resolver:
  base_url: https://resolver.example.com/api
subscription:
  channel: a
  group: b
`)
		require.ErrorContains(t, err, "resolver key is empty")
	})

	t.Run("InvalidSize", func(t *testing.T) {
		t.Parallel()

		_, err := config.FromString(`
resolver:
  base_url: https://resolver.example.com/api
  key: k
subscription:
  channel: a
  group: b
limits:
  dm_max_size: lots
`)
		require.ErrorContains(t, err, "invalid size")
	})

	t.Run("PositiveGroupID", func(t *testing.T) {
		t.Parallel()

		_, err := config.FromString(`
resolver:
  base_url: https://resolver.example.com/api
  key: k
subscription:
  channel: a
  group: b
allowed_groups:
  - id: 12
    name: wrong
`)
		require.ErrorContains(t, err, "non-negative id")
	})
}

func TestFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o600))

	cfg, err := config.FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "@teradl_saves", cfg.SavePeer)

	_, err = config.FromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
