package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalYAML = `
database:
  user: exchange
  name: exchange
gateway:
  jwt_secret: secret
  admin_token: admin
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 4, cfg.RPC.Workers)
	assert.Equal(t, 10*time.Second, cfg.RPC.CallTimeout)
	assert.Equal(t, time.Hour, cfg.RPC.ResultTTL)
	assert.Equal(t, 5*time.Second, cfg.RPC.LockTTL)
	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.Equal(t, "postgres://exchange:@localhost:5432/exchange", cfg.Database.DSN())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SPOT_DATABASE_URL", "postgres://u:p@db:5432/x")
	t.Setenv("SPOT_JWT_SECRET", "from-env")
	t.Setenv("SPOT_REDIS_ADDR", "redis:6379")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.Database.DSN())
	assert.Equal(t, "from-env", cfg.Gateway.JWTSecret)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, minimalYAML))
		require.NoError(t, err)
		return cfg
	}

	t.Run("lock ttl must undercut call timeout", func(t *testing.T) {
		cfg := base()
		cfg.RPC.LockTTL = cfg.RPC.CallTimeout
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing jwt secret", func(t *testing.T) {
		cfg := base()
		cfg.Gateway.JWTSecret = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing database", func(t *testing.T) {
		cfg := base()
		cfg.Database = DatabaseConfig{}
		assert.Error(t, cfg.Validate())
	})
}
