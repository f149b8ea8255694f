package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewManager_Defaults(t *testing.T) {
	m, err := NewManager(WithConfigFile(writeConfig(t, "{}\n")))
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Empty(t, cfg.Database.Host)
	assert.False(t, m.DatabaseEnabled())
	assert.Equal(t, time.Hour, cfg.Cache.DefaultTTL)
	assert.Equal(t, 1000, cfg.Cache.MemoryMaxItems)
	assert.Equal(t, "irb-determination-server", cfg.MCP.ServerName)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 20.0, cfg.RateLimit.RequestsPerSecond)
	assert.True(t, cfg.Engine.CacheResults)
	assert.True(t, m.IsDevelopment())
	assert.False(t, m.IsProduction())
	assert.NoError(t, m.Validate())
}

func TestNewManager_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
environment: production
server:
  port: 9000
database:
  host: db.internal
  database: irb
  username: irb_user
  password: from-file
cache:
  redis_url: redis://cache:6379/1
logging:
  level: debug
`)
	t.Setenv("IRB_DATABASE_PASSWORD", "from-env")
	t.Setenv("IRB_RATE_LIMIT_BURST", "5")

	m, err := NewManager(WithConfigFile(path))
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 9000, m.GetServerConfig().Port)
	assert.Equal(t, "db.internal", m.GetDatabaseConfig().Host)
	assert.Equal(t, "from-env", cfg.Database.Password, "environment wins over the file")
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, m.DatabaseEnabled())
	assert.True(t, m.IsProduction())
	assert.Equal(t, "redis://cache:6379/1", m.GetRedisConnectionString())
	assert.Equal(t,
		"host=db.internal port=5432 user=irb_user password=from-env dbname=irb sslmode=disable",
		m.GetDatabaseConnectionString())
	assert.NoError(t, m.Validate())
}

func TestNewManager_MissingExplicitFile(t *testing.T) {
	_, err := NewManager(WithConfigFile(filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Error(t, err)
}

func TestManager_Reload(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9001\n")
	m, err := NewManager(WithConfigFile(path))
	require.NoError(t, err)
	assert.Equal(t, 9001, m.GetServerConfig().Port)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9002\n"), 0o600))
	require.NoError(t, m.Reload())
	assert.Equal(t, 9002, m.GetServerConfig().Port)
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad port", "server:\n  port: 70000\n", "invalid server port"},
		{"tls without cert", "server:\n  tls_enabled: true\n", "TLS requires"},
		{"database without name", "database:\n  host: db\n  database: \"\"\n", "database name is required"},
		{"bad cache size", "cache:\n  memory_max_items: 0\n", "memory_max_items"},
		{"bad rate", "rate_limit:\n  requests_per_second: 0\n", "rate limit"},
		{"bad log level", "logging:\n  level: chatty\n", "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(WithConfigFile(writeConfig(t, tt.yaml)))
			require.NoError(t, err)

			err = m.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
