package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func environ(vars map[string]string) func() []string {
	return func() []string {
		out := make([]string, 0, len(vars))
		for k, v := range vars {
			out = append(out, fmt.Sprintf("%s=%s", k, v))
		}
		return out
	}
}

func TestLoader_Load(t *testing.T) {
	t.Run("Should load defaults when no source is given", func(t *testing.T) {
		cfg, err := NewLoader().WithEnviron(environ(nil)).Load(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 5001, cfg.Server.Port)
		assert.Equal(t, "canvas", cfg.Gateway.CallerService)
		assert.Equal(t, 30*time.Second, cfg.Execution.DefaultTimeout)
		assert.Equal(t, int64(30), cfg.RateLimit.UserPerMinute)
	})

	t.Run("Should apply YAML then environment with env taking precedence", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "blockgate.yaml")
		yamlDoc := "server:\n  port: 7000\ngateway:\n  caller_service: ledger\nexecution:\n  default_timeout: 45s\n"
		require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))
		cfg, err := NewLoader().
			WithEnviron(environ(map[string]string{
				"SERVER_PORT":          "7100",
				"GATEWAY_IP_ALLOWLIST": "10.0.0.1,10.0.0.2",
				"DB_PASSWORD":          "s3cret",
				"UNRELATED_VAR":        "ignored",
			})).
			Load(t.Context(), NewYAMLSource(path))
		require.NoError(t, err)
		assert.Equal(t, 7100, cfg.Server.Port)
		assert.Equal(t, "ledger", cfg.Gateway.CallerService)
		assert.Equal(t, 45*time.Second, cfg.Execution.DefaultTimeout)
		assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Gateway.IPAllowlist)
		assert.Equal(t, "s3cret", cfg.Database.Password.Value())
	})

	t.Run("Should apply CLI flags over YAML", func(t *testing.T) {
		cfg, err := NewLoader().WithEnviron(environ(nil)).Load(
			t.Context(),
			NewCLISource(map[string]any{"server.host": "127.0.0.1", "runtime.log_level": "debug"}),
		)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, "debug", cfg.Runtime.LogLevel)
	})

	t.Run("Should let CLI flags win over the environment", func(t *testing.T) {
		cfg, err := NewLoader().WithEnviron(environ(map[string]string{"SERVER_PORT": "7000"})).Load(
			t.Context(),
			NewCLISource(map[string]any{"server.port": 7100}),
		)
		require.NoError(t, err)
		assert.Equal(t, 7100, cfg.Server.Port)
	})

	t.Run("Should reject a default timeout outside the allowed range", func(t *testing.T) {
		_, err := NewLoader().
			WithEnviron(environ(map[string]string{"EXECUTION_DEFAULT_TIMEOUT": "10m"})).
			Load(t.Context())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "default_timeout")
	})

	t.Run("Should reject invalid log level", func(t *testing.T) {
		_, err := NewLoader().
			WithEnviron(environ(map[string]string{"RUNTIME_LOG_LEVEL": "loud"})).
			Load(t.Context())
		require.Error(t, err)
	})

	t.Run("Should reject malformed default credits", func(t *testing.T) {
		_, err := NewLoader().
			WithEnviron(environ(map[string]string{"PROVISIONING_DEFAULT_CREDITS": "ten"})).
			Load(t.Context())
		require.ErrorContains(t, err, "default_credits")
	})
}

func TestSensitiveString(t *testing.T) {
	t.Run("Should hide value in string and JSON forms", func(t *testing.T) {
		s := SensitiveString("hunter2")
		assert.Equal(t, "[REDACTED]", s.String())
		raw, err := json.Marshal(struct{ P SensitiveString }{P: s})
		require.NoError(t, err)
		assert.JSONEq(t, `{"P":"[REDACTED]"}`, string(raw))
		assert.Equal(t, "hunter2", s.Value())
	})

	t.Run("Should mark sensitive paths", func(t *testing.T) {
		assert.True(t, IsSensitivePath("database.password"))
		assert.True(t, IsSensitivePath("redis.password"))
		assert.False(t, IsSensitivePath("server.port"))
	})
}

func TestFromContext(t *testing.T) {
	t.Run("Should return attached config or defaults", func(t *testing.T) {
		cfg := Default()
		cfg.Server.Port = 9999
		assert.Equal(t, 9999, FromContext(ContextWithConfig(t.Context(), cfg)).Server.Port)
		assert.Equal(t, 5001, FromContext(t.Context()).Server.Port)
	})
}
