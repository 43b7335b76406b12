package execution

import (
	"testing"
	"time"

	"github.com/compozy/blockgate/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestResolveConfig(t *testing.T) {
	defaults := config.Default().Execution

	t.Run("Should fall back to defaults for unset fields", func(t *testing.T) {
		cfg := ResolveConfig(&config.ExecutionConfig{DefaultTimeout: 2 * time.Second})
		assert.Equal(t, 2*time.Second, cfg.DefaultTimeout)
		assert.Equal(t, defaults.MinTimeout, cfg.MinTimeout)
		assert.Equal(t, defaults.MaxTimeout, cfg.MaxTimeout)
		assert.Equal(t, defaults.BackgroundCeiling, cfg.BackgroundCeiling)
		assert.Equal(t, defaults.Reaper.Schedule, cfg.Reaper.Schedule)
	})

	t.Run("Should return the defaults for a nil config", func(t *testing.T) {
		assert.Equal(t, defaults, ResolveConfig(nil))
	})
}
