package execution

import (
	"dario.cat/mergo"
	"github.com/compozy/blockgate/pkg/config"
)

// ResolveConfig overlays the non-zero fields of cfg on the built-in execution
// defaults.
func ResolveConfig(cfg *config.ExecutionConfig) config.ExecutionConfig {
	resolved := config.Default().Execution
	if cfg == nil {
		return resolved
	}
	if err := mergo.Merge(&resolved, *cfg, mergo.WithOverride); err != nil {
		return *cfg
	}
	return resolved
}
