package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// SourceType identifies where a configuration value came from.
type SourceType string

const (
	SourceDefault SourceType = "default"
	SourceYAML    SourceType = "yaml"
	SourceCLI     SourceType = "cli"
	SourceEnv     SourceType = "env"
)

// Source supplies a nested map of configuration values.
type Source interface {
	Load() (map[string]any, error)
	Type() SourceType
}

// Loader merges defaults, file sources, the environment and CLI flags, in
// that order of increasing precedence.
type Loader struct {
	koanf     *koanf.Koanf
	validator *validator.Validate
	environ   func() []string
}

func NewLoader() *Loader {
	return &Loader{
		koanf:     koanf.New("."),
		validator: validator.New(),
	}
}

// WithEnviron overrides the environment reader; tests use it to avoid os.Setenv.
func (l *Loader) WithEnviron(fn func() []string) *Loader {
	l.environ = fn
	return l
}

// Load returns a validated configuration.
func (l *Loader) Load(_ context.Context, sources ...Source) (*Config, error) {
	l.koanf = koanf.New(".")
	if err := l.koanf.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	var flags []Source
	for _, src := range sources {
		if src == nil {
			continue
		}
		if src.Type() == SourceCLI {
			flags = append(flags, src)
			continue
		}
		if err := l.apply(src); err != nil {
			return nil, err
		}
	}
	if err := l.loadEnvironment(); err != nil {
		return nil, err
	}
	for _, src := range flags {
		if err := l.apply(src); err != nil {
			return nil, err
		}
	}
	return l.unmarshalAndValidate()
}

func (l *Loader) apply(src Source) error {
	data, err := src.Load()
	if err != nil {
		return fmt.Errorf("failed to load from source %s: %w", src.Type(), err)
	}
	for key, value := range flattenMap("", data) {
		if err := l.koanf.Set(key, value); err != nil {
			return fmt.Errorf("failed to set key %s from source %s: %w", key, src.Type(), err)
		}
	}
	return nil
}

func (l *Loader) loadEnvironment() error {
	paths := make(map[string]string)
	for _, m := range EnvMappings() {
		paths[m.EnvVar] = m.ConfigPath
	}
	opt := env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			path, ok := paths[key]
			if !ok {
				return "", nil
			}
			return path, value
		},
	}
	if l.environ != nil {
		opt.EnvironFunc = l.environ
	}
	if err := l.koanf.Load(env.Provider(".", opt), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	return nil
}

func flattenMap(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for fk, fv := range flattenMap(key, nested) {
				out[fk] = fv
			}
			continue
		}
		out[key] = v
	}
	return out
}

func sensitiveStringHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(SensitiveString("")) {
		return data, nil
	}
	if s, ok := data.(string); ok {
		return SensitiveString(s), nil
	}
	return data, nil
}

func (l *Loader) unmarshalAndValidate() (*Config, error) {
	var cfg Config
	if err := l.koanf.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				sensitiveStringHook,
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks struct tags and cross-field constraints.
func (l *Loader) Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration cannot be nil")
	}
	if err := l.validator.Struct(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return validateCustom(cfg)
}

func validateCustom(cfg *Config) error {
	db := cfg.Database
	if db.ConnString == "" && (db.Host == "" || db.Port == "" || db.User == "" || db.DBName == "") {
		return errors.New("database configuration incomplete: either conn_string or individual components required")
	}
	ex := cfg.Execution
	if ex.MinTimeout <= 0 || ex.MaxTimeout < ex.MinTimeout {
		return fmt.Errorf("execution timeouts invalid: min=%s max=%s", ex.MinTimeout, ex.MaxTimeout)
	}
	if ex.DefaultTimeout < ex.MinTimeout || ex.DefaultTimeout > ex.MaxTimeout {
		return fmt.Errorf("execution default_timeout %s outside [%s, %s]", ex.DefaultTimeout, ex.MinTimeout, ex.MaxTimeout)
	}
	if ex.Reaper.Enabled && ex.Reaper.StaleAfter <= ex.MaxTimeout {
		return errors.New("execution reaper stale_after must exceed max_timeout")
	}
	if cfg.Provisioning.DefaultCredits != "" {
		if _, err := decimal.NewFromString(cfg.Provisioning.DefaultCredits); err != nil {
			return fmt.Errorf("provisioning default_credits: %w", err)
		}
	}
	return nil
}
