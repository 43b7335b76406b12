package config

import (
	"reflect"
	"sync"
)

// EnvMapping binds an environment variable to a koanf path.
type EnvMapping struct {
	EnvVar     string
	ConfigPath string
	Sensitive  bool
}

var (
	envMappings     []EnvMapping
	envMappingsOnce sync.Once
)

// EnvMappings walks the Config struct tags once and caches the result.
func EnvMappings() []EnvMapping {
	envMappingsOnce.Do(func() {
		envMappings = collectEnvMappings(reflect.TypeOf(Config{}), "")
	})
	return envMappings
}

func collectEnvMappings(t reflect.Type, prefix string) []EnvMapping {
	var out []EnvMapping
	for i := range t.NumField() {
		field := t.Field(i)
		key := field.Tag.Get("koanf")
		if !field.IsExported() || key == "" || key == "-" {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if env := field.Tag.Get("env"); env != "" {
			out = append(out, EnvMapping{
				EnvVar:     env,
				ConfigPath: path,
				Sensitive:  field.Tag.Get("sensitive") == "true" || field.Type == reflect.TypeOf(SensitiveString("")),
			})
		}
		if field.Type.Kind() == reflect.Struct && field.Type.PkgPath() != "time" {
			out = append(out, collectEnvMappings(field.Type, path)...)
		}
	}
	return out
}

// IsSensitivePath reports whether the value at path must never be printed.
func IsSensitivePath(path string) bool {
	for _, m := range EnvMappings() {
		if m.ConfigPath == path {
			return m.Sensitive
		}
	}
	return false
}
