package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type yamlSource struct {
	path string
}

// NewYAMLSource reads a YAML file; a missing file yields no values.
func NewYAMLSource(path string) Source {
	return &yamlSource{path: path}
}

func (y *yamlSource) Load() (map[string]any, error) {
	if y.path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(y.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to read YAML file: %w", err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file: %w", err)
	}
	return dropNil(out), nil
}

func (y *yamlSource) Type() SourceType { return SourceYAML }

func dropNil(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case nil:
			continue
		case map[string]any:
			if nested := dropNil(t); len(nested) > 0 {
				out[k] = nested
			}
		default:
			out[k] = v
		}
	}
	return out
}

type cliSource struct {
	flags map[string]any
}

// NewCLISource turns dotted flag paths ("server.port") into nested values.
func NewCLISource(flags map[string]any) Source {
	return &cliSource{flags: flags}
}

func (c *cliSource) Load() (map[string]any, error) {
	out := make(map[string]any)
	for path, value := range c.flags {
		if value == nil {
			continue
		}
		if err := setNested(out, path, value); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *cliSource) Type() SourceType { return SourceCLI }

func setNested(m map[string]any, path string, value any) error {
	parts := strings.Split(path, ".")
	current := m
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part]
		if !ok {
			child := make(map[string]any)
			current[part] = child
			current = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("config path conflict at %q in %q", part, path)
		}
		current = child
	}
	current[parts[len(parts)-1]] = value
	return nil
}
