package block

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/compozy/blockgate/pkg/logger"
	"github.com/mohae/deepcopy"
)

// Hydrate fills defaults, applies the block transform and decodes JSON
// strings supplied for structured inputs. It never fails: faults in rules
// are logged and the affected step is skipped. The raw map is not modified.
func Hydrate(ctx context.Context, d *Descriptor, raw map[string]any) map[string]any {
	log := logger.FromContext(ctx).With("block_type", d.Type)
	params, ok := deepcopy.Copy(raw).(map[string]any)
	if !ok || params == nil {
		params = make(map[string]any)
	}
	for _, p := range d.Inputs {
		if _, present := params[p.Name]; present || p.Default == nil {
			continue
		}
		v, err := safeCall(func() (any, error) { return p.Default.Value(params) })
		if err != nil {
			log.Warn("Failed to compute parameter default", "param", p.Name, "error", err)
			continue
		}
		if v != nil {
			params[p.Name] = v
		}
	}
	if d.Transform != nil {
		out, err := safeCall(func() (map[string]any, error) { return d.Transform(params) })
		switch {
		case err != nil:
			log.Warn("Failed to transform parameters", "error", err)
		case len(out) > 0:
			maps.Copy(params, out)
		}
	}
	for _, p := range d.Inputs {
		if !p.Type.Structured() {
			continue
		}
		s, isString := params[p.Name].(string)
		if !isString || strings.TrimSpace(s) == "" {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			log.Warn("Leaving unparsable structured parameter as string", "param", p.Name, "error", err)
			continue
		}
		params[p.Name] = decoded
	}
	return params
}

// ResolveAction returns the action id bound for the hydrated parameters.
func ResolveAction(d *Descriptor, params map[string]any) (string, error) {
	if d.Bind != nil {
		id, err := safeCall(func() (string, error) { return d.Bind(params) })
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrNoAction, d.Type, err)
		}
		if id != "" {
			return id, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNoAction, d.Type)
	}
	if d.Action == "" {
		return "", fmt.Errorf("%w: %s", ErrNoAction, d.Type)
	}
	return d.Action, nil
}
