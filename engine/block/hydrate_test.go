package block

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hydrationDescriptor() *Descriptor {
	return &Descriptor{
		Type: "sample",
		Inputs: []Param{
			{Name: "x", Type: TypeString, Default: Static{V: "fallback"}},
			{Name: "count", Type: TypeNumber, Default: Computed(func(p map[string]any) (any, error) {
				return len(p), nil
			})},
			{Name: "broken", Type: TypeString, Default: Computed(func(map[string]any) (any, error) {
				return nil, errors.New("boom")
			})},
			{Name: "panics", Type: TypeString, Default: Computed(func(map[string]any) (any, error) {
				panic("bad rule")
			})},
			{Name: "config", Type: TypeObject},
			{Name: "list", Type: TypeArray},
			{Name: "note", Type: TypeString},
		},
	}
}

func TestHydrate(t *testing.T) {
	t.Run("Should apply static and computed defaults for absent inputs", func(t *testing.T) {
		params := Hydrate(t.Context(), hydrationDescriptor(), map[string]any{"note": "hi"})
		assert.Equal(t, "fallback", params["x"])
		assert.Equal(t, 2, params["count"])
		assert.NotContains(t, params, "broken")
		assert.NotContains(t, params, "panics")
	})

	t.Run("Should keep caller values over defaults", func(t *testing.T) {
		params := Hydrate(t.Context(), hydrationDescriptor(), map[string]any{"x": "mine"})
		assert.Equal(t, "mine", params["x"])
	})

	t.Run("Should decode JSON strings for structured inputs only", func(t *testing.T) {
		raw := map[string]any{
			"config": `{"a":1}`,
			"list":   `[1,2]`,
			"note":   `{"stays":"string"}`,
		}
		params := Hydrate(t.Context(), hydrationDescriptor(), raw)
		assert.Equal(t, map[string]any{"a": float64(1)}, params["config"])
		assert.Equal(t, []any{float64(1), float64(2)}, params["list"])
		assert.Equal(t, `{"stays":"string"}`, params["note"])
		assert.Equal(t, `{"a":1}`, raw["config"], "raw input must not be modified")
	})

	t.Run("Should leave unparsable structured strings untouched", func(t *testing.T) {
		params := Hydrate(t.Context(), hydrationDescriptor(), map[string]any{"config": "{not json"})
		assert.Equal(t, "{not json", params["config"])
	})

	t.Run("Should merge transform output over hydrated values", func(t *testing.T) {
		d := hydrationDescriptor()
		d.Transform = func(p map[string]any) (map[string]any, error) {
			return map[string]any{"x": "transformed", "extra": true}, nil
		}
		params := Hydrate(t.Context(), d, nil)
		assert.Equal(t, "transformed", params["x"])
		assert.Equal(t, true, params["extra"])
	})

	t.Run("Should replace structured values from the transform as a whole", func(t *testing.T) {
		d := hydrationDescriptor()
		d.Transform = func(map[string]any) (map[string]any, error) {
			return map[string]any{"config": map[string]any{"a": 9}, "list": []any{"new"}}, nil
		}
		params := Hydrate(t.Context(), d, map[string]any{
			"config": map[string]any{"a": 1, "b": 2},
			"list":   []any{"old", "older"},
		})
		assert.Equal(t, map[string]any{"a": 9}, params["config"])
		assert.Equal(t, []any{"new"}, params["list"])
	})

	t.Run("Should ignore a failing transform", func(t *testing.T) {
		d := hydrationDescriptor()
		d.Transform = func(map[string]any) (map[string]any, error) { panic("nope") }
		params := Hydrate(t.Context(), d, map[string]any{"x": "kept"})
		assert.Equal(t, "kept", params["x"])
	})
}

func TestResolveAction(t *testing.T) {
	t.Run("Should prefer the dynamic binding", func(t *testing.T) {
		d := &Descriptor{Type: "mail", Action: "static", Bind: func(p map[string]any) (string, error) {
			return "mail_" + p["op"].(string), nil
		}}
		id, err := ResolveAction(d, map[string]any{"op": "send"})
		require.NoError(t, err)
		assert.Equal(t, "mail_send", id)
	})

	t.Run("Should fail when the binding panics or nothing is bound", func(t *testing.T) {
		d := &Descriptor{Type: "mail", Bind: func(p map[string]any) (string, error) {
			return "mail_" + p["op"].(string), nil
		}}
		_, err := ResolveAction(d, map[string]any{})
		assert.ErrorIs(t, err, ErrNoAction)
		_, err = ResolveAction(&Descriptor{Type: "empty"}, nil)
		assert.ErrorIs(t, err, ErrNoAction)
	})
}
