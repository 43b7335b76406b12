package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(
		&Descriptor{Type: "gmail", Name: "Gmail", Category: "tools", Description: "Send mail", Actions: []string{"gmail_send", "gmail_read"}},
		&Descriptor{Type: "api", Name: "API", Category: "tools", Description: "HTTP call", Action: "http_request"},
		&Descriptor{Type: "agent", Name: "Agent", Category: "blocks", Description: "LLM agent"},
		&Descriptor{Type: "Ébauche", Name: "ébauche", Category: "blocks", Description: "draft"},
		&Descriptor{Type: "echo", Name: "Echo", Category: "blocks", Hidden: true},
		&Descriptor{Type: "schedule", Name: "Schedule", Category: "triggers", TriggerOnly: true},
	)
	require.NoError(t, err)
	return c
}

func TestCatalog_Resolve(t *testing.T) {
	c := testCatalog(t)

	t.Run("Should resolve exact types and action aliases", func(t *testing.T) {
		d, err := c.Resolve("gmail")
		require.NoError(t, err)
		assert.Equal(t, "gmail", d.Type)
		d, err = c.Resolve("http_request")
		require.NoError(t, err)
		assert.Equal(t, "api", d.Type)
		d, err = c.Resolve("gmail_read")
		require.NoError(t, err)
		assert.Equal(t, "gmail", d.Type)
	})

	t.Run("Should report unknown tokens", func(t *testing.T) {
		_, err := c.Resolve("nonexistent")
		assert.ErrorIs(t, err, ErrUnknownBlock)
	})

	t.Run("Should reject duplicate types", func(t *testing.T) {
		_, err := NewCatalog(&Descriptor{Type: "a"}, &Descriptor{Type: "a"})
		assert.Error(t, err)
	})

	t.Run("Should reject versions that are not semantic versions", func(t *testing.T) {
		_, err := NewCatalog(&Descriptor{Type: "a", Version: "v1"})
		assert.ErrorContains(t, err, "invalid version")
		_, err = NewCatalog(&Descriptor{Type: "a", Version: "1.2.0"})
		assert.NoError(t, err)
	})
}

func TestCatalog_List(t *testing.T) {
	c := testCatalog(t)
	names := func(ds []*Descriptor) []string {
		out := make([]string, len(ds))
		for i, d := range ds {
			out[i] = d.Name
		}
		return out
	}

	t.Run("Should sort by category then name and skip hidden and triggers", func(t *testing.T) {
		page, total := c.List(ListFilter{Limit: 50})
		assert.Equal(t, 4, total)
		assert.Equal(t, []string{"Agent", "ébauche", "API", "Gmail"}, names(page))
	})

	t.Run("Should include hidden blocks on request but never triggers", func(t *testing.T) {
		_, total := c.List(ListFilter{IncludeHidden: true})
		assert.Equal(t, 5, total)
	})

	t.Run("Should filter by category case-insensitively and search text", func(t *testing.T) {
		page, _ := c.List(ListFilter{Category: "TOOLS"})
		assert.Equal(t, []string{"API", "Gmail"}, names(page))
		page, _ = c.List(ListFilter{Search: "mail"})
		assert.Equal(t, []string{"Gmail"}, names(page))
		page, _ = c.List(ListFilter{Search: "LLM"})
		assert.Equal(t, []string{"Agent"}, names(page))
	})

	t.Run("Should page with limit and offset", func(t *testing.T) {
		page, total := c.List(ListFilter{Limit: 2, Offset: 1})
		assert.Equal(t, 4, total)
		assert.Equal(t, []string{"ébauche", "API"}, names(page))
		page, _ = c.List(ListFilter{Limit: 2, Offset: 10})
		assert.Empty(t, page)
	})
}

func TestDescriptor_Schema(t *testing.T) {
	t.Run("Should render ordered properties with required fields and credentials", func(t *testing.T) {
		d := &Descriptor{
			Type: "gmail",
			Inputs: []Param{
				{Name: "to", Type: TypeString, Required: true},
				{Name: "operation", Type: TypeString, Options: []string{"send", "read"}, Default: Static{V: "send"}},
				{Name: "payload", Type: TypeJSON},
			},
			Outputs:    []Output{{Name: "messageId", Type: TypeString}},
			Credential: &Credential{Required: true, Provider: "google-email", Types: []string{"oauth"}},
		}
		s := d.Schema()
		assert.Equal(t, []string{"to"}, s.Inputs.Required)
		op, ok := s.Inputs.Properties.Get("operation")
		require.True(t, ok)
		assert.Equal(t, "send", op.Default)
		assert.Equal(t, []any{"send", "read"}, op.Enum)
		payload, ok := s.Inputs.Properties.Get("payload")
		require.True(t, ok)
		assert.Empty(t, payload.Type)
		assert.True(t, s.Credentials.Required)
		assert.Equal(t, []string{"oauth"}, s.Credentials.Types)
		assert.Equal(t, 1, s.Outputs.Properties.Len())
	})
}
