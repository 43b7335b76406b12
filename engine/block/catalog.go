package block

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Catalog is a read-only snapshot of block descriptors indexed by type and
// by action alias.
type Catalog struct {
	byType   map[string]*Descriptor
	byAction map[string]*Descriptor
	all      []*Descriptor
}

func NewCatalog(descriptors ...*Descriptor) (*Catalog, error) {
	c := &Catalog{
		byType:   make(map[string]*Descriptor, len(descriptors)),
		byAction: make(map[string]*Descriptor),
	}
	for _, d := range descriptors {
		if d.Type == "" {
			return nil, fmt.Errorf("block descriptor %q has no type", d.Name)
		}
		if _, dup := c.byType[d.Type]; dup {
			return nil, fmt.Errorf("duplicate block type %q", d.Type)
		}
		if d.Version != "" {
			if _, err := semver.StrictNewVersion(d.Version); err != nil {
				return nil, fmt.Errorf("block %q has invalid version %q: %w", d.Type, d.Version, err)
			}
		}
		c.byType[d.Type] = d
		c.all = append(c.all, d)
	}
	for _, d := range descriptors {
		for _, alias := range d.aliases() {
			if _, isType := c.byType[alias]; isType {
				continue
			}
			if _, taken := c.byAction[alias]; !taken {
				c.byAction[alias] = d
			}
		}
	}
	return c, nil
}

// Resolve finds a descriptor by exact type, then by action alias.
func (c *Catalog) Resolve(token string) (*Descriptor, error) {
	if d, ok := c.byType[token]; ok {
		return d, nil
	}
	if d, ok := c.byAction[token]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBlock, token)
}

func (c *Catalog) Len() int {
	return len(c.all)
}

// ListFilter selects blocks for the listing endpoint.
type ListFilter struct {
	Category      string
	Search        string
	IncludeHidden bool
	Limit         int
	Offset        int
}

// List returns one page of matching blocks and the total number of matches.
// Trigger-only blocks are never listed. Results are ordered by category,
// then name, using English collation.
func (c *Catalog) List(f ListFilter) ([]*Descriptor, int) {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	category := strings.TrimSpace(f.Category)
	matched := make([]*Descriptor, 0, len(c.all))
	for _, d := range c.all {
		if d.TriggerOnly || (d.Hidden && !f.IncludeHidden) {
			continue
		}
		if category != "" && !strings.EqualFold(d.Category, category) {
			continue
		}
		if search != "" && !matchesSearch(d, search) {
			continue
		}
		matched = append(matched, d)
	}
	col := collate.New(language.English, collate.IgnoreCase)
	slices.SortStableFunc(matched, func(a, b *Descriptor) int {
		if n := col.CompareString(a.Category, b.Category); n != 0 {
			return n
		}
		return col.CompareString(a.Name, b.Name)
	})
	total := len(matched)
	start := min(max(f.Offset, 0), total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	return matched[start:end], total
}

func matchesSearch(d *Descriptor, needle string) bool {
	return strings.Contains(strings.ToLower(d.Name), needle) ||
		strings.Contains(strings.ToLower(d.Description), needle) ||
		strings.Contains(strings.ToLower(d.Type), needle)
}
