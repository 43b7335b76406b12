package block

// ParamType is the declared semantic type of a block input.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
	TypeJSON    ParamType = "json"
)

// Structured reports whether values of this type may arrive JSON encoded.
func (t ParamType) Structured() bool {
	return t == TypeObject || t == TypeArray || t == TypeJSON
}

type Param struct {
	Name        string
	Type        ParamType
	Required    bool
	Description string
	Options     []string
	Default     DefaultRule
}

type Output struct {
	Name        string
	Type        ParamType
	Description string
}

// Credential describes what a block needs from the credential provider.
type Credential struct {
	Required bool
	Provider string
	Types    []string
}

// Descriptor is one catalog entry. Descriptors are immutable once registered.
type Descriptor struct {
	Type        string
	Name        string
	Description string
	Category    string
	Icon        string
	Color       string
	Version     string
	Hidden      bool
	TriggerOnly bool
	Inputs      []Param
	Outputs     []Output
	Credential  *Credential
	Transform   TransformFunc
	// Action is the static binding. Bind, when set, takes precedence and
	// chooses the action from the hydrated parameters.
	Action string
	Bind   BindFunc
	// Actions lists every action id the block can bind to; each is also
	// accepted as an alias for the block type.
	Actions []string
}

func (d *Descriptor) Param(name string) (Param, bool) {
	for _, p := range d.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

func (d *Descriptor) RequiresCredentials() bool {
	return d.Credential != nil && d.Credential.Required
}

// aliases returns the action ids that resolve to this block.
func (d *Descriptor) aliases() []string {
	out := make([]string, 0, len(d.Actions)+1)
	if d.Action != "" {
		out = append(out, d.Action)
	}
	return append(out, d.Actions...)
}
