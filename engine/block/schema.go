package block

import (
	"github.com/invopop/jsonschema"
)

// ParamCapability is the listing view of one input.
type ParamCapability struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
}

// Capability is the listing view of a block.
type Capability struct {
	Type                string            `json:"type"`
	Name                string            `json:"name"`
	Description         string            `json:"description"`
	Category            string            `json:"category"`
	Icon                string            `json:"icon,omitempty"`
	BgColor             string            `json:"bgColor,omitempty"`
	Inputs              []ParamCapability `json:"inputs"`
	Outputs             []ParamCapability `json:"outputs"`
	RequiresCredentials bool              `json:"requiresCredentials"`
	CredentialTypes     []string          `json:"credentialTypes,omitempty"`
}

func (d *Descriptor) Capability() Capability {
	c := Capability{
		Type:                d.Type,
		Name:                d.Name,
		Description:         d.Description,
		Category:            d.Category,
		Icon:                d.Icon,
		BgColor:             d.Color,
		Inputs:              make([]ParamCapability, 0, len(d.Inputs)),
		Outputs:             make([]ParamCapability, 0, len(d.Outputs)),
		RequiresCredentials: d.RequiresCredentials(),
	}
	if d.Credential != nil {
		c.CredentialTypes = d.Credential.Types
	}
	for _, p := range d.Inputs {
		c.Inputs = append(c.Inputs, ParamCapability{Name: p.Name, Type: p.Type, Required: p.Required, Description: p.Description})
	}
	for _, o := range d.Outputs {
		c.Outputs = append(c.Outputs, ParamCapability{Name: o.Name, Type: o.Type, Description: o.Description})
	}
	return c
}

// CredentialInfo is the credential section of a block schema.
type CredentialInfo struct {
	Required bool     `json:"required"`
	Provider string   `json:"provider,omitempty"`
	Types    []string `json:"types,omitempty"`
}

// Schema is the full descriptor returned by the schema endpoint.
type Schema struct {
	Type        string             `json:"type"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Category    string             `json:"category"`
	Version     string             `json:"version,omitempty"`
	Inputs      *jsonschema.Schema `json:"inputs"`
	Outputs     *jsonschema.Schema `json:"outputs"`
	Credentials CredentialInfo     `json:"credentials"`
	Actions     []string           `json:"actions,omitempty"`
}

func (d *Descriptor) Schema() *Schema {
	inputs := objectSchema()
	for _, p := range d.Inputs {
		prop := propertySchema(p.Type, p.Description)
		for _, opt := range p.Options {
			prop.Enum = append(prop.Enum, opt)
		}
		if s, ok := p.Default.(Static); ok {
			prop.Default = s.V
		}
		inputs.Properties.Set(p.Name, prop)
		if p.Required {
			inputs.Required = append(inputs.Required, p.Name)
		}
	}
	outputs := objectSchema()
	for _, o := range d.Outputs {
		outputs.Properties.Set(o.Name, propertySchema(o.Type, o.Description))
	}
	creds := CredentialInfo{}
	if d.Credential != nil {
		creds = CredentialInfo{Required: d.Credential.Required, Provider: d.Credential.Provider, Types: d.Credential.Types}
	}
	return &Schema{
		Type:        d.Type,
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		Version:     d.Version,
		Inputs:      inputs,
		Outputs:     outputs,
		Credentials: creds,
		Actions:     d.aliases(),
	}
}

func objectSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: jsonschema.NewProperties()}
}

func propertySchema(t ParamType, description string) *jsonschema.Schema {
	s := &jsonschema.Schema{Description: description}
	if t != TypeJSON {
		s.Type = string(t)
	}
	return s
}
