package enhanced

// MetadataType is the shape a ConfigMetadata describes.
type MetadataType string

const (
	TypeString   MetadataType = "string"
	TypeNumber   MetadataType = "number"
	TypeBoolean  MetadataType = "boolean"
	TypeArray    MetadataType = "array"
	TypeObject   MetadataType = "object"
	TypeCompound MetadataType = "compound"
)

// IsPrimitive reports whether values of this type are stored as leaves.
func (t MetadataType) IsPrimitive() bool {
	return t == TypeString || t == TypeNumber || t == TypeBoolean
}

// Option is one selectable value of a string field.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// OptionGroup groups options under a heading, e.g. models by provider.
type OptionGroup struct {
	Label   string   `json:"label"`
	Options []Option `json:"options"`
}

// ConfigMetadata is the immutable shape description of a value. Instances are deduplicated by
// the content store, so two structurally equal descriptions share one digest.
type ConfigMetadata struct {
	Type        MetadataType `json:"type"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Nullable    bool         `json:"nullable,omitempty"`

	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	IsInteger bool     `json:"isInteger,omitempty"`

	Options []Option      `json:"options,omitempty"`
	Groups  []OptionGroup `json:"groups,omitempty"`

	ItemMetadata *ConfigMetadata           `json:"itemMetadata,omitempty"`
	Properties   map[string]*ConfigMetadata `json:"properties,omitempty"`
	Alternatives []*ConfigMetadata          `json:"alternatives,omitempty"`

	Default any `json:"default,omitempty"`
}

// Property returns the metadata of a declared property, or nil.
func (m *ConfigMetadata) Property(key string) *ConfigMetadata {
	if m == nil {
		return nil
	}

	return m.Properties[key]
}

// HasOption reports whether value is among the declared options, flat or grouped. Fields with no
// options accept anything.
func (m *ConfigMetadata) HasOption(value string) bool {
	if m == nil || (len(m.Options) == 0 && len(m.Groups) == 0) {
		return true
	}

	for _, o := range m.Options {
		if o.Value == value {
			return true
		}
	}

	for _, g := range m.Groups {
		for _, o := range g.Options {
			if o.Value == value {
				return true
			}
		}
	}

	return false
}
