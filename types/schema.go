package types

import "encoding/json"

// SchemaType represents JSON Schema types.
type SchemaType string

const (
	SchemaTypeString  SchemaType = "string"
	SchemaTypeNumber  SchemaType = "number"
	SchemaTypeInteger SchemaType = "integer"
	SchemaTypeBoolean SchemaType = "boolean"
	SchemaTypeObject  SchemaType = "object"
	SchemaTypeArray   SchemaType = "array"
)

// JSONSchema is the subset of JSON Schema used for tool inputs.
type JSONSchema struct {
	Type        SchemaType             `json:"type,omitempty"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []any                  `json:"enum,omitempty"`
	Format      string                 `json:"format,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Default     any                    `json:"default,omitempty"`
}

// NewObjectSchema creates a new object schema.
func NewObjectSchema() *JSONSchema {
	return &JSONSchema{
		Type:       SchemaTypeObject,
		Properties: make(map[string]*JSONSchema),
	}
}

// NewStringSchema creates a string schema with a description.
func NewStringSchema(desc string) *JSONSchema {
	return &JSONSchema{Type: SchemaTypeString, Description: desc}
}

// NewNumberSchema creates a number schema with a description.
func NewNumberSchema(desc string) *JSONSchema {
	return &JSONSchema{Type: SchemaTypeNumber, Description: desc}
}

// NewIntegerSchema creates an integer schema with a description.
func NewIntegerSchema(desc string) *JSONSchema {
	return &JSONSchema{Type: SchemaTypeInteger, Description: desc}
}

// NewBooleanSchema creates a boolean schema with a description.
func NewBooleanSchema(desc string) *JSONSchema {
	return &JSONSchema{Type: SchemaTypeBoolean, Description: desc}
}

// NewArraySchema creates a new array schema.
func NewArraySchema(items *JSONSchema, desc string) *JSONSchema {
	return &JSONSchema{Type: SchemaTypeArray, Items: items, Description: desc}
}

// AddProperty adds a property to an object schema.
func (s *JSONSchema) AddProperty(name string, prop *JSONSchema) *JSONSchema {
	if s.Properties == nil {
		s.Properties = make(map[string]*JSONSchema)
	}
	s.Properties[name] = prop
	return s
}

// AddRequired adds required field names.
func (s *JSONSchema) AddRequired(names ...string) *JSONSchema {
	s.Required = append(s.Required, names...)
	return s
}

// AsMap converts the schema into a generic map, the shape most SDKs accept.
func (s *JSONSchema) AsMap() map[string]any {
	if s == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// PropertiesMap returns the object properties as generic maps.
func (s *JSONSchema) PropertiesMap() map[string]any {
	out := make(map[string]any)
	if s == nil {
		return out
	}
	for name, prop := range s.Properties {
		out[name] = prop.AsMap()
	}
	return out
}
