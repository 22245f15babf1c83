package models

// ── Data collection variables ────────────────────────────────

// ValueType governs how constant-value input is coerced before storage.
// It is a console-only hint and is stripped from save payloads.
type ValueType string

const (
	ValueTypeString  ValueType = "string"
	ValueTypeInteger ValueType = "integer"
	ValueTypeDouble  ValueType = "double"
	ValueTypeBoolean ValueType = "boolean"
)

// Valid reports whether v is a known value type.
func (v ValueType) Valid() bool {
	switch v {
	case ValueTypeString, ValueTypeInteger, ValueTypeDouble, ValueTypeBoolean:
		return true
	}
	return false
}

// VariableSource names the three mutually exclusive sources a data-collection
// variable can draw from. The active source is never stored; it is inferred
// from which fields are populated.
type VariableSource string

const (
	SourceDescription VariableSource = "description"
	SourceConstant    VariableSource = "constant"
	SourceDynamic     VariableSource = "dynamic"
)

// DataCollectionVariable is one named, typed value an agent extracts or
// reports per conversation. The on-wire shape holds every source's fields
// optionally; pointer fields distinguish "defined but empty" from "absent"
// for source inference.
type DataCollectionVariable struct {
	Type              string    `json:"type,omitempty"`
	Description       string    `json:"description,omitempty"`
	ConstantValue     *string   `json:"constant_value,omitempty"`
	DynamicVariable   *string   `json:"dynamic_variable,omitempty"`
	ConstantValueType ValueType `json:"constant_value_type,omitempty"` // console-only
}
