// Package datacollection implements the per-variable editing rules for an
// agent's data-collection section: source inference, source switching,
// typed constant-value coercion, and atomic renames.
package datacollection

import (
	"errors"
	"strconv"

	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

// ErrNameExists is returned by Rename when the new name is already taken.
// Renames never silently merge or drop a colliding entry.
var ErrNameExists = errors.New("a variable with that name already exists")

// InferSource decides which of the three sources a variable is using.
// Priority: a non-empty constant value wins, then a merely-defined constant,
// then a non-empty or defined dynamic variable, then description.
func InferSource(v models.DataCollectionVariable) models.VariableSource {
	if v.ConstantValue != nil && *v.ConstantValue != "" {
		return models.SourceConstant
	}
	if v.DynamicVariable != nil && *v.DynamicVariable != "" {
		return models.SourceDynamic
	}
	if v.ConstantValue != nil {
		return models.SourceConstant
	}
	if v.DynamicVariable != nil {
		return models.SourceDynamic
	}
	return models.SourceDescription
}

// SwitchSource moves a variable to a new source. The data type is preserved;
// every other source's fields are cleared and the new source's required
// fields are initialized empty.
func SwitchSource(v models.DataCollectionVariable, src models.VariableSource) models.DataCollectionVariable {
	out := models.DataCollectionVariable{Type: v.Type}
	switch src {
	case models.SourceConstant:
		empty := ""
		out.ConstantValue = &empty
		out.ConstantValueType = models.ValueTypeString
	case models.SourceDynamic:
		empty := ""
		out.DynamicVariable = &empty
	default:
		out.Description = ""
	}
	return out
}

// CoerceConstantValue applies type-dependent input coercion. Integer and
// double inputs are parsed and re-stringified; a failed parse collapses the
// stored value to "" rather than surfacing an error. Boolean accepts only
// the literal strings "true" and "false". String passes through.
func CoerceConstantValue(raw string, t models.ValueType) string {
	switch t {
	case models.ValueTypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ""
		}
		return strconv.FormatInt(n, 10)
	case models.ValueTypeDouble:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ""
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case models.ValueTypeBoolean:
		if raw == "true" || raw == "false" {
			return raw
		}
		return ""
	}
	return raw
}

// Rename atomically renames a variable in the collection, preserving its
// configuration. Renaming onto an existing name fails with ErrNameExists;
// renaming a missing entry is a no-op. The input map is not mutated.
func Rename(oldName, newName string, collection map[string]models.DataCollectionVariable) (map[string]models.DataCollectionVariable, error) {
	if oldName == newName {
		return collection, nil
	}
	entry, ok := collection[oldName]
	if !ok {
		return collection, nil
	}
	if _, exists := collection[newName]; exists {
		return collection, ErrNameExists
	}
	out := make(map[string]models.DataCollectionVariable, len(collection))
	for k, v := range collection {
		if k == oldName {
			continue
		}
		out[k] = v
	}
	out[newName] = entry
	return out, nil
}
