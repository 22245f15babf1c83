package datacollection_test

import (
	"errors"
	"testing"

	"github.com/voxdesk/voxdesk/console-plane/internal/datacollection"
	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

func strptr(s string) *string { return &s }

func TestInferSource_Priority(t *testing.T) {
	tests := []struct {
		name string
		v    models.DataCollectionVariable
		want models.VariableSource
	}{
		{"non-empty constant wins", models.DataCollectionVariable{ConstantValue: strptr("42"), DynamicVariable: strptr("sys.caller")}, models.SourceConstant},
		{"non-empty dynamic beats empty constant", models.DataCollectionVariable{ConstantValue: strptr(""), DynamicVariable: strptr("sys.caller")}, models.SourceDynamic},
		{"defined empty constant", models.DataCollectionVariable{ConstantValue: strptr("")}, models.SourceConstant},
		{"defined empty dynamic", models.DataCollectionVariable{DynamicVariable: strptr("")}, models.SourceDynamic},
		{"nothing defined", models.DataCollectionVariable{Description: "what the caller wanted"}, models.SourceDescription},
	}
	for _, tt := range tests {
		if got := datacollection.InferSource(tt.v); got != tt.want {
			t.Errorf("%s: InferSource() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSwitchSource_PreservesTypeClearsRest(t *testing.T) {
	v := models.DataCollectionVariable{
		Type:            "integer",
		Description:     "caller age",
		DynamicVariable: strptr("sys.age"),
	}

	got := datacollection.SwitchSource(v, models.SourceConstant)
	if got.Type != "integer" {
		t.Errorf("Type = %q, want preserved integer", got.Type)
	}
	if got.DynamicVariable != nil {
		t.Error("DynamicVariable should be cleared")
	}
	if got.Description != "" {
		t.Error("Description should be cleared")
	}
	if got.ConstantValue == nil || *got.ConstantValue != "" {
		t.Error("ConstantValue should be initialized empty")
	}
	if got.ConstantValueType != models.ValueTypeString {
		t.Errorf("ConstantValueType = %q, want string", got.ConstantValueType)
	}

	got = datacollection.SwitchSource(got, models.SourceDynamic)
	if got.ConstantValue != nil {
		t.Error("ConstantValue should be cleared on switch to dynamic")
	}
	if got.DynamicVariable == nil || *got.DynamicVariable != "" {
		t.Error("DynamicVariable should be initialized empty")
	}
}

func TestCoerceConstantValue(t *testing.T) {
	tests := []struct {
		raw  string
		typ  models.ValueType
		want string
	}{
		{"42", models.ValueTypeInteger, "42"},
		{"042", models.ValueTypeInteger, "42"},
		{"4.2", models.ValueTypeInteger, ""},
		{"abc", models.ValueTypeInteger, ""},
		{"3.14", models.ValueTypeDouble, "3.14"},
		{"3.140", models.ValueTypeDouble, "3.14"},
		{"nope", models.ValueTypeDouble, ""},
		{"true", models.ValueTypeBoolean, "true"},
		{"false", models.ValueTypeBoolean, "false"},
		{"TRUE", models.ValueTypeBoolean, ""},
		{"yes", models.ValueTypeBoolean, ""},
		{"anything at all", models.ValueTypeString, "anything at all"},
	}
	for _, tt := range tests {
		if got := datacollection.CoerceConstantValue(tt.raw, tt.typ); got != tt.want {
			t.Errorf("CoerceConstantValue(%q, %q) = %q, want %q", tt.raw, tt.typ, got, tt.want)
		}
	}
}

func TestRename(t *testing.T) {
	coll := map[string]models.DataCollectionVariable{
		"age":  {Type: "integer", ConstantValue: strptr("30")},
		"name": {Type: "string"},
	}

	got, err := datacollection.Rename("age", "caller_age", coll)
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Rename() changed entry count: %d", len(got))
	}
	if _, ok := got["age"]; ok {
		t.Error("old name still present after rename")
	}
	v, ok := got["caller_age"]
	if !ok {
		t.Fatal("new name missing after rename")
	}
	if v.Type != "integer" || v.ConstantValue == nil || *v.ConstantValue != "30" {
		t.Errorf("configuration not preserved: %+v", v)
	}

	// Input map untouched.
	if _, ok := coll["age"]; !ok {
		t.Error("Rename mutated the input map")
	}
}

func TestRename_CollisionRejected(t *testing.T) {
	coll := map[string]models.DataCollectionVariable{
		"age":  {Type: "integer"},
		"name": {Type: "string"},
	}

	got, err := datacollection.Rename("age", "name", coll)
	if !errors.Is(err, datacollection.ErrNameExists) {
		t.Fatalf("Rename() error = %v, want ErrNameExists", err)
	}
	if len(got) != 2 {
		t.Error("collection changed on rejected rename")
	}
}

func TestRename_MissingAndNoop(t *testing.T) {
	coll := map[string]models.DataCollectionVariable{"age": {Type: "integer"}}

	got, err := datacollection.Rename("ghost", "spirit", coll)
	if err != nil {
		t.Fatalf("Rename(missing) error = %v", err)
	}
	if len(got) != 1 {
		t.Error("renaming a missing entry should be a no-op")
	}

	got, err = datacollection.Rename("age", "age", coll)
	if err != nil || len(got) != 1 {
		t.Errorf("same-name rename should be a no-op, got %v, %v", got, err)
	}
}
