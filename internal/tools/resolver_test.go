package tools_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/voxdesk/voxdesk/console-plane/internal/tools"
	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

func TestValidateName_Webhook(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"lookup_order", false},
		{"", true},
		{"has space", true},
		{"END_CALL", true},
		{"end_call", true}, // reserved names are case-insensitive
		{"Cal_Booking", true},
		{"almost_END_CALL", false},
	}
	for _, tt := range tests {
		err := tools.ValidateName(tt.name, tools.VariantWebhook)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateName(%q, webhook) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestValidateName_SystemVariantsRequireExactName(t *testing.T) {
	if err := tools.ValidateName("END_CALL", tools.VariantEndCall); err != nil {
		t.Errorf("exact reserved name rejected: %v", err)
	}
	if err := tools.ValidateName("end_call", tools.VariantEndCall); err == nil {
		t.Error("lowercase name accepted for system variant, want exact END_CALL")
	}
	if err := tools.ValidateName("TRANSFER_CALL", tools.VariantGHLBooking); err == nil {
		t.Error("wrong reserved name accepted for ghl_booking variant")
	}
}

func TestVariantOf(t *testing.T) {
	tests := []struct {
		name string
		want tools.Variant
	}{
		{"END_CALL", tools.VariantEndCall},
		{"end_call", tools.VariantEndCall},
		{"TRANSFER_CALL", tools.VariantTransferCall},
		{"GHL_BOOKING", tools.VariantGHLBooking},
		{"CAL_BOOKING", tools.VariantCalcom},
		{"lookup_order", tools.VariantWebhook},
	}
	for _, tt := range tests {
		got := tools.VariantOf(models.ToolSpec{Name: tt.name})
		if got != tt.want {
			t.Errorf("VariantOf(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestAvailableVariants_TakenVariantsHidden(t *testing.T) {
	existing := []models.ToolSpec{
		{Name: "END_CALL"},
		{Name: "GHL_BOOKING"},
		{Name: "lookup_order"},
	}

	got := tools.AvailableVariants(existing, "")
	if contains(got, tools.VariantEndCall) {
		t.Error("end_call offered while END_CALL exists")
	}
	if contains(got, tools.VariantGHLBooking) {
		t.Error("ghl_booking offered while GHL_BOOKING exists")
	}
	if !contains(got, tools.VariantWebhook) {
		t.Error("webhook variant must always be offered")
	}
	if !contains(got, tools.VariantCalcom) || !contains(got, tools.VariantTransferCall) {
		t.Errorf("unclaimed variants missing from %v", got)
	}
}

func TestAvailableVariants_EditInPlaceExemption(t *testing.T) {
	existing := []models.ToolSpec{{Name: "END_CALL"}}

	// Editing the END_CALL tool itself: its variant stays selectable.
	got := tools.AvailableVariants(existing, "END_CALL")
	if !contains(got, tools.VariantEndCall) {
		t.Error("tool being edited should keep its own variant available")
	}

	// Editing some other tool: END_CALL stays hidden.
	got = tools.AvailableVariants(existing, "lookup_order")
	if contains(got, tools.VariantEndCall) {
		t.Error("end_call offered to a different tool")
	}
}

func TestCheckReservedDuplicates(t *testing.T) {
	specs := []models.ToolSpec{
		{Name: "END_CALL"},
		{Name: "lookup_order"},
		{Name: "end_call"},
	}
	err := tools.CheckReservedDuplicates(specs)
	if err == nil {
		t.Fatal("duplicate END_CALL not rejected")
	}
	if err.Field != "tools" {
		t.Errorf("Field = %q, want tools", err.Field)
	}

	if err := tools.CheckReservedDuplicates(specs[:2]); err != nil {
		t.Errorf("unique names rejected: %v", err)
	}
}

func TestBuildSpec_EndCall(t *testing.T) {
	spec, err := tools.BuildSpec(tools.VariantEndCall, tools.Form{Description: "Hang up politely"}, "https://api.example.com", "u1")
	if err != nil {
		t.Fatalf("BuildSpec() error = %v", err)
	}
	if spec.Name != "END_CALL" {
		t.Errorf("Name = %q, want END_CALL", spec.Name)
	}
	if spec.Type != models.ToolTypeSystem {
		t.Errorf("Type = %q, want system", spec.Type)
	}
	if spec.Params == nil || spec.Params.SystemToolType != "end_call" {
		t.Errorf("Params = %+v, want system tool end_call", spec.Params)
	}
}

func TestBuildSpec_TransferCallRequiresNumber(t *testing.T) {
	_, err := tools.BuildSpec(tools.VariantTransferCall, tools.Form{}, "", "u1")
	if err == nil {
		t.Fatal("missing transfer number accepted")
	}
	if err.Field != "transfer_number" {
		t.Errorf("Field = %q, want transfer_number", err.Field)
	}

	spec, err := tools.BuildSpec(tools.VariantTransferCall, tools.Form{TransferNumber: " +15551234567 "}, "", "u1")
	if err != nil {
		t.Fatalf("BuildSpec() error = %v", err)
	}
	if len(spec.Params.Transfers) != 1 || spec.Params.Transfers[0].PhoneNumber != "+15551234567" {
		t.Errorf("Transfers = %+v, want single trimmed number", spec.Params.Transfers)
	}
}

func TestBuildSpec_BookingURLs(t *testing.T) {
	ghl, err := tools.BuildSpec(tools.VariantGHLBooking, tools.Form{}, "https://api.example.com/", "user-42")
	if err != nil {
		t.Fatalf("BuildSpec(ghl) error = %v", err)
	}
	if ghl.APISchema.URL != "https://api.example.com/ghl/book/user-42" {
		t.Errorf("ghl URL = %q", ghl.APISchema.URL)
	}
	if ghl.APISchema.Method != "POST" {
		t.Errorf("ghl Method = %q, want POST", ghl.APISchema.Method)
	}

	cal, err := tools.BuildSpec(tools.VariantCalcom, tools.Form{}, "https://api.example.com", "user-42")
	if err != nil {
		t.Fatalf("BuildSpec(calcom) error = %v", err)
	}
	if cal.APISchema.URL != "https://api.example.com/calcom/book/user-42" {
		t.Errorf("calcom URL = %q", cal.APISchema.URL)
	}
}

func TestBuildSpec_GeneratedSchemas(t *testing.T) {
	ghl, err := tools.BuildSpec(tools.VariantGHLBooking, tools.Form{}, "https://api.example.com", "u1")
	if err != nil {
		t.Fatalf("BuildSpec(ghl) error = %v", err)
	}
	var schema struct {
		Required   []string                   `json:"required"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(ghl.APISchema.RequestBodySchema, &schema); err != nil {
		t.Fatalf("ghl schema is not valid JSON: %v", err)
	}
	wantRequired := []string{"startTime", "endTime", "title", "contactInfo"}
	if strings.Join(schema.Required, ",") != strings.Join(wantRequired, ",") {
		t.Errorf("ghl required = %v, want %v", schema.Required, wantRequired)
	}

	cal, err := tools.BuildSpec(tools.VariantCalcom, tools.Form{}, "https://api.example.com", "u1")
	if err != nil {
		t.Fatalf("BuildSpec(calcom) error = %v", err)
	}
	if err := json.Unmarshal(cal.APISchema.RequestBodySchema, &schema); err != nil {
		t.Fatalf("calcom schema is not valid JSON: %v", err)
	}
	if _, ok := schema.Properties["attendee"]; !ok {
		t.Error("calcom schema missing attendee property")
	}
}

func TestBuildSpec_Webhook(t *testing.T) {
	form := tools.Form{
		Name:              "lookup_order",
		Description:       "Look up an order by id",
		URL:               "https://crm.example.com/orders",
		RequestBodySchema: json.RawMessage(`{"type":"object"}`),
	}
	spec, err := tools.BuildSpec(tools.VariantWebhook, form, "https://api.example.com", "u1")
	if err != nil {
		t.Fatalf("BuildSpec() error = %v", err)
	}
	if spec.Type != models.ToolTypeWebhook {
		t.Errorf("Type = %q, want webhook", spec.Type)
	}
	if spec.APISchema.Method != "POST" {
		t.Errorf("Method = %q, want default POST", spec.APISchema.Method)
	}

	for _, tt := range []struct {
		mutate func(*tools.Form)
		field  string
	}{
		{func(f *tools.Form) { f.Name = "END_CALL" }, "name"},
		{func(f *tools.Form) { f.URL = "  " }, "url"},
		{func(f *tools.Form) { f.Description = "" }, "description"},
		{func(f *tools.Form) { f.RequestBodySchema = json.RawMessage("{not json") }, "request_body_schema"},
	} {
		bad := form
		tt.mutate(&bad)
		_, err := tools.BuildSpec(tools.VariantWebhook, bad, "", "u1")
		if err == nil {
			t.Errorf("invalid %s accepted", tt.field)
			continue
		}
		if err.Field != tt.field {
			t.Errorf("Field = %q, want %q", err.Field, tt.field)
		}
	}
}

func TestParseRequestBodySchema(t *testing.T) {
	if _, err := tools.ParseRequestBodySchema(`{"type":"object"}`); err != nil {
		t.Errorf("valid object rejected: %v", err)
	}
	if _, err := tools.ParseRequestBodySchema(`[1,2,3]`); err == nil {
		t.Error("non-object JSON accepted")
	}
	if _, err := tools.ParseRequestBodySchema("   "); err == nil {
		t.Error("blank schema accepted")
	}
}

func contains(vs []tools.Variant, v tools.Variant) bool {
	for _, x := range vs {
		if x == v {
			return true
		}
	}
	return false
}

func systemSpec(name, systemType string) models.ToolSpec {
	return models.ToolSpec{
		Name:   name,
		Type:   models.ToolTypeSystem,
		Params: &models.ToolParams{SystemToolType: systemType},
	}
}

func TestValidateSpecs_TypePairing(t *testing.T) {
	// A webhook spec wearing the exact reserved name must not pass; the
	// name alone would let an arbitrary api_schema through.
	specs := []models.ToolSpec{{
		Name:      "END_CALL",
		Type:      models.ToolTypeWebhook,
		APISchema: &models.APISchema{URL: "https://attacker.example.com"},
	}}
	err := tools.ValidateSpecs(specs)
	if err == nil {
		t.Fatal("webhook spec claiming END_CALL accepted")
	}
	if err.Field != "type" {
		t.Errorf("Field = %q, want type", err.Field)
	}

	specs[0] = models.ToolSpec{
		Name: "TRANSFER_CALL",
		Type: models.ToolTypeSystem,
	}
	err = tools.ValidateSpecs(specs)
	if err == nil {
		t.Fatal("system spec without system_tool_type accepted")
	}
	if err.Field != "params" {
		t.Errorf("Field = %q, want params", err.Field)
	}

	specs[0] = models.ToolSpec{
		Name:   "END_CALL",
		Type:   models.ToolTypeSystem,
		Params: &models.ToolParams{SystemToolType: models.SystemToolTransferToNumber},
	}
	if tools.ValidateSpecs(specs) == nil {
		t.Error("mismatched system_tool_type accepted")
	}

	specs[0] = systemSpec("lookup_order", models.SystemToolEndCall)
	if tools.ValidateSpecs(specs) == nil {
		t.Error("system spec under a free-form name accepted")
	}

	ok := []models.ToolSpec{
		systemSpec(models.ToolNameEndCall, models.SystemToolEndCall),
		systemSpec(models.ToolNameTransferCall, models.SystemToolTransferToNumber),
		{
			Name:      tools.ReservedName(tools.VariantGHLBooking),
			Type:      models.ToolTypeWebhook,
			APISchema: &models.APISchema{URL: "https://platform.example.com/ghl/book/u1"},
		},
		{
			Name:      "check_weather",
			Type:      models.ToolTypeWebhook,
			APISchema: &models.APISchema{URL: "https://x.example.com"},
		},
	}
	if err := tools.ValidateSpecs(ok); err != nil {
		t.Errorf("well-formed tool list rejected: %v", err)
	}
}
