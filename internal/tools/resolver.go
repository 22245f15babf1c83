// Package tools converts console-selected tool variants plus free-form
// fields into the fixed upstream ToolSpec shapes, and validates tool names.
//
// The variant set is closed: generic webhooks plus four reserved tools
// (END_CALL, TRANSFER_CALL, GHL_BOOKING, CAL_BOOKING). Reserved tools have
// generated payloads the user never edits; each may exist at most once per
// agent, enforced both by the variant selector and again at save time.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

// Variant identifies one tool kind in the console.
type Variant string

const (
	VariantWebhook      Variant = "webhook"
	VariantGHLBooking   Variant = "ghl_booking"
	VariantCalcom       Variant = "calcom"
	VariantEndCall      Variant = "end_call"
	VariantTransferCall Variant = "transfer_call"
)

// AllVariants in selector display order.
var AllVariants = []Variant{
	VariantWebhook,
	VariantGHLBooking,
	VariantCalcom,
	VariantEndCall,
	VariantTransferCall,
}

// reservedNames maps each non-webhook variant to its fixed tool name.
var reservedNames = map[Variant]string{
	VariantGHLBooking:   models.ToolNameGHLBooking,
	VariantCalcom:       models.ToolNameCalBooking,
	VariantEndCall:      models.ToolNameEndCall,
	VariantTransferCall: models.ToolNameTransferCall,
}

// ReservedName returns the fixed name for a non-webhook variant, or "" for
// the webhook variant.
func ReservedName(v Variant) string { return reservedNames[v] }

// VariantOf classifies an existing ToolSpec by its (type, name) discriminant.
func VariantOf(spec models.ToolSpec) Variant {
	switch {
	case strings.EqualFold(spec.Name, models.ToolNameEndCall):
		return VariantEndCall
	case strings.EqualFold(spec.Name, models.ToolNameTransferCall):
		return VariantTransferCall
	case strings.EqualFold(spec.Name, models.ToolNameGHLBooking):
		return VariantGHLBooking
	case strings.EqualFold(spec.Name, models.ToolNameCalBooking):
		return VariantCalcom
	}
	return VariantWebhook
}

// ── Name validation ─────────────────────────────────────────

// ValidationError is an inline field-level error. It blocks saving but is
// never propagated as a failure beyond the editing surface.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ValidateName checks a tool name for the given variant:
// non-empty, no whitespace, no reserved-name collision for webhook tools,
// and exact reserved value for system-backed tools.
// Returns nil when the name is acceptable.
func ValidateName(name string, v Variant) *ValidationError {
	if name == "" {
		return &ValidationError{Field: "name", Message: "Tool name is required"}
	}
	if strings.ContainsAny(name, " \t\n") {
		return &ValidationError{Field: "name", Message: "Tool name cannot contain spaces"}
	}
	if v == VariantWebhook {
		if models.IsReservedToolName(name) {
			return &ValidationError{Field: "name", Message: "Reserved tool name"}
		}
		return nil
	}
	if want := ReservedName(v); name != want {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("Name must be %s", want)}
	}
	return nil
}

// AvailableVariants returns the variants offered by the selector given the
// agent's existing tools. The webhook variant is always available; each
// reserved variant is offered only while no *other* tool claims its name, so
// a tool being edited can keep its own variant selected.
func AvailableVariants(existing []models.ToolSpec, currentToolName string) []Variant {
	taken := make(map[Variant]bool, 4)
	for _, t := range existing {
		if strings.EqualFold(t.Name, currentToolName) {
			continue // edit-in-place exemption
		}
		if v := VariantOf(t); v != VariantWebhook {
			taken[v] = true
		}
	}
	out := make([]Variant, 0, len(AllVariants))
	for _, v := range AllVariants {
		if v == VariantWebhook || !taken[v] {
			out = append(out, v)
		}
	}
	return out
}

// CheckReservedDuplicates verifies that no reserved name is claimed by more
// than one tool. This is the save-time backstop behind the selector.
func CheckReservedDuplicates(toolSpecs []models.ToolSpec) *ValidationError {
	seen := make(map[string]bool, 4)
	for _, t := range toolSpecs {
		name := strings.ToUpper(t.Name)
		if !models.IsReservedToolName(name) {
			continue
		}
		if seen[name] {
			return &ValidationError{
				Field:   "tools",
				Message: fmt.Sprintf("Duplicate reserved tool %s", name),
			}
		}
		seen[name] = true
	}
	return nil
}

// ValidateSpecs runs name validation, type pairing, and duplicate checks
// over an agent's full tool list, as used before building a save payload.
func ValidateSpecs(toolSpecs []models.ToolSpec) *ValidationError {
	for _, t := range toolSpecs {
		if err := ValidateName(t.Name, VariantOf(t)); err != nil {
			return err
		}
		if err := validateTypePairing(t); err != nil {
			return err
		}
	}
	return CheckReservedDuplicates(toolSpecs)
}

// systemToolTypes maps each system-backed reserved name to the
// system_tool_type it must carry.
var systemToolTypes = map[string]string{
	models.ToolNameEndCall:      models.SystemToolEndCall,
	models.ToolNameTransferCall: models.SystemToolTransferToNumber,
}

// validateTypePairing enforces the (type, name) discriminant: END_CALL and
// TRANSFER_CALL are only valid on system tools carrying the matching
// system_tool_type, and system tools carry no other names. The name alone is
// not trusted; a webhook spec under a reserved name smuggles an arbitrary
// api_schema.
func validateTypePairing(spec models.ToolSpec) *ValidationError {
	name := strings.ToUpper(spec.Name)
	want, sys := systemToolTypes[name]
	if sys {
		if spec.Type != models.ToolTypeSystem {
			return &ValidationError{
				Field:   "type",
				Message: fmt.Sprintf("%s must be a system tool", name),
			}
		}
		if spec.Params == nil || spec.Params.SystemToolType != want {
			return &ValidationError{
				Field:   "params",
				Message: fmt.Sprintf("%s requires system_tool_type %s", name, want),
			}
		}
		return nil
	}
	if spec.Type == models.ToolTypeSystem {
		return &ValidationError{
			Field:   "type",
			Message: "System tools must be named END_CALL or TRANSFER_CALL",
		}
	}
	return nil
}

// ── Spec construction ───────────────────────────────────────

// Form carries the user-editable tool fields. Only the fields relevant to
// the selected variant are read.
type Form struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	URL               string          `json:"url"`
	Method            string          `json:"method"`
	RequestBodySchema json.RawMessage `json:"request_body_schema,omitempty"`
	TransferNumber    string          `json:"transfer_number,omitempty"`
}

// ghlBookingSchema is the fixed request-body schema for the GHL booking
// webhook. Generated, never user-editable; must stay byte-compatible with
// what the platform backend expects.
const ghlBookingSchema = `{
  "type": "object",
  "properties": {
    "startTime": {"type": "string", "description": "Appointment start time (ISO 8601)"},
    "endTime": {"type": "string", "description": "Appointment end time (ISO 8601)"},
    "title": {"type": "string", "description": "Appointment title"},
    "assignedUserId": {"type": "string", "description": "GHL user the appointment is assigned to"},
    "contactInfo": {
      "type": "object",
      "properties": {
        "phone": {"type": "string", "description": "Contact phone number"},
        "firstName": {"type": "string"},
        "lastName": {"type": "string"},
        "email": {"type": "string"}
      },
      "required": ["phone"]
    }
  },
  "required": ["startTime", "endTime", "title", "contactInfo"]
}`

// calcomBookingSchema is the fixed request-body schema for the Cal.com
// booking webhook.
const calcomBookingSchema = `{
  "type": "object",
  "properties": {
    "start": {"type": "string", "description": "Booking start time (ISO 8601)"},
    "end": {"type": "string", "description": "Booking end time (ISO 8601)"},
    "attendee": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "email": {"type": "string"},
        "timeZone": {"type": "string"}
      },
      "required": ["name", "email", "timeZone"]
    }
  },
  "required": ["start", "end", "attendee"]
}`

// BuildSpec constructs the upstream ToolSpec for a variant. backendBaseURL
// and userID are embedded into the generated booking-webhook URLs; they are
// ignored for the other variants.
func BuildSpec(v Variant, form Form, backendBaseURL, userID string) (models.ToolSpec, *ValidationError) {
	switch v {
	case VariantEndCall:
		return models.ToolSpec{
			Name:        models.ToolNameEndCall,
			Type:        models.ToolTypeSystem,
			Description: form.Description,
			Params:      &models.ToolParams{SystemToolType: models.SystemToolEndCall},
		}, nil

	case VariantTransferCall:
		number := strings.TrimSpace(form.TransferNumber)
		if number == "" {
			return models.ToolSpec{}, &ValidationError{Field: "transfer_number", Message: "Destination phone number is required"}
		}
		return models.ToolSpec{
			Name:        models.ToolNameTransferCall,
			Type:        models.ToolTypeSystem,
			Description: form.Description,
			Params: &models.ToolParams{
				SystemToolType: models.SystemToolTransferToNumber,
				Transfers: []models.TransferRule{
					{PhoneNumber: number, Condition: models.SystemToolTransferToNumber},
				},
			},
		}, nil

	case VariantGHLBooking:
		return models.ToolSpec{
			Name:        models.ToolNameGHLBooking,
			Type:        models.ToolTypeWebhook,
			Description: form.Description,
			APISchema: &models.APISchema{
				URL:               strings.TrimRight(backendBaseURL, "/") + "/ghl/book/" + userID,
				Method:            "POST",
				RequestBodySchema: json.RawMessage(ghlBookingSchema),
			},
		}, nil

	case VariantCalcom:
		return models.ToolSpec{
			Name:        models.ToolNameCalBooking,
			Type:        models.ToolTypeWebhook,
			Description: form.Description,
			APISchema: &models.APISchema{
				URL:               strings.TrimRight(backendBaseURL, "/") + "/calcom/book/" + userID,
				Method:            "POST",
				RequestBodySchema: json.RawMessage(calcomBookingSchema),
			},
		}, nil
	}

	// Plain webhook.
	if err := ValidateName(form.Name, VariantWebhook); err != nil {
		return models.ToolSpec{}, err
	}
	if strings.TrimSpace(form.URL) == "" {
		return models.ToolSpec{}, &ValidationError{Field: "url", Message: "Webhook URL is required"}
	}
	if strings.TrimSpace(form.Description) == "" {
		return models.ToolSpec{}, &ValidationError{Field: "description", Message: "Description is required"}
	}
	schema, perr := ParseRequestBodySchema(string(form.RequestBodySchema))
	if perr != nil {
		return models.ToolSpec{}, perr
	}
	method := form.Method
	if method == "" {
		method = "POST"
	}
	return models.ToolSpec{
		Name:        form.Name,
		Type:        models.ToolTypeWebhook,
		Description: form.Description,
		APISchema: &models.APISchema{
			URL:               strings.TrimSpace(form.URL),
			Method:            method,
			RequestBodySchema: schema,
		},
	}, nil
}

// ParseRequestBodySchema validates free-form JSON-schema text for plain
// webhook tools. Invalid JSON yields a field-level error, never a panic or
// a propagated failure; valid JSON replaces the stored schema.
func ParseRequestBodySchema(text string) (json.RawMessage, *ValidationError) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &ValidationError{Field: "request_body_schema", Message: "Request body schema is required"}
	}
	var probe map[string]any
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil, &ValidationError{Field: "request_body_schema", Message: "Invalid JSON schema"}
	}
	return json.RawMessage(trimmed), nil
}
