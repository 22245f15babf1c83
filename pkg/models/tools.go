package models

import (
	"encoding/json"
	"strings"
)

// ── Tool specs ───────────────────────────────────────────────

// ToolType is the upstream tool discriminator.
type ToolType string

const (
	ToolTypeSystem  ToolType = "system"
	ToolTypeWebhook ToolType = "webhook"
)

// Reserved tool names. Each may appear at most once per agent; webhook tools
// may not claim them. GHL_BOOKING and CAL_BOOKING are webhook-typed on the
// wire but their name, URL and schema are generated, never user-editable.
const (
	ToolNameEndCall      = "END_CALL"
	ToolNameTransferCall = "TRANSFER_CALL"
	ToolNameGHLBooking   = "GHL_BOOKING"
	ToolNameCalBooking   = "CAL_BOOKING"
)

// ReservedToolNames lists every reserved name.
var ReservedToolNames = []string{
	ToolNameEndCall,
	ToolNameTransferCall,
	ToolNameGHLBooking,
	ToolNameCalBooking,
}

// IsReservedToolName matches reserved names case-insensitively.
func IsReservedToolName(name string) bool {
	for _, r := range ReservedToolNames {
		if strings.EqualFold(name, r) {
			return true
		}
	}
	return false
}

// System tool subtypes carried in params.system_tool_type.
const (
	SystemToolEndCall          = "end_call"
	SystemToolTransferToNumber = "transfer_to_number"
)

// ToolSpec is one tool binding attached to an agent. The (Type, Name) pair is
// the variant discriminant: system tools carry Params, webhook tools carry an
// APISchema.
type ToolSpec struct {
	Name        string      `json:"name"`
	Type        ToolType    `json:"type"`
	Description string      `json:"description,omitempty"`
	APISchema   *APISchema  `json:"api_schema,omitempty"`
	Params      *ToolParams `json:"params,omitempty"`
}

// APISchema describes a webhook tool's HTTP call.
type APISchema struct {
	URL               string          `json:"url"`
	Method            string          `json:"method,omitempty"`
	RequestBodySchema json.RawMessage `json:"request_body_schema,omitempty"`
}

// ToolParams carries system-tool parameters.
type ToolParams struct {
	SystemToolType string         `json:"system_tool_type,omitempty"`
	Transfers      []TransferRule `json:"transfers,omitempty"`
}

// TransferRule is one transfer destination for the TRANSFER_CALL tool.
type TransferRule struct {
	PhoneNumber string `json:"phone_number"`
	Condition   string `json:"condition"`
}
