// Package tools exposes browser operations as named tools that an agent can
// call with JSON-style arguments.
//
// Every tool returns plain text. Failures are turned into diagnostic text
// that names a next step, so a caller never has to interpret a Go error.
//
//	Registry.Execute(name, args) → Tool.Execute → text | Describe(err)
package tools

import (
	"context"
)

// ToolCategory groups tools for listing.
type ToolCategory string

const (
	// CategoryObserve covers snapshots, page info and offline resolution.
	CategoryObserve ToolCategory = "/observe"

	// CategoryAct covers click, type and select.
	CategoryAct ToolCategory = "/act"

	// CategoryNavigate covers page navigation.
	CategoryNavigate ToolCategory = "/navigate"

	// CategoryTabs covers tab management.
	CategoryTabs ToolCategory = "/tabs"
)

// Categories is the listing order.
var Categories = []ToolCategory{CategoryObserve, CategoryNavigate, CategoryAct, CategoryTabs}

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is one named operation.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does and when to call it.
	Description string

	Category ToolCategory

	Execute ExecuteFunc

	Schema ToolSchema

	// Priority orders tools within a category (default 50).
	Priority int
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Result is the text shown to the caller. On failure it holds the
	// diagnostic built by Describe.
	Result string

	// Error is set if the tool failed.
	Error error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil
}
