package types

import "encoding/json"

// ToolSchema defines a tool's interface for model function calling.
type ToolSchema struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  *JSONSchema `json:"parameters"`
}

// ToolOutcome is the envelope fed back to the model as a tool result.
type ToolOutcome struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Error   string `json:"error,omitempty"`
}

// MarshalJSON 成功时总是带 data（可为 null），失败时只带 error
func (o ToolOutcome) MarshalJSON() ([]byte, error) {
	if o.Success {
		return json.Marshal(struct {
			Success bool `json:"success"`
			Data    any  `json:"data"`
		}{true, o.Data})
	}
	return json.Marshal(struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}{false, o.Error})
}

// ToolFailure builds a failed outcome.
func ToolFailure(msg string) ToolOutcome {
	return ToolOutcome{Success: false, Error: msg}
}

// ToolSuccess builds a successful outcome.
func ToolSuccess(data any) ToolOutcome {
	return ToolOutcome{Success: true, Data: data}
}

// JSON serializes the outcome. Unserializable data degrades to a failure.
func (o ToolOutcome) JSON() string {
	b, err := json.Marshal(o)
	if err != nil {
		b, _ = json.Marshal(ToolFailure("unserializable tool result: " + err.Error()))
	}
	return string(b)
}

// Block converts the outcome into a tool_result block for the given call.
func (o ToolOutcome) Block(toolUseID string) ContentBlock {
	return NewToolResultBlock(toolUseID, o.JSON(), !o.Success)
}
