package models

// StartFlowRequest starts a new setup flow.
type StartFlowRequest struct {
	// Handler names the flow type, e.g. "registration".
	Handler string `json:"handler"`
}

// SchemaField describes one form field to the setup UI.
type SchemaField struct {
	Name     string   `json:"name"`
	Required bool     `json:"required"`
	Default  string   `json:"default,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// FlowResponse is the result of starting a flow or submitting a step. Its
// shape depends on Type:
//
//   - "form": Schema, Input and Errors describe the form to (re)display.
//   - "create_entry": Title and SerialNumber identify the created entry.
//   - "abort": Reason carries the machine-readable abort code.
type FlowResponse struct {
	FlowID string `json:"flowId"`
	Type   string `json:"type"`
	StepID string `json:"stepId,omitempty"`

	Schema []SchemaField     `json:"schema,omitempty"`
	Input  map[string]string `json:"input,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`

	Title        string `json:"title,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`

	Reason string `json:"reason,omitempty"`
}
