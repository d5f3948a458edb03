package flow

// ResultType discriminates the outcomes of a step evaluation.
type ResultType string

const (
	// ResultTypeForm renders (or re-renders) the step's form.
	ResultTypeForm ResultType = "form"

	// ResultTypeCreateEntry finishes the flow with a persisted entry.
	ResultTypeCreateEntry ResultType = "create_entry"

	// ResultTypeAbort finishes the flow without an entry.
	ResultTypeAbort ResultType = "abort"
)

// FieldBase is the pseudo-field for form-level errors that are not tied to
// any single input, e.g. "cannot_connect".
const FieldBase = "base"

// Result is the outcome of one step evaluation. Exactly one of the three
// shapes is populated, discriminated by Type.
type Result struct {
	Type   ResultType
	FlowID string
	StepID string

	// Form shape: schema to render, values to pre-fill, error codes keyed
	// by field name (or FieldBase).
	Schema *Schema
	Input  map[string]string
	Errors map[string]string

	// Create-entry shape.
	Title    string
	UniqueID string
	Data     map[string]string

	// Abort shape.
	Reason string
}

// ShowForm builds a form result.
func ShowForm(stepID string, schema *Schema, input, errors map[string]string) *Result {
	if input == nil {
		input = map[string]string{}
	}
	if errors == nil {
		errors = map[string]string{}
	}
	return &Result{
		Type:   ResultTypeForm,
		StepID: stepID,
		Schema: schema,
		Input:  input,
		Errors: errors,
	}
}

// CreateEntry builds a terminal success result.
func CreateEntry(title, uniqueID string, data map[string]string) *Result {
	return &Result{
		Type:     ResultTypeCreateEntry,
		Title:    title,
		UniqueID: uniqueID,
		Data:     data,
	}
}

// Abort builds a terminal abort result with a machine-readable reason.
func Abort(reason string) *Result {
	return &Result{
		Type:   ResultTypeAbort,
		Reason: reason,
	}
}

// Terminal reports whether the flow is finished after this result.
func (r *Result) Terminal() bool {
	return r.Type == ResultTypeCreateEntry || r.Type == ResultTypeAbort
}
