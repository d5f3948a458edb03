package flow

import (
	"fmt"
	"regexp"
	"strconv"
)

// FieldRule describes one form field: whether it is required, how raw input
// is transformed, and the predicate it must satisfy. Rules are evaluated
// independently so a single pass reports every invalid field, not just the
// first.
type FieldRule struct {
	// Name of the field as submitted by the UI.
	Name string

	// Required rejects absent input with "<name>_required".
	Required bool

	// Default is applied when the field is absent. A field with a default
	// never produces a required error.
	Default string

	// Transform normalizes the coerced value before matching, e.g.
	// upper-casing API keys.
	Transform func(string) string

	// Pattern the transformed value must match, if set.
	Pattern *regexp.Regexp

	// OneOf restricts the transformed value to an enumeration, if set.
	OneOf []string
}

// Schema is an ordered set of field rules.
type Schema struct {
	Fields []FieldRule
}

// Validate coerces and checks raw input against the schema. It returns the
// validated values and a map of field name to error code ("<name>_required"
// or "<name>_invalid"). Fields not covered by a rule are dropped silently.
func (s *Schema) Validate(raw map[string]interface{}) (map[string]string, map[string]string) {
	values := make(map[string]string, len(s.Fields))
	fieldErrors := make(map[string]string)

	for _, rule := range s.Fields {
		v, present := raw[rule.Name]
		if !present {
			if rule.Default != "" {
				values[rule.Name] = rule.Default
			} else if rule.Required {
				fieldErrors[rule.Name] = rule.Name + "_required"
			}
			continue
		}

		coerced, ok := coerceString(v)
		if !ok {
			fieldErrors[rule.Name] = rule.Name + "_invalid"
			continue
		}

		if rule.Transform != nil {
			coerced = rule.Transform(coerced)
		}

		if rule.Pattern != nil && !rule.Pattern.MatchString(coerced) {
			fieldErrors[rule.Name] = rule.Name + "_invalid"
			continue
		}

		if len(rule.OneOf) > 0 && !contains(rule.OneOf, coerced) {
			fieldErrors[rule.Name] = rule.Name + "_invalid"
			continue
		}

		values[rule.Name] = coerced
	}

	return values, fieldErrors
}

// Prefill extracts the schema's fields from raw input as display strings so
// a redisplayed form keeps what the user typed. No validation is applied.
func (s *Schema) Prefill(raw map[string]interface{}) map[string]string {
	prefill := make(map[string]string)
	for _, rule := range s.Fields {
		if v, present := raw[rule.Name]; present {
			if coerced, ok := coerceString(v); ok {
				prefill[rule.Name] = coerced
			}
		}
	}
	return prefill
}

// coerceString converts the JSON scalar types to their string form.
func coerceString(v interface{}) (string, bool) {
	switch value := v.(type) {
	case string:
		return value, true
	case bool:
		return strconv.FormatBool(value), true
	case float64:
		// JSON numbers decode as float64; render integers without a
		// trailing fraction.
		if value == float64(int64(value)) {
			return strconv.FormatInt(int64(value), 10), true
		}
		return strconv.FormatFloat(value, 'f', -1, 64), true
	case int:
		return strconv.Itoa(value), true
	case fmt.Stringer:
		return value.String(), true
	default:
		return "", false
	}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
