package fhir

import "encoding/json"

// Extension covers the value[x] choices the stability network uses, plus
// nested sub-extensions for composite values.
type Extension struct {
	URL            string      `json:"url"`
	ValueString    string      `json:"valueString,omitempty"`
	ValueCode      string      `json:"valueCode,omitempty"`
	ValueBoolean   *bool       `json:"valueBoolean,omitempty"`
	ValueInteger   *int        `json:"valueInteger,omitempty"`
	ValueDateTime  string      `json:"valueDateTime,omitempty"`
	ValueDecimal   *float64    `json:"valueDecimal,omitempty"`
	ValueReference *Reference  `json:"valueReference,omitempty"`
	Extension      []Extension `json:"extension,omitempty"`
}

// FindExtension returns the first extension whose URL matches any of the
// given URLs, tried in the order the URLs are listed. This is how current
// and legacy URLs fall back to each other.
func FindExtension(exts []Extension, urls ...string) (Extension, bool) {
	for _, u := range urls {
		for _, e := range exts {
			if e.URL == u {
				return e, true
			}
		}
	}
	return Extension{}, false
}

// ExtensionString returns the string value of the first matching extension,
// accepting valueString, valueCode or valueDateTime.
func ExtensionString(exts []Extension, urls ...string) string {
	e, ok := FindExtension(exts, urls...)
	if !ok {
		return ""
	}
	if e.ValueString != "" {
		return e.ValueString
	}
	if e.ValueCode != "" {
		return e.ValueCode
	}
	return e.ValueDateTime
}

// ExtensionBool is true when the first matching extension carries a true
// valueBoolean or the string "true".
func ExtensionBool(exts []Extension, urls ...string) bool {
	e, ok := FindExtension(exts, urls...)
	if !ok {
		return false
	}
	if e.ValueBoolean != nil {
		return *e.ValueBoolean
	}
	return e.ValueString == "true"
}

// ExtensionReference returns the reference string of the first matching
// extension, from valueReference or valueString.
func ExtensionReference(exts []Extension, urls ...string) string {
	e, ok := FindExtension(exts, urls...)
	if !ok {
		return ""
	}
	if e.ValueReference != nil && e.ValueReference.Reference != "" {
		return e.ValueReference.Reference
	}
	return e.ValueString
}

// ReplaceExtension removes every extension with the given URL and appends
// the replacement, so repeated writes never accumulate duplicates.
func ReplaceExtension(exts []Extension, ext Extension) []Extension {
	out := RemoveExtension(exts, ext.URL)
	return append(out, ext)
}

// RemoveExtension drops every extension with any of the given URLs.
func RemoveExtension(exts []Extension, urls ...string) []Extension {
	drop := make(map[string]bool, len(urls))
	for _, u := range urls {
		drop[u] = true
	}
	out := make([]Extension, 0, len(exts))
	for _, e := range exts {
		if !drop[e.URL] {
			out = append(out, e)
		}
	}
	return out
}

// BoolPtr is a convenience for valueBoolean extensions.
func BoolPtr(b bool) *bool { return &b }

// DecodeBlob parses a JSON-object string such as the parameter or
// acceptance-criteria payloads. Malformed input yields an empty map and
// false; the caller logs and carries on, a bad blob never aborts a decode.
func DecodeBlob(s string) (map[string]interface{}, bool) {
	if s == "" {
		return map[string]interface{}{}, true
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return map[string]interface{}{}, false
	}
	return m, true
}

// EncodeBlob renders a map as a compact JSON string; nil encodes to "{}".
func EncodeBlob(m map[string]interface{}) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}
