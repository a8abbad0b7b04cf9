package testdef

// TestDefinition describes one stability test (assay, dissolution, water
// content...) attached to a protocol. Persisted as an ActivityDefinition.
type TestDefinition struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	TestType    string `json:"test_type,omitempty"`
	TestSubtype string `json:"test_subtype,omitempty"`
	ProtocolID  string `json:"protocol_id,omitempty"`

	// Method parameters and acceptance criteria are free-form JSON
	// payloads owned by the lab systems; they are carried, not modelled.
	Parameters         map[string]interface{} `json:"parameters,omitempty"`
	AcceptanceCriteria map[string]interface{} `json:"acceptance_criteria,omitempty"`
}
