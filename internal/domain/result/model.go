package result

// TestResult is one measured outcome of a stability test at a timepoint.
// Persisted as an Observation.
type TestResult struct {
	ID               string `json:"id,omitempty"`
	ProtocolID       string `json:"protocol_id,omitempty"`
	BatchID          string `json:"batch_id,omitempty"`
	TestDefinitionID string `json:"test_definition_id,omitempty"`
	TimepointID      string `json:"timepoint_id,omitempty"`
	TimepointTitle   string `json:"timepoint_title,omitempty"`

	Title       string `json:"title,omitempty"`
	Value       string `json:"value,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Status      string `json:"status,omitempty"`
	ResultDate  string `json:"result_date,omitempty"`
	PerformedBy string `json:"performed_by,omitempty"`
	Notes       string `json:"notes,omitempty"`

	Organization string `json:"organization,omitempty"`
	Source       string `json:"source,omitempty"`

	// Once true the result is frozen: updates and deletes are refused.
	SharedWithSponsor bool `json:"shared_with_sponsor,omitempty"`

	ParameterResults map[string]interface{} `json:"parameter_results,omitempty"`
	CriteriaResults  map[string]interface{} `json:"criteria_results,omitempty"`
	ResultDetails    map[string]interface{} `json:"result_details,omitempty"`
}
