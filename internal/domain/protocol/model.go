package protocol

// Protocol is a stability study protocol. It is persisted as a
// PlanDefinition on the clinical repository; nothing is stored locally.
type Protocol struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	ProductID   string `json:"product_id,omitempty"`

	SponsorName string `json:"sponsor_name,omitempty"`
	SponsorID   string `json:"sponsor_id,omitempty"`
	SharedDate  string `json:"shared_date,omitempty"`

	// Organizations this protocol has been shared with, and whether the
	// last share sent only a subset of its tests.
	SharedOrganizations []string `json:"shared_organizations,omitempty"`
	PartialShare        bool     `json:"partial_share,omitempty"`

	Timepoints []Timepoint `json:"timepoints,omitempty"`
}

// Timepoint is one pull point of the stability schedule (e.g. "3 months"),
// carrying the tests performed at that point.
type Timepoint struct {
	ID          string                 `json:"id,omitempty"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Schedule    map[string]interface{} `json:"schedule,omitempty"`
	Tests       []TimepointTest        `json:"tests,omitempty"`
}

// TimepointTest links a timepoint to a test definition.
type TimepointTest struct {
	ID     string `json:"id,omitempty"`
	TestID string `json:"test_id"`
	Title  string `json:"title,omitempty"`
}
