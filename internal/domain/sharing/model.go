package sharing

// Share modes. The long forms are the wire values; "all" and "specific"
// are accepted as shorthand from older clients.
const (
	ShareModeFull     = "fullProtocol"
	ShareModeSpecific = "specificTests"
)

// ShareRequest selects what to share and with whom.
type ShareRequest struct {
	OrganizationIDs []string `json:"organization_ids"`
	ShareMode       string   `json:"share_mode"` // fullProtocol | specificTests
	SelectedTests   []string `json:"selected_tests"`
	ShareBatches    bool     `json:"share_batches"`
	SelectedBatches []string `json:"selected_batches"`
}

// OrgResult is the outcome of sharing with one organization. Organizations
// are isolated from each other: one failing never aborts the rest.
type OrgResult struct {
	OrganizationID   string `json:"organization_id"`
	OrganizationName string `json:"organization_name,omitempty"`
	Success          bool   `json:"success"`
	Message          string `json:"message"`
}

type ShareResponse struct {
	Message       string      `json:"message"`
	Results       []OrgResult `json:"results"`
	BatchesShared int         `json:"batches_shared"`
}

// ShareInfo describes one organization a protocol has been shared with,
// read back from the share-intent extensions on the protocol.
type ShareInfo struct {
	OrganizationID   string `json:"organization_id"`
	OrganizationName string `json:"organization_name,omitempty"`
	SharedDate       string `json:"shared_date,omitempty"`
	Partial          bool   `json:"partial"`
}

// ReceiveResponse reports how many bundle entries a partner delivery stored.
type ReceiveResponse struct {
	Message string   `json:"message"`
	Stored  int      `json:"stored"`
	Errors  []string `json:"errors,omitempty"`
}
