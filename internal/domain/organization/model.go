package organization

// Organization is a partner on the stability network: a CRO lab, the
// sponsor, or a regulator. Persisted as a FHIR Organization; the endpoint
// and API key let the sharing workflow reach the partner's own repository.
type Organization struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"` // sponsor | cro | regulator
	Description string `json:"description,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	APIKey      string `json:"api_key,omitempty"`
	Active      bool   `json:"active"`
}
