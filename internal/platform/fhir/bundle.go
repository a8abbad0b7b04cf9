package fhir

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Bundle covers the searchset bundles the repository returns and the
// transaction bundles this system submits.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Request  *BundleRequest  `json:"request,omitempty"`
	Response *BundleResponse `json:"response,omitempty"`
}

type BundleRequest struct {
	Method      string `json:"method"`
	URL         string `json:"url"`
	IfNoneExist string `json:"ifNoneExist,omitempty"`
}

type BundleResponse struct {
	Status   string `json:"status"`
	Location string `json:"location,omitempty"`
}

// NewTransaction returns an empty transaction bundle.
func NewTransaction() *Bundle {
	return &Bundle{ResourceType: "Bundle", Type: "transaction"}
}

// AddPost appends a POST entry with a fresh urn:uuid fullUrl and returns the
// fullUrl so other entries in the same bundle can reference it.
func (b *Bundle) AddPost(resourceType string, resource interface{}) (string, error) {
	raw, err := json.Marshal(resource)
	if err != nil {
		return "", err
	}
	fullURL := "urn:uuid:" + uuid.NewString()
	b.Entry = append(b.Entry, BundleEntry{
		FullURL:  fullURL,
		Resource: raw,
		Request:  &BundleRequest{Method: "POST", URL: resourceType},
	})
	return fullURL, nil
}

// AddConditionalPost appends a POST entry with an ifNoneExist clause: the
// destination creates the resource only when the search query matches
// nothing, otherwise references to the entry resolve to the existing match.
func (b *Bundle) AddConditionalPost(resourceType, query string, resource interface{}) (string, error) {
	fullURL, err := b.AddPost(resourceType, resource)
	if err != nil {
		return "", err
	}
	b.Entry[len(b.Entry)-1].Request.IfNoneExist = query
	return fullURL, nil
}

// AddPut appends a PUT entry addressed at Type/id.
func (b *Bundle) AddPut(resourceType, id string, resource interface{}) error {
	raw, err := json.Marshal(resource)
	if err != nil {
		return err
	}
	b.Entry = append(b.Entry, BundleEntry{
		FullURL:  resourceType + "/" + id,
		Resource: raw,
		Request:  &BundleRequest{Method: "PUT", URL: resourceType + "/" + id},
	})
	return nil
}
