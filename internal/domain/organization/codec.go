package organization

import (
	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
)

// FHIROrganization is the repository shape of a partner organization.
type FHIROrganization struct {
	ResourceType string              `json:"resourceType"`
	ID           string              `json:"id,omitempty"`
	Meta         *fhir.Meta          `json:"meta,omitempty"`
	Name         string              `json:"name,omitempty"`
	Active       *bool               `json:"active,omitempty"`
	Identifier   []fhir.Identifier   `json:"identifier,omitempty"`
	Telecom      []fhir.ContactPoint `json:"telecom,omitempty"`
	Extension    []fhir.Extension    `json:"extension,omitempty"`
}

// Encode renders an organization. The FHIR endpoint travels as a url
// telecom entry; the API key and role as extensions.
func Encode(o *Organization) *FHIROrganization {
	active := o.Active
	fo := &FHIROrganization{
		ResourceType: "Organization",
		ID:           o.ID,
		Name:         o.Name,
		Active:       &active,
	}
	if o.Endpoint != "" {
		fo.Telecom = append(fo.Telecom, fhir.ContactPoint{System: "url", Value: o.Endpoint})
	}
	if o.APIKey != "" {
		fo.Extension = append(fo.Extension, fhir.Extension{URL: fhir.ExtOrganizationAPIKey, ValueString: o.APIKey})
	}
	if o.Type != "" {
		fo.Extension = append(fo.Extension, fhir.Extension{URL: fhir.ExtOrganizationType, ValueString: o.Type})
		if o.Type == "sponsor" {
			fo.Meta = fhir.AddTag(fo.Meta, fhir.TagSystem, fhir.TagSponsorOrganization)
		}
	}
	if o.Description != "" {
		fo.Extension = append(fo.Extension, fhir.Extension{URL: fhir.ExtCRO, ValueString: o.Description})
	}
	return fo
}

// Decode maps an Organization back. A missing active element reads as
// active; soft-deleted partners carry an explicit false.
func Decode(fo *FHIROrganization) (*Organization, error) {
	if fo.ID == "" {
		return nil, fhir.ErrMissingID
	}
	o := &Organization{
		ID:     fo.ID,
		Name:   fo.Name,
		Active: fo.Active == nil || *fo.Active,
	}
	for _, tel := range fo.Telecom {
		if tel.System == "url" {
			o.Endpoint = tel.Value
			break
		}
	}
	o.APIKey = fhir.ExtensionString(fo.Extension, fhir.ExtOrganizationAPIKey)
	o.Type = fhir.ExtensionString(fo.Extension, fhir.ExtOrganizationType)
	o.Description = fhir.ExtensionString(fo.Extension, fhir.ExtCRO)
	if o.Type == "" && fhir.HasTag(fo.Meta, fhir.TagSystem, fhir.TagSponsorOrganization) {
		o.Type = "sponsor"
	}
	return o, nil
}
