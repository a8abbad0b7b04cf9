package protocol

import (
	"strings"

	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
)

// PlanDefinition is the repository shape of a protocol. Only the fields
// this system reads or writes are modelled; the action tree's timing is
// carried opaquely.
type PlanDefinition struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id,omitempty"`
	Meta         *fhir.Meta        `json:"meta,omitempty"`
	Title        string            `json:"title,omitempty"`
	Description  string            `json:"description,omitempty"`
	Status       string            `json:"status,omitempty"`
	Date         string            `json:"date,omitempty"`
	Identifier   []fhir.Identifier `json:"identifier,omitempty"`
	Subject      *fhir.Reference   `json:"subjectReference,omitempty"`
	Extension    []fhir.Extension  `json:"extension,omitempty"`
	Action       []Action          `json:"action,omitempty"`
}

// Action is a node of the PlanDefinition action tree: top-level actions are
// timepoints, their children are the tests drawn at that timepoint.
type Action struct {
	ID           string                 `json:"id,omitempty"`
	Title        string                 `json:"title,omitempty"`
	Description  string                 `json:"description,omitempty"`
	TimingTiming map[string]interface{} `json:"timingTiming,omitempty"`
	Definition   string                 `json:"definitionCanonical,omitempty"`
	Action       []Action               `json:"action,omitempty"`
}

// Encode renders a protocol as a PlanDefinition.
func Encode(p *Protocol) *PlanDefinition {
	pd := &PlanDefinition{
		ResourceType: "PlanDefinition",
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		Status:       p.Status,
	}
	if pd.Status == "" {
		pd.Status = "active"
	}
	if p.Title != "" {
		pd.Identifier = []fhir.Identifier{{System: fhir.IdentProtocol, Value: p.Title}}
	}
	if p.ProductID != "" {
		pd.Subject = &fhir.Reference{Reference: fhir.FormatReference("MedicinalProductDefinition", p.ProductID)}
	}

	if p.SponsorName != "" {
		pd.Extension = append(pd.Extension, fhir.Extension{URL: fhir.ExtSponsor, ValueString: p.SponsorName})
	}
	if p.SponsorID != "" {
		pd.Extension = append(pd.Extension, fhir.Extension{URL: fhir.ExtSponsorID, ValueString: p.SponsorID})
	}
	if p.SharedDate != "" {
		pd.Extension = append(pd.Extension, fhir.Extension{URL: fhir.ExtSharedDate, ValueDateTime: p.SharedDate})
	}
	if len(p.SharedOrganizations) > 0 {
		pd.Extension = append(pd.Extension, fhir.Extension{
			URL:         fhir.ExtPlanSharedOrganizations,
			ValueString: strings.Join(p.SharedOrganizations, ","),
		})
	}
	if p.PartialShare {
		pd.Extension = append(pd.Extension, fhir.Extension{URL: fhir.ExtPlanPartialShare, ValueString: "true"})
	}

	for _, tp := range p.Timepoints {
		action := Action{
			ID:           tp.ID,
			Title:        tp.Title,
			Description:  tp.Description,
			TimingTiming: tp.Schedule,
		}
		for _, test := range tp.Tests {
			action.Action = append(action.Action, Action{
				ID:         test.ID,
				Title:      test.Title,
				Definition: fhir.FormatReference("ActivityDefinition", test.TestID),
			})
		}
		pd.Action = append(pd.Action, action)
	}
	return pd
}

// Decode maps a PlanDefinition back to a protocol. Sponsor name and shared
// date fall back to meta.source and meta.lastUpdated when the extensions
// are absent, which is how pre-extension resources still decode.
func Decode(pd *PlanDefinition) (*Protocol, error) {
	if pd.ID == "" {
		return nil, fhir.ErrMissingID
	}

	p := &Protocol{
		ID:          pd.ID,
		Title:       pd.Title,
		Description: pd.Description,
		Status:      pd.Status,
	}

	if pd.Subject != nil {
		p.ProductID = referenceID(pd.Subject.Reference, "MedicinalProductDefinition")
	}

	p.SponsorName = fhir.ExtensionString(pd.Extension, fhir.ExtSponsor)
	if p.SponsorName == "" && pd.Meta != nil {
		p.SponsorName = pd.Meta.Source
	}
	p.SponsorID = fhir.ExtensionString(pd.Extension, fhir.ExtSponsorID)

	p.SharedDate = fhir.ExtensionString(pd.Extension, fhir.ExtSharedDate)
	if p.SharedDate == "" && pd.Meta != nil {
		p.SharedDate = pd.Meta.LastUpdated
	}

	if orgs := fhir.ExtensionString(pd.Extension, fhir.ExtPlanSharedOrganizations); orgs != "" {
		for _, o := range strings.Split(orgs, ",") {
			if o = strings.TrimSpace(o); o != "" {
				p.SharedOrganizations = append(p.SharedOrganizations, o)
			}
		}
	}
	p.PartialShare = fhir.ExtensionBool(pd.Extension, fhir.ExtPlanPartialShare)

	for _, a := range pd.Action {
		tp := Timepoint{
			ID:          a.ID,
			Title:       a.Title,
			Description: a.Description,
			Schedule:    a.TimingTiming,
		}
		for _, sub := range a.Action {
			testID := referenceID(sub.Definition, "ActivityDefinition")
			if testID == "" {
				continue
			}
			tp.Tests = append(tp.Tests, TimepointTest{ID: sub.ID, TestID: testID, Title: sub.Title})
		}
		p.Timepoints = append(p.Timepoints, tp)
	}

	return p, nil
}

// referenceID extracts the id from a "Type/id" reference; with an empty
// wantType any resource type is accepted.
func referenceID(ref, wantType string) string {
	if ref == "" {
		return ""
	}
	parts := strings.Split(ref, "/")
	if len(parts) < 2 {
		return ref
	}
	typ, id := parts[len(parts)-2], parts[len(parts)-1]
	if wantType != "" && typ != wantType {
		return ""
	}
	return id
}
