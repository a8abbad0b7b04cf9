package result

import (
	"strconv"
	"strings"

	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
)

// Observation is the repository shape of a test result.
type Observation struct {
	ResourceType      string                `json:"resourceType"`
	ID                string                `json:"id,omitempty"`
	Meta              *fhir.Meta            `json:"meta,omitempty"`
	Status            string                `json:"status,omitempty"`
	Code              *fhir.CodeableConcept `json:"code,omitempty"`
	Subject           *fhir.Reference       `json:"subject,omitempty"`
	BasedOn           []fhir.Reference      `json:"basedOn,omitempty"`
	EffectiveDateTime string                `json:"effectiveDateTime,omitempty"`
	ValueQuantity     *fhir.Quantity        `json:"valueQuantity,omitempty"`
	ValueString       string                `json:"valueString,omitempty"`
	Performer         []fhir.Reference      `json:"performer,omitempty"`
	Note              []Note                `json:"note,omitempty"`
	Extension         []fhir.Extension      `json:"extension,omitempty"`
}

type Note struct {
	Text string `json:"text"`
}

// Encode renders a test result as an Observation. Numeric values become a
// valueQuantity with the unit; everything else is a valueString.
func Encode(r *TestResult) *Observation {
	obs := &Observation{
		ResourceType:      "Observation",
		ID:                r.ID,
		Status:            r.Status,
		EffectiveDateTime: r.ResultDate,
	}
	if obs.Status == "" {
		obs.Status = "final"
	}

	codeText := r.Title
	if codeText == "" {
		codeText = r.TestDefinitionID
	}
	if codeText != "" {
		obs.Code = &fhir.CodeableConcept{Text: codeText}
	}

	if r.BatchID != "" {
		obs.Subject = &fhir.Reference{Reference: fhir.FormatReference("Device", r.BatchID)}
	}
	if r.ProtocolID != "" {
		obs.BasedOn = []fhir.Reference{{Reference: fhir.FormatReference("PlanDefinition", r.ProtocolID)}}
		obs.Extension = append(obs.Extension, fhir.Extension{
			URL:         fhir.ExtTestProtocol,
			ValueString: fhir.FormatReference("PlanDefinition", r.ProtocolID),
		})
	}

	if v, err := strconv.ParseFloat(r.Value, 64); err == nil {
		obs.ValueQuantity = &fhir.Quantity{Value: &v, Unit: r.Unit}
	} else if r.Value != "" {
		obs.ValueString = r.Value
	}
	if r.PerformedBy != "" {
		obs.Performer = []fhir.Reference{{Display: r.PerformedBy}}
	}
	if r.Notes != "" {
		obs.Note = []Note{{Text: r.Notes}}
	}

	addString := func(url, v string) {
		if v != "" {
			obs.Extension = append(obs.Extension, fhir.Extension{URL: url, ValueString: v})
		}
	}
	addString(fhir.ExtTestDefinition, r.TestDefinitionID)
	addString(fhir.ExtProtocolTimepoint, r.TimepointID)
	addString(fhir.ExtProtocolTimepointName, r.TimepointTitle)
	addString(fhir.ExtResultOrganization, r.Organization)
	addString(fhir.ExtResultUnit, r.Unit)
	addString(fhir.ExtResultSource, r.Source)
	addString(fhir.ExtParameterResults, fhir.EncodeBlob(r.ParameterResults))
	addString(fhir.ExtCriteriaResults, fhir.EncodeBlob(r.CriteriaResults))
	addString(fhir.ExtResultDetails, fhir.EncodeBlob(r.ResultDetails))

	if r.SharedWithSponsor {
		obs.Extension = append(obs.Extension, fhir.Extension{
			URL:          fhir.ExtSharedWithSponsor,
			ValueBoolean: fhir.BoolPtr(true),
		})
	}

	return obs
}

// Decode maps an Observation back to a test result. Malformed result blobs
// decode to empty maps; the second return value reports whether all blobs
// were clean.
func Decode(obs *Observation) (*TestResult, bool, error) {
	if obs.ID == "" {
		return nil, true, fhir.ErrMissingID
	}

	r := &TestResult{
		ID:         obs.ID,
		Status:     obs.Status,
		ResultDate: obs.EffectiveDateTime,
	}
	if obs.Code != nil {
		r.Title = obs.Code.Text
	}
	if obs.Subject != nil {
		r.BatchID = batchID(obs.Subject.Reference)
	}
	for _, ref := range obs.BasedOn {
		if id := refID(ref.Reference, "PlanDefinition"); id != "" {
			r.ProtocolID = id
			break
		}
	}
	if r.ProtocolID == "" {
		r.ProtocolID = refID(fhir.ExtensionString(obs.Extension, fhir.ExtTestProtocol), "PlanDefinition")
	}

	switch {
	case obs.ValueQuantity != nil && obs.ValueQuantity.Value != nil:
		r.Value = strconv.FormatFloat(*obs.ValueQuantity.Value, 'f', -1, 64)
		r.Unit = obs.ValueQuantity.Unit
	default:
		r.Value = obs.ValueString
	}
	if u := fhir.ExtensionString(obs.Extension, fhir.ExtResultUnit); u != "" {
		r.Unit = u
	}

	if len(obs.Performer) > 0 {
		r.PerformedBy = obs.Performer[0].Display
	}
	if len(obs.Note) > 0 {
		r.Notes = obs.Note[0].Text
	}

	r.TestDefinitionID = refID(fhir.ExtensionString(obs.Extension, fhir.ExtTestDefinition), "ActivityDefinition")
	r.TimepointID = fhir.ExtensionString(obs.Extension, fhir.ExtProtocolTimepoint)
	r.TimepointTitle = fhir.ExtensionString(obs.Extension, fhir.ExtProtocolTimepointName)
	r.Organization = fhir.ExtensionString(obs.Extension, fhir.ExtResultOrganization)
	r.Source = fhir.ExtensionString(obs.Extension, fhir.ExtResultSource)
	r.SharedWithSponsor = fhir.SharedWithSponsor(obs.Meta, obs.Extension)

	clean := true
	r.ParameterResults, clean = decodeBlobInto(obs.Extension, fhir.ExtParameterResults, clean)
	r.CriteriaResults, clean = decodeBlobInto(obs.Extension, fhir.ExtCriteriaResults, clean)
	r.ResultDetails, clean = decodeBlobInto(obs.Extension, fhir.ExtResultDetails, clean)

	return r, clean, nil
}

func decodeBlobInto(exts []fhir.Extension, url string, clean bool) (map[string]interface{}, bool) {
	m, ok := fhir.DecodeBlob(fhir.ExtensionString(exts, url))
	return m, clean && ok
}

// batchID accepts both batch encodings as the subject.
func batchID(ref string) string {
	if id := refID(ref, "Device"); id != "" {
		return id
	}
	return refID(ref, "Medication")
}

func refID(ref, wantType string) string {
	if ref == "" {
		return ""
	}
	parts := strings.Split(ref, "/")
	if len(parts) >= 2 {
		if parts[len(parts)-2] != wantType {
			return ""
		}
		return parts[len(parts)-1]
	}
	return ref
}
