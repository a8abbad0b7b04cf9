package testdef

import (
	"strings"

	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
)

// ActivityDefinition is the repository shape of a test definition.
type ActivityDefinition struct {
	ResourceType string              `json:"resourceType"`
	ID           string              `json:"id,omitempty"`
	Meta         *fhir.Meta          `json:"meta,omitempty"`
	Title        string              `json:"title,omitempty"`
	Description  string              `json:"description,omitempty"`
	Status       string              `json:"status,omitempty"`
	Kind         string              `json:"kind,omitempty"`
	Identifier   []fhir.Identifier   `json:"identifier,omitempty"`
	UseContext   []fhir.UsageContext `json:"useContext,omitempty"`
	Extension    []fhir.Extension    `json:"extension,omitempty"`
}

// Encode renders a test definition as an ActivityDefinition. The protocol
// association is written redundantly — extension, meta tag and identifier —
// so that every partner server, whichever encoding it understands, can
// resolve the protocol's tests.
func Encode(td *TestDefinition) *ActivityDefinition {
	ad := &ActivityDefinition{
		ResourceType: "ActivityDefinition",
		ID:           td.ID,
		Title:        td.Title,
		Description:  td.Description,
		Status:       "active",
		Kind:         "ServiceRequest",
	}

	if td.TestType != "" {
		ad.Extension = append(ad.Extension, fhir.Extension{URL: fhir.ExtTestType, ValueString: td.TestType})
	}
	if td.TestSubtype != "" {
		ad.Extension = append(ad.Extension, fhir.Extension{URL: fhir.ExtTestSubtype, ValueString: td.TestSubtype})
	}
	ad.Extension = append(ad.Extension,
		fhir.Extension{URL: fhir.ExtTestParameters, ValueString: fhir.EncodeBlob(td.Parameters)},
		fhir.Extension{URL: fhir.ExtTestAcceptanceCriteria, ValueString: fhir.EncodeBlob(td.AcceptanceCriteria)},
	)

	if td.ProtocolID != "" {
		ad.Extension = append(ad.Extension, fhir.Extension{
			URL:         fhir.ExtTestProtocol,
			ValueString: fhir.FormatReference("PlanDefinition", td.ProtocolID),
		})
		ad.Meta = fhir.AddTag(ad.Meta, fhir.TagSystem, "protocol:"+td.ProtocolID)
		ad.Identifier = append(ad.Identifier, fhir.Identifier{
			System: fhir.IdentTestProtocols,
			Value:  "protocol:" + td.ProtocolID,
		})
	}

	return ad
}

// protocolStrategies resolve the protocol a test belongs to. They run in
// order; the first non-empty answer wins. Older resources in the network
// only carry one of these encodings, so all four stay supported.
var protocolStrategies = []struct {
	name string
	fn   func(*ActivityDefinition) string
}{
	{"extension", protocolFromExtension},
	{"meta-tag", protocolFromMetaTag},
	{"use-context", protocolFromUseContext},
	{"identifier", protocolFromIdentifier},
}

func protocolFromExtension(ad *ActivityDefinition) string {
	ref := fhir.ExtensionReference(ad.Extension, fhir.ExtTestProtocol, fhir.ExtTestProtocolLegacy)
	return trimPlanDefinition(ref)
}

func protocolFromMetaTag(ad *ActivityDefinition) string {
	if ad.Meta == nil {
		return ""
	}
	for _, t := range ad.Meta.Tag {
		if t.System == fhir.TagSystem && strings.HasPrefix(t.Code, "protocol:") {
			return strings.TrimPrefix(t.Code, "protocol:")
		}
	}
	return ""
}

func protocolFromUseContext(ad *ActivityDefinition) string {
	for _, uc := range ad.UseContext {
		if uc.ValueReference != nil {
			if id := trimPlanDefinition(uc.ValueReference.Reference); id != "" {
				return id
			}
		}
	}
	return ""
}

func protocolFromIdentifier(ad *ActivityDefinition) string {
	for _, ident := range ad.Identifier {
		if strings.HasPrefix(ident.Value, "protocol:") {
			return strings.TrimPrefix(ident.Value, "protocol:")
		}
	}
	return ""
}

func trimPlanDefinition(ref string) string {
	if ref == "" {
		return ""
	}
	parts := strings.Split(ref, "/")
	if len(parts) >= 2 {
		if parts[len(parts)-2] != "PlanDefinition" {
			return ""
		}
		return parts[len(parts)-1]
	}
	return ref
}

// ProtocolID resolves the protocol association of a raw ActivityDefinition.
func ProtocolID(ad *ActivityDefinition) string {
	for _, s := range protocolStrategies {
		if id := s.fn(ad); id != "" {
			return id
		}
	}
	return ""
}

// Decode maps an ActivityDefinition back to a test definition. Malformed
// parameter or criteria blobs decode to empty maps; the second return value
// is false when that happened so the caller can log it.
func Decode(ad *ActivityDefinition) (*TestDefinition, bool, error) {
	if ad.ID == "" {
		return nil, true, fhir.ErrMissingID
	}

	td := &TestDefinition{
		ID:          ad.ID,
		Title:       ad.Title,
		Description: ad.Description,
		TestType:    fhir.ExtensionString(ad.Extension, fhir.ExtTestType),
		TestSubtype: fhir.ExtensionString(ad.Extension, fhir.ExtTestSubtype),
		ProtocolID:  ProtocolID(ad),
	}

	clean := true
	params, ok := fhir.DecodeBlob(fhir.ExtensionString(ad.Extension, fhir.ExtTestParameters))
	clean = clean && ok
	criteria, ok := fhir.DecodeBlob(fhir.ExtensionString(ad.Extension, fhir.ExtTestAcceptanceCriteria))
	clean = clean && ok

	td.Parameters = params
	td.AcceptanceCriteria = criteria
	return td, clean, nil
}
