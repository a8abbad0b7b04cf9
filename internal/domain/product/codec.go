package product

import (
	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
)

// MedicinalProductDefinition is the repository shape of a product.
type MedicinalProductDefinition struct {
	ResourceType string                 `json:"resourceType"`
	ID           string                 `json:"id,omitempty"`
	Meta         *fhir.Meta             `json:"meta,omitempty"`
	Identifier   []fhir.Identifier      `json:"identifier,omitempty"`
	DoseForm     *fhir.CodeableConcept  `json:"combinedPharmaceuticalDoseForm,omitempty"`
	Route        []fhir.CodeableConcept `json:"route,omitempty"`
	Name         []ProductName          `json:"name,omitempty"`
}

type ProductName struct {
	ProductName string `json:"productName"`
}

func Encode(p *Product) *MedicinalProductDefinition {
	mpd := &MedicinalProductDefinition{
		ResourceType: "MedicinalProductDefinition",
		ID:           p.ID,
	}
	if p.Name != "" {
		mpd.Name = []ProductName{{ProductName: p.Name}}
	}
	if p.Identifier != "" {
		mpd.Identifier = []fhir.Identifier{{System: fhir.IdentBatch, Value: p.Identifier}}
	}
	if p.DoseForm != "" {
		mpd.DoseForm = &fhir.CodeableConcept{Text: p.DoseForm}
	}
	if p.Route != "" {
		mpd.Route = []fhir.CodeableConcept{{Text: p.Route}}
	}
	return mpd
}

func Decode(mpd *MedicinalProductDefinition) (*Product, error) {
	if mpd.ID == "" {
		return nil, fhir.ErrMissingID
	}
	p := &Product{ID: mpd.ID}
	if len(mpd.Name) > 0 {
		p.Name = mpd.Name[0].ProductName
	}
	if len(mpd.Identifier) > 0 {
		p.Identifier = mpd.Identifier[0].Value
	}
	if mpd.DoseForm != nil {
		p.DoseForm = mpd.DoseForm.Text
	}
	if len(mpd.Route) > 0 {
		p.Route = mpd.Route[0].Text
	}
	return p, nil
}
