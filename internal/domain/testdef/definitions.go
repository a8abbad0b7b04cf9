package testdef

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
)

// Measurement describes the quantitative readout of a test: what gets
// measured, in which unit, and the permitted range. Persisted as an
// ObservationDefinition linked to the test's ActivityDefinition.
type Measurement struct {
	ID        string   `json:"id,omitempty"`
	TestID    string   `json:"test_id,omitempty"`
	Name      string   `json:"name"`
	Unit      string   `json:"unit,omitempty"`
	RangeLow  *float64 `json:"range_low,omitempty"`
	RangeHigh *float64 `json:"range_high,omitempty"`
}

// Specimen describes the sample material a test is run on. Persisted as a
// SpecimenDefinition linked to the test's ActivityDefinition.
type Specimen struct {
	ID            string `json:"id,omitempty"`
	TestID        string `json:"test_id,omitempty"`
	MaterialType  string `json:"material_type"`
	Container     string `json:"container,omitempty"`
	MinimumVolume string `json:"minimum_volume,omitempty"`
	Handling      string `json:"handling,omitempty"`
}

type ObservationDefinition struct {
	ResourceType        string                `json:"resourceType"`
	ID                  string                `json:"id,omitempty"`
	Meta                *fhir.Meta            `json:"meta,omitempty"`
	Code                *fhir.CodeableConcept `json:"code,omitempty"`
	PermittedDataType   []string              `json:"permittedDataType,omitempty"`
	QuantitativeDetails *QuantitativeDetails  `json:"quantitativeDetails,omitempty"`
	QualifiedInterval   []QualifiedInterval   `json:"qualifiedInterval,omitempty"`
	Extension           []fhir.Extension      `json:"extension,omitempty"`
}

type QuantitativeDetails struct {
	Unit *fhir.CodeableConcept `json:"unit,omitempty"`
}

type QualifiedInterval struct {
	Category string `json:"category,omitempty"`
	Range    *Range `json:"range,omitempty"`
}

type Range struct {
	Low  *fhir.Quantity `json:"low,omitempty"`
	High *fhir.Quantity `json:"high,omitempty"`
}

type SpecimenDefinition struct {
	ResourceType  string                `json:"resourceType"`
	ID            string                `json:"id,omitempty"`
	Meta          *fhir.Meta            `json:"meta,omitempty"`
	TypeCollected *fhir.CodeableConcept `json:"typeCollected,omitempty"`
	TypeTested    []TypeTested          `json:"typeTested,omitempty"`
	Extension     []fhir.Extension      `json:"extension,omitempty"`
}

type TypeTested struct {
	Container *SpecimenContainer `json:"container,omitempty"`
	Handling  []SpecimenHandling `json:"handling,omitempty"`
}

type SpecimenContainer struct {
	Description         string `json:"description,omitempty"`
	MinimumVolumeString string `json:"minimumVolumeString,omitempty"`
}

type SpecimenHandling struct {
	Instruction string `json:"instruction,omitempty"`
}

// EncodeMeasurement renders a measurement as an ObservationDefinition. The
// test association is written as both an extension reference and a meta
// tag, same as the protocol association on tests.
func EncodeMeasurement(m *Measurement) *ObservationDefinition {
	od := &ObservationDefinition{
		ResourceType:      "ObservationDefinition",
		ID:                m.ID,
		Code:              &fhir.CodeableConcept{Text: m.Name},
		PermittedDataType: []string{"Quantity"},
	}
	if m.Unit != "" {
		od.QuantitativeDetails = &QuantitativeDetails{Unit: &fhir.CodeableConcept{Text: m.Unit}}
	}
	if m.RangeLow != nil || m.RangeHigh != nil {
		r := &Range{}
		if m.RangeLow != nil {
			r.Low = &fhir.Quantity{Value: m.RangeLow, Unit: m.Unit}
		}
		if m.RangeHigh != nil {
			r.High = &fhir.Quantity{Value: m.RangeHigh, Unit: m.Unit}
		}
		od.QualifiedInterval = []QualifiedInterval{{Category: "reference", Range: r}}
	}
	if m.TestID != "" {
		od.Extension = append(od.Extension, fhir.Extension{
			URL:            fhir.ExtTestDefinition,
			ValueReference: &fhir.Reference{Reference: fhir.FormatReference("ActivityDefinition", m.TestID)},
		})
		od.Meta = fhir.AddTag(od.Meta, fhir.TagSystem, "test:"+m.TestID)
	}
	return od
}

// DecodeMeasurement maps an ObservationDefinition back to a measurement.
func DecodeMeasurement(od *ObservationDefinition) (*Measurement, error) {
	if od.ID == "" {
		return nil, fhir.ErrMissingID
	}
	m := &Measurement{ID: od.ID, TestID: definitionTestID(od.Extension, od.Meta)}
	if od.Code != nil {
		m.Name = od.Code.Text
	}
	if od.QuantitativeDetails != nil && od.QuantitativeDetails.Unit != nil {
		m.Unit = od.QuantitativeDetails.Unit.Text
	}
	for _, qi := range od.QualifiedInterval {
		if qi.Range == nil {
			continue
		}
		if qi.Range.Low != nil {
			m.RangeLow = qi.Range.Low.Value
		}
		if qi.Range.High != nil {
			m.RangeHigh = qi.Range.High.Value
		}
		break
	}
	return m, nil
}

// EncodeSpecimen renders a specimen as a SpecimenDefinition.
func EncodeSpecimen(sp *Specimen) *SpecimenDefinition {
	sd := &SpecimenDefinition{
		ResourceType:  "SpecimenDefinition",
		ID:            sp.ID,
		TypeCollected: &fhir.CodeableConcept{Text: sp.MaterialType},
	}
	if sp.Container != "" || sp.MinimumVolume != "" || sp.Handling != "" {
		tt := TypeTested{}
		if sp.Container != "" || sp.MinimumVolume != "" {
			tt.Container = &SpecimenContainer{Description: sp.Container, MinimumVolumeString: sp.MinimumVolume}
		}
		if sp.Handling != "" {
			tt.Handling = []SpecimenHandling{{Instruction: sp.Handling}}
		}
		sd.TypeTested = []TypeTested{tt}
	}
	if sp.TestID != "" {
		sd.Extension = append(sd.Extension, fhir.Extension{
			URL:            fhir.ExtTestDefinition,
			ValueReference: &fhir.Reference{Reference: fhir.FormatReference("ActivityDefinition", sp.TestID)},
		})
		sd.Meta = fhir.AddTag(sd.Meta, fhir.TagSystem, "test:"+sp.TestID)
	}
	return sd
}

// DecodeSpecimen maps a SpecimenDefinition back to a specimen.
func DecodeSpecimen(sd *SpecimenDefinition) (*Specimen, error) {
	if sd.ID == "" {
		return nil, fhir.ErrMissingID
	}
	sp := &Specimen{ID: sd.ID, TestID: definitionTestID(sd.Extension, sd.Meta)}
	if sd.TypeCollected != nil {
		sp.MaterialType = sd.TypeCollected.Text
	}
	for _, tt := range sd.TypeTested {
		if tt.Container != nil {
			sp.Container = tt.Container.Description
			sp.MinimumVolume = tt.Container.MinimumVolumeString
		}
		if len(tt.Handling) > 0 {
			sp.Handling = tt.Handling[0].Instruction
		}
		break
	}
	return sp, nil
}

// definitionTestID resolves the owning test: extension reference first,
// meta tag second.
func definitionTestID(exts []fhir.Extension, meta *fhir.Meta) string {
	if ref := fhir.ExtensionReference(exts, fhir.ExtTestDefinition); ref != "" {
		parts := strings.Split(ref, "/")
		if len(parts) >= 2 && parts[len(parts)-2] == "ActivityDefinition" {
			return parts[len(parts)-1]
		}
		if len(parts) == 1 {
			return ref
		}
	}
	if meta != nil {
		for _, t := range meta.Tag {
			if t.System == fhir.TagSystem && strings.HasPrefix(t.Code, "test:") {
				return strings.TrimPrefix(t.Code, "test:")
			}
		}
	}
	return ""
}

func (s *Service) CreateMeasurement(ctx context.Context, m *Measurement) (*Measurement, error) {
	if m.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if m.TestID == "" {
		return nil, fmt.Errorf("test_id is required")
	}
	raw, err := s.repo.Create(ctx, "ObservationDefinition", EncodeMeasurement(m))
	if err != nil {
		return nil, err
	}
	var od ObservationDefinition
	if err := json.Unmarshal(raw, &od); err != nil {
		return nil, fmt.Errorf("decode ObservationDefinition: %w", err)
	}
	return DecodeMeasurement(&od)
}

// ListMeasurements returns the measurements declared for one test.
func (s *Service) ListMeasurements(ctx context.Context, testID string) ([]*Measurement, error) {
	q := url.Values{}
	q.Set("_count", "200")
	bundle, err := s.repo.Search(ctx, "ObservationDefinition", q)
	if err != nil {
		return nil, err
	}
	out := []*Measurement{}
	for _, entry := range bundle.Entry {
		var od ObservationDefinition
		if err := json.Unmarshal(entry.Resource, &od); err != nil {
			s.log.Warn().Err(err).Msg("skipping undecodable ObservationDefinition entry")
			continue
		}
		m, err := DecodeMeasurement(&od)
		if err != nil || m.TestID != testID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Service) DeleteMeasurement(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, "ObservationDefinition", id)
}

func (s *Service) CreateSpecimen(ctx context.Context, sp *Specimen) (*Specimen, error) {
	if sp.MaterialType == "" {
		return nil, fmt.Errorf("material_type is required")
	}
	if sp.TestID == "" {
		return nil, fmt.Errorf("test_id is required")
	}
	raw, err := s.repo.Create(ctx, "SpecimenDefinition", EncodeSpecimen(sp))
	if err != nil {
		return nil, err
	}
	var sd SpecimenDefinition
	if err := json.Unmarshal(raw, &sd); err != nil {
		return nil, fmt.Errorf("decode SpecimenDefinition: %w", err)
	}
	return DecodeSpecimen(&sd)
}

// ListSpecimens returns the specimen definitions declared for one test.
func (s *Service) ListSpecimens(ctx context.Context, testID string) ([]*Specimen, error) {
	q := url.Values{}
	q.Set("_count", "200")
	bundle, err := s.repo.Search(ctx, "SpecimenDefinition", q)
	if err != nil {
		return nil, err
	}
	out := []*Specimen{}
	for _, entry := range bundle.Entry {
		var sd SpecimenDefinition
		if err := json.Unmarshal(entry.Resource, &sd); err != nil {
			s.log.Warn().Err(err).Msg("skipping undecodable SpecimenDefinition entry")
			continue
		}
		sp, err := DecodeSpecimen(&sd)
		if err != nil || sp.TestID != testID {
			continue
		}
		out = append(out, sp)
	}
	return out, nil
}

func (s *Service) DeleteSpecimen(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, "SpecimenDefinition", id)
}
