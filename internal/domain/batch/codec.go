package batch

import (
	"strings"

	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
)

// Device is the historical repository shape of a batch.
type Device struct {
	ResourceType    string            `json:"resourceType"`
	ID              string            `json:"id,omitempty"`
	Meta            *fhir.Meta        `json:"meta,omitempty"`
	Status          string            `json:"status,omitempty"`
	LotNumber       string            `json:"lotNumber,omitempty"`
	ManufactureDate string            `json:"manufactureDate,omitempty"`
	ExpirationDate  string            `json:"expirationDate,omitempty"`
	Identifier      []fhir.Identifier `json:"identifier,omitempty"`
	DeviceName      []DeviceName      `json:"deviceName,omitempty"`
	Extension       []fhir.Extension  `json:"extension,omitempty"`
}

type DeviceName struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Medication is the product-centric repository shape of a batch.
type Medication struct {
	ResourceType string                `json:"resourceType"`
	ID           string                `json:"id,omitempty"`
	Meta         *fhir.Meta            `json:"meta,omitempty"`
	Status       string                `json:"status,omitempty"`
	Code         *fhir.CodeableConcept `json:"code,omitempty"`
	Identifier   []fhir.Identifier     `json:"identifier,omitempty"`
	Batch        *MedicationBatch      `json:"batch,omitempty"`
	Extension    []fhir.Extension      `json:"extension,omitempty"`
}

type MedicationBatch struct {
	LotNumber      string `json:"lotNumber,omitempty"`
	ExpirationDate string `json:"expirationDate,omitempty"`
}

// EncodeDevice renders a batch as a Device resource.
func EncodeDevice(b *Batch) *Device {
	d := &Device{
		ResourceType:    "Device",
		ID:              b.ID,
		Status:          deviceStatus(b.Status),
		LotNumber:       b.LotNumber,
		ManufactureDate: b.ManufactureDate,
		ExpirationDate:  b.ExpiryDate,
	}
	if b.BatchNumber != "" {
		d.DeviceName = append(d.DeviceName, DeviceName{Name: b.BatchNumber, Type: "model-name"})
	}
	if b.Name != "" {
		d.DeviceName = append(d.DeviceName, DeviceName{Name: b.Name, Type: "manufacturer-name"})
	}
	if v := identValue(b); v != "" {
		d.Identifier = []fhir.Identifier{{System: fhir.IdentBatch, Value: v}}
	}
	d.Extension = batchExtensions(b)
	return d
}

// identValue picks the repository identifier: an explicit identifier wins
// over the batch number.
func identValue(b *Batch) string {
	if b.Identifier != "" {
		return b.Identifier
	}
	return b.BatchNumber
}

// EncodeMedication renders a batch as a Medication resource.
func EncodeMedication(b *Batch) *Medication {
	m := &Medication{
		ResourceType: "Medication",
		ID:           b.ID,
		Status:       b.Status,
	}
	if b.BatchNumber != "" {
		m.Code = &fhir.CodeableConcept{Text: b.BatchNumber}
	}
	if v := identValue(b); v != "" {
		m.Identifier = []fhir.Identifier{{System: fhir.IdentBatch, Value: v}}
	}
	if b.LotNumber != "" || b.ExpiryDate != "" {
		m.Batch = &MedicationBatch{LotNumber: b.LotNumber, ExpirationDate: b.ExpiryDate}
	}
	m.Extension = batchExtensions(b)
	if b.ProductID != "" {
		m.Extension = append(m.Extension, fhir.Extension{
			URL:            fhir.ExtMedicinalProduct,
			ValueReference: &fhir.Reference{Reference: fhir.FormatReference("MedicinalProductDefinition", b.ProductID)},
		})
	}
	return m
}

func batchExtensions(b *Batch) []fhir.Extension {
	var exts []fhir.Extension
	if b.ProtocolID != "" {
		exts = append(exts, fhir.Extension{
			URL:            fhir.ExtBatchProtocol,
			ValueReference: &fhir.Reference{Reference: fhir.FormatReference("PlanDefinition", b.ProtocolID)},
		})
	}
	if b.ManufactureDate != "" {
		exts = append(exts, fhir.Extension{URL: fhir.ExtManufactureDate, ValueDateTime: b.ManufactureDate})
	}
	if b.Quantity != nil {
		exts = append(exts, fhir.Extension{URL: fhir.ExtQuantity, ValueInteger: b.Quantity})
	}
	return exts
}

// Device status values are a fixed FHIR code set; anything unknown maps to
// active rather than failing the write.
func deviceStatus(s string) string {
	switch s {
	case "active", "inactive", "entered-in-error", "unknown":
		return s
	case "":
		return "active"
	default:
		return "active"
	}
}

// DecodeDevice maps a Device back to a batch. The batch number falls back
// from deviceName to "Lot {lotNumber}" to "Batch {id}".
func DecodeDevice(d *Device) (*Batch, error) {
	if d.ID == "" {
		return nil, fhir.ErrMissingID
	}
	b := &Batch{
		ID:              d.ID,
		LotNumber:       d.LotNumber,
		Status:          d.Status,
		ManufactureDate: d.ManufactureDate,
		ExpiryDate:      d.ExpirationDate,
		Encoding:        EncodingDevice,
	}

	// Only model-name entries carry an explicit batch number; the
	// manufacturer-name entry is the display name.
	switch {
	case deviceNameByType(d.DeviceName, "model-name") != "":
		b.BatchNumber = deviceNameByType(d.DeviceName, "model-name")
	case d.LotNumber != "":
		b.BatchNumber = "Lot " + d.LotNumber
	default:
		b.BatchNumber = "Batch " + d.ID
	}
	b.Name = deviceNameByType(d.DeviceName, "manufacturer-name")
	b.Identifier = identifierValue(d.Identifier, fhir.IdentBatch)

	if b.ManufactureDate == "" {
		b.ManufactureDate = fhir.ExtensionString(d.Extension, fhir.ExtManufactureDate)
	}
	b.ProtocolID = protocolFromExtensions(d.Extension)
	if ext, ok := fhir.FindExtension(d.Extension, fhir.ExtQuantity); ok && ext.ValueInteger != nil {
		b.Quantity = ext.ValueInteger
	}
	return b, nil
}

// DecodeMedication maps a Medication back to a batch.
func DecodeMedication(m *Medication) (*Batch, error) {
	if m.ID == "" {
		return nil, fhir.ErrMissingID
	}
	b := &Batch{
		ID:       m.ID,
		Status:   m.Status,
		Encoding: EncodingMedication,
	}
	if m.Batch != nil {
		b.LotNumber = m.Batch.LotNumber
		b.ExpiryDate = m.Batch.ExpirationDate
	}

	switch {
	case m.Code != nil && m.Code.Text != "":
		b.BatchNumber = m.Code.Text
	case identifierValue(m.Identifier, fhir.IdentBatch) != "":
		b.BatchNumber = identifierValue(m.Identifier, fhir.IdentBatch)
	case b.LotNumber != "":
		b.BatchNumber = "Lot " + b.LotNumber
	default:
		b.BatchNumber = "Batch " + m.ID
	}

	b.ManufactureDate = fhir.ExtensionString(m.Extension, fhir.ExtManufactureDate)
	b.ProtocolID = protocolFromExtensions(m.Extension)
	if ref := fhir.ExtensionReference(m.Extension, fhir.ExtMedicinalProduct); ref != "" {
		b.ProductID = lastSegment(ref, "MedicinalProductDefinition")
	}
	if ext, ok := fhir.FindExtension(m.Extension, fhir.ExtQuantity); ok && ext.ValueInteger != nil {
		b.Quantity = ext.ValueInteger
	}
	return b, nil
}

// deviceNameByType returns the first deviceName of the given type; untyped
// entries count as model-name, which is how pre-typed resources decode.
func deviceNameByType(names []DeviceName, wantType string) string {
	for _, n := range names {
		if n.Type == wantType || (n.Type == "" && wantType == "model-name") {
			return n.Name
		}
	}
	return ""
}

// protocolFromExtensions resolves the batch's protocol: the batch-protocol
// extension first, then the legacy stability-test-protocol URL.
func protocolFromExtensions(exts []fhir.Extension) string {
	ref := fhir.ExtensionReference(exts, fhir.ExtBatchProtocol, fhir.ExtTestProtocol)
	return lastSegment(ref, "PlanDefinition")
}

func identifierValue(idents []fhir.Identifier, system string) string {
	for _, i := range idents {
		if i.System == system {
			return i.Value
		}
	}
	return ""
}

func lastSegment(ref, wantType string) string {
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
