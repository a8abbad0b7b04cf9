package batch

import (
	"testing"

	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
)

func TestDeviceRoundTrip(t *testing.T) {
	qty := 500
	b := &Batch{
		ID:              "batch-1",
		BatchNumber:     "B-2026-044",
		LotNumber:       "L44",
		ProtocolID:      "proto-1",
		Status:          "active",
		ManufactureDate: "2026-01-15",
		ExpiryDate:      "2028-01-15",
		Quantity:        &qty,
	}
	d := EncodeDevice(b)
	if d.ResourceType != "Device" {
		t.Fatalf("resourceType = %q", d.ResourceType)
	}
	if len(d.DeviceName) != 1 || d.DeviceName[0].Type != "model-name" {
		t.Fatalf("deviceName = %+v", d.DeviceName)
	}

	got, err := DecodeDevice(d)
	if err != nil {
		t.Fatal(err)
	}
	if got.BatchNumber != b.BatchNumber || got.ProtocolID != "proto-1" {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	if got.Quantity == nil || *got.Quantity != 500 {
		t.Fatalf("quantity lost: %+v", got.Quantity)
	}
	if got.Encoding != EncodingDevice {
		t.Fatalf("encoding = %q", got.Encoding)
	}
}

func TestDeviceBatchNumberFallbacks(t *testing.T) {
	// No deviceName: falls back to the lot number.
	d := &Device{ResourceType: "Device", ID: "batch-2", LotNumber: "L99"}
	b, err := DecodeDevice(d)
	if err != nil {
		t.Fatal(err)
	}
	if b.BatchNumber != "Lot L99" {
		t.Fatalf("batch number = %q, want lot fallback", b.BatchNumber)
	}

	// No lot either: falls back to the id.
	d = &Device{ResourceType: "Device", ID: "batch-3"}
	b, _ = DecodeDevice(d)
	if b.BatchNumber != "Batch batch-3" {
		t.Fatalf("batch number = %q, want id fallback", b.BatchNumber)
	}
}

func TestDeviceNameAndIdentifier(t *testing.T) {
	b := &Batch{ID: "batch-6", Name: "Capsule run 6", Identifier: "ID-6", LotNumber: "L6"}
	d := EncodeDevice(b)
	if len(d.DeviceName) != 1 || d.DeviceName[0].Type != "manufacturer-name" {
		t.Fatalf("deviceName = %+v", d.DeviceName)
	}
	if len(d.Identifier) != 1 || d.Identifier[0].System != fhir.IdentBatch || d.Identifier[0].Value != "ID-6" {
		t.Fatalf("identifier = %+v", d.Identifier)
	}

	got, err := DecodeDevice(d)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Capsule run 6" || got.Identifier != "ID-6" {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	// The display name is not a batch number; the lot fallback applies.
	if got.BatchNumber != "Lot L6" {
		t.Fatalf("batch number = %q", got.BatchNumber)
	}
}

func TestDeviceProtocolFromLegacyExtension(t *testing.T) {
	d := &Device{
		ResourceType: "Device",
		ID:           "batch-4",
		Extension: []fhir.Extension{
			{URL: fhir.ExtTestProtocol, ValueString: "PlanDefinition/proto-legacy"},
		},
	}
	b, err := DecodeDevice(d)
	if err != nil {
		t.Fatal(err)
	}
	if b.ProtocolID != "proto-legacy" {
		t.Fatalf("protocol = %q", b.ProtocolID)
	}
}

func TestMedicationRoundTrip(t *testing.T) {
	b := &Batch{
		ID:          "batch-5",
		BatchNumber: "B-2026-077",
		LotNumber:   "L77",
		ProtocolID:  "proto-2",
		ProductID:   "prod-1",
		ExpiryDate:  "2027-06-30",
		Encoding:    EncodingMedication,
	}
	m := EncodeMedication(b)
	if m.ResourceType != "Medication" {
		t.Fatalf("resourceType = %q", m.ResourceType)
	}
	if m.Code == nil || m.Code.Text != "B-2026-077" {
		t.Fatalf("code = %+v", m.Code)
	}

	got, err := DecodeMedication(m)
	if err != nil {
		t.Fatal(err)
	}
	if got.BatchNumber != b.BatchNumber || got.LotNumber != "L77" {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	if got.ProductID != "prod-1" {
		t.Fatalf("product link lost: %q", got.ProductID)
	}
	if got.ProtocolID != "proto-2" {
		t.Fatalf("protocol link lost: %q", got.ProtocolID)
	}
	if got.Encoding != EncodingMedication {
		t.Fatalf("encoding = %q", got.Encoding)
	}
}

func TestDecodeRequiresID(t *testing.T) {
	if _, err := DecodeDevice(&Device{ResourceType: "Device"}); err == nil {
		t.Fatal("Device without id decoded")
	}
	if _, err := DecodeMedication(&Medication{ResourceType: "Medication"}); err == nil {
		t.Fatal("Medication without id decoded")
	}
}
