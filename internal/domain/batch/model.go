package batch

// Encodings a batch can be stored under. The network historically wrote
// batches as Device resources; product-centric deployments write Medication.
// Both coexist on the repository and both are read.
const (
	EncodingDevice     = "device"
	EncodingMedication = "medication"
)

// Batch is one manufactured lot placed on stability. BatchNumber is the
// explicit lot designation; Name is the display name and never stands in
// for the batch number — when no batch number is set it derives from the
// lot number, then the id.
type Batch struct {
	ID              string `json:"id,omitempty"`
	BatchNumber     string `json:"batch_number,omitempty"`
	Name            string `json:"name,omitempty"`
	Identifier      string `json:"identifier,omitempty"`
	LotNumber       string `json:"lot_number,omitempty"`
	ProtocolID      string `json:"protocol_id,omitempty"`
	ProductID       string `json:"product_id,omitempty"`
	Status          string `json:"status,omitempty"`
	ManufactureDate string `json:"manufacture_date,omitempty"`
	ExpiryDate      string `json:"expiry_date,omitempty"`
	Quantity        *int   `json:"quantity,omitempty"`

	// Which repository encoding the batch came from (or should be written
	// in). Defaults to device.
	Encoding string `json:"encoding,omitempty"`
}
