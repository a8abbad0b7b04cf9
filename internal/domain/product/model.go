package product

// Product is a medicinal product under stability study. Protocols point
// at a product through their subject reference.
type Product struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	Identifier string `json:"identifier,omitempty"`
	DoseForm   string `json:"dose_form,omitempty"`
	Route      string `json:"route,omitempty"`
}
