package domain

// Product is an affiliate product that can back a recommendation card.
type Product struct {
	Name        string `json:"product_name" yaml:"name" validate:"required"`
	Link        string `json:"link" yaml:"link" validate:"required"`
	ImageRef    string `json:"image_ref" yaml:"image" validate:"required"`
	Price       string `json:"price,omitempty" yaml:"price"`
	Description string `json:"description,omitempty" yaml:"description"`
	Category    string `json:"category,omitempty" yaml:"category"`
	Featured    bool   `json:"-" yaml:"featured"`
}
