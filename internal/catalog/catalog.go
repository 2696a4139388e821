// Package catalog loads the affiliate products that back recommendation cards.
package catalog

import (
	"fmt"
	"os"

	"github.com/ashureev/fitmind/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Card is the payload handed to the affiliate-card renderer.
type Card struct {
	ProductName string `json:"productName"`
	Link        string `json:"link"`
	ImageRef    string `json:"imageRef"`
	Price       string `json:"price,omitempty"`
	Description string `json:"description,omitempty"`
}

// Catalog is an immutable list of products.
type Catalog struct {
	products []domain.Product
	featured int
}

type file struct {
	Products []domain.Product `yaml:"products" validate:"required,min=1,dive"`
}

// Default returns the built-in single-product catalog.
func Default() *Catalog {
	return &Catalog{products: []domain.Product{{
		Name:        "Premium Protein Powder",
		Link:        "#affiliate-link-1",
		ImageRef:    "/images/protein-powder.png",
		Price:       "$49.99",
		Description: "High-quality protein for muscle recovery",
		Category:    "recovery",
		Featured:    true,
	}}}
}

// Load reads a YAML catalog. An empty path returns Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	c := &Catalog{products: f.Products}
	for i, p := range f.Products {
		if p.Featured {
			c.featured = i
			break
		}
	}
	return c, nil
}

// Products returns a copy of all products.
func (c *Catalog) Products() []domain.Product {
	return append([]domain.Product(nil), c.products...)
}

// Featured returns the card for the featured product, the first one unless a
// product sets featured: true.
func (c *Catalog) Featured() Card {
	return CardOf(c.products[c.featured])
}

// Lookup finds a product by name.
func (c *Catalog) Lookup(name string) (domain.Product, bool) {
	for _, p := range c.products {
		if p.Name == name {
			return p, true
		}
	}
	return domain.Product{}, false
}

// CardOf converts a product into a card payload.
func CardOf(p domain.Product) Card {
	return Card{
		ProductName: p.Name,
		Link:        p.Link,
		ImageRef:    p.ImageRef,
		Price:       p.Price,
		Description: p.Description,
	}
}
