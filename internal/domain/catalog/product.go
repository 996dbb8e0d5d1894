package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item available for purchase.
type Product struct {
	ID             string
	Name           string
	Category       string
	SKU            string
	Image          string
	Price          decimal.Decimal
	ShippingCharge decimal.Decimal
	Stock          int
	TotalSold      int
	Variants       []Variant
}

// Variant is a purchasable variation of a product with its own SKU, price,
// and stock.
type Variant struct {
	SKU   string
	Price decimal.Decimal
	Stock int
}

// VariantBySKU returns the variant with the given SKU, if any.
func (p *Product) VariantBySKU(sku string) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].SKU == sku {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
