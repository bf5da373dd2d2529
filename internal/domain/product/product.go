package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID               string
	Name             string
	Slug             string
	Description      string
	Price            decimal.Decimal
	SalePrice        *decimal.Decimal
	Inventory        int
	Category         string
	ClothType        string
	Sizes            []string
	Colors           []string
	Tags             []string
	Images           []string
	IsActive         bool
	HomePageFeatured bool
	TimesSold        int
	CreatedAt        time.Time
}

// EffectivePrice returns the sale price when one is set, otherwise the
// regular price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.Price
}

// Sort enumerates the supported catalog sort orders.
type Sort string

const (
	SortNewest     Sort = "newest"
	SortPriceAsc   Sort = "price-asc"
	SortPriceDesc  Sort = "price-desc"
	SortPopularity Sort = "popularity"
)

// ParseSort maps a query parameter to a Sort, defaulting to newest.
func ParseSort(s string) Sort {
	switch Sort(s) {
	case SortPriceAsc, SortPriceDesc, SortPopularity:
		return Sort(s)
	default:
		return SortNewest
	}
}

// Filter describes catalog filtering criteria. All set fields compose as AND.
type Filter struct {
	// ActiveOnly restricts results to storefront-visible products.
	ActiveOnly bool
	// FeaturedOnly restricts results to home-page featured products.
	FeaturedOnly bool
	// Categories filters by product category (OR within the list).
	Categories []string
	// ClothTypes filters by cloth type (OR within the list).
	ClothTypes []string
	// Search matches name and description, case-insensitive substring.
	Search string
}

// PageRequest describes offset pagination.
type PageRequest struct {
	Skip int
	Take int
}

// Page is one page of catalog results.
type Page struct {
	Items   []Product
	Total   int
	HasMore bool
}

// Repository defines catalog persistence.
type Repository interface {
	Find(ctx context.Context, filter Filter, sort Sort, page PageRequest) (*Page, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	// RecordSale decrements inventory and increments times_sold for each
	// (productID, quantity) pair. Called once per confirmed order.
	RecordSale(ctx context.Context, quantities map[string]int) error
}
