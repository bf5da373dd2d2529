package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/threadline/storefront/internal/domain/product"
)

const (
	defaultPageSize = 12
	maxPageSize     = 100
)

// productResponse is the JSON shape of a catalog item.
type productResponse struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Slug             string   `json:"slug"`
	Description      string   `json:"description,omitempty"`
	Price            float64  `json:"price"`
	SalePrice        *float64 `json:"salePrice,omitempty"`
	Inventory        int      `json:"inventory"`
	Category         string   `json:"category"`
	ClothType        string   `json:"clothType,omitempty"`
	Sizes            []string `json:"sizes,omitempty"`
	Colors           []string `json:"colors,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Images           []string `json:"images,omitempty"`
	IsActive         bool     `json:"isActive"`
	HomePageFeatured bool     `json:"homePageFeatured"`
	TimesSold        int      `json:"timesSold"`
}

func (h *Handler) toProductResponse(p product.Product) productResponse {
	resp := productResponse{
		ID:               p.ID,
		Name:             p.Name,
		Slug:             p.Slug,
		Description:      p.Description,
		Price:            p.Price.InexactFloat64(),
		Inventory:        p.Inventory,
		Category:         p.Category,
		ClothType:        p.ClothType,
		Sizes:            p.Sizes,
		Colors:           p.Colors,
		Tags:             p.Tags,
		Images:           h.imageURLs(p.Images),
		IsActive:         p.IsActive,
		HomePageFeatured: p.HomePageFeatured,
		TimesSold:        p.TimesSold,
	}
	if p.SalePrice != nil {
		v := p.SalePrice.InexactFloat64()
		resp.SalePrice = &v
	}
	return resp
}

// imageURLs prepends the configured base URL to relative image paths.
func (h *Handler) imageURLs(paths []string) []string {
	if h.cfg.ImageBaseURL == "" {
		return paths
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
			out[i] = p
			continue
		}
		out[i] = strings.TrimSuffix(h.cfg.ImageBaseURL, "/") + "/" + strings.TrimPrefix(p, "/")
	}
	return out
}

// ListProducts serves the storefront catalog: active products only, with
// filtering, sorting, and pagination from query parameters.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, true)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	q := r.URL.Query()

	filter := product.Filter{
		ActiveOnly:   activeOnly,
		FeaturedOnly: q.Get("featured") == "true",
		Categories:   splitMulti(q["category"]),
		ClothTypes:   splitMulti(q["clothType"]),
		Search:       q.Get("search"),
	}

	page := parsePage(q.Get("page"), q.Get("pageSize"))
	result, err := h.products.Find(r.Context(), filter, product.ParseSort(q.Get("sort")), page)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	items := make([]productResponse, len(result.Items))
	for i, p := range result.Items {
		items[i] = h.toProductResponse(p)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"products": items,
		"total":    result.Total,
		"hasMore":  result.HasMore,
	})
}

// GetProduct serves a single product by slug. Inactive products are hidden
// from the storefront.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	if !p.IsActive {
		h.respondDomainError(w, r, product.ErrNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"product": h.toProductResponse(*p)})
}

// splitMulti accepts both repeated parameters and comma-separated values.
func splitMulti(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parsePage(pageStr, sizeStr string) product.PageRequest {
	page, _ := strconv.Atoi(pageStr)
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(sizeStr)
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return product.PageRequest{Skip: (page - 1) * size, Take: size}
}
