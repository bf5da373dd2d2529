package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/storefront/internal/domain/product"
)

func TestListProducts(t *testing.T) {
	t.Run("storefront list is active-only", func(t *testing.T) {
		f := newFixture()
		f.products.page = &product.Page{
			Items:   []product.Product{f.products.byID["p1"]},
			Total:   1,
			HasMore: false,
		}

		w := f.do(http.MethodGet, "/products", userAPIKey, nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, f.products.gotFilter.ActiveOnly)

		body := decodeBody(t, w)
		assert.Equal(t, float64(1), body["total"])
		assert.Equal(t, false, body["hasMore"])
	})

	t.Run("query parameters map to filter, sort, and page", func(t *testing.T) {
		f := newFixture()

		w := f.do(http.MethodGet,
			"/products?category=MEN,WOMEN&clothType=SHIRT&search=oxford&featured=true&sort=price-asc&page=3&pageSize=20",
			userAPIKey, nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"MEN", "WOMEN"}, f.products.gotFilter.Categories)
		assert.Equal(t, []string{"SHIRT"}, f.products.gotFilter.ClothTypes)
		assert.Equal(t, "oxford", f.products.gotFilter.Search)
		assert.True(t, f.products.gotFilter.FeaturedOnly)
		assert.Equal(t, product.SortPriceAsc, f.products.gotSort)
		assert.Equal(t, product.PageRequest{Skip: 40, Take: 20}, f.products.gotPage)
	})

	t.Run("page size is capped", func(t *testing.T) {
		f := newFixture()

		w := f.do(http.MethodGet, "/products?pageSize=5000", userAPIKey, nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 100, f.products.gotPage.Take)
	})

	t.Run("bad paging falls back to defaults", func(t *testing.T) {
		f := newFixture()

		w := f.do(http.MethodGet, "/products?page=-1&pageSize=abc", userAPIKey, nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, product.PageRequest{Skip: 0, Take: 12}, f.products.gotPage)
	})

	t.Run("unknown sort falls back to newest", func(t *testing.T) {
		f := newFixture()

		w := f.do(http.MethodGet, "/products?sort=sideways", userAPIKey, nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, product.SortNewest, f.products.gotSort)
	})
}

func TestGetProduct(t *testing.T) {
	t.Run("active product by slug", func(t *testing.T) {
		f := newFixture()

		w := f.do(http.MethodGet, "/products/oxford-shirt", userAPIKey, nil)

		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		p, ok := body["product"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "p1", p["id"])
		assert.InDelta(t, 500, p["price"], 0.001)
	})

	t.Run("inactive product reads as not found", func(t *testing.T) {
		f := newFixture()

		w := f.do(http.MethodGet, "/products/retired-jacket", userAPIKey, nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown slug", func(t *testing.T) {
		f := newFixture()

		w := f.do(http.MethodGet, "/products/nope", userAPIKey, nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestImageURLs(t *testing.T) {
	h := &Handler{cfg: Config{ImageBaseURL: "https://cdn.example.com/images/"}}

	got := h.imageURLs([]string{
		"shirt-front.jpg",
		"/shirt-back.jpg",
		"https://other.example.com/full.jpg",
	})

	assert.Equal(t, []string{
		"https://cdn.example.com/images/shirt-front.jpg",
		"https://cdn.example.com/images/shirt-back.jpg",
		"https://other.example.com/full.jpg",
	}, got)

	// No base URL configured: paths pass through untouched.
	h = &Handler{}
	assert.Equal(t, []string{"a.jpg"}, h.imageURLs([]string{"a.jpg"}))
}

func TestSplitMulti(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "nil", in: nil, want: nil},
		{name: "single", in: []string{"MEN"}, want: []string{"MEN"}},
		{name: "comma separated", in: []string{"MEN,WOMEN"}, want: []string{"MEN", "WOMEN"}},
		{name: "repeated and comma mixed", in: []string{"MEN", "WOMEN,KIDS"}, want: []string{"MEN", "WOMEN", "KIDS"}},
		{name: "blanks dropped", in: []string{" , MEN , "}, want: []string{"MEN"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitMulti(tt.in))
		})
	}
}
