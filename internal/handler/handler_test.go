package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/storefront/internal/domain/auth"
	"github.com/threadline/storefront/internal/domain/coupon"
	"github.com/threadline/storefront/internal/domain/order"
	"github.com/threadline/storefront/internal/domain/product"
	"github.com/threadline/storefront/internal/domain/user"
	"github.com/threadline/storefront/internal/payment"
)

const (
	testPepper   = "test-pepper"
	userAPIKey   = "user-key"
	adminAPIKey  = "admin-key"
	testUserID   = "u1"
	testAdminID  = "a1"
	testOtherKey = "other-key"
	testOtherID  = "u2"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// --- stubs ---

type stubProducts struct {
	product.Repository

	byID    map[string]product.Product
	page    *product.Page
	findErr error

	created *product.Product
	updated *product.Product
	deleted string
	sales   map[string]int

	gotFilter product.Filter
	gotSort   product.Sort
	gotPage   product.PageRequest
}

func (s *stubProducts) Find(_ context.Context, filter product.Filter, sort product.Sort, page product.PageRequest) (*product.Page, error) {
	s.gotFilter, s.gotSort, s.gotPage = filter, sort, page
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.page != nil {
		return s.page, nil
	}
	return &product.Page{}, nil
}

func (s *stubProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (s *stubProducts) GetBySlug(_ context.Context, slug string) (*product.Product, error) {
	for _, p := range s.byID {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, product.ErrNotFound
}

func (s *stubProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := s.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubProducts) Create(_ context.Context, p *product.Product) error {
	s.created = p
	return nil
}

func (s *stubProducts) Update(_ context.Context, p *product.Product) error {
	s.updated = p
	return nil
}

func (s *stubProducts) Delete(_ context.Context, id string) error {
	if _, ok := s.byID[id]; !ok {
		return product.ErrNotFound
	}
	s.deleted = id
	return nil
}

func (s *stubProducts) RecordSale(_ context.Context, quantities map[string]int) error {
	s.sales = quantities
	return nil
}

type stubValidator struct {
	applied *coupon.Applied
	err     error

	gotCode   string
	gotItems  []coupon.Item
	gotUserID string
}

func (s *stubValidator) Validate(_ context.Context, code string, items []coupon.Item, userID string) (*coupon.Applied, error) {
	s.gotCode, s.gotItems, s.gotUserID = code, items, userID
	return s.applied, s.err
}

type stubCoupons struct {
	coupon.Repository

	byID    map[string]coupon.Coupon
	list    []coupon.Coupon
	created *coupon.Coupon
	updated *coupon.Coupon
	deleted string
}

func (s *stubCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	for _, c := range s.byID {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (s *stubCoupons) GetByID(_ context.Context, id string) (*coupon.Coupon, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

func (s *stubCoupons) List(_ context.Context) ([]coupon.Coupon, error) { return s.list, nil }

func (s *stubCoupons) Create(_ context.Context, c *coupon.Coupon) error {
	s.created = c
	return nil
}

func (s *stubCoupons) Update(_ context.Context, c *coupon.Coupon) error {
	s.updated = c
	return nil
}

func (s *stubCoupons) Delete(_ context.Context, id string) error {
	s.deleted = id
	return nil
}

func (s *stubCoupons) CountUsageByUser(_ context.Context, _, _ string) (int, error) { return 0, nil }

func (s *stubCoupons) Redeem(_ context.Context, _, _, _ string) error { return nil }

type stubOrders struct {
	order.Repository

	byID      map[string]order.Order
	list      []order.Order
	created   *order.Order
	gotFilter order.ListFilter
	statusSet order.Status
	payStatus order.PaymentStatus
	payRef    string
}

func (s *stubOrders) Create(_ context.Context, o *order.Order) error {
	s.created = o
	return nil
}

func (s *stubOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := s.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (s *stubOrders) List(_ context.Context, filter order.ListFilter) ([]order.Order, error) {
	s.gotFilter = filter
	return s.list, nil
}

func (s *stubOrders) CountOrdersByUser(_ context.Context, _ string) (int, error) { return 0, nil }

func (s *stubOrders) UpdateStatus(_ context.Context, _ string, status order.Status) error {
	s.statusSet = status
	return nil
}

func (s *stubOrders) SetPayment(_ context.Context, _ string, status order.PaymentStatus, ref string) error {
	s.payStatus = status
	s.payRef = ref
	return nil
}

type stubUsers struct {
	user.Repository

	byID    map[string]user.User
	list    []user.User
	deleted string
	roleSet user.Role
}

func (s *stubUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (s *stubUsers) List(_ context.Context) ([]user.User, error) { return s.list, nil }

func (s *stubUsers) UpdateRole(_ context.Context, id string, role user.Role) error {
	u, ok := s.byID[id]
	if !ok {
		return user.ErrNotFound
	}
	u.Role = role
	s.byID[id] = u
	s.roleSet = role
	return nil
}

func (s *stubUsers) Delete(_ context.Context, id string) error {
	if _, ok := s.byID[id]; !ok {
		return user.ErrNotFound
	}
	s.deleted = id
	return nil
}

func (s *stubUsers) AddressBelongsTo(_ context.Context, addressID, userID string) (bool, error) {
	return addressID == "addr-"+userID, nil
}

type stubKeys struct {
	byHash map[string]*auth.APIKeyInfo
}

func (s *stubKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := s.byHash[hash]
	if !ok {
		return nil, user.ErrNotFound
	}
	return info, nil
}

type stubGateway struct {
	event     *payment.Event
	verifyErr error
	intentErr error
	gotSig    string
}

func (s *stubGateway) PublishableKey() string { return "pk_test_123" }

func (s *stubGateway) VerifyEvent(_ []byte, signatureHeader string) (*payment.Event, error) {
	s.gotSig = signatureHeader
	return s.event, s.verifyErr
}

func (s *stubGateway) CreateIntent(_ context.Context, amountMinor int64, currency string, metadata map[string]string) (*order.PaymentIntent, error) {
	if s.intentErr != nil {
		return nil, s.intentErr
	}
	return &order.PaymentIntent{
		ID:           "pi_test",
		ClientSecret: "pi_test_secret",
		Amount:       amountMinor,
		Currency:     currency,
	}, nil
}

// --- fixture ---

type fixture struct {
	products  *stubProducts
	validator *stubValidator
	coupons   *stubCoupons
	orders    *stubOrders
	users     *stubUsers
	gateway   *stubGateway
	router    http.Handler
}

func hashKey(key string) string {
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func newFixture() *fixture {
	f := &fixture{
		products: &stubProducts{byID: map[string]product.Product{
			"p1": {
				ID: "p1", Name: "Oxford Shirt", Slug: "oxford-shirt",
				Price: dec("500"), Inventory: 10, Category: "MEN", IsActive: true,
			},
			"p2": {
				ID: "p2", Name: "Linen Dress", Slug: "linen-dress",
				Price: dec("250"), Inventory: 5, Category: "WOMEN", IsActive: true,
			},
			"p3": {
				ID: "p3", Name: "Retired Jacket", Slug: "retired-jacket",
				Price: dec("900"), Inventory: 0, Category: "MEN", IsActive: false,
			},
		}},
		validator: &stubValidator{},
		coupons:   &stubCoupons{byID: map[string]coupon.Coupon{}},
		orders:    &stubOrders{byID: map[string]order.Order{}},
		users: &stubUsers{byID: map[string]user.User{
			testUserID:  {ID: testUserID, Email: "shopper@example.com", Role: user.RoleUser},
			testAdminID: {ID: testAdminID, Email: "admin@example.com", Role: user.RoleAdmin},
		}},
		gateway: &stubGateway{},
	}

	keys := &stubKeys{byHash: map[string]*auth.APIKeyInfo{
		hashKey(userAPIKey): {
			ID: "k1", KeyHash: hashKey(userAPIKey),
			UserID: testUserID, Name: "user key", Role: user.RoleUser,
		},
		hashKey(adminAPIKey): {
			ID: "k2", KeyHash: hashKey(adminAPIKey),
			UserID: testAdminID, Name: "admin key", Role: user.RoleAdmin,
		},
		hashKey(testOtherKey): {
			ID: "k3", KeyHash: hashKey(testOtherKey),
			UserID: testOtherID, Name: "other key", Role: user.RoleUser,
		},
	}}

	svc := order.NewService(
		f.products, f.validator, f.coupons, f.orders, f.users, f.gateway,
		order.Pricing{TaxRate: dec("0.05"), ShippingFlat: decimal.Zero, Currency: "inr"},
	)

	h := New(
		Config{APIKeyPepper: []byte(testPepper)},
		f.products, f.validator, f.coupons, svc, f.orders, f.users, keys, f.gateway,
	)
	f.router = h.Routes()
	return f
}

func (f *fixture) do(method, path, apiKey string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rd)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

// --- auth middleware ---

func TestAPIKeyAuth(t *testing.T) {
	f := newFixture()

	t.Run("missing key", func(t *testing.T) {
		w := f.do(http.MethodGet, "/products", "", nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "missing API key", decodeBody(t, w)["error"])
	})

	t.Run("unknown key", func(t *testing.T) {
		w := f.do(http.MethodGet, "/products", "bogus", nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid key passes", func(t *testing.T) {
		w := f.do(http.MethodGet, "/products", userAPIKey, nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequireAdmin(t *testing.T) {
	f := newFixture()

	t.Run("customer key is forbidden", func(t *testing.T) {
		w := f.do(http.MethodGet, "/admin/products", userAPIKey, nil)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "admin role required", decodeBody(t, w)["error"])
	})

	t.Run("admin key passes", func(t *testing.T) {
		w := f.do(http.MethodGet, "/admin/products", adminAPIKey, nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("no key is unauthorized", func(t *testing.T) {
		w := f.do(http.MethodGet, "/admin/products", "", nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
