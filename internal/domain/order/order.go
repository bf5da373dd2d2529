package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the order fulfilment state. Orders move forward through
// PENDING -> PROCESSING -> SHIPPED -> DELIVERED, and may be CANCELLED from
// any non-terminal state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// PaymentStatus tracks the gateway-side payment state.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// ValidStatus reports whether s is a known status value.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from one status to another.
// Only forward moves are allowed; DELIVERED and CANCELLED are terminal.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCancelled
	case StatusProcessing:
		return to == StatusShipped || to == StatusCancelled
	case StatusShipped:
		return to == StatusDelivered || to == StatusCancelled
	default:
		return false
	}
}

// Item is a denormalized line-item snapshot taken at checkout time, so that
// later product edits do not rewrite order history.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
}

// Order represents a customer order with its full pricing breakdown.
type Order struct {
	ID            string
	UserID        string
	AddressID     string
	Items         []Item
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Shipping      decimal.Decimal
	Discount      decimal.Decimal
	CouponCode    string
	Total         decimal.Decimal
	Status        Status
	PaymentStatus PaymentStatus
	PaymentRef    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ListFilter narrows admin order listings.
type ListFilter struct {
	UserID string
	Status Status
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)
	CountOrdersByUser(ctx context.Context, userID string) (int, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	// SetPayment updates the payment status and gateway reference.
	SetPayment(ctx context.Context, id string, status PaymentStatus, ref string) error
}
