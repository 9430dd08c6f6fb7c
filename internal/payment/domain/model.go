package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// VerifiedPayment is a transient fact produced once per real payment. It is
// never persisted; the grant it leads to carries the durable record.
type VerifiedPayment struct {
	ProviderOrderID   string
	ProviderPaymentID string
	HolderID          snowflake.ID
	PackageID         snowflake.ID
	AmountMinorUnits  int64
}

// VerifyRequest carries the client's payment confirmation. ClaimedAmount is
// cross-checked against the package's canonical price, never trusted.
type VerifyRequest struct {
	OrderID       string
	PaymentID     string
	Signature     string
	ClaimedAmount int64
	HolderID      snowflake.ID
	PackageID     snowflake.ID
}

type Service interface {
	Verify(ctx context.Context, req VerifyRequest) (VerifiedPayment, error)
}

// ProviderOrder is the payment provider's view of an order.
type ProviderOrder struct {
	OrderID          string
	Status           string
	AmountMinorUnits int64
	Currency         string
}

const OrderStatusPaid = "paid"

// ProviderClient fetches order state from the payment provider.
type ProviderClient interface {
	FetchOrder(ctx context.Context, orderID string) (ProviderOrder, error)
}

var (
	ErrInvalidOrder        = errors.New("invalid_order")
	ErrInvalidPaymentID    = errors.New("invalid_payment_id")
	ErrInvalidHolder       = errors.New("invalid_holder")
	ErrInvalidSignature    = errors.New("invalid_signature")
	ErrPaymentNotCompleted = errors.New("payment_not_completed")
	ErrAmountMismatch      = errors.New("amount_mismatch")
	ErrOrderNotFound       = errors.New("order_not_found")
)
