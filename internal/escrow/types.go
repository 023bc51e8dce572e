package escrow

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

// Status mirrors the PaymentEscrow status codes.
type Status uint8

const (
	StatusPending Status = iota
	StatusCommitted
	StatusFulfilled
	StatusCancelled
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCommitted:
		return "committed"
	case StatusFulfilled:
		return "fulfilled"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// StatusFromCode maps a ledger status code to a Status. The contract defines
// exactly five codes; anything else is a decode failure, not a default.
func StatusFromCode(code uint8) (Status, error) {
	if code > uint8(StatusExpired) {
		return 0, fmt.Errorf("unknown ledger status code %d", code)
	}
	return Status(code), nil
}

// PaymentRequest is the decoded projection of the on-chain request tuple.
// The ledger holds the authoritative copy; this struct only mirrors it.
type PaymentRequest struct {
	ID            uint64
	Requester     string
	Payer         string
	AmountFiat    int64   // INR, plain integer, no fixed-point scaling
	DepositToken  string
	DepositAmount float64 // stable-token units, decoded from 18-decimal fixed point
	PayerBonus    float64 // native-currency units, decoded from wei
	Status        Status
	CreatedAt     time.Time
	CommittedAt   time.Time // zero value when never committed
	ExpiresAt     time.Time
	Reference     string // settlement reference, empty until fulfilled
}

// Committed reports whether the request carries a live commitment timestamp.
func (r PaymentRequest) Committed() bool {
	return !r.CommittedAt.IsZero()
}

// CommitDeadline returns the instant the commitment lapses.
func (r PaymentRequest) CommitDeadline(timeout time.Duration) time.Time {
	return r.CommittedAt.Add(timeout)
}

type CreateParams struct {
	AmountFiat    int64   // target INR amount
	DepositAmount float64 // stable-token units to escrow
	BonusAmount   float64 // native-currency incentive, attached as tx value
}

type CreateResult struct {
	RequestID uint64
	TxHash    string
}

type TxHandle struct {
	TxHash string
}

// Client abstracts the escrow ledger read/write surface. Implementations do
// transport only; revert reasons pass through untranslated.
type Client interface {
	AvailableRequests(ctx context.Context) ([]PaymentRequest, error)
	Request(ctx context.Context, id uint64) (PaymentRequest, error)
	PayerCommittedRequests(ctx context.Context, payer string) ([]PaymentRequest, error)
	UserRequests(ctx context.Context, requester string) ([]PaymentRequest, error)

	CreateRequest(ctx context.Context, params CreateParams) (CreateResult, error)
	CommitToPay(ctx context.Context, id uint64) (TxHandle, error)
	FulfillPayment(ctx context.Context, id uint64, reference string) (TxHandle, error)

	PlatformFee(ctx context.Context) (*big.Int, error)
	NextRequestID(ctx context.Context) (uint64, error)

	// SignerAddress identifies the wallet submitting mutations.
	SignerAddress() string
}

// HealthChecker is implemented by clients that can probe their backend.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
