package escrow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

var fakeReferencePattern = regexp.MustCompile(`^\d{12}$`)

// FakeClient is an in-memory ledger with the PaymentEscrow state machine:
// sequential ids, first-committed-wins, timeout-based reopening and the
// 12-digit fulfillment reference check. It backs tests and keyless dev mode.
type FakeClient struct {
	mu       sync.Mutex
	requests map[uint64]PaymentRequest
	nextID   uint64

	// Signer is the wallet the fake acts as when committing or fulfilling.
	Signer string
	// Timeout is the commitment window; zero means five minutes.
	Timeout time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time

	Fee *big.Int
}

func NewFakeClient(signer string, timeout time.Duration) *FakeClient {
	return &FakeClient{
		requests: make(map[uint64]PaymentRequest),
		nextID:   1,
		Signer:   signer,
		Timeout:  timeout,
		Fee:      big.NewInt(0),
	}
}

func (f *FakeClient) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now().UTC()
}

func (f *FakeClient) timeout() time.Duration {
	if f.Timeout > 0 {
		return f.Timeout
	}
	return 5 * time.Minute
}

func (f *FakeClient) SignerAddress() string {
	return f.Signer
}

func (f *FakeClient) AvailableRequests(_ context.Context) ([]PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Like the contract, this returns pending requests and committed ones
	// whose staleness the caller must judge; terminal states are excluded.
	out := make([]PaymentRequest, 0, len(f.requests))
	for _, r := range f.requests {
		if r.Status == StatusPending || r.Status == StatusCommitted {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeClient) Request(_ context.Context, id uint64) (PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.requests[id]
	if !ok {
		return PaymentRequest{}, fmt.Errorf("execution reverted: request does not exist")
	}
	return r, nil
}

func (f *FakeClient) PayerCommittedRequests(_ context.Context, payer string) ([]PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]PaymentRequest, 0)
	for _, r := range f.requests {
		if strings.EqualFold(r.Payer, payer) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeClient) UserRequests(_ context.Context, requester string) ([]PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]PaymentRequest, 0)
	for _, r := range f.requests {
		if strings.EqualFold(r.Requester, requester) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeClient) CreateRequest(_ context.Context, params CreateParams) (CreateResult, error) {
	if params.AmountFiat <= 0 {
		return CreateResult{}, fmt.Errorf("execution reverted: amount must be positive")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++

	// Round amounts through the ledger's fixed-point codec so the fake
	// reproduces the precision the contract would.
	deposit := FromBaseUnits(ToBaseUnits(params.DepositAmount, LedgerDecimals), LedgerDecimals)
	bonus := FromBaseUnits(ToBaseUnits(params.BonusAmount, LedgerDecimals), LedgerDecimals)

	f.requests[id] = PaymentRequest{
		ID:            id,
		Requester:     f.Signer,
		AmountFiat:    params.AmountFiat,
		DepositAmount: deposit,
		PayerBonus:    bonus,
		Status:        StatusPending,
		CreatedAt:     f.now(),
	}
	return CreateResult{RequestID: id, TxHash: fakeHash(fmt.Sprintf("create-%d", id))}, nil
}

func (f *FakeClient) CommitToPay(_ context.Context, id uint64) (TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.requests[id]
	if !ok {
		return TxHandle{}, fmt.Errorf("execution reverted: request does not exist")
	}
	if strings.EqualFold(r.Requester, f.Signer) {
		return TxHandle{}, fmt.Errorf("execution reverted: cannot commit to your own request")
	}

	now := f.now()
	switch r.Status {
	case StatusPending:
	case StatusCommitted:
		if now.Before(r.CommitDeadline(f.timeout())) {
			return TxHandle{}, fmt.Errorf("execution reverted: request already committed")
		}
		// Deadline passed: the request reopens for a new payer.
	default:
		return TxHandle{}, fmt.Errorf("execution reverted: request is not available")
	}

	r.Payer = f.Signer
	r.Status = StatusCommitted
	r.CommittedAt = now
	r.ExpiresAt = now.Add(f.timeout())
	f.requests[id] = r

	return TxHandle{TxHash: fakeHash(fmt.Sprintf("commit-%d-%s", id, f.Signer))}, nil
}

func (f *FakeClient) FulfillPayment(_ context.Context, id uint64, reference string) (TxHandle, error) {
	if !fakeReferencePattern.MatchString(reference) {
		return TxHandle{}, fmt.Errorf("execution reverted: transaction number must be 12 digits")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.requests[id]
	if !ok {
		return TxHandle{}, fmt.Errorf("execution reverted: request does not exist")
	}
	if r.Status != StatusCommitted {
		return TxHandle{}, fmt.Errorf("execution reverted: request is not committed")
	}
	if !strings.EqualFold(r.Payer, f.Signer) {
		return TxHandle{}, fmt.Errorf("execution reverted: only the committed payer can fulfill")
	}
	if !f.now().Before(r.CommitDeadline(f.timeout())) {
		return TxHandle{}, fmt.Errorf("execution reverted: commitment window has expired")
	}

	r.Status = StatusFulfilled
	r.Reference = reference
	f.requests[id] = r

	return TxHandle{TxHash: fakeHash(fmt.Sprintf("fulfill-%d-%s", id, reference))}, nil
}

func (f *FakeClient) PlatformFee(_ context.Context) (*big.Int, error) {
	if f.Fee == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(f.Fee), nil
}

func (f *FakeClient) NextRequestID(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextID, nil
}

func (f *FakeClient) Ping(context.Context) error {
	return nil
}

// FailingClient returns the configured error from every call. It exists for
// exercising the unavailable-ledger paths in tests.
type FailingClient struct {
	Err error
}

func (f FailingClient) err() error {
	if f.Err != nil {
		return f.Err
	}
	return errors.New("ledger unavailable")
}

func (f FailingClient) AvailableRequests(context.Context) ([]PaymentRequest, error) {
	return nil, f.err()
}

func (f FailingClient) Request(context.Context, uint64) (PaymentRequest, error) {
	return PaymentRequest{}, f.err()
}

func (f FailingClient) PayerCommittedRequests(context.Context, string) ([]PaymentRequest, error) {
	return nil, f.err()
}

func (f FailingClient) UserRequests(context.Context, string) ([]PaymentRequest, error) {
	return nil, f.err()
}

func (f FailingClient) CreateRequest(context.Context, CreateParams) (CreateResult, error) {
	return CreateResult{}, f.err()
}

func (f FailingClient) CommitToPay(context.Context, uint64) (TxHandle, error) {
	return TxHandle{}, f.err()
}

func (f FailingClient) FulfillPayment(context.Context, uint64, string) (TxHandle, error) {
	return TxHandle{}, f.err()
}

func (f FailingClient) PlatformFee(context.Context) (*big.Int, error) {
	return nil, f.err()
}

func (f FailingClient) NextRequestID(context.Context) (uint64, error) {
	return 0, f.err()
}

func (f FailingClient) SignerAddress() string { return "" }

func (f FailingClient) Ping(context.Context) error { return f.err() }

func fakeHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return "0x" + hex.EncodeToString(sum[:])
}
