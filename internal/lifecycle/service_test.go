package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"upirails/internal/escrow"
	"upirails/internal/metadata"
	"upirails/internal/oracle"
)

func newTestService(ledger escrow.Client, now *time.Time) *Service {
	return New(Config{
		Ledger:        ledger,
		Metadata:      metadata.NewMemoryStore(),
		FallbackUPIID: "payments@platform",
		PlatformName:  "Platform",
		Now:           func() time.Time { return *now },
	})
}

func TestListAvailableExcludesOwnRequests(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ledger := escrow.NewFakeClient("0xAlice", 5*time.Minute)
	ledger.Now = func() time.Time { return now }
	if _, err := ledger.CreateRequest(ctx, escrow.CreateParams{AmountFiat: 100, DepositAmount: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	ledger.Signer = "0xBob"
	if _, err := ledger.CreateRequest(ctx, escrow.CreateParams{AmountFiat: 200, DepositAmount: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}

	svc := newTestService(ledger, &now)

	views, err := svc.ListAvailable(ctx, "0xalice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 1 || views[0].Requester != "0xBob" {
		t.Fatalf("expected only Bob's request, got %+v", views)
	}

	all, err := svc.ListAvailable(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both requests, got %d", len(all))
	}
}

func TestListAvailableReopensExpiredCommitments(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ledger := escrow.NewFakeClient("0xAlice", 5*time.Minute)
	ledger.Now = func() time.Time { return now }
	if _, err := ledger.CreateRequest(ctx, escrow.CreateParams{AmountFiat: 100, DepositAmount: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	ledger.Signer = "0xBob"
	if _, err := ledger.CommitToPay(ctx, 1); err != nil {
		t.Fatalf("commit: %v", err)
	}

	svc := newTestService(ledger, &now)

	// Within the window a committed request is hidden.
	views, err := svc.ListAvailable(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("expected committed request hidden, got %+v", views)
	}

	// Past the deadline it resurfaces with the reopened tag.
	now = now.Add(6 * time.Minute)
	views, err = svc.ListAvailable(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected one reopened request, got %d", len(views))
	}
	if !views[0].Reopened || views[0].Label != ReopenedLabel {
		t.Fatalf("expected reopened tag, got %+v", views[0])
	}
	if ReopenedDescriptionFor(views[0]) != ReopenedDescription {
		t.Fatalf("expected reopened description")
	}
}

func TestListAvailableUnavailableLedger(t *testing.T) {
	now := time.Now()
	svc := newTestService(escrow.FailingClient{}, &now)
	_, err := svc.ListAvailable(context.Background(), "")
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
}

func TestCreateValidatesAmounts(t *testing.T) {
	now := time.Now()
	ledger := escrow.NewFakeClient("0xAlice", 0)
	svc := newTestService(ledger, &now)

	_, err := svc.Create(context.Background(), CreateParams{AmountFiat: 0, DepositAmount: 1})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero fiat, got %v", err)
	}
	_, err = svc.Create(context.Background(), CreateParams{AmountFiat: 100, DepositAmount: 0})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero deposit, got %v", err)
	}
}

func TestCreateBindsMetadata(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ledger := escrow.NewFakeClient("0xAlice", 0)
	ledger.Now = func() time.Time { return now }

	meta := metadata.NewMemoryStore()
	svc := New(Config{
		Ledger:   ledger,
		Metadata: meta,
		Now:      func() time.Time { return now },
	})

	result, err := svc.Create(ctx, CreateParams{
		AmountFiat:    1000,
		DepositAmount: 12.5,
		UPIID:         "merchant@upi",
		PayeeName:     "Chai Stall",
		Note:          "Morning chai",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	view, err := svc.Get(ctx, result.RequestID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.UPIID != "merchant@upi" || view.PayeeName != "Chai Stall" || view.Note != "Morning chai" {
		t.Fatalf("metadata not attached: %+v", view)
	}
}

func TestGetFallsBackToPlatformIdentity(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ledger := escrow.NewFakeClient("0xAlice", 0)
	ledger.Now = func() time.Time { return now }

	svc := newTestService(ledger, &now)

	// Create without any UPI identity.
	result, err := svc.Create(ctx, CreateParams{AmountFiat: 750, DepositAmount: 9})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	view, err := svc.Get(ctx, result.RequestID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.UPIID != "payments@platform" || view.PayeeName != "Platform" {
		t.Fatalf("expected platform fallback, got %+v", view)
	}
	if view.Note != "Payment request for ₹750" {
		t.Fatalf("unexpected note %q", view.Note)
	}
}

func TestGetNotFound(t *testing.T) {
	now := time.Now()
	svc := newTestService(escrow.NewFakeClient("0xAlice", 0), &now)
	_, err := svc.Get(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCommitPreconditions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ledger := escrow.NewFakeClient("0xAlice", 5*time.Minute)
	ledger.Now = func() time.Time { return now }
	if _, err := ledger.CreateRequest(ctx, escrow.CreateParams{AmountFiat: 100, DepositAmount: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	svc := newTestService(ledger, &now)

	// The service signs as the requester: self-commit is caught locally.
	_, err := svc.Commit(ctx, 1)
	if !errors.Is(err, ErrSelfCommit) {
		t.Fatalf("expected ErrSelfCommit, got %v", err)
	}

	// Missing requests map cleanly.
	_, err = svc.Commit(ctx, 99)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Another payer holds a live commitment.
	ledger.Signer = "0xBob"
	if _, err := ledger.CommitToPay(ctx, 1); err != nil {
		t.Fatalf("commit: %v", err)
	}
	ledger.Signer = "0xCarol"
	_, err = svc.Commit(ctx, 1)
	if !errors.Is(err, ErrAlreadyCommitted) {
		t.Fatalf("expected ErrAlreadyCommitted, got %v", err)
	}

	// After the window lapses the same call succeeds.
	now = now.Add(6 * time.Minute)
	if _, err := svc.Commit(ctx, 1); err != nil {
		t.Fatalf("recommit: %v", err)
	}
}

func TestFulfillValidatesReference(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ledger := escrow.NewFakeClient("0xAlice", 5*time.Minute)
	ledger.Now = func() time.Time { return now }
	if _, err := ledger.CreateRequest(ctx, escrow.CreateParams{AmountFiat: 100, DepositAmount: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	ledger.Signer = "0xBob"
	if _, err := ledger.CommitToPay(ctx, 1); err != nil {
		t.Fatalf("commit: %v", err)
	}

	svc := newTestService(ledger, &now)

	for _, bad := range []string{"", "12345", "12345678901a", "1234567890123"} {
		if _, err := svc.Fulfill(ctx, 1, bad); !errors.Is(err, ErrInvalidReference) {
			t.Fatalf("reference %q: expected ErrInvalidReference, got %v", bad, err)
		}
	}

	if _, err := svc.Fulfill(ctx, 1, "123456789012"); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
}

func TestComputeRemaining(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	timeout := 5 * time.Minute

	pending := escrow.PaymentRequest{Status: escrow.StatusPending}
	if got := ComputeRemaining(pending, timeout, now); got.State != NoCommitment {
		t.Fatalf("expected NoCommitment, got %v", got.State)
	}

	active := escrow.PaymentRequest{
		Status:      escrow.StatusCommitted,
		CommittedAt: now.Add(-2 * time.Minute),
	}
	got := ComputeRemaining(active, timeout, now)
	if got.State != Active {
		t.Fatalf("expected Active, got %v", got.State)
	}
	if got.Duration != 3*time.Minute {
		t.Fatalf("expected 3m remaining, got %v", got.Duration)
	}

	expired := escrow.PaymentRequest{
		Status:      escrow.StatusCommitted,
		CommittedAt: now.Add(-10 * time.Minute),
	}
	if got := ComputeRemaining(expired, timeout, now); got.State != Expired {
		t.Fatalf("expected Expired, got %v", got.State)
	}
}

func TestValuate(t *testing.T) {
	req := escrow.PaymentRequest{
		DepositToken:  "0xDAI",
		DepositAmount: 10,
		PayerBonus:    0.002,
	}
	rates := oracle.Rates{
		"0xdai":                    83,
		oracle.NativeTokenAddress: 200000,
	}

	v := Valuate(req, rates, 80, 150000)
	if v.DepositFiat != 830 {
		t.Fatalf("deposit fiat: got %v", v.DepositFiat)
	}
	if v.BonusFiat != 400 {
		t.Fatalf("bonus fiat: got %v", v.BonusFiat)
	}
	if v.Total != 1230 || v.UsedFallback {
		t.Fatalf("unexpected valuation %+v", v)
	}
}

func TestValuateFallsBackDeterministically(t *testing.T) {
	req := escrow.PaymentRequest{
		DepositToken:  "0xDAI",
		DepositAmount: 10,
		PayerBonus:    0.001,
	}

	v := Valuate(req, oracle.Rates{}, 83, 200000)
	if v.DepositFiat != 830 || v.BonusFiat != 200 {
		t.Fatalf("unexpected fallback valuation %+v", v)
	}
	if !v.UsedFallback {
		t.Fatalf("expected fallback flag")
	}

	// A zero bonus priced off a missing native rate is not a fallback.
	noBonus := escrow.PaymentRequest{DepositToken: "0xDAI", DepositAmount: 10}
	v = Valuate(noBonus, oracle.Rates{"0xdai": 83}, 80, 200000)
	if v.UsedFallback {
		t.Fatalf("did not expect fallback flag, got %+v", v)
	}
}

func TestFullScenario(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ledger := escrow.NewFakeClient("0xAlice", 5*time.Minute)
	ledger.Now = func() time.Time { return now }
	svc := newTestService(ledger, &now)

	result, err := svc.Create(ctx, CreateParams{
		AmountFiat:    1000,
		DepositAmount: 12.5,
		BonusAmount:   0.001,
		UPIID:         "shop@upi",
		PayeeName:     "Shop",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := result.RequestID

	// First payer commits, then walks away.
	ledger.Signer = "0xBob"
	if _, err := svc.Commit(ctx, id); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	now = now.Add(6 * time.Minute)

	views, err := svc.ListAvailable(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 1 || !views[0].Reopened {
		t.Fatalf("expected reopened listing, got %+v", views)
	}

	// Second payer takes over and fulfills in time.
	ledger.Signer = "0xCarol"
	if _, err := svc.Commit(ctx, id); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := svc.Fulfill(ctx, id, "987654321098"); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	view, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Status != escrow.StatusFulfilled || view.Reference != "987654321098" {
		t.Fatalf("unexpected final state %+v", view.PaymentRequest)
	}
	if view.UPIID != "shop@upi" {
		t.Fatalf("metadata lost: %+v", view)
	}

	committed, err := svc.ListCommittedByPayer(ctx, "0xCarol")
	if err != nil {
		t.Fatalf("payer list: %v", err)
	}
	if len(committed) != 1 || committed[0].ID != id {
		t.Fatalf("expected Carol's fulfillment listed, got %+v", committed)
	}

	mine, err := svc.ListByRequester(ctx, "0xAlice")
	if err != nil {
		t.Fatalf("requester list: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("expected one request for Alice, got %d", len(mine))
	}
}
