package lifecycle

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"upirails/internal/escrow"
	"upirails/internal/metadata"
)

// DefaultCommitTimeout is the contract's commitment window.
const DefaultCommitTimeout = 5 * time.Minute

// ReopenedLabel marks requests whose previous commitment lapsed.
const (
	ReopenedLabel       = "COMMITMENT EXPIRED"
	ReopenedDescription = "Previous commitment expired - now available again"
)

var referencePattern = regexp.MustCompile(`^\d{12}$`)

// Service translates ledger records into application view models, enforces
// client-side preconditions before submitting mutations, and computes derived
// values. All dependencies are injected; there is no shared global state.
type Service struct {
	ledger  escrow.Client
	meta    metadata.Store
	timeout time.Duration
	now     func() time.Time

	fallbackUPI  string
	platformName string
}

type Config struct {
	Ledger        escrow.Client
	Metadata      metadata.Store
	CommitTimeout time.Duration // zero means DefaultCommitTimeout
	FallbackUPIID string        // platform-wide identity when no binding exists
	PlatformName  string
	Now           func() time.Time
}

func New(cfg Config) *Service {
	timeout := cfg.CommitTimeout
	if timeout <= 0 {
		timeout = DefaultCommitTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	meta := cfg.Metadata
	if meta == nil {
		meta = metadata.NewMemoryStore()
	}
	return &Service{
		ledger:       cfg.Ledger,
		meta:         meta,
		timeout:      timeout,
		now:          now,
		fallbackUPI:  cfg.FallbackUPIID,
		platformName: cfg.PlatformName,
	}
}

// CommitTimeout reports the commitment window the service reconciles with.
func (s *Service) CommitTimeout() time.Duration {
	return s.timeout
}

// View is a request joined with its off-chain metadata and reopen state.
type View struct {
	escrow.PaymentRequest
	UPIID     string
	PayeeName string
	Note      string
	Reopened  bool
	Label     string
}

// ListAvailable returns requests open for commitment: pending ones, plus
// committed ones whose deadline has lapsed, tagged as reopened. Requests
// created by excludeAddr never appear (case-insensitive compare).
func (s *Service) ListAvailable(ctx context.Context, excludeAddr string) ([]View, error) {
	requests, err := s.ledger.AvailableRequests(ctx)
	if err != nil {
		return nil, classifyRead(err)
	}

	now := s.now()
	views := make([]View, 0, len(requests))
	for _, req := range requests {
		if excludeAddr != "" && strings.EqualFold(req.Requester, excludeAddr) {
			continue
		}
		switch req.Status {
		case escrow.StatusPending:
			views = append(views, s.toView(ctx, req, false))
		case escrow.StatusCommitted:
			// The ledger reports stale Committed status until re-read;
			// past the deadline the request is logically open again.
			if now.Before(req.CommitDeadline(s.timeout)) {
				continue
			}
			views = append(views, s.toView(ctx, req, true))
		}
	}
	return views, nil
}

// ListCommittedByPayer mirrors the ledger's view of a payer's commitments
// with no freshness filtering; callers recompute expiry via ComputeRemaining.
func (s *Service) ListCommittedByPayer(ctx context.Context, payer string) ([]View, error) {
	requests, err := s.ledger.PayerCommittedRequests(ctx, payer)
	if err != nil {
		return nil, classifyRead(err)
	}
	views := make([]View, 0, len(requests))
	for _, req := range requests {
		views = append(views, s.toView(ctx, req, false))
	}
	return views, nil
}

// ListByRequester returns every request a wallet has created.
func (s *Service) ListByRequester(ctx context.Context, requester string) ([]View, error) {
	requests, err := s.ledger.UserRequests(ctx, requester)
	if err != nil {
		return nil, classifyRead(err)
	}
	views := make([]View, 0, len(requests))
	for _, req := range requests {
		views = append(views, s.toView(ctx, req, false))
	}
	return views, nil
}

// Get returns a single request with metadata attached.
func (s *Service) Get(ctx context.Context, id uint64) (View, error) {
	req, err := s.ledger.Request(ctx, id)
	if err != nil {
		return View{}, classifyRead(err)
	}
	reopened := req.Status == escrow.StatusCommitted && !s.now().Before(req.CommitDeadline(s.timeout))
	return s.toView(ctx, req, reopened), nil
}

type CreateParams struct {
	AmountFiat    int64
	DepositAmount float64
	BonusAmount   float64

	// Off-chain identity captured from the scanned UPI QR.
	UPIID     string
	PayeeName string
	Note      string
}

// Create publishes a payment request backed by the escrow deposit and bonus,
// then binds the UPI identity to the assigned id. The metadata write is best
// effort; a missing store degrades to the platform fallback on read.
func (s *Service) Create(ctx context.Context, params CreateParams) (escrow.CreateResult, error) {
	if params.AmountFiat <= 0 {
		return escrow.CreateResult{}, fmt.Errorf("%w: fiat amount must be positive", ErrInvalidAmount)
	}
	if params.DepositAmount <= 0 {
		return escrow.CreateResult{}, fmt.Errorf("%w: deposit amount must be positive", ErrInvalidAmount)
	}

	result, err := s.ledger.CreateRequest(ctx, escrow.CreateParams{
		AmountFiat:    params.AmountFiat,
		DepositAmount: params.DepositAmount,
		BonusAmount:   params.BonusAmount,
	})
	if err != nil {
		return result, classifyRevert(err)
	}

	if params.UPIID != "" {
		binding := metadata.Binding{
			RequestID: result.RequestID,
			UPIID:     params.UPIID,
			PayeeName: params.PayeeName,
			Note:      params.Note,
		}
		if err := s.meta.Put(ctx, binding); err != nil {
			log.Printf("lifecycle: metadata write for request %d failed: %v", result.RequestID, err)
		}
	}

	return result, nil
}

// Commit reserves a request for the signer. Preconditions are checked against
// a fresh read before spending a transaction; the ledger remains the
// authority and its reverts are re-mapped onto the same error kinds.
func (s *Service) Commit(ctx context.Context, id uint64) (escrow.TxHandle, error) {
	req, err := s.ledger.Request(ctx, id)
	if err != nil {
		return escrow.TxHandle{}, classifyRead(err)
	}
	if strings.EqualFold(req.Requester, s.ledger.SignerAddress()) {
		return escrow.TxHandle{}, ErrSelfCommit
	}
	if req.Status == escrow.StatusCommitted && s.now().Before(req.CommitDeadline(s.timeout)) {
		return escrow.TxHandle{}, ErrAlreadyCommitted
	}

	handle, err := s.ledger.CommitToPay(ctx, id)
	if err != nil {
		return escrow.TxHandle{}, classifyRevert(err)
	}
	return handle, nil
}

// Fulfill submits the settlement reference. The 12-digit shape is validated
// locally so a malformed reference never wastes a transaction.
func (s *Service) Fulfill(ctx context.Context, id uint64, reference string) (escrow.TxHandle, error) {
	if !referencePattern.MatchString(reference) {
		return escrow.TxHandle{}, ErrInvalidReference
	}

	handle, err := s.ledger.FulfillPayment(ctx, id, reference)
	if err != nil {
		return escrow.TxHandle{}, classifyRevert(err)
	}
	return handle, nil
}

func (s *Service) toView(ctx context.Context, req escrow.PaymentRequest, reopened bool) View {
	view := View{PaymentRequest: req, Reopened: reopened}
	if reopened {
		view.Label = ReopenedLabel
	}

	binding, err := s.meta.Get(ctx, req.ID)
	if err != nil {
		log.Printf("lifecycle: metadata read for request %d failed: %v", req.ID, err)
	}
	if binding != nil {
		view.UPIID = binding.UPIID
		view.PayeeName = binding.PayeeName
		view.Note = binding.Note
		return view
	}

	// No binding known: fall back to the platform identity.
	view.UPIID = s.fallbackUPI
	view.PayeeName = s.platformName
	view.Note = fmt.Sprintf("Payment request for ₹%d", req.AmountFiat)
	return view
}
