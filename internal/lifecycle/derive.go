package lifecycle

import (
	"time"

	"upirails/internal/escrow"
	"upirails/internal/oracle"
)

// RemainingState describes where a request sits relative to its commitment
// window.
type RemainingState int

const (
	// NoCommitment means the request has never been committed.
	NoCommitment RemainingState = iota
	// Active means a commitment is live; Duration holds the time left.
	Active
	// Expired means the commitment deadline has passed.
	Expired
)

func (s RemainingState) String() string {
	switch s {
	case NoCommitment:
		return "no_commitment"
	case Active:
		return "active"
	case Expired:
		return "expired"
	}
	return "unknown"
}

// Remaining is the outcome of ComputeRemaining.
type Remaining struct {
	State    RemainingState
	Duration time.Duration
}

// ComputeRemaining derives the time left in a request's commitment window at
// the given instant. Durations are floor-truncated to whole seconds for
// display.
func ComputeRemaining(req escrow.PaymentRequest, timeout time.Duration, now time.Time) Remaining {
	if !req.Committed() {
		return Remaining{State: NoCommitment}
	}
	deadline := req.CommitDeadline(timeout)
	if !now.Before(deadline) {
		return Remaining{State: Expired}
	}
	return Remaining{State: Active, Duration: deadline.Sub(now).Truncate(time.Second)}
}

// Remaining applies the service's window and clock.
func (s *Service) Remaining(req escrow.PaymentRequest) Remaining {
	return ComputeRemaining(req, s.timeout, s.now())
}

// Valuation itemizes a request's fiat equivalent. Total is always the sum of
// the two components; a missing or non-positive rate is substituted with the
// given fallback constant, so valuation never yields NaN or an error.
type Valuation struct {
	DepositFiat  float64
	BonusFiat    float64
	Total        float64
	UsedFallback bool
}

// Valuate prices a request in fiat: deposit at the stable-token rate plus
// bonus at the native-currency rate.
func Valuate(req escrow.PaymentRequest, rates oracle.Rates, fallbackStable, fallbackNative float64) Valuation {
	v := Valuation{}

	stableRate := rates.Rate(req.DepositToken)
	if stableRate <= 0 {
		stableRate = fallbackStable
		v.UsedFallback = true
	}
	nativeRate := rates.Rate(oracle.NativeTokenAddress)
	if nativeRate <= 0 {
		nativeRate = fallbackNative
		if req.PayerBonus > 0 {
			v.UsedFallback = true
		}
	}

	v.DepositFiat = req.DepositAmount * stableRate
	v.BonusFiat = req.PayerBonus * nativeRate
	v.Total = v.DepositFiat + v.BonusFiat
	return v
}

// ReopenedDescriptionFor returns the human label for a view, empty for
// ordinary pending requests.
func ReopenedDescriptionFor(v View) string {
	if v.Reopened {
		return ReopenedDescription
	}
	return ""
}
