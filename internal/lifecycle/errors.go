package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// Client-facing error kinds, independent of transport. Ledger revert strings
// are re-mapped onto these; anything unrecognized is wrapped verbatim rather
// than swallowed.
var (
	ErrLedgerUnavailable   = errors.New("escrow ledger unavailable")
	ErrAlreadyCommitted    = errors.New("request already committed by another payer")
	ErrSelfCommit          = errors.New("cannot commit to your own request")
	ErrNotFound            = errors.New("payment request not found")
	ErrInvalidReference    = errors.New("settlement reference must be exactly 12 digits")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrTransactionRejected = errors.New("transaction rejected by signer")
	ErrInsufficientFunds   = errors.New("insufficient funds for transaction")
)

// classifyRevert maps known revert substrings onto the taxonomy. The ledger
// client passes reasons through untranslated, so matching happens here once.
func classifyRevert(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already committed"):
		return fmt.Errorf("%w: %v", ErrAlreadyCommitted, err)
	case strings.Contains(msg, "own request"):
		return fmt.Errorf("%w: %v", ErrSelfCommit, err)
	case strings.Contains(msg, "does not exist"):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	case strings.Contains(msg, "user denied"), strings.Contains(msg, "user rejected"):
		return fmt.Errorf("%w: %v", ErrTransactionRejected, err)
	}
	return fmt.Errorf("ledger error: %w", err)
}

// classifyRead wraps read failures as the fatal unavailable kind.
func classifyRead(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "does not exist") {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
}
