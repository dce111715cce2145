package swap

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"fusionswap/internal/timelock"
)

var (
	// ErrUnknownSwap reports a swap ID with no persisted record.
	ErrUnknownSwap = errors.New("unknown swap")

	// ErrSwapSettled rejects operator cancellation of a swap that already
	// withdrew on both legs.
	ErrSwapSettled = errors.New("swap already withdrawn")
)

// ValidationError reports a malformed order or escrow field. Fatal,
// reported immediately, never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid swap input: " + e.Reason
}

// StaleOrderError rejects an order whose auction has fully decayed, under
// the reject-floor-fills policy.
type StaleOrderError struct {
	OrderHash common.Hash
}

func (e *StaleOrderError) Error() string {
	return fmt.Sprintf("order %s already at floor price", e.OrderHash.Hex())
}

// HashMismatchError means the presented secret is not the preimage of the
// escrow's committed hash. Fatal: it indicates a caller bug, never a
// transient condition, and must not be retried blindly.
type HashMismatchError struct {
	Expected common.Hash
	Observed common.Hash
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("secret hash mismatch: escrow commits %s, secret hashes to %s",
		e.Expected.Hex(), e.Observed.Hex())
}

// NotYetWithdrawableError means the leg's withdrawal offset has not
// elapsed. Callers wait and retry, bounded by the cancellation horizon.
type NotYetWithdrawableError struct {
	Role    timelock.Role
	OpensAt time.Time
}

func (e *NotYetWithdrawableError) Error() string {
	return fmt.Sprintf("%s escrow not withdrawable until %s", e.Role, e.OpensAt.UTC().Format(time.RFC3339))
}

// WindowClosedError means the leg's cancellation offset has passed; a
// withdrawal can never succeed there again.
type WindowClosedError struct {
	Role     timelock.Role
	ClosedAt time.Time
}

func (e *WindowClosedError) Error() string {
	return fmt.Sprintf("%s withdrawal window closed at %s", e.Role, e.ClosedAt.UTC().Format(time.RFC3339))
}

// NotYetCancellableError means the refund path is not open yet.
type NotYetCancellableError struct {
	Role    timelock.Role
	OpensAt time.Time
}

func (e *NotYetCancellableError) Error() string {
	return fmt.Sprintf("%s escrow not cancellable until %s", e.Role, e.OpensAt.UTC().Format(time.RFC3339))
}

// PartialSwapError reports one leg settled while the other could not be
// progressed after retries. The accompanying SwapResult still lists the
// completed transactions; unsticking the other leg is manual.
type PartialSwapError struct {
	SettledLeg timelock.Role
	StuckLeg   timelock.Role
	Err        error
}

func (e *PartialSwapError) Error() string {
	return fmt.Sprintf("partial swap: %s leg settled, %s leg stuck: %v", e.SettledLeg, e.StuckLeg, e.Err)
}

func (e *PartialSwapError) Unwrap() error { return e.Err }
