package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrReceiptNotFound means the node does not report the transaction
	// yet. Eventual consistency, not failure; poll with bounded backoff.
	ErrReceiptNotFound = errors.New("transaction receipt not found")

	// ErrNonceTooLow is a transient submission race; resubmission with a
	// fresh nonce is expected to succeed.
	ErrNonceTooLow = errors.New("nonce too low")

	// ErrAlreadySettled is the chain refusing a withdraw/cancel because
	// the escrow already reached a terminal state. Callers treat this as
	// terminal success of the other path, never as a failure.
	ErrAlreadySettled = errors.New("escrow already withdrawn or cancelled")
)

// SubmissionError wraps transport-level failures of a chain submission.
// It is retryable under the bounded retry policy.
type SubmissionError struct {
	Method string
	Err    error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("chain submission %s: %v", e.Method, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Client is the chain capability the coordinator consumes: submit a
// transaction against the escrow contract surface, fetch a receipt, scan
// logs, and make a read-only call. Implementations must support concurrent
// independent calls; the coordinator shares one client per leg across
// swaps.
type Client interface {
	Transact(ctx context.Context, method string, args ...any) (common.Hash, error)
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, fromBlock uint64, topics []common.Hash) ([]*types.Log, error)
	Call(ctx context.Context, method string, args ...any) ([]byte, error)
	ChainID() *big.Int
}

// Escrow contract surface used through Transact/Call. The bit-exact ABI is
// owned by the contract layer; these are the selectors this service
// drives.
const (
	MethodCreateEscrow   = "createEscrow"
	MethodWithdraw       = "withdraw"
	MethodCancel         = "cancel"
	MethodImplementation = "implementation"
)
