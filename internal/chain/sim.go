package chain

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"fusionswap/internal/events"
	"fusionswap/internal/timelock"
)

// SimClient is an in-memory chain used in tests and key-less dev runs. It
// enforces the same hashlock and timelock rules the escrow contracts do,
// and reports receipts with a configurable visibility delay so eventual
// consistency paths get exercised.
type SimClient struct {
	mu      sync.Mutex
	chainID *big.Int
	role    timelock.Role
	nowFn   func() time.Time

	escrows      map[common.Address]*simEscrow
	receipts     map[common.Hash]*types.Receipt
	receiptPolls map[common.Hash]int
	logs         []*types.Log

	receiptDelay   int
	pendingFails   int
	implementation common.Address
	seq            uint64
}

type simEscrow struct {
	orderHash  common.Hash
	secretHash common.Hash
	timelocks  timelock.Timelocks
	amount     *big.Int
	withdrawn  bool
	cancelled  bool
	secret     [32]byte
}

func NewSimClient(chainID uint64, role timelock.Role) *SimClient {
	return &SimClient{
		chainID:        new(big.Int).SetUint64(chainID),
		role:           role,
		nowFn:          time.Now,
		escrows:        make(map[common.Address]*simEscrow),
		receipts:       make(map[common.Hash]*types.Receipt),
		receiptPolls:   make(map[common.Hash]int),
		implementation: common.HexToAddress("0x00000000000000000000000000000000000000ef"),
	}
}

func (s *SimClient) ChainID() *big.Int { return new(big.Int).Set(s.chainID) }

// SetNow overrides the chain clock, letting tests move through timelock
// windows without sleeping.
func (s *SimClient) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = now
}

// SetReceiptDelay makes the next receipts invisible for n polls each.
func (s *SimClient) SetReceiptDelay(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiptDelay = n
}

// FailSubmits makes the next n Transact calls fail with a transient
// submission error.
func (s *SimClient) FailSubmits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingFails = n
}

func (s *SimClient) Transact(_ context.Context, method string, args ...any) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingFails > 0 {
		s.pendingFails--
		return common.Hash{}, &SubmissionError{Method: method, Err: fmt.Errorf("node unavailable")}
	}

	switch method {
	case MethodCreateEscrow:
		return s.createEscrow(args)
	case MethodWithdraw:
		return s.withdraw(args)
	case MethodCancel:
		return s.cancel(args)
	default:
		return common.Hash{}, &SubmissionError{Method: method, Err: fmt.Errorf("unknown method")}
	}
}

func (s *SimClient) createEscrow(args []any) (common.Hash, error) {
	if len(args) != 8 {
		return common.Hash{}, &SubmissionError{Method: MethodCreateEscrow, Err: fmt.Errorf("want 8 args, got %d", len(args))}
	}
	orderHash := args[0].([32]byte)
	secretHash := args[1].([32]byte)
	owner := args[2].(common.Address)
	counterparty := args[3].(common.Address)
	asset := args[4].(common.Address)
	amount := args[5].(*big.Int)
	deposit := args[6].(*big.Int)
	packedBig := args[7].(*big.Int)

	packed, overflow := uint256.FromBig(packedBig)
	if overflow {
		return common.Hash{}, fmt.Errorf("execution reverted: timelock word out of range")
	}
	locks := timelock.Unpack(packed)
	if err := locks.Validate(); err != nil {
		return common.Hash{}, fmt.Errorf("execution reverted: %v", err)
	}

	s.seq++
	address := s.deriveAddress(orderHash)
	s.escrows[address] = &simEscrow{
		orderHash:  common.Hash(orderHash),
		secretHash: common.Hash(secretHash),
		timelocks:  locks,
		amount:     new(big.Int).Set(amount),
	}

	evt := &events.EscrowCreated{
		EscrowAddress:          address,
		OrderHash:              common.Hash(orderHash),
		SecretHash:             common.Hash(secretHash),
		OwnerCommitment:        owner,
		CounterpartyCommitment: counterparty,
		AssetCommitment:        asset,
		Amount:                 amount,
		SafetyDeposit:          deposit,
		Timelocks:              locks,
	}
	lg, err := evt.Log()
	if err != nil {
		return common.Hash{}, fmt.Errorf("execution reverted: %v", err)
	}

	txHash := s.deriveTxHash()
	lg.TxHash = txHash
	s.logs = append(s.logs, lg)
	s.receipts[txHash] = &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		TxHash: txHash,
		Logs:   []*types.Log{lg},
	}
	return txHash, nil
}

func (s *SimClient) withdraw(args []any) (common.Hash, error) {
	if len(args) != 2 {
		return common.Hash{}, &SubmissionError{Method: MethodWithdraw, Err: fmt.Errorf("want 2 args, got %d", len(args))}
	}
	address := args[0].(common.Address)
	secret := args[1].([32]byte)

	esc, ok := s.escrows[address]
	if !ok {
		return common.Hash{}, fmt.Errorf("execution reverted: unknown escrow %s", address.Hex())
	}
	if esc.withdrawn || esc.cancelled {
		return common.Hash{}, fmt.Errorf("%s: %w", MethodWithdraw, ErrAlreadySettled)
	}
	if sha256.Sum256(secret[:]) != [32]byte(esc.secretHash) {
		return common.Hash{}, fmt.Errorf("execution reverted: invalid secret")
	}

	now := s.nowFn()
	if now.Before(esc.timelocks.WithdrawalAt(s.role)) {
		return common.Hash{}, fmt.Errorf("execution reverted: withdrawal not open")
	}
	if !now.Before(esc.timelocks.CancellationAt(s.role)) {
		return common.Hash{}, fmt.Errorf("execution reverted: withdrawal window closed")
	}

	esc.withdrawn = true
	esc.secret = secret

	txHash := s.deriveTxHash()
	s.receipts[txHash] = &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash}
	return txHash, nil
}

func (s *SimClient) cancel(args []any) (common.Hash, error) {
	if len(args) != 1 {
		return common.Hash{}, &SubmissionError{Method: MethodCancel, Err: fmt.Errorf("want 1 arg, got %d", len(args))}
	}
	address := args[0].(common.Address)

	esc, ok := s.escrows[address]
	if !ok {
		return common.Hash{}, fmt.Errorf("execution reverted: unknown escrow %s", address.Hex())
	}
	if esc.withdrawn || esc.cancelled {
		return common.Hash{}, fmt.Errorf("%s: %w", MethodCancel, ErrAlreadySettled)
	}
	if s.nowFn().Before(esc.timelocks.CancellationAt(s.role)) {
		return common.Hash{}, fmt.Errorf("execution reverted: cancellation not open")
	}

	esc.cancelled = true
	txHash := s.deriveTxHash()
	s.receipts[txHash] = &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash}
	return txHash, nil
}

func (s *SimClient) Receipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, ok := s.receipts[txHash]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	s.receiptPolls[txHash]++
	if s.receiptPolls[txHash] <= s.receiptDelay {
		return nil, ErrReceiptNotFound
	}
	return receipt, nil
}

func (s *SimClient) FilterLogs(_ context.Context, _ uint64, topics []common.Hash) ([]*types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.Log
	for _, lg := range s.logs {
		if len(topics) == 0 {
			out = append(out, lg)
			continue
		}
		for _, topic := range topics {
			if len(lg.Topics) > 0 && lg.Topics[0] == topic {
				out = append(out, lg)
				break
			}
		}
	}
	return out, nil
}

func (s *SimClient) Call(_ context.Context, method string, _ ...any) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if method == MethodImplementation {
		return common.LeftPadBytes(s.implementation.Bytes(), 32), nil
	}
	return nil, fmt.Errorf("execution reverted: unknown method %s", method)
}

// EscrowState reports the terminal flags of an escrow for assertions.
func (s *SimClient) EscrowState(address common.Address) (withdrawn, cancelled, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	esc, found := s.escrows[address]
	if !found {
		return false, false, false
	}
	return esc.withdrawn, esc.cancelled, true
}

// RevealedSecret returns the secret a successful withdrawal published.
// Once one leg settles, the same value unlocks the other; this is the
// observable form of the atomicity mechanism.
func (s *SimClient) RevealedSecret(address common.Address) ([32]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	esc, found := s.escrows[address]
	if !found || !esc.withdrawn {
		return [32]byte{}, false
	}
	return esc.secret, true
}

func (s *SimClient) deriveAddress(orderHash [32]byte) common.Address {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.seq)
	digest := crypto.Keccak256(orderHash[:], buf[:])
	return common.BytesToAddress(digest[12:])
}

func (s *SimClient) deriveTxHash() common.Hash {
	s.seq++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.seq)
	return crypto.Keccak256Hash([]byte("tx"), buf[:], s.chainID.Bytes())
}
