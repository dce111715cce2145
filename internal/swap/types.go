package swap

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"fusionswap/internal/auction"
	"fusionswap/internal/commitment"
	"fusionswap/internal/timelock"
)

// State is the coordinator's position in the per-swap state machine.
type State string

const (
	StateCreated           State = "CREATED"
	StateAccepted          State = "ACCEPTED"
	StateSrcEscrowDeployed State = "SRC_ESCROW_DEPLOYED"
	StateDstEscrowDeployed State = "DST_ESCROW_DEPLOYED"
	StateWithdrawn         State = "WITHDRAWN"
	StateCancelled         State = "CANCELLED"
)

// Order is the initiator's committed intent. Immutable once created: the
// secret hash binds it to exactly one secret, and the destination side is
// referenced only through commitments.
type Order struct {
	OrderHash    common.Hash
	Maker        common.Address
	SourceAsset  common.Address
	SourceAmount decimal.Decimal

	DestAssetCommitment     commitment.Commitment
	DestRecipientCommitment commitment.Commitment
	ChainID                 uint64

	SecretHash common.Hash
	Auction    auction.Params
}

// Acceptance snapshots the auction price at the instant the resolver took
// the order. Settlement uses this amount; later price reads are
// irrelevant.
type Acceptance struct {
	Amount decimal.Decimal
	At     time.Time
}

// DestinationDetails carries the relayed original (long-form) destination
// identifiers that the commitments in the order must match.
type DestinationDetails struct {
	ReceiverAddress []byte
	AssetAddress    []byte
}

// CrossChainEventData hands the destination-escrow deployment its inputs:
// the commitments extracted from the source-chain event, the relayed
// originals, and the settlement secret. It must pass codec verification
// before any transaction is submitted.
type CrossChainEventData struct {
	ReceiverCommitment      commitment.Commitment
	AssetCommitment         commitment.Commitment
	Amount                  decimal.Decimal
	Secret                  [32]byte
	OriginalReceiverAddress []byte
	OriginalAssetAddress    []byte
}

// EscrowRef locates a deployed escrow and everything needed to settle it.
type EscrowRef struct {
	Role       timelock.Role
	Address    common.Address
	SecretHash common.Hash
	Timelocks  timelock.Timelocks
	Amount     *big.Int
	DeployTx   common.Hash
}

// LegStatus is a leg's terminal disposition.
type LegStatus string

const (
	LegPending        LegStatus = "PENDING"
	LegSettled        LegStatus = "SETTLED"
	LegAlreadySettled LegStatus = "ALREADY_SETTLED" // chain reports a prior terminal state
	LegCancelled      LegStatus = "CANCELLED"
	LegStuck          LegStatus = "STUCK" // retries exhausted; operator recovery
)

// LegOutcome reports one leg of the swap: which escrow, which
// transactions, and how it ended.
type LegOutcome struct {
	Role     timelock.Role
	Status   LegStatus
	Escrow   common.Address
	DeployTx common.Hash
	SettleTx common.Hash
	Err      error
}

func (l LegOutcome) settledLike() bool {
	return l.Status == LegSettled || l.Status == LegAlreadySettled
}

// SwapResult is the full account of a swap run. A partial result keeps
// every completed transaction visible: recovery of a stuck leg is an
// operator process, and throwing the settled half away would hide the
// funds trail.
type SwapResult struct {
	ID         string
	OrderHash  common.Hash
	State      State
	Acceptance Acceptance
	Src        LegOutcome
	Dst        LegOutcome
}

// Partial reports one leg settled while the other is stuck.
func (r *SwapResult) Partial() bool {
	return r.Src.settledLike() != r.Dst.settledLike()
}

// Settled reports both legs settled.
func (r *SwapResult) Settled() bool {
	return r.Src.settledLike() && r.Dst.settledLike()
}
