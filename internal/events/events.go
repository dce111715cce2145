package events

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"fusionswap/internal/timelock"
)

// ErrNotVisible means no matching log was found. On a freshly submitted
// transaction this is eventual consistency at the node, not corruption;
// callers poll with bounded backoff.
var ErrNotVisible = errors.New("escrow creation event not yet visible")

const escrowABIJSON = `[
  {
    "type": "event",
    "name": "EscrowCreated",
    "inputs": [
      {"name": "orderHash", "type": "bytes32", "indexed": true},
      {"name": "secretHash", "type": "bytes32", "indexed": false},
      {"name": "ownerCommitment", "type": "address", "indexed": false},
      {"name": "counterpartyCommitment", "type": "address", "indexed": false},
      {"name": "assetCommitment", "type": "address", "indexed": false},
      {"name": "amount", "type": "uint256", "indexed": false},
      {"name": "safetyDeposit", "type": "uint256", "indexed": false},
      {"name": "timelocks", "type": "uint256", "indexed": false}
    ]
  }
]`

var (
	escrowABI        abi.ABI
	escrowCreatedEvt abi.Event
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(escrowABIJSON))
	if err != nil {
		panic(fmt.Sprintf("events: parse escrow abi: %v", err))
	}
	escrowABI = parsed
	escrowCreatedEvt = escrowABI.Events["EscrowCreated"]
}

// EscrowCreatedTopic is the canonical topic hash of the creation event,
// usable as a log filter.
func EscrowCreatedTopic() common.Hash { return escrowCreatedEvt.ID }

// EscrowCreated is the typed form of the escrow creation event. The escrow
// contract emits it about itself, so the emitting address is the escrow
// address.
type EscrowCreated struct {
	EscrowAddress          common.Address
	OrderHash              common.Hash
	SecretHash             common.Hash
	OwnerCommitment        common.Address
	CounterpartyCommitment common.Address
	AssetCommitment        common.Address
	Amount                 *big.Int
	SafetyDeposit          *big.Int
	Timelocks              timelock.Timelocks
}

// ExtractEscrowCreated scans receipt logs for the first escrow creation
// event. Logs that do not match the topic are skipped; zero matches yields
// ErrNotVisible.
func ExtractEscrowCreated(logs []*types.Log) (*EscrowCreated, error) {
	for _, lg := range logs {
		if lg == nil || len(lg.Topics) < 2 || lg.Topics[0] != escrowCreatedEvt.ID {
			continue
		}
		evt, err := decodeEscrowCreated(lg)
		if err != nil {
			return nil, err
		}
		return evt, nil
	}
	return nil, ErrNotVisible
}

func decodeEscrowCreated(lg *types.Log) (*EscrowCreated, error) {
	values, err := escrowCreatedEvt.Inputs.NonIndexed().UnpackValues(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("decode escrow creation event: %w", err)
	}
	if len(values) != 7 {
		return nil, fmt.Errorf("decode escrow creation event: got %d fields, want 7", len(values))
	}

	secretHash, ok := values[0].([32]byte)
	if !ok {
		return nil, fmt.Errorf("decode escrow creation event: secretHash has type %T", values[0])
	}
	owner := values[1].(common.Address)
	counterparty := values[2].(common.Address)
	asset := values[3].(common.Address)
	amount := values[4].(*big.Int)
	deposit := values[5].(*big.Int)

	packedBig := values[6].(*big.Int)
	packed, overflow := uint256.FromBig(packedBig)
	if overflow {
		return nil, fmt.Errorf("decode escrow creation event: timelock word exceeds 256 bits")
	}

	return &EscrowCreated{
		EscrowAddress:          lg.Address,
		OrderHash:              lg.Topics[1],
		SecretHash:             common.Hash(secretHash),
		OwnerCommitment:        owner,
		CounterpartyCommitment: counterparty,
		AssetCommitment:        asset,
		Amount:                 amount,
		SafetyDeposit:          deposit,
		Timelocks:              timelock.Unpack(packed),
	}, nil
}

// Log re-encodes the event in wire form. The simulated chain uses it so
// tests exercise the same codec path in both directions.
func (e *EscrowCreated) Log() (*types.Log, error) {
	packed, err := e.Timelocks.Pack()
	if err != nil {
		return nil, fmt.Errorf("encode escrow creation event: %w", err)
	}
	amount := e.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	deposit := e.SafetyDeposit
	if deposit == nil {
		deposit = new(big.Int)
	}

	data, err := escrowCreatedEvt.Inputs.NonIndexed().Pack(
		[32]byte(e.SecretHash),
		e.OwnerCommitment,
		e.CounterpartyCommitment,
		e.AssetCommitment,
		amount,
		deposit,
		packed.ToBig(),
	)
	if err != nil {
		return nil, fmt.Errorf("encode escrow creation event: %w", err)
	}
	return &types.Log{
		Address: e.EscrowAddress,
		Topics:  []common.Hash{escrowCreatedEvt.ID, e.OrderHash},
		Data:    data,
	}, nil
}
