package swap

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fusionswap/internal/chain"
	"fusionswap/internal/commitment"
	"fusionswap/internal/events"
	"fusionswap/internal/retry"
	"fusionswap/internal/store"
	"fusionswap/internal/timelock"
)

// Config wires one coordinator. Everything is explicit: clients, signer
// identity, codec, store, clock. There is no process-wide chain or
// account state.
type Config struct {
	Source      chain.Client
	Destination chain.Client

	// Resolver is this service's settlement identity; it becomes the
	// owner of destination escrows and the counterparty of source ones.
	Resolver common.Address

	Codec   commitment.Codec
	Store   store.Store
	Logger  zerolog.Logger
	Metrics *Metrics

	RetryPolicy   retry.Policy
	FinalityDelay time.Duration

	// Timelocks carries the configured offsets; DeployedAt is ignored
	// and re-anchored at each leg's own deployment instant.
	Timelocks timelock.Timelocks

	SafetyDeposit    *big.Int
	RejectFloorFills bool

	Now func() time.Time
}

// Coordinator drives the two-phase escrow state machine for individual
// swaps. Instances are safe for concurrent swaps: the only shared state
// is configuration and the chain clients, which support concurrent calls.
type Coordinator struct {
	src      chain.Client
	dst      chain.Client
	resolver common.Address

	codec   commitment.Codec
	store   store.Store
	log     zerolog.Logger
	metrics *Metrics

	policy        retry.Policy
	finalityDelay time.Duration
	timelocks     timelock.Timelocks
	safetyDeposit *big.Int
	rejectFloor   bool

	now func() time.Time
}

func New(cfg Config) (*Coordinator, error) {
	if cfg.Source == nil || cfg.Destination == nil {
		return nil, fmt.Errorf("both chain clients are required")
	}
	if cfg.Codec == nil {
		cfg.Codec = commitment.NewKeccak160()
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SafetyDeposit == nil {
		cfg.SafetyDeposit = new(big.Int)
	}
	if err := cfg.Timelocks.Validate(); err != nil {
		return nil, fmt.Errorf("configured timelocks: %w", err)
	}
	policy := cfg.RetryPolicy
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}

	return &Coordinator{
		src:           cfg.Source,
		dst:           cfg.Destination,
		resolver:      cfg.Resolver,
		codec:         cfg.Codec,
		store:         cfg.Store,
		log:           cfg.Logger,
		metrics:       cfg.Metrics,
		policy:        policy,
		finalityDelay: cfg.FinalityDelay,
		timelocks:     cfg.Timelocks,
		safetyDeposit: cfg.SafetyDeposit,
		rejectFloor:   cfg.RejectFloorFills,
		now:           cfg.Now,
	}, nil
}

func (c *Coordinator) clientFor(role timelock.Role) chain.Client {
	if role == timelock.RoleSource {
		return c.src
	}
	return c.dst
}

// AcceptOrder resolves the auction price at the current instant. The
// returned amount is what settlement uses; it must be persisted before
// any escrow is created (Run does so).
func (c *Coordinator) AcceptOrder(_ context.Context, order Order) (Acceptance, error) {
	if order.SecretHash == (common.Hash{}) {
		return Acceptance{}, &ValidationError{Reason: "order has no secret hash"}
	}
	if !order.SourceAmount.IsPositive() {
		return Acceptance{}, &ValidationError{Reason: "source amount must be positive"}
	}

	now := c.now()
	amount, err := order.Auction.AmountAt(now)
	if err != nil {
		return Acceptance{}, err
	}
	if c.rejectFloor && order.Auction.AtFloor(now) {
		return Acceptance{}, &StaleOrderError{OrderHash: order.OrderHash}
	}

	c.log.Info().
		Str("order_hash", order.OrderHash.Hex()).
		Str("amount", amount.String()).
		Time("at", now).
		Msg("order accepted")

	return Acceptance{Amount: amount, At: now}, nil
}

// DeploySourceEscrow locks the maker's funds under the order's hashlock.
// It requires a prior acceptance: the accepted amount is what the
// destination leg will owe, and deploying without one would lock maker
// funds against an unpriced fill. The emitted creation event carries the
// destination-leg commitments; the returned event is the input to the
// destination deployment.
func (c *Coordinator) DeploySourceEscrow(ctx context.Context, order Order, acc Acceptance) (*EscrowRef, *events.EscrowCreated, error) {
	if acc.At.IsZero() || !acc.Amount.IsPositive() {
		return nil, nil, &ValidationError{Reason: "source escrow deployment requires an accepted order"}
	}

	anchored := c.timelocks.AnchoredAt(c.now())
	packed, err := anchored.Pack()
	if err != nil {
		return nil, nil, &ValidationError{Reason: err.Error()}
	}

	txHash, err := c.submit(ctx, timelock.RoleSource, chain.MethodCreateEscrow,
		[32]byte(order.OrderHash),
		[32]byte(order.SecretHash),
		order.Maker,
		common.Address(order.DestRecipientCommitment),
		common.Address(order.DestAssetCommitment),
		order.SourceAmount.BigInt(),
		c.safetyDeposit,
		packed.ToBig(),
	)
	if err != nil {
		return nil, nil, err
	}

	evt, err := c.waitEscrowCreated(ctx, timelock.RoleSource, txHash)
	if err != nil {
		return nil, nil, err
	}
	if evt.SecretHash != order.SecretHash {
		return nil, nil, &ValidationError{Reason: "source escrow event carries a foreign secret hash"}
	}

	c.metrics.escrowDeployed("source")
	c.log.Info().
		Str("order_hash", order.OrderHash.Hex()).
		Str("escrow", evt.EscrowAddress.Hex()).
		Str("tx", txHash.Hex()).
		Str("accepted_amount", acc.Amount.String()).
		Msg("source escrow deployed")

	ref := &EscrowRef{
		Role:       timelock.RoleSource,
		Address:    evt.EscrowAddress,
		SecretHash: evt.SecretHash,
		Timelocks:  evt.Timelocks,
		Amount:     evt.Amount,
		DeployTx:   txHash,
	}
	return ref, evt, nil
}

// DeployDestinationEscrow verifies the relayed commitments and, only
// then, locks resolver funds on the destination chain. Timelocks anchor
// at destination deployment time, never at the source's.
func (c *Coordinator) DeployDestinationEscrow(ctx context.Context, order Order, data CrossChainEventData) (*EscrowRef, error) {
	if err := c.verifyEventData(order, data); err != nil {
		return nil, err
	}

	anchored := c.timelocks.AnchoredAt(c.now())
	packed, err := anchored.Pack()
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	txHash, err := c.submit(ctx, timelock.RoleDestination, chain.MethodCreateEscrow,
		[32]byte(order.OrderHash),
		[32]byte(order.SecretHash),
		c.resolver,
		common.Address(data.ReceiverCommitment),
		common.Address(data.AssetCommitment),
		data.Amount.BigInt(),
		c.safetyDeposit,
		packed.ToBig(),
	)
	if err != nil {
		return nil, err
	}

	evt, err := c.waitEscrowCreated(ctx, timelock.RoleDestination, txHash)
	if err != nil {
		return nil, err
	}

	c.metrics.escrowDeployed("destination")
	c.log.Info().
		Str("order_hash", order.OrderHash.Hex()).
		Str("escrow", evt.EscrowAddress.Hex()).
		Str("tx", txHash.Hex()).
		Msg("destination escrow deployed")

	return &EscrowRef{
		Role:       timelock.RoleDestination,
		Address:    evt.EscrowAddress,
		SecretHash: evt.SecretHash,
		Timelocks:  evt.Timelocks,
		Amount:     evt.Amount,
		DeployTx:   txHash,
	}, nil
}

// verifyEventData gates destination deployment. A mismatch is logged with
// both digests for audit and reported without submitting anything; it is
// indistinguishable from spoofing and must not be retried.
func (c *Coordinator) verifyEventData(order Order, data CrossChainEventData) error {
	if err := commitment.VerifyField(c.codec, "recipient", data.OriginalReceiverAddress, data.ReceiverCommitment); err != nil {
		c.logMismatch(order, err)
		return err
	}
	if err := commitment.VerifyField(c.codec, "asset", data.OriginalAssetAddress, data.AssetCommitment); err != nil {
		c.logMismatch(order, err)
		return err
	}

	observed := common.Hash(sha256.Sum256(data.Secret[:]))
	if observed != order.SecretHash {
		err := &HashMismatchError{Expected: order.SecretHash, Observed: observed}
		c.log.Error().
			Str("order_hash", order.OrderHash.Hex()).
			Str("expected", err.Expected.Hex()).
			Str("observed", err.Observed.Hex()).
			Msg("relayed secret does not match order hashlock")
		return err
	}
	return nil
}

func (c *Coordinator) logMismatch(order Order, err error) {
	var mismatch *commitment.MismatchError
	evt := c.log.Error().Str("order_hash", order.OrderHash.Hex())
	if errors.As(err, &mismatch) {
		evt = evt.
			Str("field", mismatch.Field).
			Str("expected", mismatch.Expected.Hex()).
			Str("observed", mismatch.Observed.Hex())
	}
	evt.Msg("address commitment verification failed")
}

// Withdraw presents the secret to one leg's escrow. Each leg is causally
// independent once both escrows exist; the only coupling is the shared
// secret value.
func (c *Coordinator) Withdraw(ctx context.Context, ref EscrowRef, secret [32]byte) (common.Hash, bool, error) {
	observed := common.Hash(sha256.Sum256(secret[:]))
	if observed != ref.SecretHash {
		err := &HashMismatchError{Expected: ref.SecretHash, Observed: observed}
		c.log.Error().
			Str("escrow", ref.Address.Hex()).
			Str("expected", err.Expected.Hex()).
			Str("observed", err.Observed.Hex()).
			Msg("refusing withdrawal with wrong secret")
		return common.Hash{}, false, err
	}

	now := c.now()
	if opens := ref.Timelocks.WithdrawalAt(ref.Role); now.Before(opens) {
		return common.Hash{}, false, &NotYetWithdrawableError{Role: ref.Role, OpensAt: opens}
	}
	if closes := ref.Timelocks.CancellationAt(ref.Role); !now.Before(closes) {
		return common.Hash{}, false, &WindowClosedError{Role: ref.Role, ClosedAt: closes}
	}

	txHash, err := c.submit(ctx, ref.Role, chain.MethodWithdraw, ref.Address, secret)
	if err != nil {
		if errors.Is(err, chain.ErrAlreadySettled) {
			c.log.Info().Str("escrow", ref.Address.Hex()).Msg("escrow already settled on chain")
			c.metrics.settlement(string(ref.Role), "already_settled")
			return common.Hash{}, true, nil
		}
		c.metrics.settlement(string(ref.Role), "failed")
		return common.Hash{}, false, err
	}

	c.metrics.settlement(string(ref.Role), "withdrawn")
	c.log.Info().
		Str("escrow", ref.Address.Hex()).
		Str("tx", txHash.Hex()).
		Str("leg", string(ref.Role)).
		Msg("escrow withdrawn")
	return txHash, false, nil
}

// WithdrawPublic executes a withdrawal on behalf of another resolver.
// It is only legal between the leg's public-withdrawal offset and its
// cancellation offset; before that the window belongs to the escrow's
// own parties.
func (c *Coordinator) WithdrawPublic(ctx context.Context, ref EscrowRef, secret [32]byte) (common.Hash, bool, error) {
	if opens := ref.Timelocks.PublicWithdrawalAt(ref.Role); c.now().Before(opens) {
		return common.Hash{}, false, &NotYetWithdrawableError{Role: ref.Role, OpensAt: opens}
	}
	return c.Withdraw(ctx, ref, secret)
}

// CancelPublic is the third-party refund path. Only the source leg has a
// public-cancellation lane.
func (c *Coordinator) CancelPublic(ctx context.Context, ref EscrowRef) (common.Hash, bool, error) {
	opens, ok := ref.Timelocks.PublicCancellationAt(ref.Role)
	if !ok {
		return common.Hash{}, false, &ValidationError{Reason: "destination escrows have no public cancellation"}
	}
	if c.now().Before(opens) {
		return common.Hash{}, false, &NotYetCancellableError{Role: ref.Role, OpensAt: opens}
	}
	return c.Cancel(ctx, ref)
}

// Cancel refunds one leg after its cancellation offset. The coordinator
// never triggers this on its own; it is the operator fallback for dead
// swaps.
func (c *Coordinator) Cancel(ctx context.Context, ref EscrowRef) (common.Hash, bool, error) {
	if opens := ref.Timelocks.CancellationAt(ref.Role); c.now().Before(opens) {
		return common.Hash{}, false, &NotYetCancellableError{Role: ref.Role, OpensAt: opens}
	}

	txHash, err := c.submit(ctx, ref.Role, chain.MethodCancel, ref.Address)
	if err != nil {
		if errors.Is(err, chain.ErrAlreadySettled) {
			return common.Hash{}, true, nil
		}
		return common.Hash{}, false, err
	}

	c.metrics.settlement(string(ref.Role), "cancelled")
	c.log.Info().
		Str("escrow", ref.Address.Hex()).
		Str("tx", txHash.Hex()).
		Str("leg", string(ref.Role)).
		Msg("escrow cancelled")
	return txHash, false, nil
}

// submit sends one transaction under the bounded retry policy.
func (c *Coordinator) submit(ctx context.Context, role timelock.Role, method string, args ...any) (common.Hash, error) {
	client := c.clientFor(role)
	return retry.Do(ctx, c.log, c.policy, string(role)+"/"+method,
		func(ctx context.Context) (common.Hash, error) {
			h, err := client.Transact(ctx, method, args...)
			return h, classifyChainErr(err)
		})
}

// waitEscrowCreated locates the deployed escrow by polling the receipt
// and scanning its logs. The node legitimately reports nothing on early
// polls; that is backoff, not failure.
func (c *Coordinator) waitEscrowCreated(ctx context.Context, role timelock.Role, txHash common.Hash) (*events.EscrowCreated, error) {
	client := c.clientFor(role)
	return retry.Do(ctx, c.log, c.policy, string(role)+"/escrow-discovery",
		func(ctx context.Context) (*events.EscrowCreated, error) {
			receipt, err := client.Receipt(ctx, txHash)
			if err != nil {
				return nil, err // ErrReceiptNotFound retries
			}
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, retry.Permanent(fmt.Errorf("transaction %s reverted", txHash.Hex()))
			}
			evt, err := events.ExtractEscrowCreated(receipt.Logs)
			if err != nil {
				if errors.Is(err, events.ErrNotVisible) {
					return nil, err // eventual consistency, retry
				}
				return nil, retry.Permanent(err)
			}
			return evt, nil
		})
}

// classifyChainErr maps chain client errors onto the retry taxonomy.
// Transport failures and nonce races retry; reverts and terminal escrow
// states do not.
func classifyChainErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, chain.ErrNonceTooLow) || errors.Is(err, chain.ErrReceiptNotFound) {
		return err
	}
	var sub *chain.SubmissionError
	if errors.As(err, &sub) {
		return err
	}
	return retry.Permanent(err)
}

func newSwapID() string { return uuid.NewString() }
