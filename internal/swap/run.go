package swap

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"fusionswap/internal/retry"
	"fusionswap/internal/store"
	"fusionswap/internal/timelock"
)

// Run drives one swap end to end: accept at the auction price, deploy the
// source escrow, verify and deploy the destination escrow after the
// finality delay, then withdraw both legs with the revealed secret.
//
// The returned SwapResult always reports whatever completed, even on
// error. One settled leg plus one stuck leg returns both the result and a
// PartialSwapError; the stuck leg is an operator recovery, not a retry.
func (c *Coordinator) Run(ctx context.Context, order Order, secret [32]byte, dest DestinationDetails) (*SwapResult, error) {
	result := &SwapResult{
		ID:        newSwapID(),
		OrderHash: order.OrderHash,
		State:     StateCreated,
		Src:       LegOutcome{Role: timelock.RoleSource, Status: LegPending},
		Dst:       LegOutcome{Role: timelock.RoleDestination, Status: LegPending},
	}
	log := c.log.With().Str("swap_id", result.ID).Str("order_hash", order.OrderHash.Hex()).Logger()

	c.metrics.swapStarted()
	defer c.metrics.swapEnded()

	acc, err := c.AcceptOrder(ctx, order)
	if err != nil {
		return result, err
	}
	result.Acceptance = acc
	result.State = StateAccepted

	rec := store.Record{
		ID:             result.ID,
		OrderHash:      order.OrderHash.Hex(),
		SecretHash:     order.SecretHash.Hex(),
		State:          string(StateAccepted),
		AcceptedAmount: acc.Amount.String(),
		AcceptedAt:     acc.At,
	}
	// Nothing is locked yet; failing to persist the accepted amount is
	// the one bookkeeping failure that aborts the swap.
	if err := c.store.Save(ctx, rec); err != nil {
		return result, fmt.Errorf("persist acceptance: %w", err)
	}

	srcRef, evt, err := c.DeploySourceEscrow(ctx, order, acc)
	if err != nil {
		return result, err
	}
	result.Src.Escrow = srcRef.Address
	result.Src.DeployTx = srcRef.DeployTx
	result.State = StateSrcEscrowDeployed

	rec.State = string(StateSrcEscrowDeployed)
	rec.SrcEscrow = srcRef.Address.Hex()
	rec.SrcDeployTx = srcRef.DeployTx.Hex()
	rec.SrcTimelocks = packedHex(srcRef.Timelocks)
	c.persistBestEffort(ctx, log, rec)

	data := CrossChainEventData{
		ReceiverCommitment:      evt.CounterpartyCommitment,
		AssetCommitment:         evt.AssetCommitment,
		Amount:                  acc.Amount,
		Secret:                  secret,
		OriginalReceiverAddress: dest.ReceiverAddress,
		OriginalAssetAddress:    dest.AssetAddress,
	}

	// Source-leg effects must be settled before resolver funds move on
	// the destination chain.
	if err := retry.Sleep(ctx, c.finalityDelay); err != nil {
		return result, err
	}

	dstRef, err := c.DeployDestinationEscrow(ctx, order, data)
	if err != nil {
		return result, err
	}
	result.Dst.Escrow = dstRef.Address
	result.Dst.DeployTx = dstRef.DeployTx
	result.State = StateDstEscrowDeployed

	rec.State = string(StateDstEscrowDeployed)
	rec.DstEscrow = dstRef.Address.Hex()
	rec.DstDeployTx = dstRef.DeployTx.Hex()
	rec.DstTimelocks = packedHex(dstRef.Timelocks)
	c.persistBestEffort(ctx, log, rec)

	// Both escrows exist; each leg now settles against its own clock.
	// A destination failure does not stop the source attempt: the
	// partial result keeps the stuck leg visible for manual recovery.
	c.settleLeg(ctx, dstRef, secret, &result.Dst)
	if result.Dst.settledLike() && result.Dst.SettleTx != (common.Hash{}) {
		rec.DstWithdrawTx = result.Dst.SettleTx.Hex()
	}
	c.settleLeg(ctx, srcRef, secret, &result.Src)
	if result.Src.settledLike() && result.Src.SettleTx != (common.Hash{}) {
		rec.SrcWithdrawTx = result.Src.SettleTx.Hex()
	}

	switch {
	case result.Settled():
		result.State = StateWithdrawn
		rec.State = string(StateWithdrawn)
		c.persistBestEffort(ctx, log, rec)
		c.metrics.swapFinished(StateWithdrawn)
		log.Info().Msg("swap settled on both legs")
		return result, nil

	case result.Partial():
		c.persistBestEffort(ctx, log, rec)
		c.metrics.swapFinished(StateDstEscrowDeployed)
		settled, stuck := result.Dst, result.Src
		if result.Src.settledLike() {
			settled, stuck = result.Src, result.Dst
		}
		perr := &PartialSwapError{SettledLeg: settled.Role, StuckLeg: stuck.Role, Err: stuck.Err}
		log.Error().Err(perr).Msg("swap settled on one leg only")
		return result, perr

	default:
		c.persistBestEffort(ctx, log, rec)
		c.metrics.swapFinished(StateDstEscrowDeployed)
		return result, fmt.Errorf("swap stuck on both legs: source: %v; destination: %v",
			result.Src.Err, result.Dst.Err)
	}
}

// settleLeg waits for the leg's own withdrawal window, then withdraws.
func (c *Coordinator) settleLeg(ctx context.Context, ref *EscrowRef, secret [32]byte, out *LegOutcome) {
	out.Escrow = ref.Address
	out.DeployTx = ref.DeployTx

	if err := retry.WaitUntil(ctx, c.now, ref.Timelocks.WithdrawalAt(ref.Role)); err != nil {
		out.Status, out.Err = LegStuck, err
		return
	}

	txHash, already, err := c.Withdraw(ctx, *ref, secret)
	switch {
	case err != nil:
		out.Status, out.Err = LegStuck, err
	case already:
		out.Status = LegAlreadySettled
	default:
		out.Status, out.SettleTx = LegSettled, txHash
	}
}

// CancelSwap is the operator fallback for dead swaps: every deployed,
// unsettled leg whose cancellation offset has elapsed is refunded.
func (c *Coordinator) CancelSwap(ctx context.Context, id string) (*store.Record, error) {
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load swap %s: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSwap, id)
	}
	if rec.State == string(StateWithdrawn) {
		return rec, fmt.Errorf("%w: %s", ErrSwapSettled, id)
	}

	cancelled := 0
	if rec.SrcEscrow != "" && rec.SrcWithdrawTx == "" && rec.SrcCancelTx == "" {
		txHash, err := c.cancelStored(ctx, timelock.RoleSource, rec.SrcEscrow, rec.SrcTimelocks, rec.SecretHash)
		if err != nil {
			return rec, err
		}
		rec.SrcCancelTx = txHash
		cancelled++
	}
	if rec.DstEscrow != "" && rec.DstWithdrawTx == "" && rec.DstCancelTx == "" {
		txHash, err := c.cancelStored(ctx, timelock.RoleDestination, rec.DstEscrow, rec.DstTimelocks, rec.SecretHash)
		if err != nil {
			return rec, err
		}
		rec.DstCancelTx = txHash
		cancelled++
	}

	if cancelled == 0 {
		return rec, fmt.Errorf("swap %s has no cancellable leg", id)
	}

	rec.State = string(StateCancelled)
	if err := c.store.Save(ctx, *rec); err != nil {
		return rec, fmt.Errorf("persist cancellation: %w", err)
	}
	c.metrics.swapFinished(StateCancelled)
	c.log.Info().Str("swap_id", id).Int("legs", cancelled).Msg("swap cancelled by operator")
	return rec, nil
}

func (c *Coordinator) cancelStored(ctx context.Context, role timelock.Role, escrowHex, timelocksHex, secretHashHex string) (string, error) {
	packed, err := uint256.FromHex(timelocksHex)
	if err != nil {
		return "", &ValidationError{Reason: fmt.Sprintf("stored %s timelocks: %v", role, err)}
	}
	ref := EscrowRef{
		Role:       role,
		Address:    common.HexToAddress(escrowHex),
		SecretHash: common.HexToHash(secretHashHex),
		Timelocks:  timelock.Unpack(packed),
	}

	txHash, already, err := c.Cancel(ctx, ref)
	if err != nil {
		return "", err
	}
	if already {
		return "already-settled", nil
	}
	return txHash.Hex(), nil
}

func (c *Coordinator) persistBestEffort(ctx context.Context, log zerolog.Logger, rec store.Record) {
	if err := c.store.Save(ctx, rec); err != nil {
		// Funds safety outranks bookkeeping once escrows exist; the swap
		// keeps going and the gap is logged for reconciliation.
		log.Error().Err(err).Str("state", rec.State).Msg("failed to persist swap state")
	}
}

func packedHex(t timelock.Timelocks) string {
	packed, err := t.Pack()
	if err != nil {
		return ""
	}
	return packed.Hex()
}
