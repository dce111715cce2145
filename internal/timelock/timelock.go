package timelock

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/holiman/uint256"
)

// Role identifies which leg of the swap an escrow (and its timelock
// schedule) belongs to.
type Role string

const (
	RoleSource      Role = "source"
	RoleDestination Role = "destination"
)

var (
	ErrFieldOverflow = errors.New("timelock field exceeds 32 bits")
	ErrOffsetOrder   = errors.New("timelock offsets out of order")
)

// Timelocks is the in-memory form of an escrow's timelock schedule:
// a deployment timestamp plus seven offsets in seconds, each scoped to its
// chain role. The schedule is only serialized to the packed 256-bit word at
// the chain boundary.
//
// Offsets must be strictly increasing within their role. Each leg anchors
// DeployedAt at its own escrow creation time; the source schedule never
// reuses the destination's anchor.
type Timelocks struct {
	DeployedAt uint64 // unix seconds

	SrcWithdrawal         uint64
	SrcPublicWithdrawal   uint64
	SrcCancellation       uint64
	SrcPublicCancellation uint64

	DstWithdrawal       uint64
	DstPublicWithdrawal uint64
	DstCancellation     uint64
}

// lane order mirrors the packed layout: DeployedAt occupies the low 32
// bits, offsets follow in successive 32-bit lanes.
func (t Timelocks) lanes() [8]uint64 {
	return [8]uint64{
		t.DeployedAt,
		t.SrcWithdrawal, t.SrcPublicWithdrawal, t.SrcCancellation, t.SrcPublicCancellation,
		t.DstWithdrawal, t.DstPublicWithdrawal, t.DstCancellation,
	}
}

var laneNames = [8]string{
	"deployedAt",
	"srcWithdrawal", "srcPublicWithdrawal", "srcCancellation", "srcPublicCancellation",
	"dstWithdrawal", "dstPublicWithdrawal", "dstCancellation",
}

// Validate checks per-field range and role-scoped ordering. A violated
// ordering is a configuration error, never a runtime condition.
func (t Timelocks) Validate() error {
	for i, v := range t.lanes() {
		if v > math.MaxUint32 {
			return fmt.Errorf("%w: %s=%d", ErrFieldOverflow, laneNames[i], v)
		}
	}
	if !(t.SrcWithdrawal < t.SrcPublicWithdrawal &&
		t.SrcPublicWithdrawal < t.SrcCancellation &&
		t.SrcCancellation < t.SrcPublicCancellation) {
		return fmt.Errorf("%w: source offsets must strictly increase", ErrOffsetOrder)
	}
	if !(t.DstWithdrawal < t.DstPublicWithdrawal &&
		t.DstPublicWithdrawal < t.DstCancellation) {
		return fmt.Errorf("%w: destination offsets must strictly increase", ErrOffsetOrder)
	}
	return nil
}

// Pack serializes the schedule into a single 256-bit word, eight 32-bit
// lanes wide. Fields that do not fit fail validation; nothing is silently
// truncated.
func (t Timelocks) Pack() (*uint256.Int, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	packed := new(uint256.Int)
	lanes := t.lanes()
	for i := len(lanes) - 1; i >= 0; i-- {
		packed.Lsh(packed, 32)
		packed.Or(packed, uint256.NewInt(lanes[i]))
	}
	return packed, nil
}

// Unpack inverts Pack. Round-trip law: Unpack(Pack(t)) == t for every
// valid t.
func Unpack(packed *uint256.Int) Timelocks {
	v := packed.Clone()
	mask := uint256.NewInt(math.MaxUint32)
	var lanes [8]uint64
	for i := range lanes {
		lanes[i] = new(uint256.Int).And(v, mask).Uint64()
		v.Rsh(v, 32)
	}
	return Timelocks{
		DeployedAt:            lanes[0],
		SrcWithdrawal:         lanes[1],
		SrcPublicWithdrawal:   lanes[2],
		SrcCancellation:       lanes[3],
		SrcPublicCancellation: lanes[4],
		DstWithdrawal:         lanes[5],
		DstPublicWithdrawal:   lanes[6],
		DstCancellation:       lanes[7],
	}
}

// AnchoredAt returns a copy of the schedule with DeployedAt set to the
// given instant. Offsets are relative, so anchoring is the only per-leg
// adjustment.
func (t Timelocks) AnchoredAt(at time.Time) Timelocks {
	t.DeployedAt = uint64(at.Unix())
	return t
}

func (t Timelocks) at(offset uint64) time.Time {
	return time.Unix(int64(t.DeployedAt+offset), 0)
}

// WithdrawalAt is the instant the role's private withdrawal window opens.
func (t Timelocks) WithdrawalAt(role Role) time.Time {
	if role == RoleSource {
		return t.at(t.SrcWithdrawal)
	}
	return t.at(t.DstWithdrawal)
}

// PublicWithdrawalAt is the instant any resolver may execute the
// withdrawal on the role's behalf.
func (t Timelocks) PublicWithdrawalAt(role Role) time.Time {
	if role == RoleSource {
		return t.at(t.SrcPublicWithdrawal)
	}
	return t.at(t.DstPublicWithdrawal)
}

// CancellationAt is the instant the role's escrow becomes refundable; it
// also closes the withdrawal window.
func (t Timelocks) CancellationAt(role Role) time.Time {
	if role == RoleSource {
		return t.at(t.SrcCancellation)
	}
	return t.at(t.DstCancellation)
}

// PublicCancellationAt exists only on the source leg.
func (t Timelocks) PublicCancellationAt(role Role) (time.Time, bool) {
	if role == RoleSource {
		return t.at(t.SrcPublicCancellation), true
	}
	return time.Time{}, false
}
