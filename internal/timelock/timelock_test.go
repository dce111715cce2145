package timelock

import (
	"errors"
	"math"
	"testing"
	"time"
)

func validSchedule() Timelocks {
	return Timelocks{
		DeployedAt:            1700000000,
		SrcWithdrawal:         120,
		SrcPublicWithdrawal:   600,
		SrcCancellation:       3600,
		SrcPublicCancellation: 7200,
		DstWithdrawal:         60,
		DstPublicWithdrawal:   300,
		DstCancellation:       1800,
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []Timelocks{
		validSchedule(),
		{
			DeployedAt:            math.MaxUint32,
			SrcWithdrawal:         1,
			SrcPublicWithdrawal:   2,
			SrcCancellation:       3,
			SrcPublicCancellation: math.MaxUint32,
			DstWithdrawal:         1,
			DstPublicWithdrawal:   2,
			DstCancellation:       math.MaxUint32,
		},
	}
	for _, tl := range cases {
		packed, err := tl.Pack()
		if err != nil {
			t.Fatalf("pack: %v", err)
		}
		if got := Unpack(packed); got != tl {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, tl)
		}
	}
}

func TestPackRejectsOverflow(t *testing.T) {
	tl := validSchedule()
	tl.SrcCancellation = math.MaxUint32 + 1
	tl.SrcPublicCancellation = math.MaxUint32 + 2

	_, err := tl.Pack()
	if !errors.Is(err, ErrFieldOverflow) {
		t.Fatalf("expected ErrFieldOverflow, got %v", err)
	}
}

func TestPackRejectsDisorderedOffsets(t *testing.T) {
	src := validSchedule()
	src.SrcPublicWithdrawal = src.SrcWithdrawal // not strictly increasing
	if _, err := src.Pack(); !errors.Is(err, ErrOffsetOrder) {
		t.Fatalf("expected ErrOffsetOrder for source, got %v", err)
	}

	dst := validSchedule()
	dst.DstCancellation = dst.DstWithdrawal
	if _, err := dst.Pack(); !errors.Is(err, ErrOffsetOrder) {
		t.Fatalf("expected ErrOffsetOrder for destination, got %v", err)
	}
}

func TestAnchoredAt(t *testing.T) {
	tl := validSchedule()
	at := time.Unix(1800000000, 0)

	anchored := tl.AnchoredAt(at)
	if anchored.DeployedAt != 1800000000 {
		t.Fatalf("expected anchor 1800000000, got %d", anchored.DeployedAt)
	}
	if anchored.SrcWithdrawal != tl.SrcWithdrawal {
		t.Fatal("anchoring must not touch offsets")
	}
	if tl.DeployedAt != 1700000000 {
		t.Fatal("AnchoredAt must not mutate the receiver")
	}
}

func TestWindowInstants(t *testing.T) {
	tl := validSchedule()
	base := time.Unix(int64(tl.DeployedAt), 0)

	if got := tl.WithdrawalAt(RoleDestination); !got.Equal(base.Add(60 * time.Second)) {
		t.Fatalf("dst withdrawal at %v", got)
	}
	if got := tl.CancellationAt(RoleSource); !got.Equal(base.Add(time.Hour)) {
		t.Fatalf("src cancellation at %v", got)
	}
	if _, ok := tl.PublicCancellationAt(RoleDestination); ok {
		t.Fatal("destination leg has no public cancellation")
	}
	if got, ok := tl.PublicCancellationAt(RoleSource); !ok || !got.Equal(base.Add(2*time.Hour)) {
		t.Fatalf("src public cancellation at %v ok=%v", got, ok)
	}
}
