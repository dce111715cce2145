package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if rec, _ := s.Get(ctx, "missing"); rec != nil {
		t.Fatal("expected nil for unknown swap")
	}

	rec := Record{
		ID:             "swap-1",
		OrderHash:      "0x01",
		SecretHash:     "0x02",
		State:          "ACCEPTED",
		AcceptedAmount: "100",
		AcceptedAt:     time.Now(),
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Get(ctx, "swap-1")
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.State != "ACCEPTED" || got.AcceptedAmount != "100" {
		t.Fatalf("unexpected record: %+v", got)
	}
	created := got.CreatedAt

	rec.State = "DST_ESCROW_DEPLOYED"
	rec.DstEscrow = "0xdd"
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("save update: %v", err)
	}

	got, _ = s.Get(ctx, "swap-1")
	if got.State != "DST_ESCROW_DEPLOYED" || got.DstEscrow != "0xdd" {
		t.Fatalf("update lost: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatal("update must preserve creation time")
	}
	if got.UpdatedAt.Before(created) {
		t.Fatal("update must advance updated time")
	}
}

func TestMemoryStoreReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Save(ctx, Record{ID: "swap-2", State: "CREATED"})
	first, _ := s.Get(ctx, "swap-2")
	first.State = "MUTATED"

	second, _ := s.Get(ctx, "swap-2")
	if second.State != "CREATED" {
		t.Fatal("Get must not expose internal state to mutation")
	}
}
