package store

import (
	"context"
	"sync"
	"time"
)

// Record is the persisted view of one swap instance: its state machine
// position, the amount fixed at acceptance, and every transaction hash the
// coordinator produced. An operator locating a stuck leg starts here.
type Record struct {
	ID             string    `json:"id"`
	OrderHash      string    `json:"orderHash"`
	SecretHash     string    `json:"secretHash"`
	State          string    `json:"state"`
	AcceptedAmount string    `json:"acceptedAmount"`
	AcceptedAt     time.Time `json:"acceptedAt"`

	SrcEscrow     string `json:"srcEscrow,omitempty"`
	DstEscrow     string `json:"dstEscrow,omitempty"`
	SrcTimelocks  string `json:"srcTimelocks,omitempty"` // packed word, hex
	DstTimelocks  string `json:"dstTimelocks,omitempty"`
	SrcDeployTx   string `json:"srcDeployTx,omitempty"`
	DstDeployTx   string `json:"dstDeployTx,omitempty"`
	SrcWithdrawTx string `json:"srcWithdrawTx,omitempty"`
	DstWithdrawTx string `json:"dstWithdrawTx,omitempty"`
	SrcCancelTx   string `json:"srcCancelTx,omitempty"`
	DstCancelTx   string `json:"dstCancelTx,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store abstracts swap-state persistence. Get returns (nil, nil) for an
// unknown ID.
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	Save(ctx context.Context, record Record) error
}

// MemoryStore backs tests and key-less dev runs.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Record)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Save(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.UpdatedAt = time.Now()
	if existing, ok := m.data[record.ID]; ok {
		record.CreatedAt = existing.CreatedAt
	} else if record.CreatedAt.IsZero() {
		record.CreatedAt = record.UpdatedAt
	}
	m.data[record.ID] = record
	return nil
}
