package metadata

import (
	"context"
	"sync"
	"time"
)

// Binding associates an on-chain request id with the off-chain UPI identity
// the payer needs to settle it.
type Binding struct {
	ID        string    `json:"id,omitempty"`
	RequestID uint64    `json:"requestId"`
	UPIID     string    `json:"upiId"`
	PayeeName string    `json:"payeeName,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Store abstracts metadata persistence. Get returns (nil, nil) when no
// binding is known; callers substitute the platform fallback identity.
type Store interface {
	Get(ctx context.Context, requestID uint64) (*Binding, error)
	Put(ctx context.Context, binding Binding) error
}

// MemoryStore is mostly for testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[uint64]Binding
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[uint64]Binding)}
}

func (m *MemoryStore) Get(_ context.Context, requestID uint64) (*Binding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[requestID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *MemoryStore) Put(_ context.Context, binding Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[binding.RequestID] = binding
	return nil
}
