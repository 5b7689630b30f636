package arbitrage

import (
	"context"
	"sync"
)

// MockStorage is an in-memory opportunity store for tests.
// It lives in this package to avoid import cycles with internal/storage.
type MockStorage struct {
	Opportunities []*Opportunity
	mu            sync.Mutex
}

// NewMockStorage creates a new mock storage.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		Opportunities: make([]*Opportunity, 0),
	}
}

// StoreOpportunity stores a copy of opp.
func (m *MockStorage) StoreOpportunity(ctx context.Context, opp *Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oppCopy := *opp
	m.Opportunities = append(m.Opportunities, &oppCopy)
	return nil
}

// GetOpportunities returns all stored opportunities.
func (m *MockStorage) GetOpportunities() []*Opportunity {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*Opportunity, len(m.Opportunities))
	copy(result, m.Opportunities)
	return result
}
