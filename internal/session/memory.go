package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for local runs and tests.
// Lookups by customer or order return the oldest matching record.
type MemoryStore struct {
	mu     sync.RWMutex
	byCart map[string]*Record
	order  []string
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byCart: make(map[string]*Record),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) FindByCartToken(_ context.Context, cartToken string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.byCart[cartToken]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) FindByCustomerID(_ context.Context, customerID string) (*Record, error) {
	return s.findFirst(func(r *Record) bool { return customerID != "" && r.CustomerID == customerID }), nil
}

func (s *MemoryStore) FindByOrderID(_ context.Context, orderID string) (*Record, error) {
	return s.findFirst(func(r *Record) bool { return orderID != "" && r.OrderID == orderID }), nil
}

func (s *MemoryStore) findFirst(match func(*Record) bool) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, token := range s.order {
		if r := s.byCart[token]; match(r) {
			cp := *r
			return &cp
		}
	}
	return nil
}

func (s *MemoryStore) Create(_ context.Context, rec Record) (*Record, error) {
	if rec.CartToken == "" {
		return nil, persistErr("create", ErrMissingCartToken)
	}
	if rec.SessionID == "" {
		return nil, persistErr("create", fmt.Errorf("empty session id"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byCart[rec.CartToken]; ok {
		cp := *existing
		return &cp, nil
	}

	stamp := s.now().Format(time.RFC3339)
	rec.CreatedAt = stamp
	rec.UpdatedAt = stamp
	stored := rec
	s.byCart[rec.CartToken] = &stored
	s.order = append(s.order, rec.CartToken)
	return &rec, nil
}

func (s *MemoryStore) Update(_ context.Context, cartToken string, patch Patch) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byCart[cartToken]
	if !ok {
		return nil, nil
	}
	if patch.CustomerID != nil {
		r.CustomerID = *patch.CustomerID
	}
	if patch.OrderID != nil {
		r.OrderID = *patch.OrderID
	}
	if !patch.empty() {
		r.UpdatedAt = s.now().Format(time.RFC3339)
	}
	cp := *r
	return &cp, nil
}
