package session

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockStore is a testify mock of Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) FindByCartToken(ctx context.Context, cartToken string) (*Record, error) {
	args := m.Called(ctx, cartToken)
	return recordArg(args, 0), args.Error(1)
}

func (m *MockStore) FindByCustomerID(ctx context.Context, customerID string) (*Record, error) {
	args := m.Called(ctx, customerID)
	return recordArg(args, 0), args.Error(1)
}

func (m *MockStore) FindByOrderID(ctx context.Context, orderID string) (*Record, error) {
	args := m.Called(ctx, orderID)
	return recordArg(args, 0), args.Error(1)
}

func (m *MockStore) Create(ctx context.Context, rec Record) (*Record, error) {
	args := m.Called(ctx, rec)
	return recordArg(args, 0), args.Error(1)
}

func (m *MockStore) Update(ctx context.Context, cartToken string, patch Patch) (*Record, error) {
	args := m.Called(ctx, cartToken, patch)
	return recordArg(args, 0), args.Error(1)
}

func recordArg(args mock.Arguments, i int) *Record {
	r, _ := args.Get(i).(*Record)
	return r
}
