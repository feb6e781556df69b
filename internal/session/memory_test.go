package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCreateIsUpsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.Create(ctx, Record{SessionID: "sid_first", CartToken: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "sid_first", first.SessionID)
	assert.NotEmpty(t, first.CreatedAt)

	second, err := s.Create(ctx, Record{SessionID: "sid_second", CartToken: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "sid_first", second.SessionID)

	got, err := s.FindByCartToken(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "sid_first", got.SessionID)
}

func TestMemoryStoreCreateRequiresCartToken(t *testing.T) {
	_, err := NewMemoryStore().Create(context.Background(), Record{SessionID: "sid_x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, ErrMissingCartToken))
}

func TestMemoryStoreFindMisses(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	r, err := s.FindByCartToken(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, r)

	r, err = s.FindByCustomerID(ctx, "")
	assert.NoError(t, err)
	assert.Nil(t, r)

	r, err = s.FindByOrderID(ctx, "42")
	assert.NoError(t, err)
	assert.Nil(t, r)
}

func TestMemoryStoreUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Create(ctx, Record{SessionID: "sid_a", CartToken: "c1"})
	require.NoError(t, err)

	orderID := "1001"
	updated, err := s.Update(ctx, "c1", Patch{OrderID: &orderID})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "1001", updated.OrderID)

	byOrder, err := s.FindByOrderID(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, "sid_a", byOrder.SessionID)

	missing, err := s.Update(ctx, "c-unknown", Patch{OrderID: &orderID})
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStoreFirstMatchWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, _ = s.Create(ctx, Record{SessionID: "sid_old", CartToken: "c1", CustomerID: "cust"})
	_, _ = s.Create(ctx, Record{SessionID: "sid_new", CartToken: "c2", CustomerID: "cust"})

	r, err := s.FindByCustomerID(ctx, "cust")
	require.NoError(t, err)
	assert.Equal(t, "sid_old", r.SessionID)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, _ = s.Create(ctx, Record{SessionID: "sid_a", CartToken: "c1"})

	r, _ := s.FindByCartToken(ctx, "c1")
	r.SessionID = "mutated"

	again, _ := s.FindByCartToken(ctx, "c1")
	assert.Equal(t, "sid_a", again.SessionID)
}
