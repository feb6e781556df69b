package session

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPersistence marks any failure talking to the session store.
	ErrPersistence = errors.New("session store")

	// ErrMissingCartToken is returned by Create when the record has no cart token.
	ErrMissingCartToken = errors.New("session record requires a cart token")
)

// Record correlates a storefront session with the Shopify identifiers seen
// for it. At most one record exists per cart token.
type Record struct {
	SessionID  string `dynamodbav:"SessionId" json:"sessionId"`
	CartToken  string `dynamodbav:"CartToken,omitempty" json:"cartToken,omitempty"`
	CustomerID string `dynamodbav:"CustomerId,omitempty" json:"customerId,omitempty"`
	OrderID    string `dynamodbav:"OrderId,omitempty" json:"orderId,omitempty"`
	CreatedAt  string `dynamodbav:"CreatedAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt  string `dynamodbav:"UpdatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Patch lists the fields Update may set. Nil fields are left untouched.
type Patch struct {
	CustomerID *string
	OrderID    *string
}

func (p Patch) empty() bool {
	return p.CustomerID == nil && p.OrderID == nil
}

// Store persists session records. Finders return (nil, nil) when nothing
// matches. Every error returned is a *PersistenceError.
type Store interface {
	FindByCartToken(ctx context.Context, cartToken string) (*Record, error)
	FindByCustomerID(ctx context.Context, customerID string) (*Record, error)
	FindByOrderID(ctx context.Context, orderID string) (*Record, error)

	// Create inserts rec unless a record with the same cart token exists, in
	// which case the existing record is returned unchanged.
	Create(ctx context.Context, rec Record) (*Record, error)

	// Update applies patch to the record keyed by cartToken and returns the
	// updated record, or (nil, nil) when there is none.
	Update(ctx context.Context, cartToken string, patch Patch) (*Record, error)
}

// PersistenceError wraps a store failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
