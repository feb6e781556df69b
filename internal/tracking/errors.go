package tracking

import (
	"errors"
	"fmt"

	"github.com/MX-Development/SimonData-Connector/internal/shopify"
)

var (
	// ErrMalformedEvent marks payloads missing fields their topic requires.
	ErrMalformedEvent = errors.New("malformed event")

	ErrUnsupportedTopic = errors.New("unsupported topic")
)

// MalformedEventError names one missing or invalid payload field. It is
// never fatal: the events that could be built are still returned.
type MalformedEventError struct {
	Topic  shopify.Topic
	Field  string
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s event: %s: %s", e.Topic, e.Field, e.Reason)
}

func (e *MalformedEventError) Unwrap() error {
	return ErrMalformedEvent
}
