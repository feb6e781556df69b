package handlers

import (
	"context"
	"sync"

	"github.com/MX-Development/SimonData-Connector/internal/shopify"
)

// Dispatcher takes a verified webhook off the request path. Dispatch must
// return before the event is delivered.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev shopify.Event) error
}

// Background processes webhooks in goroutines of this process.
type Background struct {
	ctx  context.Context
	proc Processor
	wg   sync.WaitGroup
}

func NewBackground(ctx context.Context, proc Processor) *Background {
	return &Background{ctx: ctx, proc: proc}
}

func (b *Background) Dispatch(_ context.Context, ev shopify.Event) error {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.proc.Process(b.ctx, ev)
	}()
	return nil
}

func (b *Background) Wait() {
	b.wg.Wait()
}
