// Package sink holds the handlers that consume order-book stream messages.
package sink

import (
	"context"
	"io"

	"go.uber.org/multierr"

	"github.com/igefined/generic-trader/internal/domain"
	"github.com/igefined/generic-trader/internal/stream"
)

// Chain hands each message to every handler in order. One failing handler
// does not stop the others; their errors are combined.
type Chain []stream.Handler

func (c Chain) Handle(ctx context.Context, msg domain.StreamMessage) error {
	var err error
	for _, h := range c {
		if h == nil {
			continue
		}
		err = multierr.Append(err, h.Handle(ctx, msg))
	}
	return err
}

// Close closes every handler that holds resources.
func (c Chain) Close() error {
	var err error
	for _, h := range c {
		if closer, ok := h.(io.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}
	}
	return err
}
