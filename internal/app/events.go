package app

import (
	"context"

	"github.com/AdarshRaj19/Medshare/internal/domain"
)

// Publisher dispatches lifecycle events to collaborators. Delivery is
// fire-and-observe: the core never waits on, or fails because of, a consumer.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

type nopPublisher struct{}

// NopPublisher discards events; used when no broker is configured and in tests.
func NopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, domain.Event) error {
	return nil
}

// publish sends best-effort; errors are the publisher's to report.
func publish(ctx context.Context, p Publisher, ev domain.Event) {
	if p == nil {
		return
	}
	_ = p.Publish(ctx, ev)
}
