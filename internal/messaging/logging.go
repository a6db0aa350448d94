package messaging

import (
	"context"
	"log"

	"github.com/AdarshRaj19/Medshare/internal/app"
	"github.com/AdarshRaj19/Medshare/internal/domain"
)

type loggingPublisher struct {
	next   app.Publisher
	logger *log.Logger
}

// LogFailures wraps a publisher so dropped events leave a trace. Events are
// fire-and-observe, so a failure is logged and swallowed.
func LogFailures(next app.Publisher, logger *log.Logger) app.Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &loggingPublisher{next: next, logger: logger}
}

func (p *loggingPublisher) Publish(ctx context.Context, event domain.Event) error {
	if err := p.next.Publish(ctx, event); err != nil {
		p.logger.Printf("WARN: publish %s event: %v", event.Type, err)
		return err
	}
	return nil
}
