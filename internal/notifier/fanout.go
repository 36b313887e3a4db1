package notifier

import (
	"context"

	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/rs/zerolog"
)

// Publisher accepts ledger events.
type Publisher interface {
	Publish(ctx context.Context, event domain.LedgerEvent) error
}

// Fanout publishes every event to all of its publishers.
type Fanout []Publisher

// Publish calls each publisher in turn. Failures are logged and never returned.
func (f Fanout) Publish(ctx context.Context, event domain.LedgerEvent) error {
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("record_id", event.RecordID.String()).
				Msgf("%T failed to publish ledger event", p)
		}
	}

	return nil
}
