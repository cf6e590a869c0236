package nearfield

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Fallback publishes on primary and falls back to secondary when primary
// cannot publish, e.g. tag emulation first and a passive tag write second.
type Fallback struct {
	primary   Publisher
	secondary Publisher
	logger    zerolog.Logger

	mu       sync.Mutex
	acquired Publisher
}

var _ Publisher = (*Fallback)(nil)

// NewFallback creates a Fallback publisher.
func NewFallback(primary, secondary Publisher, logger zerolog.Logger) *Fallback {
	return &Fallback{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With().Str("component", "nearfield_fallback").Logger(),
	}
}

func (f *Fallback) Publish(ctx context.Context, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquired != nil {
		return ErrBusy
	}

	primaryErr := f.primary.Publish(ctx, payload)
	if primaryErr == nil {
		f.acquired = f.primary
		return nil
	}
	f.logger.Warn().Err(primaryErr).Msg("primary channel unavailable, falling back")

	if err := f.secondary.Publish(ctx, payload); err != nil {
		return errors.Join(primaryErr, err)
	}
	f.acquired = f.secondary
	return nil
}

func (f *Fallback) Release(ctx context.Context) error {
	f.mu.Lock()
	acquired := f.acquired
	f.acquired = nil
	f.mu.Unlock()

	if acquired == nil {
		return nil
	}
	return acquired.Release(ctx)
}
