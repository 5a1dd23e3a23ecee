package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tjohnman/modular-ai-agent/internal/store"
	"github.com/tjohnman/modular-ai-agent/internal/tool"
)

const (
	defaultMaxRetries = 3
	defaultBackoff    = 3 * time.Second
)

// Retrying decorates a Provider with bounded retries and a fixed
// backoff. Errors surviving the final attempt are returned as-is; the
// dispatcher converts them to a visible inline message.
type Retrying struct {
	Inner      Provider
	MaxRetries int
	Backoff    time.Duration
	Log        *slog.Logger
}

func WithRetry(inner Provider, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Retrying{
		Inner:      inner,
		MaxRetries: defaultMaxRetries,
		Backoff:    defaultBackoff,
		Log:        logger,
	}
}

func (r *Retrying) Generate(ctx context.Context, messages []store.Message, tools []tool.Schema) (Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if attempt > 0 {
			r.Log.Warn("provider request failed, retrying", "attempt", attempt, "backoff", r.Backoff, "err", lastErr)
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(r.Backoff):
			}
		}
		resp, err := r.Inner.Generate(ctx, messages, tools)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		lastErr = err
	}
	return Response{}, fmt.Errorf("provider failed after %d attempts: %w", r.MaxRetries+1, lastErr)
}

func (r *Retrying) Usage() Usage {
	return r.Inner.Usage()
}
