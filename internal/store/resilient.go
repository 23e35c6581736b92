package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/devxworld/erx/internal/platform/apperr"
)

// Options tunes the Resilient wrapper.
type Options struct {
	Timeout      time.Duration
	ReadAttempts int
	Backoff      time.Duration
}

func DefaultOptions() Options {
	return Options{
		Timeout:      10 * time.Second,
		ReadAttempts: 3,
		Backoff:      100 * time.Millisecond,
	}
}

// Resilient bounds every backend call with a timeout, retries reads with
// exponential backoff and serves the last-known-good copy when a read
// ultimately fails. Writes and sequence allocation are never retried.
type Resilient struct {
	next   DocumentStore
	cache  Cache
	opts   Options
	logger zerolog.Logger
}

func NewResilient(next DocumentStore, cache Cache, opts Options, logger zerolog.Logger) *Resilient {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.ReadAttempts <= 0 {
		opts.ReadAttempts = 1
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Resilient{next: next, cache: cache, opts: opts, logger: logger}
}

func (r *Resilient) Get(ctx context.Context, collection string) (json.RawMessage, error) {
	data, err := r.read(ctx, collection)
	if err == nil {
		r.remember(ctx, collection, data)
		return data, nil
	}

	cached, ok, cerr := r.cache.Get(ctx, collection)
	if cerr != nil {
		r.logger.Warn().Err(cerr).Str("collection", collection).Msg("last-known-good cache unavailable")
	}
	if ok {
		r.logger.Warn().Err(err).Str("collection", collection).Msg("serving last-known-good copy")
		return cached, nil
	}
	return nil, apperr.Persistence(err, "get "+collection)
}

func (r *Resilient) Put(ctx context.Context, collection string, data json.RawMessage) error {
	cctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	if err := r.next.Put(cctx, collection, data); err != nil {
		return apperr.Persistence(err, "put "+collection)
	}
	r.remember(ctx, collection, data)
	return nil
}

func (r *Resilient) NextSequence(ctx context.Context, name string) (int64, error) {
	cctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	n, err := r.next.NextSequence(cctx, name)
	if err != nil {
		return 0, apperr.Persistence(err, "next sequence "+name)
	}
	return n, nil
}

// Strict returns a view that retries reads but never falls back to the
// cache. The Writer reads through it: a mutation must start from the
// canonical copy, not a stale one.
func (r *Resilient) Strict() DocumentStore {
	return strictView{r}
}

type strictView struct{ r *Resilient }

func (s strictView) Get(ctx context.Context, collection string) (json.RawMessage, error) {
	data, err := s.r.read(ctx, collection)
	if err != nil {
		return nil, apperr.Persistence(err, "get "+collection)
	}
	s.r.remember(ctx, collection, data)
	return data, nil
}

func (s strictView) Put(ctx context.Context, collection string, data json.RawMessage) error {
	return s.r.Put(ctx, collection, data)
}

func (s strictView) NextSequence(ctx context.Context, name string) (int64, error) {
	return s.r.NextSequence(ctx, name)
}

func (r *Resilient) read(ctx context.Context, collection string) (json.RawMessage, error) {
	var lastErr error
	backoff := r.opts.Backoff
	for attempt := 0; attempt < r.opts.ReadAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoff); err != nil {
				return nil, errors.Join(lastErr, err)
			}
			backoff *= 2
		}
		cctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		data, err := r.next.Get(cctx, collection)
		cancel()
		if err == nil {
			return data, nil
		}
		lastErr = err
		r.logger.Debug().Err(err).Str("collection", collection).Int("attempt", attempt+1).Msg("read failed")
	}
	return nil, lastErr
}

func (r *Resilient) remember(ctx context.Context, collection string, data json.RawMessage) {
	if data == nil {
		return
	}
	if err := r.cache.Set(ctx, collection, data); err != nil {
		r.logger.Warn().Err(err).Str("collection", collection).Msg("failed to refresh last-known-good cache")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
