package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/devxworld/erx/internal/platform/apperr"
)

const compensateTimeout = 10 * time.Second

// Writer is the single logical writer. Do runs one unit of work at a time;
// collections staged by the unit are written in staging order, and if any
// write fails the ones already written are restored to the values the unit
// loaded.
type Writer struct {
	mu     sync.Mutex
	ds     DocumentStore
	logger zerolog.Logger
}

func NewWriter(ds DocumentStore, logger zerolog.Logger) *Writer {
	return &Writer{ds: ds, logger: logger}
}

// Do executes fn inside a unit of work. If fn returns an error, or ctx is done
// by the time fn returns, nothing is written.
func (w *Writer) Do(ctx context.Context, fn func(u *Unit) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	u := &Unit{
		ds:     w.ds,
		loaded: make(map[string]json.RawMessage),
		staged: make(map[string]json.RawMessage),
	}
	if err := fn(u); err != nil {
		return err
	}
	// A caller that gave up (request timeout, client gone) must not see its
	// unit land afterwards.
	if err := ctx.Err(); err != nil {
		return apperr.Persistence(err, "commit")
	}
	return u.commit(ctx, w.logger)
}

// Unit collects the reads and staged writes of one mutating operation.
type Unit struct {
	ds     DocumentStore
	loaded map[string]json.RawMessage
	staged map[string]json.RawMessage
	order  []string
}

// Load decodes the current value of collection into v. Values staged earlier
// in the same unit take precedence over the stored copy.
func (u *Unit) Load(ctx context.Context, collection string, v any) error {
	if raw, ok := u.staged[collection]; ok {
		return decode(collection, raw, v)
	}
	raw, ok := u.loaded[collection]
	if !ok {
		var err error
		raw, err = u.ds.Get(ctx, collection)
		if err != nil {
			return asPersistence(err, "get "+collection)
		}
		u.loaded[collection] = raw
	}
	return decode(collection, raw, v)
}

// Stage records the new value of collection. The collection must have been
// loaded in this unit so that a failed commit can restore it.
func (u *Unit) Stage(collection string, v any) error {
	if _, ok := u.loaded[collection]; !ok {
		return fmt.Errorf("stage %s: collection was not loaded in this unit", collection)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}
	if _, seen := u.staged[collection]; !seen {
		u.order = append(u.order, collection)
	}
	u.staged[collection] = raw
	return nil
}

// NextSequence allocates the next value of a storage-level counter.
func (u *Unit) NextSequence(ctx context.Context, name string) (int64, error) {
	n, err := u.ds.NextSequence(ctx, name)
	if err != nil {
		return 0, asPersistence(err, "next sequence "+name)
	}
	return n, nil
}

func (u *Unit) commit(ctx context.Context, logger zerolog.Logger) error {
	for i, collection := range u.order {
		if err := u.ds.Put(ctx, collection, u.staged[collection]); err != nil {
			u.compensate(ctx, u.order[:i], logger)
			return asPersistence(err, "put "+collection)
		}
	}
	return nil
}

func (u *Unit) compensate(ctx context.Context, written []string, logger zerolog.Logger) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()
	for i := len(written) - 1; i >= 0; i-- {
		collection := written[i]
		original := u.loaded[collection]
		if original == nil {
			original = json.RawMessage("null")
		}
		if err := u.ds.Put(cctx, collection, original); err != nil {
			logger.Error().Err(err).Str("collection", collection).Msg("compensating write failed; collection may be inconsistent")
			continue
		}
		logger.Warn().Str("collection", collection).Msg("rolled back partially applied write")
	}
}

func decode(collection string, raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Persistence(err, "decode "+collection)
	}
	return nil
}

func asPersistence(err error, op string) error {
	if errors.Is(err, apperr.ErrPersistence) {
		return err
	}
	return apperr.Persistence(err, op)
}
