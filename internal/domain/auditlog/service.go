// Package auditlog records significant business events. Each entry goes to
// the structured audit table; if that write fails it is appended to the
// system_logs document instead, and if both fail it is written to the
// process log. Readers merge both sources.
package auditlog

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/store"
)

// MaxFallbackEntries caps the system_logs document.
const MaxFallbackEntries = 500

var systemLogs = store.NewCollection[Entry](store.SystemLogs)

type Service struct {
	table  store.AuditTable
	docs   store.DocumentStore
	writer *store.Writer
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(table store.AuditTable, docs store.DocumentStore, writer *store.Writer, logger zerolog.Logger) *Service {
	return &Service{
		table:  table,
		docs:   docs,
		writer: writer,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the clock used to stamp entries.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Log records an event and always returns the entry, whichever path took it.
// It must not be called from inside Writer.Do.
func (s *Service) Log(ctx context.Context, actorID, action, details string) Entry {
	e := Entry{
		ID:        "log-" + uuid.NewString(),
		ActorID:   actorID,
		Action:    action,
		Details:   details,
		Timestamp: s.now(),
	}

	err := s.table.AppendAudit(ctx, e.row())
	if err == nil {
		return e
	}
	s.logger.Warn().Err(err).Str("audit_id", e.ID).Msg("audit table write failed, using system_logs")

	ferr := s.writer.Do(ctx, func(u *store.Unit) error {
		cur, err := systemLogs.Load(ctx, u)
		if err != nil {
			return err
		}
		next := append([]Entry{e}, cur...)
		if len(next) > MaxFallbackEntries {
			next = next[:MaxFallbackEntries]
		}
		return systemLogs.Stage(u, next)
	})
	if ferr == nil {
		return e
	}

	s.logger.Error().
		Err(ferr).
		Str("type", "audit_undelivered").
		Str("audit_id", e.ID).
		Str("actor_id", e.ActorID).
		Str("action", e.Action).
		Str("details", e.Details).
		Time("timestamp", e.Timestamp).
		Msg("audit entry could not be persisted")
	return e
}

// Load returns up to limit entries from both sources, merged. It fails only
// when neither source can be read.
func (s *Service) Load(ctx context.Context, limit int) ([]Entry, error) {
	var primary []Entry
	rows, perr := s.table.ListAudit(ctx, limit)
	if perr != nil {
		s.logger.Warn().Err(perr).Msg("audit table read failed")
	}
	for _, r := range rows {
		primary = append(primary, fromRow(r))
	}

	fallback, ferr := systemLogs.All(ctx, s.docs)
	if ferr != nil {
		s.logger.Warn().Err(ferr).Msg("system_logs read failed")
	}
	if perr != nil && ferr != nil {
		return nil, apperr.Persistence(perr, "load audit logs")
	}

	merged := Merge(primary, fallback)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// Merge combines entries from the table and the fallback document, keeping
// one entry per ID, newest first.
func Merge(primary, fallback []Entry) []Entry {
	seen := make(map[string]bool, len(primary)+len(fallback))
	out := make([]Entry, 0, len(primary)+len(fallback))
	for _, list := range [][]Entry{primary, fallback} {
		for _, e := range list {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}
