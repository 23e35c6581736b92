package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Memory is a thread-safe in-process Backend for tests and development.
type Memory struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	seqs  map[string]int64
	audit []AuditRow
}

func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string][]byte),
		seqs: make(map[string]int64),
	}
}

func (m *Memory) Get(_ context.Context, collection string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[collection]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Put(_ context.Context, collection string, data json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.docs[collection] = cp
	return nil
}

func (m *Memory) NextSequence(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seqs[name]++
	return m.seqs[name], nil
}

func (m *Memory) AppendAudit(_ context.Context, row AuditRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, row)
	return nil
}

func (m *Memory) ListAudit(_ context.Context, limit int) ([]AuditRow, error) {
	m.mu.RLock()
	rows := make([]AuditRow, len(m.audit))
	copy(rows, m.audit)
	m.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
