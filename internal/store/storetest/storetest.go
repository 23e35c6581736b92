// Package storetest provides a failure-injecting Backend for service tests.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/devxworld/erx/internal/store"
)

var ErrInjected = errors.New("injected storage failure")

// Flaky wraps store.Memory and fails selected operations on demand.
type Flaky struct {
	*store.Memory

	mu        sync.Mutex
	failGet   map[string]bool
	failPut   map[string]int // remaining failures per collection; -1 = always
	failAudit bool
	puts      []string
}

func NewFlaky() *Flaky {
	return &Flaky{
		Memory:  store.NewMemory(),
		failGet: make(map[string]bool),
		failPut: make(map[string]int),
	}
}

// FailGet makes reads of collection fail until cleared with ok=false.
func (f *Flaky) FailGet(collection string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet[collection] = fail
}

// FailPut makes the next n writes of collection fail; n < 0 fails forever, n == 0 clears.
func (f *Flaky) FailPut(collection string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPut[collection] = n
}

func (f *Flaky) FailAudit(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAudit = fail
}

// Puts lists the collections written so far, in order.
func (f *Flaky) Puts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.puts...)
}

func (f *Flaky) Get(ctx context.Context, collection string) (json.RawMessage, error) {
	f.mu.Lock()
	fail := f.failGet[collection]
	f.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return f.Memory.Get(ctx, collection)
}

func (f *Flaky) Put(ctx context.Context, collection string, data json.RawMessage) error {
	f.mu.Lock()
	n := f.failPut[collection]
	if n != 0 {
		if n > 0 {
			f.failPut[collection] = n - 1
		}
		f.mu.Unlock()
		return ErrInjected
	}
	f.puts = append(f.puts, collection)
	f.mu.Unlock()
	return f.Memory.Put(ctx, collection, data)
}

func (f *Flaky) AppendAudit(ctx context.Context, row store.AuditRow) error {
	f.mu.Lock()
	fail := f.failAudit
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Memory.AppendAudit(ctx, row)
}

// Seed writes v as the initial value of collection, bypassing failure injection.
func (f *Flaky) Seed(collection string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	_ = f.Memory.Put(context.Background(), collection, raw)
}
