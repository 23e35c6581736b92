// Package store is the persistence boundary. Every logical collection
// (users, prescriptions, inventory, ...) is a JSON document read and written
// wholesale; the concrete backend (postgres, sqlite, memory) is chosen once at
// startup and injected. Mutations go through a Writer so that multi-collection
// changes are serialized and either fully applied or compensated.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// Collection names.
const (
	Users         = "users"
	Patients      = "patients"
	Prescriptions = "prescriptions"
	RxTemplates   = "rx_templates"
	Inventory     = "inventory"
	Sales         = "sales"
	Returns       = "returns"
	Expenses      = "expenses"
	GoodsReceipts = "grns"
	Suppliers     = "suppliers"
	Customers     = "customers"
	LabReferrals  = "lab_referrals"
	SystemLogs    = "system_logs"
)

// DocumentStore is the key/value document contract of the persistence collaborator.
type DocumentStore interface {
	// Get returns the stored document, or nil when the collection has never been written.
	Get(ctx context.Context, collection string) (json.RawMessage, error)
	Put(ctx context.Context, collection string, data json.RawMessage) error
	// NextSequence returns a value strictly greater than any previously returned for name.
	NextSequence(ctx context.Context, name string) (int64, error)
}

// AuditRow is one row of the structured audit table.
type AuditRow struct {
	ID        string    `db:"id" json:"id"`
	ActorID   string    `db:"actor_id" json:"actorId"`
	Action    string    `db:"action" json:"action"`
	Details   string    `db:"details" json:"details"`
	CreatedAt time.Time `db:"created_at" json:"timestamp"`
}

// AuditTable is the append-only structured audit path.
type AuditTable interface {
	AppendAudit(ctx context.Context, row AuditRow) error
	ListAudit(ctx context.Context, limit int) ([]AuditRow, error)
}

// Backend is what a storage driver provides.
type Backend interface {
	DocumentStore
	AuditTable
	Ping(ctx context.Context) error
	Close() error
}
