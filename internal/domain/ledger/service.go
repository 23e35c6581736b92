// Package ledger keeps the running balances of suppliers and customers.
//
// Each party has a single signed balance. Manual transactions apply a delta
// and are recorded only in the audit log; there is no per-transaction history
// and no automatic reversal. A mistaken entry is corrected by recording an
// equal and opposite transaction.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/devxworld/erx/internal/domain/auditlog"
	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/store"
)

// SeedSuppliers are created by Seed on an empty supplier ledger.
var SeedSuppliers = []Party{
	{ID: "sup-1", Kind: KindSupplier, Name: "Apollo Wholesale", Contact: "9876543210", Balance: decimal.NewFromInt(-500), Address: "Mumbai, MH"},
	{ID: "sup-2", Kind: KindSupplier, Name: "MedPlus Distributors", Contact: "9988776655", Balance: decimal.NewFromInt(2500), Address: "Delhi, DL"},
}

type Service struct {
	docs   store.DocumentStore
	writer *store.Writer
	audit  *auditlog.Service
	now    func() time.Time
}

func NewService(docs store.DocumentStore, writer *store.Writer, audit *auditlog.Service) *Service {
	return &Service{
		docs:   docs,
		writer: writer,
		audit:  audit,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, p Party) (Party, error) {
	coll, ok := collectionFor(p.Kind)
	if !ok {
		return Party{}, apperr.Validation("unknown party kind %q", p.Kind)
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return Party{}, apperr.Validation("name is required")
	}
	prefix := "sup-"
	if p.Kind == KindCustomer {
		prefix = "cust-"
	}
	p.ID = prefix + uuid.NewString()
	p.CreatedAt = s.now()

	err := s.writer.Do(ctx, func(u *store.Unit) error {
		parties, err := coll.Load(ctx, u)
		if err != nil {
			return err
		}
		return coll.Stage(u, append(parties, p))
	})
	if err != nil {
		return Party{}, err
	}
	return p, nil
}

// List returns the parties of kind visible to pharmacyID.
func (s *Service) List(ctx context.Context, kind, pharmacyID string) ([]Party, error) {
	parties, err := Parties(ctx, s.docs, kind)
	if err != nil {
		return nil, err
	}
	out := make([]Party, 0, len(parties))
	for _, p := range parties {
		if p.VisibleTo(pharmacyID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, kind, id string) (Party, error) {
	parties, err := Parties(ctx, s.docs, kind)
	if err != nil {
		return Party{}, err
	}
	for _, p := range parties {
		if p.ID == id {
			return p, nil
		}
	}
	return Party{}, apperr.NotFound(strings.ToLower(kind), id)
}

// Record applies a manual transaction and audits its description.
func (s *Service) Record(ctx context.Context, actorID, kind, partyID string, tx Transaction) (Result, error) {
	delta, err := signedDelta(kind, tx)
	if err != nil {
		return Result{}, err
	}

	var party Party
	err = s.writer.Do(ctx, func(u *store.Unit) error {
		p, err := Adjust(ctx, u, kind, partyID, delta)
		party = p
		return err
	})
	if err != nil {
		return Result{}, err
	}

	desc := Describe(kind, tx.Intent, tx.Amount, party.Name)
	if tx.Note != "" {
		desc += " (" + tx.Note + ")"
	}
	action := auditlog.ActionLedgerCharge
	if tx.Intent != AddCharge {
		action = auditlog.ActionLedgerPayment
	}
	s.audit.Log(ctx, actorID, action, desc)
	return Result{Party: party, Description: desc}, nil
}

// Seed creates the default suppliers when the supplier ledger is empty.
func (s *Service) Seed(ctx context.Context) (bool, error) {
	seeded := false
	err := s.writer.Do(ctx, func(u *store.Unit) error {
		cur, err := suppliers.Load(ctx, u)
		if err != nil {
			return err
		}
		if len(cur) > 0 {
			return nil
		}
		now := s.now()
		seed := make([]Party, len(SeedSuppliers))
		for i, p := range SeedSuppliers {
			p.CreatedAt = now
			seed[i] = p
		}
		seeded = true
		return suppliers.Stage(u, seed)
	})
	return seeded, err
}

// Adjust adds delta to a party's balance inside u.
func Adjust(ctx context.Context, u *store.Unit, kind, partyID string, delta decimal.Decimal) (Party, error) {
	coll, ok := collectionFor(kind)
	if !ok {
		return Party{}, apperr.Validation("unknown party kind %q", kind)
	}
	parties, err := coll.Load(ctx, u)
	if err != nil {
		return Party{}, err
	}
	for i := range parties {
		if parties[i].ID != partyID {
			continue
		}
		parties[i].Balance = parties[i].Balance.Add(delta)
		if err := coll.Stage(u, parties); err != nil {
			return Party{}, err
		}
		return parties[i], nil
	}
	return Party{}, apperr.NotFound(strings.ToLower(kind), partyID)
}

// Parties reads every party of kind outside of a unit of work.
func Parties(ctx context.Context, ds store.DocumentStore, kind string) ([]Party, error) {
	coll, ok := collectionFor(kind)
	if !ok {
		return nil, apperr.Validation("unknown party kind %q", kind)
	}
	return coll.All(ctx, ds)
}

// Find loads a party inside u.
func Find(ctx context.Context, u *store.Unit, kind, partyID string) (Party, error) {
	coll, ok := collectionFor(kind)
	if !ok {
		return Party{}, apperr.Validation("unknown party kind %q", kind)
	}
	parties, err := coll.Load(ctx, u)
	if err != nil {
		return Party{}, err
	}
	for _, p := range parties {
		if p.ID == partyID {
			return p, nil
		}
	}
	return Party{}, apperr.NotFound(strings.ToLower(kind), partyID)
}

// Describe renders the human-readable audit text of a ledger movement.
func Describe(kind, intent string, amount decimal.Decimal, name string) string {
	amt := amount.StringFixed(2)
	switch {
	case kind == KindSupplier && intent == PaymentMade:
		return fmt.Sprintf("Payment of %s made to %s", amt, name)
	case kind == KindSupplier && intent == AddCharge:
		return fmt.Sprintf("Credit of %s received from %s", amt, name)
	case kind == KindCustomer && intent == PaymentReceived:
		return fmt.Sprintf("Payment of %s received from %s", amt, name)
	default:
		return fmt.Sprintf("Charge of %s added to %s", amt, name)
	}
}

func signedDelta(kind string, tx Transaction) (decimal.Decimal, error) {
	if !tx.Amount.IsPositive() {
		return decimal.Zero, apperr.Validation("amount must be greater than zero")
	}
	switch {
	case tx.Intent == AddCharge:
		return tx.Amount, nil
	case kind == KindSupplier && tx.Intent == PaymentMade:
		return tx.Amount.Neg(), nil
	case kind == KindCustomer && tx.Intent == PaymentReceived:
		return tx.Amount.Neg(), nil
	default:
		return decimal.Zero, apperr.Validation("transaction %q does not apply to a %s", tx.Intent, strings.ToLower(kind))
	}
}
