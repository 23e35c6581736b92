// Package pharmacy is the point-of-sale engine: inventory, cart checkout,
// sales returns, goods receipts and expenses. Every operation that touches
// more than one collection runs as a single store.Writer unit, so stock,
// ledger balances and sale records change together or not at all.
package pharmacy

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/devxworld/erx/internal/domain/auditlog"
	"github.com/devxworld/erx/internal/domain/ledger"
	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/store"
)

const (
	// DefaultLowStock applies to items without their own reorder level.
	DefaultLowStock = 10
	// DefaultExpiryWindow is how far ahead NearExpiry looks.
	DefaultExpiryWindow = 90 * 24 * time.Hour
)

// RxLinker marks a prescription fulfilled by a sale, inside the sale's unit of work.
type RxLinker interface {
	MarkDispensed(ctx context.Context, u *store.Unit, actorID, rxID, pharmacyID string) error
}

type Service struct {
	docs   store.DocumentStore
	writer *store.Writer
	audit  *auditlog.Service
	rx     RxLinker
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(docs store.DocumentStore, writer *store.Writer, audit *auditlog.Service, logger zerolog.Logger) *Service {
	return &Service{
		docs:   docs,
		writer: writer,
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetRxLinker enables checkouts that carry a prescription id.
func (s *Service) SetRxLinker(l RxLinker) {
	s.rx = l
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// -- Inventory --

func (s *Service) CreateItem(ctx context.Context, pharmacyID string, item InventoryItem) (InventoryItem, error) {
	if err := validateItem(&item); err != nil {
		return InventoryItem{}, err
	}
	if item.Stock < 0 {
		return InventoryItem{}, apperr.Validation("opening stock must not be negative")
	}
	item.ID = "inv-" + uuid.NewString()
	item.PharmacyID = pharmacyID
	item.UpdatedAt = s.now()

	err := s.writer.Do(ctx, func(u *store.Unit) error {
		items, err := inventory.Load(ctx, u)
		if err != nil {
			return err
		}
		return inventory.Stage(u, append(items, item))
	})
	if err != nil {
		return InventoryItem{}, err
	}
	return item, nil
}

// UpdateItem edits an item's catalogue fields. Stock only moves through
// receipts, sales, dispensing and returns, so it is left unchanged.
func (s *Service) UpdateItem(ctx context.Context, pharmacyID string, item InventoryItem) (InventoryItem, error) {
	if err := validateItem(&item); err != nil {
		return InventoryItem{}, err
	}
	var updated InventoryItem
	err := s.writer.Do(ctx, func(u *store.Unit) error {
		items, err := inventory.Load(ctx, u)
		if err != nil {
			return err
		}
		i := indexItem(items, pharmacyID, item.ID)
		if i < 0 {
			return apperr.NotFound("inventory item", item.ID)
		}
		item.PharmacyID = pharmacyID
		item.Stock = items[i].Stock
		item.UpdatedAt = s.now()
		items[i] = item
		updated = item
		return inventory.Stage(u, items)
	})
	return updated, err
}

func (s *Service) DeleteItem(ctx context.Context, pharmacyID, id string) error {
	return s.writer.Do(ctx, func(u *store.Unit) error {
		items, err := inventory.Load(ctx, u)
		if err != nil {
			return err
		}
		i := indexItem(items, pharmacyID, id)
		if i < 0 {
			return apperr.NotFound("inventory item", id)
		}
		return inventory.Stage(u, append(items[:i:i], items[i+1:]...))
	})
}

func (s *Service) GetItem(ctx context.Context, pharmacyID, id string) (InventoryItem, error) {
	items, err := inventory.All(ctx, s.docs)
	if err != nil {
		return InventoryItem{}, err
	}
	if i := indexItem(items, pharmacyID, id); i >= 0 {
		return items[i], nil
	}
	return InventoryItem{}, apperr.NotFound("inventory item", id)
}

// ListInventory returns the pharmacy's items sorted by name, filtered by a
// name, batch or manufacturer substring.
func (s *Service) ListInventory(ctx context.Context, pharmacyID, search string) ([]InventoryItem, error) {
	items, err := s.pharmacyItems(ctx, pharmacyID)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return items, nil
	}
	out := items[:0]
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Name), needle) ||
			strings.Contains(strings.ToLower(it.Batch), needle) ||
			strings.Contains(strings.ToLower(it.Manufacturer), needle) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *Service) LowStock(ctx context.Context, pharmacyID string) ([]InventoryItem, error) {
	items, err := s.pharmacyItems(ctx, pharmacyID)
	if err != nil {
		return nil, err
	}
	out := make([]InventoryItem, 0)
	for _, it := range items {
		if isLowStock(it) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Stock < out[j].Stock })
	return out, nil
}

// NearExpiry lists in-stock items expiring within window, soonest first.
// Already expired items are included.
func (s *Service) NearExpiry(ctx context.Context, pharmacyID string, window time.Duration) ([]InventoryItem, error) {
	items, err := s.pharmacyItems(ctx, pharmacyID)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		window = DefaultExpiryWindow
	}
	cutoff := s.now().Add(window)
	out := make([]InventoryItem, 0)
	for _, it := range items {
		if exp, ok := it.expiryDate(); ok && it.Stock > 0 && !exp.After(cutoff) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Expiry < out[j].Expiry })
	return out, nil
}

func (s *Service) pharmacyItems(ctx context.Context, pharmacyID string) ([]InventoryItem, error) {
	items, err := inventory.All(ctx, s.docs)
	if err != nil {
		return nil, err
	}
	out := make([]InventoryItem, 0, len(items))
	for _, it := range items {
		if it.PharmacyID == pharmacyID {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

// -- Expenses --

func (s *Service) RecordExpense(ctx context.Context, actorID, pharmacyID string, e Expense) (Expense, error) {
	e.Category = strings.TrimSpace(e.Category)
	if e.Category == "" {
		return Expense{}, apperr.Validation("category is required")
	}
	if !e.Amount.IsPositive() {
		return Expense{}, apperr.Validation("amount must be greater than zero")
	}
	e.ID = "exp-" + uuid.NewString()
	e.PharmacyID = pharmacyID
	if e.Date.IsZero() {
		e.Date = s.now()
	}
	err := s.writer.Do(ctx, func(u *store.Unit) error {
		cur, err := expenses.Load(ctx, u)
		if err != nil {
			return err
		}
		return expenses.Stage(u, append(cur, e))
	})
	if err != nil {
		return Expense{}, err
	}
	s.audit.Log(ctx, actorID, auditlog.ActionExpenseRecorded, "Expense of "+e.Amount.StringFixed(2)+" for "+e.Category)
	return e, nil
}

func (s *Service) ListExpenses(ctx context.Context, pharmacyID string) ([]Expense, error) {
	all, err := expenses.All(ctx, s.docs)
	if err != nil {
		return nil, err
	}
	out := make([]Expense, 0, len(all))
	for _, e := range all {
		if e.PharmacyID == pharmacyID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// -- Sales queries --

// ListSales returns the pharmacy's sales newest first, optionally for one customer.
func (s *Service) ListSales(ctx context.Context, pharmacyID, customerID string) ([]Sale, error) {
	all, err := sales.All(ctx, s.docs)
	if err != nil {
		return nil, err
	}
	out := make([]Sale, 0, len(all))
	for _, sale := range all {
		if sale.PharmacyID != pharmacyID {
			continue
		}
		if customerID != "" && sale.CustomerID != customerID {
			continue
		}
		out = append(out, sale)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *Service) GetSale(ctx context.Context, pharmacyID, id string) (Sale, error) {
	all, err := sales.All(ctx, s.docs)
	if err != nil {
		return Sale{}, err
	}
	if i := indexSale(all, pharmacyID, id); i >= 0 {
		return all[i], nil
	}
	return Sale{}, apperr.NotFound("sale", id)
}

func (s *Service) ListReturns(ctx context.Context, pharmacyID, saleID string) ([]SalesReturn, error) {
	all, err := returns.All(ctx, s.docs)
	if err != nil {
		return nil, err
	}
	out := make([]SalesReturn, 0, len(all))
	for _, r := range all {
		if r.PharmacyID != pharmacyID || (saleID != "" && r.SaleID != saleID) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// Summary computes the dashboard headline for the current UTC day.
func (s *Service) Summary(ctx context.Context, pharmacyID string) (Summary, error) {
	now := s.now()
	day := now.Truncate(24 * time.Hour)
	sum := Summary{SalesToday: decimal.Zero, ExpensesToday: decimal.Zero, Receivables: decimal.Zero, Payables: decimal.Zero}

	saleList, err := s.ListSales(ctx, pharmacyID, "")
	if err != nil {
		return Summary{}, err
	}
	for _, sale := range saleList {
		if !sale.Date.Before(day) {
			sum.SalesToday = sum.SalesToday.Add(sale.RoundedTotal)
			sum.InvoicesToday++
		}
	}
	expenseList, err := s.ListExpenses(ctx, pharmacyID)
	if err != nil {
		return Summary{}, err
	}
	for _, e := range expenseList {
		if !e.Date.Before(day) {
			sum.ExpensesToday = sum.ExpensesToday.Add(e.Amount)
		}
	}

	items, err := s.pharmacyItems(ctx, pharmacyID)
	if err != nil {
		return Summary{}, err
	}
	cutoff := now.Add(DefaultExpiryWindow)
	for _, it := range items {
		if isLowStock(it) {
			sum.LowStockItems++
		}
		if exp, ok := it.expiryDate(); ok && it.Stock > 0 && !exp.After(cutoff) {
			sum.NearExpiryItems++
		}
	}

	for kind, total := range map[string]*decimal.Decimal{ledger.KindCustomer: &sum.Receivables, ledger.KindSupplier: &sum.Payables} {
		parties, err := ledger.Parties(ctx, s.docs, kind)
		if err != nil {
			return Summary{}, err
		}
		for _, p := range parties {
			if p.VisibleTo(pharmacyID) && p.Balance.IsPositive() {
				*total = total.Add(p.Balance)
			}
		}
	}
	return sum, nil
}

func validateItem(item *InventoryItem) error {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return apperr.Validation("name is required")
	}
	if item.MRP.IsNegative() || item.PurchasePrice.IsNegative() {
		return apperr.Validation("prices must not be negative")
	}
	if item.GSTPercent.IsNegative() || item.GSTPercent.GreaterThan(hundred) {
		return apperr.Validation("gstPercent must be between 0 and 100")
	}
	if item.Expiry != "" {
		if _, ok := item.expiryDate(); !ok {
			return apperr.Validation("expiry must be a date in %s format", ExpiryLayout)
		}
	}
	if item.ReorderLevel < 0 {
		return apperr.Validation("reorderLevel must not be negative")
	}
	return nil
}

func isLowStock(it InventoryItem) bool {
	level := it.ReorderLevel
	if level == 0 {
		level = DefaultLowStock
	}
	return it.Stock <= level
}

func indexItem(items []InventoryItem, pharmacyID, id string) int {
	for i := range items {
		if items[i].ID == id && items[i].PharmacyID == pharmacyID {
			return i
		}
	}
	return -1
}

func indexSale(all []Sale, pharmacyID, id string) int {
	for i := range all {
		if all[i].ID == id && all[i].PharmacyID == pharmacyID {
			return i
		}
	}
	return -1
}
