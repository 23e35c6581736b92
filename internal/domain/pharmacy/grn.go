package pharmacy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/devxworld/erx/internal/domain/auditlog"
	"github.com/devxworld/erx/internal/domain/ledger"
	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/store"
)

// ReceiveGoods records a supplier delivery. Stock is added per line and the
// unpaid part of the invoice is added to the supplier's payable balance.
func (s *Service) ReceiveGoods(ctx context.Context, actorID, pharmacyID string, req GRNRequest) (GoodsReceipt, error) {
	if len(req.Lines) == 0 {
		return GoodsReceipt{}, apperr.Validation("at least one line is required")
	}
	if req.AmountPaid.IsNegative() {
		return GoodsReceipt{}, apperr.Validation("amount paid must not be negative")
	}
	total := decimal.Zero
	for i := range req.Lines {
		l := &req.Lines[i]
		if l.Quantity <= 0 {
			return GoodsReceipt{}, apperr.Validation("line %d: quantity must be positive", i+1)
		}
		if l.PurchasePrice.IsNegative() {
			return GoodsReceipt{}, apperr.Validation("line %d: purchase price must not be negative", i+1)
		}
		if l.InventoryItemID == "" {
			l.Name = strings.TrimSpace(l.Name)
			if l.Name == "" {
				return GoodsReceipt{}, apperr.Validation("line %d: name is required for a new item", i+1)
			}
		}
		total = total.Add(l.PurchasePrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	payable := decimal.Max(decimal.Zero, total.Sub(req.AmountPaid))

	var grn GoodsReceipt
	err := s.writer.Do(ctx, func(u *store.Unit) error {
		supplier, err := ledger.Find(ctx, u, ledger.KindSupplier, req.SupplierID)
		if err != nil {
			return err
		}

		items, err := inventory.Load(ctx, u)
		if err != nil {
			return err
		}
		now := s.now()
		for i := range req.Lines {
			l := &req.Lines[i]
			if l.InventoryItemID == "" {
				item := InventoryItem{
					ID:            "inv-" + uuid.NewString(),
					PharmacyID:    pharmacyID,
					Name:          l.Name,
					Batch:         l.Batch,
					Expiry:        l.Expiry,
					MRP:           l.MRP,
					PurchasePrice: l.PurchasePrice,
					GSTPercent:    l.GSTPercent,
				}
				if err := validateItem(&item); err != nil {
					return fmt.Errorf("line %d: %w", i+1, err)
				}
				item.Stock = l.Quantity
				item.UpdatedAt = now
				items = append(items, item)
				l.InventoryItemID = item.ID
				continue
			}
			j := indexItem(items, pharmacyID, l.InventoryItemID)
			if j < 0 {
				return apperr.NotFound("inventory item", l.InventoryItemID)
			}
			items[j].Stock += l.Quantity
			if l.PurchasePrice.IsPositive() {
				items[j].PurchasePrice = l.PurchasePrice
			}
			items[j].UpdatedAt = now
			l.Name = items[j].Name
		}
		if err := inventory.Stage(u, items); err != nil {
			return err
		}

		if payable.IsPositive() {
			if _, err := ledger.Adjust(ctx, u, ledger.KindSupplier, supplier.ID, payable); err != nil {
				return err
			}
		}

		seq, err := u.NextSequence(ctx, store.GoodsReceipts)
		if err != nil {
			return err
		}
		grn = GoodsReceipt{
			ID:            fmt.Sprintf("GRN-%06d", seq),
			PharmacyID:    pharmacyID,
			SupplierID:    supplier.ID,
			SupplierName:  supplier.Name,
			InvoiceNumber: req.InvoiceNumber,
			Date:          now,
			Lines:         req.Lines,
			Total:         total,
			AmountPaid:    req.AmountPaid,
			PayableAdded:  payable,
			CreatedBy:     actorID,
		}
		cur, err := receipts.Load(ctx, u)
		if err != nil {
			return err
		}
		return receipts.Stage(u, append(cur, grn))
	})
	if err != nil {
		return GoodsReceipt{}, err
	}

	s.audit.Log(ctx, actorID, auditlog.ActionGoodsReceived,
		fmt.Sprintf("%s from %s: %d lines, total %s, payable %s", grn.ID, grn.SupplierName, len(grn.Lines), grn.Total.StringFixed(2), grn.PayableAdded.StringFixed(2)))
	return grn, nil
}

func (s *Service) ListGoodsReceipts(ctx context.Context, pharmacyID, supplierID string) ([]GoodsReceipt, error) {
	all, err := receipts.All(ctx, s.docs)
	if err != nil {
		return nil, err
	}
	out := make([]GoodsReceipt, 0, len(all))
	for _, g := range all {
		if g.PharmacyID != pharmacyID || (supplierID != "" && g.SupplierID != supplierID) {
			continue
		}
		out = append(out, g)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}
