package pharmacy

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/devxworld/erx/internal/domain/auditlog"
	"github.com/devxworld/erx/internal/domain/identity"
	"github.com/devxworld/erx/internal/domain/ledger"
	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/store"
)

// Quote bills the requested lines against current stock without selling anything.
func (s *Service) Quote(ctx context.Context, pharmacyID string, lines []LineRequest) (Quote, error) {
	items, err := inventory.All(ctx, s.docs)
	if err != nil {
		return Quote{}, err
	}
	cart, err := buildCart(items, pharmacyID, lines)
	if err != nil {
		return Quote{}, err
	}
	return Totals(cart.Lines), nil
}

// Checkout sells the requested lines. Stock, the customer's balance, the
// linked prescription and the sale record are committed together.
func (s *Service) Checkout(ctx context.Context, actorID, pharmacyID string, req CheckoutRequest) (CheckoutResult, error) {
	if len(req.Lines) == 0 {
		return CheckoutResult{}, apperr.State("cart is empty")
	}
	if req.PrescriptionID != "" && s.rx == nil {
		return CheckoutResult{}, apperr.State("prescription-linked sales are not enabled")
	}

	var sale Sale
	err := s.writer.Do(ctx, func(u *store.Unit) error {
		items, err := inventory.Load(ctx, u)
		if err != nil {
			return err
		}
		cart, err := buildCart(items, pharmacyID, req.Lines)
		if err != nil {
			return err
		}
		quote := Totals(cart.Lines)

		var customer *ledger.Party
		if req.CustomerID != "" {
			p, err := ledger.Find(ctx, u, ledger.KindCustomer, req.CustomerID)
			if err != nil {
				return err
			}
			if !p.VisibleTo(pharmacyID) {
				return apperr.NotFound("customer", req.CustomerID)
			}
			customer = &p
		}

		settled, err := Settle(quote.RoundedTotal, req.AmountPaid, strings.ToUpper(req.PaymentMode), customer != nil)
		if err != nil {
			return err
		}

		if req.PrescriptionID != "" {
			if err := s.rx.MarkDispensed(ctx, u, actorID, req.PrescriptionID, pharmacyID); err != nil {
				return err
			}
		}

		now := s.now()
		for _, line := range cart.Lines {
			i := indexItem(items, pharmacyID, line.InventoryItemID)
			items[i].Stock -= line.Quantity
			items[i].UpdatedAt = now
		}
		if err := inventory.Stage(u, items); err != nil {
			return err
		}

		if settled.BalanceDue.IsPositive() {
			if _, err := ledger.Adjust(ctx, u, ledger.KindCustomer, customer.ID, settled.BalanceDue); err != nil {
				return err
			}
		}

		seq, err := u.NextSequence(ctx, store.Sales)
		if err != nil {
			return err
		}
		sale = Sale{
			ID:             fmt.Sprintf("INV-%06d", seq),
			PharmacyID:     pharmacyID,
			Date:           now,
			Items:          cart.Lines,
			Subtotal:       quote.Subtotal,
			GSTAmount:      quote.GSTAmount,
			RoundedTotal:   quote.RoundedTotal,
			AmountPaid:     req.AmountPaid,
			BalanceDue:     settled.BalanceDue,
			Change:         settled.Change,
			PaymentMode:    settled.Mode,
			PrescriptionID: req.PrescriptionID,
			CreatedBy:      actorID,
		}
		if customer != nil {
			sale.CustomerID = customer.ID
			sale.CustomerName = customer.Name
		}
		cur, err := sales.Load(ctx, u)
		if err != nil {
			return err
		}
		return sales.Stage(u, append(cur, sale))
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	details := fmt.Sprintf("Sale %s of %s (%s)", sale.ID, sale.RoundedTotal.StringFixed(2), sale.PaymentMode)
	if sale.PrescriptionID != "" {
		details += " fulfilling prescription " + sale.PrescriptionID
	}
	s.audit.Log(ctx, actorID, auditlog.ActionSaleCompleted, details)
	if sale.BalanceDue.IsPositive() {
		s.audit.Log(ctx, actorID, auditlog.ActionCustomerCredit,
			fmt.Sprintf("Credit of %s extended to %s on sale %s", sale.BalanceDue.StringFixed(2), sale.CustomerName, sale.ID))
	}
	return CheckoutResult{Sale: sale, Receipt: s.receipt(ctx, sale)}, nil
}

// Receipt rebuilds the print snapshot of a past sale.
func (s *Service) Receipt(ctx context.Context, pharmacyID, saleID string) (Receipt, error) {
	sale, err := s.GetSale(ctx, pharmacyID, saleID)
	if err != nil {
		return Receipt{}, err
	}
	return s.receipt(ctx, sale), nil
}

func (s *Service) receipt(ctx context.Context, sale Sale) Receipt {
	r := Receipt{
		PharmacyName:   "Pharmacy",
		SaleID:         sale.ID,
		Date:           sale.Date,
		CustomerName:   sale.CustomerName,
		Lines:          sale.Items,
		Subtotal:       sale.Subtotal,
		GSTAmount:      sale.GSTAmount,
		RoundedTotal:   sale.RoundedTotal,
		AmountPaid:     sale.AmountPaid,
		BalanceDue:     sale.BalanceDue,
		Change:         sale.Change,
		PaymentMode:    sale.PaymentMode,
		PrescriptionID: sale.PrescriptionID,
	}
	users, err := identity.Users.All(ctx, s.docs)
	if err != nil {
		s.logger.Warn().Err(err).Str("sale_id", sale.ID).Msg("receipt: pharmacy details unavailable")
		return r
	}
	for _, u := range users {
		if u.ID != sale.PharmacyID {
			continue
		}
		r.PharmacyName = u.Name
		if p := u.PharmacyProfile; p != nil {
			r.PharmacyAddress = strings.Trim(strings.Join([]string{p.Address, p.City, p.State, p.Pincode}, ", "), ", ")
			r.GSTIN = p.GSTIN
		}
	}
	return r
}

// ReturnRequest selects per-line quantities of a past sale to take back.
type ReturnRequest struct {
	SaleID string        `json:"saleId"`
	Lines  []LineRequest `json:"lines"`
}

// Return takes goods back against a sale. Each quantity is clamped to what is
// still returnable on that line; a request that clamps to nothing is rejected.
func (s *Service) Return(ctx context.Context, actorID, pharmacyID string, req ReturnRequest) (SalesReturn, error) {
	var ret SalesReturn
	err := s.writer.Do(ctx, func(u *store.Unit) error {
		saleList, err := sales.Load(ctx, u)
		if err != nil {
			return err
		}
		si := indexSale(saleList, pharmacyID, req.SaleID)
		if si < 0 {
			return apperr.NotFound("sale", req.SaleID)
		}
		sale := saleList[si]

		prior, err := returns.Load(ctx, u)
		if err != nil {
			return err
		}
		lines := ClampReturn(sale, prior, req.Lines)
		if len(lines) == 0 {
			return apperr.Validation("nothing to return: all quantities are zero")
		}

		items, err := inventory.Load(ctx, u)
		if err != nil {
			return err
		}
		now := s.now()
		for _, l := range lines {
			i := indexItem(items, pharmacyID, l.InventoryItemID)
			if i < 0 {
				return apperr.NotFound("inventory item", l.InventoryItemID)
			}
			items[i].Stock += l.Quantity
			items[i].UpdatedAt = now
		}
		refund := RefundFor(sale, prior, lines)
		if err := inventory.Stage(u, items); err != nil {
			return err
		}

		if sale.CustomerID != "" {
			if _, err := ledger.Adjust(ctx, u, ledger.KindCustomer, sale.CustomerID, refund.Neg()); err != nil {
				return err
			}
		}

		seq, err := u.NextSequence(ctx, store.Returns)
		if err != nil {
			return err
		}
		ret = SalesReturn{
			ID:           fmt.Sprintf("RET-%06d", seq),
			SaleID:       sale.ID,
			PharmacyID:   pharmacyID,
			Date:         now,
			Items:        lines,
			RefundAmount: refund,
			CustomerID:   sale.CustomerID,
			CreatedBy:    actorID,
		}
		return returns.Stage(u, append(prior, ret))
	})
	if err != nil {
		return SalesReturn{}, err
	}
	s.audit.Log(ctx, actorID, auditlog.ActionSalesReturn,
		fmt.Sprintf("Return %s against sale %s: refund %s", ret.ID, ret.SaleID, ret.RefundAmount.StringFixed(2)))
	return ret, nil
}

// RefundFor values a clamped return at its line amounts. The return that
// brings every line of the sale back refunds what is left of the rounded
// total instead, so a full return settles exactly what the sale charged.
func RefundFor(sale Sale, prior []SalesReturn, lines []ReturnLine) decimal.Decimal {
	returned := make(map[string]int)
	refunded := decimal.Zero
	for _, r := range prior {
		if r.SaleID != sale.ID {
			continue
		}
		refunded = refunded.Add(r.RefundAmount)
		for _, l := range r.Items {
			returned[l.InventoryItemID] += l.Quantity
		}
	}
	refund := decimal.Zero
	for _, l := range lines {
		returned[l.InventoryItemID] += l.Quantity
		refund = refund.Add(l.Amount)
	}
	for _, sold := range sale.Items {
		if returned[sold.InventoryItemID] < sold.Quantity {
			return refund
		}
	}
	return sale.RoundedTotal.Sub(refunded)
}

// ClampReturn resolves requested return quantities against a sale and the
// returns already recorded for it. Each quantity ends up in
// [0, sold - already returned]; lines that clamp to zero are dropped.
func ClampReturn(sale Sale, prior []SalesReturn, requested []LineRequest) []ReturnLine {
	returned := make(map[string]int)
	for _, r := range prior {
		if r.SaleID != sale.ID {
			continue
		}
		for _, l := range r.Items {
			returned[l.InventoryItemID] += l.Quantity
		}
	}
	want := make(map[string]int)
	for _, l := range requested {
		want[l.InventoryItemID] += l.Quantity
	}

	var out []ReturnLine
	for _, sold := range sale.Items {
		qty, ok := want[sold.InventoryItemID]
		if !ok {
			continue
		}
		delete(want, sold.InventoryItemID)
		limit := sold.Quantity - returned[sold.InventoryItemID]
		if qty > limit {
			qty = limit
		}
		if qty <= 0 {
			continue
		}
		returned[sold.InventoryItemID] += qty
		out = append(out, ReturnLine{
			InventoryItemID: sold.InventoryItemID,
			Name:            sold.Name,
			Quantity:        qty,
			UnitMRP:         sold.UnitMRP,
			Amount:          sold.UnitMRP.Mul(decimal.NewFromInt(int64(qty))),
		})
	}
	return out
}

// buildCart adds each requested line to a fresh cart, so repeated items
// merge and every quantity is checked against current stock.
func buildCart(items []InventoryItem, pharmacyID string, lines []LineRequest) (Cart, error) {
	var cart Cart
	for _, l := range lines {
		i := indexItem(items, pharmacyID, l.InventoryItemID)
		if i < 0 {
			return Cart{}, apperr.NotFound("inventory item", l.InventoryItemID)
		}
		if err := cart.Add(items[i], l.Quantity); err != nil {
			return Cart{}, err
		}
	}
	return cart, nil
}
