package pharmacy

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/devxworld/erx/internal/domain/auditlog"
	"github.com/devxworld/erx/internal/domain/ledger"
	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/store"
	"github.com/devxworld/erx/internal/store/storetest"
)

var testNow = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *storetest.Flaky) {
	t.Helper()
	f := storetest.NewFlaky()
	logger := zerolog.New(io.Discard)
	w := store.NewWriter(f, logger)
	svc := NewService(f, w, auditlog.NewService(f, f, w, logger), logger)
	svc.SetClock(func() time.Time { return testNow })

	f.Seed(store.Inventory, []InventoryItem{
		{ID: "inv-para", PharmacyID: "ph-1", Name: "Paracetamol", Batch: "P-01", Expiry: "2027-01-01", Stock: 10, MRP: dec("30"), GSTPercent: dec("12")},
		{ID: "inv-amox", PharmacyID: "ph-1", Name: "Amoxicillin", Batch: "A-07", Expiry: "2026-03-01", Stock: 3, MRP: dec("85.50"), GSTPercent: dec("12")},
		{ID: "inv-other", PharmacyID: "ph-2", Name: "Paracetamol", Batch: "X-11", Expiry: "2027-06-01", Stock: 50, MRP: dec("28")},
	})
	f.Seed(store.Customers, []ledger.Party{
		{ID: "cust-1", Kind: ledger.KindCustomer, PharmacyID: "ph-1", Name: "Ravi Kumar", Balance: decimal.Zero},
		{ID: "cust-2", Kind: ledger.KindCustomer, PharmacyID: "ph-2", Name: "Meera Shah", Balance: decimal.Zero},
	})
	f.Seed(store.Suppliers, []ledger.Party{
		{ID: "sup-1", Kind: ledger.KindSupplier, Name: "Apollo Wholesale", Balance: decimal.Zero},
	})
	return svc, f
}

func stockOf(t *testing.T, ds store.DocumentStore, id string) int {
	t.Helper()
	items, err := inventory.All(context.Background(), ds)
	if err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	for _, it := range items {
		if it.ID == id {
			return it.Stock
		}
	}
	t.Fatalf("inventory item %s not found", id)
	return 0
}

func balanceOf(t *testing.T, ds store.DocumentStore, kind, id string) decimal.Decimal {
	t.Helper()
	parties, err := ledger.Parties(context.Background(), ds, kind)
	if err != nil {
		t.Fatalf("load %s ledger: %v", kind, err)
	}
	for _, p := range parties {
		if p.ID == id {
			return p.Balance
		}
	}
	t.Fatalf("party %s not found", id)
	return decimal.Zero
}

func auditActions(t *testing.T, f *storetest.Flaky) []string {
	t.Helper()
	rows, err := f.ListAudit(context.Background(), 50)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Action
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

type fakeLinker struct {
	calls []string
	err   error
}

func (l *fakeLinker) MarkDispensed(_ context.Context, _ *store.Unit, actorID, rxID, pharmacyID string) error {
	l.calls = append(l.calls, actorID+":"+rxID+"@"+pharmacyID)
	return l.err
}

func TestCheckout_WalkInCash(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	res, err := svc.Checkout(ctx, "ph-1", "ph-1", CheckoutRequest{
		Lines:      []LineRequest{{InventoryItemID: "inv-para", Quantity: 2}, {InventoryItemID: "inv-amox", Quantity: 1}},
		AmountPaid: dec("200"),
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	sale := res.Sale
	if sale.ID != "INV-000001" {
		t.Errorf("expected INV-000001, got %s", sale.ID)
	}
	if !sale.Subtotal.Equal(dec("145.5")) || !sale.RoundedTotal.Equal(dec("146")) || !sale.Change.Equal(dec("54")) {
		t.Errorf("unexpected totals: subtotal %s total %s change %s", sale.Subtotal, sale.RoundedTotal, sale.Change)
	}
	if sale.PaymentMode != ModeCash || !sale.BalanceDue.IsZero() {
		t.Errorf("expected settled cash sale, got %s due %s", sale.PaymentMode, sale.BalanceDue)
	}
	if got := stockOf(t, f, "inv-para"); got != 8 {
		t.Errorf("expected paracetamol stock 8, got %d", got)
	}
	if got := stockOf(t, f, "inv-amox"); got != 2 {
		t.Errorf("expected amoxicillin stock 2, got %d", got)
	}
	if res.Receipt.SaleID != sale.ID || len(res.Receipt.Lines) != 2 {
		t.Errorf("unexpected receipt: %+v", res.Receipt)
	}
	if actions := auditActions(t, f); !contains(actions, auditlog.ActionSaleCompleted) || contains(actions, auditlog.ActionCustomerCredit) {
		t.Errorf("unexpected audit actions %v", actions)
	}

	second, err := svc.Checkout(ctx, "ph-1", "ph-1", CheckoutRequest{
		Lines: []LineRequest{{InventoryItemID: "inv-para", Quantity: 1}}, AmountPaid: dec("30"), PaymentMode: "upi",
	})
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if second.Sale.ID != "INV-000002" || second.Sale.PaymentMode != ModeUPI {
		t.Errorf("unexpected second sale %s %s", second.Sale.ID, second.Sale.PaymentMode)
	}
}

func TestCheckout_WalkInShortfallWritesNothing(t *testing.T) {
	svc, f := newTestService(t)

	_, err := svc.Checkout(context.Background(), "ph-1", "ph-1", CheckoutRequest{
		Lines:      []LineRequest{{InventoryItemID: "inv-para", Quantity: 5}},
		AmountPaid: dec("100"),
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := stockOf(t, f, "inv-para"); got != 10 {
		t.Errorf("expected stock untouched, got %d", got)
	}
	if list, _ := svc.ListSales(context.Background(), "ph-1", ""); len(list) != 0 {
		t.Errorf("expected no sale, got %+v", list)
	}
	if len(f.Puts()) != 0 {
		t.Errorf("expected no writes, got %v", f.Puts())
	}
}

func TestCheckout_CreditToCustomer(t *testing.T) {
	svc, f := newTestService(t)

	res, err := svc.Checkout(context.Background(), "ph-1", "ph-1", CheckoutRequest{
		Lines:      []LineRequest{{InventoryItemID: "inv-amox", Quantity: 2}},
		CustomerID: "cust-1",
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Sale.PaymentMode != ModeCredit || !res.Sale.BalanceDue.Equal(dec("171")) {
		t.Errorf("expected credit sale of 171, got %s %s", res.Sale.PaymentMode, res.Sale.BalanceDue)
	}
	if res.Sale.CustomerName != "Ravi Kumar" {
		t.Errorf("expected customer name on sale, got %q", res.Sale.CustomerName)
	}
	if got := balanceOf(t, f, ledger.KindCustomer, "cust-1"); !got.Equal(dec("171")) {
		t.Errorf("expected receivable 171, got %s", got)
	}
	if !contains(auditActions(t, f), auditlog.ActionCustomerCredit) {
		t.Error("expected customer credit audit row")
	}
}

func TestCheckout_PartialPayment(t *testing.T) {
	svc, f := newTestService(t)

	res, err := svc.Checkout(context.Background(), "ph-1", "ph-1", CheckoutRequest{
		Lines:      []LineRequest{{InventoryItemID: "inv-para", Quantity: 5}},
		CustomerID: "cust-1",
		AmountPaid: dec("100"),
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Sale.PaymentMode != ModePartial || !res.Sale.BalanceDue.Equal(dec("50")) {
		t.Errorf("expected partial sale with 50 due, got %s %s", res.Sale.PaymentMode, res.Sale.BalanceDue)
	}
	if got := balanceOf(t, f, ledger.KindCustomer, "cust-1"); !got.Equal(dec("50")) {
		t.Errorf("expected receivable 50, got %s", got)
	}
}

func TestCheckout_AllOrNothing(t *testing.T) {
	svc, f := newTestService(t)
	f.FailPut(store.Sales, 1)

	_, err := svc.Checkout(context.Background(), "ph-1", "ph-1", CheckoutRequest{
		Lines:      []LineRequest{{InventoryItemID: "inv-para", Quantity: 3}},
		CustomerID: "cust-1",
	})
	if !errors.Is(err, apperr.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if got := stockOf(t, f, "inv-para"); got != 10 {
		t.Errorf("expected stock restored to 10, got %d", got)
	}
	if got := balanceOf(t, f, ledger.KindCustomer, "cust-1"); !got.IsZero() {
		t.Errorf("expected customer balance restored, got %s", got)
	}
	if contains(auditActions(t, f), auditlog.ActionSaleCompleted) {
		t.Error("expected no sale audit row for a failed checkout")
	}
}

func TestCheckout_Rejections(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  CheckoutRequest
		want error
	}{
		{"empty cart", CheckoutRequest{}, apperr.ErrState},
		{"unknown item", CheckoutRequest{Lines: []LineRequest{{InventoryItemID: "inv-x", Quantity: 1}}}, apperr.ErrNotFound},
		{"other pharmacy's item", CheckoutRequest{Lines: []LineRequest{{InventoryItemID: "inv-other", Quantity: 1}}, AmountPaid: dec("28")}, apperr.ErrNotFound},
		{"over stock", CheckoutRequest{Lines: []LineRequest{{InventoryItemID: "inv-amox", Quantity: 4}}, AmountPaid: dec("500")}, apperr.ErrValidation},
		{"other pharmacy's customer", CheckoutRequest{Lines: []LineRequest{{InventoryItemID: "inv-para", Quantity: 1}}, CustomerID: "cust-2"}, apperr.ErrNotFound},
		{"prescription without linker", CheckoutRequest{Lines: []LineRequest{{InventoryItemID: "inv-para", Quantity: 1}}, AmountPaid: dec("30"), PrescriptionID: "000000001"}, apperr.ErrState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Checkout(ctx, "ph-1", "ph-1", tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(f.Puts()) != 0 {
		t.Errorf("expected no writes, got %v", f.Puts())
	}
}

func TestCheckout_PrescriptionLinked(t *testing.T) {
	svc, f := newTestService(t)
	linker := &fakeLinker{}
	svc.SetRxLinker(linker)
	ctx := context.Background()

	res, err := svc.Checkout(ctx, "ph-1", "ph-1", CheckoutRequest{
		Lines:          []LineRequest{{InventoryItemID: "inv-para", Quantity: 1}},
		AmountPaid:     dec("30"),
		PrescriptionID: "000000004",
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Sale.PrescriptionID != "000000004" || len(linker.calls) != 1 || linker.calls[0] != "ph-1:000000004@ph-1" {
		t.Errorf("expected linked prescription, got %+v calls %v", res.Sale, linker.calls)
	}

	linker.err = apperr.Transition("DISPENSED", "DISPENSED")
	_, err = svc.Checkout(ctx, "ph-1", "ph-1", CheckoutRequest{
		Lines:          []LineRequest{{InventoryItemID: "inv-para", Quantity: 1}},
		AmountPaid:     dec("30"),
		PrescriptionID: "000000004",
	})
	if !errors.Is(err, apperr.ErrInvalidStateTransition) {
		t.Fatalf("expected transition error, got %v", err)
	}
	if got := stockOf(t, f, "inv-para"); got != 9 {
		t.Errorf("expected only the first sale to take stock, got %d", got)
	}
}

func TestReturn_ClampsAndRefunds(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	res, err := svc.Checkout(ctx, "ph-1", "ph-1", CheckoutRequest{
		Lines:      []LineRequest{{InventoryItemID: "inv-para", Quantity: 2}, {InventoryItemID: "inv-amox", Quantity: 1}},
		CustomerID: "cust-1",
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	ret, err := svc.Return(ctx, "ph-1", "ph-1", ReturnRequest{
		SaleID: res.Sale.ID,
		Lines:  []LineRequest{{InventoryItemID: "inv-para", Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if ret.ID != "RET-000001" || len(ret.Items) != 1 || ret.Items[0].Quantity != 2 {
		t.Fatalf("expected clamped return of 2, got %+v", ret)
	}
	if !ret.RefundAmount.Equal(dec("60")) {
		t.Errorf("expected refund 60, got %s", ret.RefundAmount)
	}
	if got := stockOf(t, f, "inv-para"); got != 10 {
		t.Errorf("expected stock back at 10, got %d", got)
	}
	if got := balanceOf(t, f, ledger.KindCustomer, "cust-1"); !got.Equal(dec("86")) {
		t.Errorf("expected receivable 146 - 60 = 86, got %s", got)
	}

	_, err = svc.Return(ctx, "ph-1", "ph-1", ReturnRequest{
		SaleID: res.Sale.ID,
		Lines:  []LineRequest{{InventoryItemID: "inv-para", Quantity: 1}},
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected fully returned line to be rejected, got %v", err)
	}
	if _, err := svc.Return(ctx, "ph-1", "ph-1", ReturnRequest{SaleID: "INV-999999"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected unknown sale to be not found, got %v", err)
	}
	if list, _ := svc.ListReturns(ctx, "ph-1", res.Sale.ID); len(list) != 1 {
		t.Errorf("expected one recorded return, got %d", len(list))
	}
}

func TestReturn_FullReturnSettlesRoundedTotal(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	res, err := svc.Checkout(ctx, "ph-1", "ph-1", CheckoutRequest{
		Lines:      []LineRequest{{InventoryItemID: "inv-amox", Quantity: 3}},
		CustomerID: "cust-1",
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !res.Sale.RoundedTotal.Equal(dec("257")) {
		t.Fatalf("expected 256.50 to round to 257, got %s", res.Sale.RoundedTotal)
	}

	first, err := svc.Return(ctx, "ph-1", "ph-1", ReturnRequest{
		SaleID: res.Sale.ID,
		Lines:  []LineRequest{{InventoryItemID: "inv-amox", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("first return: %v", err)
	}
	if !first.RefundAmount.Equal(dec("85.50")) {
		t.Errorf("expected partial refund at line value 85.50, got %s", first.RefundAmount)
	}

	last, err := svc.Return(ctx, "ph-1", "ph-1", ReturnRequest{
		SaleID: res.Sale.ID,
		Lines:  []LineRequest{{InventoryItemID: "inv-amox", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("last return: %v", err)
	}
	if !last.RefundAmount.Equal(dec("171.50")) {
		t.Errorf("expected 257 - 85.50 = 171.50, got %s", last.RefundAmount)
	}
	if got := balanceOf(t, f, ledger.KindCustomer, "cust-1"); !got.IsZero() {
		t.Errorf("expected receivable settled to 0, got %s", got)
	}
	if got := stockOf(t, f, "inv-amox"); got != 3 {
		t.Errorf("expected stock back at 3, got %d", got)
	}
}

func TestReturn_RollsBackOnFailure(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	res, err := svc.Checkout(ctx, "ph-1", "ph-1", CheckoutRequest{
		Lines:      []LineRequest{{InventoryItemID: "inv-amox", Quantity: 2}},
		CustomerID: "cust-1",
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	f.FailPut(store.Returns, 1)
	_, err = svc.Return(ctx, "ph-1", "ph-1", ReturnRequest{
		SaleID: res.Sale.ID,
		Lines:  []LineRequest{{InventoryItemID: "inv-amox", Quantity: 1}},
	})
	if !errors.Is(err, apperr.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if !contains(f.Puts(), store.Customers) {
		t.Fatalf("expected the customer ledger to be written before the failure, puts %v", f.Puts())
	}
	if got := stockOf(t, f, "inv-amox"); got != 1 {
		t.Errorf("expected stock restored to 1, got %d", got)
	}
	if got := balanceOf(t, f, ledger.KindCustomer, "cust-1"); !got.Equal(dec("171")) {
		t.Errorf("expected receivable restored to 171, got %s", got)
	}
	if list, _ := svc.ListReturns(ctx, "ph-1", res.Sale.ID); len(list) != 0 {
		t.Errorf("expected no recorded return, got %d", len(list))
	}
}

func TestRefundFor(t *testing.T) {
	sale := Sale{ID: "INV-000001", RoundedTotal: dec("36"), Items: []CartLine{
		{InventoryItemID: "a", Quantity: 2, UnitMRP: dec("10.25")},
		{InventoryItemID: "b", Quantity: 1, UnitMRP: dec("15")},
	}}
	line := func(id string, qty int, unit string) ReturnLine {
		return ReturnLine{InventoryItemID: id, Quantity: qty, Amount: dec(unit).Mul(decimal.NewFromInt(int64(qty)))}
	}

	if got := RefundFor(sale, nil, []ReturnLine{line("a", 1, "10.25")}); !got.Equal(dec("10.25")) {
		t.Errorf("partial return: expected 10.25, got %s", got)
	}
	if got := RefundFor(sale, nil, []ReturnLine{line("a", 2, "10.25"), line("b", 1, "15")}); !got.Equal(dec("36")) {
		t.Errorf("full return: expected rounded total 36, got %s", got)
	}
	prior := []SalesReturn{
		{SaleID: "INV-000001", RefundAmount: dec("15"), Items: []ReturnLine{line("b", 1, "15")}},
		{SaleID: "INV-000009", RefundAmount: dec("99"), Items: []ReturnLine{line("a", 2, "10.25")}},
	}
	if got := RefundFor(sale, prior, []ReturnLine{line("a", 2, "10.25")}); !got.Equal(dec("21")) {
		t.Errorf("completing return: expected 36 - 15 = 21, got %s", got)
	}
}

func TestClampReturn(t *testing.T) {
	sale := Sale{ID: "INV-000001", Items: []CartLine{
		{InventoryItemID: "a", Name: "A", Quantity: 3, UnitMRP: dec("10")},
		{InventoryItemID: "b", Name: "B", Quantity: 1, UnitMRP: dec("5")},
	}}
	prior := []SalesReturn{
		{SaleID: "INV-000001", Items: []ReturnLine{{InventoryItemID: "a", Quantity: 1}}},
		{SaleID: "INV-000002", Items: []ReturnLine{{InventoryItemID: "a", Quantity: 3}}},
	}
	got := ClampReturn(sale, prior, []LineRequest{
		{InventoryItemID: "a", Quantity: 4},
		{InventoryItemID: "b", Quantity: -2},
		{InventoryItemID: "z", Quantity: 1},
	})
	if len(got) != 1 || got[0].InventoryItemID != "a" || got[0].Quantity != 2 || !got[0].Amount.Equal(dec("20")) {
		t.Errorf("unexpected clamp result %+v", got)
	}
}

func TestReceiveGoods_StockAndPayable(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	grn, err := svc.ReceiveGoods(ctx, "ph-1", "ph-1", GRNRequest{
		SupplierID:    "sup-1",
		InvoiceNumber: "AW-1021",
		Lines: []GRNLine{
			{InventoryItemID: "inv-para", Quantity: 10, PurchasePrice: dec("20")},
			{Name: "Cetirizine", Batch: "C-02", Expiry: "2027-09-01", MRP: dec("18"), Quantity: 5, PurchasePrice: dec("12")},
		},
		AmountPaid: dec("100"),
	})
	if err != nil {
		t.Fatalf("receive goods: %v", err)
	}
	if grn.ID != "GRN-000001" || !grn.Total.Equal(dec("260")) || !grn.PayableAdded.Equal(dec("160")) {
		t.Errorf("unexpected GRN %+v", grn)
	}
	if got := stockOf(t, f, "inv-para"); got != 20 {
		t.Errorf("expected stock 20, got %d", got)
	}
	if id := grn.Lines[1].InventoryItemID; id == "" || stockOf(t, f, id) != 5 {
		t.Errorf("expected new item with stock 5, got line %+v", grn.Lines[1])
	}
	if got := balanceOf(t, f, ledger.KindSupplier, "sup-1"); !got.Equal(dec("160")) {
		t.Errorf("expected payable 160, got %s", got)
	}
	if !contains(auditActions(t, f), auditlog.ActionGoodsReceived) {
		t.Error("expected goods received audit row")
	}
}

func TestReceiveGoods_Overpaid(t *testing.T) {
	svc, f := newTestService(t)

	grn, err := svc.ReceiveGoods(context.Background(), "ph-1", "ph-1", GRNRequest{
		SupplierID: "sup-1",
		Lines:      []GRNLine{{InventoryItemID: "inv-amox", Quantity: 2, PurchasePrice: dec("50")}},
		AmountPaid: dec("150"),
	})
	if err != nil {
		t.Fatalf("receive goods: %v", err)
	}
	if !grn.PayableAdded.IsZero() {
		t.Errorf("expected nothing payable, got %s", grn.PayableAdded)
	}
	if got := balanceOf(t, f, ledger.KindSupplier, "sup-1"); !got.IsZero() {
		t.Errorf("expected supplier balance unchanged, got %s", got)
	}
}

func TestReceiveGoods_RollsBackOnFailure(t *testing.T) {
	svc, f := newTestService(t)

	f.FailPut(store.GoodsReceipts, 1)
	_, err := svc.ReceiveGoods(context.Background(), "ph-1", "ph-1", GRNRequest{
		SupplierID: "sup-1",
		Lines:      []GRNLine{{InventoryItemID: "inv-para", Quantity: 10, PurchasePrice: dec("20")}},
	})
	if !errors.Is(err, apperr.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if !contains(f.Puts(), store.Suppliers) {
		t.Fatalf("expected the supplier ledger to be written before the failure, puts %v", f.Puts())
	}
	if got := stockOf(t, f, "inv-para"); got != 10 {
		t.Errorf("expected stock restored to 10, got %d", got)
	}
	if got := balanceOf(t, f, ledger.KindSupplier, "sup-1"); !got.IsZero() {
		t.Errorf("expected supplier balance restored to 0, got %s", got)
	}
}

func TestReceiveGoods_Rejections(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  GRNRequest
		want error
	}{
		{"no lines", GRNRequest{SupplierID: "sup-1"}, apperr.ErrValidation},
		{"zero quantity", GRNRequest{SupplierID: "sup-1", Lines: []GRNLine{{InventoryItemID: "inv-para"}}}, apperr.ErrValidation},
		{"new item without name", GRNRequest{SupplierID: "sup-1", Lines: []GRNLine{{Quantity: 1}}}, apperr.ErrValidation},
		{"unknown supplier", GRNRequest{SupplierID: "sup-9", Lines: []GRNLine{{InventoryItemID: "inv-para", Quantity: 1}}}, apperr.ErrNotFound},
		{"unknown item", GRNRequest{SupplierID: "sup-1", Lines: []GRNLine{{InventoryItemID: "inv-x", Quantity: 1}}}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ReceiveGoods(ctx, "ph-1", "ph-1", tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(f.Puts()) != 0 {
		t.Errorf("expected no writes, got %v", f.Puts())
	}
}

func TestAllocate_EarliestUnexpiredBatch(t *testing.T) {
	svc, f := newTestService(t)
	f.Seed(store.Inventory, []InventoryItem{
		{ID: "late", PharmacyID: "ph-1", Name: "Paracetamol", Expiry: "2026-09-01", Stock: 4},
		{ID: "early", PharmacyID: "ph-1", Name: "Paracetamol", Expiry: "2026-03-01", Stock: 4},
		{ID: "expired", PharmacyID: "ph-1", Name: "Paracetamol", Expiry: "2025-12-01", Stock: 4},
		{ID: "empty", PharmacyID: "ph-1", Name: "Cetirizine", Expiry: "2027-01-01", Stock: 0},
		{ID: "elsewhere", PharmacyID: "ph-2", Name: "Insulin", Expiry: "2027-01-01", Stock: 9},
	})
	w := store.NewWriter(f, zerolog.New(io.Discard))

	var unavailable []string
	err := w.Do(context.Background(), func(u *store.Unit) error {
		var err error
		unavailable, err = svc.Allocate(context.Background(), u, "ph-1", []string{"paracetamol ", "Cetirizine", "Insulin"})
		return err
	})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(unavailable) != 2 || unavailable[0] != "Cetirizine" || unavailable[1] != "Insulin" {
		t.Errorf("unexpected unavailable list %v", unavailable)
	}
	for id, want := range map[string]int{"early": 3, "late": 4, "expired": 4, "elsewhere": 9} {
		if got := stockOf(t, f, id); got != want {
			t.Errorf("%s: expected stock %d, got %d", id, want, got)
		}
	}
}

func TestSummary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Checkout(ctx, "ph-1", "ph-1", CheckoutRequest{
		Lines: []LineRequest{{InventoryItemID: "inv-para", Quantity: 1}}, CustomerID: "cust-1", AmountPaid: dec("10"),
	}); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if _, err := svc.RecordExpense(ctx, "ph-1", "ph-1", Expense{Category: "Rent", Amount: dec("500")}); err != nil {
		t.Fatalf("expense: %v", err)
	}

	sum, err := svc.Summary(ctx, "ph-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !sum.SalesToday.Equal(dec("30")) || sum.InvoicesToday != 1 || !sum.ExpensesToday.Equal(dec("500")) {
		t.Errorf("unexpected day totals %+v", sum)
	}
	if !sum.Receivables.Equal(dec("20")) {
		t.Errorf("expected receivables 20, got %s", sum.Receivables)
	}
	if sum.LowStockItems != 2 || sum.NearExpiryItems != 1 {
		t.Errorf("expected 2 low-stock and 1 near-expiry item, got %+v", sum)
	}
}
