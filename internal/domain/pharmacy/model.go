package pharmacy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/devxworld/erx/internal/store"
)

// Payment modes. CASH, UPI and CARD are selectable; PARTIAL and CREDIT are
// derived from the amount paid.
const (
	ModeCash    = "CASH"
	ModeUPI     = "UPI"
	ModeCard    = "CARD"
	ModePartial = "PARTIAL"
	ModeCredit  = "CREDIT"
)

// ExpiryLayout is the date format of InventoryItem.Expiry.
const ExpiryLayout = "2006-01-02"

var (
	inventory = store.NewCollection[InventoryItem](store.Inventory)
	sales     = store.NewCollection[Sale](store.Sales)
	returns   = store.NewCollection[SalesReturn](store.Returns)
	receipts  = store.NewCollection[GoodsReceipt](store.GoodsReceipts)
	expenses  = store.NewCollection[Expense](store.Expenses)
)

type InventoryItem struct {
	ID            string          `json:"id"`
	PharmacyID    string          `json:"pharmacyId"`
	Name          string          `json:"name"`
	Manufacturer  string          `json:"manufacturer,omitempty"`
	Batch         string          `json:"batch"`
	Expiry        string          `json:"expiry"`
	Stock         int             `json:"stock"`
	MRP           decimal.Decimal `json:"mrp"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	GSTPercent    decimal.Decimal `json:"gstPercent"`
	HSNCode       string          `json:"hsnCode,omitempty"`
	ReorderLevel  int             `json:"reorderLevel,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (i InventoryItem) expiryDate() (time.Time, bool) {
	t, err := time.Parse(ExpiryLayout, i.Expiry)
	return t, err == nil
}

type CartLine struct {
	InventoryItemID string          `json:"inventoryItemId"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	UnitMRP         decimal.Decimal `json:"unitMrp"`
	Batch           string          `json:"batch"`
	GSTPercent      decimal.Decimal `json:"gstPercent"`
}

// Amount is quantity times unit MRP.
func (l CartLine) Amount() decimal.Decimal {
	return l.UnitMRP.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Quote is the computed bill of a cart. MRP is tax inclusive, so GSTAmount is
// informational and not added to the total.
type Quote struct {
	Lines        []CartLine      `json:"lines"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	GSTAmount    decimal.Decimal `json:"gstAmount"`
	RoundedTotal decimal.Decimal `json:"roundedTotal"`
}

// LineRequest names an inventory item and a quantity.
type LineRequest struct {
	InventoryItemID string `json:"inventoryItemId"`
	Quantity        int    `json:"quantity"`
}

type CheckoutRequest struct {
	// Lines may be omitted to check out the pharmacy's open cart.
	Lines          []LineRequest   `json:"lines"`
	CustomerID     string          `json:"customerId,omitempty"`
	AmountPaid     decimal.Decimal `json:"amountPaid"`
	PaymentMode    string          `json:"paymentMode,omitempty"`
	PrescriptionID string          `json:"prescriptionId,omitempty"`
}

type Sale struct {
	ID             string          `json:"id"`
	PharmacyID     string          `json:"pharmacyId"`
	Date           time.Time       `json:"date"`
	Items          []CartLine      `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	GSTAmount      decimal.Decimal `json:"gstAmount"`
	RoundedTotal   decimal.Decimal `json:"roundedTotal"`
	AmountPaid     decimal.Decimal `json:"amountPaid"`
	BalanceDue     decimal.Decimal `json:"balanceDue"`
	Change         decimal.Decimal `json:"change"`
	PaymentMode    string          `json:"paymentMode"`
	CustomerID     string          `json:"customerId,omitempty"`
	CustomerName   string          `json:"customerName,omitempty"`
	PrescriptionID string          `json:"prescriptionId,omitempty"`
	CreatedBy      string          `json:"createdBy"`
}

// Receipt is the print-ready snapshot handed to the print collaborator.
type Receipt struct {
	PharmacyName    string          `json:"pharmacyName"`
	PharmacyAddress string          `json:"pharmacyAddress,omitempty"`
	GSTIN           string          `json:"gstin,omitempty"`
	SaleID          string          `json:"saleId"`
	Date            time.Time       `json:"date"`
	CustomerName    string          `json:"customerName,omitempty"`
	Lines           []CartLine      `json:"lines"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	GSTAmount       decimal.Decimal `json:"gstAmount"`
	RoundedTotal    decimal.Decimal `json:"roundedTotal"`
	AmountPaid      decimal.Decimal `json:"amountPaid"`
	BalanceDue      decimal.Decimal `json:"balanceDue"`
	Change          decimal.Decimal `json:"change"`
	PaymentMode     string          `json:"paymentMode"`
	PrescriptionID  string          `json:"prescriptionId,omitempty"`
}

type CheckoutResult struct {
	Sale    Sale    `json:"sale"`
	Receipt Receipt `json:"receipt"`
}

type ReturnLine struct {
	InventoryItemID string          `json:"inventoryItemId"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	UnitMRP         decimal.Decimal `json:"unitMrp"`
	Amount          decimal.Decimal `json:"amount"`
}

type SalesReturn struct {
	ID           string          `json:"id"`
	SaleID       string          `json:"saleId"`
	PharmacyID   string          `json:"pharmacyId"`
	Date         time.Time       `json:"date"`
	Items        []ReturnLine    `json:"items"`
	RefundAmount decimal.Decimal `json:"refundAmount"`
	CustomerID   string          `json:"customerId,omitempty"`
	CreatedBy    string          `json:"createdBy"`
}

// GRNLine receives stock into an existing item, or creates one when
// InventoryItemID is empty.
type GRNLine struct {
	InventoryItemID string          `json:"inventoryItemId,omitempty"`
	Name            string          `json:"name,omitempty"`
	Batch           string          `json:"batch,omitempty"`
	Expiry          string          `json:"expiry,omitempty"`
	MRP             decimal.Decimal `json:"mrp"`
	GSTPercent      decimal.Decimal `json:"gstPercent"`
	Quantity        int             `json:"quantity"`
	PurchasePrice   decimal.Decimal `json:"purchasePrice"`
}

type GRNRequest struct {
	SupplierID    string          `json:"supplierId"`
	InvoiceNumber string          `json:"invoiceNumber,omitempty"`
	Lines         []GRNLine       `json:"lines"`
	AmountPaid    decimal.Decimal `json:"amountPaid"`
}

type GoodsReceipt struct {
	ID            string          `json:"id"`
	PharmacyID    string          `json:"pharmacyId"`
	SupplierID    string          `json:"supplierId"`
	SupplierName  string          `json:"supplierName"`
	InvoiceNumber string          `json:"invoiceNumber,omitempty"`
	Date          time.Time       `json:"date"`
	Lines         []GRNLine       `json:"lines"`
	Total         decimal.Decimal `json:"total"`
	AmountPaid    decimal.Decimal `json:"amountPaid"`
	PayableAdded  decimal.Decimal `json:"payableAdded"`
	CreatedBy     string          `json:"createdBy"`
}

type Expense struct {
	ID         string          `json:"id"`
	PharmacyID string          `json:"pharmacyId"`
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note,omitempty"`
	Date       time.Time       `json:"date"`
}

// Summary is the pharmacy dashboard headline.
type Summary struct {
	SalesToday      decimal.Decimal `json:"salesToday"`
	InvoicesToday   int             `json:"invoicesToday"`
	ExpensesToday   decimal.Decimal `json:"expensesToday"`
	Receivables     decimal.Decimal `json:"receivables"`
	Payables        decimal.Decimal `json:"payables"`
	LowStockItems   int             `json:"lowStockItems"`
	NearExpiryItems int             `json:"nearExpiryItems"`
}
