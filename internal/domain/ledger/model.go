package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/devxworld/erx/internal/store"
)

// Party kinds. A supplier balance is what the pharmacy owes; a customer
// balance is what the customer owes the pharmacy.
const (
	KindSupplier = "SUPPLIER"
	KindCustomer = "CUSTOMER"
)

// Transaction intents.
const (
	PaymentMade     = "PAYMENT_MADE"
	PaymentReceived = "PAYMENT_RECEIVED"
	AddCharge       = "ADD_CHARGE"
)

var (
	suppliers = store.NewCollection[Party](store.Suppliers)
	customers = store.NewCollection[Party](store.Customers)
)

type Party struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	PharmacyID string          `json:"pharmacyId,omitempty"`
	Name       string          `json:"name"`
	Contact    string          `json:"contact,omitempty"`
	Email      string          `json:"email,omitempty"`
	Address    string          `json:"address,omitempty"`
	GSTIN      string          `json:"gstin,omitempty"`
	Balance    decimal.Decimal `json:"balance"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// VisibleTo reports whether a pharmacy may see the party. Shared parties
// carry no pharmacy id.
func (p Party) VisibleTo(pharmacyID string) bool {
	return p.PharmacyID == "" || pharmacyID == "" || p.PharmacyID == pharmacyID
}

// Transaction is one manual ledger movement.
type Transaction struct {
	Intent string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty"`
}

// Result is the party after a transaction plus the description that was audited.
type Result struct {
	Party       Party  `json:"party"`
	Description string `json:"description"`
}

func collectionFor(kind string) (store.Collection[Party], bool) {
	switch kind {
	case KindSupplier:
		return suppliers, true
	case KindCustomer:
		return customers, true
	default:
		return store.Collection[Party]{}, false
	}
}
