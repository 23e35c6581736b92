package auditlog

import (
	"time"

	"github.com/devxworld/erx/internal/store"
)

// Actions emitted by the workflow services.
const (
	ActionRxDispensed     = "RX_DISPENSED"
	ActionRxRejected      = "RX_REJECTED"
	ActionRxCreated       = "RX_CREATED"
	ActionSaleCompleted   = "SALE_COMPLETED"
	ActionCustomerCredit  = "CUSTOMER_CREDIT"
	ActionSalesReturn     = "SALES_RETURN"
	ActionGoodsReceived   = "GRN_RECEIVED"
	ActionLedgerPayment   = "LEDGER_PAYMENT"
	ActionLedgerCharge    = "LEDGER_CHARGE"
	ActionPatientLinked   = "PATIENT_LINKED"
	ActionLabReport       = "LAB_REPORT_SUBMITTED"
	ActionUserStatus      = "USER_STATUS_CHANGED"
	ActionUserTerminated  = "USER_TERMINATED"
	ActionUserDeleted     = "USER_DELETED"
	ActionPasswordReset   = "PASSWORD_RESET"
	ActionExpenseRecorded = "EXPENSE_RECORDED"
)

// Entry is one audit record. Timestamp comes from the service clock and is
// not authoritative.
type Entry struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actorId"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

func (e Entry) row() store.AuditRow {
	return store.AuditRow{ID: e.ID, ActorID: e.ActorID, Action: e.Action, Details: e.Details, CreatedAt: e.Timestamp}
}

func fromRow(r store.AuditRow) Entry {
	return Entry{ID: r.ID, ActorID: r.ActorID, Action: r.Action, Details: r.Details, Timestamp: r.CreatedAt}
}
