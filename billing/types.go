/*
Package billing contains the invoice domain model and its services.

PURPOSE:
  Invoices and clients are strongly typed value objects with validation
  rules, derived-field computation, and explicit lifecycle transitions.
  The services in this package own the entire write path: the store
  layer has no knowledge of domain invariants and is never called
  directly to mutate these documents.

KEY CONCEPTS IN THIS FILE (types.go):
  - Invoice / Client: The two document kinds
  - Status: The invoice lifecycle enum
  - LineItem / Payment / Attachment: Ordered sub-records of an invoice
  - Actor: Opaque identity consumed per call, never authenticated here

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for money, never floats
  2. Derived fields (subtotal, total, amountDue) are recomputed, never set
  3. Payments are append-only: no edits, no removals
  4. Mutation happens through entity methods, never field assignment

SEE ALSO:
  - invoice.go: Entity methods and the status state machine
  - codec.go: (De)serialization boundary at the store edge
  - service.go: The ledger service orchestrating entity + store
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS - Invoice lifecycle enum
// =============================================================================

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is in the status enum.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further explicit transition may leave s,
// other than cancellation.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// =============================================================================
// ACTOR - Opaque identity, consumed per call
// =============================================================================

// Actor is the caller's identity as handed over by the external identity
// provider. The domain never authenticates; it only records who acted.
type Actor struct {
	ID   string
	Role string
}

// =============================================================================
// INVOICE SUB-RECORDS
// =============================================================================

type LineItem struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// Amount is the line total, quantity x unit price.
func (li LineItem) Amount() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPrice)
}

// Payment is one recorded payment. Payments are append-only.
type Payment struct {
	Amount decimal.Decimal
	Date   time.Time
	Method string
	Note   string
}

// Attachment describes one stored file blob on an invoice.
type Attachment struct {
	Name        string
	Size        int64
	ContentType string
	URL         string
	StoragePath string
}

// =============================================================================
// INVOICE - One billable claim awaiting review/payment
// =============================================================================

type Invoice struct {
	ID       string
	UserID   string
	ClientID string
	Number   string
	Status   Status

	IssueDate time.Time
	DueDate   time.Time

	LineItems []LineItem

	// Rates are settable; everything below them is derived.
	TaxRate      decimal.Decimal // percent
	DiscountRate decimal.Decimal // percent

	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	AmountPaid     decimal.Decimal
	AmountDue      decimal.Decimal

	Payments    []Payment
	Attachments []Attachment

	Notes string
	Terms string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// CLIENT - A billable counterparty
// =============================================================================

type Client struct {
	ID     string
	UserID string

	Name    string
	Email   string
	Company string
	Phone   string

	Address Address
	TaxID   string
	Notes   string

	// Active is the soft-delete flag. Deactivated clients keep their id
	// so invoices referencing them stay resolvable.
	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Address struct {
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}
