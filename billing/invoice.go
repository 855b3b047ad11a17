/*
invoice.go - Invoice entity methods and the status state machine

PURPOSE:
  All invoice mutation goes through the methods in this file. They
  validate synchronously and mutate nothing on failure, so the service
  layer can rely on "no error means the entity is persistable".

DERIVED FIELDS:
  subtotal = sum(quantity x price) over line items
  taxAmount = subtotal x taxRate / 100
  discountAmount = subtotal x discountRate / 100
  total = subtotal + taxAmount - discountAmount
  amountPaid = sum(payment.amount)
  amountDue = total - amountPaid
  Recompute is the only writer of these fields and is idempotent.

STATE MACHINE:
  draft -> pending -> {paid | cancelled}
  any -> cancelled (administrative)
  "overdue" is derived from dueDate and amountDue, never a stored
  transition target. A document stored as overdue by an older writer may
  still move to paid or cancelled.

SEE ALSO:
  - types.go: Field definitions
  - service.go: Persistence orchestration
*/
package billing

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// DERIVED-FIELD COMPUTATION
// =============================================================================

// Recompute rederives every computed field from line items, rates and
// payments. Idempotent: recomputing twice yields identical results.
func (inv *Invoice) Recompute() {
	subtotal := decimal.Zero
	for _, li := range inv.LineItems {
		subtotal = subtotal.Add(li.Amount())
	}
	inv.Subtotal = subtotal
	inv.TaxAmount = subtotal.Mul(inv.TaxRate).Div(hundred)
	inv.DiscountAmount = subtotal.Mul(inv.DiscountRate).Div(hundred)
	inv.Total = inv.Subtotal.Add(inv.TaxAmount).Sub(inv.DiscountAmount)

	paid := decimal.Zero
	for _, p := range inv.Payments {
		paid = paid.Add(p.Amount)
	}
	inv.AmountPaid = paid
	inv.AmountDue = inv.Total.Sub(inv.AmountPaid)
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the entity invariants. Field-level messages, no I/O.
func (inv *Invoice) Validate() error {
	fields := make(map[string]string)

	if inv.ClientID == "" {
		fields["clientId"] = "client is required"
	}
	if inv.Number == "" {
		fields["number"] = "invoice number is required"
	}
	if !inv.Status.Valid() {
		fields["status"] = "unknown status " + string(inv.Status)
	}
	if inv.IssueDate.IsZero() {
		fields["issueDate"] = "issue date is required"
	}
	if inv.DueDate.IsZero() {
		fields["dueDate"] = "due date is required"
	} else if !inv.IssueDate.IsZero() && inv.DueDate.Before(inv.IssueDate) {
		fields["dueDate"] = "due date must not be before issue date"
	}

	if len(inv.LineItems) == 0 {
		fields["lineItems"] = "at least one line item is required"
	}
	for i, li := range inv.LineItems {
		if li.Description == "" {
			fields[itemField(i, "description")] = "description is required"
		}
		if !li.Quantity.IsPositive() {
			fields[itemField(i, "quantity")] = "quantity must be positive"
		}
		if li.UnitPrice.IsNegative() {
			fields[itemField(i, "price")] = "price must not be negative"
		}
	}

	if inv.TaxRate.IsNegative() {
		fields["taxRate"] = "tax rate must not be negative"
	}
	if inv.DiscountRate.IsNegative() {
		fields["discountRate"] = "discount rate must not be negative"
	}

	return newValidationError(fields)
}

func itemField(i int, name string) string {
	return "lineItems[" + strconv.Itoa(i) + "]." + name
}

// =============================================================================
// PAYMENTS - Append-only
// =============================================================================

// AddPayment validates and appends a payment, recomputes amounts, and
// advances status: a first payment on a draft implies submission, and a
// payment covering the outstanding amount marks the invoice paid.
// On error nothing is mutated.
func (inv *Invoice) AddPayment(p Payment) error {
	if inv.Status == StatusCancelled {
		return &TransitionError{
			From:   StatusCancelled,
			To:     StatusCancelled,
			Reason: "cancelled invoices accept no payments",
		}
	}

	fields := make(map[string]string)
	if !p.Amount.IsPositive() {
		fields["amount"] = "payment amount must be positive"
	}
	if p.Date.IsZero() {
		fields["date"] = "payment date is required"
	}
	if p.Method == "" {
		fields["method"] = "payment method is required"
	}
	if err := newValidationError(fields); err != nil {
		return err
	}

	inv.Payments = append(inv.Payments, p)
	inv.Recompute()

	if inv.Status == StatusDraft {
		inv.Status = StatusPending
	}
	if !inv.AmountDue.IsPositive() && inv.Status != StatusPaid {
		inv.Status = StatusPaid
	}
	return nil
}

// =============================================================================
// STATUS STATE MACHINE
// =============================================================================

// transitions lists the legal explicit edges besides any -> cancelled.
var transitions = map[Status][]Status{
	StatusDraft:   {StatusPending},
	StatusPending: {StatusPaid},
	// A document stored as overdue by an older writer can still settle.
	StatusOverdue: {StatusPaid},
}

// TransitionTo applies an explicit status change. It fails fast, before
// any persistence call, on unknown targets and terminal sources.
func (inv *Invoice) TransitionTo(next Status) error {
	if !next.Valid() {
		return &TransitionError{From: inv.Status, To: next, Reason: "unknown status"}
	}
	if next == StatusOverdue {
		return &TransitionError{From: inv.Status, To: next, Reason: "overdue is derived, not a stored transition"}
	}
	if inv.Status == StatusCancelled {
		return &TransitionError{From: inv.Status, To: next, Reason: "cancelled is terminal"}
	}
	if next == StatusCancelled {
		inv.Status = StatusCancelled
		return nil
	}
	for _, allowed := range transitions[inv.Status] {
		if next == allowed {
			inv.Status = next
			return nil
		}
	}
	return &TransitionError{From: inv.Status, To: next}
}

// IsOverdue reports the derived overdue state: not settled, past due,
// with something still outstanding. It never mutates stored status.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	if inv.Status == StatusPaid || inv.Status == StatusCancelled {
		return false
	}
	return now.After(inv.DueDate) && inv.AmountDue.IsPositive()
}

// =============================================================================
// PARTIAL UPDATES
// =============================================================================

// InvoiceUpdate is a partial update. Nil pointers leave fields untouched;
// a non-nil LineItems replaces the whole sequence. Computed fields are
// never updatable - they are rederived after apply.
type InvoiceUpdate struct {
	ClientID     *string
	Number       *string
	IssueDate    *time.Time
	DueDate      *time.Time
	LineItems    []LineItem
	TaxRate      *decimal.Decimal
	DiscountRate *decimal.Decimal
	Notes        *string
	Terms        *string
}

// FieldChange is a before/after pair for one changed field.
type FieldChange struct {
	Before any
	After  any
}

// Apply patches the entity and rederives computed fields, returning the
// diff of fields that actually changed. The caller re-validates before
// persisting.
func (inv *Invoice) Apply(u InvoiceUpdate) map[string]FieldChange {
	diff := make(map[string]FieldChange)

	if u.ClientID != nil && *u.ClientID != inv.ClientID {
		diff["clientId"] = FieldChange{Before: inv.ClientID, After: *u.ClientID}
		inv.ClientID = *u.ClientID
	}
	if u.Number != nil && *u.Number != inv.Number {
		diff["number"] = FieldChange{Before: inv.Number, After: *u.Number}
		inv.Number = *u.Number
	}
	if u.IssueDate != nil && !u.IssueDate.Equal(inv.IssueDate) {
		diff["issueDate"] = FieldChange{Before: formatTime(inv.IssueDate), After: formatTime(*u.IssueDate)}
		inv.IssueDate = *u.IssueDate
	}
	if u.DueDate != nil && !u.DueDate.Equal(inv.DueDate) {
		diff["dueDate"] = FieldChange{Before: formatTime(inv.DueDate), After: formatTime(*u.DueDate)}
		inv.DueDate = *u.DueDate
	}
	if u.LineItems != nil && !lineItemsEqual(inv.LineItems, u.LineItems) {
		diff["lineItems"] = FieldChange{Before: lineItemsToList(inv.LineItems), After: lineItemsToList(u.LineItems)}
		inv.LineItems = u.LineItems
	}
	if u.TaxRate != nil && !u.TaxRate.Equal(inv.TaxRate) {
		diff["taxRate"] = FieldChange{Before: inv.TaxRate.String(), After: u.TaxRate.String()}
		inv.TaxRate = *u.TaxRate
	}
	if u.DiscountRate != nil && !u.DiscountRate.Equal(inv.DiscountRate) {
		diff["discountRate"] = FieldChange{Before: inv.DiscountRate.String(), After: u.DiscountRate.String()}
		inv.DiscountRate = *u.DiscountRate
	}
	if u.Notes != nil && *u.Notes != inv.Notes {
		diff["notes"] = FieldChange{Before: inv.Notes, After: *u.Notes}
		inv.Notes = *u.Notes
	}
	if u.Terms != nil && *u.Terms != inv.Terms {
		diff["terms"] = FieldChange{Before: inv.Terms, After: *u.Terms}
		inv.Terms = *u.Terms
	}

	inv.Recompute()
	return diff
}

func lineItemsEqual(a, b []LineItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Description != b[i].Description ||
			!a[i].Quantity.Equal(b[i].Quantity) ||
			!a[i].UnitPrice.Equal(b[i].UnitPrice) {
			return false
		}
	}
	return true
}
