package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func sampleInvoice() *Invoice {
	inv := &Invoice{
		ID:        "inv-1",
		UserID:    "u1",
		ClientID:  "c1",
		Number:    "INV-001",
		Status:    StatusDraft,
		IssueDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		LineItems: []LineItem{
			{Description: "Design", Quantity: dec("10"), UnitPrice: dec("50")},
			{Description: "Development", Quantity: dec("20"), UnitPrice: dec("75")},
		},
		TaxRate:      dec("10"),
		DiscountRate: dec("5"),
	}
	inv.Recompute()
	return inv
}

// =============================================================================
// DERIVED FIELDS
// =============================================================================

func TestRecompute_DerivesAllAmounts(t *testing.T) {
	// subtotal = 10x50 + 20x75 = 2000
	// tax = 2000 x 10% = 200, discount = 2000 x 5% = 100
	// total = 2000 + 200 - 100 = 2100
	inv := sampleInvoice()

	assert.True(t, inv.Subtotal.Equal(dec("2000")), "subtotal = %s", inv.Subtotal)
	assert.True(t, inv.TaxAmount.Equal(dec("200")), "tax = %s", inv.TaxAmount)
	assert.True(t, inv.DiscountAmount.Equal(dec("100")), "discount = %s", inv.DiscountAmount)
	assert.True(t, inv.Total.Equal(dec("2100")), "total = %s", inv.Total)
	assert.True(t, inv.AmountPaid.IsZero())
	assert.True(t, inv.AmountDue.Equal(dec("2100")))
}

func TestRecompute_Idempotent(t *testing.T) {
	inv := sampleInvoice()
	before := inv.Total

	inv.Recompute()
	inv.Recompute()

	assert.True(t, inv.Total.Equal(before))
	assert.True(t, inv.AmountDue.Equal(inv.Total.Sub(inv.AmountPaid)))
}

func TestRecompute_ExactDecimalArithmetic(t *testing.T) {
	// 0.1 + 0.2 style quantities must not drift through float rounding.
	inv := &Invoice{
		LineItems: []LineItem{
			{Description: "a", Quantity: dec("0.1"), UnitPrice: dec("3")},
			{Description: "b", Quantity: dec("0.2"), UnitPrice: dec("3")},
		},
	}
	inv.Recompute()
	assert.True(t, inv.Subtotal.Equal(dec("0.9")), "subtotal = %s", inv.Subtotal)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate_CollectsAllFieldErrors(t *testing.T) {
	// GIVEN: An invoice violating several invariants at once
	// WHEN: Validate runs
	// THEN: One ValidationError naming each offending field
	inv := &Invoice{
		Status:    StatusDraft,
		IssueDate: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		LineItems: []LineItem{
			{Description: "", Quantity: dec("0"), UnitPrice: dec("-1")},
		},
		TaxRate: dec("-1"),
	}

	err := inv.Validate()
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.True(t, IsClientError(err))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "clientId")
	assert.Contains(t, verr.Fields, "number")
	assert.Contains(t, verr.Fields, "dueDate")
	assert.Contains(t, verr.Fields, "lineItems[0].description")
	assert.Contains(t, verr.Fields, "lineItems[0].quantity")
	assert.Contains(t, verr.Fields, "lineItems[0].price")
	assert.Contains(t, verr.Fields, "taxRate")
}

func TestValidate_RequiresLineItems(t *testing.T) {
	inv := sampleInvoice()
	inv.LineItems = nil

	err := inv.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "lineItems")
}

func TestValidate_WellFormedInvoicePasses(t *testing.T) {
	require.NoError(t, sampleInvoice().Validate())
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestAddPayment_PartialMovesDraftToPending(t *testing.T) {
	inv := sampleInvoice()

	err := inv.AddPayment(Payment{
		Amount: dec("100"),
		Date:   time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Method: "wire",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, inv.Status)
	assert.True(t, inv.AmountPaid.Equal(dec("100")))
	assert.True(t, inv.AmountDue.Equal(dec("2000")))
}

func TestAddPayment_CoveringTotalMarksPaid(t *testing.T) {
	inv := sampleInvoice()

	require.NoError(t, inv.AddPayment(Payment{Amount: dec("2000"), Date: inv.IssueDate, Method: "wire"}))
	require.NoError(t, inv.AddPayment(Payment{Amount: dec("100"), Date: inv.IssueDate, Method: "card"}))

	assert.Equal(t, StatusPaid, inv.Status)
	assert.True(t, inv.AmountDue.IsZero())
	assert.Len(t, inv.Payments, 2, "payments are append-only, both retained")
}

func TestAddPayment_OverpaymentStillPaid(t *testing.T) {
	inv := sampleInvoice()

	require.NoError(t, inv.AddPayment(Payment{Amount: dec("3000"), Date: inv.IssueDate, Method: "wire"}))

	assert.Equal(t, StatusPaid, inv.Status)
	assert.True(t, inv.AmountDue.Equal(dec("-900")), "negative amountDue records the overpayment")
}

func TestAddPayment_RejectionLeavesStateUntouched(t *testing.T) {
	// GIVEN: A pending invoice with one payment
	// WHEN: An invalid payment is added
	// THEN: Nothing changed - no payment appended, amounts intact
	inv := sampleInvoice()
	require.NoError(t, inv.AddPayment(Payment{Amount: dec("100"), Date: inv.IssueDate, Method: "wire"}))
	due := inv.AmountDue

	err := inv.AddPayment(Payment{Amount: dec("0"), Method: ""})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "amount")
	assert.Contains(t, verr.Fields, "date")
	assert.Contains(t, verr.Fields, "method")

	assert.Len(t, inv.Payments, 1)
	assert.True(t, inv.AmountDue.Equal(due))
	assert.Equal(t, StatusPending, inv.Status)
}

func TestAddPayment_CancelledRefuses(t *testing.T) {
	inv := sampleInvoice()
	inv.Status = StatusCancelled

	err := inv.AddPayment(Payment{Amount: dec("100"), Date: inv.IssueDate, Method: "wire"})
	require.Error(t, err)
	assert.True(t, IsTransition(err))
	assert.Empty(t, inv.Payments)
}

func TestAddPayment_OnStoredOverdueSettles(t *testing.T) {
	// A document persisted as overdue by an older writer settles normally.
	inv := sampleInvoice()
	inv.Status = StatusOverdue

	require.NoError(t, inv.AddPayment(Payment{Amount: dec("2100"), Date: inv.IssueDate, Method: "wire"}))
	assert.Equal(t, StatusPaid, inv.Status)
}

// =============================================================================
// STATE MACHINE
// =============================================================================

func TestTransitionTo_LegalEdges(t *testing.T) {
	cases := []struct {
		from, to Status
	}{
		{StatusDraft, StatusPending},
		{StatusDraft, StatusCancelled},
		{StatusPending, StatusPaid},
		{StatusPending, StatusCancelled},
		{StatusPaid, StatusCancelled},
		{StatusOverdue, StatusPaid},
		{StatusOverdue, StatusCancelled},
	}
	for _, tc := range cases {
		inv := sampleInvoice()
		inv.Status = tc.from
		require.NoError(t, inv.TransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
		assert.Equal(t, tc.to, inv.Status)
	}
}

func TestTransitionTo_IllegalEdges(t *testing.T) {
	cases := []struct {
		from, to Status
	}{
		{StatusDraft, StatusPaid},
		{StatusPending, StatusDraft},
		{StatusPaid, StatusPending},
		{StatusPaid, StatusDraft},
		{StatusCancelled, StatusPending},
		{StatusCancelled, StatusPaid},
		{StatusOverdue, StatusPending},
	}
	for _, tc := range cases {
		inv := sampleInvoice()
		inv.Status = tc.from
		err := inv.TransitionTo(tc.to)
		require.Error(t, err, "%s -> %s must fail", tc.from, tc.to)
		assert.True(t, IsTransition(err))
		assert.Equal(t, tc.from, inv.Status, "failed transition must not mutate")
	}
}

func TestTransitionTo_OverdueNeverATarget(t *testing.T) {
	inv := sampleInvoice()
	inv.Status = StatusPending

	err := inv.TransitionTo(StatusOverdue)
	require.Error(t, err)
	assert.True(t, IsTransition(err))
	assert.Equal(t, StatusPending, inv.Status)
}

func TestTransitionTo_UnknownStatusFailsFast(t *testing.T) {
	inv := sampleInvoice()

	err := inv.TransitionTo(Status("archived"))
	require.Error(t, err)

	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "unknown status", terr.Reason)
}

// =============================================================================
// DERIVED OVERDUE
// =============================================================================

func TestIsOverdue(t *testing.T) {
	past := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) // after the sample due date

	pending := sampleInvoice()
	pending.Status = StatusPending
	assert.True(t, pending.IsOverdue(past))
	assert.False(t, pending.IsOverdue(pending.DueDate), "due date itself is not past due")

	paid := sampleInvoice()
	require.NoError(t, paid.AddPayment(Payment{Amount: dec("2100"), Date: paid.IssueDate, Method: "wire"}))
	assert.False(t, paid.IsOverdue(past))

	cancelled := sampleInvoice()
	cancelled.Status = StatusCancelled
	assert.False(t, cancelled.IsOverdue(past))

	settled := sampleInvoice()
	settled.Status = StatusPending
	settled.AmountDue = decimal.Zero
	assert.False(t, settled.IsOverdue(past), "nothing outstanding, nothing overdue")
}

// =============================================================================
// PARTIAL UPDATES
// =============================================================================

func TestApply_DiffsOnlyChangedFields(t *testing.T) {
	inv := sampleInvoice()
	sameNumber := inv.Number
	newNotes := "net 30"

	diff := inv.Apply(InvoiceUpdate{Number: &sameNumber, Notes: &newNotes})

	assert.NotContains(t, diff, "number", "writing the same value is not a change")
	require.Contains(t, diff, "notes")
	assert.Equal(t, "", diff["notes"].Before)
	assert.Equal(t, "net 30", diff["notes"].After)
}

func TestApply_LineItemChangeRecomputesAmounts(t *testing.T) {
	inv := sampleInvoice()

	diff := inv.Apply(InvoiceUpdate{
		LineItems: []LineItem{{Description: "Design", Quantity: dec("1"), UnitPrice: dec("100")}},
	})

	assert.Contains(t, diff, "lineItems")
	assert.True(t, inv.Subtotal.Equal(dec("100")))
	assert.True(t, inv.Total.Equal(dec("105")), "10%% tax minus 5%% discount on 100")
}

func TestApply_EmptyUpdateIsNoDiff(t *testing.T) {
	inv := sampleInvoice()
	assert.Empty(t, inv.Apply(InvoiceUpdate{}))
}
