/*
codec.go - (De)serialization boundary at the store edge

PURPOSE:
  The store is schemaless; the domain is not. This file is the only
  place where typed entities meet flat key/value maps. Unknown or extra
  fields coming back from the store are ignored, never merged into the
  typed entity.

WIRE SHAPE:
  Flat maps, ISO-8601 timestamp strings, decimal amounts as strings
  (never floats - precision survives the round trip), sub-records as
  lists of flat maps.

NOTE ON TIMESTAMPS:
  createdAt is written when known so a full replace does not reset it;
  updatedAt is always stamped by the store client, not here.
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/keel/invoice-engine/hstore"
)

// =============================================================================
// INVOICE
// =============================================================================

func invoiceToValue(inv *Invoice) hstore.Value {
	v := hstore.Value{
		"userId":         inv.UserID,
		"clientId":       inv.ClientID,
		"number":         inv.Number,
		"status":         string(inv.Status),
		"issueDate":      formatTime(inv.IssueDate),
		"dueDate":        formatTime(inv.DueDate),
		"lineItems":      lineItemsToList(inv.LineItems),
		"subtotal":       inv.Subtotal.String(),
		"taxRate":        inv.TaxRate.String(),
		"taxAmount":      inv.TaxAmount.String(),
		"discountRate":   inv.DiscountRate.String(),
		"discountAmount": inv.DiscountAmount.String(),
		"total":          inv.Total.String(),
		"amountPaid":     inv.AmountPaid.String(),
		"amountDue":      inv.AmountDue.String(),
		"payments":       paymentsToList(inv.Payments),
		"attachments":    attachmentsToList(inv.Attachments),
		"notes":          inv.Notes,
		"terms":          inv.Terms,
	}
	if !inv.CreatedAt.IsZero() {
		v["createdAt"] = formatTime(inv.CreatedAt)
	}
	return v
}

func invoiceFromValue(id string, v hstore.Value) *Invoice {
	inv := &Invoice{
		ID:             id,
		UserID:         readString(v, "userId"),
		ClientID:       readString(v, "clientId"),
		Number:         readString(v, "number"),
		Status:         Status(readString(v, "status")),
		IssueDate:      readTime(v, "issueDate"),
		DueDate:        readTime(v, "dueDate"),
		LineItems:      lineItemsFromList(v["lineItems"]),
		TaxRate:        readDecimal(v, "taxRate"),
		DiscountRate:   readDecimal(v, "discountRate"),
		Subtotal:       readDecimal(v, "subtotal"),
		TaxAmount:      readDecimal(v, "taxAmount"),
		DiscountAmount: readDecimal(v, "discountAmount"),
		Total:          readDecimal(v, "total"),
		AmountPaid:     readDecimal(v, "amountPaid"),
		AmountDue:      readDecimal(v, "amountDue"),
		Payments:       paymentsFromList(v["payments"]),
		Attachments:    attachmentsFromList(v["attachments"]),
		Notes:          readString(v, "notes"),
		Terms:          readString(v, "terms"),
		CreatedAt:      readTime(v, "createdAt"),
		UpdatedAt:      readTime(v, "updatedAt"),
	}
	return inv
}

func lineItemsToList(items []LineItem) []any {
	out := make([]any, len(items))
	for i, li := range items {
		out[i] = map[string]any{
			"description": li.Description,
			"quantity":    li.Quantity.String(),
			"price":       li.UnitPrice.String(),
		}
	}
	return out
}

func lineItemsFromList(raw any) []LineItem {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]LineItem, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, LineItem{
			Description: readString(m, "description"),
			Quantity:    readDecimal(m, "quantity"),
			UnitPrice:   readDecimal(m, "price"),
		})
	}
	return out
}

func paymentsToList(payments []Payment) []any {
	out := make([]any, len(payments))
	for i, p := range payments {
		out[i] = map[string]any{
			"amount": p.Amount.String(),
			"date":   formatTime(p.Date),
			"method": p.Method,
			"note":   p.Note,
		}
	}
	return out
}

func paymentsFromList(raw any) []Payment {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]Payment, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Payment{
			Amount: readDecimal(m, "amount"),
			Date:   readTime(m, "date"),
			Method: readString(m, "method"),
			Note:   readString(m, "note"),
		})
	}
	return out
}

func attachmentsToList(attachments []Attachment) []any {
	out := make([]any, len(attachments))
	for i, a := range attachments {
		out[i] = map[string]any{
			"name": a.Name,
			"size": a.Size,
			"type": a.ContentType,
			"url":  a.URL,
			"path": a.StoragePath,
		}
	}
	return out
}

func attachmentsFromList(raw any) []Attachment {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]Attachment, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Attachment{
			Name:        readString(m, "name"),
			Size:        readInt64(m, "size"),
			ContentType: readString(m, "type"),
			URL:         readString(m, "url"),
			StoragePath: readString(m, "path"),
		})
	}
	return out
}

// =============================================================================
// CLIENT
// =============================================================================

func clientToValue(c *Client) hstore.Value {
	v := hstore.Value{
		"userId":   c.UserID,
		"name":     c.Name,
		"email":    c.Email,
		"company":  c.Company,
		"phone":    c.Phone,
		"street":   c.Address.Street,
		"city":     c.Address.City,
		"state":    c.Address.State,
		"postal":   c.Address.PostalCode,
		"country":  c.Address.Country,
		"taxId":    c.TaxID,
		"notes":    c.Notes,
		"isActive": c.Active,
	}
	if !c.CreatedAt.IsZero() {
		v["createdAt"] = formatTime(c.CreatedAt)
	}
	return v
}

func clientFromValue(id string, v hstore.Value) *Client {
	return &Client{
		ID:      id,
		UserID:  readString(v, "userId"),
		Name:    readString(v, "name"),
		Email:   readString(v, "email"),
		Company: readString(v, "company"),
		Phone:   readString(v, "phone"),
		Address: Address{
			Street:     readString(v, "street"),
			City:       readString(v, "city"),
			State:      readString(v, "state"),
			PostalCode: readString(v, "postal"),
			Country:    readString(v, "country"),
		},
		TaxID:     readString(v, "taxId"),
		Notes:     readString(v, "notes"),
		Active:    readBool(v, "isActive"),
		CreatedAt: readTime(v, "createdAt"),
		UpdatedAt: readTime(v, "updatedAt"),
	}
}

func addressToValue(a Address) map[string]any {
	return map[string]any{
		"street":  a.Street,
		"city":    a.City,
		"state":   a.State,
		"postal":  a.PostalCode,
		"country": a.Country,
	}
}

// =============================================================================
// FIELD HELPERS - Tolerant reads, unknown shapes ignored
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func readString(v map[string]any, key string) string {
	s, _ := v[key].(string)
	return s
}

func readBool(v map[string]any, key string) bool {
	b, _ := v[key].(bool)
	return b
}

func readInt64(v map[string]any, key string) int64 {
	switch n := v[key].(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// readDecimal parses amounts stored as strings; numeric values from
// foreign writers are accepted too.
func readDecimal(v map[string]any, key string) decimal.Decimal {
	switch n := v[key].(type) {
	case string:
		if d, err := decimal.NewFromString(n); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(n)
	case int64:
		return decimal.NewFromInt(n)
	}
	return decimal.Zero
}

func readTime(v map[string]any, key string) time.Time {
	s, ok := v[key].(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
