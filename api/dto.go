/*
dto.go - Request/response data structures

PURPOSE:
  Wire shapes for the HTTP API, separate from domain entities. Amounts
  travel as decimal strings to avoid float drift on the wire.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/keel/invoice-engine/billing"
)

// =============================================================================
// REQUESTS
// =============================================================================

type LineItemDTO struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
}

type CreateInvoiceRequest struct {
	ClientID     string        `json:"clientId"`
	Number       string        `json:"number"`
	IssueDate    string        `json:"issueDate"` // ISO-8601
	DueDate      string        `json:"dueDate"`
	LineItems    []LineItemDTO `json:"lineItems"`
	TaxRate      string        `json:"taxRate"`
	DiscountRate string        `json:"discountRate"`
	Notes        string        `json:"notes"`
	Terms        string        `json:"terms"`
}

type UpdateInvoiceRequest struct {
	ClientID     *string       `json:"clientId"`
	Number       *string       `json:"number"`
	IssueDate    *string       `json:"issueDate"`
	DueDate      *string       `json:"dueDate"`
	LineItems    []LineItemDTO `json:"lineItems"`
	TaxRate      *string       `json:"taxRate"`
	DiscountRate *string       `json:"discountRate"`
	Notes        *string       `json:"notes"`
	Terms        *string       `json:"terms"`
}

type AddPaymentRequest struct {
	Amount string `json:"amount"`
	Date   string `json:"date"`
	Method string `json:"method"`
	Note   string `json:"note"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type ClientRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Phone   string `json:"phone"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Postal  string `json:"postalCode"`
	Country string `json:"country"`
	TaxID   string `json:"taxId"`
	Notes   string `json:"notes"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type PaymentDTO struct {
	Amount string `json:"amount"`
	Date   string `json:"date"`
	Method string `json:"method"`
	Note   string `json:"note,omitempty"`
}

type AttachmentDTO struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	URL  string `json:"url"`
	Path string `json:"path"`
}

type InvoiceDTO struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	ClientID       string          `json:"clientId"`
	Number         string          `json:"number"`
	Status         string          `json:"status"`
	Overdue        bool            `json:"overdue"`
	IssueDate      string          `json:"issueDate"`
	DueDate        string          `json:"dueDate"`
	LineItems      []LineItemDTO   `json:"lineItems"`
	Subtotal       string          `json:"subtotal"`
	TaxRate        string          `json:"taxRate"`
	TaxAmount      string          `json:"taxAmount"`
	DiscountRate   string          `json:"discountRate"`
	DiscountAmount string          `json:"discountAmount"`
	Total          string          `json:"total"`
	AmountPaid     string          `json:"amountPaid"`
	AmountDue      string          `json:"amountDue"`
	Payments       []PaymentDTO    `json:"payments"`
	Attachments    []AttachmentDTO `json:"attachments"`
	Notes          string          `json:"notes,omitempty"`
	Terms          string          `json:"terms,omitempty"`
	CreatedAt      string          `json:"createdAt"`
	UpdatedAt      string          `json:"updatedAt"`
}

type ClientDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Company   string `json:"company,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Street    string `json:"street,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Postal    string `json:"postalCode,omitempty"`
	Country   string `json:"country,omitempty"`
	TaxID     string `json:"taxId,omitempty"`
	Notes     string `json:"notes,omitempty"`
	IsActive  bool   `json:"isActive"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type ActivityDTO struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	UserID     string         `json:"userId"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Timestamp  string         `json:"timestamp"`
	Details    map[string]any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// MAPPING
// =============================================================================

func invoiceDTO(inv *billing.Invoice, now time.Time) InvoiceDTO {
	items := make([]LineItemDTO, len(inv.LineItems))
	for i, li := range inv.LineItems {
		items[i] = LineItemDTO{
			Description: li.Description,
			Quantity:    li.Quantity.String(),
			Price:       li.UnitPrice.String(),
		}
	}
	payments := make([]PaymentDTO, len(inv.Payments))
	for i, p := range inv.Payments {
		payments[i] = PaymentDTO{
			Amount: p.Amount.String(),
			Date:   formatDate(p.Date),
			Method: p.Method,
			Note:   p.Note,
		}
	}
	attachments := make([]AttachmentDTO, len(inv.Attachments))
	for i, a := range inv.Attachments {
		attachments[i] = AttachmentDTO{
			Name: a.Name,
			Size: a.Size,
			Type: a.ContentType,
			URL:  a.URL,
			Path: a.StoragePath,
		}
	}
	return InvoiceDTO{
		ID:             inv.ID,
		UserID:         inv.UserID,
		ClientID:       inv.ClientID,
		Number:         inv.Number,
		Status:         string(inv.Status),
		Overdue:        inv.IsOverdue(now),
		IssueDate:      formatDate(inv.IssueDate),
		DueDate:        formatDate(inv.DueDate),
		LineItems:      items,
		Subtotal:       inv.Subtotal.String(),
		TaxRate:        inv.TaxRate.String(),
		TaxAmount:      inv.TaxAmount.String(),
		DiscountRate:   inv.DiscountRate.String(),
		DiscountAmount: inv.DiscountAmount.String(),
		Total:          inv.Total.String(),
		AmountPaid:     inv.AmountPaid.String(),
		AmountDue:      inv.AmountDue.String(),
		Payments:       payments,
		Attachments:    attachments,
		Notes:          inv.Notes,
		Terms:          inv.Terms,
		CreatedAt:      formatDate(inv.CreatedAt),
		UpdatedAt:      formatDate(inv.UpdatedAt),
	}
}

func clientDTO(c *billing.Client) ClientDTO {
	return ClientDTO{
		ID:        c.ID,
		UserID:    c.UserID,
		Name:      c.Name,
		Email:     c.Email,
		Company:   c.Company,
		Phone:     c.Phone,
		Street:    c.Address.Street,
		City:      c.Address.City,
		State:     c.Address.State,
		Postal:    c.Address.PostalCode,
		Country:   c.Address.Country,
		TaxID:     c.TaxID,
		Notes:     c.Notes,
		IsActive:  c.Active,
		CreatedAt: formatDate(c.CreatedAt),
		UpdatedAt: formatDate(c.UpdatedAt),
	}
}

func activityDTO(a billing.Activity) ActivityDTO {
	return ActivityDTO{
		ID:         a.ID,
		Type:       string(a.Type),
		UserID:     a.UserID,
		EntityType: a.EntityType,
		EntityID:   a.EntityID,
		Timestamp:  formatDate(a.Timestamp),
		Details:    a.Details,
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
