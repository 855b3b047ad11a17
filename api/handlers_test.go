package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keel/invoice-engine/billing"
	"github.com/keel/invoice-engine/blob"
	"github.com/keel/invoice-engine/hstore"
	"github.com/keel/invoice-engine/hstore/store"
)

// =============================================================================
// FIXTURES
// =============================================================================

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	m := store.NewMemory()
	t.Cleanup(m.Close)
	client, err := hstore.NewDefault(m)
	require.NoError(t, err)

	activity := billing.NewActivityLog(client, "org1")
	invoices := billing.NewInvoiceService(client, blob.NewMemory(), activity)
	clients := billing.NewClientService(client, activity)
	return NewRouter(NewHandler(invoices, clients, activity, zerolog.Nop()))
}

func doJSON(t *testing.T, srv http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "u1")
	req.Header.Set("X-Actor-Role", "admin")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

func sampleInvoiceBody() CreateInvoiceRequest {
	return CreateInvoiceRequest{
		ClientID:  "c1",
		Number:    "INV-001",
		IssueDate: "2024-03-01",
		DueDate:   "2024-03-31",
		LineItems: []LineItemDTO{
			{Description: "Design", Quantity: "10", Price: "50"},
		},
		TaxRate: "10",
	}
}

func createInvoice(t *testing.T, srv http.Handler) InvoiceDTO {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/invoices", sampleInvoiceBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dto InvoiceDTO
	decodeInto(t, rec, &dto)
	return dto
}

// =============================================================================
// INVOICES
// =============================================================================

func TestAPI_CreateAndGetInvoice(t *testing.T) {
	srv := newTestServer(t)

	created := createInvoice(t, srv)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "draft", created.Status)
	assert.Equal(t, "550", created.Total)
	assert.Equal(t, "u1", created.UserID, "actor identity from the X-Actor-Id header")

	rec := doJSON(t, srv, http.MethodGet, "/api/invoices/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got InvoiceDTO
	decodeInto(t, rec, &got)
	assert.Equal(t, created.Number, got.Number)
	assert.Equal(t, created.Total, got.Total)
}

func TestAPI_CreateInvoice_ValidationErrorShape(t *testing.T) {
	// GIVEN: A create body with no line items
	// WHEN: POST /api/invoices
	// THEN: 400 with per-field messages in the error body
	srv := newTestServer(t)

	body := sampleInvoiceBody()
	body.LineItems = nil
	rec := doJSON(t, srv, http.MethodPost, "/api/invoices", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	decodeInto(t, rec, &resp)
	assert.Contains(t, resp.Fields, "lineItems")
}

func TestAPI_GetInvoice_NotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/invoices/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_UpdateInvoice_Partial(t *testing.T) {
	srv := newTestServer(t)
	created := createInvoice(t, srv)

	notes := "net 30"
	rec := doJSON(t, srv, http.MethodPut, "/api/invoices/"+created.ID, UpdateInvoiceRequest{Notes: &notes})
	require.Equal(t, http.StatusOK, rec.Code)

	var got InvoiceDTO
	decodeInto(t, rec, &got)
	assert.Equal(t, notes, got.Notes)
	assert.Equal(t, created.Number, got.Number, "omitted fields untouched")
}

func TestAPI_AddPayment_SettlesInvoice(t *testing.T) {
	srv := newTestServer(t)
	created := createInvoice(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/invoices/"+created.ID+"/payments", AddPaymentRequest{
		Amount: "550",
		Date:   "2024-03-15",
		Method: "wire",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got InvoiceDTO
	decodeInto(t, rec, &got)
	assert.Equal(t, "paid", got.Status)
	assert.Equal(t, "0", got.AmountDue)
	require.Len(t, got.Payments, 1)
	assert.Equal(t, "550", got.Payments[0].Amount)
}

func TestAPI_UpdateStatus_IllegalTransitionConflicts(t *testing.T) {
	srv := newTestServer(t)
	created := createInvoice(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/invoices/"+created.ID+"/status", UpdateStatusRequest{Status: "paid"})
	assert.Equal(t, http.StatusConflict, rec.Code, "draft cannot jump straight to paid")

	rec = doJSON(t, srv, http.MethodPost, "/api/invoices/"+created.ID+"/status", UpdateStatusRequest{Status: "pending"})
	require.Equal(t, http.StatusOK, rec.Code)
	var got InvoiceDTO
	decodeInto(t, rec, &got)
	assert.Equal(t, "pending", got.Status)
}

func TestAPI_DeleteInvoice(t *testing.T) {
	srv := newTestServer(t)
	created := createInvoice(t, srv)

	rec := doJSON(t, srv, http.MethodDelete, "/api/invoices/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/invoices/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ListInvoices_StatusFilter(t *testing.T) {
	srv := newTestServer(t)
	created := createInvoice(t, srv)
	doJSON(t, srv, http.MethodPost, "/api/invoices/"+created.ID+"/status", UpdateStatusRequest{Status: "pending"})

	second := sampleInvoiceBody()
	second.Number = "INV-002"
	doJSON(t, srv, http.MethodPost, "/api/invoices", second)

	rec := doJSON(t, srv, http.MethodGet, "/api/invoices?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []InvoiceDTO
	decodeInto(t, rec, &got)
	require.Len(t, got, 1)
	assert.Equal(t, "INV-001", got[0].Number)
}

func TestAPI_InvalidJSONBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/invoices", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

func TestAPI_AttachmentLifecycle(t *testing.T) {
	srv := newTestServer(t)
	created := createInvoice(t, srv)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "scan.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/"+created.ID+"/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Actor-Id", "u1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got InvoiceDTO
	decodeInto(t, rec, &got)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "scan.pdf", got.Attachments[0].Name)

	rec = doJSON(t, srv, http.MethodDelete,
		"/api/invoices/"+created.ID+"/attachments?path="+got.Attachments[0].Path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &got)
	assert.Empty(t, got.Attachments)
}

func TestAPI_RemoveAttachment_MissingPathParam(t *testing.T) {
	srv := newTestServer(t)
	created := createInvoice(t, srv)

	rec := doJSON(t, srv, http.MethodDelete, "/api/invoices/"+created.ID+"/attachments", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CLIENTS
// =============================================================================

func TestAPI_ClientLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/clients", ClientRequest{
		Name:  "Acme Corp",
		Email: "ops@acme.io",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created ClientDTO
	decodeInto(t, rec, &created)
	assert.True(t, created.IsActive)

	rec = doJSON(t, srv, http.MethodPost, "/api/clients/"+created.ID+"/deactivate", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/clients/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got ClientDTO
	decodeInto(t, rec, &got)
	assert.False(t, got.IsActive)
	assert.Equal(t, "Acme Corp", got.Name)

	rec = doJSON(t, srv, http.MethodGet, "/api/clients?activeOnly=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ClientDTO
	decodeInto(t, rec, &list)
	assert.Empty(t, list)
}

func TestAPI_CreateClient_BadEmail(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/clients", ClientRequest{
		Name:  "Acme",
		Email: "not-an-email",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	decodeInto(t, rec, &resp)
	assert.Contains(t, resp.Fields, "email")
}

// =============================================================================
// ACTIVITIES
// =============================================================================

func TestAPI_ListActivities(t *testing.T) {
	srv := newTestServer(t)
	created := createInvoice(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/api/activities?entityId="+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []ActivityDTO
	decodeInto(t, rec, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "invoice_created", entries[0].Type)
	assert.Equal(t, "u1", entries[0].UserID)
}
