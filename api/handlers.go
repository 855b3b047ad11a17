/*
handlers.go - HTTP API handlers for the invoice ledger

PURPOSE:
  Exposes the ledger services via REST. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Invoices:
    GET    /api/invoices                List (status/search/page filters)
    POST   /api/invoices                Create
    GET    /api/invoices/{id}           Get
    PUT    /api/invoices/{id}           Partial update
    DELETE /api/invoices/{id}           Delete (best-effort blob cleanup)
    POST   /api/invoices/{id}/payments  Record a payment
    POST   /api/invoices/{id}/status    Explicit status transition
    POST   /api/invoices/{id}/attachments    Upload (multipart)
    DELETE /api/invoices/{id}/attachments    Remove (?path=)

  Clients:
    GET    /api/clients                 List (search/activeOnly/page)
    POST   /api/clients                 Create
    GET    /api/clients/{id}            Get
    PUT    /api/clients/{id}            Partial update
    POST   /api/clients/{id}/deactivate Soft delete
    DELETE /api/clients/{id}            Hard delete (no cascade check)

  Activities:
    GET    /api/activities              Audit log (entity/actor filters)

IDENTITY:
  Authentication is external. The actor arrives as opaque headers
  (X-Actor-Id, X-Actor-Role) set by the fronting auth layer.

ERROR HANDLING:
  Domain errors map to statuses:
  - 400: validation errors
  - 404: not found
  - 409: illegal status transition
  - 403: permission denied at the store
  - 503: store unreachable / write timeout (retry affordance)
  - 500: anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/keel/invoice-engine/billing"
	"github.com/keel/invoice-engine/hstore"
)

const maxAttachmentSize = 16 << 20

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Invoices *billing.InvoiceService
	Clients  *billing.ClientService
	Activity *billing.ActivityLog
	Log      zerolog.Logger
}

func NewHandler(invoices *billing.InvoiceService, clients *billing.ClientService, activity *billing.ActivityLog, log zerolog.Logger) *Handler {
	return &Handler{Invoices: invoices, Clients: clients, Activity: activity, Log: log}
}

// actor extracts the opaque caller identity set by the auth layer.
func actor(r *http.Request) billing.Actor {
	return billing.Actor{
		ID:   r.Header.Get("X-Actor-Id"),
		Role: r.Header.Get("X-Actor-Role"),
	}
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	invoices, err := h.Invoices.List(r.Context(), billing.ListInvoicesOptions{
		Status:   billing.Status(q.Get("status")),
		ClientID: q.Get("clientId"),
		Search:   q.Get("search"),
		SortDesc: q.Get("sort") == "desc",
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	now := time.Now()
	dtos := make([]InvoiceDTO, len(invoices))
	for i, inv := range invoices {
		dtos[i] = invoiceDTO(inv, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}

	in, err := createInput(req)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	inv, err := h.Invoices.Create(r.Context(), in, actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoiceDTO(inv, time.Now()))
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Invoices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceDTO(inv, time.Now()))
}

func (h *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var req UpdateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}

	update, err := updateInput(req)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	inv, err := h.Invoices.Update(r.Context(), chi.URLParam(r, "id"), update, actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceDTO(inv, time.Now()))
}

func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := h.Invoices.Delete(r.Context(), chi.URLParam(r, "id"), actor(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	var req AddPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}

	amount, err := parseDecimal(req.Amount)
	if err != nil {
		h.badRequest(w, "invalid payment amount")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.badRequest(w, "invalid payment date")
		return
	}

	inv, err := h.Invoices.AddPayment(r.Context(), chi.URLParam(r, "id"), billing.Payment{
		Amount: amount,
		Date:   date,
		Method: req.Method,
		Note:   req.Note,
	}, actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceDTO(inv, time.Now()))
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}

	inv, err := h.Invoices.UpdateStatus(r.Context(), chi.URLParam(r, "id"), billing.Status(req.Status), actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceDTO(inv, time.Now()))
}

func (h *Handler) AddAttachment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAttachmentSize); err != nil {
		h.badRequest(w, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.badRequest(w, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAttachmentSize))
	if err != nil {
		h.badRequest(w, "unreadable file payload")
		return
	}

	contentType := header.Header.Get("Content-Type")
	inv, err := h.Invoices.AddAttachment(r.Context(), chi.URLParam(r, "id"), header.Filename, data, contentType, actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoiceDTO(inv, time.Now()))
}

func (h *Handler) RemoveAttachment(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		h.badRequest(w, "missing path query parameter")
		return
	}

	inv, err := h.Invoices.RemoveAttachment(r.Context(), chi.URLParam(r, "id"), path, actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceDTO(inv, time.Now()))
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	clients, err := h.Clients.List(r.Context(), billing.ListClientsOptions{
		Search:     q.Get("search"),
		ActiveOnly: q.Get("activeOnly") == "true",
		SortDesc:   q.Get("sort") == "desc",
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = clientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req ClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}

	c, err := h.Clients.Create(r.Context(), billing.CreateClientInput{
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Phone:   req.Phone,
		Address: billing.Address{
			Street:     req.Street,
			City:       req.City,
			State:      req.State,
			PostalCode: req.Postal,
			Country:    req.Country,
		},
		TaxID: req.TaxID,
		Notes: req.Notes,
	}, actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clientDTO(c))
}

func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.Clients.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clientDTO(c))
}

func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var req ClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}

	addr := billing.Address{
		Street:     req.Street,
		City:       req.City,
		State:      req.State,
		PostalCode: req.Postal,
		Country:    req.Country,
	}
	c, err := h.Clients.Update(r.Context(), chi.URLParam(r, "id"), billing.ClientUpdate{
		Name:    &req.Name,
		Email:   &req.Email,
		Company: &req.Company,
		Phone:   &req.Phone,
		Address: &addr,
		TaxID:   &req.TaxID,
		Notes:   &req.Notes,
	}, actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clientDTO(c))
}

func (h *Handler) DeactivateClient(w http.ResponseWriter, r *http.Request) {
	if err := h.Clients.Deactivate(r.Context(), chi.URLParam(r, "id"), actor(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.Clients.Delete(r.Context(), chi.URLParam(r, "id"), actor(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ACTIVITY HANDLERS
// =============================================================================

func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.Activity.List(r.Context(), billing.ActivityFilter{
		ActorID:    q.Get("actorId"),
		EntityType: q.Get("entityType"),
		EntityID:   q.Get("entityId"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	dtos := make([]ActivityDTO, len(entries))
	for i, a := range entries {
		dtos[i] = activityDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// INPUT MAPPING
// =============================================================================

func createInput(req CreateInvoiceRequest) (billing.CreateInvoiceInput, error) {
	items, err := lineItems(req.LineItems)
	if err != nil {
		return billing.CreateInvoiceInput{}, err
	}
	taxRate, err := parseDecimal(req.TaxRate)
	if err != nil {
		return billing.CreateInvoiceInput{}, err
	}
	discountRate, err := parseDecimal(req.DiscountRate)
	if err != nil {
		return billing.CreateInvoiceInput{}, err
	}
	issue, err := parseDate(req.IssueDate)
	if err != nil {
		return billing.CreateInvoiceInput{}, err
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		return billing.CreateInvoiceInput{}, err
	}
	return billing.CreateInvoiceInput{
		ClientID:     req.ClientID,
		Number:       req.Number,
		IssueDate:    issue,
		DueDate:      due,
		LineItems:    items,
		TaxRate:      taxRate,
		DiscountRate: discountRate,
		Notes:        req.Notes,
		Terms:        req.Terms,
	}, nil
}

func updateInput(req UpdateInvoiceRequest) (billing.InvoiceUpdate, error) {
	var u billing.InvoiceUpdate
	u.ClientID = req.ClientID
	u.Number = req.Number
	u.Notes = req.Notes
	u.Terms = req.Terms

	if req.IssueDate != nil {
		t, err := parseDate(*req.IssueDate)
		if err != nil {
			return u, err
		}
		u.IssueDate = &t
	}
	if req.DueDate != nil {
		t, err := parseDate(*req.DueDate)
		if err != nil {
			return u, err
		}
		u.DueDate = &t
	}
	if req.LineItems != nil {
		items, err := lineItems(req.LineItems)
		if err != nil {
			return u, err
		}
		u.LineItems = items
	}
	if req.TaxRate != nil {
		d, err := parseDecimal(*req.TaxRate)
		if err != nil {
			return u, err
		}
		u.TaxRate = &d
	}
	if req.DiscountRate != nil {
		d, err := parseDecimal(*req.DiscountRate)
		if err != nil {
			return u, err
		}
		u.DiscountRate = &d
	}
	return u, nil
}

func lineItems(dtos []LineItemDTO) ([]billing.LineItem, error) {
	items := make([]billing.LineItem, len(dtos))
	for i, dto := range dtos {
		qty, err := parseDecimal(dto.Quantity)
		if err != nil {
			return nil, err
		}
		price, err := parseDecimal(dto.Price)
		if err != nil {
			return nil, err
		}
		items[i] = billing.LineItem{Description: dto.Description, Quantity: qty, UnitPrice: price}
	}
	return items, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg})
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *billing.ValidationError
	switch {
	case billing.IsValidation(err):
		resp := ErrorResponse{Error: err.Error()}
		if errors.As(err, &verr) {
			resp.Fields = verr.Fields
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case billing.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case billing.IsTransition(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case hstore.IsPermission(err):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case hstore.IsRetryable(err):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	default:
		h.Log.Error().Err(err).Msg("unhandled error")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
