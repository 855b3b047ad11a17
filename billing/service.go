/*
service.go - Invoice ledger service

PURPOSE:
  Orchestrates entity + store + query engine: create/read/update/delete,
  payment application, status transitions, attachment lifecycle. Every
  mutation validates through the entity first, persists through the
  store client, then appends an activity entry.

ORDERING GUARANTEES (and their limits):
  - An activity entry is written only after the document write
    succeeded: an entry never references a document that does not exist.
  - A read-modify-write here is NOT atomic. update and AddPayment do a
    full-document replacement of computed fields, so two concurrent
    payment additions on one invoice can lose one payment's effect on
    amountPaid/amountDue. Last writer wins; the document itself stays
    internally consistent. There is no version check.
  - A retry after a confirmed success writes a second activity entry.

FAILURE SEMANTICS:
  Validation/transition errors are returned before any I/O; nothing is
  persisted. Store errors propagate up unmodified, tagged with the
  failing path. Blob deletions during Delete are best-effort: individual
  failures are logged and skipped, the document delete always proceeds.

SEE ALSO:
  - invoice.go: Entity methods raising domain errors
  - activity.go: Audit entry shape
  - query/engine.go: List semantics
*/
package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/keel/invoice-engine/blob"
	"github.com/keel/invoice-engine/hstore"
	"github.com/keel/invoice-engine/query"
)

// =============================================================================
// SERVICE
// =============================================================================

// InvoiceService owns the invoice write path.
type InvoiceService struct {
	client   *hstore.Client
	queries  *query.Engine
	blobs    blob.Storage
	activity *ActivityLog
	clock    func() time.Time
	log      zerolog.Logger
	base     string
}

// ServiceOption configures a service.
type ServiceOption func(*InvoiceService)

// WithOrganization scopes the invoice collection under
// organizations/{org}/invoices instead of the top-level collection.
func WithOrganization(org string) ServiceOption {
	return func(s *InvoiceService) {
		s.base = hstore.Join("organizations", org, "invoices")
	}
}

// WithServiceClock overrides the timestamp source, for tests.
func WithServiceClock(clock func() time.Time) ServiceOption {
	return func(s *InvoiceService) { s.clock = clock }
}

// WithLogger attaches a logger; the default discards nothing but writes
// through the global zerolog logger.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *InvoiceService) { s.log = log }
}

// NewInvoiceService wires the service. All dependencies are explicit -
// no ambient singletons; tests pass an in-memory backend and blob store.
func NewInvoiceService(client *hstore.Client, blobs blob.Storage, activity *ActivityLog, opts ...ServiceOption) *InvoiceService {
	s := &InvoiceService{
		client:   client,
		queries:  query.New(client),
		blobs:    blobs,
		activity: activity,
		clock:    time.Now,
		log:      zerolog.Nop(),
		base:     "invoices",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InvoiceService) path(id string) string {
	return hstore.Join(s.base, id)
}

// =============================================================================
// CREATE / READ
// =============================================================================

// CreateInvoiceInput is the caller-settable part of a new invoice.
// Derived amounts are computed, never accepted.
type CreateInvoiceInput struct {
	ClientID     string
	Number       string
	IssueDate    time.Time
	DueDate      time.Time
	LineItems    []LineItem
	TaxRate      decimal.Decimal
	DiscountRate decimal.Decimal
	Notes        string
	Terms        string
}

// Create validates, computes derived amounts, persists with a generated
// id, and records invoice_created. On a store failure no activity entry
// is written.
func (s *InvoiceService) Create(ctx context.Context, in CreateInvoiceInput, actor Actor) (*Invoice, error) {
	inv := &Invoice{
		UserID:       actor.ID,
		ClientID:     in.ClientID,
		Number:       in.Number,
		Status:       StatusDraft,
		IssueDate:    in.IssueDate,
		DueDate:      in.DueDate,
		LineItems:    in.LineItems,
		TaxRate:      in.TaxRate,
		DiscountRate: in.DiscountRate,
		Notes:        in.Notes,
		Terms:        in.Terms,
	}
	inv.Recompute()
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	inv.CreatedAt = s.clock().UTC()
	id, err := s.client.Push(ctx, s.base, invoiceToValue(inv))
	if err != nil {
		return nil, err
	}
	inv.ID = id

	s.audit(ctx, actor, ActionInvoiceCreated, inv.ID, map[string]any{
		"number": inv.Number,
		"total":  inv.Total.String(),
	})
	return inv, nil
}

// Get fetches and hydrates one invoice.
func (s *InvoiceService) Get(ctx context.Context, id string) (*Invoice, error) {
	value, exists, err := s.client.Get(ctx, s.path(id))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &NotFoundError{Kind: "invoice", ID: id}
	}
	return invoiceFromValue(id, value), nil
}

// ListInvoicesOptions narrows and pages a listing.
type ListInvoicesOptions struct {
	Status   Status // equality pushdown candidate
	ClientID string // residual client-side filter
	Search   string // case-insensitive over number, notes, terms
	SortDesc bool
	Page     int
	PageSize int
}

// List reads the collection through the query engine. Results are a
// snapshot: re-fetch after any mutation.
func (s *InvoiceService) List(ctx context.Context, opts ListInvoicesOptions) ([]*Invoice, error) {
	qopts := query.Options{
		SortDesc:     opts.SortDesc,
		Search:       opts.Search,
		SearchFields: []string{"number", "notes", "terms"},
		Page:         opts.Page,
		PageSize:     opts.PageSize,
	}
	if opts.Status != "" {
		qopts.OrderBy = "status"
		qopts.EqualTo = string(opts.Status)
	}
	if opts.ClientID != "" {
		clientID := opts.ClientID
		qopts.Filter = func(d query.Doc) bool {
			return readString(d.Fields, "clientId") == clientID
		}
	}

	docs, err := s.queries.List(ctx, s.base, qopts)
	if err != nil {
		return nil, err
	}
	out := make([]*Invoice, len(docs))
	for i, d := range docs {
		out[i] = invoiceFromValue(d.ID, d.Fields)
	}
	return out, nil
}

// Watch streams the full invoice list to fn after every change under the
// collection. Deliveries are asynchronous full-value snapshots.
func (s *InvoiceService) Watch(fn func([]*Invoice)) (cancel func()) {
	return s.queries.Watch(s.base, query.Options{}, func(docs []query.Doc) {
		out := make([]*Invoice, len(docs))
		for i, d := range docs {
			out[i] = invoiceFromValue(d.ID, d.Fields)
		}
		fn(out)
	})
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Update applies a partial update onto the hydrated entity (never onto
// the raw record), recomputes, re-validates, persists a full replace,
// and records invoice_updated with a before/after diff of the changed
// fields only. A no-op update writes nothing.
func (s *InvoiceService) Update(ctx context.Context, id string, u InvoiceUpdate, actor Actor) (*Invoice, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	diff := inv.Apply(u)
	if len(diff) == 0 {
		return inv, nil
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	if err := s.client.Set(ctx, s.path(id), invoiceToValue(inv), false); err != nil {
		return nil, err
	}

	s.audit(ctx, actor, ActionInvoiceUpdated, id, diffDetails(diff))
	return inv, nil
}

// AddPayment records one payment through the entity's payment method and
// persists the result. NOTE: read-modify-write without a version check -
// two concurrent calls can lose one payment's effect (last writer wins).
func (s *InvoiceService) AddPayment(ctx context.Context, id string, p Payment, actor Actor) (*Invoice, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := inv.AddPayment(p); err != nil {
		return nil, err
	}

	if err := s.client.Set(ctx, s.path(id), invoiceToValue(inv), false); err != nil {
		return nil, err
	}

	s.audit(ctx, actor, ActionInvoicePaymentAdded, id, map[string]any{
		"amount": p.Amount.String(),
		"method": p.Method,
		"date":   formatTime(p.Date),
		"status": string(inv.Status),
	})
	return inv, nil
}

// UpdateStatus applies an explicit transition. Invalid targets fail
// before any persistence call.
func (s *InvoiceService) UpdateStatus(ctx context.Context, id string, next Status, actor Actor) (*Invoice, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := inv.Status
	if err := inv.TransitionTo(next); err != nil {
		return nil, err
	}

	if err := s.client.Set(ctx, s.path(id), invoiceToValue(inv), false); err != nil {
		return nil, err
	}

	s.audit(ctx, actor, ActionInvoiceStatusChanged, id, map[string]any{
		"previous": string(previous),
		"new":      string(inv.Status),
	})
	return inv, nil
}

// Delete removes the invoice. Every attachment blob deletion is
// attempted first, best-effort: an individual failure is logged and
// skipped, then the document is deleted, then invoice_deleted recorded.
func (s *InvoiceService) Delete(ctx context.Context, id string, actor Actor) error {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	for _, a := range inv.Attachments {
		if err := s.blobs.Delete(ctx, a.StoragePath); err != nil {
			s.log.Warn().
				Err(err).
				Str("invoice_id", id).
				Str("attachment", a.StoragePath).
				Msg("attachment blob deletion failed, continuing")
		}
	}

	if err := s.client.Delete(ctx, s.path(id)); err != nil {
		return err
	}

	s.audit(ctx, actor, ActionInvoiceDeleted, id, map[string]any{
		"number":      inv.Number,
		"attachments": len(inv.Attachments),
	})
	return nil
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// AddAttachment uploads the payload to blob storage, appends the
// descriptor, and persists. The blob write and the document write are
// not transactionally tied: an upload can outlive a failed document
// write (no two-phase commit).
func (s *InvoiceService) AddAttachment(ctx context.Context, id, name string, data []byte, contentType string, actor Actor) (*Invoice, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	storagePath := hstore.Join(s.base, id, "attachments", uuid.NewString()+"-"+name)
	obj, err := s.blobs.Put(ctx, storagePath, data, contentType)
	if err != nil {
		return nil, err
	}

	inv.Attachments = append(inv.Attachments, Attachment{
		Name:        name,
		Size:        obj.Size,
		ContentType: obj.ContentType,
		URL:         obj.URL,
		StoragePath: obj.Path,
	})

	if err := s.client.Set(ctx, s.path(id), invoiceToValue(inv), false); err != nil {
		return nil, err
	}

	s.audit(ctx, actor, ActionInvoiceAttachmentAdded, id, map[string]any{
		"name": name,
		"size": obj.Size,
		"path": obj.Path,
	})
	return inv, nil
}

// RemoveAttachment attempts the blob deletion (logged, not aborting),
// removes the descriptor, and persists.
func (s *InvoiceService) RemoveAttachment(ctx context.Context, id, storagePath string, actor Actor) (*Invoice, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, a := range inv.Attachments {
		if a.StoragePath == storagePath {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, &NotFoundError{Kind: "attachment", ID: storagePath}
	}

	if err := s.blobs.Delete(ctx, storagePath); err != nil {
		s.log.Warn().
			Err(err).
			Str("invoice_id", id).
			Str("attachment", storagePath).
			Msg("attachment blob deletion failed, removing descriptor anyway")
	}

	inv.Attachments = append(inv.Attachments[:idx], inv.Attachments[idx+1:]...)

	if err := s.client.Set(ctx, s.path(id), invoiceToValue(inv), false); err != nil {
		return nil, err
	}

	s.audit(ctx, actor, ActionInvoiceAttachmentRemoved, id, map[string]any{
		"path": storagePath,
	})
	return inv, nil
}

// =============================================================================
// AUDIT
// =============================================================================

// audit records an activity entry. The mutation already succeeded at
// this point, so a failing audit write is logged rather than surfaced:
// returning an error would invite a retry of an applied mutation.
func (s *InvoiceService) audit(ctx context.Context, actor Actor, action ActionType, entityID string, details map[string]any) {
	_, err := s.activity.Record(ctx, Activity{
		Type:       action,
		UserID:     actor.ID,
		EntityType: "invoice",
		EntityID:   entityID,
		Details:    details,
	})
	if err != nil {
		s.log.Error().
			Err(err).
			Str("action", string(action)).
			Str("entity_id", entityID).
			Msg("activity entry write failed")
	}
}

func diffDetails(diff map[string]FieldChange) map[string]any {
	out := make(map[string]any, len(diff))
	for field, change := range diff {
		out[field] = map[string]any{
			"before": change.Before,
			"after":  change.After,
		}
	}
	return out
}
