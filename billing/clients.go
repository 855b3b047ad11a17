/*
clients.go - Client (counterparty) service

PURPOSE:
  CRUD over the clients collection. Deactivation is the normal removal
  path: it clears the isActive flag with a merge patch so invoices that
  reference the client keep resolving. Hard delete exists as a separate
  explicit operation and does NOT verify referencing invoices.
*/
package billing

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/keel/invoice-engine/hstore"
	"github.com/keel/invoice-engine/query"
)

// ClientService owns the client write path.
type ClientService struct {
	client   *hstore.Client
	queries  *query.Engine
	activity *ActivityLog
	clock    func() time.Time
	log      zerolog.Logger
	base     string
}

func NewClientService(client *hstore.Client, activity *ActivityLog) *ClientService {
	return &ClientService{
		client:   client,
		queries:  query.New(client),
		activity: activity,
		clock:    time.Now,
		log:      zerolog.Nop(),
		base:     "clients",
	}
}

// SetLogger attaches a logger.
func (s *ClientService) SetLogger(log zerolog.Logger) { s.log = log }

func (s *ClientService) path(id string) string {
	return hstore.Join(s.base, id)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// CreateClientInput is the caller-settable part of a new client.
type CreateClientInput struct {
	Name    string
	Email   string
	Company string
	Phone   string
	Address Address
	TaxID   string
	Notes   string
}

func (s *ClientService) Create(ctx context.Context, in CreateClientInput, actor Actor) (*Client, error) {
	c := &Client{
		UserID:  actor.ID,
		Name:    in.Name,
		Email:   in.Email,
		Company: in.Company,
		Phone:   in.Phone,
		Address: in.Address,
		TaxID:   in.TaxID,
		Notes:   in.Notes,
		Active:  true,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	c.CreatedAt = s.clock().UTC()
	id, err := s.client.Push(ctx, s.base, clientToValue(c))
	if err != nil {
		return nil, err
	}
	c.ID = id

	s.audit(ctx, actor, ActionClientCreated, c.ID, map[string]any{"name": c.Name})
	return c, nil
}

func (s *ClientService) Get(ctx context.Context, id string) (*Client, error) {
	value, exists, err := s.client.Get(ctx, s.path(id))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &NotFoundError{Kind: "client", ID: id}
	}
	return clientFromValue(id, value), nil
}

func (s *ClientService) Update(ctx context.Context, id string, u ClientUpdate, actor Actor) (*Client, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	diff := c.Apply(u)
	if len(diff) == 0 {
		return c, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if err := s.client.Set(ctx, s.path(id), clientToValue(c), false); err != nil {
		return nil, err
	}

	s.audit(ctx, actor, ActionClientUpdated, id, diffDetails(diff))
	return c, nil
}

// Deactivate is the soft delete: a merge patch clears only the isActive
// flag, preserving referential history for invoices.
func (s *ClientService) Deactivate(ctx context.Context, id string, actor Actor) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.path(id), hstore.Value{"isActive": false}, true); err != nil {
		return err
	}

	s.audit(ctx, actor, ActionClientDeactivated, id, nil)
	return nil
}

// Delete hard-deletes the document. Referencing invoices are NOT
// checked or cascaded; prefer Deactivate.
func (s *ClientService) Delete(ctx context.Context, id string, actor Actor) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	s.log.Warn().
		Str("client_id", id).
		Msg("hard-deleting client without checking referencing invoices")

	if err := s.client.Delete(ctx, s.path(id)); err != nil {
		return err
	}

	s.audit(ctx, actor, ActionClientDeleted, id, map[string]any{"name": c.Name})
	return nil
}

// ListClientsOptions narrows and pages a listing.
type ListClientsOptions struct {
	Search     string // case-insensitive over name, email, company
	ActiveOnly bool
	SortDesc   bool
	Page       int
	PageSize   int
}

// List reads the collection: name-ordered, searched and filtered
// client-side (substring search is never pushed down).
func (s *ClientService) List(ctx context.Context, opts ListClientsOptions) ([]*Client, error) {
	qopts := query.Options{
		OrderBy:      "name",
		SortDesc:     opts.SortDesc,
		Search:       opts.Search,
		SearchFields: []string{"name", "email", "company"},
		Page:         opts.Page,
		PageSize:     opts.PageSize,
	}
	if opts.ActiveOnly {
		qopts.Filter = func(d query.Doc) bool {
			return readBool(d.Fields, "isActive")
		}
	}

	docs, err := s.queries.List(ctx, s.base, qopts)
	if err != nil {
		return nil, err
	}
	out := make([]*Client, len(docs))
	for i, d := range docs {
		out[i] = clientFromValue(d.ID, d.Fields)
	}
	return out, nil
}

func (s *ClientService) audit(ctx context.Context, actor Actor, action ActionType, entityID string, details map[string]any) {
	_, err := s.activity.Record(ctx, Activity{
		Type:       action,
		UserID:     actor.ID,
		EntityType: "client",
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
