/*
activity.go - Append-only activity audit log

PURPOSE:
  Every mutating service operation writes one activity entry describing
  who did what to which document. Entries are append-only and immutable:
  the application never updates or deletes them.

ID GENERATION:
  Entry ids come from the store client's push-id generator, so they stay
  unique even under concurrent writers and sort in creation order.

DUPLICATION:
  A caller retrying after a CONFIRMED failure is safe - the entry was
  never written. A caller retrying after a confirmed success writes a
  second entry; there is no deduplication token.

SEE ALSO:
  - service.go: Writes entries alongside each mutation
*/
package billing

import (
	"context"
	"time"

	"github.com/keel/invoice-engine/hstore"
	"github.com/keel/invoice-engine/query"
)

// =============================================================================
// ACTION TYPES
// =============================================================================

type ActionType string

const (
	ActionInvoiceCreated           ActionType = "invoice_created"
	ActionInvoiceUpdated           ActionType = "invoice_updated"
	ActionInvoicePaymentAdded      ActionType = "invoice_payment_added"
	ActionInvoiceStatusChanged     ActionType = "invoice_status_changed"
	ActionInvoiceDeleted           ActionType = "invoice_deleted"
	ActionInvoiceAttachmentAdded   ActionType = "invoice_attachment_added"
	ActionInvoiceAttachmentRemoved ActionType = "invoice_attachment_removed"
	ActionClientCreated            ActionType = "client_created"
	ActionClientUpdated            ActionType = "client_updated"
	ActionClientDeactivated        ActionType = "client_deactivated"
	ActionClientDeleted            ActionType = "client_deleted"
)

// =============================================================================
// ACTIVITY - One immutable audit record
// =============================================================================

type Activity struct {
	ID         string
	Type       ActionType
	UserID     string
	EntityType string // "invoice", "client"
	EntityID   string
	Timestamp  time.Time
	Details    map[string]any
}

// ActivityFilter narrows a log query. Zero values match everything.
type ActivityFilter struct {
	ActorID    string
	EntityType string
	EntityID   string
	Actions    []ActionType
	From       time.Time
	To         time.Time
}

// =============================================================================
// ACTIVITY LOG - Per-organization, append-only
// =============================================================================

// ActivityLog appends audit entries under
// organizations/{org}/activities/{id}.
type ActivityLog struct {
	client *hstore.Client
	org    string
	clock  func() time.Time
}

func NewActivityLog(client *hstore.Client, org string) *ActivityLog {
	return &ActivityLog{client: client, org: org, clock: time.Now}
}

func (l *ActivityLog) path() string {
	return hstore.Join("organizations", l.org, "activities")
}

// Record appends one entry and returns it with its generated id.
// There is no update or delete: written entries are immutable.
func (l *ActivityLog) Record(ctx context.Context, a Activity) (Activity, error) {
	if a.Timestamp.IsZero() {
		a.Timestamp = l.clock().UTC()
	}
	id, err := l.client.Push(ctx, l.path(), hstore.Value{
		"type":       string(a.Type),
		"userId":     a.UserID,
		"entityType": a.EntityType,
		"entityId":   a.EntityID,
		"timestamp":  formatTime(a.Timestamp),
		"details":    a.Details,
	})
	if err != nil {
		return Activity{}, err
	}
	a.ID = id
	return a, nil
}

// List returns entries matching filter, oldest first (push-id order).
func (l *ActivityLog) List(ctx context.Context, filter ActivityFilter) ([]Activity, error) {
	engine := query.New(l.client)
	docs, err := engine.List(ctx, l.path(), query.Options{
		Filter: func(d query.Doc) bool { return matches(d, filter) },
	})
	if err != nil {
		return nil, err
	}

	out := make([]Activity, len(docs))
	for i, d := range docs {
		out[i] = activityFromDoc(d)
	}
	return out, nil
}

func matches(d query.Doc, f ActivityFilter) bool {
	if f.ActorID != "" && readString(d.Fields, "userId") != f.ActorID {
		return false
	}
	if f.EntityType != "" && readString(d.Fields, "entityType") != f.EntityType {
		return false
	}
	if f.EntityID != "" && readString(d.Fields, "entityId") != f.EntityID {
		return false
	}
	if len(f.Actions) > 0 {
		action := ActionType(readString(d.Fields, "type"))
		found := false
		for _, a := range f.Actions {
			if a == action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	ts := readTime(d.Fields, "timestamp")
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

func activityFromDoc(d query.Doc) Activity {
	details, _ := d.Fields["details"].(map[string]any)
	return Activity{
		ID:         d.ID,
		Type:       ActionType(readString(d.Fields, "type")),
		UserID:     readString(d.Fields, "userId"),
		EntityType: readString(d.Fields, "entityType"),
		EntityID:   readString(d.Fields, "entityId"),
		Timestamp:  readTime(d.Fields, "timestamp"),
		Details:    details,
	}
}
