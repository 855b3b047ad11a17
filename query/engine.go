/*
Package query simulates relational reads over a hierarchical collection.

PURPOSE:
  The underlying store has no secondary-index query language, so this
  engine imposes query semantics on top of it: a single-field
  equality/range read is pushed down to the store when the backend
  supports it, and every additional filter (multi-field predicates,
  substring search), sorting direction, and pagination is applied
  client-side over the materialized snapshot.

SEMANTICS (in pipeline order):
  1. Fetch: pushdown via hstore.Ranger, or full collection materialize
  2. Residual equality/range filtering when pushdown was unavailable
  3. Caller predicate (Filter)
  4. Substring search: case-insensitive, over configured fields only,
     never pushed down
  5. Ascending order by OrderBy (store-native order); SortDesc reverses
     the already-ordered list in place
  6. Limit
  7. Pagination: a plain slice [page*size, page*size+size) - NOT a store
     cursor. Results are consistent only within one fetched snapshot and
     must be re-fetched after any mutation.

SEE ALSO:
  - hstore/types.go: Ranger pushdown contract
*/
package query

import (
	"context"
	"sort"
	"strings"

	"github.com/keel/invoice-engine/hstore"
)

// Doc is one collection document annotated with its node key.
type Doc struct {
	ID     string
	Fields hstore.Value
}

// Options shapes one collection read.
type Options struct {
	// Single-field index options, pushed down when the backend can.
	OrderBy string
	EqualTo any
	StartAt any
	EndAt   any
	Limit   int

	// Client-side options, never pushed down.
	SortDesc     bool            // reverse the store-ordered list in place
	Search       string          // case-insensitive substring match
	SearchFields []string        // fields Search looks at
	Filter       func(Doc) bool  // arbitrary residual predicate
	Page         int             // zero-based
	PageSize     int             // 0 = no pagination
}

// Engine runs collection reads against a store client.
type Engine struct {
	client *hstore.Client
}

func New(client *hstore.Client) *Engine {
	return &Engine{client: client}
}

// List returns the documents of collectionPath matching opts.
func (e *Engine) List(ctx context.Context, collectionPath string, opts Options) ([]Doc, error) {
	docs, pushed, err := e.fetch(ctx, collectionPath, opts)
	if err != nil {
		return nil, err
	}
	return apply(docs, opts, pushed), nil
}

// Watch streams the matching documents: fn receives the full re-evaluated
// result set after every change under collectionPath. The returned func
// cancels the watch.
func (e *Engine) Watch(collectionPath string, opts Options, fn func([]Doc)) (cancel func()) {
	return e.client.Subscribe(collectionPath, func(snap hstore.Snapshot) {
		// Full-value delivery: re-enumerate children every time.
		docs := make([]Doc, 0, len(snap.Value))
		for key, child := range snap.Children() {
			docs = append(docs, Doc{ID: key, Fields: child})
		}
		sortAscending(docs, opts.OrderBy)
		fn(apply(docs, opts, false))
	})
}

// fetch materializes the collection, via pushdown when available.
// pushed reports whether equality/range/limit were already applied.
func (e *Engine) fetch(ctx context.Context, collectionPath string, opts Options) (docs []Doc, pushed bool, err error) {
	if ranger := e.client.Ranger(); ranger != nil && opts.OrderBy != "" {
		kvs, err := ranger.QueryRange(ctx, collectionPath, hstore.RangeQuery{
			OrderBy: opts.OrderBy,
			EqualTo: opts.EqualTo,
			StartAt: opts.StartAt,
			EndAt:   opts.EndAt,
			Limit:   opts.Limit,
		})
		if err != nil {
			return nil, false, err
		}
		docs = make([]Doc, len(kvs))
		for i, kv := range kvs {
			docs[i] = Doc{ID: kv.Key, Fields: kv.Value}
		}
		return docs, true, nil
	}

	value, exists, err := e.client.Get(ctx, collectionPath)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	snap := hstore.Snapshot{Path: collectionPath, Value: value, Exists: true}
	for key, child := range snap.Children() {
		docs = append(docs, Doc{ID: key, Fields: child})
	}
	sortAscending(docs, opts.OrderBy)
	return docs, false, nil
}

// apply runs the client-side part of the pipeline over an
// ascending-ordered snapshot.
func apply(docs []Doc, opts Options, pushed bool) []Doc {
	if !pushed {
		docs = filterRange(docs, opts)
	}
	if opts.Filter != nil {
		kept := docs[:0]
		for _, d := range docs {
			if opts.Filter(d) {
				kept = append(kept, d)
			}
		}
		docs = kept
	}
	if opts.Search != "" {
		docs = searchDocs(docs, opts.Search, opts.SearchFields)
	}
	if opts.SortDesc {
		for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
			docs[i], docs[j] = docs[j], docs[i]
		}
	}
	if !pushed && opts.Limit > 0 && len(docs) > opts.Limit {
		docs = docs[:opts.Limit]
	}
	if opts.PageSize > 0 {
		start := opts.Page * opts.PageSize
		if start >= len(docs) {
			return []Doc{}
		}
		end := start + opts.PageSize
		if end > len(docs) {
			end = len(docs)
		}
		docs = docs[start:end]
	}
	return docs
}

// filterRange applies the single-field options in memory when the store
// could not push them down.
func filterRange(docs []Doc, opts Options) []Doc {
	if opts.OrderBy == "" || (opts.EqualTo == nil && opts.StartAt == nil && opts.EndAt == nil) {
		return docs
	}
	kept := docs[:0]
	for _, d := range docs {
		v := d.Fields[opts.OrderBy]
		if opts.EqualTo != nil && compare(v, opts.EqualTo) != 0 {
			continue
		}
		if opts.StartAt != nil && compare(v, opts.StartAt) < 0 {
			continue
		}
		if opts.EndAt != nil && compare(v, opts.EndAt) > 0 {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

// searchDocs keeps documents where any searchable field contains needle,
// case-insensitively. String fields only.
func searchDocs(docs []Doc, needle string, fields []string) []Doc {
	needle = strings.ToLower(needle)
	kept := docs[:0]
	for _, d := range docs {
		for _, f := range fields {
			s, ok := d.Fields[f].(string)
			if ok && strings.Contains(strings.ToLower(s), needle) {
				kept = append(kept, d)
				break
			}
		}
	}
	return kept
}

// sortAscending orders docs by the OrderBy field, or by node key when
// OrderBy is empty (generated keys sort in insertion order).
func sortAscending(docs []Doc, orderBy string) {
	sort.SliceStable(docs, func(i, j int) bool {
		if orderBy == "" {
			return docs[i].ID < docs[j].ID
		}
		return compare(docs[i].Fields[orderBy], docs[j].Fields[orderBy]) < 0
	})
}

// compare orders two field values: numbers numerically, everything else
// by string form. Nil sorts first.
func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(toString(a), toString(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if b, ok := v.(bool); ok {
		if b {
			return "true"
		}
		return "false"
	}
	return ""
}
