// Package store is a small document store abstraction over Postgres JSONB,
// MongoDB and memory. Documents are JSON objects addressed by collection and
// id; writes are either whole-document sets or targeted dotted-path updates.
package store

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrConflict    = errors.New("transaction conflict: retries exhausted")
	ErrUnavailable = errors.New("store unavailable")
)

// DefaultMaxAttempts bounds optimistic transaction retries
const DefaultMaxAttempts = 5

// Ref addresses one document. Subcollections are encoded in Collection as
// "parent/parentID/child".
type Ref struct {
	Collection string
	ID         string
}

func NewRef(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

// Child returns a ref in a subcollection of r
func (r Ref) Child(collection, id string) Ref {
	return Ref{Collection: r.Collection + "/" + r.ID + "/" + collection, ID: id}
}

// Path is the unique key of the document
func (r Ref) Path() string {
	return r.Collection + "/" + r.ID
}

// Name returns the last segment of the collection path
func (r Ref) Name() string {
	return CollectionName(r.Collection)
}

func CollectionName(collection string) string {
	if i := strings.LastIndex(collection, "/"); i >= 0 {
		return collection[i+1:]
	}
	return collection
}

// Doc is a JSON-compatible document. Numbers are json.Number after a round trip.
type Doc map[string]any

// Updates maps dotted field paths to plain values or FieldOps
type Updates map[string]any

// Snapshot is a query result row
type Snapshot struct {
	Ref  Ref
	Data Doc
}

// Filter is an equality condition on a dotted field path
type Filter struct {
	Field string
	Value any
}

// Query selects documents of one collection (or, with Group, of every
// subcollection with that name).
type Query struct {
	Collection string
	Group      bool
	Where      []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// Matches reports whether a collection path is selected by q
func (q Query) Matches(collection string) bool {
	if q.Group {
		return CollectionName(collection) == q.Collection
	}
	return collection == q.Collection
}

// Tx is the view of the store inside RunTransaction. Reads observe the
// transaction's own earlier writes.
type Tx interface {
	Get(ctx context.Context, ref Ref) (Doc, error)
	Set(ctx context.Context, ref Ref, data Doc, merge bool) error
	Update(ctx context.Context, ref Ref, updates Updates) error
}

// TxFunc may run several times; it must not have side effects outside tx.
type TxFunc func(ctx context.Context, tx Tx) error

type Store interface {
	Get(ctx context.Context, ref Ref) (Doc, error)
	Set(ctx context.Context, ref Ref, data Doc, merge bool) error
	Update(ctx context.Context, ref Ref, updates Updates) error
	RunTransaction(ctx context.Context, fn TxFunc) error
	Query(ctx context.Context, q Query) ([]Snapshot, error)
	Ping(ctx context.Context) error
}
