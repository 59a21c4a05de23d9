// Package docstore is the document-store boundary used for commands, result
// sets, stored reports and the client registry.
//
// Collections are addressed by slash separated paths. A sub-collection lives
// under a document: "results/{id}/rows". Watches are push based: a handler
// receives an initial snapshot and then a full snapshot after every change.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/farxc/rcs-reporting/internal/ordered"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
)

type Document struct {
	ID         string
	Data       *ordered.Map
	CreateTime time.Time
	UpdateTime time.Time
}

// Op is a filter comparison.
type Op string

const (
	OpEqual          Op = "=="
	OpGreaterOrEqual Op = ">="
	OpLessOrEqual    Op = "<="
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where is shorthand for an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Snapshot is the full state of a watched target at one point in time. For a
// document watch it holds zero (deleted/absent) or one document.
type Snapshot struct {
	Docs []Document
}

// Handler receives snapshots in order on a goroutine owned by the store.
type Handler func(Snapshot)

// Subscription is a live watch. Close stops delivery; it is safe to call
// more than once.
type Subscription interface {
	Close() error
}

type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	// Create fails with ErrAlreadyExists when the id is taken.
	Create(ctx context.Context, collection, id string, data *ordered.Map) error
	// Set replaces the whole document.
	Set(ctx context.Context, collection, id string, data *ordered.Map) error
	// Merge writes the given top-level fields, keeping all others. It
	// creates the document when absent.
	Merge(ctx context.Context, collection, id string, data *ordered.Map) error
	// Delete fails with ErrNotFound when the document does not exist.
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, q Query) ([]Document, error)
	WatchDocument(ctx context.Context, collection, id string, h Handler) (Subscription, error)
	WatchQuery(ctx context.Context, q Query, h Handler) (Subscription, error)
	Close(ctx context.Context) error
}

// Join builds a collection path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// splitPath separates a collection path into its leaf collection name and
// the parent document path ("" for root collections).
func splitPath(collection string) (leaf, parent string, err error) {
	parts := strings.Split(strings.Trim(collection, "/"), "/")
	if len(parts)%2 == 0 || parts[0] == "" {
		return "", "", fmt.Errorf("invalid collection path %q", collection)
	}
	leaf = parts[len(parts)-1]
	parent = strings.Join(parts[:len(parts)-1], "/")
	return leaf, parent, nil
}
