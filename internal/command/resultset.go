package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/ordered"
)

// Bookkeeping fields on every stored result row. They are never shown to
// callers.
const (
	FieldRowIndex = "_rowIndex"
	FieldStoredAt = "_storedAt"
)

// Meta is the result-set header document.
type Meta struct {
	CommandID   string
	SubmitterID string
	ColumnOrder []string
	// RowCount is -1 when the worker did not publish it.
	RowCount int
}

func MetaFromDocument(doc docstore.Document) Meta {
	m := Meta{
		CommandID:   doc.Data.String("commandId"),
		SubmitterID: doc.Data.String("submitterId"),
		ColumnOrder: StringSlice(doc.Data, "columnOrder"),
		RowCount:    -1,
	}
	if v, ok := doc.Data.Get("rowCount"); ok {
		if n, ok := toInt(v); ok {
			m.RowCount = n
		}
	}
	return m
}

// RowsPath is the sub-collection holding the rows of a result set.
func RowsPath(combinedID string) string {
	return docstore.Join(ResultsCollection, combinedID, RowsCollection)
}

// ResultStore is the result materialization store.
type ResultStore struct {
	docs docstore.Store
	now  func() time.Time
}

func NewResultStore(docs docstore.Store) *ResultStore {
	return &ResultStore{docs: docs, now: func() time.Time { return time.Now().UTC() }}
}

// Publish writes a complete result set: meta first, then every row tagged
// with its index. Rows are written in the order given by writeOrder when it
// is set, which lets callers reproduce out-of-order arrival.
func (r *ResultStore) Publish(ctx context.Context, commandID, submitterID string, columns []string, rows []*ordered.Map, writeOrder ...int) error {
	combined := CombinedID(commandID, submitterID)
	meta := ordered.FromPairs(
		"commandId", commandID,
		"submitterId", submitterID,
		"rowCount", int64(len(rows)),
	)
	if len(columns) > 0 {
		meta.Set("columnOrder", stringsToAny(columns))
	}
	if err := r.docs.Set(ctx, ResultsCollection, combined, meta); err != nil {
		return fmt.Errorf("publish meta %s: %w", combined, err)
	}

	order := writeOrder
	if len(order) == 0 {
		order = make([]int, len(rows))
		for i := range rows {
			order[i] = i
		}
	}
	for _, i := range order {
		row := rows[i].Clone()
		row.Set(FieldRowIndex, int64(i))
		row.Set(FieldStoredAt, r.now())
		if err := r.docs.Set(ctx, RowsPath(combined), strconv.Itoa(i), row); err != nil {
			return fmt.Errorf("publish row %d of %s: %w", i, combined, err)
		}
	}
	return nil
}

func (r *ResultStore) WatchMeta(ctx context.Context, combinedID string, fn func(Meta, bool)) (docstore.Subscription, error) {
	return r.docs.WatchDocument(ctx, ResultsCollection, combinedID, func(snap docstore.Snapshot) {
		if len(snap.Docs) == 0 {
			fn(Meta{RowCount: -1}, false)
			return
		}
		fn(MetaFromDocument(snap.Docs[0]), true)
	})
}

func (r *ResultStore) WatchRows(ctx context.Context, combinedID string, fn func([]*ordered.Map)) (docstore.Subscription, error) {
	return r.docs.WatchQuery(ctx, docstore.Query{Collection: RowsPath(combinedID)}, func(snap docstore.Snapshot) {
		rows := make([]*ordered.Map, 0, len(snap.Docs))
		for _, d := range snap.Docs {
			rows = append(rows, d.Data)
		}
		fn(rows)
	})
}

// Delete removes the rows and then the meta document of one result set. A
// meta document that is already gone is not an error.
func (r *ResultStore) Delete(ctx context.Context, combinedID string) error {
	rows, err := r.docs.Query(ctx, docstore.Query{Collection: RowsPath(combinedID)})
	if err != nil {
		return fmt.Errorf("list rows of %s: %w", combinedID, err)
	}
	for _, row := range rows {
		if err := r.docs.Delete(ctx, RowsPath(combinedID), row.ID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("delete row %s of %s: %w", row.ID, combinedID, err)
		}
	}
	if err := r.docs.Delete(ctx, ResultsCollection, combinedID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("delete meta %s: %w", combinedID, err)
	}
	return nil
}

// ListBySubmitter returns the combined ids of every result set tagged with
// the submitter.
func (r *ResultStore) ListBySubmitter(ctx context.Context, submitterID string) ([]string, error) {
	docs, err := r.docs.Query(ctx, docstore.Query{
		Collection: ResultsCollection,
		Filters:    []docstore.Filter{docstore.Where("submitterId", submitterID)},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

// RowIndex reads the bookkeeping row index.
func RowIndex(row *ordered.Map) (int, bool) {
	v, ok := row.Get(FieldRowIndex)
	if !ok {
		return 0, false
	}
	return toInt(v)
}
