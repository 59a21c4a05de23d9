package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/ordered"
)

// Collection holds one document per client and date.
const Collection = "reports"

// Repository stores reports in the document store under Key(client, date).
type Repository struct {
	docs docstore.Store
	now  func() time.Time
}

func NewRepository(docs docstore.Store) *Repository {
	return &Repository{docs: docs, now: func() time.Time { return time.Now().UTC() }}
}

// Exact loads the report filed for exactly this client and date. A missing
// report gives an error matching docstore.ErrNotFound.
func (r *Repository) Exact(ctx context.Context, clientName, date string) (Report, error) {
	doc, err := r.docs.Get(ctx, Collection, Key(clientName, date))
	if err != nil {
		return Report{}, fmt.Errorf("report %s: %w", Key(clientName, date), err)
	}
	return decodeDocument(doc)
}

// Latest loads the most recently updated report of the client.
func (r *Repository) Latest(ctx context.Context, clientName string) (Report, error) {
	docs, err := r.docs.Query(ctx, docstore.Query{
		Collection: Collection,
		Filters:    []docstore.Filter{docstore.Where("clientName", clientName)},
		OrderBy:    "updatedAt",
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return Report{}, err
	}
	if len(docs) == 0 {
		return Report{}, fmt.Errorf("latest report of %s: %w", clientName, docstore.ErrNotFound)
	}
	return decodeDocument(docs[0])
}

// Upsert creates the report document with creation metadata, or merges the
// report's sections into the existing document.
func (r *Repository) Upsert(ctx context.Context, rep Report) error {
	if err := rep.RequireIdentity(); err != nil {
		return err
	}
	data, err := encodeReport(rep)
	if err != nil {
		return err
	}
	now := r.now()
	data.Set("updatedAt", now)

	key := rep.Key()
	_, err = r.docs.Get(ctx, Collection, key)
	if errors.Is(err, docstore.ErrNotFound) {
		created := data.Clone()
		created.Set("createdAt", now)
		err = r.docs.Create(ctx, Collection, key, created)
		if !errors.Is(err, docstore.ErrAlreadyExists) {
			return err
		}
	} else if err != nil {
		return err
	}
	return r.docs.Merge(ctx, Collection, key, data)
}

func encodeReport(rep Report) (*ordered.Map, error) {
	m := ordered.FromPairs("clientName", rep.ClientName, "date", rep.Date)
	for _, s := range []Section{SectionBranch, SectionMember, SectionDeposit, SectionLoan, SectionJewel} {
		t, _ := rep.Table(s)
		rows := make([]any, len(t.Rows))
		for i, row := range t.Rows {
			rows[i] = row.Clone()
		}
		cols := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = c
		}
		m.Set(string(s), ordered.FromPairs("columns", cols, "rows", rows))
	}
	singletons := []struct {
		section Section
		value   any
	}{
		{SectionNPA, rep.NPA},
		{SectionProfit, rep.Profit},
		{SectionEmployee, rep.Employee},
		{SectionSafety, rep.Safety},
	}
	for _, s := range singletons {
		v, err := toOrdered(s.value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", s.section, err)
		}
		m.Set(string(s.section), v)
	}
	return m, nil
}

func decodeDocument(doc docstore.Document) (Report, error) {
	d := doc.Data
	rep := Report{ClientName: d.String("clientName"), Date: d.String("date")}
	for _, s := range []Section{SectionBranch, SectionMember, SectionDeposit, SectionLoan, SectionJewel} {
		rep.SetTable(s, decodeTable(d, string(s)))
	}
	targets := []struct {
		section Section
		dst     any
	}{
		{SectionNPA, &rep.NPA},
		{SectionProfit, &rep.Profit},
		{SectionEmployee, &rep.Employee},
		{SectionSafety, &rep.Safety},
	}
	for _, t := range targets {
		v, ok := d.Get(string(t.section))
		if !ok || v == nil {
			continue
		}
		if err := fromOrdered(v, t.dst); err != nil {
			return Report{}, fmt.Errorf("decode %s of %s: %w", t.section, doc.ID, err)
		}
	}
	return rep, nil
}

func decodeTable(d *ordered.Map, field string) Table {
	v, ok := d.Get(field)
	if !ok {
		return Table{}
	}
	section, ok := v.(*ordered.Map)
	if !ok {
		return Table{}
	}
	t := Table{}
	if cols, ok := section.Get("columns"); ok {
		if arr, ok := cols.([]any); ok {
			for _, c := range arr {
				if s, ok := c.(string); ok {
					t.Columns = append(t.Columns, s)
				}
			}
		}
	}
	if rows, ok := section.Get("rows"); ok {
		if arr, ok := rows.([]any); ok {
			for _, r := range arr {
				if row, ok := r.(*ordered.Map); ok {
					t.Rows = append(t.Rows, row)
				}
			}
		}
	}
	if len(t.Columns) == 0 && len(t.Rows) > 0 {
		t.Columns = t.Rows[0].Keys()
	}
	return t
}

func toOrdered(v any) (*ordered.Map, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := ordered.New()
	if err := json.Unmarshal(b, m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromOrdered(v any, dst any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
