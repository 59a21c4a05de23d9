// Package queries is the catalog of predefined, parameterized queries the
// worker knows how to run.
package queries

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/ordered"
)

const Collection = "queries"

var ErrNoMatch = errors.New("no query matches")

type Query struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Variables   []string `yaml:"variables,omitempty" json:"variables,omitempty"`
}

// Lister returns every known query.
type Lister interface {
	List(ctx context.Context) ([]Query, error)
}

// Find returns the first query, by id, whose name contains fragment
// case-insensitively.
func Find(ctx context.Context, l Lister, fragment string) (Query, error) {
	all, err := l.List(ctx)
	if err != nil {
		return Query{}, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	needle := strings.ToLower(fragment)
	for _, q := range all {
		if strings.Contains(strings.ToLower(q.Name), needle) {
			return q, nil
		}
	}
	return Query{}, fmt.Errorf("%w: %q", ErrNoMatch, fragment)
}

// File is a catalog read from a YAML document of the form
//
//	queries:
//	  - id: q-branch
//	    name: Branch master
//	    variables: [Fromdate]
type File struct {
	Queries []Query `yaml:"queries"`
}

func LoadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, q := range f.Queries {
		if q.ID == "" || q.Name == "" {
			return nil, fmt.Errorf("%s: query %d needs an id and a name", path, i)
		}
	}
	return &f, nil
}

func (f *File) List(context.Context) ([]Query, error) {
	return append([]Query(nil), f.Queries...), nil
}

// Store is the catalog kept in the document store.
type Store struct {
	docs docstore.Store
}

func NewStore(docs docstore.Store) *Store {
	return &Store{docs: docs}
}

func (s *Store) List(ctx context.Context) ([]Query, error) {
	docs, err := s.docs.Query(ctx, docstore.Query{Collection: Collection})
	if err != nil {
		return nil, err
	}
	out := make([]Query, 0, len(docs))
	for _, d := range docs {
		q := Query{
			ID:          d.ID,
			Name:        d.Data.String("name"),
			Description: d.Data.String("description"),
		}
		if v, ok := d.Data.Get("variables"); ok {
			if arr, ok := v.([]any); ok {
				for _, item := range arr {
					if s, ok := item.(string); ok {
						q.Variables = append(q.Variables, s)
					}
				}
			}
		}
		out = append(out, q)
	}
	return out, nil
}

// Put stores or replaces a query definition.
func (s *Store) Put(ctx context.Context, q Query) error {
	vars := make([]any, len(q.Variables))
	for i, v := range q.Variables {
		vars[i] = v
	}
	data := ordered.FromPairs("name", q.Name, "description", q.Description, "variables", vars)
	return s.docs.Set(ctx, Collection, q.ID, data)
}

// Import copies every query of a file catalog into the store.
func (s *Store) Import(ctx context.Context, f *File) (int, error) {
	for i, q := range f.Queries {
		if err := s.Put(ctx, q); err != nil {
			return i, fmt.Errorf("import %s: %w", q.ID, err)
		}
	}
	return len(f.Queries), nil
}
