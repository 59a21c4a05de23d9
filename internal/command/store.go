package command

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/ordered"
)

// Store reads and writes command records.
type Store struct {
	docs  docstore.Store
	now   func() time.Time
	newID func() string
}

func NewStore(docs docstore.Store) *Store {
	return &Store{
		docs:  docs,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// WithClock replaces the time source; used by tests and the scheduler.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Create stores a new pending command and returns its id. Variables are not
// checked against the query definition.
func (s *Store) Create(ctx context.Context, clientID, submitterID, queryID string, vars map[string]string) (Command, error) {
	c := Command{
		ID:          s.newID(),
		ClientID:    clientID,
		SubmitterID: submitterID,
		QueryID:     queryID,
		Variables:   vars,
		Status:      StatusPending,
		CreatedAt:   s.now(),
	}
	if c.Variables == nil {
		c.Variables = map[string]string{}
	}
	if err := s.docs.Create(ctx, Collection, c.ID, c.Fields()); err != nil {
		return Command{}, fmt.Errorf("create command: %w", err)
	}
	return c, nil
}

func (s *Store) Get(ctx context.Context, id string) (Command, error) {
	doc, err := s.docs.Get(ctx, Collection, id)
	if err != nil {
		return Command{}, err
	}
	return FromDocument(doc)
}

// Update is the worker-side patch applied on a status change.
type Update struct {
	ResultsLocator string
	ColumnOrder    []string
	Error          string
	QueryType      string
	Result         any
}

// Advance moves a command to the next status, refusing transitions that
// would break monotonicity. It is the write path of the external worker and
// of in-process fakes standing in for it.
func (s *Store) Advance(ctx context.Context, id string, next Status, u Update) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(current.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next)
	}
	patch := ordered.FromPairs("status", string(next))
	if next.IsTerminal() {
		patch.Set("completedAt", s.now())
	}
	if u.ResultsLocator != "" {
		patch.Set("resultsLocator", u.ResultsLocator)
	}
	if len(u.ColumnOrder) > 0 {
		patch.Set("columnOrder", stringsToAny(u.ColumnOrder))
	}
	if next == StatusFailed {
		msg := u.Error
		if msg == "" {
			msg = "query failed"
		}
		patch.Set("error", msg)
	}
	if u.QueryType != "" {
		patch.Set("queryType", u.QueryType)
	}
	if u.Result != nil {
		patch.Set("result", u.Result)
	}
	return s.docs.Merge(ctx, Collection, id, patch)
}

// Watch calls fn with every observed state of the command. A missing
// command is reported with ok=false.
func (s *Store) Watch(ctx context.Context, id string, fn func(c Command, ok bool)) (docstore.Subscription, error) {
	return s.docs.WatchDocument(ctx, Collection, id, func(snap docstore.Snapshot) {
		if len(snap.Docs) == 0 {
			fn(Command{}, false)
			return
		}
		c, err := FromDocument(snap.Docs[0])
		if err != nil {
			fn(Command{}, false)
			return
		}
		fn(c, true)
	})
}

// CreatedSince lists commands for a query and client created at or after
// since, newest first.
func (s *Store) CreatedSince(ctx context.Context, queryID, clientID string, since time.Time) ([]Command, error) {
	docs, err := s.docs.Query(ctx, docstore.Query{
		Collection: Collection,
		Filters: []docstore.Filter{
			docstore.Where("queryId", queryID),
			docstore.Where("clientId", clientID),
			{Field: "createdAt", Op: docstore.OpGreaterOrEqual, Value: since},
		},
		OrderBy:    "createdAt",
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Command, 0, len(docs))
	for _, d := range docs {
		c, err := FromDocument(d)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
