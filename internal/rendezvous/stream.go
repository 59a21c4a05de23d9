package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/farxc/rcs-reporting/internal/command"
	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/ordered"
)

// Results is one view of a result set.
type Results struct {
	Columns []string
	Rows    []*ordered.Map
	// RowCount is the count published by the worker, -1 when unknown.
	RowCount int
	MetaSeen bool
}

// Complete reports whether every row the worker announced is present.
func (r Results) Complete() bool {
	if r.MetaSeen && r.RowCount >= 0 {
		return len(r.Rows) >= r.RowCount
	}
	return len(r.Columns) > 0 && len(r.Rows) > 0
}

// Scope owns a group of subscriptions that are always replaced together.
// Replace closes the current group before any new subscription is opened.
type Scope struct {
	mu   sync.Mutex
	subs []docstore.Subscription
}

func (s *Scope) Replace(open ...func() (docstore.Subscription, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.closeLocked(); err != nil {
		return err
	}
	for _, o := range open {
		sub, err := o()
		if err != nil {
			_ = s.closeLocked()
			return err
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Scope) closeLocked() error {
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.subs = nil
	return errors.Join(errs...)
}

// Stream is a live view of one result set. The callback receives a fresh
// Results value after every change of the meta document or the rows.
type Stream struct {
	client      *Client
	commandID   string
	submitterID string
	fn          func(Results)

	scope  Scope
	emitMu sync.Mutex

	mu         sync.Mutex
	gen        int
	cmdColumns []string
	meta       command.Meta
	metaSeen   bool
	rows       []*ordered.Map
}

// StreamResults subscribes to the command, the meta document and the rows
// of its result set at the same time. A column order the worker adds to the
// command later still takes precedence over the meta document.
func (c *Client) StreamResults(ctx context.Context, commandID, submitterID string, fn func(Results)) (*Stream, error) {
	s := &Stream{client: c, commandID: commandID, submitterID: submitterID, fn: fn}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh drops the current listeners and subscribes again from scratch.
// It must not be called from the stream callback.
func (s *Stream) Refresh(ctx context.Context) error {
	cmd, err := s.client.commands.Get(ctx, s.commandID)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("load command %s: %w", s.commandID, err)
	}
	if errors.Is(err, docstore.ErrNotFound) {
		cmd = command.Command{ID: s.commandID, SubmitterID: s.submitterID}
	}
	if cmd.SubmitterID == "" {
		cmd.SubmitterID = s.submitterID
	}
	combined := resultSetID(cmd)

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.cmdColumns = cmd.ColumnOrder
	s.meta = command.Meta{RowCount: -1}
	s.metaSeen = false
	s.rows = nil
	s.mu.Unlock()

	return s.scope.Replace(
		func() (docstore.Subscription, error) {
			return s.client.commands.Watch(ctx, s.commandID, func(c command.Command, ok bool) {
				if !ok || len(c.ColumnOrder) == 0 {
					return
				}
				s.update(gen, func() {
					s.cmdColumns = c.ColumnOrder
				})
			})
		},
		func() (docstore.Subscription, error) {
			return s.client.results.WatchMeta(ctx, combined, func(m command.Meta, ok bool) {
				s.update(gen, func() {
					s.meta, s.metaSeen = m, ok
				})
			})
		},
		func() (docstore.Subscription, error) {
			return s.client.results.WatchRows(ctx, combined, func(rows []*ordered.Map) {
				s.update(gen, func() {
					s.rows = rows
				})
			})
		},
	)
}

func (s *Stream) update(gen int, apply func()) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	apply()
	view := s.viewLocked()
	s.mu.Unlock()

	if s.fn != nil {
		s.fn(view)
	}
}

// Current returns the latest view.
func (s *Stream) Current() Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Stream) Close() error {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	return s.scope.Close()
}

func (s *Stream) viewLocked() Results {
	rows := orderRows(s.rows)
	return Results{
		Columns:  resolveColumns(s.cmdColumns, s.meta.ColumnOrder, rows),
		Rows:     rows,
		RowCount: s.meta.RowCount,
		MetaSeen: s.metaSeen,
	}
}

// resolveColumns applies the column order precedence: the command, then
// the meta document, then the key order of the first row.
func resolveColumns(fromCommand, fromMeta []string, rows []*ordered.Map) []string {
	switch {
	case len(fromCommand) > 0:
		return append([]string(nil), fromCommand...)
	case len(fromMeta) > 0:
		return append([]string(nil), fromMeta...)
	case len(rows) > 0:
		return rows[0].Keys()
	}
	return nil
}

// orderRows sorts by _rowIndex and strips bookkeeping fields. Rows without
// an index keep their arrival order after the indexed ones.
func orderRows(in []*ordered.Map) []*ordered.Map {
	type indexed struct {
		row   *ordered.Map
		idx   int
		has   bool
		order int
	}
	items := make([]indexed, len(in))
	for i, r := range in {
		idx, ok := command.RowIndex(r)
		items[i] = indexed{row: r, idx: idx, has: ok, order: i}
	}
	sort.SliceStable(items, func(a, b int) bool {
		x, y := items[a], items[b]
		if x.has != y.has {
			return x.has
		}
		if x.has && x.idx != y.idx {
			return x.idx < y.idx
		}
		return x.order < y.order
	})
	out := make([]*ordered.Map, len(items))
	for i, it := range items {
		row := it.row.Clone()
		row.Delete(command.FieldRowIndex)
		row.Delete(command.FieldStoredAt)
		out[i] = row
	}
	return out
}

// FetchResults streams the result set until it is complete and returns it.
// Listeners are closed on every return path.
func (c *Client) FetchResults(ctx context.Context, commandID, submitterID string, timeout time.Duration) (Results, error) {
	if timeout <= 0 {
		return Results{}, ErrTimeoutRequired
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Results, 1)
	stream, err := c.StreamResults(waitCtx, commandID, submitterID, func(r Results) {
		if !r.Complete() {
			return
		}
		select {
		case done <- r:
		default:
		}
	})
	if err != nil {
		return Results{}, err
	}
	defer stream.Close()

	select {
	case r := <-done:
		return r, nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return Results{}, ctx.Err()
		}
		return Results{}, fmt.Errorf("%w: results of %s after %s", ErrTimeout, commandID, timeout)
	}
}

// Execute runs a query end to end: submit, await, then fetch the rows for
// select queries. The same timeout bounds the wait for the command and the
// wait for its rows.
func (c *Client) Execute(ctx context.Context, clientID, submitterID, queryID string, vars map[string]string, timeout time.Duration) (Results, error) {
	if timeout <= 0 {
		return Results{}, ErrTimeoutRequired
	}
	id, err := c.SubmitCommand(ctx, clientID, submitterID, queryID, vars)
	if err != nil {
		return Results{}, err
	}
	wait := c.AwaitCommand
	if c.Poll {
		wait = c.PollCommand
	}
	cmd, err := wait(ctx, id, timeout)
	if err != nil {
		return Results{}, err
	}
	if cmd.QueryType == command.QueryTypeNonSelect {
		return Results{RowCount: 0}, nil
	}
	return c.FetchResults(ctx, id, submitterID, timeout)
}
