package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/farxc/rcs-reporting/internal/ordered"
)

// Memory is an in-process Store. It backs tests and single-node development
// runs where no MongoDB is configured.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]*Document
	watchers    map[int]*memWatcher
	nextWatch   int
	closed      bool
	now         func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]*Document),
		watchers:    make(map[int]*memWatcher),
		now:         time.Now,
	}
}

// SetClock overrides the time source used for create/update stamps.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// WatcherCount reports the number of live subscriptions.
func (m *Memory) WatcherCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.collections[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return cloneDoc(doc), nil
}

func (m *Memory) Create(ctx context.Context, collection, id string, data *ordered.Map) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.checkPath(collection); err != nil {
		return err
	}
	if _, ok := m.collections[collection][id]; ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	}
	m.put(collection, id, data.Clone(), nil)
	return nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, data *ordered.Map) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.checkPath(collection); err != nil {
		return err
	}
	m.put(collection, id, data.Clone(), m.collections[collection][id])
	return nil
}

func (m *Memory) Merge(ctx context.Context, collection, id string, data *ordered.Map) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.checkPath(collection); err != nil {
		return err
	}
	prev := m.collections[collection][id]
	merged := ordered.New()
	if prev != nil {
		merged = prev.Data.Clone()
	}
	data.Range(func(k string, v any) bool {
		merged.Set(k, ordered.CloneValue(v))
		return true
	})
	m.put(collection, id, merged, prev)
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.collections[collection]
	if _, ok := docs[id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	delete(docs, id)
	m.notify(collection, id)
	return nil
}

func (m *Memory) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.checkPath(q.Collection); err != nil {
		return nil, err
	}
	return m.run(q), nil
}

func (m *Memory) WatchDocument(ctx context.Context, collection, id string, h Handler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.checkPath(collection); err != nil {
		return nil, err
	}
	w := m.addWatcher(ctx, collection, h)
	w.docID = id
	w.push(m.docSnapshot(collection, id))
	return w, nil
}

func (m *Memory) WatchQuery(ctx context.Context, q Query, h Handler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.checkPath(q.Collection); err != nil {
		return nil, err
	}
	w := m.addWatcher(ctx, q.Collection, h)
	qc := q
	w.query = &qc
	w.push(Snapshot{Docs: m.run(q)})
	return w, nil
}

// Close stops every live watcher.
func (m *Memory) Close(ctx context.Context) error {
	m.mu.Lock()
	watchers := make([]*memWatcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.closed = true
	m.mu.Unlock()
	for _, w := range watchers {
		w.Close()
	}
	return nil
}

func (m *Memory) checkPath(collection string) (string, error) {
	if m.closed {
		return "", fmt.Errorf("docstore closed")
	}
	leaf, _, err := splitPath(collection)
	return leaf, err
}

// put stores data under collection/id and notifies watchers. Callers hold mu.
func (m *Memory) put(collection, id string, data *ordered.Map, prev *Document) {
	now := m.now()
	doc := &Document{ID: id, Data: data, CreateTime: now, UpdateTime: now}
	if prev != nil {
		doc.CreateTime = prev.CreateTime
	}
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]*Document)
	}
	m.collections[collection][id] = doc
	m.notify(collection, id)
}

func (m *Memory) notify(collection, id string) {
	for _, w := range m.watchers {
		if w.collection != collection {
			continue
		}
		if w.query != nil {
			w.push(Snapshot{Docs: m.run(*w.query)})
			continue
		}
		if w.docID == id {
			w.push(m.docSnapshot(collection, id))
		}
	}
}

func (m *Memory) docSnapshot(collection, id string) Snapshot {
	doc, ok := m.collections[collection][id]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{Docs: []Document{cloneDoc(doc)}}
}

func (m *Memory) run(q Query) []Document {
	var out []Document
	for _, doc := range m.collections[q.Collection] {
		if matches(doc.Data, q.Filters) {
			if q.OrderBy != "" && !doc.Data.Has(q.OrderBy) {
				continue
			}
			out = append(out, cloneDoc(doc))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy == "" {
			return out[i].ID < out[j].ID
		}
		a, _ := out[i].Data.Get(q.OrderBy)
		b, _ := out[j].Data.Get(q.OrderBy)
		c, _ := compare(a, b)
		if c == 0 {
			return out[i].ID < out[j].ID
		}
		if q.Descending {
			return c > 0
		}
		return c < 0
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func matches(data *ordered.Map, filters []Filter) bool {
	for _, f := range filters {
		v, ok := data.Get(f.Field)
		if !ok {
			return false
		}
		c, comparable := compare(v, f.Value)
		if !comparable {
			return false
		}
		switch f.Op {
		case OpEqual, "":
			if c != 0 {
				return false
			}
		case OpGreaterOrEqual:
			if c < 0 {
				return false
			}
		case OpLessOrEqual:
			if c > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compare orders two scalar values of the same kind.
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case va < vb:
			return -1, true
		case va > vb:
			return 1, true
		}
		return 0, true
	case time.Time:
		vb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return va.Compare(vb), true
	case bool:
		vb, ok := b.(bool)
		if !ok || va != vb {
			return 1, ok
		}
		return 0, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func cloneDoc(d *Document) Document {
	return Document{ID: d.ID, Data: d.Data.Clone(), CreateTime: d.CreateTime, UpdateTime: d.UpdateTime}
}

func (m *Memory) addWatcher(ctx context.Context, collection string, h Handler) *memWatcher {
	m.nextWatch++
	w := &memWatcher{
		id:         m.nextWatch,
		collection: collection,
		handler:    h,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		store:      m,
	}
	m.watchers[w.id] = w
	go w.loop()
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				w.Close()
			case <-w.done:
			}
		}()
	}
	return w
}

func (m *Memory) removeWatcher(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watchers, id)
}

type memWatcher struct {
	id         int
	collection string
	docID      string
	query      *Query
	handler    Handler
	store      *Memory

	mu    sync.Mutex
	queue []Snapshot
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (w *memWatcher) push(s Snapshot) {
	w.mu.Lock()
	w.queue = append(w.queue, s)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *memWatcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}
		for {
			w.mu.Lock()
			if len(w.queue) == 0 {
				w.mu.Unlock()
				break
			}
			s := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()

			select {
			case <-w.done:
				return
			default:
			}
			w.handler(s)
		}
	}
}

func (w *memWatcher) Close() error {
	w.once.Do(func() {
		close(w.done)
		w.store.removeWatcher(w.id)
	})
	return nil
}
