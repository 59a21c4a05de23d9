package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/farxc/rcs-reporting/internal/logger"
	"github.com/farxc/rcs-reporting/internal/ordered"
)

// Bookkeeping fields kept next to the user data in every stored document.
// Documents of a sub-collection share one MongoDB collection named after the
// leaf segment and are told apart by _parent.
const (
	fieldKey        = "_id"
	fieldDocID      = "_docId"
	fieldParent     = "_parent"
	fieldCreateTime = "_createTime"
	fieldUpdateTime = "_updateTime"
)

var metaFields = map[string]bool{
	fieldKey: true, fieldDocID: true, fieldParent: true, fieldCreateTime: true, fieldUpdateTime: true,
}

// Mongo is the production Store.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *logger.Logger

	mu   sync.Mutex
	subs map[*mongoSub]struct{}
}

// ConnectMongo opens a client and verifies it with a ping.
func ConnectMongo(ctx context.Context, uri, database string, appLogger *logger.Logger) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to document store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error pinging document store: %w", err)
	}

	return &Mongo{
		client: client,
		db:     client.Database(database),
		logger: appLogger,
		subs:   make(map[*mongoSub]struct{}),
	}, nil
}

func (m *Mongo) target(collection string) (*mongo.Collection, string, error) {
	leaf, parent, err := splitPath(collection)
	if err != nil {
		return nil, "", err
	}
	return m.db.Collection(leaf), parent, nil
}

func fullID(collection, id string) string {
	return collection + "/" + id
}

func (m *Mongo) Get(ctx context.Context, collection, id string) (Document, error) {
	coll, _, err := m.target(collection)
	if err != nil {
		return Document{}, err
	}
	var raw bson.D
	err = coll.FindOne(ctx, bson.D{{Key: fieldKey, Value: fullID(collection, id)}}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return fromBSON(raw), nil
}

func (m *Mongo) Create(ctx context.Context, collection, id string, data *ordered.Map) error {
	coll, parent, err := m.target(collection)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	doc := envelope(collection, parent, id, now, now, data)
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
		}
		return fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	return nil
}

func (m *Mongo) Set(ctx context.Context, collection, id string, data *ordered.Map) error {
	coll, parent, err := m.target(collection)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	created := now
	if prev, err := m.Get(ctx, collection, id); err == nil {
		created = prev.CreateTime
	}
	doc := envelope(collection, parent, id, created, now, data)
	_, err = coll.ReplaceOne(ctx, bson.D{{Key: fieldKey, Value: fullID(collection, id)}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (m *Mongo) Merge(ctx context.Context, collection, id string, data *ordered.Map) error {
	coll, parent, err := m.target(collection)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	set := bson.D{
		{Key: fieldDocID, Value: id},
		{Key: fieldParent, Value: parent},
		{Key: fieldUpdateTime, Value: now},
	}
	set = append(set, toBSON(data)...)
	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$setOnInsert", Value: bson.D{{Key: fieldCreateTime, Value: now}}},
	}
	_, err = coll.UpdateOne(ctx, bson.D{{Key: fieldKey, Value: fullID(collection, id)}}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("merge %s/%s: %w", collection, id, err)
	}
	return nil
}

func (m *Mongo) Delete(ctx context.Context, collection, id string) error {
	coll, _, err := m.target(collection)
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, bson.D{{Key: fieldKey, Value: fullID(collection, id)}})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (m *Mongo) Query(ctx context.Context, q Query) ([]Document, error) {
	coll, parent, err := m.target(q.Collection)
	if err != nil {
		return nil, err
	}

	filter := bson.D{{Key: fieldParent, Value: parent}}
	for _, f := range q.Filters {
		switch f.Op {
		case OpEqual, "":
			filter = append(filter, bson.E{Key: f.Field, Value: toBSONValue(f.Value)})
		case OpGreaterOrEqual:
			filter = append(filter, bson.E{Key: f.Field, Value: bson.D{{Key: "$gte", Value: toBSONValue(f.Value)}}})
		case OpLessOrEqual:
			filter = append(filter, bson.E{Key: f.Field, Value: bson.D{{Key: "$lte", Value: toBSONValue(f.Value)}}})
		default:
			return nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}

	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		filter = append(filter, bson.E{Key: q.OrderBy, Value: bson.D{{Key: "$exists", Value: true}}})
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: fieldDocID, Value: 1}})
	} else {
		opts.SetSort(bson.D{{Key: fieldDocID, Value: 1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer cursor.Close(ctx)

	var raws []bson.D
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("decode %s: %w", q.Collection, err)
	}
	docs := make([]Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, fromBSON(raw))
	}
	return docs, nil
}

func (m *Mongo) WatchDocument(ctx context.Context, collection, id string, h Handler) (Subscription, error) {
	coll, _, err := m.target(collection)
	if err != nil {
		return nil, err
	}
	key := fullID(collection, id)
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: key}}}}}
	load := func(ctx context.Context) (Snapshot, error) {
		doc, err := m.Get(ctx, collection, id)
		if errors.Is(err, ErrNotFound) {
			return Snapshot{}, nil
		}
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Docs: []Document{doc}}, nil
	}
	return m.watch(ctx, coll, pipeline, load, h)
}

func (m *Mongo) WatchQuery(ctx context.Context, q Query, h Handler) (Subscription, error) {
	coll, _, err := m.target(q.Collection)
	if err != nil {
		return nil, err
	}
	load := func(ctx context.Context) (Snapshot, error) {
		docs, err := m.Query(ctx, q)
		return Snapshot{Docs: docs}, err
	}
	return m.watch(ctx, coll, collectionChanges(q.Collection), load, h)
}

// collectionChanges keeps the events of one logical collection. Every
// sub-collection with the same leaf shares a MongoDB collection, so the
// match is on the _id prefix, which delete events carry as well.
func collectionChanges(collection string) mongo.Pipeline {
	prefix := bson.Regex{Pattern: "^" + regexp.QuoteMeta(collection+"/")}
	return mongo.Pipeline{{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: prefix}}}}}
}

// watch opens a change stream first and only then loads the initial
// snapshot, so no change between the two is missed. Every event reloads
// the full target.
func (m *Mongo) watch(ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline, load func(context.Context) (Snapshot, error), h Handler) (Subscription, error) {
	const component = "DocstoreWatch"
	watchCtx, cancel := context.WithCancel(ctx)

	stream, err := coll.Watch(watchCtx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open change stream on %s: %w", coll.Name(), err)
	}

	initial, err := load(watchCtx)
	if err != nil {
		cancel()
		_ = stream.Close(context.Background())
		return nil, err
	}

	sub := &mongoSub{cancel: cancel, done: make(chan struct{}), owner: m}
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		defer close(sub.done)
		defer stream.Close(context.Background())
		h(initial)
		for stream.Next(watchCtx) {
			snap, err := load(watchCtx)
			if err != nil {
				if watchCtx.Err() == nil {
					m.logger.Warn(component, "Reload after change failed: collection=%s err=%v", coll.Name(), err)
				}
				continue
			}
			h(snap)
		}
		if err := stream.Err(); err != nil && watchCtx.Err() == nil {
			m.logger.Error(component, "Change stream ended: collection=%s err=%v", coll.Name(), err)
		}
	}()

	return sub, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	m.mu.Lock()
	subs := make([]*mongoSub, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
	return m.client.Disconnect(ctx)
}

type mongoSub struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	owner  *Mongo
}

func (s *mongoSub) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.owner.mu.Lock()
		delete(s.owner.subs, s)
		s.owner.mu.Unlock()
	})
	return nil
}

func envelope(collection, parent, id string, created, updated time.Time, data *ordered.Map) bson.D {
	doc := bson.D{
		{Key: fieldKey, Value: fullID(collection, id)},
		{Key: fieldDocID, Value: id},
		{Key: fieldParent, Value: parent},
		{Key: fieldCreateTime, Value: created},
		{Key: fieldUpdateTime, Value: updated},
	}
	return append(doc, toBSON(data)...)
}

func toBSON(m *ordered.Map) bson.D {
	doc := bson.D{}
	m.Range(func(k string, v any) bool {
		doc = append(doc, bson.E{Key: k, Value: toBSONValue(v)})
		return true
	})
	return doc
}

func toBSONValue(v any) any {
	switch val := v.(type) {
	case *ordered.Map:
		return toBSON(val)
	case []*ordered.Map:
		arr := make(bson.A, len(val))
		for i := range val {
			arr[i] = toBSON(val[i])
		}
		return arr
	case []any:
		arr := make(bson.A, len(val))
		for i := range val {
			arr[i] = toBSONValue(val[i])
		}
		return arr
	case []string:
		arr := make(bson.A, len(val))
		for i := range val {
			arr[i] = val[i]
		}
		return arr
	case map[string]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		doc := bson.D{}
		for _, k := range keys {
			doc = append(doc, bson.E{Key: k, Value: val[k]})
		}
		return doc
	case map[string]any:
		return toBSON(ordered.FromMap(val))
	default:
		return v
	}
}

func fromBSON(raw bson.D) Document {
	doc := Document{Data: ordered.New()}
	for _, e := range raw {
		switch e.Key {
		case fieldDocID:
			doc.ID, _ = e.Value.(string)
		case fieldCreateTime:
			doc.CreateTime = asTime(e.Value)
		case fieldUpdateTime:
			doc.UpdateTime = asTime(e.Value)
		}
		if metaFields[e.Key] {
			continue
		}
		doc.Data.Set(e.Key, fromBSONValue(e.Value))
	}
	return doc
}

func fromBSONValue(v any) any {
	switch val := v.(type) {
	case bson.D:
		m := ordered.New()
		for _, e := range val {
			m.Set(e.Key, fromBSONValue(e.Value))
		}
		return m
	case bson.M:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := ordered.New()
		for _, k := range keys {
			m.Set(k, fromBSONValue(val[k]))
		}
		return m
	case bson.A:
		arr := make([]any, len(val))
		for i := range val {
			arr[i] = fromBSONValue(val[i])
		}
		return arr
	case bson.DateTime:
		return val.Time().UTC()
	case bson.ObjectID:
		return val.Hex()
	case int32:
		return int64(val)
	default:
		return v
	}
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case bson.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t
	}
	return time.Time{}
}
