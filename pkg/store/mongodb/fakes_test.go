package mongodb

import (
	"context"
	"reflect"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/advtxt/advtxt-db-mongo/pkg/config"
	"github.com/advtxt/advtxt-db-mongo/pkg/observability/logger"
)

// fakeClient is an in-memory stand-in for a connected driver client.
type fakeClient struct {
	mu           sync.Mutex
	pingErr      error
	disconnected bool
	databases    []string
	db           *fakeDatabase
}

func newFakeClient() *fakeClient {
	return &fakeClient{db: &fakeDatabase{collections: map[string]*fakeCollection{}}}
}

func (c *fakeClient) Ping(ctx context.Context) error {
	return c.pingErr
}

func (c *fakeClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *fakeClient) Database(name string) database {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.databases = append(c.databases, name)
	return c.db
}

type fakeDatabase struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	opts        map[string][]*options.CollectionOptions
}

func (d *fakeDatabase) Collection(name string, opts ...*options.CollectionOptions) collection {
	return d.collection(name, opts...)
}

func (d *fakeDatabase) collection(name string, opts ...*options.CollectionOptions) *fakeCollection {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opts == nil {
		d.opts = map[string][]*options.CollectionOptions{}
	}
	if len(opts) > 0 {
		d.opts[name] = opts
	}
	c, ok := d.collections[name]
	if !ok {
		c = &fakeCollection{}
		d.collections[name] = c
	}
	return c
}

// fakeCollection matches selectors by top-level equality and supports $set.
type fakeCollection struct {
	mu    sync.Mutex
	docs  []bson.M
	calls int

	updateErr    error
	findErr      error
	insertErr    error
	insertResult *mongo.InsertOneResult
	lastUpdate   interface{}
}

func (c *fakeCollection) UpdateMany(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.lastUpdate = update
	if c.updateErr != nil {
		return nil, c.updateErr
	}

	set, _ := update.(bson.M)["$set"].(Record)
	res := &mongo.UpdateResult{}
	for _, doc := range c.docs {
		if !matches(doc, filter.(Record)) {
			continue
		}
		res.MatchedCount++
		changed := false
		for k, v := range set {
			if !reflect.DeepEqual(doc[k], v) {
				doc[k] = v
				changed = true
			}
		}
		if changed {
			res.ModifiedCount++
		}
	}
	return res, nil
}

func (c *fakeCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.findErr != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, c.findErr, nil)
	}
	for _, doc := range c.docs {
		if matches(doc, filter.(Record)) {
			return mongo.NewSingleResultFromDocument(doc, nil, nil)
		}
	}
	return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
}

func (c *fakeCollection) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.insertErr != nil {
		return nil, c.insertErr
	}
	if c.insertResult != nil {
		return c.insertResult, nil
	}

	doc := bson.M{}
	for _, e := range document.(bson.D) {
		doc[e.Key] = e.Value
	}
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = primitive.NewObjectID()
	}
	c.docs = append(c.docs, doc)
	return &mongo.InsertOneResult{InsertedID: doc["_id"]}, nil
}

func (c *fakeCollection) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func matches(doc bson.M, selector Record) bool {
	for k, v := range selector {
		if !reflect.DeepEqual(doc[k], v) {
			return false
		}
	}
	return true
}

func validStoreConfig() config.StoreConfig {
	return config.StoreConfig{
		Adapter: config.AdapterMongoDB,
		MongoDB: config.MongoDBConfig{URI: "mongodb://localhost:27017/advtxt"},
	}
}

// newFakeAdapter returns an uninitialized adapter whose connector hands out fc
// and counts dials.
func newFakeAdapter(fc *fakeClient, dials *int) *Adapter {
	a := NewAdapter(logger.NewNop())
	a.connect = func(ctx context.Context, uri string) (client, error) {
		*dials++
		return fc, nil
	}
	return a
}

// newReadyAdapter returns an adapter initialized against a fresh fake client.
func newReadyAdapter(t interface {
	Helper()
	Fatalf(string, ...any)
}) (*Adapter, *fakeClient) {
	t.Helper()
	fc := newFakeClient()
	var dials int
	a := newFakeAdapter(fc, &dials)
	if _, err := a.Initialize(context.Background(), validStoreConfig()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return a, fc
}
