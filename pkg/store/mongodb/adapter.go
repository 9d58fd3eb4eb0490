// Package mongodb implements the advtxt data store adapter on top of MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/advtxt/advtxt-db-mongo/pkg/config"
	"github.com/advtxt/advtxt-db-mongo/pkg/observability/logger"
	"github.com/advtxt/advtxt-db-mongo/pkg/observability/metrics"
	"github.com/advtxt/advtxt-db-mongo/pkg/observability/tracing"
)

const (
	adapterName             = "mongodb"
	defaultConnectTimeout   = 10 * time.Second
	defaultOperationTimeout = 5 * time.Second
	healthCheckTimeout      = 2 * time.Second
	disconnectTimeout       = 5 * time.Second
)

// Record is a document as stored in a collection.
type Record = bson.M

// Adapter provides the advtxt store operations against one MongoDB database.
// The zero value is not usable; create one with NewAdapter.
type Adapter struct {
	logger  logger.Logger
	connect connector

	mu      sync.RWMutex
	client  client
	db      database
	dbName  string
	timeout time.Duration
	closed  bool
}

// NewAdapter returns an adapter that is not yet connected. Call Initialize
// before any other operation.
func NewAdapter(log logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Adapter{
		logger:  log.With("adapter", adapterName),
		connect: dial,
	}
}

// Initialize validates cfg, connects and binds the adapter to its database.
// It returns the adapter itself so calls can be chained. The connection is
// established at most once per adapter.
func (a *Adapter) Initialize(ctx context.Context, cfg config.StoreConfig) (*Adapter, error) {
	if cfg.Adapter != config.AdapterMongoDB {
		return nil, fmt.Errorf("%w: %s", ErrConfiguration, msgWrongAdapter)
	}
	if cfg.MongoDB.URI == "" {
		return nil, fmt.Errorf("%w: mongodb.uri is required", ErrConfiguration)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}
	if a.client != nil {
		return nil, ErrAlreadyInitialized
	}

	connectTimeout := cfg.MongoDB.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	connCtx, cancel := withTimeout(ctx, connectTimeout)
	defer cancel()

	start := time.Now()
	connCtx, span := tracing.StartDatabaseSpan(connCtx, tracing.SpanOperationDBConnect, tracing.WithDBSystem(adapterName))
	c, err := a.connect(connCtx, cfg.MongoDB.URI)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrConnection, msgCannotConnect, err)
		a.logger.WithContext(ctx).Error("MongoDB connection failed", "error", err)
		metrics.RecordStoreOperation(adapterName, "connect", "", err, time.Since(start))
		tracing.Finish(span, err)
		return nil, err
	}

	name := databaseName(cfg.MongoDB.URI, cfg.MongoDB.Database)
	var db database
	if c != nil && name != "" {
		db = c.Database(name)
	}
	if db == nil {
		if c != nil {
			_ = c.Disconnect(context.Background())
		}
		err = fmt.Errorf("%w: %s", ErrConnection, msgNoDatabase)
		a.logger.WithContext(ctx).Error("MongoDB connection has no database", "error", err)
		metrics.RecordStoreOperation(adapterName, "connect", "", err, time.Since(start))
		tracing.Finish(span, err)
		return nil, err
	}
	metrics.RecordStoreOperation(adapterName, "connect", "", nil, time.Since(start))
	tracing.Finish(span, nil)

	a.client = c
	a.db = db
	a.dbName = name
	a.timeout = cfg.MongoDB.OperationTimeout
	if a.timeout <= 0 {
		a.timeout = defaultOperationTimeout
	}

	a.logger.WithContext(ctx).Info("MongoDB connection established", "database", name)
	return a, nil
}

// DatabaseName returns the database the adapter is bound to, or "" before
// Initialize.
func (a *Adapter) DatabaseName() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dbName
}

// Update sets the fields of patch on every record of collection matching
// selector and returns how many records matched, including records that
// already held the patched values. A nil selector matches every record; a
// nil patch changes nothing.
func (a *Adapter) Update(ctx context.Context, collection string, selector, patch Record) (updated int64, err error) {
	db, err := a.handle()
	if err != nil {
		return 0, err
	}
	if selector == nil {
		selector = Record{}
	}
	if patch == nil {
		patch = Record{}
	}

	ctx, done := a.instrument(ctx, "update", tracing.SpanOperationDBUpdate, collection)
	defer func() { done(err, updated) }()

	opCtx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	coll := db.Collection(collection, options.Collection().SetWriteConcern(writeconcern.W1()))
	res, err := coll.UpdateMany(opCtx, selector, bson.M{"$set": patch})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUpdate, err)
	}
	if res == nil {
		return 0, nil
	}
	return res.MatchedCount, nil
}

// FindOne returns the first record of collection matching selector. It
// returns (nil, nil) when nothing matches.
func (a *Adapter) FindOne(ctx context.Context, collection string, selector Record) (rec Record, err error) {
	db, err := a.handle()
	if err != nil {
		return nil, err
	}
	if selector == nil {
		selector = Record{}
	}

	ctx, done := a.instrument(ctx, "find_one", tracing.SpanOperationDBFind, collection)
	defer func() {
		var n int64
		if rec != nil {
			n = 1
		}
		done(err, n)
	}()

	opCtx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	var found Record
	if err := db.Collection(collection).FindOne(opCtx, selector).Decode(&found); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	return found, nil
}

// InsertOne stores item in collection and returns the stored record,
// including the _id assigned by the server when item had none. item must be
// a map with string keys, a struct, bson.D, bson.Raw or a pointer to one of
// those.
func (a *Adapter) InsertOne(ctx context.Context, collection string, item any) (rec Record, err error) {
	doc, err := toDocument(item)
	if err != nil {
		return nil, err
	}
	db, err := a.handle()
	if err != nil {
		return nil, err
	}

	ctx, done := a.instrument(ctx, "insert_one", tracing.SpanOperationDBInsert, collection)
	defer func() {
		var n int64
		if rec != nil {
			n = 1
		}
		done(err, n)
	}()

	opCtx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	res, err := db.Collection(collection).InsertOne(opCtx, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInsert, err)
	}
	if res == nil || res.InsertedID == nil {
		return nil, ErrMultiInsert
	}

	rec = insertedRecord(item, doc)
	rec["_id"] = res.InsertedID
	return rec, nil
}

// insertedRecord builds the record InsertOne returns. Map items keep the
// caller's own values. Other shapes are decoded the way FindOne decodes, so
// nested documents come back as Record.
func insertedRecord(item any, doc bson.D) Record {
	v := reflect.ValueOf(item)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() == reflect.Map {
		rec := make(Record, v.Len()+1)
		iter := v.MapRange()
		for iter.Next() {
			rec[iter.Key().String()] = iter.Value().Interface()
		}
		return rec
	}

	rec := make(Record, len(doc)+1)
	if raw, err := bson.Marshal(doc); err == nil && bson.Unmarshal(raw, &rec) == nil {
		return rec
	}
	for _, e := range doc {
		rec[e.Key] = e.Value
	}
	return rec
}

// HealthCheck pings the primary. The ping is bounded to two seconds.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	a.mu.RLock()
	c, closed := a.client, a.closed
	a.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if c == nil {
		return ErrNotInitialized
	}

	hcCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	hcCtx, span := tracing.StartDatabaseSpan(hcCtx, tracing.SpanOperationDBPing, tracing.WithDBSystem(adapterName))
	err := c.Ping(hcCtx)
	metrics.RecordStoreOperation(adapterName, "ping", "", err, time.Since(start))
	tracing.Finish(span, err)
	if err != nil {
		a.logger.WithContext(ctx).Error("MongoDB health check failed", "error", err)
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB. It is safe to call more than once; after
// Close every operation fails with ErrClosed.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	c := a.client
	a.mu.Unlock()

	if c == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := c.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to close mongodb connection: %w", err)
	}
	a.logger.Info("MongoDB connection closed", "database", a.DatabaseName())
	return nil
}

func (a *Adapter) handle() (database, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	if a.db == nil {
		return nil, ErrNotInitialized
	}
	return a.db, nil
}

// instrument opens a span for one operation and returns the function that
// records its outcome in the span, the store metrics and the log.
func (a *Adapter) instrument(ctx context.Context, operation string, spanOp tracing.SpanOperation, collection string) (context.Context, func(error, int64)) {
	start := time.Now()
	ctx, span := tracing.StartDatabaseSpan(ctx, spanOp,
		tracing.WithDBSystem(adapterName),
		tracing.WithDBName(a.DatabaseName()),
		tracing.WithDBCollection(collection),
	)
	log := a.logger.WithContext(ctx)

	return ctx, func(err error, affected int64) {
		elapsed := time.Since(start)
		metrics.RecordStoreOperation(adapterName, operation, collection, err, elapsed)
		if err != nil {
			log.Error("MongoDB operation failed", "operation", operation, "collection", collection, "error", err)
		} else {
			tracing.SetAffected(span, affected)
			log.Debug("MongoDB operation completed", "operation", operation, "collection", collection, "affected", affected, "duration", elapsed)
		}
		tracing.Finish(span, err)
	}
}

// withTimeout bounds ctx by d unless the caller already set a deadline.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

var (
	typeD   = reflect.TypeOf(bson.D{})
	typeRaw = reflect.TypeOf(bson.Raw{})
)

// toDocument converts a caller record into an ordered document, rejecting
// values that are not records before any driver call.
func toDocument(item any) (bson.D, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: got nil", ErrInvalidItem)
	}

	v := reflect.ValueOf(item)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, fmt.Errorf("%w: got nil %T", ErrInvalidItem, item)
		}
		v = v.Elem()
	}

	switch {
	case v.Type() == typeRaw:
		return decodeDocument(v.Interface().(bson.Raw))
	case v.Type() == typeD:
		return v.Interface().(bson.D), nil
	case v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String:
	case v.Kind() == reflect.Struct:
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidItem, item)
	}

	raw, err := bson.Marshal(v.Interface())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}
	return decodeDocument(raw)
}

func decodeDocument(raw bson.Raw) (bson.D, error) {
	if err := raw.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}
	return doc, nil
}
