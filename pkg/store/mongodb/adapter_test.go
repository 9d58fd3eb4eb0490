package mongodb

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/advtxt/advtxt-db-mongo/pkg/config"
)

func TestInitialize_ReturnsSameAdapter(t *testing.T) {
	fc := newFakeClient()
	var dials int
	a := newFakeAdapter(fc, &dials)

	got, err := a.Initialize(context.Background(), validStoreConfig())
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got != a {
		t.Fatal("expected Initialize to return the receiver")
	}
	if dials != 1 {
		t.Fatalf("expected one dial, got %d", dials)
	}
	if a.DatabaseName() != "advtxt" {
		t.Fatalf("expected database from URI path, got %q", a.DatabaseName())
	}
}

func TestInitialize_WrongAdapter(t *testing.T) {
	for _, adapter := range []config.AdapterType{"postgres", "", "MongoDB", "mongo"} {
		t.Run(string(adapter), func(t *testing.T) {
			var dials int
			a := newFakeAdapter(newFakeClient(), &dials)
			cfg := validStoreConfig()
			cfg.Adapter = adapter

			got, err := a.Initialize(context.Background(), cfg)
			if got != nil {
				t.Fatal("expected nil adapter on configuration error")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			if !strings.Contains(err.Error(), "Wrong adapter or no adapter specified.") {
				t.Fatalf("unexpected message %q", err.Error())
			}
			if dials != 0 {
				t.Fatalf("expected no connection attempt, got %d", dials)
			}
		})
	}
}

func TestInitialize_MissingURI(t *testing.T) {
	var dials int
	a := newFakeAdapter(newFakeClient(), &dials)
	cfg := validStoreConfig()
	cfg.MongoDB.URI = ""

	if _, err := a.Initialize(context.Background(), cfg); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if dials != 0 {
		t.Fatalf("expected no connection attempt, got %d", dials)
	}
}

func TestInitialize_ConnectFailure(t *testing.T) {
	cause := errors.New("server selection timeout")
	a := NewAdapter(nil)
	a.connect = func(ctx context.Context, uri string) (client, error) {
		return nil, cause
	}

	_, err := a.Initialize(context.Background(), validStoreConfig())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected driver cause to be wrapped, got %v", err)
	}
	if !strings.Contains(err.Error(), "Couldn't connect to DB!") {
		t.Fatalf("unexpected message %q", err.Error())
	}

	if _, err := a.FindOne(context.Background(), "users", nil); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected adapter to stay uninitialized, got %v", err)
	}
}

func TestInitialize_NoDatabase(t *testing.T) {
	fc := newFakeClient()
	var dials int
	a := newFakeAdapter(fc, &dials)
	cfg := validStoreConfig()
	cfg.MongoDB.URI = "mongodb://localhost:27017"

	_, err := a.Initialize(context.Background(), cfg)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if !strings.Contains(err.Error(), "Connected, but failed to get a DB.") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !fc.disconnected {
		t.Fatal("expected client to be disconnected")
	}
}

func TestInitialize_ConnectorReturnsNoClient(t *testing.T) {
	a := NewAdapter(nil)
	a.connect = func(ctx context.Context, uri string) (client, error) {
		return nil, nil
	}

	got, err := a.Initialize(context.Background(), validStoreConfig())
	if got != nil {
		t.Fatal("expected no adapter on failure")
	}
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if !strings.Contains(err.Error(), "Connected, but failed to get a DB.") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if err := a.HealthCheck(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected adapter to stay uninitialized, got %v", err)
	}
}

func TestInitialize_ConfiguredDatabaseWins(t *testing.T) {
	fc := newFakeClient()
	var dials int
	a := newFakeAdapter(fc, &dials)
	cfg := validStoreConfig()
	cfg.MongoDB.Database = "game"

	if _, err := a.Initialize(context.Background(), cfg); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if a.DatabaseName() != "game" {
		t.Fatalf("expected configured database, got %q", a.DatabaseName())
	}
	if len(fc.databases) != 1 || fc.databases[0] != "game" {
		t.Fatalf("expected client to open database game, got %v", fc.databases)
	}
}

func TestInitialize_Twice(t *testing.T) {
	fc := newFakeClient()
	var dials int
	a := newFakeAdapter(fc, &dials)

	if _, err := a.Initialize(context.Background(), validStoreConfig()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if _, err := a.Initialize(context.Background(), validStoreConfig()); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	if dials != 1 {
		t.Fatalf("expected a single dial, got %d", dials)
	}
}

func TestOperations_NotInitialized(t *testing.T) {
	a := NewAdapter(nil)
	ctx := context.Background()

	if _, err := a.Update(ctx, "users", Record{"name": "Alice"}, Record{"age": 30}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Update: expected ErrNotInitialized, got %v", err)
	}
	if _, err := a.FindOne(ctx, "users", Record{"name": "Alice"}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("FindOne: expected ErrNotInitialized, got %v", err)
	}
	if _, err := a.InsertOne(ctx, "users", Record{"name": "Alice"}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("InsertOne: expected ErrNotInitialized, got %v", err)
	}
	if err := a.HealthCheck(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("HealthCheck: expected ErrNotInitialized, got %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close: expected nil, got %v", err)
	}
}

func TestClose(t *testing.T) {
	a, fc := newReadyAdapter(t)
	ctx := context.Background()

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fc.disconnected {
		t.Fatal("expected client to be disconnected")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if _, err := a.InsertOne(ctx, "users", Record{"name": "Alice"}); !errors.Is(err, ErrClosed) {
		t.Errorf("InsertOne: expected ErrClosed, got %v", err)
	}
	if _, err := a.FindOne(ctx, "users", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("FindOne: expected ErrClosed, got %v", err)
	}
	if _, err := a.Update(ctx, "users", nil, Record{"age": 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Update: expected ErrClosed, got %v", err)
	}
	if err := a.HealthCheck(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("HealthCheck: expected ErrClosed, got %v", err)
	}
	if _, err := a.Initialize(ctx, validStoreConfig()); !errors.Is(err, ErrClosed) {
		t.Errorf("Initialize: expected ErrClosed, got %v", err)
	}
}

func TestInsertOne_Alice(t *testing.T) {
	a, fc := newReadyAdapter(t)

	rec, err := a.InsertOne(context.Background(), "users", Record{"name": "Alice"})
	if err != nil {
		t.Fatalf("InsertOne() error = %v", err)
	}
	if rec["name"] != "Alice" {
		t.Fatalf("expected name Alice, got %v", rec["name"])
	}
	if _, ok := rec["_id"].(primitive.ObjectID); !ok {
		t.Fatalf("expected generated ObjectID, got %T", rec["_id"])
	}
	if len(rec) != 2 {
		t.Fatalf("expected name and _id only, got %v", rec)
	}
	if got := len(fc.db.collection("users").docs); got != 1 {
		t.Fatalf("expected one stored record, got %d", got)
	}
}

func TestInsertOne_KeepsProvidedID(t *testing.T) {
	a, _ := newReadyAdapter(t)

	rec, err := a.InsertOne(context.Background(), "rooms", bson.D{{Key: "_id", Value: "hall"}, {Key: "exits", Value: 3}})
	if err != nil {
		t.Fatalf("InsertOne() error = %v", err)
	}
	if rec["_id"] != "hall" {
		t.Fatalf("expected provided _id, got %v", rec["_id"])
	}
}

func TestInsertOne_ReturnsCallerValues(t *testing.T) {
	a, _ := newReadyAdapter(t)
	ctx := context.Background()

	input := Record{"name": "Alice", "age": 30, "stats": Record{"hp": 10}}
	rec, err := a.InsertOne(ctx, "users", input)
	if err != nil {
		t.Fatalf("InsertOne() error = %v", err)
	}
	for k, want := range input {
		if got := rec[k]; !reflect.DeepEqual(got, want) {
			t.Errorf("field %q: expected %#v (%T), got %#v (%T)", k, want, want, got, got)
		}
	}
	if len(rec) != len(input)+1 {
		t.Errorf("expected input fields plus _id, got %v", rec)
	}
}

func TestInsertOne_OrderedDocumentMatchesFindOne(t *testing.T) {
	a, _ := newReadyAdapter(t)
	ctx := context.Background()

	item := bson.D{
		{Key: "name", Value: "Bob"},
		{Key: "age", Value: int32(41)},
		{Key: "stats", Value: bson.D{{Key: "hp", Value: int32(7)}}},
	}
	inserted, err := a.InsertOne(ctx, "users", item)
	if err != nil {
		t.Fatalf("InsertOne() error = %v", err)
	}
	if _, ok := inserted["stats"].(Record); !ok {
		t.Fatalf("expected nested record as Record, got %T", inserted["stats"])
	}

	found, err := a.FindOne(ctx, "users", Record{"name": "Bob"})
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if !reflect.DeepEqual(inserted, found) {
		t.Fatalf("insert and lookup disagree:\n inserted %#v\n found    %#v", inserted, found)
	}
}

type player struct {
	Name string `bson:"name"`
	Room string `bson:"room,omitempty"`
}

func TestInsertOne_AcceptedShapes(t *testing.T) {
	raw, err := bson.Marshal(bson.M{"name": "Raw"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	m := bson.M{"name": "Pointer"}

	tests := []struct {
		name string
		item any
		want string
	}{
		{"bson.M", bson.M{"name": "Map"}, "Map"},
		{"map[string]any", map[string]any{"name": "Plain"}, "Plain"},
		{"struct", player{Name: "Struct"}, "Struct"},
		{"pointer to struct", &player{Name: "StructPtr", Room: "hall"}, "StructPtr"},
		{"bson.D", bson.D{{Key: "name", Value: "Ordered"}}, "Ordered"},
		{"bson.Raw", raw, "Raw"},
		{"pointer to map", &m, "Pointer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newReadyAdapter(t)
			rec, err := a.InsertOne(context.Background(), "users", tt.item)
			if err != nil {
				t.Fatalf("InsertOne() error = %v", err)
			}
			if rec["name"] != tt.want {
				t.Fatalf("expected name %q, got %v", tt.want, rec["name"])
			}
			if rec["_id"] == nil {
				t.Fatal("expected _id in result")
			}
		})
	}
}

func TestInsertOne_RejectsNonRecords(t *testing.T) {
	var nilMap *bson.M
	tests := []struct {
		name string
		item any
	}{
		{"string", "Alice"},
		{"number", 42},
		{"nil", nil},
		{"slice", []string{"Alice"}},
		{"nil pointer", nilMap},
		{"int keyed map", map[int]string{1: "Alice"}},
		{"invalid raw", bson.Raw{0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, fc := newReadyAdapter(t)
			_, err := a.InsertOne(context.Background(), "users", tt.item)
			if !errors.Is(err, ErrInvalidItem) {
				t.Fatalf("expected ErrInvalidItem, got %v", err)
			}
			if calls := fc.db.collection("users").callCount(); calls != 0 {
				t.Fatalf("expected no driver call, got %d", calls)
			}
		})
	}
}

func TestInsertOne_DriverError(t *testing.T) {
	a, fc := newReadyAdapter(t)
	cause := errors.New("E11000 duplicate key error")
	fc.db.collection("users").insertErr = cause

	_, err := a.InsertOne(context.Background(), "users", Record{"name": "Alice"})
	if !errors.Is(err, ErrInsert) {
		t.Fatalf("expected ErrInsert, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected driver cause to be wrapped, got %v", err)
	}
}

func TestInsertOne_MissingInsertedID(t *testing.T) {
	a, fc := newReadyAdapter(t)
	fc.db.collection("users").insertResult = &mongo.InsertOneResult{}

	if _, err := a.InsertOne(context.Background(), "users", Record{"name": "Alice"}); !errors.Is(err, ErrMultiInsert) {
		t.Fatalf("expected ErrMultiInsert, got %v", err)
	}
}

func TestUpdate_Alice(t *testing.T) {
	a, fc := newReadyAdapter(t)
	ctx := context.Background()

	if _, err := a.InsertOne(ctx, "users", Record{"name": "Alice"}); err != nil {
		t.Fatalf("InsertOne() error = %v", err)
	}

	n, err := a.Update(ctx, "users", Record{"name": "Alice"}, Record{"age": 30})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 updated record, got %d", n)
	}

	coll := fc.db.collection("users")
	if coll.docs[0]["age"] != 30 {
		t.Fatalf("expected age to be set, got %v", coll.docs[0])
	}
	if coll.docs[0]["name"] != "Alice" {
		t.Fatalf("expected other fields to be preserved, got %v", coll.docs[0])
	}

	update, ok := coll.lastUpdate.(bson.M)
	if !ok {
		t.Fatalf("expected update document, got %T", coll.lastUpdate)
	}
	if _, ok := update["$set"]; !ok || len(update) != 1 {
		t.Fatalf("expected a single $set operator, got %v", update)
	}

	opts := fc.db.opts["users"]
	if len(opts) != 1 || opts[0].WriteConcern == nil {
		t.Fatalf("expected write concern on update collection, got %v", opts)
	}
	if w := opts[0].WriteConcern.GetW(); w != 1 {
		t.Fatalf("expected w:1, got %v", w)
	}
}

func TestUpdate_AllMatchingRecords(t *testing.T) {
	a, _ := newReadyAdapter(t)
	ctx := context.Background()

	for _, name := range []string{"Alice", "Bob", "Carol"} {
		room := "hall"
		if name == "Carol" {
			room = "cellar"
		}
		if _, err := a.InsertOne(ctx, "users", Record{"name": name, "room": room}); err != nil {
			t.Fatalf("InsertOne(%s) error = %v", name, err)
		}
	}

	n, err := a.Update(ctx, "users", Record{"room": "hall"}, Record{"lit": true})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 updated records, got %d", n)
	}

	n, err = a.Update(ctx, "users", Record{"room": "attic"}, Record{"lit": true})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no updated records, got %d", n)
	}
}

func TestUpdate_CountsRecordsAlreadyHoldingPatch(t *testing.T) {
	a, _ := newReadyAdapter(t)
	ctx := context.Background()

	if _, err := a.InsertOne(ctx, "users", Record{"name": "Alice"}); err != nil {
		t.Fatalf("InsertOne() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		n, err := a.Update(ctx, "users", Record{"name": "Alice"}, Record{"age": 30})
		if err != nil {
			t.Fatalf("Update() #%d error = %v", i+1, err)
		}
		if n != 1 {
			t.Fatalf("Update() #%d: expected 1 updated record, got %d", i+1, n)
		}
	}
}

func TestUpdate_DriverError(t *testing.T) {
	a, fc := newReadyAdapter(t)
	cause := errors.New("not primary")
	fc.db.collection("users").updateErr = cause

	n, err := a.Update(context.Background(), "users", Record{"name": "Alice"}, Record{"age": 30})
	if !errors.Is(err, ErrUpdate) || !errors.Is(err, cause) {
		t.Fatalf("expected ErrUpdate wrapping cause, got %v", err)
	}
	if n != 0 {
		t.Fatalf("expected zero count on error, got %d", n)
	}
}

func TestFindOne_NoMatch(t *testing.T) {
	a, _ := newReadyAdapter(t)

	rec, err := a.FindOne(context.Background(), "users", Record{"name": "Bob"})
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %v", rec)
	}
}

func TestFindOne_Match(t *testing.T) {
	a, _ := newReadyAdapter(t)
	ctx := context.Background()

	inserted, err := a.InsertOne(ctx, "users", Record{"name": "Alice", "room": "hall"})
	if err != nil {
		t.Fatalf("InsertOne() error = %v", err)
	}

	rec, err := a.FindOne(ctx, "users", Record{"name": "Alice"})
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if rec["room"] != "hall" {
		t.Fatalf("expected room hall, got %v", rec["room"])
	}
	if rec["_id"] != inserted["_id"] {
		t.Fatalf("expected _id %v, got %v", inserted["_id"], rec["_id"])
	}
}

func TestFindOne_DriverError(t *testing.T) {
	a, fc := newReadyAdapter(t)
	cause := errors.New("connection reset")
	fc.db.collection("users").findErr = cause

	rec, err := a.FindOne(context.Background(), "users", Record{"name": "Alice"})
	if !errors.Is(err, ErrLookup) || !errors.Is(err, cause) {
		t.Fatalf("expected ErrLookup wrapping cause, got %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record on error, got %v", rec)
	}
}

func TestHealthCheck(t *testing.T) {
	a, fc := newReadyAdapter(t)

	if err := a.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	fc.pingErr = errors.New("no reachable servers")
	if err := a.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected HealthCheck to fail when ping fails")
	}
}

func TestWithTimeout_UsesDefaultWhenNoDeadline(t *testing.T) {
	ctx, cancel := withTimeout(context.Background(), 2*time.Second)
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected deadline from operation timeout")
	}
	if remaining := time.Until(deadline); remaining <= 0 || remaining > 2*time.Second {
		t.Fatalf("unexpected remaining timeout: %v", remaining)
	}
}

func TestWithTimeout_PreservesCallerDeadline(t *testing.T) {
	parentCtx, parentCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer parentCancel()

	ctx, cancel := withTimeout(parentCtx, 2*time.Second)
	defer cancel()

	parentDeadline, _ := parentCtx.Deadline()
	gotDeadline, _ := ctx.Deadline()
	if !gotDeadline.Equal(parentDeadline) {
		t.Fatalf("expected caller deadline to be preserved, got %v want %v", gotDeadline, parentDeadline)
	}
}

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		uri, configured, want string
	}{
		{"mongodb://localhost:27017/advtxt", "", "advtxt"},
		{"mongodb://localhost:27017/advtxt", "game", "game"},
		{"mongodb://localhost:27017", "", ""},
		{"mongodb://localhost:27017/?replicaSet=rs0", "", ""},
		{"not a uri", "", ""},
	}
	for _, tt := range tests {
		if got := databaseName(tt.uri, tt.configured); got != tt.want {
			t.Errorf("databaseName(%q, %q) = %q, want %q", tt.uri, tt.configured, got, tt.want)
		}
	}
}
