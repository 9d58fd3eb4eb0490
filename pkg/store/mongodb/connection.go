package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// client is the part of *mongo.Client the adapter depends on.
type client interface {
	Ping(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Database(name string) database
}

type database interface {
	Collection(name string, opts ...*options.CollectionOptions) collection
}

// collection is satisfied by *mongo.Collection.
type collection interface {
	UpdateMany(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// connector opens a client for uri and verifies it answers a primary ping.
type connector func(ctx context.Context, uri string) (client, error)

func dial(ctx context.Context, uri string) (client, error) {
	c, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := c.Ping(ctx, readpref.Primary()); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return &driverClient{client: c}, nil
}

type driverClient struct {
	client *mongo.Client
}

func (c *driverClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

func (c *driverClient) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func (c *driverClient) Database(name string) database {
	return &driverDatabase{db: c.client.Database(name)}
}

type driverDatabase struct {
	db *mongo.Database
}

func (d *driverDatabase) Collection(name string, opts ...*options.CollectionOptions) collection {
	return d.db.Collection(name, opts...)
}

// databaseName returns the configured database, falling back to the one named
// in the URI path. An empty result means there is no usable database.
func databaseName(uri, configured string) string {
	if configured != "" {
		return configured
	}
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return ""
	}
	return cs.Database
}
