// Package store defines the storage contracts the advtxt tooling depends on
// and selects the configured implementation.
package store

import (
	"context"

	"github.com/advtxt/advtxt-db-mongo/pkg/store/mongodb"
)

// Record is an opaque document owned by the caller.
type Record = mongodb.Record

// Adapter is the minimal lifecycle and health contract for storage adapters.
// Close must be safe to call more than once.
type Adapter interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

// RecordStore is an Adapter offering the advtxt record operations.
type RecordStore interface {
	Adapter
	Update(ctx context.Context, collection string, selector, patch Record) (int64, error)
	FindOne(ctx context.Context, collection string, selector Record) (Record, error)
	InsertOne(ctx context.Context, collection string, item any) (Record, error)
}

var _ RecordStore = (*mongodb.Adapter)(nil)
