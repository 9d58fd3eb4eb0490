package store

import (
	"context"
	"fmt"

	"github.com/advtxt/advtxt-db-mongo/pkg/config"
	"github.com/advtxt/advtxt-db-mongo/pkg/observability/logger"
	"github.com/advtxt/advtxt-db-mongo/pkg/store/mongodb"
)

// NewStorageAdapter selects the adapter named by cfg.Adapter and initializes it.
// An unknown discriminator fails with mongodb.ErrConfiguration before any
// connection is attempted.
func NewStorageAdapter(ctx context.Context, cfg config.StoreConfig, log logger.Logger) (RecordStore, error) {
	switch cfg.Adapter {
	case config.AdapterMongoDB:
		a, err := mongodb.NewAdapter(log).Initialize(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: unsupported adapter %q (supported: %v)", mongodb.ErrConfiguration, cfg.Adapter, config.SupportedAdapters)
	}
}
