package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/advtxt/advtxt-db-mongo/pkg/config"
	"github.com/advtxt/advtxt-db-mongo/pkg/observability/logger"
	"github.com/advtxt/advtxt-db-mongo/pkg/store/mongodb"
)

func TestNewStorageAdapter_UnsupportedAdapter(t *testing.T) {
	for _, adapter := range []config.AdapterType{"", "postgres", "dynamodb"} {
		t.Run(string(adapter), func(t *testing.T) {
			s, err := NewStorageAdapter(context.Background(), config.StoreConfig{
				Adapter: adapter,
				MongoDB: config.MongoDBConfig{URI: "mongodb://localhost:27017/advtxt"},
			}, logger.NewNop())
			if s != nil {
				t.Fatal("expected nil store")
			}
			if !errors.Is(err, mongodb.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			if !strings.Contains(err.Error(), "supported: [mongodb]") {
				t.Fatalf("expected supported adapters in message, got %q", err.Error())
			}
		})
	}
}

func TestNewStorageAdapter_MongoDBConfigurationError(t *testing.T) {
	s, err := NewStorageAdapter(context.Background(), config.StoreConfig{
		Adapter: config.AdapterMongoDB,
	}, logger.NewNop())
	if s != nil {
		t.Fatal("expected nil store on error, not a typed nil")
	}
	if !errors.Is(err, mongodb.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
