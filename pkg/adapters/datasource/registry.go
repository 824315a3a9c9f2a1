package datasource

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fsayahmob/DataTalk-sub001/pkg/apperrors"
)

// Config holds connection settings for a tabular source.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Factory creates a SchemaDiscoverer for a source type.
type Factory func(ctx context.Context, cfg *Config, logger *zap.Logger) (SchemaDiscoverer, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(driver string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[driver] = factory
}

// Drivers returns the registered driver names.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// Open creates a SchemaDiscoverer for the given driver.
func Open(ctx context.Context, driver string, cfg *Config, logger *zap.Logger) (SchemaDiscoverer, error) {
	registryMu.RLock()
	factory, ok := registry[driver]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("driver %q: %w", driver, apperrors.ErrUnknownDriver)
	}
	return factory(ctx, cfg, logger)
}
