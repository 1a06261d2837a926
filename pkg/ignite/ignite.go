// Package ignite provides a high-performance key/value data store built on
// a fingerprint-routed directory of segments rather than a single
// in-memory hash table: every key's fingerprint selects a segment, and
// every segment's home blocks and extension ring pack many entries' worth
// of metadata into a small, fixed bit budget, spilling to an append-only
// log for the actual key/value bytes. It is designed for applications
// requiring fast read and write operations, such as caching, session
// management, and real-time data processing, aiming to provide a simple,
// efficient, and reliable solution for in-memory and on-disk key/value
// storage in Go applications.
package ignite

import (
	"context"

	"github.com/sfmqrb/sphinx/internal/engine"
	appErrors "github.com/sfmqrb/sphinx/pkg/errors"
	"github.com/sfmqrb/sphinx/pkg/logger"
	"github.com/sfmqrb/sphinx/pkg/options"
)

// Instance represents an instance of the Ignite key/value data store. It
// encapsulates the core engine responsible for data handling and the
// configuration applied to this specific database instance.
//
// Instance is the primary entry point for interacting with the Ignite
// store, providing methods for setting, getting, and deleting key-value
// pairs.
type Instance struct {
	engine *engine.Engine  // The underlying database engine handling read/write operations.
	config *options.Config // Configuration applied to this DB instance.
}

// NewInstance creates and initializes a new Ignite DB instance.
func NewInstance(ctx context.Context, service string, opts ...options.OptionFunc) (*Instance, error) {
	// Initialize a logger for the given service.
	log := logger.New(service)

	// Initialize default configuration, then apply any caller overrides.
	cfg := options.NewDefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Create a new internal engine with the initialized logger.
	eng, err := engine.New(ctx, &engine.Config{Logger: log, Options: &cfg})
	if err != nil {
		return nil, err
	}

	return &Instance{engine: eng, config: &cfg}, nil
}

// Set stores a key-value pair in the database.
// If the key already exists, its value will be updated.
// The record is appended to the log before Set returns; with the default
// in-memory log, nothing is written to disk.
func (i *Instance) Set(ctx context.Context, key string, value []byte) error {
	return i.engine.Put(ctx, []byte(key), value)
}

// Get retrieves the value associated with the given key. It returns an
// error carrying appErrors.ErrorCodeNotFound if key was never stored, or
// was removed.
func (i *Instance) Get(ctx context.Context, key string) ([]byte, error) {
	return i.engine.Get(ctx, []byte(key))
}

// Exists reports whether key is currently present. It performs a full Get,
// reading the value back from the log.
func (i *Instance) Exists(ctx context.Context, key string) (bool, error) {
	_, err := i.engine.Get(ctx, []byte(key))
	if err == nil {
		return true, nil
	}
	if appErrors.GetErrorCode(err) == appErrors.ErrorCodeNotFound {
		return false, nil
	}
	return false, err
}

// Delete removes a key-value pair from the database. It returns an error
// carrying appErrors.ErrorCodeNotFound if key was not present.
func (i *Instance) Delete(ctx context.Context, key string) error {
	return i.engine.Remove(ctx, []byte(key))
}

// Close gracefully shuts down the Ignite DB instance, releasing all
// associated resources and closing the underlying SSD log.
func (i *Instance) Close(ctx context.Context) error {
	return i.engine.Close()
}
