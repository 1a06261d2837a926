// Package engine provides the core database engine implementation for the
// sphinx storage system.
//
// The engine is the central coordinator between the three pieces that give
// the store its name: a Directory that routes a key's fingerprint down to
// the Segment responsible for it, an append-only SsdLog that holds the
// actual key/value bytes every Segment's payload slots point into, and an
// optional BufferPool that short-circuits a log read when the same address
// was recently resolved. The engine owns the lifecycle of all three and
// exposes the flat Put/Get/Remove surface pkg/ignite wraps.
package engine

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sfmqrb/sphinx/internal/bufferpool"
	"github.com/sfmqrb/sphinx/internal/directory"
	"github.com/sfmqrb/sphinx/internal/fingerprint"
	"github.com/sfmqrb/sphinx/internal/sslog"
	appErrors "github.com/sfmqrb/sphinx/pkg/errors"
	"github.com/sfmqrb/sphinx/pkg/options"
	"go.uber.org/zap"
)

var (
	// ErrEngineClosed is returned when attempting to perform operations on a closed engine.
	ErrEngineClosed = errors.New("operation failed: cannot access closed engine")
)

// initialSegmentCountLog is the Directory's starting depth: one segment,
// splitting as writes demand more.
const initialSegmentCountLog = 0

// Engine coordinates the Directory, the SSD log, and the read-side buffer
// pool behind a flat key/value interface. It is safe for concurrent use.
type Engine struct {
	options *options.Config
	log     *zap.SugaredLogger
	closed  atomic.Bool

	directory *directory.Directory
	sslog     *sslog.Log
	pool      *bufferpool.Pool
}

// Config holds all the parameters needed to initialize a new Engine instance.
type Config struct {
	Options *options.Config
	Logger  *zap.SugaredLogger
}

// New creates and initializes a new Engine instance with the provided
// configuration, opening the SSD log (in-memory or file-backed per
// config.Options.InMemory) and constructing the Directory and BufferPool on
// top of it.
func New(ctx context.Context, config *Config) (*Engine, error) {
	logCfg := sslog.Config{
		InMemory:       config.Options.InMemory,
		DataDir:        config.Options.DataDir,
		FileName:       "sslog",
		LogPages:       config.Options.LogPages,
		EntriesPerPage: 64,
	}
	l, err := sslog.New(logCfg)
	if err != nil {
		if config.Logger != nil {
			config.Logger.Errorw("failed to open ssd log", "error", err, "inMemory", config.Options.InMemory)
		}
		return nil, err
	}

	dir := directory.New(config.Options, initialSegmentCountLog)
	pool := bufferpool.New(config.Options)
	l.SetCache(pool)
	l.SetLogger(config.Logger)
	dir.SetLogger(config.Logger)

	if config.Logger != nil {
		config.Logger.Infow(
			"engine initialized",
			"inMemory", config.Options.InMemory,
			"logPages", config.Options.LogPages,
			"bufferPoolCap", config.Options.BufferPoolCap,
			"expand", config.Options.Expand,
		)
	}

	return &Engine{
		options:   config.Options,
		log:       config.Logger,
		directory: dir,
		sslog:     l,
		pool:      pool,
	}, nil
}

// Put stores value under key, overwriting any existing value. It first
// appends the record to the SSD log, then routes the resulting address
// through the Directory, splitting segments as needed.
func (e *Engine) Put(ctx context.Context, key, value []byte) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	addr, err := e.sslog.Write(sslog.Entry{Key: key, Value: value})
	if err != nil {
		if e.log != nil {
			e.log.Errorw("put failed: log write", "error", err, "keyLen", len(key))
		}
		return err
	}

	fp := fingerprint.Of(key)
	if err := e.directory.Write(fp, e.sslog, addr); err != nil {
		if e.log != nil {
			e.log.Errorw("put failed: directory write", "error", err, "keyLen", len(key))
		}
		return err
	}
	if e.log != nil {
		e.log.Debugw("put succeeded", "keyLen", len(key), "valueLen", len(value))
	}
	return nil
}

// Get resolves key's value. The Directory routes the lookup to a Segment,
// which resolves the key's payload address from its tenancy trie and reads
// it back through the SSD log; the log itself consults the BufferPool
// before touching a page.
func (e *Engine) Get(ctx context.Context, key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	fp := fingerprint.Of(key)
	entry, found, err := e.directory.Read(fp, e.sslog)
	if err != nil {
		if e.log != nil {
			e.log.Errorw("get failed: directory read", "error", err, "keyLen", len(key))
		}
		return nil, err
	}
	if !found {
		if e.log != nil {
			e.log.Debugw("get miss", "keyLen", len(key))
		}
		return nil, appErrors.NewNotFoundError(string(key))
	}
	return entry.Value, nil
}

// Remove deletes key, if present. It returns appErrors.ErrorCodeNotFound if
// the key was never stored (or was already removed).
func (e *Engine) Remove(ctx context.Context, key []byte) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	fp := fingerprint.Of(key)
	if err := e.directory.Remove(fp, e.sslog); err != nil {
		if e.log != nil {
			e.log.Errorw("remove failed", "error", err, "keyLen", len(key))
		}
		return err
	}
	return nil
}

// Close gracefully shuts down the engine and releases all associated resources.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}
	if err := e.sslog.Close(); err != nil {
		if e.log != nil {
			e.log.Errorw("close failed", "error", err)
		}
		return err
	}
	if e.log != nil {
		e.log.Infow("engine closed")
	}
	return nil
}
