// Package cache stores validated auditor responses keyed by a fingerprint
// of the exact LLM call inputs, so identical audits never pay for a second
// completion.
//
// Every backend has at-most-one-write semantics: the first Set for a key
// wins and later writes for the same key are dropped. Entries never expire.
// Lookup failures are reported as errors but callers treat them as misses;
// a broken cache must never fail an audit.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

var (
	// ErrUnknownBackend is returned by New for an unrecognized backend name.
	ErrUnknownBackend = errors.New("unknown cache backend")

	// ErrInvalidEntry is returned by Set when the value is not a JSON object.
	ErrInvalidEntry = errors.New("cache entry must be a JSON object")
)

// Cache is a content-addressed store of auditor responses.
// Implementations are safe for concurrent use.
type Cache interface {
	// Get returns the stored value and true on a hit. A corrupt entry is a miss.
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)

	// Set stores value under key unless the key already holds a value.
	Set(ctx context.Context, key string, value json.RawMessage) error

	// Close releases backend resources.
	Close() error
}

// Config selects and configures a cache backend.
type Config struct {
	Enabled       bool
	Backend       string
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// New builds the backend named by cfg. A disabled config yields Disabled,
// which behaves as if no cache exists.
func New(ctx context.Context, cfg Config) (Cache, error) {
	if !cfg.Enabled {
		return Disabled{}, nil
	}
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return NewFile(cfg.Dir)
	case BackendRedis:
		return NewRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Disabled is a Cache that never hits and never stores.
type Disabled struct{}

// Get always misses.
func (Disabled) Get(context.Context, string) (json.RawMessage, bool, error) { return nil, false, nil }

// Set discards the value.
func (Disabled) Set(context.Context, string, json.RawMessage) error { return nil }

// Close is a no-op.
func (Disabled) Close() error { return nil }

// validEntry reports whether data is a JSON object, the only shape the
// auditor layer ever stores.
func validEntry(data []byte) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(data, &obj) == nil && obj != nil
}
