package cache_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErikCohenDev/consensus-council/internal/cache"
)

const sampleEntry = `{"auditor_role":"security","overall_assessment":{"average_score":4}}`

func backends(t *testing.T) map[string]cache.Cache {
	t.Helper()
	fileCache, err := cache.NewFile(t.TempDir())
	require.NoError(t, err)
	return map[string]cache.Cache{
		"memory": cache.NewMemory(),
		"file":   fileCache,
	}
}

func TestCacheGetSet(t *testing.T) {
	ctx := context.Background()
	key := cache.Key("m", "t", "p", "d")

	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := c.Get(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Set(ctx, key, json.RawMessage(sampleEntry)))

			got, ok, err := c.Get(ctx, key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.JSONEq(t, sampleEntry, string(got))
		})
	}
}

// TestCacheFirstWriteWins verifies at-most-one-write semantics.
func TestCacheFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	key := cache.Key("m", "t", "p", "d")

	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, key, json.RawMessage(`{"auditor_role":"first"}`)))
			require.NoError(t, c.Set(ctx, key, json.RawMessage(`{"auditor_role":"second"}`)))

			got, ok, err := c.Get(ctx, key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.JSONEq(t, `{"auditor_role":"first"}`, string(got))
		})
	}
}

func TestCacheRejectsNonObject(t *testing.T) {
	ctx := context.Background()
	key := cache.Key("m", "t", "p", "d")

	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, c.Set(ctx, key, json.RawMessage(`[1,2]`)), cache.ErrInvalidEntry)
			assert.ErrorIs(t, c.Set(ctx, key, json.RawMessage(`{"trunc`)), cache.ErrInvalidEntry)
			_, ok, err := c.Get(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

// TestCacheConcurrentWriters races many writers on the same key and checks
// that exactly one complete value survives and every reader sees it whole.
func TestCacheConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	key := cache.Key("m", "t", "p", "d")

	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := range 32 {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					value := fmt.Sprintf(`{"auditor_role":"writer-%d"}`, i)
					assert.NoError(t, c.Set(ctx, key, json.RawMessage(value)))
					if got, ok, err := c.Get(ctx, key); assert.NoError(t, err) && ok {
						var obj map[string]string
						assert.NoError(t, json.Unmarshal(got, &obj))
					}
				}(i)
			}
			wg.Wait()

			first, ok, err := c.Get(ctx, key)
			require.NoError(t, err)
			require.True(t, ok)
			for range 5 {
				again, _, err := c.Get(ctx, key)
				require.NoError(t, err)
				assert.Equal(t, string(first), string(again))
			}
		})
	}
}

func TestFileCacheCorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.NewFile(dir)
	require.NoError(t, err)

	key := cache.Key("m", "t", "p", "d")
	require.NoError(t, os.WriteFile(filepath.Join(dir, key+".json"), []byte(`{"auditor_ro`), 0o600))

	_, ok, err := c.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileCacheRejectsPathKeys(t *testing.T) {
	c, err := cache.NewFile(t.TempDir())
	require.NoError(t, err)

	_, _, err = c.Get(context.Background(), "../etc/passwd")
	require.ErrorIs(t, err, cache.ErrInvalidKey)
	require.ErrorIs(t, c.Set(context.Background(), "", json.RawMessage(sampleEntry)), cache.ErrInvalidKey)
}

func TestFileCacheLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.NewFile(dir)
	require.NoError(t, err)

	key := cache.Key("m", "t", "p", "d")
	require.NoError(t, c.Set(context.Background(), key, json.RawMessage(sampleEntry)))
	require.NoError(t, c.Set(context.Background(), key, json.RawMessage(sampleEntry)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, key+".json", entries[0].Name())
}

func TestDisabledCache(t *testing.T) {
	ctx := context.Background()
	c, err := cache.New(ctx, cache.Config{Enabled: false, Backend: cache.BackendMemory})
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "k", json.RawMessage(sampleEntry)))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}

func TestNewBackendSelection(t *testing.T) {
	ctx := context.Background()

	c, err := cache.New(ctx, cache.Config{Enabled: true})
	require.NoError(t, err)
	assert.IsType(t, &cache.Memory{}, c)

	c, err = cache.New(ctx, cache.Config{Enabled: true, Backend: cache.BackendFile, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &cache.File{}, c)

	_, err = cache.New(ctx, cache.Config{Enabled: true, Backend: "memcached"})
	require.ErrorIs(t, err, cache.ErrUnknownBackend)

	_, err = cache.New(ctx, cache.Config{Enabled: true, Backend: cache.BackendRedis})
	require.Error(t, err)
}
