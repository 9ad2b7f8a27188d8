package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionedCache_GetOrBuild_CachesWithinVersion(t *testing.T) {
	c := New[string, int](8, time.Minute, nil)

	calls := 0
	factory := func() (int, error) {
		calls++
		return 42, nil
	}

	v, err := c.GetOrBuild("k", 1, factory)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = c.GetOrBuild("k", 1, factory)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls, "factory should only run once for a stable version")
}

func TestVersionedCache_GetOrBuild_RebuildsOnVersionBump(t *testing.T) {
	c := New[string, int](8, time.Minute, nil)

	_, err := c.GetOrBuild("k", 1, func() (int, error) { return 1, nil })
	require.NoError(t, err)

	v, err := c.GetOrBuild("k", 2, func() (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, v, "a newer version must invalidate the cached value")
}

func TestVersionedCache_GetOrBuild_PropagatesFactoryError(t *testing.T) {
	c := New[string, int](8, time.Minute, nil)
	wantErr := errors.New("build failed")

	_, err := c.GetOrBuild("k", 1, func() (int, error) { return 0, wantErr })
	assert.ErrorIs(t, err, wantErr)

	// A failed build must not poison the cache for a later successful one.
	v, err := c.GetOrBuild("k", 1, func() (int, error) { return 9, nil })
	require.NoError(t, err)
	assert.Equal(t, 9, v)
}

func TestVersionedCache_DisposerRunsOnVersionReplace(t *testing.T) {
	var disposed []int
	dispose := func(v any) { disposed = append(disposed, v.(int)) }

	c := New[string, int](8, time.Minute, dispose)

	_, err := c.GetOrBuild("k", 1, func() (int, error) { return 1, nil })
	require.NoError(t, err)
	_, err = c.GetOrBuild("k", 2, func() (int, error) { return 2, nil })
	require.NoError(t, err)

	require.Len(t, disposed, 1)
	assert.Equal(t, 1, disposed[0])
}

func TestVersionedCache_OnHitAndOnMissFire(t *testing.T) {
	c := New[string, int](8, time.Minute, nil)

	var hits, misses int
	c.OnHit = func() { hits++ }
	c.OnMiss = func() { misses++ }

	_, err := c.GetOrBuild("k", 1, func() (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 0, hits)
	assert.Equal(t, 1, misses)

	_, err = c.GetOrBuild("k", 1, func() (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, hits, "same key and version must count as a hit, not rebuild")
	assert.Equal(t, 1, misses)

	_, err = c.GetOrBuild("k", 2, func() (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 2, misses, "a version bump must count as a miss even though the key is unchanged")
}

func TestVersionedCache_PeekDoesNotBuild(t *testing.T) {
	c := New[string, int](8, time.Minute, nil)

	_, ok := c.Peek("missing")
	assert.False(t, ok)

	_, err := c.GetOrBuild("k", 1, func() (int, error) { return 7, nil })
	require.NoError(t, err)

	v, ok := c.Peek("k")
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestVersionedCache_RemoveRunsDisposer(t *testing.T) {
	var disposed bool
	c := New[string, int](8, time.Minute, func(any) { disposed = true })

	_, err := c.GetOrBuild("k", 1, func() (int, error) { return 1, nil })
	require.NoError(t, err)

	c.Remove("k")
	assert.True(t, disposed)
	assert.Equal(t, 0, c.Len())
}
