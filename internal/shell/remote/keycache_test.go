package remote

import (
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingFs counts Open calls so tests can see cache hits.
type countingFs struct {
	afero.Fs
	mu    sync.Mutex
	opens int
}

func (c *countingFs) Open(name string) (afero.File, error) {
	c.mu.Lock()
	c.opens++
	c.mu.Unlock()
	return c.Fs.Open(name)
}

func (c *countingFs) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

func TestKeyCache_ReadsOnce(t *testing.T) {
	fs := &countingFs{Fs: afero.NewMemMapFs()}
	require.NoError(t, afero.WriteFile(fs.Fs, "/keys/id", []byte("key-1"), 0o600))
	cache := NewKeyCache(fs)

	first, err := cache.Get("/keys/id")
	require.NoError(t, err)

	// The file changing on disk is not observed: entries are never invalidated.
	require.NoError(t, afero.WriteFile(fs.Fs, "/keys/id", []byte("key-2"), 0o600))

	second, err := cache.Get("/keys/id")
	require.NoError(t, err)

	assert.Equal(t, "key-1", string(first))
	assert.Equal(t, "key-1", string(second))
	assert.Equal(t, 1, fs.openCount())
}

func TestKeyCache_MissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	cache := NewKeyCache(fs)

	_, err := cache.Get("/nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeyUnreadable)

	// Failed reads are not cached.
	require.NoError(t, afero.WriteFile(fs, "/nope", []byte("late"), 0o600))
	key, err := cache.Get("/nope")
	require.NoError(t, err)
	assert.Equal(t, "late", string(key))
}

func TestKeyCache_ConcurrentPopulation(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/keys/a", []byte("a"), 0o600))
	require.NoError(t, afero.WriteFile(fs, "/keys/b", []byte("b"), 0o600))
	cache := NewKeyCache(fs)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path, want := "/keys/a", "a"
			if i%2 == 1 {
				path, want = "/keys/b", "b"
			}
			key, err := cache.Get(path)
			assert.NoError(t, err)
			assert.Equal(t, want, string(key))
		}(i)
	}
	wg.Wait()

	// Both entries are cached.
	require.NoError(t, afero.WriteFile(fs, "/keys/a", []byte("changed"), 0o600))
	require.NoError(t, afero.WriteFile(fs, "/keys/b", []byte("changed"), 0o600))
	a, err := cache.Get("/keys/a")
	require.NoError(t, err)
	b, err := cache.Get("/keys/b")
	require.NoError(t, err)
	assert.Equal(t, "a", string(a))
	assert.Equal(t, "b", string(b))
}

func TestDefaultKeyCache_IsShared(t *testing.T) {
	assert.Same(t, DefaultKeyCache(), DefaultKeyCache())
}
