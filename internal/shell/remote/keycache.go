package remote

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

// KeyCache caches key file contents by path for the life of the process.
// Entries are populated lazily and never invalidated.
type KeyCache struct {
	fs    afero.Fs
	keys  map[string][]byte // path -> key contents
	mu    sync.RWMutex
	group singleflight.Group
}

var defaultKeyCache = NewKeyCache(afero.NewOsFs())

// DefaultKeyCache returns the process-wide cache backed by the OS filesystem.
func DefaultKeyCache() *KeyCache {
	return defaultKeyCache
}

// NewKeyCache creates an empty cache reading through fs.
func NewKeyCache(fs afero.Fs) *KeyCache {
	return &KeyCache{
		fs:   fs,
		keys: make(map[string][]byte),
	}
}

// Get returns the contents of the key file at path, reading it on first use.
func (c *KeyCache) Get(path string) ([]byte, error) {
	path = expandHome(path)

	// Fast path: already cached
	c.mu.RLock()
	key, ok := c.keys[path]
	c.mu.RUnlock()
	if ok {
		return key, nil
	}

	// Slow path: concurrent callers for the same path share one read
	v, err, _ := c.group.Do(path, func() (any, error) {
		data, err := afero.ReadFile(c.fs, path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrKeyUnreadable, path, err)
		}
		c.mu.Lock()
		c.keys[path] = data
		c.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
