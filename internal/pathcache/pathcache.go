// Package pathcache assigns stable ids to file paths for one indexing run.
package pathcache

import (
	"path/filepath"
	"sync"

	"github.com/phobologic/macroindex/internal/model"
)

// Cache maps cleaned paths to FilePathIDs and back. It is safe for
// concurrent use and is meant to be shared by every translation unit of a run.
type Cache struct {
	mu    sync.RWMutex
	ids   map[string]model.FilePathID
	paths []string // index is id-1
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{ids: make(map[string]model.FilePathID)}
}

// FilePathID returns the id of path, assigning the next one on first use.
// The empty path has no id.
func (c *Cache) FilePathID(path string) model.FilePathID {
	if path == "" {
		return 0
	}
	path = filepath.ToSlash(filepath.Clean(path))

	c.mu.RLock()
	id, ok := c.ids[path]
	c.mu.RUnlock()
	if ok {
		return id
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.ids[path]; ok {
		return id
	}
	c.paths = append(c.paths, path)
	id = model.FilePathID(len(c.paths))
	c.ids[path] = id
	return id
}

// Lookup returns the id of path without assigning one.
func (c *Cache) Lookup(path string) (model.FilePathID, bool) {
	path = filepath.ToSlash(filepath.Clean(path))
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[path]
	return id, ok
}

// Path returns the path for id.
func (c *Cache) Path(id model.FilePathID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !id.IsValid() || int(id) > len(c.paths) {
		return "", false
	}
	return c.paths[id-1], true
}

// Len returns the number of known paths.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.paths)
}
