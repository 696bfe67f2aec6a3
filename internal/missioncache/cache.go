// Package missioncache keeps recently viewed missions (metadata plus replay
// history) on disk so switching back to a mission renders instantly while
// fresh data is fetched in the background.
//
// The cache is LRU-bounded. An in-memory LRU keeps the recency order and
// decides eviction; every entry is mirrored to one JSON file per mission
// under the cache directory, with an index file recording the order so the
// cache survives restarts.
package missioncache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sandboxed-sh/console/internal/api"
	"github.com/sandboxed-sh/console/internal/event"
	"github.com/sandboxed-sh/console/pkg/logger"
)

// DefaultCapacity bounds the number of cached missions.
const DefaultCapacity = 10

const indexFile = "index.json"

// Entry is one cached mission: its metadata and the replayable event history
// it was last seen with.
type Entry struct {
	Mission  api.Mission         `json:"mission"`
	Events   []event.StoredEvent `json:"events"`
	CachedAt time.Time           `json:"cached_at"`
}

// Cache is a persistent LRU of mission entries. It is not safe for
// concurrent use; the console actor is its only caller.
type Cache struct {
	dir string
	lru *lru.Cache[string, *Entry]
}

// New opens (or creates) a cache rooted at dir and reloads any entries
// persisted by a previous run, preserving their recency order. Corrupt
// records are discarded rather than failing the open.
func New(dir string, capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	c := &Cache{dir: dir}
	inner, err := lru.NewWithEvict(capacity, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	c.lru = inner

	c.reload()
	return c, nil
}

// reload rebuilds the in-memory LRU from the persisted index, oldest first,
// so recency carries over across restarts.
func (c *Cache) reload() {
	data, err := os.ReadFile(filepath.Join(c.dir, indexFile))
	if err != nil {
		return
	}
	var order []string
	if err := json.Unmarshal(data, &order); err != nil {
		logger.Warnf("mission cache: discarding corrupt index: %v", err)
		return
	}

	for _, id := range order {
		entry, err := c.readEntry(id)
		if err != nil {
			logger.Warnf("mission cache: discarding record %s: %v", id, err)
			c.removeFile(id)
			continue
		}
		c.lru.Add(id, entry)
	}
}

// Get returns the cached entry for a mission and promotes it to
// most-recently-used. The promotion is persisted.
func (c *Cache) Get(missionID string) (*Entry, bool) {
	entry, ok := c.lru.Get(missionID)
	if !ok {
		return nil, false
	}
	c.writeIndex()
	return entry, true
}

// Peek returns the cached entry without touching recency.
func (c *Cache) Peek(missionID string) (*Entry, bool) {
	return c.lru.Peek(missionID)
}

// Put stores (or refreshes) a mission entry as most-recently-used,
// persisting the record and the updated order. Storing into a full cache
// evicts the least-recently-used mission and deletes its file.
func (c *Cache) Put(missionID string, entry *Entry) error {
	if err := validID(missionID); err != nil {
		return err
	}
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now()
	}

	if err := c.writeEntry(missionID, entry); err != nil {
		return err
	}
	c.lru.Add(missionID, entry)
	return c.writeIndex()
}

// Invalidate removes a mission from the cache and deletes its record. Used
// when the server's history for a cached mission turns out to be empty or
// the mission was deleted.
func (c *Cache) Invalidate(missionID string) {
	// Remove triggers onEvict, which deletes the file.
	c.lru.Remove(missionID)
	c.writeIndex()
}

// Len returns the number of cached missions.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Keys returns cached mission ids, least recently used first.
func (c *Cache) Keys() []string {
	return c.lru.Keys()
}

func (c *Cache) onEvict(missionID string, _ *Entry) {
	c.removeFile(missionID)
}

func (c *Cache) readEntry(id string) (*Entry, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.entryPath(id))
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &entry, nil
}

func (c *Cache) writeEntry(id string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := os.WriteFile(c.entryPath(id), data, 0600); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func (c *Cache) writeIndex() error {
	// Keys() is oldest to newest; persist as-is and reload in the same order.
	data, err := json.Marshal(c.lru.Keys())
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.dir, indexFile), data, 0600); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

func (c *Cache) removeFile(id string) {
	if validID(id) != nil {
		return
	}
	if err := os.Remove(c.entryPath(id)); err != nil && !os.IsNotExist(err) {
		logger.Warnf("mission cache: failed to remove record %s: %v", id, err)
	}
}

func (c *Cache) entryPath(id string) string {
	return filepath.Join(c.dir, id+".json")
}

// validID rejects ids that would escape the cache directory. Mission ids are
// server-assigned UUIDs, so anything else is a bug upstream.
func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid mission id %q", id)
	}
	return nil
}
