package ratelimit

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// DedupConfig configures the in-flight request deduplicator.
type DedupConfig struct {
	// Window is measured from when an entry is created; callers with the
	// same key within it share that entry's result, whether the operation
	// is still running or has completed.
	Window time.Duration `yaml:"window"`
	// MaxSize bounds the entry map; the oldest entry is evicted first.
	MaxSize int `yaml:"max_size"`
	// HashMessages selects stable hashing of the message payload. When
	// false the full JSON encoding becomes the key instead.
	HashMessages bool `yaml:"hash_messages"`
	// Enabled controls whether deduplication runs at all.
	Enabled bool `yaml:"enabled"`
}

// DefaultDedupConfig returns the default deduplication parameters.
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		Window:       5 * time.Second,
		MaxSize:      100,
		HashMessages: true,
		Enabled:      true,
	}
}

type dedupEntry[V any] struct {
	done    chan struct{}
	val     V
	err     error
	expires time.Time
	created time.Time
}

// Deduplicator coalesces concurrent identical requests: the first caller
// for a key runs the operation, later callers for the same live key wait
// on the same result.
type Deduplicator[V any] struct {
	mu      sync.Mutex
	entries map[string]*dedupEntry[V]
	config  DedupConfig

	hits   atomic.Uint64
	misses atomic.Uint64

	// now is replaceable for tests.
	now func() time.Time
}

// NewDeduplicator creates a deduplicator with the given configuration.
func NewDeduplicator[V any](config DedupConfig) *Deduplicator[V] {
	if config.Window <= 0 {
		config.Window = 5 * time.Second
	}
	if config.MaxSize <= 0 {
		config.MaxSize = 100
	}
	return &Deduplicator[V]{
		entries: make(map[string]*dedupEntry[V]),
		config:  config,
		now:     time.Now,
	}
}

// Execute runs op for the key, or joins an in-flight execution of the
// same key. Both callers receive identical results.
func (d *Deduplicator[V]) Execute(key string, op func() (V, error)) (V, error) {
	if !d.config.Enabled {
		return op()
	}

	d.mu.Lock()
	now := d.now()
	d.cleanup(now)

	if entry, ok := d.entries[key]; ok && now.Before(entry.expires) {
		d.mu.Unlock()
		d.hits.Add(1)
		<-entry.done
		return entry.val, entry.err
	}

	entry := &dedupEntry[V]{
		done:    make(chan struct{}),
		expires: now.Add(d.config.Window),
		created: now,
	}
	d.entries[key] = entry
	d.evictOldest()
	d.mu.Unlock()
	d.misses.Add(1)

	entry.val, entry.err = op()
	close(entry.done)
	return entry.val, entry.err
}

// cleanup drops expired completed entries. Must be called with the lock
// held. In-flight entries are never evicted here; their waiters hold the
// channel open.
func (d *Deduplicator[V]) cleanup(now time.Time) {
	for key, entry := range d.entries {
		if !now.Before(entry.expires) {
			select {
			case <-entry.done:
				delete(d.entries, key)
			default:
			}
		}
	}
}

// evictOldest enforces the size bound. Must be called with the lock held.
func (d *Deduplicator[V]) evictOldest() {
	for len(d.entries) > d.config.MaxSize {
		var oldestKey string
		var oldest time.Time
		for key, entry := range d.entries {
			if oldestKey == "" || entry.created.Before(oldest) {
				oldestKey = key
				oldest = entry.created
			}
		}
		if oldestKey == "" {
			return
		}
		delete(d.entries, oldestKey)
	}
}

// Stats reports hit and miss counts since creation.
func (d *Deduplicator[V]) Stats() (hits, misses uint64) {
	return d.hits.Load(), d.misses.Load()
}

// Size returns the number of tracked entries.
func (d *Deduplicator[V]) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// RequestKey derives the deduplication key from the request identity:
// messages, model, and max tokens. With hashing enabled the key is a
// stable FNV-64 digest; otherwise the full JSON encoding is the key.
func RequestKey(messages any, model string, maxTokens int, hashMessages bool) string {
	payload, err := json.Marshal(map[string]any{
		"messages":   messages,
		"model":      model,
		"max_tokens": maxTokens,
	})
	if err != nil {
		// Unencodable payloads fall back to an identity that never
		// coalesces.
		return fmt.Sprintf("nohash:%p", &payload)
	}
	if !hashMessages {
		return string(payload)
	}
	h := fnv.New64a()
	_, _ = h.Write(payload)
	return fmt.Sprintf("%016x", h.Sum64())
}
