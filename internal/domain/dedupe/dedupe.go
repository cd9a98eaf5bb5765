// Package dedupe guards score submissions against duplicate processing.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen idempotency keys to give score submissions
// at-most-once processing, per game_id+user_id+client_request_id.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	// This is the ONLY method for deduplication - thread-safe and atomic.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord removes a key from the seen set, allowing the submission to
	// be retried. This should only be used when a submission was marked as
	// seen but failed to be enqueued (e.g., queue backpressure).
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// node represents a single entry in the linked list.
type node struct {
	key  string
	next *node
}

// reset clears the node state for reuse.
func (n *node) reset() {
	n.key = ""
	n.next = nil
}

// inMemoryDeduper implements Deduper using an in-memory linked list that evicts the oldest key.
// For bounded mode (maxSize > 0): uses linked list with oldest-first eviction and sync.Pool for nodes
// For unbounded mode (maxSize <= 0): uses simple map (no eviction, no size limit)
type inMemoryDeduper struct {
	mu       sync.RWMutex
	seen     map[string]*node // key -> node pointer for bounded mode, nil for unbounded
	head     *node            // head of linked list (most recently added)
	maxSize  int              // maximum number of keys to keep in memory (0 or negative = UNBOUNDED)
	size     atomic.Int64     // current number of entries (atomic)
	nodePool sync.Pool        // pool for reusing node objects
}

// NewInMemoryDeduper creates a new in-memory idempotency guard for score
// submission keys, configurable via options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000, // default max size
	}

	// Apply all options
	for _, opt := range opts {
		opt(d)
	}

	// Initialize the seen map
	d.seen = make(map[string]*node)

	// Initialize sync.Pool for node reuse in bounded mode
	if d.maxSize > 0 {
		d.nodePool = sync.Pool{
			New: func() interface{} {
				return &node{}
			},
		}
	}

	return d
}

// SeenAndRecord atomically checks if key was seen and records it if not.
// This is the ONLY method for deduplication.
// Returns true if key was already seen, false if it was newly recorded.
func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Check if already seen
	if _, exists := d.seen[key]; exists {
		return true // Already seen
	}

	if d.maxSize > 0 {
		// BOUNDED MODE: Use linked list with oldest-first eviction
		// Check if we need to evict before adding the new entry
		if len(d.seen) >= d.maxSize {
			d.evictLIFO()
		}

		// Create new node from pool
		n := d.nodePool.Get().(*node)
		n.key = key
		n.next = d.head

		// Update head and map
		d.head = n
		d.seen[key] = n
	} else {
		// UNBOUNDED MODE: Just use map
		d.seen[key] = nil
	}
	d.size.Add(1)
	return false // Newly recorded
}

// Unrecord removes a key from the seen set, allowing it to be retried.
func (d *inMemoryDeduper) Unrecord(ctx context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.maxSize > 0 {
		// BOUNDED MODE: Remove from linked list and map
		if n, exists := d.seen[key]; exists {
			// Remove from map
			delete(d.seen, key)

			// Remove from linked list
			if d.head == n {
				// Node is at head
				d.head = n.next
			} else {
				// Find and remove node from middle/tail
				current := d.head
				for current != nil && current.next != n {
					current = current.next
				}
				if current != nil {
					current.next = n.next
				}
			}

			// Return node to pool
			n.reset()
			d.nodePool.Put(n)

			d.size.Add(-1)
		}
	} else {
		// UNBOUNDED MODE: Just remove from map
		if _, exists := d.seen[key]; exists {
			delete(d.seen, key)
			d.size.Add(-1)
		}
	}
}

// evictLIFO removes the oldest recorded entry, dropping it from the tail
// of the list (new entries are pushed at the head).
// Must be called with d.mu.Lock() held.
func (d *inMemoryDeduper) evictLIFO() {
	if len(d.seen) == 0 || d.head == nil {
		return
	}

	// Find the second-to-last node
	var prev *node
	current := d.head

	// If there's only one node, remove it
	if current.next == nil {
		delete(d.seen, current.key)
		current.reset()
		d.nodePool.Put(current)
		d.head = nil
		d.size.Add(-1)
		return
	}

	// Find the second-to-last node
	for current.next != nil {
		prev = current
		current = current.next
	}

	// Remove the last node (tail)
	if prev != nil {
		prev.next = nil
		delete(d.seen, current.key)
		current.reset()
		d.nodePool.Put(current)
		d.size.Add(-1)
	}
}

// Size returns the current number of tracked idempotency keys.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
