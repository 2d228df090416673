package crdt

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/skiffdb/skiff/value"
)

// container holds one per-key ordered cell log. Logs are kept sorted by
// tag ascending, so the last cell of a log is the authoritative winner.
// liveKeys counts keys whose winner is not a tombstone; every mutation path
// maintains it so Len stays O(1).
type container struct {
	logs     map[string][]Cell
	liveKeys int
}

func newContainer() *container {
	return &container{logs: make(map[string][]Cell)}
}

// winner returns the authoritative cell for a key.
func (c *container) winner(key string) (Cell, bool) {
	log := c.logs[key]
	if len(log) == 0 {
		return Cell{}, false
	}
	return log[len(log)-1], true
}

// live reports whether the key currently resolves to a value (a winning
// tombstone counts as absent).
func (c *container) live(key string) bool {
	w, ok := c.winner(key)
	return ok && !w.Deleted
}

// Observer receives the keys whose winner changed in one committed
// transaction or merge. The slice is sorted and owned by the observer.
type Observer func(changed []string)

// Option configures a Document at construction.
type Option func(*Document)

// WithActor fixes the document's actor identifier. Without it a fresh
// UUIDv7 is generated. Tests use fixed actors for deterministic tags.
func WithActor(actor string) Option {
	return func(d *Document) { d.actor = actor }
}

// WithEpoch stamps the document with its workspace epoch.
func WithEpoch(epoch int64) Option {
	return func(d *Document) { d.epoch = epoch }
}

// Document is one replicated document: named containers of per-key cell
// logs plus the local actor identity and Lamport clock.
//
// One document is exclusively owned by one in-process runtime at a time.
// Distinct containers share the document's clock but occupy disjoint keys,
// so transactions on different containers never conflict.
// docSeq allocates a process-wide creation order for documents; Merge
// locks the two documents in this order to stay deadlock-free when two
// live documents merge each other concurrently.
var docSeq atomic.Int64

type Document struct {
	seq   int64
	mu    sync.Mutex
	actor string
	clock *Clock
	epoch int64

	containers map[string]*container

	obsMu     sync.Mutex
	observers map[string]map[int]Observer
	nextObs   int
}

// NewDocument creates an empty document with a fresh actor identity.
func NewDocument(opts ...Option) *Document {
	d := &Document{
		seq:        docSeq.Add(1),
		clock:      NewClock(),
		containers: make(map[string]*container),
		observers:  make(map[string]map[int]Observer),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.actor == "" {
		d.actor = uuid.Must(uuid.NewV7()).String()
	}
	return d
}

// Actor returns the local actor identifier.
func (d *Document) Actor() string { return d.actor }

// Epoch returns the workspace epoch this document belongs to.
func (d *Document) Epoch() int64 { return d.epoch }

// Bind ensures a container exists for name and is idempotent: binding the
// same name twice addresses the same container.
func (d *Document) Bind(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindLocked(name)
}

func (d *Document) bindLocked(name string) *container {
	c, ok := d.containers[name]
	if !ok {
		c = newContainer()
		d.containers[name] = c
	}
	return c
}

// ContainerNames returns the bound container names, sorted.
func (d *Document) ContainerNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.containers))
	for name := range d.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the live value for a key, or false when the key is absent
// or deleted.
func (d *Document) Get(containerName, key string) (value.Value, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.containers[containerName]
	if !ok {
		return nil, false
	}
	w, ok := c.winner(key)
	if !ok || w.Deleted {
		return nil, false
	}
	return w.Value, true
}

// Has reports whether a key is live. O(1) on the winner, unvalidated.
func (d *Document) Has(containerName, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.containers[containerName]
	return ok && c.live(key)
}

// Len returns the number of live keys in a container. O(1).
func (d *Document) Len(containerName string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.containers[containerName]
	if !ok {
		return 0
	}
	return c.liveKeys
}

// Keys returns the live keys of a container, sorted for deterministic
// enumeration.
func (d *Document) Keys(containerName string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.containers[containerName]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(c.logs))
	for key := range c.logs {
		if c.live(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// CellCount returns the total number of stored cells in a container,
// dead entries included. Compaction shrinks this; reads never see it.
func (d *Document) CellCount(containerName string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.containers[containerName]
	if !ok {
		return 0
	}
	n := 0
	for _, log := range c.logs {
		n += len(log)
	}
	return n
}

// Observe subscribes to winner changes in a container. The returned cancel
// func unregisters without affecting in-flight transactions.
func (d *Document) Observe(containerName string, fn Observer) (cancel func()) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()

	if d.observers[containerName] == nil {
		d.observers[containerName] = make(map[int]Observer)
	}
	id := d.nextObs
	d.nextObs++
	d.observers[containerName][id] = fn

	return func() {
		d.obsMu.Lock()
		defer d.obsMu.Unlock()
		delete(d.observers[containerName], id)
	}
}

// notify delivers one batched callback per container. Runs after commit,
// outside the document lock; changed key sets are sorted per observer
// contract.
func (d *Document) notify(changed map[string]map[string]struct{}) {
	for containerName, keySet := range changed {
		if len(keySet) == 0 {
			continue
		}
		d.obsMu.Lock()
		obs := make([]Observer, 0, len(d.observers[containerName]))
		for _, fn := range d.observers[containerName] {
			obs = append(obs, fn)
		}
		d.obsMu.Unlock()
		if len(obs) == 0 {
			continue
		}

		keys := make([]string, 0, len(keySet))
		for k := range keySet {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, fn := range obs {
			fn(slices.Clone(keys))
		}
	}
}

// Compact collapses every per-key log to its winning cell, in place.
// Observable reads are identical before and after; only storage behind
// superseded entries is reclaimed. Bindings and observers are untouched.
// Winning tombstones survive: a deletion is observed state and must keep
// outranking stale remote writes after compaction.
func (d *Document) Compact() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.containers {
		for key := range c.logs {
			if w, ok := c.winner(key); ok {
				c.logs[key] = []Cell{w}
			}
		}
	}
}

// Snapshot produces a fresh document containing only each container's
// current winning cells, discarding dead entries. Winning tombstones are
// kept: a deletion is observed state and must survive compaction so it can
// still win against stale remote writes. Observable reads are identical
// before and after; only CellCount shrinks. Observers are not carried over.
func (d *Document) Snapshot() *Document {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := &Document{
		seq:        docSeq.Add(1),
		actor:      d.actor,
		clock:      NewClockAt(d.clock.Current()),
		epoch:      d.epoch,
		containers: make(map[string]*container, len(d.containers)),
		observers:  make(map[string]map[int]Observer),
	}
	for name, c := range d.containers {
		sc := newContainer()
		for key := range c.logs {
			if w, ok := c.winner(key); ok {
				sc.logs[key] = []Cell{w}
				if !w.Deleted {
					sc.liveKeys++
				}
			}
		}
		snap.containers[name] = sc
	}
	return snap
}
