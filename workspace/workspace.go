package workspace

import (
	"fmt"
	"sort"
	"sync"

	"github.com/skiffdb/skiff/crdt"
	"github.com/skiffdb/skiff/schema"
	"github.com/skiffdb/skiff/store"
)

// Workspace owns a set of table and KV definitions, the replicated
// document they bind to, and the current epoch pointer. One workspace maps
// to one document at a time; one document is exclusively owned by one
// in-process workspace.
type Workspace struct {
	id   string
	sink Sink

	mu     sync.Mutex
	doc    *crdt.Document
	epoch  int64
	tables map[string]*store.Table
	kvs    map[string]*store.KV

	epochObsMu sync.Mutex
	epochObs   map[int]func(epoch int64)
	nextObs    int
}

// Option configures a workspace at construction.
type Option func(*config)

type config struct {
	sink  Sink
	actor string
}

// WithSink attaches a durable sink. Without one the workspace is
// ephemeral: compaction and epoch advances still work, nothing persists.
func WithSink(s Sink) Option {
	return func(c *config) { c.sink = s }
}

// WithActor fixes the document actor identity. Tests use this for
// deterministic conflict resolution.
func WithActor(actor string) Option {
	return func(c *config) { c.actor = actor }
}

// New creates a workspace. When a sink is attached and holds a head
// pointer for the id, the current epoch's document is loaded from it;
// otherwise the workspace starts at epoch 0 with an empty document.
func New(id string, opts ...Option) (*Workspace, error) {
	if id == "" {
		return nil, fmt.Errorf("workspace: id must be non-empty")
	}

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	w := &Workspace{
		id:       id,
		sink:     cfg.sink,
		tables:   make(map[string]*store.Table),
		kvs:      make(map[string]*store.KV),
		epochObs: make(map[int]func(int64)),
	}

	docOpts := []crdt.Option{}
	if cfg.actor != "" {
		docOpts = append(docOpts, crdt.WithActor(cfg.actor))
	}

	if cfg.sink != nil {
		epoch, ok, err := readHead(cfg.sink, id)
		if err != nil {
			return nil, fmt.Errorf("workspace %s: %w", id, err)
		}
		if ok {
			data, found, err := cfg.sink.Get(epochKey(id, epoch))
			if err != nil {
				return nil, fmt.Errorf("workspace %s: %w", id, err)
			}
			if found {
				doc, err := crdt.Load(data, docOpts...)
				if err != nil {
					return nil, fmt.Errorf("workspace %s: %w", id, err)
				}
				w.doc = doc
				w.epoch = epoch
				return w, nil
			}
			// Head exists but the epoch blob is gone: start that epoch
			// empty rather than silently regressing to an older one.
			w.epoch = epoch
		}
	}

	w.doc = crdt.NewDocument(append(docOpts, crdt.WithEpoch(w.epoch))...)
	return w, nil
}

// ID returns the workspace identifier.
func (w *Workspace) ID() string { return w.id }

// Epoch returns the current epoch pointer.
func (w *Workspace) Epoch() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.epoch
}

// Document implements store.DocumentSource: accessors resolve the current
// document through the workspace, so they stay valid across epoch
// advances.
func (w *Workspace) Document() *crdt.Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc
}

// Table binds a table definition and returns its accessor. Rebinding the
// same name returns the existing accessor; rebinding a name to a different
// definition is a structural mistake and errors.
func (w *Workspace) Table(def *schema.TableDefinition) (*store.Table, error) {
	w.mu.Lock()
	existing, ok := w.tables[def.Name()]
	w.mu.Unlock()
	if ok {
		if existing.Definition() != def {
			return nil, fmt.Errorf("workspace %s: table %q already bound to a different definition", w.id, def.Name())
		}
		return existing, nil
	}

	t := store.BindTable(w, def)
	w.mu.Lock()
	w.tables[def.Name()] = t
	w.mu.Unlock()
	return t, nil
}

// KV binds a KV definition and returns its accessor, with the same
// idempotence rule as Table.
func (w *Workspace) KV(def *schema.KVDefinition) (*store.KV, error) {
	w.mu.Lock()
	existing, ok := w.kvs[def.Name()]
	w.mu.Unlock()
	if ok {
		if existing.Definition() != def {
			return nil, fmt.Errorf("workspace %s: kv %q already bound to a different definition", w.id, def.Name())
		}
		return existing, nil
	}

	k := store.BindKV(w, def)
	w.mu.Lock()
	w.kvs[def.Name()] = k
	w.mu.Unlock()
	return k, nil
}

// Export serializes the current document for the external transport or
// for durable persistence. The workspace never performs network I/O.
func (w *Workspace) Export() ([]byte, error) {
	return w.Document().Save()
}

// ApplyRemote merges a remote peer's document bytes into the local one and
// returns the changed ids per container. Documents from a different epoch
// are rejected: epochs are separate generations, reconciled through the
// head pointer, never through cell merge.
//
// When the remote head has advanced past the local epoch, the local
// pointer follows by monotonic max and the local document is replaced by
// the remote generation.
func (w *Workspace) ApplyRemote(data []byte) (map[string][]string, error) {
	// The local actor identity carries over: adoption replaces the
	// document, not the peer behind it.
	remote, err := crdt.Load(data, crdt.WithActor(w.Document().Actor()))
	if err != nil {
		return nil, fmt.Errorf("workspace %s: %w", w.id, err)
	}

	w.mu.Lock()
	switch {
	case remote.Epoch() == w.epoch:
		doc := w.doc
		w.mu.Unlock()
		return doc.Merge(remote), nil

	case remote.Epoch() > w.epoch:
		// Another peer advanced the epoch; adopt its generation.
		w.epoch = remote.Epoch()
		w.doc = remote
		w.mu.Unlock()

		if w.sink != nil {
			// Blob before head pointer: a restart that finds the pointer
			// without the blob starts the epoch empty, losing the
			// adopted state.
			if err := w.sink.Put(epochKey(w.id, remote.Epoch()), data); err != nil {
				return nil, fmt.Errorf("workspace %s: %w", w.id, err)
			}
			if _, err := writeHead(w.sink, w.id, remote.Epoch()); err != nil {
				return nil, fmt.Errorf("workspace %s: %w", w.id, err)
			}
		}
		w.notifyEpoch(remote.Epoch())
		return nil, nil

	default:
		w.mu.Unlock()
		return nil, fmt.Errorf("workspace %s: stale remote epoch %d (local %d)", w.id, remote.Epoch(), w.epoch)
	}
}

// Persist writes the current epoch's document blob and the head pointer
// to the sink.
func (w *Workspace) Persist() error {
	if w.sink == nil {
		return fmt.Errorf("workspace %s: no sink attached", w.id)
	}

	w.mu.Lock()
	doc := w.doc
	epoch := w.epoch
	w.mu.Unlock()

	data, err := doc.Save()
	if err != nil {
		return fmt.Errorf("workspace %s: %w", w.id, err)
	}
	if err := w.sink.Put(epochKey(w.id, epoch), data); err != nil {
		return fmt.Errorf("workspace %s: %w", w.id, err)
	}
	if _, err := writeHead(w.sink, w.id, epoch); err != nil {
		return fmt.Errorf("workspace %s: %w", w.id, err)
	}
	return nil
}

// ObserveEpoch subscribes to epoch pointer changes. Consumers that must
// not run migrations themselves observe the pointer instead.
func (w *Workspace) ObserveEpoch(fn func(epoch int64)) (cancel func()) {
	w.epochObsMu.Lock()
	defer w.epochObsMu.Unlock()
	id := w.nextObs
	w.nextObs++
	w.epochObs[id] = fn
	return func() {
		w.epochObsMu.Lock()
		defer w.epochObsMu.Unlock()
		delete(w.epochObs, id)
	}
}

func (w *Workspace) notifyEpoch(epoch int64) {
	w.epochObsMu.Lock()
	obs := make([]func(int64), 0, len(w.epochObs))
	for _, fn := range w.epochObs {
		obs = append(obs, fn)
	}
	w.epochObsMu.Unlock()
	for _, fn := range obs {
		fn(epoch)
	}
}

// tableNames returns registered table names, sorted for deterministic
// seeding order.
func (w *Workspace) tableNames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// kvNames returns registered KV names, sorted.
func (w *Workspace) kvNames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.kvs))
	for name := range w.kvs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
