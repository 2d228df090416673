package workspace

import (
	"fmt"

	"github.com/skiffdb/skiff/crdt"
	"github.com/skiffdb/skiff/store"
	"github.com/skiffdb/skiff/value"
)

// Transform optionally reshapes rows while seeding a new epoch. It is
// called once per valid row; returning (nil, nil) drops the row from the
// new epoch. Unlike migrate functions, a transform runs on exactly one
// peer (the one advancing the epoch), so it may be non-deterministic.
type Transform func(table string, row value.Object) (value.Object, error)

// CompactInPlace collapses the document's replication history into flat
// winning state, in place: get/getAll results are identical before and
// after, only the stored representation shrinks. With a sink attached, the
// compacted blob replaces the current epoch's stored blob.
func (w *Workspace) CompactInPlace() error {
	w.Document().Compact()
	if w.sink != nil {
		return w.Persist()
	}
	return nil
}

// AdvanceEpoch starts a new document generation for schema-breaking
// changes or corruption recovery. The new document is seeded from the
// current valid rows and KV values (already migrated to the latest shape),
// optionally through transform; invalid rows do not cross the boundary.
//
// The head pointer is advanced by monotonic max - a racing peer's advance
// is never regressed - and the prior epoch's document stays in the sink as
// read-only history. Expected to run on exactly one peer; others observe
// the pointer change (ObserveEpoch, or ApplyRemote of a newer-epoch
// document).
//
// Table and KV accessors obtained from this workspace remain valid.
// Document-level observers bind to a single generation and must
// re-subscribe.
func (w *Workspace) AdvanceEpoch(transform Transform) (int64, error) {
	w.mu.Lock()
	oldDoc := w.doc
	next := w.epoch + 1
	w.mu.Unlock()

	newDoc := crdt.NewDocument(crdt.WithActor(oldDoc.Actor()), crdt.WithEpoch(next))
	if err := w.seed(newDoc, transform); err != nil {
		return 0, fmt.Errorf("workspace %s: advance epoch: %w", w.id, err)
	}

	w.mu.Lock()
	if w.epoch >= next {
		// A concurrent advance won; keep the higher generation.
		next = w.epoch
		w.mu.Unlock()
		return next, nil
	}
	w.epoch = next
	w.doc = newDoc
	w.mu.Unlock()

	if w.sink != nil {
		data, err := newDoc.Save()
		if err != nil {
			return 0, fmt.Errorf("workspace %s: advance epoch: %w", w.id, err)
		}
		if err := w.sink.Put(epochKey(w.id, next), data); err != nil {
			return 0, fmt.Errorf("workspace %s: advance epoch: %w", w.id, err)
		}
		if _, err := writeHead(w.sink, w.id, next); err != nil {
			return 0, fmt.Errorf("workspace %s: advance epoch: %w", w.id, err)
		}
	}

	w.notifyEpoch(next)
	return next, nil
}

// seed writes the current valid state into a fresh document: migrated
// rows per table (plus the latest schema version markers) and stored
// valid KV values. Defaults are not materialized - an absent KV entry
// stays absent in the new epoch.
func (w *Workspace) seed(newDoc *crdt.Document, transform Transform) error {
	src := store.FixedDocument(newDoc)

	for _, name := range w.tableNames() {
		w.mu.Lock()
		t := w.tables[name]
		w.mu.Unlock()

		rows := t.GetAllValid()
		seeded := store.BindTable(src, t.Definition())

		out := make([]value.Object, 0, len(rows))
		for _, row := range rows {
			if transform != nil {
				transformed, err := transform(name, row)
				if err != nil {
					return fmt.Errorf("transform table %q: %w", name, err)
				}
				if transformed == nil {
					continue
				}
				row = transformed
			}
			out = append(out, row)
		}
		if err := seeded.SetMany(out); err != nil {
			return err
		}
		if _, err := seeded.MigrateAll(); err != nil {
			return err
		}
	}

	for _, name := range w.kvNames() {
		w.mu.Lock()
		k := w.kvs[name]
		w.mu.Unlock()

		if !k.Has() {
			continue
		}
		res := k.Get()
		if res.Status != store.StatusValid {
			continue
		}
		seeded := store.BindKV(src, k.Definition())
		if err := seeded.Set(res.Value); err != nil {
			return err
		}
	}
	return nil
}
