package store

import (
	"fmt"

	"github.com/skiffdb/skiff/crdt"
	"github.com/skiffdb/skiff/schema"
	"github.com/skiffdb/skiff/value"
)

// Container naming inside a document. Each table gets a dedicated per-row
// cell log; the KV namespace shares one log; meta holds per-table schema
// version markers.
const (
	tablePrefix   = "tbl/"
	kvContainer   = "kv"
	metaContainer = "meta"
)

// TableContainer returns the container name a table binds to.
func TableContainer(table string) string {
	return tablePrefix + table
}

// DocumentSource resolves the document an accessor currently operates on.
// A workspace implements it so accessors stay valid across an epoch
// advance, which swaps the underlying document.
type DocumentSource interface {
	Document() *crdt.Document
}

type fixedDocument struct {
	doc *crdt.Document
}

func (f fixedDocument) Document() *crdt.Document { return f.doc }

// FixedDocument wraps a bare document as a DocumentSource for use outside
// a workspace.
func FixedDocument(doc *crdt.Document) DocumentSource {
	return fixedDocument{doc: doc}
}

// Table is the accessor for one table definition bound to a document.
// Binding is idempotent: binding the same definition to the same document
// twice addresses the same container.
type Table struct {
	def       *schema.TableDefinition
	src       DocumentSource
	container string
}

// BindTable binds a table definition to its container in the source's
// current document.
func BindTable(src DocumentSource, def *schema.TableDefinition) *Table {
	container := TableContainer(def.Name())
	src.Document().Bind(container)
	return &Table{def: def, src: src, container: container}
}

// Definition returns the bound table definition.
func (t *Table) Definition() *schema.TableDefinition { return t.def }

// Set writes one row, replacing any previous value under its id as a
// whole. The row must carry the current schema shape; reads are the
// validation gate. Observers are notified once for the id.
func (t *Table) Set(row value.Object) error {
	id, ok := row.ID()
	if !ok {
		return fmt.Errorf("set %s: row has no \"id\" string field", t.def.Name())
	}
	return t.src.Document().Transact(func(tx *crdt.Tx) error {
		tx.Set(t.container, id, row.Clone())
		return nil
	})
}

// SetMany writes rows in one atomic transaction; observers are notified
// once per affected id. No row is written if any row lacks an id.
func (t *Table) SetMany(rows []value.Object) error {
	ids := make([]string, len(rows))
	for i, row := range rows {
		id, ok := row.ID()
		if !ok {
			return fmt.Errorf("setMany %s: row %d has no \"id\" string field", t.def.Name(), i)
		}
		ids[i] = id
	}
	return t.src.Document().Transact(func(tx *crdt.Tx) error {
		for i, row := range rows {
			tx.Set(t.container, ids[i], row.Clone())
		}
		return nil
	})
}

// Get reads the raw value under id, runs it through the union validator
// and then the migration function. The result is valid, invalid (raw
// preserved), or not_found; Get never returns an error.
func (t *Table) Get(id string) GetResult {
	raw, ok := t.src.Document().Get(t.container, id)
	if !ok {
		return notFoundResult(id)
	}
	return t.resolve(id, raw)
}

// resolve runs the validate-then-migrate read pipeline on a stored value.
func (t *Table) resolve(id string, raw value.Value) GetResult {
	parsed, issues := t.def.Union().Validate(raw)
	if len(issues) > 0 {
		return invalidResult(id, raw, issues)
	}
	obj, ok := parsed.(value.Object)
	if !ok {
		return invalidResult(id, raw, []schema.Issue{{Message: fmt.Sprintf("stored value is %T, not an object", parsed)}})
	}
	row, err := t.def.Migrate(obj)
	if err != nil {
		return invalidResult(id, raw, []schema.Issue{{Message: err.Error()}})
	}
	return validResult(id, row.Clone())
}

// GetAll enumerates every live row in id order, each classified by the
// read pipeline.
func (t *Table) GetAll() []GetResult {
	ids := t.src.Document().Keys(t.container)
	results := make([]GetResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, t.Get(id))
	}
	return results
}

// GetAllValid returns the migrated rows of every valid entry, in id order.
func (t *Table) GetAllValid() []value.Object {
	var rows []value.Object
	for _, res := range t.GetAll() {
		if res.Status == StatusValid {
			rows = append(rows, res.Row)
		}
	}
	return rows
}

// GetAllInvalid returns the invalid entries with their raw values and
// issues, in id order. Invalid rows stay stored and inspectable until
// repaired or deleted.
func (t *Table) GetAllInvalid() []GetResult {
	var results []GetResult
	for _, res := range t.GetAll() {
		if res.Status == StatusInvalid {
			results = append(results, res)
		}
	}
	return results
}

// Filter returns the valid rows satisfying pred, in id order. Invalid
// rows never reach pred.
func (t *Table) Filter(pred func(row value.Object) bool) []value.Object {
	var rows []value.Object
	for _, row := range t.GetAllValid() {
		if pred(row) {
			rows = append(rows, row)
		}
	}
	return rows
}

// Find returns the first valid row (in id order) satisfying pred.
func (t *Table) Find(pred func(row value.Object) bool) (value.Object, bool) {
	for _, row := range t.GetAllValid() {
		if pred(row) {
			return row, true
		}
	}
	return nil, false
}

// Update performs a local read-merge-write on one row: read and migrate
// the stored value, apply fn, write the whole result back atomically. The
// write is still a whole-row last-write-wins unit; Update only shrinks the
// window in which a concurrent peer's write can interleave.
//
// Absent or invalid rows are returned as-is without calling fn. An error
// from fn aborts the write.
func (t *Table) Update(id string, fn func(row value.Object) (value.Object, error)) (GetResult, error) {
	var result GetResult
	err := t.src.Document().Transact(func(tx *crdt.Tx) error {
		raw, ok := tx.Get(t.container, id)
		if !ok {
			result = notFoundResult(id)
			return nil
		}
		res := t.resolve(id, raw)
		if res.Status != StatusValid {
			result = res
			return nil
		}

		updated, err := fn(res.Row)
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", t.def.Name(), id, err)
		}
		newID, ok := updated.ID()
		if !ok || newID != id {
			return fmt.Errorf("update %s/%s: row id is immutable", t.def.Name(), id)
		}
		tx.Set(t.container, id, updated.Clone())
		result = validResult(id, updated)
		return nil
	})
	return result, err
}

// Delete removes the row under id. A missing id reports not_found_locally
// instead of failing; the tombstone still propagates so a peer holding the
// row converges on the deletion.
func (t *Table) Delete(id string) DeleteResult {
	var res DeleteResult
	_ = t.src.Document().Transact(func(tx *crdt.Tx) error {
		res = t.deleteInTx(tx, id)
		return nil
	})
	return res
}

// DeleteMany removes ids in one atomic transaction, reporting per-id
// outcomes rather than failing the whole batch.
func (t *Table) DeleteMany(ids []string) []DeleteResult {
	results := make([]DeleteResult, 0, len(ids))
	_ = t.src.Document().Transact(func(tx *crdt.Tx) error {
		for _, id := range ids {
			results = append(results, t.deleteInTx(tx, id))
		}
		return nil
	})
	return results
}

func (t *Table) deleteInTx(tx *crdt.Tx, id string) DeleteResult {
	if tx.Delete(t.container, id) {
		return DeleteResult{ID: id, Status: Deleted}
	}
	return DeleteResult{ID: id, Status: DeleteNotFoundLocally}
}

// Clear removes every live row in one transaction and returns how many
// were removed.
func (t *Table) Clear() int {
	n := 0
	_ = t.src.Document().Transact(func(tx *crdt.Tx) error {
		for _, id := range tx.LiveKeys(t.container) {
			if tx.Delete(t.container, id) {
				n++
			}
		}
		return nil
	})
	return n
}

// Observe subscribes to the changed-id set of each mutating transaction
// touching this table. Consumers re-Get affected ids; no diffs are
// delivered. The cancel func unregisters the observer.
func (t *Table) Observe(fn func(ids []string)) (cancel func()) {
	return t.src.Document().Observe(t.container, crdt.Observer(fn))
}

// Count returns the number of live rows. O(1) metadata query, unvalidated.
func (t *Table) Count() int {
	return t.src.Document().Len(t.container)
}

// Has reports whether a live row exists under id, without validating it.
func (t *Table) Has(id string) bool {
	return t.src.Document().Has(t.container, id)
}

// MigrateAll rewrites every valid row in the latest schema shape inside
// one atomic transaction, then records the definition's version count in
// the meta container. The recorded version is re-checked INSIDE the
// transaction: if another peer's completed migration already advanced it,
// the whole pass is a no-op. Running the pass redundantly on several peers
// is safe because migrations are deterministic and idempotent - redundant
// peers produce byte-identical rows.
//
// Invalid rows are skipped and remain inspectable via GetAllInvalid.
// Returns the number of rows rewritten.
func (t *Table) MigrateAll() (int, error) {
	versionKey := "schema/" + t.def.Name()
	target := value.Int(t.def.Versions())

	rewritten := 0
	err := t.src.Document().Transact(func(tx *crdt.Tx) error {
		if recorded, ok := tx.Get(metaContainer, versionKey); ok {
			if v, ok := recorded.(value.Int); ok && v >= target {
				return nil
			}
		}

		for _, id := range tx.LiveKeys(t.container) {
			raw, ok := tx.Get(t.container, id)
			if !ok {
				continue
			}
			res := t.resolve(id, raw)
			if res.Status != StatusValid {
				continue
			}
			if value.Equal(raw, res.Row) {
				continue
			}
			tx.Set(t.container, id, res.Row)
			rewritten++
		}

		tx.Set(metaContainer, versionKey, target)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rewritten, nil
}
