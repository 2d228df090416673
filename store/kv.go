package store

import (
	"fmt"

	"github.com/skiffdb/skiff/crdt"
	"github.com/skiffdb/skiff/schema"
	"github.com/skiffdb/skiff/value"
)

// KV is the accessor for one singleton KV definition bound to a document.
// All KV entries of a workspace share one container, keyed by entry name;
// the accessor mirrors Table singularly per name.
type KV struct {
	def *schema.KVDefinition
	src DocumentSource
}

// BindKV binds a KV definition to the shared KV container in the source's
// current document. Binding is idempotent.
func BindKV(src DocumentSource, def *schema.KVDefinition) *KV {
	src.Document().Bind(kvContainer)
	return &KV{def: def, src: src}
}

// Definition returns the bound KV definition.
func (k *KV) Definition() *schema.KVDefinition { return k.def }

// Get reads the stored value through the validate-then-migrate pipeline.
// When nothing is stored, the definition's default (if declared) is
// returned as valid; otherwise the result is not_found.
func (k *KV) Get() KVResult {
	raw, ok := k.src.Document().Get(kvContainer, k.def.Name())
	if !ok {
		if def, has := k.def.Default(); has {
			return KVResult{Status: StatusValid, Value: value.Clone(def)}
		}
		return KVResult{Status: StatusNotFound}
	}
	return k.resolve(raw)
}

// resolve runs the validate-then-migrate read pipeline. Returned values are
// cloned so a caller mutating its result cannot alias stored state.
func (k *KV) resolve(raw value.Value) KVResult {
	parsed, issues := k.def.Union().Validate(raw)
	if len(issues) > 0 {
		return KVResult{Status: StatusInvalid, Raw: value.Clone(raw), Issues: issues}
	}
	migrated, err := k.def.Migrate(parsed)
	if err != nil {
		return KVResult{Status: StatusInvalid, Raw: value.Clone(raw), Issues: []schema.Issue{{Message: err.Error()}}}
	}
	return KVResult{Status: StatusValid, Value: value.Clone(migrated)}
}

// Set stores the whole value, replacing any previous one atomically.
// The value must carry the current schema shape.
func (k *KV) Set(v value.Value) error {
	if v == nil {
		return fmt.Errorf("set %s: nil value", k.def.Name())
	}
	return k.src.Document().Transact(func(tx *crdt.Tx) error {
		tx.Set(kvContainer, k.def.Name(), value.Clone(v))
		return nil
	})
}

// Update performs a local read-merge-write: read and migrate the current
// value (or the default when absent and one is declared), apply fn, store
// the result. Invalid stored values are returned as-is without calling fn.
func (k *KV) Update(fn func(v value.Value) (value.Value, error)) (KVResult, error) {
	var result KVResult
	err := k.src.Document().Transact(func(tx *crdt.Tx) error {
		var current value.Value
		raw, ok := tx.Get(kvContainer, k.def.Name())
		switch {
		case ok:
			res := k.resolve(raw)
			if res.Status != StatusValid {
				result = res
				return nil
			}
			current = res.Value
		default:
			def, has := k.def.Default()
			if !has {
				result = KVResult{Status: StatusNotFound}
				return nil
			}
			current = value.Clone(def)
		}

		updated, err := fn(current)
		if err != nil {
			return fmt.Errorf("update %s: %w", k.def.Name(), err)
		}
		if updated == nil {
			return fmt.Errorf("update %s: nil value", k.def.Name())
		}
		tx.Set(kvContainer, k.def.Name(), value.Clone(updated))
		result = KVResult{Status: StatusValid, Value: updated}
		return nil
	})
	return result, err
}

// Reset removes the stored value. Subsequent reads fall back to the
// schema default, or report not_found when none is declared. Resetting an
// absent entry reports not_found_locally.
func (k *KV) Reset() DeleteResult {
	var res DeleteResult
	_ = k.src.Document().Transact(func(tx *crdt.Tx) error {
		if tx.Delete(kvContainer, k.def.Name()) {
			res = DeleteResult{ID: k.def.Name(), Status: Deleted}
		} else {
			res = DeleteResult{ID: k.def.Name(), Status: DeleteNotFoundLocally}
		}
		return nil
	})
	return res
}

// Has reports whether a value is stored under the name. Defaults do not
// count: Has is about stored state.
func (k *KV) Has() bool {
	return k.src.Document().Has(kvContainer, k.def.Name())
}

// Observe fires after each mutating transaction that touches this entry.
// The shared KV container batches per transaction; the callback runs only
// when this entry's name is among the changed keys.
func (k *KV) Observe(fn func()) (cancel func()) {
	name := k.def.Name()
	return k.src.Document().Observe(kvContainer, func(changed []string) {
		for _, key := range changed {
			if key == name {
				fn()
				return
			}
		}
	})
}
