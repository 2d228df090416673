package schema

import (
	"fmt"

	"github.com/skiffdb/skiff/value"
)

// RowMigrate maps a raw row matching ANY registered version to the latest
// shape. It must be deterministic and idempotent: the same raw input yields
// the same output on every peer, and re-running it on already-migrated data
// is a no-op. Pure functions of the row (including row-dependent defaults)
// are fine; wall-clock or random defaults are not - those need an epoch
// advance instead.
type RowMigrate func(raw value.Object) (value.Object, error)

// ValueMigrate is RowMigrate for KV entries, which may be any value shape.
type ValueMigrate func(raw value.Value) (value.Value, error)

// TableBuilder accumulates schema versions for a table definition.
// Versions are appended in order; Migrate freezes the version list.
// Errors are collected and reported once at Build, so call chains stay
// uninterrupted.
type TableBuilder struct {
	name    string
	vs      []Validator
	migrate RowMigrate
	frozen  bool
	errs    []error
}

// NewTable starts a table definition. The name keys the table's container
// inside a document and must be unique within a workspace.
func NewTable(name string) *TableBuilder {
	b := &TableBuilder{name: name}
	if name == "" {
		b.errs = append(b.errs, structuralErr(ErrEmptyName, "", "table name must be non-empty"))
	}
	return b
}

// Version appends one schema version. Every version of a table must accept
// only values carrying an "id" string field; validators implementing
// IDGuard are checked here, others are trusted.
func (b *TableBuilder) Version(v Validator) *TableBuilder {
	if b.frozen {
		b.errs = append(b.errs, structuralErr(ErrVersionAfterMigrate, b.name, "Version called after Migrate"))
		return b
	}
	if v == nil {
		b.errs = append(b.errs, structuralErr(ErrNilValidator, b.name, "nil validator"))
		return b
	}
	if guard, ok := v.(IDGuard); ok && !guard.EnsuresStringID() {
		b.errs = append(b.errs, structuralErr(ErrMissingIDField, b.name,
			fmt.Sprintf("version %d does not guarantee an \"id\" string field", len(b.vs)+1)))
		return b
	}
	b.vs = append(b.vs, v)
	return b
}

// Migrate sets the migration function and freezes the version list.
// Single-version tables may omit it and default to identity.
func (b *TableBuilder) Migrate(fn RowMigrate) *TableBuilder {
	if b.frozen {
		b.errs = append(b.errs, structuralErr(ErrMigrateTwice, b.name, "Migrate called twice"))
		return b
	}
	if fn == nil {
		b.errs = append(b.errs, structuralErr(ErrNilMigrate, b.name, "nil migration function"))
		return b
	}
	b.migrate = fn
	b.frozen = true
	return b
}

// Build finalizes the definition. Returns the first structural error
// encountered during the chain, if any.
func (b *TableBuilder) Build() (*TableDefinition, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.vs) == 0 {
		return nil, structuralErr(ErrNoVersions, b.name, "at least one version is required")
	}
	migrate := b.migrate
	if migrate == nil {
		migrate = func(raw value.Object) (value.Object, error) { return raw, nil }
	}
	return &TableDefinition{
		name:    b.name,
		union:   NewUnion(b.vs...),
		latest:  b.vs[len(b.vs)-1],
		migrate: migrate,
	}, nil
}

// MustBuild is Build but panics on structural errors.
// Use for definitions declared at package level with known-good inputs.
func (b *TableBuilder) MustBuild() *TableDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// TableDefinition is an immutable description of a table: its name, the
// union validator over all historical versions, and the migration to the
// latest shape.
type TableDefinition struct {
	name    string
	union   *Union
	latest  Validator
	migrate RowMigrate
}

// Name returns the table name.
func (d *TableDefinition) Name() string { return d.name }

// Union returns the validator accepting any registered version.
func (d *TableDefinition) Union() *Union { return d.union }

// Latest returns the newest version's validator.
func (d *TableDefinition) Latest() Validator { return d.latest }

// Versions returns the number of registered schema versions.
func (d *TableDefinition) Versions() int { return d.union.Len() }

// Migrate runs the migration function over a raw row that already passed
// the union validator. A panicking or erroring migration is converted to
// an error here so one corrupt row cannot abort enumeration of a table.
// Migration must preserve the row identifier.
func (d *TableDefinition) Migrate(raw value.Object) (row value.Object, err error) {
	defer func() {
		if r := recover(); r != nil {
			row = nil
			err = fmt.Errorf("migrate %s: panic: %v", d.name, r)
		}
	}()

	row, err = d.migrate(raw)
	if err != nil {
		return nil, fmt.Errorf("migrate %s: %w", d.name, err)
	}
	rawID, _ := raw.ID()
	newID, ok := row.ID()
	if !ok || newID != rawID {
		return nil, fmt.Errorf("migrate %s: migration changed row id %q", d.name, rawID)
	}
	return row, nil
}

// KVBuilder accumulates schema versions for a singleton KV definition.
// It mirrors TableBuilder, keyed by a single name rather than per-row ids,
// and additionally carries an optional default value used by Reset.
type KVBuilder struct {
	name    string
	vs      []Validator
	migrate ValueMigrate
	def     value.Value
	hasDef  bool
	frozen  bool
	errs    []error
}

// NewKV starts a KV definition.
func NewKV(name string) *KVBuilder {
	b := &KVBuilder{name: name}
	if name == "" {
		b.errs = append(b.errs, structuralErr(ErrEmptyName, "", "kv name must be non-empty"))
	}
	return b
}

// Version appends one schema version. KV values need not be objects, so no
// id guard applies.
func (b *KVBuilder) Version(v Validator) *KVBuilder {
	if b.frozen {
		b.errs = append(b.errs, structuralErr(ErrVersionAfterMigrate, b.name, "Version called after Migrate"))
		return b
	}
	if v == nil {
		b.errs = append(b.errs, structuralErr(ErrNilValidator, b.name, "nil validator"))
		return b
	}
	b.vs = append(b.vs, v)
	return b
}

// Default sets the value Reset falls back to. Without a default, Reset
// leaves the entry absent and reads return not_found.
func (b *KVBuilder) Default(v value.Value) *KVBuilder {
	b.def = v
	b.hasDef = true
	return b
}

// Migrate sets the migration function and freezes the version list.
func (b *KVBuilder) Migrate(fn ValueMigrate) *KVBuilder {
	if b.frozen {
		b.errs = append(b.errs, structuralErr(ErrMigrateTwice, b.name, "Migrate called twice"))
		return b
	}
	if fn == nil {
		b.errs = append(b.errs, structuralErr(ErrNilMigrate, b.name, "nil migration function"))
		return b
	}
	b.migrate = fn
	b.frozen = true
	return b
}

// Build finalizes the definition.
func (b *KVBuilder) Build() (*KVDefinition, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.vs) == 0 {
		return nil, structuralErr(ErrNoVersions, b.name, "at least one version is required")
	}
	migrate := b.migrate
	if migrate == nil {
		migrate = func(raw value.Value) (value.Value, error) { return raw, nil }
	}
	return &KVDefinition{
		name:       b.name,
		union:      NewUnion(b.vs...),
		latest:     b.vs[len(b.vs)-1],
		migrate:    migrate,
		defaultVal: b.def,
		hasDefault: b.hasDef,
	}, nil
}

// MustBuild is Build but panics on structural errors.
func (b *KVBuilder) MustBuild() *KVDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// KVDefinition is the singleton counterpart of TableDefinition.
type KVDefinition struct {
	name       string
	union      *Union
	latest     Validator
	migrate    ValueMigrate
	defaultVal value.Value
	hasDefault bool
}

// Name returns the entry name.
func (d *KVDefinition) Name() string { return d.name }

// Union returns the validator accepting any registered version.
func (d *KVDefinition) Union() *Union { return d.union }

// Latest returns the newest version's validator.
func (d *KVDefinition) Latest() Validator { return d.latest }

// Versions returns the number of registered schema versions.
func (d *KVDefinition) Versions() int { return d.union.Len() }

// Default returns the Reset fallback value, if one was declared.
func (d *KVDefinition) Default() (value.Value, bool) {
	return d.defaultVal, d.hasDefault
}

// Migrate runs the migration function with the same panic/error boundary
// as TableDefinition.Migrate.
func (d *KVDefinition) Migrate(raw value.Value) (v value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = fmt.Errorf("migrate %s: panic: %v", d.name, r)
		}
	}()

	v, err = d.migrate(raw)
	if err != nil {
		return nil, fmt.Errorf("migrate %s: %w", d.name, err)
	}
	return v, nil
}
