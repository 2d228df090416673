package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffdb/skiff/value"
)

func addViews(raw value.Object) (value.Object, error) {
	row := raw.Clone()
	if _, ok := row["views"]; !ok {
		row["views"] = value.Int(0)
	}
	return row, nil
}

func TestTableBuilder_Minimal(t *testing.T) {
	def, err := NewTable("posts").Version(v1Validator()).Build()
	require.NoError(t, err)
	assert.Equal(t, "posts", def.Name())
	assert.Equal(t, 1, def.Versions())

	// Identity migration by default.
	row := value.Object{"id": value.String("p1"), "title": value.String("x")}
	out, err := def.Migrate(row)
	require.NoError(t, err)
	assert.True(t, value.Equal(row, out))
}

func TestTableBuilder_StructuralErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*TableDefinition, error)
		code  string
	}{
		{
			"empty name",
			func() (*TableDefinition, error) { return NewTable("").Version(v1Validator()).Build() },
			ErrEmptyName,
		},
		{
			"no versions",
			func() (*TableDefinition, error) { return NewTable("posts").Build() },
			ErrNoVersions,
		},
		{
			"nil validator",
			func() (*TableDefinition, error) { return NewTable("posts").Version(nil).Build() },
			ErrNilValidator,
		},
		{
			"version after migrate",
			func() (*TableDefinition, error) {
				return NewTable("posts").Version(v1Validator()).Migrate(addViews).Version(v2Validator()).Build()
			},
			ErrVersionAfterMigrate,
		},
		{
			"migrate twice",
			func() (*TableDefinition, error) {
				return NewTable("posts").Version(v1Validator()).Migrate(addViews).Migrate(addViews).Build()
			},
			ErrMigrateTwice,
		},
		{
			"nil migrate",
			func() (*TableDefinition, error) {
				return NewTable("posts").Version(v1Validator()).Migrate(nil).Build()
			},
			ErrNilMigrate,
		},
		{
			"version without id guarantee",
			func() (*TableDefinition, error) {
				noID := NewObject(Field{Name: "title", Kind: KindString})
				return NewTable("posts").Version(noID).Build()
			},
			ErrMissingIDField,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			require.Error(t, err)
			var serr *StructuralError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.code, serr.Code)
		})
	}
}

func TestTableBuilder_FirstErrorWins(t *testing.T) {
	_, err := NewTable("").Version(nil).Build()
	var serr *StructuralError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrEmptyName, serr.Code)
}

func TestMustBuild_PanicsOnStructuralError(t *testing.T) {
	assert.Panics(t, func() {
		NewTable("").Version(v1Validator()).MustBuild()
	})
}

func TestTableDefinition_MigrateAddsDefaults(t *testing.T) {
	def := NewTable("posts").
		Version(v1Validator()).
		Version(v2Validator()).
		Migrate(addViews).
		MustBuild()

	out, err := def.Migrate(value.Object{"id": value.String("p1"), "title": value.String("x")})
	require.NoError(t, err)
	assert.Equal(t, value.Int(0), out["views"])

	// Idempotent: already-migrated rows pass through unchanged.
	again, err := def.Migrate(out)
	require.NoError(t, err)
	assert.True(t, value.Equal(out, again))
}

func TestTableDefinition_MigrateFixpoint(t *testing.T) {
	def := NewTable("posts").
		Version(v1Validator()).
		Version(v2Validator()).
		Migrate(addViews).
		MustBuild()
	raw := value.Object{"id": value.String("p1"), "title": value.String("x")}

	// Deterministic: independent runs over the same raw input agree.
	first, err := def.Migrate(raw)
	require.NoError(t, err)
	second, err := def.Migrate(raw)
	require.NoError(t, err)
	assert.True(t, value.Equal(first, second))

	// Fixpoint: migrate(migrate(v)) equals migrate(v).
	again, err := def.Migrate(first)
	require.NoError(t, err)
	assert.True(t, value.Equal(first, again))
}

func TestTableDefinition_MigrateErrorWrapped(t *testing.T) {
	def := NewTable("posts").
		Version(v1Validator()).
		Migrate(func(raw value.Object) (value.Object, error) {
			return nil, errors.New("bad row")
		}).
		MustBuild()

	_, err := def.Migrate(value.Object{"id": value.String("p1"), "title": value.String("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad row")
}

func TestTableDefinition_MigratePanicRecovered(t *testing.T) {
	def := NewTable("posts").
		Version(v1Validator()).
		Migrate(func(raw value.Object) (value.Object, error) {
			panic("corrupt")
		}).
		MustBuild()

	_, err := def.Migrate(value.Object{"id": value.String("p1"), "title": value.String("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestTableDefinition_MigrateMustPreserveID(t *testing.T) {
	def := NewTable("posts").
		Version(v1Validator()).
		Migrate(func(raw value.Object) (value.Object, error) {
			row := raw.Clone()
			row["id"] = value.String("other")
			return row, nil
		}).
		MustBuild()

	_, err := def.Migrate(value.Object{"id": value.String("p1"), "title": value.String("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id")
}

func TestKVBuilder(t *testing.T) {
	def, err := NewKV("settings").
		Version(NewObject(Field{Name: "theme", Kind: KindString})).
		Default(value.Object{"theme": value.String("light")}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "settings", def.Name())
	d, ok := def.Default()
	require.True(t, ok)
	assert.True(t, value.Equal(value.Object{"theme": value.String("light")}, d))
}

func TestKVBuilder_NoDefault(t *testing.T) {
	def := NewKV("settings").
		Version(NewObject(Field{Name: "theme", Kind: KindString})).
		MustBuild()
	_, ok := def.Default()
	assert.False(t, ok)
}

func TestKVDefinition_Migrate(t *testing.T) {
	// v1 stored a bare string; v2 wraps it in an object.
	def := NewKV("title").
		Version(kindValidator(KindString)).
		Version(NewObject(Field{Name: "text", Kind: KindString})).
		Migrate(func(raw value.Value) (value.Value, error) {
			if s, ok := raw.(value.String); ok {
				return value.Object{"text": s}, nil
			}
			return raw, nil
		}).
		MustBuild()

	out, err := def.Migrate(value.String("hello"))
	require.NoError(t, err)
	assert.True(t, value.Equal(value.Object{"text": value.String("hello")}, out))
}

// kindValidator accepts any value of one kind. Test helper for KV shapes
// that are not objects.
func kindValidator(k Kind) Validator {
	return validatorFunc(func(v value.Value) (value.Value, []Issue) {
		if kindMatches(k, v) {
			return v, nil
		}
		return nil, []Issue{{Message: fmt.Sprintf("expected %s, got %s", k, kindOf(v))}}
	})
}

type validatorFunc func(v value.Value) (value.Value, []Issue)

func (f validatorFunc) Validate(v value.Value) (value.Value, []Issue) { return f(v) }
