package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/skiffdb/skiff/schema"
	"github.com/skiffdb/skiff/value"
)

// RunWithGolden loads a scenario file, executes it with the given table
// definitions, requires it to pass, and compares the canonical final-state
// snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, path string, defs []*schema.TableDefinition) {
	t.Helper()

	s, err := LoadScenario(path)
	require.NoError(t, err)

	result, err := Run(s, defs)
	require.NoError(t, err)
	require.Empty(t, result.Failures)

	data, err := value.MarshalCanonical(result.Snapshot)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, data)
}
