// Package testutil provides deterministic fixtures for skiff tests.
package testutil

import (
	"fmt"

	"github.com/skiffdb/skiff/value"
)

// Fixed actor identifiers. Tag ordering breaks counter ties by actor, so
// fixed names make conflict outcomes reproducible: with equal counters,
// the higher actor string wins.
const (
	ActorA = "peer-a"
	ActorB = "peer-b"
	ActorC = "peer-c"
)

// Row builds a value.Object from alternating key/value pairs.
// Values may be string, int, int64, bool, value.Value, or nil.
// Panics on malformed input; tests only.
func Row(pairs ...any) value.Object {
	if len(pairs)%2 != 0 {
		panic("testutil.Row: odd number of arguments")
	}
	obj := make(value.Object, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("testutil.Row: key %v is not a string", pairs[i]))
		}
		v, err := value.FromAny(pairs[i+1])
		if err != nil {
			panic(fmt.Sprintf("testutil.Row: value for %q: %v", key, err))
		}
		obj[key] = v
	}
	return obj
}
