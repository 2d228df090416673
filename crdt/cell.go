package crdt

import (
	"strings"

	"github.com/skiffdb/skiff/value"
)

// Tag orders cells across peers: Lamport counter first, writing actor as
// the tiebreaker. Two distinct writes never share a tag (a counter can
// collide only across actors), so resolution is total and deterministic.
type Tag struct {
	Counter int64
	Actor   string
}

// Compare returns -1, 0, or 1 ordering t against o.
func (t Tag) Compare(o Tag) int {
	if t.Counter != o.Counter {
		if t.Counter < o.Counter {
			return -1
		}
		return 1
	}
	return strings.Compare(t.Actor, o.Actor)
}

// Less reports whether t orders before o.
func (t Tag) Less(o Tag) bool {
	return t.Compare(o) < 0
}

// Cell is the physical storage unit: one {key, value} entry in a
// container's per-key log. A deleted cell is a tombstone - it carries no
// value but still competes for the winner slot so deletions propagate
// through merges.
type Cell struct {
	Key     string
	Value   value.Value // nil when Deleted
	Deleted bool
	Tag     Tag
}
