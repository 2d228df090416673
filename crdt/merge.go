package crdt

import (
	"slices"
	"sort"
)

// Merge folds a remote document into d and returns the keys whose winner
// changed, per container. Merging is commutative, associative, and
// idempotent: per-key logs take the union of cells (deduplicated by tag)
// and the highest tag wins, so peers exchanging documents in any order
// converge to identical state.
//
// The local clock witnesses the remote clock, so writes issued after a
// merge order above everything merged in. Observers of each affected
// container are notified once, after the merge commits.
//
// Two live documents may merge each other concurrently: the two locks are
// taken in document creation order, never call order.
func (d *Document) Merge(remote *Document) map[string][]string {
	if d == remote {
		return nil
	}
	changed := make(map[string]map[string]struct{})

	first, second := d, remote
	if remote.seq < d.seq {
		first, second = remote, d
	}
	first.mu.Lock()
	second.mu.Lock()

	d.clock.Witness(remote.clock.Current())
	if remote.epoch > d.epoch {
		d.epoch = remote.epoch
	}

	for name, rc := range remote.containers {
		lc := d.bindLocked(name)
		for key, rlog := range rc.logs {
			wasLive := lc.live(key)
			before, hadBefore := lc.winner(key)
			merged := mergeLogs(lc.logs[key], rlog)
			lc.logs[key] = merged

			after := merged[len(merged)-1]
			if isLive := !after.Deleted; isLive != wasLive {
				if isLive {
					lc.liveKeys++
				} else {
					lc.liveKeys--
				}
			}
			if !hadBefore || after.Tag != before.Tag {
				set, ok := changed[name]
				if !ok {
					set = make(map[string]struct{})
					changed[name] = set
				}
				set[key] = struct{}{}
			}
		}
	}

	second.mu.Unlock()
	first.mu.Unlock()

	d.notify(changed)

	out := make(map[string][]string, len(changed))
	for name, set := range changed {
		keys := make([]string, 0, len(set))
		for k := range set {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out[name] = keys
	}
	return out
}

// mergeLogs unions two tag-ascending cell logs, deduplicating by tag.
// Cells are immutable once written, so two cells with the same tag are the
// same write and either copy may be kept.
func mergeLogs(local, remote []Cell) []Cell {
	if len(local) == 0 {
		return slices.Clone(remote)
	}

	merged := make([]Cell, 0, len(local)+len(remote))
	i, j := 0, 0
	for i < len(local) && j < len(remote) {
		cmp := local[i].Tag.Compare(remote[j].Tag)
		switch {
		case cmp < 0:
			merged = append(merged, local[i])
			i++
		case cmp > 0:
			merged = append(merged, remote[j])
			j++
		default:
			merged = append(merged, local[i])
			i++
			j++
		}
	}
	merged = append(merged, local[i:]...)
	merged = append(merged, remote[j:]...)
	return merged
}
