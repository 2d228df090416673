package crdt

import (
	"sort"

	"github.com/skiffdb/skiff/value"
)

// Tx is one atomic transaction over a document. All accessor mutations run
// inside a Tx; the document lock is held for the duration, so transactions
// are short and synchronous and never suspend on I/O.
type Tx struct {
	doc     *Document
	changed map[string]map[string]struct{}
}

// Transact runs fn as one atomic transaction. On success, observers of
// each touched container receive the changed key set exactly once, after
// the lock is released. On error the document is left as fn left it -
// transactions are not rollback scopes, they are batching/notification
// scopes - so fn should validate before writing.
func (d *Document) Transact(fn func(*Tx) error) error {
	d.mu.Lock()
	tx := &Tx{doc: d, changed: make(map[string]map[string]struct{})}
	err := fn(tx)
	d.mu.Unlock()

	if err != nil {
		return err
	}
	d.notify(tx.changed)
	return nil
}

func (tx *Tx) mark(containerName, key string) {
	set, ok := tx.changed[containerName]
	if !ok {
		set = make(map[string]struct{})
		tx.changed[containerName] = set
	}
	set[key] = struct{}{}
}

// Set appends a new winning cell for key. The write is stamped with the
// local actor and the next clock tick, so it supersedes every cell the
// document has seen so far.
func (tx *Tx) Set(containerName, key string, v value.Value) {
	c := tx.doc.bindLocked(containerName)
	if !c.live(key) {
		c.liveKeys++
	}
	cell := Cell{
		Key:   key,
		Value: v,
		Tag:   Tag{Counter: tx.doc.clock.Next(), Actor: tx.doc.actor},
	}
	c.logs[key] = append(c.logs[key], cell)
	tx.mark(containerName, key)
}

// Delete appends a tombstone for key. Returns false when the key has no
// live value locally; the tombstone is still written so the deletion
// propagates even when the row only exists on other peers.
func (tx *Tx) Delete(containerName, key string) bool {
	c := tx.doc.bindLocked(containerName)
	wasLive := c.live(key)
	if wasLive {
		c.liveKeys--
	}
	cell := Cell{
		Key:     key,
		Deleted: true,
		Tag:     Tag{Counter: tx.doc.clock.Next(), Actor: tx.doc.actor},
	}
	c.logs[key] = append(c.logs[key], cell)
	tx.mark(containerName, key)
	return wasLive
}

// Get reads the live value for key inside the transaction, observing
// earlier writes of the same transaction.
func (tx *Tx) Get(containerName, key string) (value.Value, bool) {
	c, ok := tx.doc.containers[containerName]
	if !ok {
		return nil, false
	}
	w, ok := c.winner(key)
	if !ok || w.Deleted {
		return nil, false
	}
	return w.Value, true
}

// Has reports whether key is live inside the transaction.
func (tx *Tx) Has(containerName, key string) bool {
	c, ok := tx.doc.containers[containerName]
	return ok && c.live(key)
}

// LiveKeys returns the live keys of a container inside the transaction.
func (tx *Tx) LiveKeys(containerName string) []string {
	c, ok := tx.doc.containers[containerName]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(c.logs))
	for key := range c.logs {
		if c.live(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
