package crdt

import (
	"errors"
	"fmt"
	"sort"

	"github.com/skiffdb/skiff/value"
)

// FormatDocV1 identifies the serialized document layout.
const FormatDocV1 = "skiff/doc/v1"

// ErrCorrupt reports serialized bytes that do not decode to a well-formed
// document or whose checksum does not match the body.
var ErrCorrupt = errors.New("crdt: corrupt document")

// Save serializes the document to canonical bytes: the full cell logs, the
// clock position, the epoch, and a domain-separated checksum over the body.
// The bytes are the unit the external transport exchanges and the durable
// sink persists; two peers holding the same logical state produce identical
// bytes. The actor identity is runtime state and is not serialized.
func (d *Document) Save() ([]byte, error) {
	d.mu.Lock()
	body := d.bodyLocked()
	d.mu.Unlock()

	checksum, err := value.Hash(value.DomainDocument, body)
	if err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	envelope := value.Object{
		"body":     body,
		"checksum": value.String(checksum),
	}
	data, err := value.MarshalCanonical(envelope)
	if err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	return data, nil
}

func (d *Document) bodyLocked() value.Object {
	containers := make(value.Object, len(d.containers))
	for name, c := range d.containers {
		keys := make(value.Object, len(c.logs))
		for key, log := range c.logs {
			cells := make(value.Array, 0, len(log))
			for _, cell := range log {
				cells = append(cells, encodeCell(cell))
			}
			keys[key] = cells
		}
		containers[name] = keys
	}

	return value.Object{
		"format":     value.String(FormatDocV1),
		"epoch":      value.Int(d.epoch),
		"clock":      value.Int(d.clock.Current()),
		"containers": containers,
	}
}

func encodeCell(cell Cell) value.Object {
	obj := value.Object{
		"counter": value.Int(cell.Tag.Counter),
		"actor":   value.String(cell.Tag.Actor),
	}
	if cell.Deleted {
		obj["deleted"] = value.Bool(true)
	} else {
		obj["value"] = cell.Value
	}
	return obj
}

// Load deserializes bytes produced by Save, verifying the checksum.
// The loaded document gets a fresh actor identity unless WithActor is
// supplied - actor identity belongs to the runtime, not the bytes.
func Load(data []byte, opts ...Option) (*Document, error) {
	raw, err := value.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	envelope, ok := raw.(value.Object)
	if !ok {
		return nil, fmt.Errorf("%w: envelope is not an object", ErrCorrupt)
	}

	body, ok := envelope["body"].(value.Object)
	if !ok {
		return nil, fmt.Errorf("%w: missing body", ErrCorrupt)
	}
	checksum, ok := envelope["checksum"].(value.String)
	if !ok {
		return nil, fmt.Errorf("%w: missing checksum", ErrCorrupt)
	}

	sum, err := value.Hash(value.DomainDocument, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if sum != string(checksum) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	if format, _ := body["format"].(value.String); format != FormatDocV1 {
		return nil, fmt.Errorf("%w: unknown format %q", ErrCorrupt, format)
	}
	clockPos, ok := body["clock"].(value.Int)
	if !ok {
		return nil, fmt.Errorf("%w: missing clock", ErrCorrupt)
	}
	epoch, ok := body["epoch"].(value.Int)
	if !ok {
		return nil, fmt.Errorf("%w: missing epoch", ErrCorrupt)
	}
	rawContainers, ok := body["containers"].(value.Object)
	if !ok {
		return nil, fmt.Errorf("%w: missing containers", ErrCorrupt)
	}

	doc := NewDocument(opts...)
	doc.clock = NewClockAt(int64(clockPos))
	doc.epoch = int64(epoch)

	for _, name := range rawContainers.SortedKeys() {
		keys, ok := rawContainers[name].(value.Object)
		if !ok {
			return nil, fmt.Errorf("%w: container %q is not an object", ErrCorrupt, name)
		}
		c := newContainer()
		for _, key := range keys.SortedKeys() {
			cells, ok := keys[key].(value.Array)
			if !ok {
				return nil, fmt.Errorf("%w: log %q/%q is not an array", ErrCorrupt, name, key)
			}
			log := make([]Cell, 0, len(cells))
			for i, raw := range cells {
				cell, err := decodeCell(key, raw)
				if err != nil {
					return nil, fmt.Errorf("%w: log %q/%q cell %d: %v", ErrCorrupt, name, key, i, err)
				}
				log = append(log, cell)
			}
			sort.Slice(log, func(i, j int) bool { return log[i].Tag.Less(log[j].Tag) })
			c.logs[key] = log
			if c.live(key) {
				c.liveKeys++
			}
		}
		doc.containers[name] = c
	}
	return doc, nil
}

func decodeCell(key string, raw value.Value) (Cell, error) {
	obj, ok := raw.(value.Object)
	if !ok {
		return Cell{}, fmt.Errorf("cell is not an object")
	}
	counter, ok := obj["counter"].(value.Int)
	if !ok {
		return Cell{}, fmt.Errorf("missing counter")
	}
	actor, ok := obj["actor"].(value.String)
	if !ok {
		return Cell{}, fmt.Errorf("missing actor")
	}

	cell := Cell{
		Key: key,
		Tag: Tag{Counter: int64(counter), Actor: string(actor)},
	}
	if deleted, _ := obj["deleted"].(value.Bool); deleted {
		cell.Deleted = true
		return cell, nil
	}
	v, ok := obj["value"]
	if !ok {
		return Cell{}, fmt.Errorf("missing value")
	}
	cell.Value = v
	return cell, nil
}
