package workspace

import (
	"fmt"

	"github.com/skiffdb/skiff/value"
)

// headKey returns the sink key of a workspace's head pointer record.
func headKey(workspaceID string) string {
	return workspaceID + ".head"
}

// epochKey returns the sink key of one epoch's document blob.
func epochKey(workspaceID string, epoch int64) string {
	return fmt.Sprintf("%s-%d", workspaceID, epoch)
}

// encodeHead serializes the head pointer record.
func encodeHead(workspaceID string, epoch int64) ([]byte, error) {
	return value.MarshalCanonical(value.Object{
		"workspace": value.String(workspaceID),
		"epoch":     value.Int(epoch),
	})
}

// decodeHead parses a head pointer record.
func decodeHead(data []byte) (workspaceID string, epoch int64, err error) {
	raw, err := value.Unmarshal(data)
	if err != nil {
		return "", 0, fmt.Errorf("head record: %w", err)
	}
	obj, ok := raw.(value.Object)
	if !ok {
		return "", 0, fmt.Errorf("head record: not an object")
	}
	ws, ok := obj["workspace"].(value.String)
	if !ok {
		return "", 0, fmt.Errorf("head record: missing workspace")
	}
	e, ok := obj["epoch"].(value.Int)
	if !ok {
		return "", 0, fmt.Errorf("head record: missing epoch")
	}
	return string(ws), int64(e), nil
}

// writeHead persists the head pointer with monotonic-max semantics: the
// stored epoch is read back inside the write path and the higher of the
// two is written, so a concurrent advance by another writer is never
// regressed.
func writeHead(sink Sink, workspaceID string, epoch int64) (int64, error) {
	if data, ok, err := sink.Get(headKey(workspaceID)); err != nil {
		return 0, err
	} else if ok {
		_, stored, err := decodeHead(data)
		if err != nil {
			return 0, err
		}
		if stored > epoch {
			epoch = stored
		}
	}

	data, err := encodeHead(workspaceID, epoch)
	if err != nil {
		return 0, err
	}
	if err := sink.Put(headKey(workspaceID), data); err != nil {
		return 0, err
	}
	return epoch, nil
}

// readHead loads the persisted head pointer; ok=false when none exists.
func readHead(sink Sink, workspaceID string) (epoch int64, ok bool, err error) {
	data, ok, err := sink.Get(headKey(workspaceID))
	if err != nil || !ok {
		return 0, false, err
	}
	id, epoch, err := decodeHead(data)
	if err != nil {
		return 0, false, err
	}
	if id != workspaceID {
		return 0, false, fmt.Errorf("head record: workspace %q does not match %q", id, workspaceID)
	}
	return epoch, true, nil
}
