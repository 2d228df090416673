package harness

import (
	"bytes"
	"fmt"

	"github.com/skiffdb/skiff/schema"
	"github.com/skiffdb/skiff/store"
	"github.com/skiffdb/skiff/value"
	"github.com/skiffdb/skiff/workspace"
)

// Result captures one scenario execution: any expectation failures, plus
// the canonical final-state snapshot used for golden comparison.
type Result struct {
	// Failures lists expectation and convergence violations. Empty means
	// the scenario passed.
	Failures []string

	// Snapshot is the converged final state as a canonical value tree:
	// {"scenario": name, "tables": {table: {id: {"status": ..., "row": ...}}}}
	Snapshot value.Object
}

// peer is one participant: a workspace plus its bound table accessors.
type peer struct {
	name   string
	ws     *workspace.Workspace
	tables map[string]*store.Table
}

// Run executes a scenario against one workspace per peer. Table
// definitions are supplied by the caller since validators and migrations
// are code, not data; every table a step or expectation references must
// appear in defs.
//
// After the flow, every peer's full state must match the expectations AND
// every peer must hold a byte-identical canonical state - partial
// convergence is a failure even when the expected rows happen to match.
func Run(s *Scenario, defs []*schema.TableDefinition) (*Result, error) {
	byName := make(map[string]*schema.TableDefinition, len(defs))
	for _, def := range defs {
		byName[def.Name()] = def
	}

	peers := make([]*peer, 0, len(s.Peers))
	byPeer := make(map[string]*peer, len(s.Peers))
	for _, name := range s.Peers {
		ws, err := workspace.New(s.Name+"/"+name, workspace.WithActor(name))
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		p := &peer{name: name, ws: ws, tables: make(map[string]*store.Table)}
		for _, def := range defs {
			t, err := ws.Table(def)
			if err != nil {
				return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
			}
			p.tables[def.Name()] = t
		}
		peers = append(peers, p)
		byPeer[name] = p
	}

	for i, step := range s.Steps {
		if err := runStep(s, i, step, byPeer, byName); err != nil {
			return nil, err
		}
	}

	result := &Result{}

	// Expectations are checked on EVERY peer: the contract is that all
	// peers converge, not that one of them happens to be right.
	for table, rows := range s.Expect.Tables {
		if _, ok := byName[table]; !ok {
			return nil, fmt.Errorf("scenario %s: expect references unknown table %q", s.Name, table)
		}
		for id, want := range rows {
			for _, p := range peers {
				checkRow(result, p, table, id, want)
			}
		}
	}

	snapshots := make([][]byte, len(peers))
	for i, p := range peers {
		data, err := value.MarshalCanonical(peerState(p))
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		snapshots[i] = data
	}
	for i := 1; i < len(snapshots); i++ {
		if !bytes.Equal(snapshots[0], snapshots[i]) {
			result.Failures = append(result.Failures, fmt.Sprintf(
				"peers %s and %s did not converge", peers[0].name, peers[i].name))
		}
	}

	result.Snapshot = value.Object{
		"scenario": value.String(s.Name),
		"tables":   peerState(peers[0]),
	}
	return result, nil
}

func runStep(s *Scenario, i int, step Step, byPeer map[string]*peer, byName map[string]*schema.TableDefinition) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("scenario %s step %d: %s", s.Name, i, fmt.Sprintf(format, args...))
	}

	switch {
	case step.Set != nil:
		p := byPeer[step.Peer]
		t, ok := p.tables[step.Set.Table]
		if !ok {
			return fail("unknown table %q", step.Set.Table)
		}
		row, err := value.FromAny(step.Set.Row)
		if err != nil {
			return fail("row: %v", err)
		}
		obj, ok := row.(value.Object)
		if !ok {
			return fail("row must be a mapping")
		}
		if err := t.Set(obj); err != nil {
			return fail("%v", err)
		}

	case step.Delete != nil:
		p := byPeer[step.Peer]
		t, ok := p.tables[step.Delete.Table]
		if !ok {
			return fail("unknown table %q", step.Delete.Table)
		}
		t.Delete(step.Delete.ID)

	case step.Sync != nil:
		data, err := byPeer[step.Sync.From].ws.Export()
		if err != nil {
			return fail("export from %s: %v", step.Sync.From, err)
		}
		if _, err := byPeer[step.Sync.To].ws.ApplyRemote(data); err != nil {
			return fail("apply to %s: %v", step.Sync.To, err)
		}

	case step.Compact != nil:
		if err := byPeer[step.Compact.Peer].ws.CompactInPlace(); err != nil {
			return fail("compact %s: %v", step.Compact.Peer, err)
		}
	}
	return nil
}

// checkRow compares one id's read result on one peer against its
// expectation, appending failures to the result.
func checkRow(result *Result, p *peer, table, id string, want ExpectedRow) {
	res := p.tables[table].Get(id)

	gotStatus := string(res.Status)
	if gotStatus != want.Status {
		result.Failures = append(result.Failures, fmt.Sprintf(
			"peer %s: %s/%s: status %s, want %s", p.name, table, id, gotStatus, want.Status))
		return
	}
	if want.Row == nil {
		return
	}

	wantRow, err := value.FromAny(want.Row)
	if err != nil {
		result.Failures = append(result.Failures, fmt.Sprintf(
			"peer %s: %s/%s: expected row: %v", p.name, table, id, err))
		return
	}
	if !value.Equal(res.Row, wantRow) {
		got, _ := value.MarshalCanonical(res.Row)
		expected, _ := value.MarshalCanonical(wantRow)
		result.Failures = append(result.Failures, fmt.Sprintf(
			"peer %s: %s/%s: row %s, want %s", p.name, table, id, got, expected))
	}
}

// peerState builds one peer's full observable state: every bound table,
// every live id, classified by the read pipeline. Invalid entries carry
// their raw value so golden files surface what was actually stored.
func peerState(p *peer) value.Object {
	tables := value.Object{}
	for name, t := range p.tables {
		rows := value.Object{}
		for _, res := range t.GetAll() {
			entry := value.Object{"status": value.String(string(res.Status))}
			switch res.Status {
			case store.StatusValid:
				entry["row"] = res.Row
			case store.StatusInvalid:
				entry["raw"] = res.Raw
			}
			rows[res.ID] = entry
		}
		if len(rows) > 0 {
			tables[name] = rows
		}
	}
	return tables
}
