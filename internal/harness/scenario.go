package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one conformance scenario: a set of peers, a scripted
// sequence of steps, and the expected converged state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Peers lists the participating peer names. Each becomes one
	// workspace whose actor identifier is the peer name.
	Peers []string `yaml:"peers"`

	// Steps is the scripted flow, executed in order.
	Steps []Step `yaml:"steps"`

	// Expect describes the state every peer must hold after the flow.
	Expect Expect `yaml:"expect"`
}

// Step is one scripted action. Exactly one of the action fields is set.
type Step struct {
	// Peer names the acting peer for set/delete steps.
	Peer string `yaml:"peer,omitempty"`

	Set     *SetStep     `yaml:"set,omitempty"`
	Delete  *DeleteStep  `yaml:"delete,omitempty"`
	Sync    *SyncStep    `yaml:"sync,omitempty"`
	Compact *CompactStep `yaml:"compact,omitempty"`
}

// SetStep writes one row into a table on the acting peer.
type SetStep struct {
	Table string         `yaml:"table"`
	Row   map[string]any `yaml:"row"`
}

// DeleteStep removes one row on the acting peer.
type DeleteStep struct {
	Table string `yaml:"table"`
	ID    string `yaml:"id"`
}

// SyncStep merges From's exported document into To (one direction).
type SyncStep struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// CompactStep runs in-place compaction on one peer.
type CompactStep struct {
	Peer string `yaml:"peer"`
}

// Expect describes the converged state: per table, per id, the expected
// read status and (for valid rows) the migrated row.
type Expect struct {
	Tables map[string]map[string]ExpectedRow `yaml:"tables"`
}

// ExpectedRow is the expected outcome of reading one id.
type ExpectedRow struct {
	// Status is "valid", "invalid", or "not_found".
	Status string `yaml:"status"`

	// Row is the expected migrated row for valid status.
	Row map[string]any `yaml:"row,omitempty"`
}

// LoadScenario reads and validates a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}

	// Strict field validation catches typos like "expects:" vs "expect:".
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("load scenario %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("load scenario %s: %w", path, err)
	}
	return &s, nil
}

// validate checks structural requirements before execution.
func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if len(s.Peers) == 0 {
		return fmt.Errorf("at least one peer is required")
	}

	peers := make(map[string]bool, len(s.Peers))
	for _, p := range s.Peers {
		if p == "" {
			return fmt.Errorf("peer names must be non-empty")
		}
		if peers[p] {
			return fmt.Errorf("duplicate peer %q", p)
		}
		peers[p] = true
	}

	for i, step := range s.Steps {
		actions := 0
		if step.Set != nil {
			actions++
			if !peers[step.Peer] {
				return fmt.Errorf("step %d: unknown peer %q", i, step.Peer)
			}
		}
		if step.Delete != nil {
			actions++
			if !peers[step.Peer] {
				return fmt.Errorf("step %d: unknown peer %q", i, step.Peer)
			}
		}
		if step.Sync != nil {
			actions++
			if !peers[step.Sync.From] || !peers[step.Sync.To] {
				return fmt.Errorf("step %d: sync references unknown peer", i)
			}
		}
		if step.Compact != nil {
			actions++
			if !peers[step.Compact.Peer] {
				return fmt.Errorf("step %d: unknown peer %q", i, step.Compact.Peer)
			}
		}
		if actions != 1 {
			return fmt.Errorf("step %d: exactly one action required, got %d", i, actions)
		}
	}
	return nil
}
