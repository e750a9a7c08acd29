package fsm

import (
	"encoding/json"

	"github.com/corefuzz/corefuzz/internal/oracle"
)

// State is a named FSM node (spec §3). Energy/Count mirror the
// "energy fields (reserved for seed-scheduling)" spec.md calls out — the
// live corpus energy lives in internal/corpus; these fields only carry the
// state-level counters the FSM itself accumulates.
type State struct {
	Name    string   `json:"name"`
	Paths   []*Path  `json:"paths"`
	IsInit  bool     `json:"is_init"`
	Visited bool     `json:"visited"`
	Count   int      `json:"count"`
	Energy  float64  `json:"energy"`
	Oracle  *oracle.Oracle `json:"-"`
}

// stateJSON is the on-wire shape, matching objects/fsm.py's
// `state['oracle']['state']` nesting produced by `default=lambda o:
// o.__dict__` on a plain Oracle object.
type stateJSON struct {
	Name    string         `json:"name"`
	Paths   []*pathFull    `json:"paths"`
	IsInit  bool           `json:"is_init"`
	Visited bool           `json:"visited"`
	Count   int            `json:"count"`
	Energy  float64        `json:"energy"`
	Oracle  oracleJSON     `json:"oracle"`
}

type oracleJSON struct {
	State string `json:"state"`
}

// pathFull serializes the complete Path including Count/Succ.
type pathFull struct {
	PathStates    []string `json:"path_states"`
	InputSymbols  []string `json:"input_symbols"`
	OutputSymbols []string `json:"output_symbols"`
	Count         int      `json:"count"`
	Succ          int      `json:"succ"`
}

// NewState builds a fresh, untagged State with the given paths.
func NewState(name string, paths []*Path) *State {
	return &State{Name: name, Paths: paths, Oracle: oracle.New()}
}

// SetVisited marks the state as having been reached by a successful round.
func (s *State) SetVisited() { s.Visited = true }

// IsExistedPath reports whether a path with the same PathStates sequence
// already exists on this state (objects/fsm.py: is_existed_path).
func (s *State) IsExistedPath(pathStates []string) bool {
	for _, p := range s.Paths {
		if sameStrings(p.PathStates, pathStates) {
			return true
		}
	}
	return false
}

// AddPath appends a path.
func (s *State) AddPath(p *Path) { s.Paths = append(s.Paths, p) }

// SelectPath runs the path selector (§4.3) over this state's paths.
func (s *State) SelectPath(rng Rand) *Path {
	return SelectPath(s.Paths, &s.Count, rng)
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MarshalJSON nests the Oracle tag the way the original's
// `default=lambda o: o.__dict__` serializer did.
func (s *State) MarshalJSON() ([]byte, error) {
	paths := make([]*pathFull, len(s.Paths))
	for i, p := range s.Paths {
		paths[i] = &pathFull{
			PathStates:    p.PathStates,
			InputSymbols:  p.InputSymbols,
			OutputSymbols: p.OutputSymbols,
			Count:         p.Count,
			Succ:          p.Succ,
		}
	}
	tag := ""
	if s.Oracle != nil {
		tag = string(s.Oracle.Tag)
	}
	return json.Marshal(stateJSON{
		Name:    s.Name,
		Paths:   paths,
		IsInit:  s.IsInit,
		Visited: s.Visited,
		Count:   s.Count,
		Energy:  s.Energy,
		Oracle:  oracleJSON{State: tag},
	})
}

// UnmarshalJSON is the inverse of MarshalJSON, equivalent to
// State.from_json in objects/fsm.py.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Name = raw.Name
	s.IsInit = raw.IsInit
	s.Visited = raw.Visited
	s.Count = raw.Count
	s.Energy = raw.Energy
	s.Oracle = &oracle.Oracle{Tag: oracle.Tag(raw.Oracle.State)}
	s.Paths = make([]*Path, len(raw.Paths))
	for i, p := range raw.Paths {
		s.Paths[i] = &Path{
			PathStates:    p.PathStates,
			InputSymbols:  p.InputSymbols,
			OutputSymbols: p.OutputSymbols,
			Count:         p.Count,
			Succ:          p.Succ,
		}
	}
	return nil
}
