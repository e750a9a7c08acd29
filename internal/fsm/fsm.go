// Package fsm implements the Mealy-style finite-state model described in
// spec §3/§4.2: states, labeled transitions, edge-hit counters, path
// enumeration, and the new-transition learning algorithm's pure (non-I/O)
// decision logic. Grounded on _examples/original_source/objects/fsm.py.
package fsm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Transition is a labeled edge (src, input, output, dst).
type Transition struct {
	Src    string `json:"0"`
	Input  string `json:"1"`
	Output string `json:"2"`
	Dst    string `json:"3"`
}

// MarshalJSON serializes a transition as the 4-element array the original
// Python source stores (a plain list, not an object).
func (t Transition) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]string{t.Src, t.Input, t.Output, t.Dst})
}

// UnmarshalJSON is the inverse.
func (t *Transition) UnmarshalJSON(data []byte) error {
	var arr [4]string
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	t.Src, t.Input, t.Output, t.Dst = arr[0], arr[1], arr[2], arr[3]
	return nil
}

// EdgeKey identifies one edge-hit counter slot.
type EdgeKey struct {
	Src, Input, Output, Dst string
}

// FSM is the behavioral model: states, the initial state name, transitions,
// a monotonic counter used to mint fresh state names H0, H1, ..., and the
// edge-hit map. Invariants per spec §3: every transition's Src/Dst name a
// State; InitState names a State; edge_hits keys are a subset of
// transitions.
type FSM struct {
	States        []*State
	InitState     string
	Transitions   []Transition
	NewStateCount int
	EdgeHits      map[EdgeKey]int

	// MaxPathDepth/MaxPathsPerState bound RefreshPaths cost (DESIGN.md open
	// question: path-enumeration policy), defaulting to 12/8 when zero.
	MaxPathDepth     int
	MaxPathsPerState int
}

// New builds an FSM with a single initial state and no transitions.
func New(initState string) *FSM {
	f := &FSM{
		InitState:        initState,
		EdgeHits:         make(map[EdgeKey]int),
		MaxPathDepth:      12,
		MaxPathsPerState:  8,
	}
	f.States = append(f.States, NewState(initState, nil))
	return f
}

// GetState returns the state by name, or nil.
func (f *FSM) GetState(name string) *State {
	for _, s := range f.States {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// GetStateNames returns every known state name.
func (f *FSM) GetStateNames() []string {
	names := make([]string, len(f.States))
	for i, s := range f.States {
		names[i] = s.Name
	}
	return names
}

// SearchTransition reports an exact (src,input,output) match exists.
func (f *FSM) SearchTransition(src, input, output string) bool {
	for _, t := range f.Transitions {
		if t.Src == src && t.Input == input && t.Output == output {
			return true
		}
	}
	return false
}

// SearchNewTransition implements spec §4.2: true if an exact match exists,
// OR a transition with the same src/output exists whose composite input
// (containing a ":") contains the given input as a substring.
func (f *FSM) SearchNewTransition(src, input, output string) bool {
	if f.SearchTransition(src, input, output) {
		return true
	}
	for _, t := range f.Transitions {
		if strings.Contains(t.Input, ":") && t.Src == src && strings.Contains(t.Input, input) && t.Output == output {
			return true
		}
	}
	return false
}

// CandidateDestinations returns every dst reachable from src via input
// producing exactly output, used by alignment replay (spec §6
// exec_sequence_align) to pick among tied candidates.
func (f *FSM) CandidateDestinations(src, input, output string) []string {
	var dsts []string
	for _, t := range f.Transitions {
		if t.Src == src && t.Input == input && t.Output == output {
			dsts = append(dsts, t.Dst)
		}
	}
	return dsts
}

// CandidateDestinationsByInput returns every dst reachable from src via
// input regardless of output, the alignment fallback when no exact
// (src,input,output) edge exists.
func (f *FSM) CandidateDestinationsByInput(src, input string) []string {
	var dsts []string
	for _, t := range f.Transitions {
		if t.Src == src && t.Input == input {
			dsts = append(dsts, t.Dst)
		}
	}
	return dsts
}

// AddNewState mints "H<n>", appends it, increments the counter.
func (f *FSM) AddNewState() *State {
	s := NewState(fmt.Sprintf("H%d", f.NewStateCount), nil)
	f.NewStateCount++
	f.States = append(f.States, s)
	return s
}

// AddTransition appends a transition (transitions are only ever appended,
// per spec §3 lifecycle note).
func (f *FSM) AddTransition(src, input, output, dst string) {
	f.Transitions = append(f.Transitions, Transition{Src: src, Input: input, Output: output, Dst: dst})
}

// MarkEdge increments the edge-hit counter for (src,input,output,dst).
// Counters are monotonic — never reset, only incremented.
func (f *FSM) MarkEdge(src, input, output, dst string) {
	k := EdgeKey{src, input, output, dst}
	f.EdgeHits[k]++
}

// MarkEdgesFromSeq applies MarkEdge for i in [0, min(len(stateSeq)-1,
// len(inputSeq), len(retSeq))), per spec §4.2/§8.
func (f *FSM) MarkEdgesFromSeq(stateSeq, inputSeq, retSeq []string) {
	n := len(stateSeq) - 1
	if len(inputSeq) < n {
		n = len(inputSeq)
	}
	if len(retSeq) < n {
		n = len(retSeq)
	}
	for i := 0; i < n; i++ {
		f.MarkEdge(stateSeq[i], inputSeq[i], retSeq[i], stateSeq[i+1])
	}
}

// GetStateCoverage returns (covered, total, fraction) over Visited states.
func (f *FSM) GetStateCoverage() (int, int, float64) {
	total := len(f.States)
	covered := 0
	for _, s := range f.States {
		if s.Visited {
			covered++
		}
	}
	if total == 0 {
		return 0, 0, 0.0
	}
	return covered, total, float64(covered) / float64(total)
}

func (f *FSM) allEdgeKeys() map[EdgeKey]bool {
	keys := make(map[EdgeKey]bool, len(f.Transitions))
	for _, t := range f.Transitions {
		keys[EdgeKey{t.Src, t.Input, t.Output, t.Dst}] = true
	}
	return keys
}

// GetEdgeCoverage returns (covered, total, fraction) over transitions with
// a nonzero hit count.
func (f *FSM) GetEdgeCoverage() (int, int, float64) {
	all := f.allEdgeKeys()
	if len(all) == 0 {
		return 0, 0, 0.0
	}
	covered := 0
	for k := range all {
		if f.EdgeHits[k] > 0 {
			covered++
		}
	}
	return covered, len(all), float64(covered) / float64(len(all))
}

// OutgoingSuccessors returns the set of distinct dst names reachable from
// src by one transition, excluding src itself (self-loops) — the "outgoing
// FSM successors" used by the MCTS selection, expansion and warm-expansion
// rules (§4.4).
func (f *FSM) OutgoingSuccessors(src string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range f.Transitions {
		if t.Src == src && t.Dst != src && !seen[t.Dst] {
			seen[t.Dst] = true
			out = append(out, t.Dst)
		}
	}
	return out
}

// HasEdge reports whether at least one transition connects src directly
// to dst, regardless of input/output label.
func (f *FSM) HasEdge(src, dst string) bool {
	for _, t := range f.Transitions {
		if t.Src == src && t.Dst == dst {
			return true
		}
	}
	return false
}

// MatchStateBySelfLoopVector implements spec §4.2 step 3: for every known
// state, checks that for each probe symbol it has a transition on that
// symbol producing the observed output (whatever that transition's
// destination), returning the first state for which all of them exist, or
// nil if none does.
func (f *FSM) MatchStateBySelfLoopVector(alphabet []string, observed []string) *State {
	if len(alphabet) != len(observed) {
		return nil
	}
	for _, s := range f.States {
		match := true
		for i, sym := range alphabet {
			if !f.SearchTransition(s.Name, sym, observed[i]) {
				match = false
				break
			}
		}
		if match {
			return s
		}
	}
	return nil
}
