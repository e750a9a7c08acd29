package fsm

// RefreshPaths rebuilds every state's path input/output arrays from its
// PathStates using current FSM transitions (spec §4.2 refresh_paths),
// AND (DESIGN.md open-question decision) (re)populates State.Paths from
// scratch via bounded shortest-simple-path enumeration from InitState when
// a state has none yet. The original delegates enumeration to an external
// helper not present in the retrieved source; this policy — BFS over the
// transition graph, capped at MaxPathDepth hops and MaxPathsPerState
// candidates — is this repository's own, documented in DESIGN.md.
func (f *FSM) RefreshPaths() {
	maxDepth := f.MaxPathDepth
	if maxDepth <= 0 {
		maxDepth = 12
	}
	maxPaths := f.MaxPathsPerState
	if maxPaths <= 0 {
		maxPaths = 8
	}

	for _, s := range f.States {
		if len(s.Paths) == 0 && s.Name != f.InitState {
			for _, states := range f.enumeratePaths(s.Name, maxDepth, maxPaths) {
				s.Paths = append(s.Paths, NewPath(states, nil, nil))
			}
		}
		for _, p := range s.Paths {
			inputs, outputs, ok := f.traceFromPathStates(p.PathStates)
			if ok {
				p.InputSymbols = inputs
				p.OutputSymbols = outputs
			}
		}
	}
}

// traceFromPathStates rebuilds input/output arrays for a fixed sequence of
// state names by picking, for each consecutive pair, any transition
// connecting them (first match — ties are immaterial to replay, since
// exec_sequence_align re-verifies against the live response anyway).
func (f *FSM) traceFromPathStates(pathStates []string) ([]string, []string, bool) {
	if len(pathStates) < 2 {
		return nil, nil, len(pathStates) == 1
	}
	inputs := make([]string, 0, len(pathStates)-1)
	outputs := make([]string, 0, len(pathStates)-1)
	for i := 0; i < len(pathStates)-1; i++ {
		src, dst := pathStates[i], pathStates[i+1]
		found := false
		for _, t := range f.Transitions {
			if t.Src == src && t.Dst == dst {
				inputs = append(inputs, t.Input)
				outputs = append(outputs, t.Output)
				found = true
				break
			}
		}
		if !found {
			return nil, nil, false
		}
	}
	return inputs, outputs, true
}

// enumeratePaths returns up to maxPaths shortest simple paths (as state
// name sequences) from InitState to target, via breadth-first search
// capped at maxDepth hops.
func (f *FSM) enumeratePaths(target string, maxDepth, maxPaths int) [][]string {
	type frame struct {
		path []string
		seen map[string]bool
	}
	adjacency := map[string][]string{}
	for _, t := range f.Transitions {
		adjacency[t.Src] = append(adjacency[t.Src], t.Dst)
	}

	start := frame{path: []string{f.InitState}, seen: map[string]bool{f.InitState: true}}
	queue := []frame{start}
	var results [][]string

	for len(queue) > 0 && len(results) < maxPaths {
		cur := queue[0]
		queue = queue[1:]
		if len(cur.path) > maxDepth+1 {
			continue
		}
		last := cur.path[len(cur.path)-1]
		if last == target && len(cur.path) > 1 {
			cp := append([]string(nil), cur.path...)
			results = append(results, cp)
			continue
		}
		for _, next := range adjacency[last] {
			if cur.seen[next] {
				continue
			}
			nextSeen := make(map[string]bool, len(cur.seen)+1)
			for k := range cur.seen {
				nextSeen[k] = true
			}
			nextSeen[next] = true
			nextPath := append(append([]string(nil), cur.path...), next)
			queue = append(queue, frame{path: nextPath, seen: nextSeen})
		}
	}
	return results
}
