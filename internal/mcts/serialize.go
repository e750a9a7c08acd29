package mcts

import "encoding/json"

// nodeJSON is the on-wire shape for one tree node (objects/mcts_node.py's
// to_dict/from_dict): children keyed by tail name, parent links rebuilt on
// load by recursion rather than serialized directly (non-owning back-edge,
// spec §9).
type nodeJSON struct {
	StatePath []string            `json:"state_path"`
	Children  map[string]*nodeJSON `json:"children"`
	NSel      int                 `json:"n_sel"`
	NDet      int                 `json:"n_det"`
	Reward    float64             `json:"reward"`
}

func (n *Node) toJSON() *nodeJSON {
	children := make(map[string]*nodeJSON, len(n.Children))
	for k, c := range n.Children {
		children[k] = c.toJSON()
	}
	return &nodeJSON{
		StatePath: n.StatePath,
		Children:  children,
		NSel:      n.NSel,
		NDet:      n.NDet,
		Reward:    n.Reward,
	}
}

func nodeFromJSON(raw *nodeJSON, parent *Node) *Node {
	n := &Node{
		StatePath: raw.StatePath,
		Parent:    parent,
		Children:  map[string]*Node{},
		NSel:      raw.NSel,
		NDet:      raw.NDet,
		Reward:    raw.Reward,
	}
	for tail, childRaw := range raw.Children {
		n.Children[tail] = nodeFromJSON(childRaw, n)
	}
	return n
}

// scheduleJSON is the full-tree snapshot shape for one MCTSSchedule.
type scheduleJSON struct {
	Root             *nodeJSON       `json:"root"`
	SinkHits         map[string]int  `json:"sink_hits"`
	SinkStates       []string        `json:"sink_states"`
	LastTerminals    []string        `json:"last_terminals"`
	SelectionCounter map[string]int  `json:"selection_counter"`
}

// Save serializes the full tree (spec §4.4 "Persistence: full-tree JSON
// snapshot per schedule").
func (s *Schedule) Save() ([]byte, error) {
	sinkStates := make([]string, 0, len(s.SinkStates))
	for name := range s.SinkStates {
		sinkStates = append(sinkStates, name)
	}
	return json.MarshalIndent(scheduleJSON{
		Root:             s.Root.toJSON(),
		SinkHits:         s.SinkHits,
		SinkStates:       sinkStates,
		LastTerminals:    s.LastTerminals.Items(),
		SelectionCounter: s.SelectionCounter,
	}, "", "    ")
}

// Load parses a schedule snapshot and rebuilds StateVisits by summing
// every node's NSel into state_visits[node.Tail()] (spec §4.4).
func Load(data []byte, rng Rand) (*Schedule, error) {
	var raw scheduleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	s := NewSchedule(raw.Root.StatePath[0], rng)
	s.Root = nodeFromJSON(raw.Root, nil)
	if raw.SinkHits != nil {
		s.SinkHits = raw.SinkHits
	}
	s.SinkStates = make(map[string]bool, len(raw.SinkStates))
	for _, name := range raw.SinkStates {
		s.SinkStates[name] = true
	}
	s.LastTerminals = newBoundedQueue(lastTerminalsCap)
	for _, t := range raw.LastTerminals {
		s.LastTerminals.Push(t)
	}
	if raw.SelectionCounter != nil {
		s.SelectionCounter = raw.SelectionCounter
	}
	s.rebuildStateVisits()
	return s, nil
}

func (s *Schedule) rebuildStateVisits() {
	s.StateVisits = map[string]int{}
	var walk func(n *Node)
	walk = func(n *Node) {
		s.StateVisits[n.Tail()] += n.NSel
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(s.Root)
}
