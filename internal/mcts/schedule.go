package mcts

import (
	"fmt"
	"math"
)

// Hyperparameters, spec §4.4 (treat as tuned constants).
const (
	rho                     = 1.4
	stateReward             = 1.0
	transitionReward        = 0.8
	errorRewardWeight       = 0.4
	fieldRewardWeight       = 0.2
	covBias                 = 1.2
	depthGamma              = 1.1
	alphaSink               = 0.15
	epsilonRoot             = 0.10
	maxConsecutiveSelections = 10
	lastTerminalsCap        = 64
	fieldGainK              = 3.0
)

var normWeights = func() [4]float64 {
	sum := stateReward + transitionReward + errorRewardWeight + fieldRewardWeight
	return [4]float64{stateReward / sum, transitionReward / sum, errorRewardWeight / sum, fieldRewardWeight / sum}
}()

// Graph is the minimal FSM view the scheduler needs: each state's outgoing
// successor names, excluding self-loops. *fsm.FSM satisfies this.
type Graph interface {
	OutgoingSuccessors(name string) []string
}

// Schedule is one MCTS tree plus its auxiliary bookkeeping (spec §3
// MCTSSchedule / §4.4).
type Schedule struct {
	Root             *Node
	StateVisits      map[string]int
	SinkHits         map[string]int
	SinkStates       map[string]bool
	LastTerminals    *boundedQueue
	SelectionCounter map[string]int

	rng Rand
}

// NewSchedule builds a schedule rooted at initState.
func NewSchedule(initState string, rng Rand) *Schedule {
	return &Schedule{
		Root:             NewNode([]string{initState}, nil),
		StateVisits:      map[string]int{},
		SinkHits:         map[string]int{},
		SinkStates:       map[string]bool{},
		LastTerminals:    newBoundedQueue(lastTerminalsCap),
		SelectionCounter: map[string]int{},
		rng:              rng,
	}
}

func (s *Schedule) novelty(name string) float64 {
	return covBias / math.Sqrt(float64(s.StateVisits[name])+1)
}

func (s *Schedule) childScore(c *Node) float64 {
	return c.UCT(rho, s.novelty(c.Tail())) - alphaSink*float64(s.SinkHits[c.Tail()])
}

// WarmExpandRoot ensures a child for every successor of the root's tail
// state (spec §4.4 "Warm expansion").
func (s *Schedule) WarmExpandRoot(g Graph) {
	for _, dst := range g.OutgoingSuccessors(s.Root.Tail()) {
		s.Root.AddChild(dst)
	}
}

// selectLeaf walks from the root while the current node is fully expanded and
// has children, per spec §4.4 Selection.
func (s *Schedule) selectLeaf(g Graph) *Node {
	node := s.Root
	for {
		outgoing := g.OutgoingSuccessors(node.Tail())
		if len(node.Children) == 0 || !node.FullyExpanded(outgoing) {
			return node
		}

		var next *Node
		if node == s.Root && s.rng.Float64() < epsilonRoot {
			next = minNSelChild(node)
		} else {
			next = s.argmaxChildScore(node)
		}
		if next == nil {
			return node
		}
		node = next
	}
}

func minNSelChild(node *Node) *Node {
	var best *Node
	for _, c := range node.Children {
		if best == nil || c.NSel < best.NSel {
			best = c
		}
	}
	return best
}

func (s *Schedule) argmaxChildScore(node *Node) *Node {
	var best *Node
	bestScore := math.Inf(-1)
	for _, c := range node.Children {
		sc := s.childScore(c)
		if best == nil || sc > bestScore {
			best = c
			bestScore = sc
		}
	}
	return best
}

// expand implements spec §4.4 Expansion at the selected leaf.
func (s *Schedule) expand(node *Node, outgoing []string) *Node {
	var unseen []string
	for _, name := range outgoing {
		if _, ok := node.Children[name]; !ok {
			unseen = append(unseen, name)
		}
	}

	if len(unseen) > 0 {
		pool := unseen
		var preferred []string
		for _, name := range unseen {
			if !s.SinkStates[name] {
				preferred = append(preferred, name)
			}
		}
		if len(preferred) > 0 {
			pool = preferred
		}
		chosen := s.minVisitsTieBroken(pool)
		return node.AddChild(chosen)
	}

	if len(node.Children) == 0 {
		return node
	}
	names := make([]string, 0, len(node.Children))
	for name := range node.Children {
		names = append(names, name)
	}
	chosen := s.minVisitsTieBroken(names)
	return node.Children[chosen]
}

func (s *Schedule) minVisitsTieBroken(names []string) string {
	minVisits := -1
	var tied []string
	for _, name := range names {
		v := s.StateVisits[name]
		if minVisits == -1 || v < minVisits {
			minVisits = v
			tied = []string{name}
		} else if v == minVisits {
			tied = append(tied, name)
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}
	return tied[s.rng.Intn(len(tied))]
}

// ChooseState implements spec §4.4's select -> anti-stickiness check ->
// expand, returning the chosen leaf node and its rooted state path.
func (s *Schedule) ChooseState(g Graph) (*Node, []string) {
	leaf := s.selectLeaf(g)

	tail := leaf.Tail()
	s.SelectionCounter[tail]++
	if s.SelectionCounter[tail] >= maxConsecutiveSelections {
		if alt := s.randomRootChildExcept(tail); alt != nil {
			leaf = alt
		}
	}
	if s.SelectionCounter[tail] > 2*maxConsecutiveSelections {
		s.SelectionCounter = map[string]int{}
	}

	outgoing := g.OutgoingSuccessors(leaf.Tail())
	if len(outgoing) > 0 && !leaf.FullyExpanded(outgoing) {
		leaf = s.expand(leaf, outgoing)
	}
	return leaf, leaf.StatePath
}

// PickRootChildExcept exposes randomRootChildExcept for driver-level
// anti-stickiness (spec §4.6 step 2: "if the leaf is the root three
// rounds in a row, pick a random root-child instead"), which operates
// one layer above the scheduler's own per-tail anti-stickiness.
func (s *Schedule) PickRootChildExcept(exclude string) *Node {
	return s.randomRootChildExcept(exclude)
}

func (s *Schedule) randomRootChildExcept(exclude string) *Node {
	var candidates []*Node
	for tail, c := range s.Root.Children {
		if tail != exclude {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[s.rng.Intn(len(candidates))]
}

// boundedFieldsGain implements field_gain(n) = 1 - exp(-n/k), clamped to
// [0,1].
func boundedFieldsGain(n int, k float64) float64 {
	g := 1 - math.Exp(-float64(n)/k)
	return clamp01(g)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Backpropagate implements spec §4.4 reward computation and distribution.
// path is the sequence of nodes actually traversed during FSM replay
// (root-first); it may differ from the MCTS-selected path on alignment
// failures (spec §4.6). Returns the scalar reward r in [0,1].
func (s *Schedule) Backpropagate(path []*Node, newState, newTransition bool, errorReward float64, newFieldsCnt int) float64 {
	w := normWeights
	b2f := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}
	r := clamp01(w[0]*b2f(newState) + w[1]*b2f(newTransition) + w[2]*errorReward + w[3]*boundedFieldsGain(newFieldsCnt, fieldGainK))

	if len(path) > 0 {
		sumW := 0.0
		weights := make([]float64, len(path))
		for d := range path {
			weights[d] = math.Pow(depthGamma, float64(d))
			sumW += weights[d]
		}
		if sumW > 0 {
			for i, node := range path {
				node.AddReward(r * weights[i] / sumW)
			}
		}

		tail := path[len(path)-1].Tail()
		s.LastTerminals.Push(tail)
		if r <= 1e-9 {
			s.SinkHits[tail]++
		} else if s.SinkHits[tail] > 0 {
			s.SinkHits[tail]--
		}
	}
	return r
}

// PathFromFSMPath maps an FSM path's rooted state sequence onto MCTS tree
// nodes (spec §4.4's path_from_fsm_path), creating missing children as it
// descends. If verifyEdge is non-nil, each consecutive pair must satisfy it
// (callers pass an FSM edge check such as fsm.HasEdge). If allowRebase is
// false and pathStates[0] does not match the root's tail, an error is
// returned; if it is true, the path is hung under the root regardless.
func (s *Schedule) PathFromFSMPath(pathStates []string, allowRebase bool, verifyEdge func(src, dst string) bool) ([]*Node, error) {
	if len(pathStates) == 0 {
		return nil, fmt.Errorf("mcts: empty path")
	}
	if pathStates[0] != s.Root.Tail() {
		if !allowRebase {
			return nil, fmt.Errorf("mcts: path root %q does not match tree root %q", pathStates[0], s.Root.Tail())
		}
	}

	nodes := make([]*Node, 0, len(pathStates))
	cur := s.Root
	nodes = append(nodes, cur)
	for i := 1; i < len(pathStates); i++ {
		if verifyEdge != nil && !verifyEdge(pathStates[i-1], pathStates[i]) {
			return nil, fmt.Errorf("mcts: no transition %s -> %s", pathStates[i-1], pathStates[i])
		}
		cur = cur.AddChild(pathStates[i])
		nodes = append(nodes, cur)
	}
	return nodes, nil
}
