// Package mcts implements the two-tree MCTS scheduler from spec §4.4:
// MCTSNode/MCTSSchedule, grounded on
// _examples/original_source/objects/mcts_node.py and
// _examples/original_source/objects/mcts_schedule.py.
package mcts

import "math"

// Node is one MCTS tree node. Parent is a non-owning back-reference (spec
// §9: "model them as non-owning back-edges... avoid ownership cycles") —
// the tree owns every node via Children; Parent is never traversed for
// ownership purposes (no Save/free walks it).
type Node struct {
	StatePath []string
	Parent    *Node
	Children  map[string]*Node
	NSel      int
	NDet      int
	Reward    float64
}

// NewNode builds a node with the given rooted state path.
func NewNode(statePath []string, parent *Node) *Node {
	return &Node{StatePath: statePath, Parent: parent, Children: map[string]*Node{}}
}

// Tail returns the last state name on this node's path.
func (n *Node) Tail() string {
	if len(n.StatePath) == 0 {
		return ""
	}
	return n.StatePath[len(n.StatePath)-1]
}

// Depth is the distance from the root (root depth is 0).
func (n *Node) Depth() int {
	return len(n.StatePath) - 1
}

// UCT computes reward/n_sel + bias + rho*sqrt(2*ln(parent.n_sel)/n_sel),
// returning +Inf when NSel == 0 (spec §4.4). bias is the caller-supplied
// novelty(tail) term.
func (n *Node) UCT(rho, bias float64) float64 {
	if n.NSel == 0 {
		return math.Inf(1)
	}
	parentNSel := 1
	if n.Parent != nil && n.Parent.NSel > 0 {
		parentNSel = n.Parent.NSel
	}
	return n.Reward/float64(n.NSel) + bias + rho*math.Sqrt(2*math.Log(float64(parentNSel))/float64(n.NSel))
}

// AddChild creates (or returns the existing) child for the given tail
// state name, appending it to StatePath.
func (n *Node) AddChild(tail string) *Node {
	if c, ok := n.Children[tail]; ok {
		return c
	}
	path := append(append([]string(nil), n.StatePath...), tail)
	c := NewNode(path, n)
	n.Children[tail] = c
	return c
}

// FullyExpanded reports |children| >= |outgoing|.
func (n *Node) FullyExpanded(outgoing []string) bool {
	return len(n.Children) >= len(outgoing)
}

// AddReward adds to Reward and increments NSel (spec §4.4 add_reward).
func (n *Node) AddReward(r float64) {
	n.Reward += r
	n.NSel++
}
