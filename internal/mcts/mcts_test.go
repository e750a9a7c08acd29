package mcts

import "testing"

type fakeRand struct {
	floats []float64
	fi     int
	ints   []int
	ii     int
}

func (f *fakeRand) Float64() float64 {
	if f.fi >= len(f.floats) {
		return 0.99
	}
	v := f.floats[f.fi]
	f.fi++
	return v
}

func (f *fakeRand) Intn(n int) int {
	if f.ii >= len(f.ints) {
		return 0
	}
	v := f.ints[f.ii]
	f.ii++
	return v
}

type graphStub map[string][]string

func (g graphStub) OutgoingSuccessors(name string) []string { return g[name] }

func TestUCTInfiniteWhenUnvisited(t *testing.T) {
	root := NewNode([]string{"A"}, nil)
	child := root.AddChild("B")
	if got := child.UCT(1.4, 0); got != child.UCT(1.4, 0) {
		t.Fatal("NaN")
	}
	if !isInf(child.UCT(1.4, 0)) {
		t.Fatalf("expected +Inf for unvisited child, got %v", child.UCT(1.4, 0))
	}
}

func isInf(f float64) bool { return f > 1e300 }

func TestNoveltyMonotonicity(t *testing.T) {
	s := NewSchedule("A", &fakeRand{})
	s.StateVisits["x"] = 1
	s.StateVisits["y"] = 10
	if s.novelty("x") <= s.novelty("y") {
		t.Fatal("novelty should decrease as visits increase")
	}
}

func TestBackpropagateReturnsBoundedReward(t *testing.T) {
	s := NewSchedule("A", &fakeRand{})
	b := s.Root.AddChild("B")
	path := []*Node{s.Root, b}

	r := s.Backpropagate(path, true, true, 1.0, 100)
	if r < 0 || r > 1 {
		t.Fatalf("reward out of [0,1]: %v", r)
	}
	if s.Root.Reward/float64(s.Root.NSel) < 0 || s.Root.Reward/float64(s.Root.NSel) > 1 {
		t.Fatalf("root reward/n_sel out of [0,1]")
	}
}

func TestAntiStickinessReplacesLeafAfterMaxConsec(t *testing.T) {
	g := graphStub{"A": {"B", "C"}, "B": {}, "C": {}}
	s := NewSchedule("A", &fakeRand{floats: []float64{0.99}})
	s.Root.AddChild("B")
	altC := s.Root.AddChild("C")
	// C has been selected once and B never, so B's UCT is +Inf and
	// selectLeaf lands on B; that is B's tenth consecutive selection.
	altC.AddReward(0)

	s.SelectionCounter["B"] = maxConsecutiveSelections - 1
	leaf, _ := s.ChooseState(g)
	if leaf.Tail() != "C" {
		t.Fatalf("expected anti-stickiness to replace B by root child C, got %s", leaf.Tail())
	}
	if s.SelectionCounter["B"] >= maxConsecutiveSelections+1 {
		t.Fatalf("selection counter should have triggered anti-stickiness reset path")
	}
}

func TestFieldGainBounded(t *testing.T) {
	if g := boundedFieldsGain(0, fieldGainK); g != 0 {
		t.Fatalf("expected 0 gain for 0 new fields, got %v", g)
	}
	if g := boundedFieldsGain(1000, fieldGainK); g <= 0.99 || g > 1 {
		t.Fatalf("expected gain to saturate near 1, got %v", g)
	}
}

func TestPathFromFSMPathCreatesMissingChildren(t *testing.T) {
	s := NewSchedule("A", &fakeRand{})
	nodes, err := s.PathFromFSMPath([]string{"A", "B", "C"}, false, func(src, dst string) bool { return true })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	if nodes[2].Tail() != "C" {
		t.Fatalf("expected tail C, got %s", nodes[2].Tail())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewSchedule("A", &fakeRand{})
	b := s.Root.AddChild("B")
	b.AddReward(0.5)
	s.SinkHits["B"] = 2

	data, err := s.Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(data, &fakeRand{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.StateVisits["B"] != 1 {
		t.Fatalf("expected state_visits rebuilt from n_sel sums, got %d", loaded.StateVisits["B"])
	}
	if loaded.SinkHits["B"] != 2 {
		t.Fatalf("sink hits lost in round-trip")
	}
}
