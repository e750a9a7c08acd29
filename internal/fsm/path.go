package fsm

import "math"

// Path is an ordered replay sequence rooted at the FSM's initial state:
// |PathStates| = |InputSymbols| + 1 = |OutputSymbols| + 1. Grounded on
// objects/fsm.py's Path class.
type Path struct {
	PathStates   []string `json:"path_states"`
	InputSymbols []string `json:"input_symbols"`
	OutputSymbols []string `json:"output_symbols"`
	Count        int      `json:"count"`
	Succ         int      `json:"succ"`
}

// NewPath constructs a zero-count, zero-succ path.
func NewPath(states, inputs, outputs []string) *Path {
	return &Path{PathStates: states, InputSymbols: inputs, OutputSymbols: outputs}
}

// AddCount increments the attempt counter.
func (p *Path) AddCount() { p.Count++ }

// AddSucc increments the terminal-reached counter.
func (p *Path) AddSucc() { p.Succ++ }

// Tail returns the last state name on the path, or "" if empty.
func (p *Path) Tail() string {
	if len(p.PathStates) == 0 {
		return ""
	}
	return p.PathStates[len(p.PathStates)-1]
}

// pathSelector hyperparameters, spec §4.3.
const (
	lambdaLen = 0.2
	cUCB      = 1.2
	epsExp    = 0.2
)

// score implements spec §4.3's total = succ_score + len_score + ucb.
func pathScore(p *Path, totalAttempts int) float64 {
	pathLen := len(p.InputSymbols)
	if pathLen < 1 {
		pathLen = 1
	}
	succScore := 0.0
	if p.Count > 0 {
		succScore = float64(p.Succ) / float64(p.Count)
	}
	lenScore := lambdaLen * 1.0 / float64(pathLen)
	denom := p.Count
	if denom < 1 {
		denom = 1
	}
	t := totalAttempts
	if t < 1 {
		t = 1
	}
	ucb := cUCB * math.Sqrt(math.Log(float64(t))/float64(denom))
	return succScore + lenScore + ucb
}

// SelectPath implements spec §4.3's per-state path selector: with
// probability epsExp returns the shortest path (ties go to the
// first-encountered minimum, matching Python's min() stability);
// otherwise returns the argmax-scoring path. On return it increments the
// chosen path's Count and the state's Count. Returns nil if there are no
// paths.
func SelectPath(paths []*Path, stateCount *int, rng Rand) *Path {
	if len(paths) == 0 {
		return nil
	}

	if rng.Float64() < epsExp {
		best := paths[0]
		bestLen := effectiveLen(best)
		for _, p := range paths[1:] {
			if l := effectiveLen(p); l < bestLen {
				best = p
				bestLen = l
			}
		}
		best.AddCount()
		*stateCount++
		return best
	}

	totalAttempts := 0
	for _, p := range paths {
		c := p.Count
		if c < 1 {
			c = 1
		}
		totalAttempts += c
	}

	best := paths[0]
	bestScore := pathScore(best, totalAttempts)
	for _, p := range paths[1:] {
		if s := pathScore(p, totalAttempts); s > bestScore {
			best = p
			bestScore = s
		}
	}
	best.AddCount()
	*stateCount++
	return best
}

func effectiveLen(p *Path) int {
	l := len(p.InputSymbols)
	if l < 1 {
		return 1
	}
	return l
}

// Rand is the minimal random source the fsm/mcts packages need, so every
// randomized decision (spec §9) can be driven by a seeded source in tests.
type Rand interface {
	Float64() float64
	Intn(n int) int
}
