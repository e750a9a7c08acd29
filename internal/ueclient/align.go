package ueclient

// Graph is the subset of *fsm.FSM alignment replay needs — kept as a
// local interface (rather than importing internal/fsm) so ueclient has
// no dependency on the FSM package's representation.
type Graph interface {
	CandidateDestinations(src, input, output string) []string
	CandidateDestinationsByInput(src, input string) []string
}

// Rand is the seeded random source alignment replay uses to break ties
// among candidate destinations, mirroring random.choice(cand).
type Rand interface {
	Intn(n int) int
}

// AlignResult is exec_sequence_align's return shape: whether the whole
// path replayed cleanly, the state sequence actually observed, and the
// canonicalized response sequence.
type AlignResult struct {
	OK       bool
	StateSeq []string
	RetSeq   []string
}

// Sender abstracts sending one input symbol and getting back a raw
// response, so ExecSequenceAlign can be unit tested without a socket.
type Sender func(symbol string) (string, error)

// ExecSequenceAlign replays path's input symbols from startState,
// following the FSM edge that matches the observed canonicalized
// response at each step (or, failing that, any edge on that input),
// stopping early if neither exists — matching
// core_fuzzer.py's exec_sequence_align.
func ExecSequenceAlign(g Graph, rng Rand, send Sender, startState string, inputSymbols []string) (AlignResult, error) {
	if len(inputSymbols) == 0 {
		return AlignResult{OK: true, StateSeq: []string{startState}}, nil
	}
	s := startState
	stateSeq := []string{s}
	var retSeq []string

	for _, act := range inputSymbols {
		raw, err := send(act)
		if err != nil {
			return AlignResult{OK: false, StateSeq: stateSeq, RetSeq: retSeq}, err
		}
		outCanonical := CanonicalRet(raw)
		retSeq = append(retSeq, outCanonical)

		cand := g.CandidateDestinations(s, act, outCanonical)
		if len(cand) == 0 {
			cand = g.CandidateDestinationsByInput(s, act)
			if len(cand) == 0 {
				return AlignResult{OK: false, StateSeq: stateSeq, RetSeq: retSeq}, nil
			}
		}
		s = cand[rng.Intn(len(cand))]
		stateSeq = append(stateSeq, s)
	}
	return AlignResult{OK: true, StateSeq: stateSeq, RetSeq: retSeq}, nil
}
