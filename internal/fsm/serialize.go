package fsm

import "encoding/json"

// fsmJSON is the on-wire shape from spec §4.2: keys states, init_state,
// transitions, new_state_count, edge_hits (list of [src,input,output,dst,count]).
type fsmJSON struct {
	States        []*State     `json:"states"`
	InitState     string       `json:"init_state"`
	Transitions   []Transition `json:"transitions"`
	NewStateCount int          `json:"new_state_count"`
	EdgeHits      [][5]any     `json:"edge_hits"`
}

// Save serializes the FSM to JSON, matching objects/fsm.py's to_json.
func (f *FSM) Save() ([]byte, error) {
	hits := make([][5]any, 0, len(f.EdgeHits))
	for k, v := range f.EdgeHits {
		hits = append(hits, [5]any{k.Src, k.Input, k.Output, k.Dst, v})
	}
	return json.MarshalIndent(fsmJSON{
		States:        f.States,
		InitState:     f.InitState,
		Transitions:   f.Transitions,
		NewStateCount: f.NewStateCount,
		EdgeHits:      hits,
	}, "", "    ")
}

// Load parses an FSM snapshot, the inverse of Save — equivalent to
// objects/fsm.py's FSM.from_json. Round-trip law (spec §8): Load(Save(f))
// is observationally equal to f on every method, up to transition-list
// ordering.
func Load(data []byte) (*FSM, error) {
	var raw struct {
		States        []*State        `json:"states"`
		InitState     string           `json:"init_state"`
		Transitions   []Transition     `json:"transitions"`
		NewStateCount int              `json:"new_state_count"`
		EdgeHits      []json.RawMessage `json:"edge_hits"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	f := &FSM{
		States:           raw.States,
		InitState:        raw.InitState,
		Transitions:      raw.Transitions,
		NewStateCount:    raw.NewStateCount,
		EdgeHits:         make(map[EdgeKey]int, len(raw.EdgeHits)),
		MaxPathDepth:     12,
		MaxPathsPerState: 8,
	}
	for _, rec := range raw.EdgeHits {
		var tuple [5]json.RawMessage
		if err := json.Unmarshal(rec, &tuple); err != nil {
			return nil, err
		}
		var src, input, output, dst string
		var cnt int
		if err := json.Unmarshal(tuple[0], &src); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(tuple[1], &input); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(tuple[2], &output); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(tuple[3], &dst); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(tuple[4], &cnt); err != nil {
			return nil, err
		}
		f.EdgeHits[EdgeKey{src, input, output, dst}] = cnt
	}
	return f, nil
}
