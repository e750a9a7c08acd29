// Package driver implements the per-round fuzzing algorithm from spec
// §4.6: state selection via the two MCTS schedulers, alignment replay,
// seeding, the fuzzing inner loop, and reward-shaped backpropagation.
// Grounded on _examples/original_source/core_fuzzer.py's main loop.
package driver

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/corefuzz/corefuzz/internal/corpus"
	"github.com/corefuzz/corefuzz/internal/fsm"
	"github.com/corefuzz/corefuzz/internal/logscan"
	"github.com/corefuzz/corefuzz/internal/mcts"
	"github.com/corefuzz/corefuzz/internal/protocol"
	"github.com/corefuzz/corefuzz/internal/ueclient"
)

// rootStreakLimit is the driver-level anti-stickiness threshold (spec
// §4.6 step 2: "if the leaf is the root three rounds in a row").
const rootStreakLimit = 3

// Driver holds one worker's process-local state: both FSMs, both MCTS
// schedules, the corpus store, the UE/gNB sockets, and the log scanners.
// Per spec §5, all of this except Store is process-local to the worker.
type Driver struct {
	WID int

	FSM   *fsm.FSM // access-management
	FSMSM *fsm.FSM // session-management

	ScheduleAMF *mcts.Schedule
	ScheduleSMF *mcts.Schedule

	Store  corpus.Store
	Client *ueclient.Client
	GNB    *logscan.GNBScanner

	CoreLogPath string
	CrashDir    string

	Rng *rand.Rand

	ErrorHits  map[string]int
	rootStreak int

	Log *logrus.Entry
}

// New builds a Driver wiring the components a round needs.
func New(wid int, f, fsm *fsm.FSM, amf, smf *mcts.Schedule, store corpus.Store, client *ueclient.Client, gnb *logscan.GNBScanner, coreLogPath, crashDir string, rng *rand.Rand, log *logrus.Entry) *Driver {
	return &Driver{
		WID:         wid,
		FSM:         f,
		FSMSM:       fsm,
		ScheduleAMF: amf,
		ScheduleSMF: smf,
		Store:       store,
		Client:      client,
		GNB:         gnb,
		CoreLogPath: coreLogPath,
		CrashDir:    crashDir,
		Rng:         rng,
		ErrorHits:   map[string]int{},
		Log:         log,
	}
}

// RoundOutcome summarizes what happened in one round, for the master's
// per-slot stats and for tests.
type RoundOutcome struct {
	AMFTarget      string
	AlignedOK      bool
	IsNewState     bool
	IsNewTransition bool
	ErrorBonus     float64
	NewFieldsCnt   int
	Reward         float64
}

// rngIntn adapts *rand.Rand to the small Intn/Float64 interfaces used
// across fsm/mcts/ueclient.
type rngIntn struct{ r *rand.Rand }

func (w rngIntn) Intn(n int) int    { return w.r.Intn(n) }
func (w rngIntn) Float64() float64  { return w.r.Float64() }

// RunRound executes one full fuzz round (spec §4.6 steps 1-10). A
// returned error means the round hit an unrecoverable I/O fault; every
// other disposition (alignment failure, no interesting seed, crash) is
// reported in the outcome and does not stop the worker loop, matching
// spec §7's "a single round is the unit of failure isolation."
func (d *Driver) RunRound(ctx context.Context) (RoundOutcome, error) {
	rngAdapter := rngIntn{d.Rng}

	// Step 2: choose the access-management target, with driver-level
	// anti-stickiness against the root tail.
	amfNode, _ := d.ScheduleAMF.ChooseState(d.FSM)
	rootTail := d.ScheduleAMF.Root.Tail()
	if amfNode.Tail() == rootTail {
		d.rootStreak++
		if d.rootStreak >= rootStreakLimit {
			if alt := d.ScheduleAMF.PickRootChildExcept(rootTail); alt != nil {
				amfNode = alt
			}
			d.rootStreak = 0
		}
	} else {
		d.rootStreak = 0
	}
	amfTarget := amfNode.Tail()

	// If the access-management target is session-management reachable,
	// also pick a session-management target on its own scheduler.
	var smNode *mcts.Node
	amfState := d.FSM.GetState(amfTarget)
	if amfState != nil && amfState.Oracle != nil && amfState.Oracle.Tag == "R" {
		smNode, _ = d.ScheduleSMF.ChooseState(d.FSMSM)
	}

	outcome := RoundOutcome{AMFTarget: amfTarget}

	// Step 3-4: path selection + alignment replay for the access-management target.
	aligned, traversed, inputSeq, retSeq, err := d.alignToTarget(d.FSM, amfState, rngAdapter)
	if err != nil {
		return outcome, err
	}
	outcome.AlignedOK = aligned

	if !aligned {
		// Step 6: alignment failure — decrement counters, account
		// unproductive, continue.
		if amfState != nil {
			amfState.Count--
		}
		if smNode != nil {
			if smState := d.FSMSM.GetState(smNode.Tail()); smState != nil {
				smState.Count--
			}
		}
		return outcome, nil
	}

	reached := traversed[len(traversed)-1]
	if reached != amfTarget {
		// Step 5: penalize the miss.
		d.ScheduleAMF.SinkHits[reached] += 2
		d.ScheduleAMF.StateVisits[amfTarget] += 3
	} else {
		// Step 7: success bookkeeping.
		if amfState != nil {
			amfState.SetVisited()
		}
		d.FSM.MarkEdgesFromSeq(traversed, inputSeq, retSeq)
		for _, s := range traversed {
			d.ScheduleAMF.StateVisits[s]++
		}
	}

	path, err := d.ScheduleAMF.PathFromFSMPath(traversed, true, d.FSM.HasEdge)
	if err != nil {
		return outcome, err
	}

	// Seeding phase (step 8).
	state := amfTarget
	stateObj := d.FSM.GetState(state)
	seeded, err := d.runSeedingPhase(stateObj)
	if err != nil {
		return outcome, err
	}
	_ = seeded

	var errorBonus float64
	var newFieldsCnt int
	var isNewTransition, isNewState bool

	if stateObj != nil && stateObj.IsInit {
		// Fuzzing phase (step 9).
		res, ferr := d.runFuzzingPhase(ctx, state)
		if ferr != nil {
			return outcome, ferr
		}
		isNewTransition = res.IsNewTransition
		isNewState = res.IsNewState
		newFieldsCnt = res.NewFieldsCnt

		violationOrCrash := res.Violation || res.AMFCrash || res.SMFCrash
		if violationOrCrash {
			d.ErrorHits[state]++
			errorBonus = 1.0 / math.Sqrt(float64(d.ErrorHits[state]))
		}
	}

	// Step 10: reward shaping + backpropagation.
	r := d.ScheduleAMF.Backpropagate(path, isNewState, isNewTransition, errorBonus, newFieldsCnt)
	outcome.IsNewState = isNewState
	outcome.IsNewTransition = isNewTransition
	outcome.ErrorBonus = errorBonus
	outcome.NewFieldsCnt = newFieldsCnt
	outcome.Reward = r

	if smNode != nil {
		d.ScheduleSMF.Backpropagate([]*mcts.Node{smNode}, false, isNewTransition, errorBonus, newFieldsCnt)
	}

	return outcome, nil
}

// alignToTarget runs exec_sequence_align from the FSM's init state to
// target using the state's path selector, and returns the actual input
// symbols traversed alongside the state/response sequences — MarkEdgesFromSeq
// must see the same path that was selected and replayed this round (spec
// §8: edge_hits must reflect the sequence actually aligned).
func (d *Driver) alignToTarget(f *fsm.FSM, target *fsm.State, rng rngIntn) (bool, []string, []string, []string, error) {
	if target == nil {
		return false, []string{f.InitState}, nil, nil, nil
	}
	p := target.SelectPath(rng)
	if p == nil {
		return false, []string{f.InitState}, nil, nil, nil
	}

	send := func(symbol string) (string, error) {
		return d.Client.SendSymbol(symbol, nil)
	}
	res, err := ueclient.ExecSequenceAlign(f, rng, send, f.InitState, p.InputSymbols)
	if err != nil {
		return false, res.StateSeq, p.InputSymbols, res.RetSeq, err
	}
	if res.OK {
		p.AddSucc()
	}
	return res.OK, res.StateSeq, p.InputSymbols, res.RetSeq, nil
}

// seedingResult reports how many of the seeding symbols produced a
// non-blank response that was stored.
type seedingResult struct {
	interestingCount int
}

// runSeedingPhase drives the full enabled+session-management symbol
// list once each, storing every observed response as a non-fuzz seed,
// then checks the seed threshold (spec §4.6 step 8).
func (d *Driver) runSeedingPhase(state *fsm.State) (seedingResult, error) {
	var result seedingResult
	if state == nil {
		return result, nil
	}

	out, err := d.Client.SendSymbol("enableFuzzing", nil)
	if err != nil {
		return result, err
	}
	if strings.TrimSpace(out) != "Start fuzzing" || state.IsInit {
		return result, nil
	}

	for _, sym := range protocol.SeedingSymbols() {
		raw, err := d.Client.SendSymbol(sym, nil)
		if err != nil {
			continue
		}
		seed := parseSeedResponse(d.WID, state.Name, sym, raw)
		if seed == nil {
			continue
		}
		seed.IfFuzz = false
		seed.IsInteresting = true
		if err := d.Store.StoreNewMessage(context.Background(), seed); err == nil {
			result.interestingCount++
		}
	}

	ok, err := d.Store.CheckSeedMsg(context.Background(), state.Name)
	if err != nil {
		return result, err
	}
	state.IsInit = ok
	return result, nil
}

// parseSeedResponse builds a non-fuzz Seed from a raw socket response,
// returning nil only if the response is blank. A non-JSON response is kept,
// with RetType taken from CanonicalRet.
func parseSeedResponse(worker int, state, sendType, raw string) *corpus.Seed {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	retType := ueclient.CanonicalRet(raw)
	return &corpus.Seed{
		Worker:   worker,
		State:    state,
		SendType: sendType,
		RetType:  retType,
		RetMsg:   raw,
		Size:     len(raw),
	}
}

// fuzzResult carries the per-round signals the fuzzing phase produces
// for reward shaping.
type fuzzResult struct {
	Violation       bool
	AMFCrash        bool
	SMFCrash        bool
	IsNewTransition bool
	IsNewState      bool
	NewFieldsCnt    int
}

func formatComposite(sendType, newMsg string, secmod, sht int) string {
	return fmt.Sprintf("%s:%s:%d:%d", sendType, newMsg, secmod, sht)
}

func secmodShtFromSeed(s *corpus.Seed) (int, int) {
	return s.Secmod, s.Sht
}
