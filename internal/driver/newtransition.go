package driver

import (
	"strings"

	"github.com/corefuzz/corefuzz/internal/protocol"
	"github.com/corefuzz/corefuzz/internal/ueclient"
)

// maxProbeAttempts bounds retries per probe symbol (spec §4.2: "Retry up
// to 10 attempts per symbol on timeouts or mismatches; abandon learning
// on exhaustion").
const maxProbeAttempts = 10

// learnResult reports whether new-transition learning actually appended
// a transition, and whether that required minting a new state.
type learnResult struct {
	IsNewTransition bool
	IsNewState      bool
}

// learnNewTransition implements spec §4.2's new-transition learning
// algorithm: for every symbol in the probe alphabet, independently
// reset/reconnect the UE, replay compositeInput and verify the output
// still matches retType, then send the probe symbol — retrying that
// whole per-symbol sequence up to maxProbeAttempts times on a transport
// error, a replay mismatch, or an empty response. Each probe symbol can
// move the simulated UE's NAS state, so every probe must start from a
// freshly re-diverged session rather than wherever the previous probe
// left the UE (the observed self-loop vector otherwise corrupts the
// new-state minting in MatchStateBySelfLoopVector below).
func (d *Driver) learnNewTransition(state, compositeInput, retType string) (learnResult, error) {
	var result learnResult

	alphabet := protocol.ProbeAlphabet
	observed := make([]string, 0, len(alphabet))
	for _, sym := range alphabet {
		out, ok := d.replayAndProbeWithRetries(compositeInput, retType, sym)
		if !ok {
			// Probe exhaustion: abandon learning silently.
			return result, nil
		}
		observed = append(observed, out)
	}

	if match := d.FSM.MatchStateBySelfLoopVector(alphabet, observed); match != nil {
		d.FSM.AddTransition(state, compositeInput, retType, match.Name)
		result.IsNewTransition = true
		d.FSM.RefreshPaths()
		return result, nil
	}

	newState := d.FSM.AddNewState()
	d.FSM.AddTransition(state, compositeInput, retType, newState.Name)
	for i, sym := range alphabet {
		d.FSM.AddTransition(newState.Name, sym, observed[i], newState.Name)
	}
	newState.Oracle.DecideState([]string{compositeInput})
	result.IsNewTransition = true
	result.IsNewState = true
	d.FSM.RefreshPaths()
	return result, nil
}

// replayAndProbeWithRetries runs one full reset/connect/replay/verify/probe
// attempt for sym, retrying up to maxProbeAttempts times whenever the UE
// fails to reconnect, the replay of compositeInput no longer reproduces
// retType, or the probe comes back empty (the UE may have crashed),
// matching core_fuzzer.py's per-symbol while-i<10 loop.
func (d *Driver) replayAndProbeWithRetries(compositeInput, retType, sym string) (string, bool) {
	for attempt := 0; attempt < maxProbeAttempts; attempt++ {
		if err := d.resetAndReconnectUE(); err != nil {
			continue
		}
		replayOut, err := d.Client.SendFuzzingMessage([]byte(compositeInput))
		if err != nil {
			continue
		}
		if ueclient.CanonicalRet(replayOut) != retType {
			continue
		}
		out, err := d.Client.SendSymbol(sym, nil)
		if err != nil || strings.TrimSpace(out) == "" {
			continue
		}
		return ueclient.CanonicalRet(out), true
	}
	return "", false
}

// resetAndReconnectUE tears down and re-establishes the main UE socket
// before a learning replay, matching core_fuzzer.py's "reset UE,
// connect" step.
func (d *Driver) resetAndReconnectUE() error {
	d.Client.Close()
	return d.Client.ConnectUE()
}
