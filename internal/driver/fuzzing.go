package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corefuzz/corefuzz/internal/corpus"
	"github.com/corefuzz/corefuzz/internal/logscan"
	"github.com/corefuzz/corefuzz/internal/protocol"
)

// crashScanLookaround is the ±N line context window the core-log
// classifier uses (spec §4.7: "a context window of ±6 lines").
const crashScanLookaround = 6

// runFuzzingPhase executes the single-iteration fuzzing inner loop
// (spec §4.6 step 9).
func (d *Driver) runFuzzingPhase(ctx context.Context, state string) (fuzzResult, error) {
	var result fuzzResult

	// 9a: open field-count window, send syncDown.
	token, err := d.Store.BeginFieldWindow(ctx)
	if err != nil {
		return result, err
	}
	if _, err := d.Client.SendSymbol("syncDown", nil); err != nil {
		return result, err
	}

	// 9b: pull an interesting seed.
	seed, err := d.Store.GetInteresting(ctx, state)
	if err != nil {
		// No interesting seed is not an I/O fault; just skip fuzzing
		// this round.
		return result, nil
	}

	// 9c: deliver the incoming-message marker, preceded by an
	// RRC-Release for serviceRequest-origin seeds.
	rrcRelease := func() error {
		_, err := d.Client.SendSymbol("serviceRequest", nil)
		return err
	}
	if seed.SendType == "serviceRequest" {
		if err := rrcRelease(); err != nil {
			return result, err
		}
	}
	if _, err := d.Client.SendSymbol(fmt.Sprintf("incomingMessage_%d", seed.Size), nil); err != nil {
		return result, err
	}

	// 9d: deliver the mutated payload, read the JSON response.
	rawResp, err := d.Client.SendFuzzingMessage([]byte(seed.NewMsg))
	if err != nil {
		return result, err
	}

	// 9e: a blank or decode-error response disqualifies the seed and
	// ends this iteration early.
	trimmed := strings.TrimSpace(rawResp)
	if trimmed == "" || strings.EqualFold(trimmed, "decode error") {
		return result, d.Store.ResetInteresting(ctx, seed)
	}

	resp := parseFuzzResponse(rawResp)

	// 9f: novelty against the response, unless this was a raw-byte mutation.
	var isInteresting bool
	if !resp.ByteMut {
		isInteresting, err = d.Store.CheckNewResponse(ctx, state, seed.SendType, resp.RetMsg, resp.MMStatus)
		if err != nil {
			return result, err
		}
		if isInteresting {
			if err := d.Store.AddEnergy(ctx, seed, 1.0); err != nil {
				return result, err
			}
		}
	}

	// 9g: drain the radio-side log for a new cause.
	var errorCause string
	var ifError bool
	if d.GNB != nil {
		if cause, found, err := d.GNB.DrainErrorSinceLastRead(); err == nil && found {
			errorCause = cause
			ifError = true
			if novel, err := d.Store.CheckNewCause(ctx, state, seed.SendType, errorCause); err == nil {
				isInteresting = isInteresting || novel
			}
		}
	}

	// 9h: probe the access function via the core log.
	var ifCrash, ifCrashSM bool
	if d.CoreLogPath != "" {
		incidents, err := logscan.ScanCrashIncidents(d.CoreLogPath, crashScanLookaround)
		if err == nil {
			if ok, amfIncidents := logscan.CheckAMFCrash(incidents); ok {
				ifCrash = true
				result.AMFCrash = true
				d.copyCoreLogToCrashFile("amf", amfIncidents)
			}
			// 9i: if the seed is a session-management send_type, also
			// probe the session function.
			if protocol.IsSessionManagement(seed.SendType) {
				if ok, smIncidents := logscan.CheckSMFCrash(incidents); ok {
					ifCrashSM = true
					result.SMFCrash = true
					d.copyCoreLogToCrashFile("smf", smIncidents)
				}
			}
		}
	}

	// 9j: evaluate the Oracle violation.
	var violation bool
	if state := d.FSM.GetState(state); state != nil && state.Oracle != nil {
		violation = state.Oracle.QueryMessage(seed.SendType, resp.RetType, resp.Sht, resp.Secmod)
		if violation {
			if novel, err := d.Store.CheckNewViolation(ctx, state.Name, seed.SendType, resp.RetType, resp.Sht, resp.Secmod); err == nil {
				violation = novel
			}
		}
	}
	result.Violation = violation

	// 9k: store the fuzz record.
	record := &corpus.Seed{
		Worker:        d.WID,
		IfFuzz:        true,
		State:         seed.State,
		SendType:      seed.SendType,
		RetType:       resp.RetType,
		IfCrash:       ifCrash,
		IfCrashSM:     ifCrashSM,
		IfError:       ifError,
		ErrorCause:    errorCause,
		IsInteresting: isInteresting,
		Sht:           resp.Sht,
		Secmod:        resp.Secmod,
		Size:          len(seed.NewMsg),
		BaseMsg:       seed.NewMsg,
		NewMsg:        resp.NewMsg,
		RetMsg:        resp.RetMsg,
		MutateCount:   seed.MutateCount,
		Violation:     violation,
		MMStatus:      resp.MMStatus,
		ByteMut:       resp.ByteMut,
	}
	if err := d.Store.StoreNewMessage(ctx, record); err != nil {
		return result, err
	}

	// 9l: new-transition learning.
	if resp.RetType != "" && !resp.ByteMut && !d.FSM.SearchNewTransition(state, seed.SendType, resp.RetType) {
		composite := formatComposite(seed.SendType, resp.NewMsg, resp.Secmod, resp.Sht)
		learned, err := d.learnNewTransition(state, composite, resp.RetType)
		if err == nil {
			result.IsNewTransition = learned.IsNewTransition
			result.IsNewState = learned.IsNewState
		}
	}

	if cnt, err := d.Store.CountWindowFields(ctx, d.WID, token); err == nil {
		result.NewFieldsCnt = cnt
	}

	// 9m: resynchronize and close sockets.
	if _, err := d.Client.SendSymbol("syncUp", nil); err != nil {
		return result, err
	}
	d.Client.Close()

	return result, nil
}

// fuzzResponse is the permissively-parsed JSON response shape from
// spec §6/§9: "missing key → absent; wrong type → treated as empty."
type fuzzResponse struct {
	RetType  string
	RetMsg   string
	NewMsg   string
	Sht      int
	Secmod   int
	MMStatus string
	ByteMut  bool
}

func parseFuzzResponse(raw string) fuzzResponse {
	var resp fuzzResponse
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		resp.RetType = s
		resp.RetMsg = s
		return resp
	}
	obj := parsePermissiveJSON(s)
	resp.RetType = stringField(obj, "ret_type")
	resp.RetMsg = stringField(obj, "ret_msg")
	resp.NewMsg = stringField(obj, "new_msg")
	resp.MMStatus = stringField(obj, "mm_status")
	resp.Sht = intField(obj, "sht")
	resp.Secmod = intField(obj, "secmod")
	resp.ByteMut = boolField(obj, "byte_mut")
	return resp
}

func (d *Driver) copyCoreLogToCrashFile(component string, incidents []logscan.Incident) {
	if d.CrashDir == "" || len(incidents) == 0 {
		return
	}
	if err := os.MkdirAll(d.CrashDir, 0o755); err != nil {
		return
	}
	data, err := os.ReadFile(d.CoreLogPath)
	if err != nil {
		return
	}
	name := fmt.Sprintf("crash_%s_worker%d_%s.log", component, d.WID, time.Now().Format("20060102_150405"))
	_ = os.WriteFile(filepath.Join(d.CrashDir, name), data, 0o644)
}
