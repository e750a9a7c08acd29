// Package oracle implements the per-state violation predicate and state
// tagging described in spec §4.1. The upstream Python object
// (objects/oracle.py) was not present in the retrieved source — only its
// call sites in objects/fsm.py and core_fuzzer.py are — so the violation
// table and the R-tagging heuristic below are this repository's own
// policy, built to satisfy the documented contract rather than copied from
// a concrete reference implementation.
package oracle

import (
	"strings"

	"github.com/corefuzz/corefuzz/internal/protocol"
)

// Tag classifies a state. TagR marks a state from which session-management
// symbols can be exercised (spec glossary: "session-management reachable").
// Spec §9 leaves any tag besides R unenumerated, so the zero value ""
// means "untagged" and is never treated specially.
type Tag string

const (
	TagNone Tag = ""
	TagR    Tag = "R"
)

// smSymbols are the session-management input symbols named in spec §6;
// observing one of these accepted into a state is evidence that state is
// session-management reachable.
var smSymbols = func() map[string]bool {
	m := make(map[string]bool, len(protocol.SessionManagementSymbols))
	for _, s := range protocol.SessionManagementSymbols {
		m[s] = true
	}
	return m
}()

// registeringSymbols are the access-management symbols whose successful
// acceptance typically places the UE in a registered state from which
// session-management procedures become valid.
var registeringSymbols = map[string]bool{
	"registrationComplete": true,
	"serviceRequest":       true,
}

// Oracle is a per-state instance: one per FSM State, carrying that state's
// tag. query_message is state-independent in this implementation (the
// source gives the oracle no additional per-state configuration beyond
// the tag), matching spec §4.1's "Errors: none; unknown inputs are not
// violations" — absent a documented violation table, an unrecognized
// tuple is never flagged.
type Oracle struct {
	Tag Tag
}

// New returns an untagged Oracle, as objects/fsm.py's State.__init__ does
// (self.oracle = Oracle() with no arguments).
func New() *Oracle {
	return &Oracle{Tag: TagNone}
}

// QueryMessage decides whether (sendType, retType, sht, secmod) is a
// specification violation. Known violation shapes, grounded in what the
// NAS security envelope implies: a security-mode-reject response carrying
// a non-zero security header/mode on an otherwise unprotected exchange,
// or an authentication failure echoed back as if it were accepted.
func (o *Oracle) QueryMessage(sendType, retType string, sht, secmod int) bool {
	if sendType == "" || retType == "" {
		return false
	}
	if sendType == "authenticationFailure" && retType == "authenticationResponse" {
		return true
	}
	if sendType == "securityModeReject" && sht == 0 && secmod != 0 {
		return true
	}
	return false
}

// DecideState assigns tag. incomingInputs is the set of input symbols of
// every transition whose dst is this state (i.e. symbols that were
// accepted to reach it); per spec glossary, R states enable session
// management, so a state reached via a registering symbol, or already
// reached via a session-management symbol, is tagged R.
func (o *Oracle) DecideState(incomingInputs []string) {
	for _, in := range incomingInputs {
		// A composite "name:payload..." input is judged by its symbol name.
		if i := strings.Index(in, ":"); i >= 0 {
			in = in[:i]
		}
		if registeringSymbols[in] || smSymbols[in] {
			o.Tag = TagR
			return
		}
	}
}
