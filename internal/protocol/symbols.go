// Package protocol collects the fixed NAS/session-management symbol
// vocabularies named throughout spec §4.2, §4.6, and §6, so the driver,
// FSM learning, and socket layer share one definition instead of each
// hand-copying the literal lists. Grounded on
// _examples/original_source/core_fuzzer.py's symbol usage.
package protocol

// EnabledSymbols is the access-management "seeding" vocabulary driven
// once per symbol during the seeding phase (spec §4.6 step 8).
var EnabledSymbols = []string{
	"registrationRequest",
	"registrationComplete",
	"deregistrationRequest",
	"serviceRequest",
	"securityModeReject",
	"authenticationResponse",
	"authenticationFailure",
	"deregistrationAccept",
	"securityModeComplete",
	"identityResponse",
	"configurationUpdateComplete",
	"gmmStatus",
	"ulNasTransport",
}

// SessionManagementSymbols is the session-management vocabulary (spec §6).
var SessionManagementSymbols = []string{
	"PDUSessionEstablishmentRequest",
	"PDUSessionAuthenticationComplete",
	"PDUSessionModificationRequest",
	"PDUSessionModificationComplete",
	"PDUSessionModificationCommandReject",
	"PDUSessionReleaseRequest",
	"PDUSessionReleaseComplete",
	"gsmStatus",
}

// ProbeAlphabet is the fixed 12-symbol new-transition learning probe
// (spec §4.2 "FSM probe alphabet").
var ProbeAlphabet = []string{
	"registrationRequest",
	"registrationRequestGUTI",
	"registrationComplete",
	"deregistrationRequest",
	"serviceRequest",
	"securityModeReject",
	"authenticationResponse",
	"authenticationFailure",
	"deregistrationAccept",
	"securityModeComplete",
	"identityResponse",
	"configurationUpdateComplete",
}

// SeedingSymbols is EnabledSymbols followed by SessionManagementSymbols,
// the complete list driven during seeding (spec §4.6 step 8: "the full
// enabled symbol list ... plus the session-management symbols").
func SeedingSymbols() []string {
	out := make([]string, 0, len(EnabledSymbols)+len(SessionManagementSymbols))
	out = append(out, EnabledSymbols...)
	out = append(out, SessionManagementSymbols...)
	return out
}

// IsSessionManagement reports whether symbol is a session-management
// send_type (spec §4.6 step 9i: "if the seed is a session-management
// send_type, also probe the session function").
func IsSessionManagement(symbol string) bool {
	for _, s := range SessionManagementSymbols {
		if s == symbol {
			return true
		}
	}
	return false
}
