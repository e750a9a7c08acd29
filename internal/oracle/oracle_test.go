package oracle

import "testing"

func TestNewIsUntagged(t *testing.T) {
	o := New()
	if o.Tag != TagNone {
		t.Fatalf("Tag = %q, want TagNone", o.Tag)
	}
}

func TestDecideStateTagsRonRegisteringSymbol(t *testing.T) {
	o := New()
	o.DecideState([]string{"identityResponse", "registrationComplete"})
	if o.Tag != TagR {
		t.Fatalf("Tag = %q, want TagR", o.Tag)
	}
}

func TestDecideStateTagsRonSessionManagementSymbol(t *testing.T) {
	o := New()
	var smSymbol string
	for s := range smSymbols {
		smSymbol = s
		break
	}
	o.DecideState([]string{smSymbol})
	if o.Tag != TagR {
		t.Fatalf("Tag = %q, want TagR", o.Tag)
	}
}

func TestDecideStateLeavesUntaggedOnUnrelatedSymbols(t *testing.T) {
	o := New()
	o.DecideState([]string{"identityResponse", "authenticationResponse"})
	if o.Tag != TagNone {
		t.Fatalf("Tag = %q, want TagNone", o.Tag)
	}
}

func TestQueryMessageFlagsAuthenticationFailureEchoedAsResponse(t *testing.T) {
	o := New()
	if !o.QueryMessage("authenticationFailure", "authenticationResponse", 0, 0) {
		t.Fatal("expected a violation")
	}
}

func TestQueryMessageFlagsSecurityModeRejectWithNonzeroSecmod(t *testing.T) {
	o := New()
	if !o.QueryMessage("securityModeReject", "securityModeReject", 0, 1) {
		t.Fatal("expected a violation")
	}
}

func TestQueryMessageAllowsOrdinaryExchange(t *testing.T) {
	o := New()
	if o.QueryMessage("registrationRequest", "registrationAccept", 1, 2) {
		t.Fatal("expected no violation")
	}
}

func TestQueryMessageIgnoresBlankFields(t *testing.T) {
	o := New()
	if o.QueryMessage("", "registrationAccept", 0, 0) {
		t.Fatal("expected no violation on blank sendType")
	}
}
