package ueclient

import "testing"

func TestCanonicalRetEmptyAndKnownSentinels(t *testing.T) {
	cases := []string{"", "  ", "null_action", "decode error", "ERROR", "Timeout"}
	for _, c := range cases {
		if got := CanonicalRet(c); got != nullAction {
			t.Errorf("CanonicalRet(%q) = %q, want %q", c, got, nullAction)
		}
	}
}

func TestCanonicalRetUnknownFuzzingMessage(t *testing.T) {
	if got := CanonicalRet("Unknown fuzzing message name: foo"); got != nullAction {
		t.Fatalf("got %q, want %q", got, nullAction)
	}
}

func TestCanonicalRetExtractsRetTypeFromJSON(t *testing.T) {
	got := CanonicalRet(`{"ret_type": "registrationReject", "ret_msg": "other"}`)
	if got != "registrationReject" {
		t.Fatalf("got %q", got)
	}
}

func TestCanonicalRetFallsBackToRetMsg(t *testing.T) {
	got := CanonicalRet(`{"ret_type": "", "ret_msg": "authenticationRequest"}`)
	if got != "authenticationRequest" {
		t.Fatalf("got %q", got)
	}
}

func TestCanonicalRetPassesThroughPlainString(t *testing.T) {
	got := CanonicalRet("registrationAccept")
	if got != "registrationAccept" {
		t.Fatalf("got %q", got)
	}
}

type fakeGraph struct {
	exact    map[string][]string
	byInput  map[string][]string
}

func key(s, i, o string) string { return s + "|" + i + "|" + o }

func (g *fakeGraph) CandidateDestinations(src, input, output string) []string {
	return g.exact[key(src, input, output)]
}

func (g *fakeGraph) CandidateDestinationsByInput(src, input string) []string {
	return g.byInput[src+"|"+input]
}

type constRand struct{ v int }

func (c constRand) Intn(n int) int {
	if c.v >= n {
		return 0
	}
	return c.v
}

func TestExecSequenceAlignFollowsExactMatch(t *testing.T) {
	g := &fakeGraph{
		exact: map[string][]string{
			key("S0", "registrationRequest", "registrationAccept"): {"S1"},
		},
	}
	send := func(symbol string) (string, error) { return "registrationAccept", nil }

	res, err := ExecSequenceAlign(g, constRand{}, send, "S0", []string{"registrationRequest"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK {
		t.Fatal("expected alignment to succeed")
	}
	if len(res.StateSeq) != 2 || res.StateSeq[1] != "S1" {
		t.Fatalf("unexpected state seq: %v", res.StateSeq)
	}
}

func TestExecSequenceAlignFailsWithNoEdgeAtAll(t *testing.T) {
	g := &fakeGraph{}
	send := func(symbol string) (string, error) { return "somethingUnexpected", nil }

	res, err := ExecSequenceAlign(g, constRand{}, send, "S0", []string{"registrationRequest"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK {
		t.Fatal("expected alignment to fail when no edge exists")
	}
}

func TestExecSequenceAlignEmptyPathIsTrivialSuccess(t *testing.T) {
	res, err := ExecSequenceAlign(&fakeGraph{}, constRand{}, nil, "S0", nil)
	if err != nil || !res.OK || len(res.StateSeq) != 1 || res.StateSeq[0] != "S0" {
		t.Fatalf("unexpected result: %+v err=%v", res, err)
	}
}
