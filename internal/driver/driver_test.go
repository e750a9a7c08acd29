package driver

import (
	"math"
	"math/rand"
	"testing"

	"github.com/corefuzz/corefuzz/internal/corpus"
)

func TestFormatCompositeJoinsWithColons(t *testing.T) {
	got := formatComposite("securityModeCommand", "AABBCC", 2, 1)
	want := "securityModeCommand:AABBCC:2:1"
	if got != want {
		t.Fatalf("formatComposite = %q, want %q", got, want)
	}
}

func TestSecmodShtFromSeedReadsBothFields(t *testing.T) {
	s := &corpus.Seed{Secmod: 3, Sht: 7}
	secmod, sht := secmodShtFromSeed(s)
	if secmod != 3 || sht != 7 {
		t.Fatalf("secmodShtFromSeed = (%d,%d), want (3,7)", secmod, sht)
	}
}

func TestParseSeedResponseRejectsBlank(t *testing.T) {
	if seed := parseSeedResponse(1, "S0", "registrationRequest", "   "); seed != nil {
		t.Fatalf("expected nil seed for blank response, got %+v", seed)
	}
}

func TestParseSeedResponsePopulatesFromRawResponse(t *testing.T) {
	seed := parseSeedResponse(2, "S0", "registrationRequest", ` {"ret_type":"registrationAccept"} `)
	if seed == nil {
		t.Fatal("expected non-nil seed")
	}
	if seed.Worker != 2 || seed.State != "S0" || seed.SendType != "registrationRequest" {
		t.Fatalf("seed identity fields wrong: %+v", seed)
	}
	if seed.RetType != "registrationAccept" {
		t.Fatalf("expected RetType extracted via CanonicalRet, got %q", seed.RetType)
	}
	if seed.Size != len(`{"ret_type":"registrationAccept"}`) {
		t.Fatalf("expected Size to match trimmed raw length, got %d", seed.Size)
	}
}

func TestParseFuzzResponsePlainStringFallsBackToRetType(t *testing.T) {
	resp := parseFuzzResponse("decode error")
	if resp.RetType != "decode error" || resp.RetMsg != "decode error" {
		t.Fatalf("expected plain-string passthrough, got %+v", resp)
	}
}

func TestParseFuzzResponseExtractsJSONFields(t *testing.T) {
	raw := `{"ret_type":"authenticationReject","ret_msg":"auth rejected","sht":1,"secmod":2,"mm_status":"idle","byte_mut":true}`
	resp := parseFuzzResponse(raw)
	if resp.RetType != "authenticationReject" || resp.RetMsg != "auth rejected" {
		t.Fatalf("unexpected type/msg: %+v", resp)
	}
	if resp.Sht != 1 || resp.Secmod != 2 {
		t.Fatalf("unexpected sht/secmod: %+v", resp)
	}
	if resp.MMStatus != "idle" || !resp.ByteMut {
		t.Fatalf("unexpected mm_status/byte_mut: %+v", resp)
	}
}

func TestParseFuzzResponseMissingKeysAreZeroValues(t *testing.T) {
	resp := parseFuzzResponse(`{"ret_type":"registrationReject"}`)
	if resp.Sht != 0 || resp.Secmod != 0 || resp.ByteMut {
		t.Fatalf("expected zero-valued absent fields, got %+v", resp)
	}
}

func TestParsePermissiveJSONMalformedYieldsEmptyMap(t *testing.T) {
	obj := parsePermissiveJSON("{not json")
	if len(obj) != 0 {
		t.Fatalf("expected empty map for malformed input, got %+v", obj)
	}
}

func TestIntFieldAcceptsFloat64FromJSONNumber(t *testing.T) {
	obj := map[string]any{"sht": float64(4)}
	if got := intField(obj, "sht"); got != 4 {
		t.Fatalf("intField = %d, want 4", got)
	}
}

func TestIntFieldDefaultsToZeroOnWrongType(t *testing.T) {
	obj := map[string]any{"sht": "not a number"}
	if got := intField(obj, "sht"); got != 0 {
		t.Fatalf("intField = %d, want 0", got)
	}
}

func TestBoolFieldDefaultsFalseWhenAbsent(t *testing.T) {
	if boolField(map[string]any{}, "byte_mut") {
		t.Fatal("expected false for absent key")
	}
}

// errorBonus replicates the step-9 reward computation (spec §4.6: "on any
// violation/AMF-crash/SMF-crash, increment error_hits[state] then set
// error_bonus = 1/sqrt(error_hits[state])") to pin its shape down without
// requiring a live round.
func errorBonusFor(hits int) float64 {
	return 1.0 / math.Sqrt(float64(hits))
}

func TestErrorBonusShrinksAsHitsAccumulate(t *testing.T) {
	first := errorBonusFor(1)
	second := errorBonusFor(2)
	if first != 1.0 {
		t.Fatalf("errorBonusFor(1) = %v, want 1.0", first)
	}
	if second >= first {
		t.Fatalf("expected errorBonusFor(2) < errorBonusFor(1), got %v >= %v", second, first)
	}
}

func TestRngIntnAdapterDelegatesToUnderlyingSource(t *testing.T) {
	w := rngIntn{rand.New(rand.NewSource(1))}
	ref := rand.New(rand.NewSource(1))
	n := w.Intn(10)
	if n < 0 || n >= 10 {
		t.Fatalf("Intn(10) = %d, out of range", n)
	}
	if want := ref.Intn(10); n != want {
		t.Fatalf("Intn(10) = %d, want %d from the same seed", n, want)
	}
	f := w.Float64()
	if f < 0 || f >= 1 {
		t.Fatalf("Float64() = %v, out of range", f)
	}
	if want := ref.Float64(); f != want {
		t.Fatalf("Float64() = %v, want %v from the same seed", f, want)
	}
}
