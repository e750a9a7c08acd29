package corpus

import "testing"

func TestContainsMarkerDetectsTheEquivalenceClassToken(t *testing.T) {
	if !containsMarker("NAS-PDU 7E0056 authenticationRequest payload") {
		t.Fatal("expected marker to be detected")
	}
}

func TestContainsMarkerFalseOtherwise(t *testing.T) {
	if containsMarker("registrationReject") {
		t.Fatal("expected no marker match")
	}
}

func TestUpdateRewardDeltaFloorsMutateCountAndSize(t *testing.T) {
	// mutate_count=0, size=0 should behave as if both were 1.
	got := updateRewardDelta(0, 0, 0)
	want := countRewardWeight + lenRewardWeight
	if got != want {
		t.Fatalf("updateRewardDelta(0,0,0) = %v, want %v", got, want)
	}
}

func TestUpdateRewardDeltaScalesDown(t *testing.T) {
	got := updateRewardDelta(4, 10, 1.0)
	want := countRewardWeight/4 + lenRewardWeight/10 + backRewardWeight*1.0
	if got != want {
		t.Fatalf("updateRewardDelta(4,10,1.0) = %v, want %v", got, want)
	}
}

func TestIdentityFilterFallsBackToUniquenessKey(t *testing.T) {
	rec := &Seed{State: "S1", NewMsg: "msg", Sht: 1, Secmod: 0}
	f := rec.identityFilter()
	if f["state"] != "S1" || f["new_msg"] != "msg" {
		t.Fatalf("expected uniqueness-key filter when ID unset, got %+v", f)
	}
}
