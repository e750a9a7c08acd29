// Package corpus implements the mutation-corpus interface from spec §4.5:
// energy-weighted seed sampling, reward updates, novelty predicates, and
// the field-count window, backed by go.mongodb.org/mongo-driver —
// promoted from an indirect teacher dependency to direct use because it
// is the exact store technology _examples/original_source/db_helper.py
// used via pymongo. Grounded on that file throughout.
package corpus

import (
	"context"
	"time"
)

// Seed is the corpus record (spec §3 "Seed record"). Uniqueness key:
// (State, NewMsg, Sht, Secmod); records with IsInteresting=false are never
// sampled by GetInteresting.
type Seed struct {
	ID            string  `bson:"_id,omitempty" json:"id,omitempty"`
	Worker        int     `bson:"worker" json:"worker"`
	IfFuzz        bool    `bson:"if_fuzz" json:"if_fuzz"`
	State         string  `bson:"state" json:"state"`
	SendType      string  `bson:"send_type" json:"send_type"`
	RetType       string  `bson:"ret_type" json:"ret_type"`
	IfCrash       bool    `bson:"if_crash" json:"if_crash"`
	IfCrashSM     bool    `bson:"if_crash_sm" json:"if_crash_sm"`
	IfError       bool    `bson:"if_error" json:"if_error"`
	ErrorCause    string  `bson:"error_cause" json:"error_cause"`
	IsInteresting bool    `bson:"is_interesting" json:"is_interesting"`
	Sht           int     `bson:"sht" json:"sht"`
	Secmod        int     `bson:"secmod" json:"secmod"`
	Size          int     `bson:"size" json:"size"`
	BaseMsg       string  `bson:"base_msg" json:"base_msg"`
	NewMsg        string  `bson:"new_msg" json:"new_msg"`
	RetMsg        string  `bson:"ret_msg" json:"ret_msg"`
	Energy        float64 `bson:"energy" json:"energy"`
	MutateCount   int     `bson:"mutate_count" json:"mutate_count"`
	Violation     bool    `bson:"violation" json:"violation"`
	MMStatus      string  `bson:"mm_status" json:"mm_status"`
	ByteMut       bool    `bson:"byte_mut" json:"byte_mut"`
}

// seedThreshold is the "interesting record count" floor (spec §4.5
// check_seed_msg, §8 scenario 1): >= 5 flips State.is_init.
const seedThreshold = 5

// topN bounds the energy-sorted candidate pool GetInteresting samples
// from (spec §4.5: "top-10 interesting records by descending energy").
const topN = 10

// Reward-update weights, spec §4.5 update_msg_reward:
// 1/max(1,mutate_count) + 0.5/max(1,size) + 0.2*r
const (
	countRewardWeight = 1.0
	lenRewardWeight   = 0.5
	backRewardWeight  = 0.2
)

// the7E0056Marker is the opaque equivalence-class marker from spec §9:
// responses containing it collapse to "authenticationRequest" for
// check_new_response purposes only.
const the7E0056Marker = "7E0056"
const authenticationRequestClass = "authenticationRequest"

// FieldWindowToken opens a window over the independent "fields" stream
// (spec §4.5), keyed by (worker, timestamp, id) in the original; here it
// carries just enough to let CountWindowFields bound its query.
type FieldWindowToken struct {
	OpenedAt time.Time
	Marker   string
}

// Store is the abstract mutation-corpus operations the fuzz driver
// consumes (spec §4.5). Any store supporting uniqueness + atomic
// increments can implement it; mongostore.go is this repo's.
type Store interface {
	StoreNewMessage(ctx context.Context, rec *Seed) error
	CheckSeedMsg(ctx context.Context, state string) (bool, error)
	GetInteresting(ctx context.Context, state string) (*Seed, error)
	UpdateMsgReward(ctx context.Context, rec *Seed, r float64) error
	AddEnergy(ctx context.Context, rec *Seed, delta float64) error
	ResetInteresting(ctx context.Context, rec *Seed) error

	CheckNewResponse(ctx context.Context, state, sendType, retMsg, mmStatus string) (bool, error)
	CheckNewCause(ctx context.Context, state, sendType, errorCause string) (bool, error)
	CheckNewViolation(ctx context.Context, state, sendType, retType string, sht, secmod int) (bool, error)

	BeginFieldWindow(ctx context.Context) (FieldWindowToken, error)
	RecordFieldObservation(ctx context.Context, worker int, fieldName string) error
	CountWindowFields(ctx context.Context, worker int, token FieldWindowToken) (int, error)

	EnsureIndexes(ctx context.Context) error
}

// containsMarker reports whether s carries the 7E0056 equivalence-class
// marker (spec §9).
func containsMarker(s string) bool {
	return len(s) >= len(the7E0056Marker) && indexOf(s, the7E0056Marker) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// updateRewardDelta computes the §4.5 update_msg_reward delta (kept here so
// mongostore.go and tests share the formula).
func updateRewardDelta(mutateCount, size int, r float64) float64 {
	mc := mutateCount
	if mc < 1 {
		mc = 1
	}
	sz := size
	if sz < 1 {
		sz = 1
	}
	return countRewardWeight/float64(mc) + lenRewardWeight/float64(sz) + backRewardWeight*r
}
