package corpus

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store against a per-worker MongoDB collection,
// matching db_helper.py's `client["CoreFuzzer"][f"DB_NAME_w{WID}"]`
// partitioning — the document store is the only cross-worker shared
// state (spec §5), partitioned per worker by key.
type MongoStore struct {
	client     *mongo.Client
	seeds      *mongo.Collection
	fields     *mongo.Collection
	rng        *rand.Rand
}

// NewMongoStore connects to uri and selects dbName/worker<wid> collections.
func NewMongoStore(ctx context.Context, uri, dbName string, wid int) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("corpus: connecting to %s: %w", uri, err)
	}
	db := client.Database(dbName)
	s := &MongoStore{
		client: client,
		seeds:  db.Collection(fmt.Sprintf("worker%d", wid)),
		fields: db.Collection(fmt.Sprintf("worker%d_fields", wid)),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	return s, nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique index on (state,new_msg,sht,secmod)
// and the secondary index on (is_interesting, mutate_count ascending),
// per spec §4.5.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.seeds.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "state", Value: 1},
				{Key: "new_msg", Value: 1},
				{Key: "sht", Value: 1},
				{Key: "secmod", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "is_interesting", Value: 1},
				{Key: "mutate_count", Value: 1},
			},
		},
	})
	return err
}

// StoreNewMessage inserts rec, silently swallowing duplicate-key errors
// (spec §4.5 "duplicate inserts are silently dropped"; §7 "Corpus
// duplicate insert: silently swallowed at the store boundary").
func (s *MongoStore) StoreNewMessage(ctx context.Context, rec *Seed) error {
	_, err := s.seeds.InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

// CheckSeedMsg reports whether >= 5 interesting records exist for state
// (spec §4.5, §8 scenario 1).
func (s *MongoStore) CheckSeedMsg(ctx context.Context, state string) (bool, error) {
	count, err := s.seeds.CountDocuments(ctx, bson.M{"state": state, "is_interesting": true})
	if err != nil {
		return false, err
	}
	return count >= seedThreshold, nil
}

// GetInteresting picks uniformly at random among the top-10 interesting
// records for state (by descending energy), atomically increments its
// mutate_count, and returns it. Returns an error if none exist.
func (s *MongoStore) GetInteresting(ctx context.Context, state string) (*Seed, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "energy", Value: -1}}).
		SetLimit(topN)
	cur, err := s.seeds.Find(ctx, bson.M{"state": state, "is_interesting": true}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var candidates []Seed
	if err := cur.All(ctx, &candidates); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("corpus: no interesting seed for state %q", state)
	}

	chosen := candidates[s.rng.Intn(len(candidates))]
	filter := bson.M{"_id": chosen.idOrFilter()}
	update := bson.M{"$inc": bson.M{"mutate_count": 1}}
	res := s.seeds.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After))
	var updated Seed
	if err := res.Decode(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// idOrFilter resolves the record's _id value. Records read back via Find
// carry a Mongo ObjectID hex string in ID, which is returned as an
// ObjectID; any other ID (including an empty one) is returned unchanged.
// Unlike identityFilter, it does not fall back to the uniqueness key.
func (rec *Seed) idOrFilter() interface{} {
	if rec.ID != "" {
		if oid, err := primitive.ObjectIDFromHex(rec.ID); err == nil {
			return oid
		}
	}
	return rec.ID
}

func (rec *Seed) identityFilter() bson.M {
	if rec.ID != "" {
		if oid, err := primitive.ObjectIDFromHex(rec.ID); err == nil {
			return bson.M{"_id": oid}
		}
	}
	return bson.M{"state": rec.State, "new_msg": rec.NewMsg, "sht": rec.Sht, "secmod": rec.Secmod}
}

// UpdateMsgReward atomically adds the §4.5 update_msg_reward delta to
// energy.
func (s *MongoStore) UpdateMsgReward(ctx context.Context, rec *Seed, r float64) error {
	delta := updateRewardDelta(rec.MutateCount, rec.Size, r)
	_, err := s.seeds.UpdateOne(ctx, rec.identityFilter(), bson.M{"$inc": bson.M{"energy": delta}})
	return err
}

// AddEnergy atomically adds delta to energy.
func (s *MongoStore) AddEnergy(ctx context.Context, rec *Seed, delta float64) error {
	_, err := s.seeds.UpdateOne(ctx, rec.identityFilter(), bson.M{"$inc": bson.M{"energy": delta}})
	return err
}

// ResetInteresting sets is_interesting=false (disqualifies a payload that
// caused a decode error, spec §3 lifecycle note).
func (s *MongoStore) ResetInteresting(ctx context.Context, rec *Seed) error {
	_, err := s.seeds.UpdateOne(ctx, rec.identityFilter(), bson.M{"$set": bson.M{"is_interesting": false}})
	rec.IsInteresting = false
	return err
}

// CheckNewResponse reports whether no prior record for (state, sendType)
// shares retMsg's equivalence class (collapsing the 7E0056 marker, spec
// §9) and mmStatus. A marker-bearing retMsg collapses to checking for any
// prior authenticationRequest ret_type under (state, sendType), matching
// db_helper.py's check_new_resopnse; otherwise it filters on the stored
// ret_msg/mm_status fields directly.
func (s *MongoStore) CheckNewResponse(ctx context.Context, state, sendType, retMsg, mmStatus string) (bool, error) {
	filter := bson.M{"state": state, "send_type": sendType}
	if containsMarker(retMsg) {
		filter["ret_type"] = authenticationRequestClass
	} else {
		filter["ret_msg"] = retMsg
		filter["mm_status"] = mmStatus
	}
	count, err := s.seeds.CountDocuments(ctx, filter)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// CheckNewCause reports whether no prior record shares this error cause
// for (state, sendType).
func (s *MongoStore) CheckNewCause(ctx context.Context, state, sendType, errorCause string) (bool, error) {
	count, err := s.seeds.CountDocuments(ctx, bson.M{
		"state":       state,
		"send_type":   sendType,
		"error_cause": errorCause,
	})
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// CheckNewViolation reports whether no prior record shares this
// violation shape for (state, sendType).
func (s *MongoStore) CheckNewViolation(ctx context.Context, state, sendType, retType string, sht, secmod int) (bool, error) {
	count, err := s.seeds.CountDocuments(ctx, bson.M{
		"state":     state,
		"send_type": sendType,
		"ret_type":  retType,
		"sht":       sht,
		"secmod":    secmod,
		"violation": true,
	})
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// BeginFieldWindow opens a window against the independent fields stream
// (spec §4.5), keyed by (worker, timestamp, id) in the original.
func (s *MongoStore) BeginFieldWindow(ctx context.Context) (FieldWindowToken, error) {
	return FieldWindowToken{OpenedAt: time.Now(), Marker: uuid.NewString()}, nil
}

// RecordFieldObservation appends one field-name observation to the
// fields stream for worker, timestamped now. Nothing in this repository
// calls it; CountWindowFields counts whatever observations the stream
// holds.
func (s *MongoStore) RecordFieldObservation(ctx context.Context, worker int, fieldName string) error {
	_, err := s.fields.InsertOne(ctx, bson.M{
		"worker":     worker,
		"field_name": fieldName,
		"ts":         time.Now(),
	})
	return err
}

// CountWindowFields counts field observations for worker recorded at or
// after the window opened.
func (s *MongoStore) CountWindowFields(ctx context.Context, worker int, token FieldWindowToken) (int, error) {
	count, err := s.fields.CountDocuments(ctx, bson.M{
		"worker": worker,
		"ts":     bson.M{"$gte": token.OpenedAt},
	})
	return int(count), err
}
