package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/criyle/go-evaluator/types"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// MongoConfig defines the MongoDB connection
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Options    Options
}

// MongoStore is a Store backed by a MongoDB collection. Claims use
// FindOneAndUpdate as the compare-and-set primitive.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	opt    Options
}

var _ Store = &MongoStore{}

// NewMongoStore connects to MongoDB and ensures the claim index
func NewMongoStore(ctx context.Context, conf MongoConfig) (*MongoStore, error) {
	conf.Options.defaults()
	client, err := mongo.Connect(options.Client().ApplyURI(conf.URI))
	if err != nil {
		return nil, unavailable(err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, unavailable(err)
	}
	s := &MongoStore{
		client: client,
		coll:   client.Database(conf.Database).Collection(conf.Collection),
		opt:    conf.Options,
	}
	_, err = s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "state", Value: 1}, {Key: "created", Value: 1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, unavailable(err)
	}
	return s, nil
}

// Close disconnects from MongoDB
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func claimableFilter(now time.Time) bson.M {
	return bson.M{
		"state": int32(types.StatePending),
		"$and": bson.A{
			bson.M{"$or": bson.A{bson.M{"leaseUntil": nil}, bson.M{"leaseUntil": bson.M{"$lte": now}}}},
			bson.M{"$or": bson.A{bson.M{"notBefore": nil}, bson.M{"notBefore": bson.M{"$lte": now}}}},
		},
	}
}

func heldFilter(c *Claim) bson.M {
	return bson.M{
		"_id":        c.Submission.ID,
		"state":      int32(types.StatePending),
		"claimToken": c.Token,
		"version":    c.Version,
	}
}

// ClaimNext implements Store
func (s *MongoStore) ClaimNext(ctx context.Context) (*Claim, error) {
	now := s.opt.Now()
	c, err := s.claim(ctx, claimableFilter(now), now)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoPending
	}
	return c, err
}

// Claim implements Store
func (s *MongoStore) Claim(ctx context.Context, id string) (*Claim, error) {
	now := s.opt.Now()
	filter := claimableFilter(now)
	filter["_id"] = id
	c, err := s.claim(ctx, filter, now)
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return c, err
	}
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrAlreadyClaimed
}

func (s *MongoStore) claim(ctx context.Context, filter bson.M, now time.Time) (*Claim, error) {
	token := uuid.NewString()
	leaseUntil := now.Add(s.opt.LeaseDuration)
	update := bson.M{
		"$set": bson.M{"claimToken": token, "leaseUntil": leaseUntil},
		"$inc": bson.M{"version": 1, "attempts": 1},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "created", Value: 1}, {Key: "_id", Value: 1}}).
		SetReturnDocument(options.After)

	var d document
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		return nil, unavailable(err)
	}
	sub, err := d.submission()
	if err != nil {
		return nil, err
	}
	return &Claim{
		Submission: *sub,
		Token:      token,
		Version:    d.Version,
		Attempt:    int(d.Attempts),
		ClaimedAt:  now,
		LeaseUntil: leaseUntil,
	}, nil
}

// Extend implements Store
func (s *MongoStore) Extend(ctx context.Context, c *Claim) error {
	leaseUntil := s.opt.Now().Add(s.opt.LeaseDuration)
	res, err := s.coll.UpdateOne(ctx, heldFilter(c), bson.M{"$set": bson.M{"leaseUntil": leaseUntil}})
	if err != nil {
		return unavailable(err)
	}
	if res.MatchedCount == 0 {
		if _, err := s.find(ctx, c.Submission.ID); err != nil {
			return err
		}
		return ErrStaleClaim
	}
	c.LeaseUntil = leaseUntil
	return nil
}

// Release implements Store
func (s *MongoStore) Release(ctx context.Context, c *Claim, retryAt time.Time, reason string) error {
	update := bson.M{
		"$set":   bson.M{"notBefore": retryAt, "lastError": reason},
		"$unset": bson.M{"claimToken": "", "leaseUntil": ""},
		"$inc":   bson.M{"version": 1},
	}
	res, err := s.coll.UpdateOne(ctx, heldFilter(c), update)
	if err != nil {
		return unavailable(err)
	}
	if res.MatchedCount == 0 {
		if _, err := s.find(ctx, c.Submission.ID); err != nil {
			return err
		}
		return ErrStaleClaim
	}
	return nil
}

// Persist implements Store
func (s *MongoStore) Persist(ctx context.Context, c *Claim, f Final) error {
	if err := f.Validate(); err != nil {
		return err
	}
	set := bson.M{
		"state":      int32(f.State),
		"finalToken": c.Token,
	}
	unset := bson.M{"claimToken": "", "leaseUntil": "", "notBefore": ""}
	setOrUnset := func(key string, v any, present bool) {
		if present {
			set[key] = v
		} else {
			unset[key] = ""
		}
	}
	setOrUnset("compilation", newCompilationDoc(f.Compilation), f.Compilation != nil)
	setOrUnset("evaluation", newEvaluationDoc(f.Evaluation), f.Evaluation != nil)
	setOrUnset("overallScore", f.OverallScore.Value(), !f.OverallScore.IsZero())
	setOrUnset("abortReason", f.AbortReason, f.AbortReason != "")

	update := bson.M{"$set": set, "$unset": unset, "$inc": bson.M{"version": 1}}
	res, err := s.coll.UpdateOne(ctx, heldFilter(c), update)
	if err != nil {
		return unavailable(err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	d, err := s.find(ctx, c.Submission.ID)
	if err != nil {
		return err
	}
	if types.SubmissionState(d.State).Terminal() && d.FinalToken == c.Token {
		return nil
	}
	return ErrStaleClaim
}

// Get implements Store
func (s *MongoStore) Get(ctx context.Context, id string) (*types.Submission, error) {
	d, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.submission()
}

// Insert implements Store
func (s *MongoStore) Insert(ctx context.Context, sub *types.Submission) error {
	if _, err := s.coll.InsertOne(ctx, newDocument(sub)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrExists
		}
		return unavailable(err)
	}
	return nil
}

func (s *MongoStore) find(ctx context.Context, id string) (*document, error) {
	var d document
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return &d, nil
}
