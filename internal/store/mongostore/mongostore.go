// Package mongostore keeps documents in one MongoDB collection and runs
// multi-document transactions in client sessions. Requires a replica set.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"rewards_webapp/internal/logger"
	"rewards_webapp/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const collectionName = "documents"

type Store struct {
	client      *mongo.Client
	coll        *mongo.Collection
	maxAttempts int
}

// record is the stored shape of a document
type record struct {
	ID         string   `bson:"_id"`
	Collection string   `bson:"collection"`
	DocID      string   `bson:"docId"`
	Data       bson.Raw `bson:"data"`
	Version    int64    `bson:"version"`
}

func New(client *mongo.Client, database string, maxAttempts int) *Store {
	if maxAttempts < 1 {
		maxAttempts = store.DefaultMaxAttempts
	}
	return &Store{
		client:      client,
		coll:        client.Database(database).Collection(collectionName),
		maxAttempts: maxAttempts,
	}
}

// EnsureIndexes creates the collection index used by queries
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "collection", Value: 1}},
	})
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ref store.Ref) (store.Doc, error) {
	return s.find(ctx, ref)
}

func (s *Store) Set(ctx context.Context, ref store.Ref, data store.Doc, merge bool) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Set(ctx, ref, data, merge)
	})
}

func (s *Store) Update(ctx context.Context, ref store.Ref, updates store.Updates) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Update(ctx, ref, updates)
	})
}

func (s *Store) RunTransaction(ctx context.Context, fn store.TxFunc) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer sess.EndSession(ctx)

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
			if err := sess.StartTransaction(); err != nil {
				return err
			}
			if err := fn(sc, &mongoTx{s: s, sc: sc}); err != nil {
				_ = sess.AbortTransaction(context.Background())
				return err
			}
			return sess.CommitTransaction(sc)
		})
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return wrapErr(err)
		}
		lastErr = err
		logger.Debug("mongo transaction conflict, retrying", "attempt", attempt, "error", err)
	}
	return fmt.Errorf("%w: %v", store.ErrConflict, lastErr)
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Snapshot, error) {
	filter := bson.M{"collection": q.Collection}
	if q.Group {
		filter["collection"] = bson.M{"$regex": "(^|/)" + regexp.QuoteMeta(q.Collection) + "$"}
	}
	for _, f := range q.Where {
		v, err := filterValue(f.Value)
		if err != nil {
			return nil, err
		}
		filter["data."+f.Field] = v
	}

	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: "data." + q.OrderBy, Value: dir}, {Key: "_id", Value: 1}})
	} else {
		opts.SetSort(bson.D{{Key: "_id", Value: 1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer cur.Close(ctx)

	var out []store.Snapshot
	for cur.Next(ctx) {
		var rec record
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		d, err := fromBSON(rec.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, store.Snapshot{Ref: store.NewRef(rec.Collection, rec.DocID), Data: d})
	}
	return out, wrapErr(cur.Err())
}

func (s *Store) find(ctx context.Context, ref store.Ref) (store.Doc, error) {
	var rec record
	err := s.coll.FindOne(ctx, bson.M{"_id": ref.Path()}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return fromBSON(rec.Data)
}

// mongoTx runs every operation on the session context it was created with
type mongoTx struct {
	s  *Store
	sc mongo.SessionContext
}

func (t *mongoTx) Get(_ context.Context, ref store.Ref) (store.Doc, error) {
	return t.s.find(t.sc, ref)
}

func (t *mongoTx) Set(_ context.Context, ref store.Ref, data store.Doc, merge bool) error {
	var (
		next store.Doc
		err  error
	)
	if merge {
		cur, ferr := t.s.find(t.sc, ref)
		if ferr != nil && !errors.Is(ferr, store.ErrNotFound) {
			return ferr
		}
		next, err = store.Merge(cur, data)
	} else {
		next, err = store.Replace(data)
	}
	if err != nil {
		return err
	}
	return t.write(ref, next)
}

func (t *mongoTx) Update(_ context.Context, ref store.Ref, updates store.Updates) error {
	cur, err := t.s.find(t.sc, ref)
	if err != nil {
		return err
	}
	next, err := store.Apply(cur, updates)
	if err != nil {
		return err
	}
	return t.write(ref, next)
}

func (t *mongoTx) write(ref store.Ref, d store.Doc) error {
	data, err := toBSON(d)
	if err != nil {
		return err
	}
	_, err = t.s.coll.UpdateOne(t.sc,
		bson.M{"_id": ref.Path()},
		bson.M{
			"$set": bson.M{"collection": ref.Collection, "docId": ref.ID, "data": data},
			"$inc": bson.M{"version": 1},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// toBSON converts json.Number leaves into int64/float64 so Mongo can sort them
func toBSON(d store.Doc) (bson.M, error) {
	out := bson.M{}
	for k, v := range d {
		cv, err := convertValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = cv
	}
	return out, nil
}

func convertValue(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	case map[string]any:
		return toBSON(store.Doc(t))
	case []any:
		arr := make(bson.A, len(t))
		for i := range t {
			cv, err := convertValue(t[i])
			if err != nil {
				return nil, err
			}
			arr[i] = cv
		}
		return arr, nil
	}
	return v, nil
}

// fromBSON goes through relaxed extended JSON, which prints int64 and double as plain numbers
func fromBSON(raw bson.Raw) (store.Doc, error) {
	if len(raw) == 0 {
		return store.Doc{}, nil
	}
	b, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("decode mongo document: %w", err)
	}
	return store.DecodeJSON(b)
}

func filterValue(v any) (any, error) {
	d, err := store.Encode(map[string]any{"v": v})
	if err != nil {
		return nil, err
	}
	return convertValue(d["v"])
}

func isTransient(err error) bool {
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorLabel("TransientTransactionError") || se.HasErrorLabel("UnknownTransactionCommitResult")
	}
	return false
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
