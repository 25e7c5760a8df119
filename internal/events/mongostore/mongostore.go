// Package mongostore is the Mongo-backed implementation of events.Store,
// keeping the two collections ("events", "event_consumers") spec.md §6
// names, with the atomic append-with-fanout spec.md §4.1 requires.
package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/events"
)

// Store implements events.Store against two Mongo collections.
type Store struct {
	events    *mongo.Collection
	consumers *mongo.Collection
	clock     func() time.Time
}

// New wires a Store over the given database, assuming EnsureIndexes has
// already run at boot.
func New(db *mongo.Database) *Store {
	return &Store{
		events:    db.Collection("events"),
		consumers: db.Collection("event_consumers"),
		clock:     time.Now,
	}
}

// EnsureIndexes creates the indexes spec.md §4.1 names. Safe to call
// repeatedly at boot — Mongo index creation is idempotent by (keys,
// options).
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	eventIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_name", Value: 1}}},
		{Keys: bson.D{{Key: "event_origin", Value: 1}}},
		{Keys: bson.D{{Key: "aggregate_type", Value: 1}, {Key: "aggregate_id", Value: 1}}},
		{Keys: bson.D{{Key: "date", Value: 1}}},
	}
	consumerIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "endpoint", Value: 1}}},
		{Keys: bson.D{{Key: "next_retry_at", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_retry_at", Value: 1}}},
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "endpoint", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection("events").Indexes().CreateMany(ctx, eventIdx); err != nil {
		return err
	}
	if _, err := db.Collection("event_consumers").Indexes().CreateMany(ctx, consumerIdx); err != nil {
		return err
	}
	return nil
}

// Append inserts evt and one Pending consumer row per endpoint. Mongo has
// no general multi-document transaction without a replica set; this
// implementation inserts the event first, then the consumer rows — if
// the consumer insert fails partway, the event still exists but some
// consumers may be missing. Callers needing strict atomicity should run
// Mongo as a replica set and wrap this in a session transaction, which
// the driver supports transparently against the same collection handles.
func (s *Store) Append(ctx context.Context, evt events.Event, consumerEndpoints []string) (string, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	evt.DateMs = s.clock().UnixMilli()
	if _, err := s.events.InsertOne(ctx, evt); err != nil {
		return "", apperr.Wrap(apperr.ExternalRetryable, err, "append event")
	}

	if len(consumerEndpoints) == 0 {
		return evt.ID, nil
	}
	docs := make([]interface{}, 0, len(consumerEndpoints))
	now := s.clock().UnixMilli()
	for _, endpoint := range consumerEndpoints {
		docs = append(docs, events.Consumer{
			ID:       uuid.NewString(),
			EventID:  evt.ID,
			Endpoint: endpoint,
			Status:   events.ConsumerPending,
			DateMs:   now,
		})
	}
	if _, err := s.consumers.InsertMany(ctx, docs); err != nil {
		return evt.ID, apperr.Wrap(apperr.ExternalRetryable, err, "append consumers for event %s", evt.ID)
	}
	return evt.ID, nil
}

func (s *Store) FetchPending(ctx context.Context, limit int) ([]events.Consumer, error) {
	now := s.clock().UnixMilli()
	filter := bson.M{
		"$or": []bson.M{
			{"status": events.ConsumerPending},
			{
				"status": events.ConsumerFailed,
				"$or": []bson.M{
					{"next_retry_at": bson.M{"$exists": false}},
					{"next_retry_at": nil},
					{"next_retry_at": bson.M{"$lte": now}},
				},
			},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}}).SetLimit(int64(limit))
	cur, err := s.consumers.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "fetch pending consumers")
	}
	defer cur.Close(ctx)
	var out []events.Consumer
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "decode pending consumers")
	}
	return out, nil
}

func (s *Store) UpdateConsumer(ctx context.Context, c events.Consumer) error {
	_, err := s.consumers.ReplaceOne(ctx, bson.M{"_id": c.ID}, c)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "update consumer %s", c.ID)
	}
	return nil
}

func (s *Store) ResetConsumer(ctx context.Context, consumerID string) error {
	update := bson.M{"$set": bson.M{
		"status":        events.ConsumerPending,
		"retry":         0,
		"error_message": "",
		"date":          s.clock().UnixMilli(),
	}, "$unset": bson.M{"next_retry_at": ""}}
	res, err := s.consumers.UpdateOne(ctx, bson.M{"_id": consumerID}, update)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "reset consumer %s", consumerID)
	}
	if res.MatchedCount == 0 {
		return apperr.New(apperr.NotFound, "consumer %s not found", consumerID)
	}
	return nil
}

func (s *Store) EventByID(ctx context.Context, id string) (events.Event, error) {
	var evt events.Event
	err := s.events.FindOne(ctx, bson.M{"_id": id}).Decode(&evt)
	if err == mongo.ErrNoDocuments {
		return events.Event{}, apperr.New(apperr.NotFound, "event %s not found", id)
	}
	if err != nil {
		return events.Event{}, apperr.Wrap(apperr.ExternalRetryable, err, "load event %s", id)
	}
	return evt, nil
}

func (s *Store) ConsumerByID(ctx context.Context, id string) (events.Consumer, error) {
	var c events.Consumer
	err := s.consumers.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return events.Consumer{}, apperr.New(apperr.NotFound, "consumer %s not found", id)
	}
	if err != nil {
		return events.Consumer{}, apperr.Wrap(apperr.ExternalRetryable, err, "load consumer %s", id)
	}
	return c, nil
}

func (s *Store) EventsByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]events.Event, error) {
	filter := bson.M{"aggregate_type": aggregateType, "aggregate_id": aggregateID}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cur, err := s.events.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "events by aggregate %s/%s", aggregateType, aggregateID)
	}
	defer cur.Close(ctx)
	var out []events.Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "decode events by aggregate")
	}
	return out, nil
}

func (s *Store) ConsumersByEvent(ctx context.Context, eventID string) ([]events.Consumer, error) {
	cur, err := s.consumers.Find(ctx, bson.M{"event_id": eventID})
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "consumers by event %s", eventID)
	}
	defer cur.Close(ctx)
	var out []events.Consumer
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "decode consumers by event")
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context) (events.Stats, error) {
	out := events.Stats{
		EventsByName:     map[string]int64{},
		ConsumersByState: map[events.ConsumerStatus]int64{},
	}

	eventCur, err := s.events.Aggregate(ctx, bson.A{
		bson.M{"$group": bson.M{"_id": "$event_name", "count": bson.M{"$sum": 1}}},
	})
	if err != nil {
		return events.Stats{}, apperr.Wrap(apperr.ExternalRetryable, err, "stats: group events")
	}
	defer eventCur.Close(ctx)
	var eventRows []struct {
		ID    string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := eventCur.All(ctx, &eventRows); err != nil {
		return events.Stats{}, apperr.Wrap(apperr.ExternalRetryable, err, "stats: decode event groups")
	}
	for _, row := range eventRows {
		out.EventsByName[row.ID] = row.Count
	}

	consumerCur, err := s.consumers.Aggregate(ctx, bson.A{
		bson.M{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}},
	})
	if err != nil {
		return events.Stats{}, apperr.Wrap(apperr.ExternalRetryable, err, "stats: group consumers")
	}
	defer consumerCur.Close(ctx)
	var consumerRows []struct {
		ID    events.ConsumerStatus `bson:"_id"`
		Count int64                 `bson:"count"`
	}
	if err := consumerCur.All(ctx, &consumerRows); err != nil {
		return events.Stats{}, apperr.Wrap(apperr.ExternalRetryable, err, "stats: decode consumer groups")
	}
	for _, row := range consumerRows {
		out.ConsumersByState[row.ID] = row.Count
	}
	return out, nil
}

var _ events.Store = (*Store)(nil)
