// Package mongostore is the Mongo-backed PaymentRequest repository.
package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/paymentrequest"
)

type doc struct {
	ID                      string                  `bson:"_id"`
	SourceType              paymentrequest.SourceType `bson:"source_type"`
	SourceID                string                  `bson:"source_id"`
	ReceiverAddress         string                  `bson:"receiver_address"`
	Amount                  int64                   `bson:"amount"`
	AttemptAutomaticPayment bool                    `bson:"attempt_automatic_payment"`
	Status                  paymentrequest.Status   `bson:"status"`
	IsActive                bool                    `bson:"is_active"`
	BlockchainTxID          string                  `bson:"blockchain_tx_id,omitempty"`
	FailureReason           string                  `bson:"failure_reason,omitempty"`
	CreatedAt               time.Time               `bson:"created_at"`
	UpdatedAt               time.Time               `bson:"updated_at"`
}

func fromDomain(p paymentrequest.PaymentRequest) doc {
	return doc{
		ID: p.ID, SourceType: p.SourceType, SourceID: p.SourceID, ReceiverAddress: p.ReceiverAddress,
		Amount: p.Amount, AttemptAutomaticPayment: p.AttemptAutomaticPayment, Status: p.Status,
		IsActive: paymentrequest.IsActive(p.Status), BlockchainTxID: p.BlockchainTxID,
		FailureReason: p.FailureReason, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (d doc) toDomain() paymentrequest.PaymentRequest {
	return paymentrequest.PaymentRequest{
		ID: d.ID, SourceType: d.SourceType, SourceID: d.SourceID, ReceiverAddress: d.ReceiverAddress,
		Amount: d.Amount, AttemptAutomaticPayment: d.AttemptAutomaticPayment, Status: d.Status,
		BlockchainTxID: d.BlockchainTxID, FailureReason: d.FailureReason,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type Store struct {
	coll  *mongo.Collection
	clock func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{coll: db.Collection("payment_requests"), clock: time.Now}
}

// EnsureIndexes creates the at-most-one-active-PaymentRequest-per-source
// unique index spec.md §3.6 requires.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	idx := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "source_id", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_active": true}),
		},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: 1}}},
	}
	_, err := db.Collection("payment_requests").Indexes().CreateMany(ctx, idx)
	return err
}

func (s *Store) Create(ctx context.Context, p paymentrequest.PaymentRequest) (paymentrequest.PaymentRequest, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.clock()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Status == "" {
		if p.AttemptAutomaticPayment {
			p.Status = paymentrequest.PendingAutomaticPayment
		} else {
			p.Status = paymentrequest.Waiting
		}
	}
	if _, err := s.coll.InsertOne(ctx, fromDomain(p)); err != nil {
		return paymentrequest.PaymentRequest{}, apperr.Wrap(apperr.ExternalRetryable, err, "create payment request")
	}
	return p, nil
}

func (s *Store) ByID(ctx context.Context, id string) (paymentrequest.PaymentRequest, error) {
	var d doc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return paymentrequest.PaymentRequest{}, apperr.New(apperr.NotFound, "payment request %s not found", id)
	}
	if err != nil {
		return paymentrequest.PaymentRequest{}, apperr.Wrap(apperr.ExternalRetryable, err, "load payment request %s", id)
	}
	return d.toDomain(), nil
}

func (s *Store) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*paymentrequest.PaymentRequest, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d doc
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "guarded payment request update")
	}
	out := d.toDomain()
	return &out, nil
}

func (s *Store) UpdateStatusAtomic(ctx context.Context, id string, allowedFrom []paymentrequest.Status, to paymentrequest.Status) (*paymentrequest.PaymentRequest, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": allowedFrom}}
	update := bson.M{"$set": bson.M{
		"status":     to,
		"is_active":  paymentrequest.IsActive(to),
		"updated_at": s.clock(),
	}}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Store) SetBroadcastTxID(ctx context.Context, id, blockchainTxID string) (*paymentrequest.PaymentRequest, error) {
	filter := bson.M{"_id": id, "status": paymentrequest.Processing}
	update := bson.M{"$set": bson.M{
		"status":           paymentrequest.Broadcast,
		"is_active":        true,
		"blockchain_tx_id": blockchainTxID,
		"updated_at":       s.clock(),
	}}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Store) SetFailureReason(ctx context.Context, id string, allowedFrom []paymentrequest.Status, reason string) (*paymentrequest.PaymentRequest, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": allowedFrom}}
	update := bson.M{"$set": bson.M{
		"status":         paymentrequest.Failed,
		"is_active":      false,
		"failure_reason": reason,
		"updated_at":     s.clock(),
	}}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Store) ListByStatus(ctx context.Context, status paymentrequest.Status) ([]paymentrequest.PaymentRequest, error) {
	cur, err := s.coll.Find(ctx, bson.M{"status": status})
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "list payment requests by status %s", status)
	}
	defer cur.Close(ctx)
	var docs []doc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "decode payment requests by status")
	}
	out := make([]paymentrequest.PaymentRequest, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *Store) ListStaleProcessingOrPendingAutomatic(ctx context.Context, olderThan time.Time) ([]paymentrequest.PaymentRequest, error) {
	filter := bson.M{
		"status":     paymentrequest.PendingAutomaticPayment,
		"updated_at": bson.M{"$lte": olderThan},
	}
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "list stale payment requests")
	}
	defer cur.Close(ctx)
	var docs []doc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "decode stale payment requests")
	}
	out := make([]paymentrequest.PaymentRequest, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

var _ paymentrequest.Repository = (*Store)(nil)
