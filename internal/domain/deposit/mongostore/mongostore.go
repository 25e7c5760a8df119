// Package mongostore is the Mongo-backed Deposit repository.
package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/deposit"
)

type doc struct {
	ID                    string         `bson:"_id"`
	AdvertisementID       string         `bson:"advertisement_id"`
	SellerAddress         string         `bson:"seller_address"`
	SerializedTransaction []byte         `bson:"serialized_transaction"`
	BlockchainTxID        string         `bson:"blockchain_tx_id,omitempty"`
	Amount                int64          `bson:"amount"`
	Status                deposit.Status `bson:"status"`
	CreatedAt             time.Time      `bson:"created_at"`
	UpdatedAt             time.Time      `bson:"updated_at"`
	ConfirmedAt           *time.Time     `bson:"confirmed_at,omitempty"`
}

func fromDomain(d deposit.Deposit) doc {
	return doc{
		ID: d.ID, AdvertisementID: d.AdvertisementID, SellerAddress: d.SellerAddress,
		SerializedTransaction: d.SerializedTransaction, BlockchainTxID: d.BlockchainTxID,
		Amount: d.Amount, Status: d.Status, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
		ConfirmedAt: d.ConfirmedAt,
	}
}

func (d doc) toDomain() deposit.Deposit {
	return deposit.Deposit{
		ID: d.ID, AdvertisementID: d.AdvertisementID, SellerAddress: d.SellerAddress,
		SerializedTransaction: d.SerializedTransaction, BlockchainTxID: d.BlockchainTxID,
		Amount: d.Amount, Status: d.Status, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
		ConfirmedAt: d.ConfirmedAt,
	}
}

type Store struct {
	coll  *mongo.Collection
	clock func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{coll: db.Collection("advertisement_deposits"), clock: time.Now}
}

func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	idx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "advertisement_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "blockchain_tx_id", Value: 1}}, Options: options.Index().SetSparse(true)},
	}
	_, err := db.Collection("advertisement_deposits").Indexes().CreateMany(ctx, idx)
	return err
}

func (s *Store) Create(ctx context.Context, d deposit.Deposit) (deposit.Deposit, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := s.clock()
	d.CreatedAt, d.UpdatedAt = now, now
	d.Status = deposit.Draft
	if _, err := s.coll.InsertOne(ctx, fromDomain(d)); err != nil {
		return deposit.Deposit{}, apperr.Wrap(apperr.ExternalRetryable, err, "create deposit")
	}
	return d, nil
}

func (s *Store) ByID(ctx context.Context, id string) (deposit.Deposit, error) {
	var dc doc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&dc)
	if err == mongo.ErrNoDocuments {
		return deposit.Deposit{}, apperr.New(apperr.NotFound, "deposit %s not found", id)
	}
	if err != nil {
		return deposit.Deposit{}, apperr.Wrap(apperr.ExternalRetryable, err, "load deposit %s", id)
	}
	return dc.toDomain(), nil
}

func (s *Store) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*deposit.Deposit, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var dc doc
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&dc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "guarded deposit update")
	}
	out := dc.toDomain()
	return &out, nil
}

func (s *Store) MarkBroadcast(ctx context.Context, id, blockchainTxID string, amount int64) (*deposit.Deposit, error) {
	filter := bson.M{"_id": id, "status": deposit.Draft}
	update := bson.M{"$set": bson.M{
		"blockchain_tx_id": blockchainTxID,
		"amount":           amount,
		"status":           deposit.Pending,
		"updated_at":       s.clock(),
	}}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Store) MarkFailed(ctx context.Context, id string) (*deposit.Deposit, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": []deposit.Status{deposit.Draft, deposit.Pending}}}
	update := bson.M{"$set": bson.M{"status": deposit.Failed, "updated_at": s.clock()}}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Store) Confirm(ctx context.Context, id string, confirmedAt time.Time) (*deposit.Deposit, error) {
	filter := bson.M{"_id": id, "status": deposit.Pending}
	update := bson.M{"$set": bson.M{
		"status":       deposit.Confirmed,
		"confirmed_at": confirmedAt,
		"updated_at":   s.clock(),
	}}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Store) ListPendingWithTxID(ctx context.Context) ([]deposit.Deposit, error) {
	filter := bson.M{"status": deposit.Pending, "blockchain_tx_id": bson.M{"$ne": ""}}
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "list pending deposits")
	}
	defer cur.Close(ctx)
	var docs []doc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "decode pending deposits")
	}
	out := make([]deposit.Deposit, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

var _ deposit.Repository = (*Store)(nil)
