// Package mongostore is the Mongo-backed Advertisement repository, using
// FindOneAndUpdate for every guarded mutation so predicate and update
// stay atomic (spec.md §4.5).
package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/advertisement"
	"github.com/b2pix/engine/internal/domain/pricing"
)

type doc struct {
	ID                string       `bson:"_id"`
	SellerAddress     string       `bson:"seller_address"`
	Token             string       `bson:"token"`
	Currency          string       `bson:"currency"`
	PricingMode       pricing.Mode `bson:"pricing_mode"`
	FixedPriceCents   int64        `bson:"fixed_price_cents"`
	OffsetBasisPoints int64        `bson:"offset_basis_points"`
	TotalDeposited    int64        `bson:"total_deposited"`
	AvailableAmount   int64        `bson:"available_amount"`
	MinAmountCents    int64        `bson:"min_amount_cents"`
	MaxAmountCents    int64        `bson:"max_amount_cents"`
	PixKey            string       `bson:"pix_key"`
	BankCredentialsID string       `bson:"bank_credentials_id"`
	PixKeyRefreshedAt time.Time    `bson:"pix_key_refreshed_at"`
	Status            advertisement.Status `bson:"status"`
	IsActive          bool         `bson:"is_active"`
	CreatedAt         time.Time    `bson:"created_at"`
	UpdatedAt         time.Time    `bson:"updated_at"`
}

func fromDomain(a advertisement.Advertisement) doc {
	return doc{
		ID: a.ID, SellerAddress: a.SellerAddress, Token: a.Token, Currency: a.Currency,
		PricingMode: a.PricingMode, FixedPriceCents: a.FixedPriceCents, OffsetBasisPoints: a.OffsetBasisPoints,
		TotalDeposited: a.TotalDeposited, AvailableAmount: a.AvailableAmount,
		MinAmountCents: a.MinAmountCents, MaxAmountCents: a.MaxAmountCents,
		PixKey: a.PixKey, BankCredentialsID: a.BankCredentialsID, PixKeyRefreshedAt: a.PixKeyRefreshedAt,
		Status: a.Status, IsActive: advertisement.IsActive(a.Status),
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func (d doc) toDomain() advertisement.Advertisement {
	return advertisement.Advertisement{
		ID: d.ID, SellerAddress: d.SellerAddress, Token: d.Token, Currency: d.Currency,
		PricingMode: d.PricingMode, FixedPriceCents: d.FixedPriceCents, OffsetBasisPoints: d.OffsetBasisPoints,
		TotalDeposited: d.TotalDeposited, AvailableAmount: d.AvailableAmount,
		MinAmountCents: d.MinAmountCents, MaxAmountCents: d.MaxAmountCents,
		PixKey: d.PixKey, BankCredentialsID: d.BankCredentialsID, PixKeyRefreshedAt: d.PixKeyRefreshedAt,
		Status: d.Status, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

// Store implements advertisement.Repository against Mongo.
type Store struct {
	coll  *mongo.Collection
	clock func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{coll: db.Collection("advertisements"), clock: time.Now}
}

// EnsureIndexes creates the unique-active-seller index spec.md §3.3
// requires, plus lookup indexes used by the status scanners.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	idx := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "seller_address", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_active": true}),
		},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}
	_, err := db.Collection("advertisements").Indexes().CreateMany(ctx, idx)
	return err
}

func (s *Store) Create(ctx context.Context, a advertisement.Advertisement) (advertisement.Advertisement, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.clock()
	a.CreatedAt, a.UpdatedAt = now, now
	if _, err := s.coll.InsertOne(ctx, fromDomain(a)); err != nil {
		return advertisement.Advertisement{}, apperr.Wrap(apperr.ExternalRetryable, err, "create advertisement")
	}
	return a, nil
}

func (s *Store) ByID(ctx context.Context, id string) (advertisement.Advertisement, error) {
	var d doc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return advertisement.Advertisement{}, apperr.New(apperr.NotFound, "advertisement %s not found", id)
	}
	if err != nil {
		return advertisement.Advertisement{}, apperr.Wrap(apperr.ExternalRetryable, err, "load advertisement %s", id)
	}
	return d.toDomain(), nil
}

func (s *Store) ByActiveSellerAddress(ctx context.Context, sellerAddress string) (*advertisement.Advertisement, error) {
	var d doc
	err := s.coll.FindOne(ctx, bson.M{"seller_address": sellerAddress, "is_active": true}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "load active advertisement for seller %s", sellerAddress)
	}
	out := d.toDomain()
	return &out, nil
}

func (s *Store) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*advertisement.Advertisement, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d doc
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "guarded advertisement update")
	}
	out := d.toDomain()
	return &out, nil
}

func (s *Store) Reserve(ctx context.Context, adID string, amount int64) (*advertisement.Advertisement, error) {
	filter := bson.M{"_id": adID, "available_amount": bson.M{"$gte": amount}}
	update := bson.M{"$inc": bson.M{"available_amount": -amount}, "$set": bson.M{"updated_at": s.clock()}}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Store) Refund(ctx context.Context, adID string, amount int64) (advertisement.Advertisement, error) {
	filter := bson.M{"_id": adID}
	update := bson.M{"$inc": bson.M{"available_amount": amount}, "$set": bson.M{"updated_at": s.clock()}}
	res, err := s.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return advertisement.Advertisement{}, err
	}
	if res == nil {
		return advertisement.Advertisement{}, apperr.New(apperr.NotFound, "advertisement %s not found", adID)
	}
	return *res, nil
}

func (s *Store) AddDeposit(ctx context.Context, adID string, amount int64) (*advertisement.Advertisement, error) {
	filter := bson.M{"_id": adID}
	update := bson.M{
		"$inc": bson.M{"total_deposited": amount, "available_amount": amount},
		"$set": bson.M{"status": advertisement.Ready, "is_active": true, "updated_at": s.clock()},
	}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Store) LockForDeposit(ctx context.Context, adID string) (*advertisement.Advertisement, error) {
	filter := bson.M{"_id": adID, "status": advertisement.Ready}
	update := bson.M{"$set": bson.M{"status": advertisement.ProcessingDeposit, "is_active": true, "updated_at": s.clock()}}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Store) UnlockFromDeposit(ctx context.Context, adID string) (*advertisement.Advertisement, error) {
	filter := bson.M{"_id": adID, "status": advertisement.ProcessingDeposit}
	update := bson.M{"$set": bson.M{"status": advertisement.Ready, "is_active": true, "updated_at": s.clock()}}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Store) UpdatePricingAtomic(ctx context.Context, adID, sellerAddress string, mode pricing.Mode, minCents, maxCents int64) (*advertisement.Advertisement, error) {
	filter := bson.M{
		"_id":            adID,
		"seller_address": sellerAddress,
		"status": bson.M{"$nin": []advertisement.Status{
			advertisement.Finishing, advertisement.Closed, advertisement.Disabled,
		}},
	}
	update := bson.M{"$set": bson.M{
		"pricing_mode":     mode,
		"min_amount_cents": minCents,
		"max_amount_cents": maxCents,
		"updated_at":       s.clock(),
	}}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Store) UpdatePixKey(ctx context.Context, adID, pixKey, bankCredentialsID string, refreshedAt time.Time) (advertisement.Advertisement, error) {
	filter := bson.M{"_id": adID}
	update := bson.M{"$set": bson.M{
		"pix_key":              pixKey,
		"bank_credentials_id":  bankCredentialsID,
		"pix_key_refreshed_at": refreshedAt,
		"updated_at":           s.clock(),
	}}
	res, err := s.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return advertisement.Advertisement{}, err
	}
	if res == nil {
		return advertisement.Advertisement{}, apperr.New(apperr.NotFound, "advertisement %s not found", adID)
	}
	return *res, nil
}

func (s *Store) TransitionStatus(ctx context.Context, adID string, allowedFrom []advertisement.Status, to advertisement.Status) (*advertisement.Advertisement, error) {
	filter := bson.M{"_id": adID, "status": bson.M{"$in": allowedFrom}}
	update := bson.M{"$set": bson.M{
		"status":     to,
		"is_active":  advertisement.IsActive(to),
		"updated_at": s.clock(),
	}}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Store) ListByStatus(ctx context.Context, status advertisement.Status) ([]advertisement.Advertisement, error) {
	cur, err := s.coll.Find(ctx, bson.M{"status": status})
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "list advertisements by status %s", status)
	}
	defer cur.Close(ctx)
	var docs []doc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "decode advertisements by status")
	}
	out := make([]advertisement.Advertisement, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

var _ advertisement.Repository = (*Store)(nil)
