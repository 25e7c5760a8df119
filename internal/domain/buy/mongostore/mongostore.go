// Package mongostore is the Mongo-backed Buy repository.
package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/buy"
)

type doc struct {
	ID                      string     `bson:"_id"`
	AdvertisementID         string     `bson:"advertisement_id"`
	Amount                  int64      `bson:"amount"`
	PriceCents              int64      `bson:"price_cents"`
	FeeCents                int64      `bson:"fee_cents"`
	PayValueCents           int64      `bson:"pay_value_cents"`
	AddressBuy              string     `bson:"address_buy"`
	PixKey                  string     `bson:"pix_key"`
	PixConfirmationCode     string     `bson:"pix_confirmation_code,omitempty"`
	Status                  buy.Status `bson:"status"`
	IsFinal                 bool       `bson:"is_final"`
	ExpiresAt               time.Time  `bson:"expires_at"`
	PixVerificationAttempts int        `bson:"pix_verification_attempts"`
	PixEndToEndID           string     `bson:"pix_end_to_end_id,omitempty"`
	CreatedAt               time.Time  `bson:"created_at"`
	UpdatedAt               time.Time  `bson:"updated_at"`
}

func fromDomain(b buy.Buy) doc {
	return doc{
		ID: b.ID, AdvertisementID: b.AdvertisementID, Amount: b.Amount, PriceCents: b.PriceCents,
		FeeCents: b.FeeCents, PayValueCents: b.PayValueCents, AddressBuy: b.AddressBuy,
		PixKey: b.PixKey, PixConfirmationCode: b.PixConfirmationCode, Status: b.Status,
		IsFinal: buy.IsFinal(b.Status), ExpiresAt: b.ExpiresAt,
		PixVerificationAttempts: b.PixVerificationAttempts, PixEndToEndID: b.PixEndToEndID,
		CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
	}
}

func (d doc) toDomain() buy.Buy {
	return buy.Buy{
		ID: d.ID, AdvertisementID: d.AdvertisementID, Amount: d.Amount, PriceCents: d.PriceCents,
		FeeCents: d.FeeCents, PayValueCents: d.PayValueCents, AddressBuy: d.AddressBuy,
		PixKey: d.PixKey, PixConfirmationCode: d.PixConfirmationCode, Status: d.Status,
		ExpiresAt: d.ExpiresAt, PixVerificationAttempts: d.PixVerificationAttempts,
		PixEndToEndID: d.PixEndToEndID, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type Store struct {
	coll  *mongo.Collection
	clock func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{coll: db.Collection("buys"), clock: time.Now}
}

// EnsureIndexes creates the one-non-final-buy-per-(ad,buyer) unique
// index spec.md §3.5 requires, plus lookup indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	idx := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "advertisement_id", Value: 1}, {Key: "address_buy", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_final": false}),
		},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	}
	_, err := db.Collection("buys").Indexes().CreateMany(ctx, idx)
	return err
}

func (s *Store) Create(ctx context.Context, b buy.Buy) (buy.Buy, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := s.clock()
	b.CreatedAt, b.UpdatedAt = now, now
	if b.Status == "" {
		b.Status = buy.Pending
	}
	if _, err := s.coll.InsertOne(ctx, fromDomain(b)); err != nil {
		return buy.Buy{}, apperr.Wrap(apperr.ExternalRetryable, err, "create buy")
	}
	return b, nil
}

func (s *Store) ByID(ctx context.Context, id string) (buy.Buy, error) {
	var d doc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return buy.Buy{}, apperr.New(apperr.NotFound, "buy %s not found", id)
	}
	if err != nil {
		return buy.Buy{}, apperr.Wrap(apperr.ExternalRetryable, err, "load buy %s", id)
	}
	return d.toDomain(), nil
}

func (s *Store) HasActiveBuyFor(ctx context.Context, advertisementID, addressBuy string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{
		"advertisement_id": advertisementID, "address_buy": addressBuy, "is_final": false,
	})
	if err != nil {
		return false, apperr.Wrap(apperr.ExternalRetryable, err, "count active buys")
	}
	return n > 0, nil
}

func (s *Store) HasNonFinalBuyFor(ctx context.Context, advertisementID string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"advertisement_id": advertisementID, "is_final": false})
	if err != nil {
		return false, apperr.Wrap(apperr.ExternalRetryable, err, "count non-final buys for %s", advertisementID)
	}
	return n > 0, nil
}

func (s *Store) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*buy.Buy, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d doc
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "guarded buy update")
	}
	out := d.toDomain()
	return &out, nil
}

func (s *Store) transition(ctx context.Context, id string, allowedFrom []buy.Status, to buy.Status, extra bson.M) (*buy.Buy, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": allowedFrom}}
	set := bson.M{"status": to, "is_final": buy.IsFinal(to), "updated_at": s.clock()}
	for k, v := range extra {
		set[k] = v
	}
	return s.findOneAndUpdate(ctx, filter, bson.M{"$set": set})
}

func (s *Store) Expire(ctx context.Context, id string, now time.Time) (*buy.Buy, error) {
	filter := bson.M{"_id": id, "status": buy.Pending, "expires_at": bson.M{"$lte": now}}
	update := bson.M{"$set": bson.M{"status": buy.Expired, "is_final": true, "updated_at": s.clock()}}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Store) Cancel(ctx context.Context, id, buyerAddr string) (*buy.Buy, error) {
	filter := bson.M{"_id": id, "status": buy.Pending, "address_buy": buyerAddr}
	update := bson.M{"$set": bson.M{"status": buy.Cancelled, "is_final": true, "updated_at": s.clock()}}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Store) MarkPaid(ctx context.Context, id string, confirmationCode string) (*buy.Buy, error) {
	extra := bson.M{}
	if confirmationCode != "" {
		extra["pix_confirmation_code"] = confirmationCode
	}
	return s.transition(ctx, id, []buy.Status{buy.Pending}, buy.Paid, extra)
}

func (s *Store) MarkPaymentConfirmedWithTxn(ctx context.Context, id, endToEndID string) (*buy.Buy, error) {
	return s.transition(ctx, id, []buy.Status{buy.Paid}, buy.PaymentConfirmed, bson.M{"pix_end_to_end_id": endToEndID})
}

func (s *Store) MarkInDispute(ctx context.Context, id string) (*buy.Buy, error) {
	return s.transition(ctx, id, []buy.Status{buy.Pending, buy.Paid}, buy.InDispute, nil)
}

func (s *Store) MarkDisputeFavorBuyer(ctx context.Context, id string) (*buy.Buy, error) {
	return s.transition(ctx, id, []buy.Status{buy.InDispute}, buy.DisputeFavorBuyer, nil)
}

func (s *Store) MarkDisputeFavorSeller(ctx context.Context, id string) (*buy.Buy, error) {
	return s.transition(ctx, id, []buy.Status{buy.InDispute}, buy.DisputeFavorSeller, nil)
}

func (s *Store) MarkDisputeResolvedBuyer(ctx context.Context, id string) (*buy.Buy, error) {
	return s.transition(ctx, id, []buy.Status{buy.DisputeFavorBuyer}, buy.DisputeResolvedBuyer, nil)
}

func (s *Store) MarkDisputeResolvedSeller(ctx context.Context, id string) (*buy.Buy, error) {
	return s.transition(ctx, id, []buy.Status{buy.DisputeFavorSeller}, buy.DisputeResolvedSeller, nil)
}

func (s *Store) IncrementVerificationAttempt(ctx context.Context, id string) error {
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"pix_verification_attempts": 1},
		"$set": bson.M{"updated_at": s.clock()},
	})
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "increment verification attempt for buy %s", id)
	}
	return nil
}

func (s *Store) ListByStatus(ctx context.Context, status buy.Status) ([]buy.Buy, error) {
	cur, err := s.coll.Find(ctx, bson.M{"status": status})
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "list buys by status %s", status)
	}
	defer cur.Close(ctx)
	var docs []doc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "decode buys by status")
	}
	out := make([]buy.Buy, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *Store) ListExpirable(ctx context.Context, now time.Time) ([]buy.Buy, error) {
	cur, err := s.coll.Find(ctx, bson.M{"status": buy.Pending, "expires_at": bson.M{"$lte": now}})
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "list expirable buys")
	}
	defer cur.Close(ctx)
	var docs []doc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "decode expirable buys")
	}
	out := make([]buy.Buy, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

var _ buy.Repository = (*Store)(nil)
