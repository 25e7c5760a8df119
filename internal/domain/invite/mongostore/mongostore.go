// Package mongostore is the Mongo-backed Invite repository.
package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/invite"
)

type doc struct {
	ID             string        `bson:"_id"`
	Code           string        `bson:"code"`
	IssuedBy       string        `bson:"issued_by"`
	InviteeAddress string        `bson:"invitee_address,omitempty"`
	Status         invite.Status `bson:"status"`
	CreatedAt      time.Time     `bson:"created_at"`
	ExpiresAt      time.Time     `bson:"expires_at"`
	RedeemedAt     *time.Time    `bson:"redeemed_at,omitempty"`
}

func fromDomain(i invite.Invite) doc {
	return doc{
		ID: i.ID, Code: i.Code, IssuedBy: i.IssuedBy, InviteeAddress: i.InviteeAddress,
		Status: i.Status, CreatedAt: i.CreatedAt, ExpiresAt: i.ExpiresAt, RedeemedAt: i.RedeemedAt,
	}
}

func (d doc) toDomain() invite.Invite {
	return invite.Invite{
		ID: d.ID, Code: d.Code, IssuedBy: d.IssuedBy, InviteeAddress: d.InviteeAddress,
		Status: d.Status, CreatedAt: d.CreatedAt, ExpiresAt: d.ExpiresAt, RedeemedAt: d.RedeemedAt,
	}
}

type Store struct {
	coll  *mongo.Collection
	clock func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{coll: db.Collection("invites"), clock: time.Now}
}

func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	idx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
	}
	_, err := db.Collection("invites").Indexes().CreateMany(ctx, idx)
	return err
}

func (s *Store) Create(ctx context.Context, i invite.Invite) (invite.Invite, error) {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	i.CreatedAt = s.clock()
	if i.Status == "" {
		i.Status = invite.Pending
	}
	if _, err := s.coll.InsertOne(ctx, fromDomain(i)); err != nil {
		return invite.Invite{}, apperr.Wrap(apperr.ExternalRetryable, err, "create invite")
	}
	return i, nil
}

func (s *Store) ByCode(ctx context.Context, code string) (invite.Invite, error) {
	var d doc
	err := s.coll.FindOne(ctx, bson.M{"code": code}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return invite.Invite{}, apperr.New(apperr.NotFound, "invite %s not found", code)
	}
	if err != nil {
		return invite.Invite{}, apperr.Wrap(apperr.ExternalRetryable, err, "load invite %s", code)
	}
	return d.toDomain(), nil
}

func (s *Store) Redeem(ctx context.Context, code, inviteeAddress string, now time.Time) (*invite.Invite, error) {
	filter := bson.M{"code": code, "status": invite.Pending, "expires_at": bson.M{"$gt": now}}
	update := bson.M{"$set": bson.M{
		"status":          invite.Redeemed,
		"invitee_address": inviteeAddress,
		"redeemed_at":     now,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d doc
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "redeem invite %s", code)
	}
	out := d.toDomain()
	return &out, nil
}

func (s *Store) Revoke(ctx context.Context, code string) (*invite.Invite, error) {
	filter := bson.M{"code": code, "status": invite.Pending}
	update := bson.M{"$set": bson.M{"status": invite.Revoked}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d doc
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "revoke invite %s", code)
	}
	out := d.toDomain()
	return &out, nil
}

func (s *Store) ExpireOlderThan(ctx context.Context, now time.Time) (int64, error) {
	filter := bson.M{"status": invite.Pending, "expires_at": bson.M{"$lte": now}}
	update := bson.M{"$set": bson.M{"status": invite.Expired}}
	res, err := s.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, apperr.Wrap(apperr.ExternalRetryable, err, "expire invites")
	}
	return res.ModifiedCount, nil
}

var _ invite.Repository = (*Store)(nil)
