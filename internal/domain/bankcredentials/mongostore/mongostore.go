// Package mongostore is the Mongo-backed BankCredentials repository.
package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/bankcredentials"
)

type doc struct {
	ID                    string    `bson:"_id"`
	SellerAddress         string    `bson:"seller_address"`
	ClientID              string    `bson:"client_id"`
	ClientSecretEncrypted string    `bson:"client_secret_encrypted"`
	CertificateURI        string    `bson:"certificate_uri"`
	AccessToken           string    `bson:"access_token,omitempty"`
	TokenExpiresAt        time.Time `bson:"token_expires_at,omitempty"`
	CreatedAt             time.Time `bson:"created_at"`
	UpdatedAt             time.Time `bson:"updated_at"`
}

func fromDomain(b bankcredentials.BankCredentials) doc {
	return doc{
		ID: b.ID, SellerAddress: b.SellerAddress, ClientID: b.ClientID,
		ClientSecretEncrypted: b.ClientSecretEncrypted, CertificateURI: b.CertificateURI,
		AccessToken: b.AccessToken, TokenExpiresAt: b.TokenExpiresAt,
		CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
	}
}

func (d doc) toDomain() bankcredentials.BankCredentials {
	return bankcredentials.BankCredentials{
		ID: d.ID, SellerAddress: d.SellerAddress, ClientID: d.ClientID,
		ClientSecretEncrypted: d.ClientSecretEncrypted, CertificateURI: d.CertificateURI,
		AccessToken: d.AccessToken, TokenExpiresAt: d.TokenExpiresAt,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type Store struct {
	coll  *mongo.Collection
	clock func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{coll: db.Collection("bank_credentials"), clock: time.Now}
}

func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	idx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "seller_address", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	_, err := db.Collection("bank_credentials").Indexes().CreateMany(ctx, idx)
	return err
}

func (s *Store) ByID(ctx context.Context, id string) (bankcredentials.BankCredentials, error) {
	var d doc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return bankcredentials.BankCredentials{}, apperr.New(apperr.NotFound, "bank credentials %s not found", id)
	}
	if err != nil {
		return bankcredentials.BankCredentials{}, apperr.Wrap(apperr.ExternalRetryable, err, "load bank credentials %s", id)
	}
	return d.toDomain(), nil
}

func (s *Store) BySellerAddress(ctx context.Context, sellerAddress string) (*bankcredentials.BankCredentials, error) {
	var d doc
	err := s.coll.FindOne(ctx, bson.M{"seller_address": sellerAddress}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "load bank credentials for seller %s", sellerAddress)
	}
	out := d.toDomain()
	return &out, nil
}

func (s *Store) Upsert(ctx context.Context, b bankcredentials.BankCredentials) (bankcredentials.BankCredentials, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := s.clock()
	b.UpdatedAt = now
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After).SetUpsert(true)
	update := bson.M{
		"$set": bson.M{
			"client_id":               b.ClientID,
			"client_secret_encrypted": b.ClientSecretEncrypted,
			"certificate_uri":         b.CertificateURI,
			"updated_at":              now,
		},
		"$setOnInsert": bson.M{
			"_id":            b.ID,
			"seller_address": b.SellerAddress,
			"created_at":     now,
		},
	}
	var d doc
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"seller_address": b.SellerAddress}, update, opts).Decode(&d)
	if err != nil {
		return bankcredentials.BankCredentials{}, apperr.Wrap(apperr.ExternalRetryable, err, "upsert bank credentials for seller %s", b.SellerAddress)
	}
	return d.toDomain(), nil
}

func (s *Store) SetAccessToken(ctx context.Context, sellerAddress, accessToken string, expiresAt time.Time) (bankcredentials.BankCredentials, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$set": bson.M{
		"access_token":     accessToken,
		"token_expires_at": expiresAt,
		"updated_at":       s.clock(),
	}}
	var d doc
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"seller_address": sellerAddress}, update, opts).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return bankcredentials.BankCredentials{}, apperr.New(apperr.NotFound, "bank credentials for seller %s not found", sellerAddress)
	}
	if err != nil {
		return bankcredentials.BankCredentials{}, apperr.Wrap(apperr.ExternalRetryable, err, "set access token for seller %s", sellerAddress)
	}
	return d.toDomain(), nil
}

var _ bankcredentials.Repository = (*Store)(nil)
