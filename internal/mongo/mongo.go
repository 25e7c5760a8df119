// Package mongo bootstraps the single *mongo.Database connection every
// store in the engine shares, and runs each domain package's idempotent
// EnsureIndexes in one place at boot, per SPEC_FULL.md's persisted state
// layout.
package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	advertisementstore "github.com/b2pix/engine/internal/domain/advertisement/mongostore"
	bankcredentialsstore "github.com/b2pix/engine/internal/domain/bankcredentials/mongostore"
	buystore "github.com/b2pix/engine/internal/domain/buy/mongostore"
	depositstore "github.com/b2pix/engine/internal/domain/deposit/mongostore"
	invitestore "github.com/b2pix/engine/internal/domain/invite/mongostore"
	paymentrequeststore "github.com/b2pix/engine/internal/domain/paymentrequest/mongostore"
	eventsstore "github.com/b2pix/engine/internal/events/mongostore"
)

// Connect dials uri and pings the server, returning the named database.
func Connect(ctx context.Context, uri, database string) (*mongo.Database, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, nil, err
	}
	return client.Database(database), client.Disconnect, nil
}

// EnsureAllIndexes runs every domain package's EnsureIndexes against db.
// It is safe to call on every boot: index creation is idempotent.
func EnsureAllIndexes(ctx context.Context, db *mongo.Database) error {
	steps := []func(context.Context, *mongo.Database) error{
		advertisementstore.EnsureIndexes,
		bankcredentialsstore.EnsureIndexes,
		buystore.EnsureIndexes,
		depositstore.EnsureIndexes,
		invitestore.EnsureIndexes,
		paymentrequeststore.EnsureIndexes,
		eventsstore.EnsureIndexes,
	}
	for _, step := range steps {
		if err := step(ctx, db); err != nil {
			return err
		}
	}
	return nil
}
