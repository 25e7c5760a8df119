// Command server is the B2PIX engine's process entry point: it wires
// config, storage, the external adapters, the event dispatcher, the
// periodic task scheduler, and the HTTP API, then runs until a shutdown
// signal arrives.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/b2pix/engine/internal/config"
	advertisementstore "github.com/b2pix/engine/internal/domain/advertisement/mongostore"
	bankcredentialsstore "github.com/b2pix/engine/internal/domain/bankcredentials/mongostore"
	buystore "github.com/b2pix/engine/internal/domain/buy/mongostore"
	depositstore "github.com/b2pix/engine/internal/domain/deposit/mongostore"
	invitestore "github.com/b2pix/engine/internal/domain/invite/mongostore"
	paymentrequeststore "github.com/b2pix/engine/internal/domain/paymentrequest/mongostore"
	"github.com/b2pix/engine/internal/events"
	eventsstore "github.com/b2pix/engine/internal/events/mongostore"
	"github.com/b2pix/engine/internal/external/boltclient"
	"github.com/b2pix/engine/internal/external/efipay"
	"github.com/b2pix/engine/internal/external/gcsobjects"
	"github.com/b2pix/engine/internal/external/notify"
	"github.com/b2pix/engine/internal/external/pricefeed"
	"github.com/b2pix/engine/internal/httpapi"
	"github.com/b2pix/engine/internal/logger"
	internalmongo "github.com/b2pix/engine/internal/mongo"
	"github.com/b2pix/engine/internal/scheduler"
	"github.com/b2pix/engine/internal/services/advertisementservice"
	"github.com/b2pix/engine/internal/services/automaticpay"
	"github.com/b2pix/engine/internal/services/bankcredentialsservice"
	"github.com/b2pix/engine/internal/services/buyservice"
	"github.com/b2pix/engine/internal/services/disputeservice"
	"github.com/b2pix/engine/internal/services/depositservice"
	"github.com/b2pix/engine/internal/services/inviteservice"
	servicenotify "github.com/b2pix/engine/internal/services/notify"
	"github.com/b2pix/engine/internal/services/priceoracle"
	"github.com/b2pix/engine/internal/services/reconciler"
	"github.com/b2pix/engine/internal/signature"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New(os.Getenv("NETWORK") != "mainnet")
	ctx = logger.WithContext(ctx, log)

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("server.fatal")
	}
}

func run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, disconnect, err := internalmongo.Connect(ctx, cfg.MongoURI, cfg.DatabaseName)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = disconnect(shutdownCtx)
	}()
	if err := internalmongo.EnsureAllIndexes(ctx, db); err != nil {
		return err
	}

	ads := advertisementstore.New(db)
	buys := buystore.New(db)
	deposits := depositstore.New(db)
	bankCreds := bankcredentialsstore.New(db)
	invites := invitestore.New(db)
	payReqs := paymentrequeststore.New(db)
	eventStore := eventsstore.New(db)

	chain := boltclient.New(cfg.Chain.BaseURL, cfg.Chain.Timeout)
	bank := efipay.New(cfg.Bank.BaseURL, cfg.Bank.Timeout)
	objects := gcsobjects.New(cfg.GCS.Bucket, cfg.GCS.AccessToken)
	emailSink := notify.NewEmailSink(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.From, cfg.Email.APIKey, cfg.Email.Recipients)
	trelloSink := notify.NewTrelloSink(cfg.Trello.APIKey, cfg.Trello.Token, cfg.Trello.ListID)

	registry := events.NewRegistry()
	automaticPay := automaticpay.New(payReqs, chain)
	registry.Register(automaticpay.NewEventHandler(automaticPay), events.AllEventNames)
	registry.Register(servicenotify.NewPaymentSellerSuccessEmailHandler(emailSink, buys), events.AllEventNames)
	registry.Register(servicenotify.NewDisputeTrelloHandler(trelloSink), events.AllEventNames)

	dispatcher := events.NewDispatcher(eventStore, registry, cfg.Dispatcher, nil)

	feed := pricefeed.New(5 * time.Second)
	oracle := priceoracle.New(feed.Quote)
	quote := oracle.Price

	invitesSvc := inviteservice.New(invites)
	banksSvc := bankcredentialsservice.New(bankCreds, objects, time.Now)
	adsSvc := advertisementservice.New(ads, buys, payReqs, eventStore)
	buysSvc := buyservice.New(buys, ads, bankCreds, bank, objects, quote)
	disputesSvc := disputeservice.New(buys, ads, payReqs, eventStore)
	depositsSvc := depositservice.New(deposits, ads, chain, eventStore)
	reconcilerSvc := reconciler.New(buys, ads, bankCreds, bank, payReqs, eventStore)

	addressVersion := signature.VersionTestnetSingleSig
	if cfg.IsProduction() {
		addressVersion = signature.VersionMainnetSingleSig
	}

	server := &httpapi.Server{
		ManagerAddress: cfg.AddressManager,
		AddressVersion: addressVersion,
		Invites:        invitesSvc,
		Banks:          banksSvc,
		Ads:            adsSvc,
		Buys:           buysSvc,
		Disputes:       disputesSvc,
		AdRepo:         ads,
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: server.Router(),
	}

	sched := scheduler.New(2*time.Second,
		scheduler.Task{Name: "deposit_confirmations", Interval: 60 * time.Second, Run: func(ctx context.Context) error {
			return depositsSvc.PollConfirmations(ctx, registry)
		}},
		scheduler.Task{Name: "buy_expiry_sweep", Interval: 30 * time.Second, Run: buysSvc.SweepExpired},
		scheduler.Task{Name: "payment_reconciliation", Interval: 20 * time.Second, Run: func(ctx context.Context) error {
			return reconcilerSvc.Reconcile(ctx, registry)
		}},
		scheduler.Task{Name: "automatic_pay_retry", Interval: 30 * time.Second, Run: automaticPay.RetryStalePending},
		scheduler.Task{Name: "automatic_pay_verify_broadcast", Interval: 30 * time.Second, Run: automaticPay.VerifyBroadcast},
		scheduler.Task{Name: "dispute_favor_seller", Interval: 30 * time.Second, Run: disputesSvc.ResolveFavorSeller},
		scheduler.Task{Name: "dispute_favor_buyer", Interval: 30 * time.Second, Run: func(ctx context.Context) error {
			return disputesSvc.ResolveFavorBuyer(ctx, registry)
		}},
		scheduler.Task{Name: "advertisement_finishing_reaper", Interval: 60 * time.Second, Run: func(ctx context.Context) error {
			return adsSvc.ProcessFinishing(ctx, registry)
		}},
		scheduler.Task{Name: "invite_expiry_sweep", Interval: 5 * time.Minute, Run: invitesSvc.SweepExpired},
	)

	go dispatcher.Run(ctx)
	go sched.Run(ctx)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("server.listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server.listen_error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("server.shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
