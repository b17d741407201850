package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vendabot/vendabot/internal/cart"
	"github.com/vendabot/vendabot/internal/catalog"
	"github.com/vendabot/vendabot/internal/config"
	"github.com/vendabot/vendabot/internal/httpx"
	"github.com/vendabot/vendabot/internal/kafkax"
	"github.com/vendabot/vendabot/internal/nlp"
	"github.com/vendabot/vendabot/internal/payment"
	"github.com/vendabot/vendabot/internal/postgres"
	"github.com/vendabot/vendabot/internal/redisx"
	"github.com/vendabot/vendabot/internal/session"
	"github.com/vendabot/vendabot/internal/transport"
)

func main() {
	app := &cli.App{
		Name:  "vendabot",
		Usage: "conversational storefront over a chat channel",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "env file loaded before config"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func run(c *cli.Context) error {
	_ = godotenv.Load(c.String("env-file"))

	log := logrus.New()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		return err
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(log, cfg.KafkaBrokers, cart.TopicOrderPaid, 1024)
	prod.Start(ctx)

	catalogRepo := &catalog.Repo{DB: db, Redis: rdb, Log: log}
	ledger := &cart.Ledger{DB: db, Locks: cart.NewUserLocks(), Log: log}
	users := &session.UserRepo{DB: db}
	gateway := payment.NewMercadoPago(cfg.MercadoPagoAccessToken)

	machine := &session.Machine{
		Users:        users,
		Catalog:      catalogRepo,
		Ledger:       ledger,
		Classifier:   nlp.Keyword{},
		Log:          log,
		BaseURL:      cfg.BaseURL,
		CatalogPause: 500 * time.Millisecond,
	}

	var dialer transport.Dialer
	switch cfg.Transport {
	case "console":
		dialer = transport.ConsoleDialer{In: os.Stdin, Out: os.Stdout}
	default:
		return fmt.Errorf("unknown transport adapter %q", cfg.Transport)
	}

	sup := transport.NewSupervisor(dialer, transport.CredStore{Dir: cfg.AuthDir}, log, machine.Handle)
	sup.OnPairing = func(challenge string) {
		log.WithField("challenge", challenge).Info("scan to pair")
	}
	machine.Sender = sup

	rec := &payment.Reconciler{
		Gateway:  gateway,
		Ledger:   ledger,
		Users:    users,
		Sender:   sup,
		Producer: prod,
		Catalog:  catalogRepo,
		Log:      log,
		Service:  cfg.ServiceName,
	}

	router := httpx.NewRouter(cfg.AssetsDir)
	h := &httpx.CheckoutHandler{
		Users:      users,
		Ledger:     ledger,
		Catalog:    catalogRepo,
		Gateway:    gateway,
		Reconciler: rec,
		Log:        log,
		BaseURL:    cfg.BaseURL,
		PublicKey:  cfg.MercadoPagoPublicKey,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen failed")
		}
	}()

	sup.Start(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	cancel()
	prod.WaitClosed()
	return nil
}
