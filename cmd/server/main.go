// Command server runs the dataspace authorization server: GNAP grant
// negotiation, OIDC4VP exchange verification, credential issuance and the
// trust registry, behind one HTTP listener.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mandate/internal/audit"
	"mandate/internal/credential"
	"mandate/internal/credential/issuer"
	"mandate/internal/credential/verifier"
	"mandate/internal/did"
	"mandate/internal/keystore"
	"mandate/internal/mates"
	matesstore "mandate/internal/mates/store"
	negotiationservice "mandate/internal/negotiation/service"
	negotiationstore "mandate/internal/negotiation/store"
	"mandate/internal/platform/config"
	"mandate/internal/platform/httpserver"
	"mandate/internal/platform/logger"
	"mandate/internal/platform/metrics"
	"mandate/internal/platform/postgres"
	platformredis "mandate/internal/platform/redis"
	httptransport "mandate/internal/transport/http"
	verificationservice "mandate/internal/verification/service"
	verificationstore "mandate/internal/verification/store"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Audit pipeline: buffered publisher, worker draining into Kafka when
	// brokers are configured, memory otherwise.
	publisher := audit.NewPublisher(256, log)
	var sink audit.Sink = audit.NewMemorySink()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	}
	worker := audit.NewWorker(sink, publisher.Inbox(), log)
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	// Key custody: wallet service when configured, local PEM (or ephemeral
	// dev key) otherwise.
	var keys keystore.KeyStore
	var issuerDID did.DID
	if cfg.WalletURL != "" {
		parsed, err := did.Parse(cfg.IssuerDID)
		if err != nil {
			log.Error("wallet mode needs a valid MANDATE_ISSUER_DID", "error", err)
			os.Exit(1)
		}
		issuerDID = parsed
		keys = keystore.NewWallet(cfg.WalletURL)
	} else {
		local, err := keystore.NewLocalFromFile(cfg.IssuerKeyFile)
		if err != nil {
			log.Error("load issuer key", "error", err)
			os.Exit(1)
		}
		issuerDID = local.DID()
		keys = local
	}
	log.Info("issuer identity ready", "did", issuerDID.String())

	// Verification sessions live in redis when configured so restarts do not
	// strand in-flight exchanges.
	var sessions verificationstore.Store = verificationstore.NewMemory()
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = verificationstore.NewRedis(redisClient.Client, config.VerificationSessionTTL)
	}

	// Negotiation state and the trust registry go to postgres when configured.
	var (
		requests     negotiationstore.RequestStore      = negotiationstore.NewMemoryRequests()
		interactions negotiationstore.InteractionStore  = negotiationstore.NewMemoryInteractions()
		requirements negotiationstore.RequirementsStore = negotiationstore.NewMemoryRequirements()
		registry     mates.Store                        = matesstore.NewMemory()
	)
	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			log.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		requests = negotiationstore.NewPostgresRequests(db)
		interactions = negotiationstore.NewPostgresInteractions(db)
		requirements = negotiationstore.NewPostgresRequirements(db)
		registry = matesstore.NewPostgres(db)
	}

	verifyEngine := verifier.New()
	exchanges := verificationservice.New(sessions, verifyEngine, cfg.ExternalURL, log, m, publisher)

	negotiations := negotiationservice.New(
		requests, interactions, requirements,
		exchanges, registry,
		cfg.ExternalURL, cfg.ContinueWait,
		log, m, publisher,
	)

	issuing := issuer.New(issuer.Config{
		IssuerDID:       issuerDID,
		CredentialTypes: cfg.CredentialTypes,
		DataModel:       credential.DataModelVersion(cfg.DataModelVersion),
	}, keys, log, m, publisher)

	matesService := mates.NewService(registry, m)

	router := httptransport.NewRouter(httptransport.Handlers{
		Negotiation:  httptransport.NewNegotiationHandler(negotiations, log),
		Verification: httptransport.NewVerificationHandler(exchanges, negotiations, log),
		Credentials:  httptransport.NewCredentialsHandler(issuing, log),
		Mates:        httptransport.NewMatesHandler(matesService, log),
	}, log)

	server := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("listening", "addr", cfg.Addr, "external_url", cfg.ExternalURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown incomplete", "error", err)
	}
}
