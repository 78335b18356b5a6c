package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/lpsbridge/iso8583-adaptor/internal/accountlookup"
	"github.com/lpsbridge/iso8583-adaptor/internal/adaptor"
	"github.com/lpsbridge/iso8583-adaptor/internal/api"
	"github.com/lpsbridge/iso8583-adaptor/internal/config"
	"github.com/lpsbridge/iso8583-adaptor/internal/events"
	"github.com/lpsbridge/iso8583-adaptor/internal/hub"
	"github.com/lpsbridge/iso8583-adaptor/internal/ilp"
	"github.com/lpsbridge/iso8583-adaptor/internal/logger"
	"github.com/lpsbridge/iso8583-adaptor/internal/lps"
	"github.com/lpsbridge/iso8583-adaptor/internal/models"
	"github.com/lpsbridge/iso8583-adaptor/internal/quotes"
	"github.com/lpsbridge/iso8583-adaptor/internal/storage/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := *baseLogger

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("database unreachable")
	}

	var publisher *events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := events.NewProducer(cfg.Kafka.Brokers, log.With().Str("component", "kafka").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka producer")
		}
		defer func() {
			if err := producer.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka producer")
			}
		}()
		publisher = events.NewPublisher(producer, cfg.Kafka.EventsTopic,
			log.With().Str("component", "events").Logger())
	} else {
		log.Warn().Msg("no kafka brokers configured, lifecycle events disabled")
	}

	codec, err := ilp.NewCodec(cfg.ILP.Secret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create ilp codec")
	}

	engine, err := quotes.NewEngine(codec, flatFeeCalculator(cfg.Quotes.AdaptorFee),
		time.Duration(cfg.Quotes.ExpirySeconds)*time.Second,
		log.With().Str("component", "quotes").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create quote engine")
	}

	clientTimeout := time.Duration(cfg.Timeouts.ClientTimeoutSeconds) * time.Second
	httpClient := &http.Client{Timeout: clientTimeout}

	hubClient, err := hub.NewClient(cfg.Peers.HubURL, cfg.App.FspID,
		log.With().Str("component", "hub").Logger(), hub.WithHTTPClient(httpClient))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create hub client")
	}
	lookupClient, err := accountlookup.NewClient(cfg.Peers.AccountLookupURL, cfg.App.FspID,
		log.With().Str("component", "account-lookup").Logger(), accountlookup.WithHTTPClient(httpClient))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create account lookup client")
	}
	lpsClient, err := lps.NewClient(cfg.Peers.LpsCallbackURL,
		log.With().Str("component", "lps").Logger(), lps.WithHTTPClient(httpClient))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create lps client")
	}

	deps := adaptor.Dependencies{
		Transactions:   postgres.NewTransactionStore(db),
		Transfers:      postgres.NewTransferStore(db),
		LegacyMessages: postgres.NewLegacyMessageStore(db),
		AccountLookup:  lookupClient,
		Hub:            hubClient,
		LPS:            lpsClient,
		Quotes:         engine,
		ILP:            codec,
		Logger:         log.With().Str("component", "adaptor").Logger(),
	}
	if publisher != nil {
		deps.Events = publisher
	}
	core, err := adaptor.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create adaptor")
	}

	server, err := api.NewServer(core, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create api server")
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.Timeouts.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Timeouts.WriteTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().Int("port", cfg.App.Port).Msg("adaptor started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server terminated with error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Timeouts.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
}

// flatFeeCalculator charges the configured flat fee in the transaction
// currency.
func flatFeeCalculator(fee string) quotes.FeeCalculator {
	return func(_ context.Context, amount models.Money) (models.Money, error) {
		return models.NewMoney(fee, amount.Currency)
	}
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("adaptor init failed")
}
