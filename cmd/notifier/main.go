package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/delivery-confirmation/internal/api"
	"github.com/LeventeLantos/delivery-confirmation/internal/cache"
	"github.com/LeventeLantos/delivery-confirmation/internal/client"
	"github.com/LeventeLantos/delivery-confirmation/internal/config"
	"github.com/LeventeLantos/delivery-confirmation/internal/events"
	"github.com/LeventeLantos/delivery-confirmation/internal/importer"
	"github.com/LeventeLantos/delivery-confirmation/internal/logger"
	"github.com/LeventeLantos/delivery-confirmation/internal/repo"
	"github.com/LeventeLantos/delivery-confirmation/internal/scheduler"
	"github.com/LeventeLantos/delivery-confirmation/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	lg, logCloser := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	slog.SetDefault(lg)

	if err := run(cfg); err != nil {
		slog.Error("notifier stopped with error", "err", err)
		_ = logCloser.Close()
		os.Exit(1)
	}
	_ = logCloser.Close()
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, cfg.Database.PostgresURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := repo.Migrate(ctx, db); err != nil {
			return err
		}
	}
	loc := cfg.Timezone.Location
	store := repo.NewPostgresStore(db, loc)

	var (
		sentCache  cache.MessageCache
		replyCache cache.ReplyCache
	)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		rc := cache.NewRedisCache(rdb, cfg.Redis.TTL)
		sentCache, replyCache = rc, rc
	}

	publisher := newPublisher(cfg.Kafka)
	defer publisher.Close()

	composer := service.NewComposer(loc)
	notifier := service.NewNotifier(sendClient(cfg.Twilio), cfg.Twilio.ContentMax, composer, store).
		WithHooks(storeSentHook(sentCache), nil)
	interpreter := service.NewInterpreter(store, composer, publisher)
	shipments := service.NewShipments(store, notifier, publisher, loc)
	imp := importer.New(store, notifier, loc, cfg.Import.DefaultPrefix)

	var sched *scheduler.Scheduler
	if cfg.Import.SourcePath != "" {
		sched, err = scheduler.New("import", cfg.Import.Interval, importTick(imp, cfg.Import.SourcePath))
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	h := api.NewHandler(api.Deps{
		Store:       store,
		Shipments:   shipments,
		Interpreter: interpreter,
		Notifier:    notifier,
		Importer:    imp,
		Scheduler:   sched,
		Replies:     replyCache,
		Webhook: api.WebhookAuth{
			Validate:  cfg.Twilio.ValidateSignature,
			AuthToken: cfg.Twilio.AuthToken,
			PublicURL: cfg.Twilio.PublicURL,
		},
	})
	srv := newServer(cfg.Server.Address, api.Router(h, cfg.Server.APIKey))

	slog.Info("notifier starting",
		"addr", cfg.Server.Address,
		"timezone", cfg.Timezone.Name,
		"whatsapp", notifier.Enabled(),
		"redis", cfg.Redis.Enabled,
		"kafka", cfg.Kafka.Enabled,
		"import_source", cfg.Import.SourcePath,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// sendClient returns nil when WhatsApp is disabled so the notifier reports
// itself disabled.
func sendClient(cfg config.TwilioConfig) service.SendClient {
	if !cfg.Enabled {
		return nil
	}
	return client.NewTwilioClient(cfg.BaseURL, cfg.AccountSID, cfg.AuthToken, cfg.WhatsAppFrom)
}

func newPublisher(cfg config.KafkaConfig) events.Publisher {
	if !cfg.Enabled {
		return events.Nop{}
	}
	return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}

// storeSentHook records delivered prompts in the cache; nil cache means no-op.
func storeSentHook(c cache.MessageCache) func(ctx context.Context, shipmentID uuid.UUID, remoteMessageID string) error {
	return func(ctx context.Context, shipmentID uuid.UUID, remoteMessageID string) error {
		if c == nil {
			return nil
		}
		return c.StoreSent(ctx, shipmentID, remoteMessageID, time.Now())
	}
}

func importTick(imp *importer.Importer, path string) scheduler.TickFunc {
	return func(ctx context.Context) error {
		sum, ran, err := imp.PollFile(ctx, path)
		if err != nil {
			return err
		}
		if ran {
			slog.Info("scheduled import finished",
				"path", path,
				"processed", sum.Processed,
				"shipments_created", sum.ShipmentsCreated,
				"errors", len(sum.Errors),
			)
		}
		return nil
	}
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
