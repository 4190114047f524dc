package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/lastwayz/ticketd/internal/api/http"
	"github.com/lastwayz/ticketd/internal/api/http/handlers"
	"github.com/lastwayz/ticketd/internal/auth"
	"github.com/lastwayz/ticketd/internal/config"
	"github.com/lastwayz/ticketd/internal/domain"
	"github.com/lastwayz/ticketd/internal/engine"
	"github.com/lastwayz/ticketd/internal/events"
	"github.com/lastwayz/ticketd/internal/observability"
	"github.com/lastwayz/ticketd/internal/platform"
	"github.com/lastwayz/ticketd/internal/schedule"
	"github.com/lastwayz/ticketd/internal/scheduler"
	"github.com/lastwayz/ticketd/internal/store"
	"github.com/lastwayz/ticketd/internal/transcript"
	"github.com/lastwayz/ticketd/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := buildRegistry(cfg.Discord)

	backend, pinger, closeBackend, err := buildBackend(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal("failed to init record store backend", zap.Error(err))
	}
	defer closeBackend()

	records := store.NewRecordStore(backend, logger)
	partitions := make([]string, 0, len(registry.All()))
	for _, spec := range registry.All() {
		partitions = append(partitions, spec.Partition)
	}
	if err := records.LoadAll(ctx, partitions); err != nil {
		logger.Fatal("failed to load ticket records", zap.Error(err))
	}

	policies, err := schedule.NewPolicyStore(cfg.Store.PolicyPath(), schedule.Policy{
		Enabled:   cfg.Schedule.Enabled,
		StartHour: cfg.Schedule.StartHour,
		EndHour:   cfg.Schedule.EndHour,
	})
	if err != nil {
		logger.Fatal("failed to load schedule policy", zap.Error(err))
	}

	discord := platform.NewDiscordClient(platform.DiscordConfig{
		BotToken: cfg.Discord.BotToken,
		GuildID:  cfg.Discord.GuildID,
		APIBase:  cfg.Discord.APIBase,
	}, logger)

	dispatcher := events.NewInMemoryDispatcher(logger)

	var journal scheduler.Journal
	var redisJournal *scheduler.RedisJournal
	if cfg.Redis.Addr != "" {
		redisJournal = scheduler.NewRedisJournal(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		defer redisJournal.Close()
		journal = redisJournal
	}

	deleter := scheduler.New(discord, dispatcher, logger, journal, cfg.Tickets.DeleteDelay())
	if err := deleter.Recover(ctx); err != nil {
		logger.Warn("deletion journal recovery failed", zap.Error(err))
	}

	auditService := engine.NewAuditService(dispatcher, discord, logger, cfg.Discord.LogChannelID)
	worker.StartAuditWorker(auditService)

	lifecycle := engine.New(engine.Dependencies{
		Store:      records,
		Client:     discord,
		Registry:   registry,
		Policies:   policies,
		Archiver:   transcript.NewArchiver(discord, logger, cfg.Tickets.TranscriptLimit),
		Deleter:    deleter,
		Dispatcher: dispatcher,
		Logger:     logger,
		EveryoneID: cfg.Discord.GuildID,
	})

	authService := auth.NewService(cfg.Auth)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager())

	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	pingers := map[string]handlers.Pinger{}
	if pinger != nil {
		pingers["store"] = pinger
	}
	if redisJournal != nil {
		pingers["journal"] = redisJournal
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(pingers),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(lifecycle),
		Admin:          handlers.NewAdminHandler(lifecycle, metrics),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	if cfg.Discord.EntryChannelID != "" {
		if err := lifecycle.AnnounceEntry(ctx, cfg.Discord.EntryChannelID); err != nil {
			logger.Warn("entry announcement failed", zap.Error(err))
		}
	}

	waitForShutdown(logger)

	deleter.Shutdown()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer flushCancel()
	if err := records.FlushAll(flushCtx); err != nil {
		logger.Error("final record flush failed", zap.Error(err))
	}

	_ = app.Shutdown()
}

// buildRegistry maps the configured guild wiring onto the two supported
// ticket categories.
func buildRegistry(cfg config.DiscordConfig) *domain.CategoryRegistry {
	return domain.NewCategoryRegistry(
		domain.CategorySpec{
			Category:       domain.CategoryGeneral,
			Partition:      "general",
			ChannelPrefix:  "ticket",
			ParentID:       cfg.GeneralParentID,
			AudienceRoleID: cfg.GeneralSupportRoleID,
		},
		domain.CategorySpec{
			Category:       domain.CategoryDonation,
			Partition:      "donations",
			ChannelPrefix:  "donation",
			ParentID:       cfg.DonationParentID,
			AudienceRoleID: cfg.DonationAudienceRole,
			RequiredRoleID: cfg.DonationRequiredRole,
		},
	)
}

func buildBackend(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Backend, handlers.Pinger, func(), error) {
	switch cfg.Backend {
	case "postgres":
		pg, err := store.NewPostgresBackend(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return pg, pg, pg.Close, nil
	default:
		fb, err := store.NewFileBackend(cfg.DataDir)
		if err != nil {
			return nil, nil, nil, err
		}
		return fb, nil, func() {}, nil
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
