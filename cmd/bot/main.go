package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-bot/internal/api/http"
	"github.com/spec-kit/ticket-bot/internal/api/http/handlers"
	"github.com/spec-kit/ticket-bot/internal/archive"
	"github.com/spec-kit/ticket-bot/internal/audit"
	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/bot"
	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/platform"
	"github.com/spec-kit/ticket-bot/internal/registry"
	"github.com/spec-kit/ticket-bot/internal/service"
	"github.com/spec-kit/ticket-bot/internal/settings"
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

	settingsStore := settings.NewRedisStore(cfg.Redis, logger)
	defer settingsStore.Close()

	archiveStore, err := archive.NewPostgresStore(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	if archiveStore != nil {
		defer archiveStore.Close()
	} else {
		logger.Info("archive store disabled, closed tickets are dropped on eviction")
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Fatal("failed to create discord session", zap.Error(err))
	}

	channels := platform.NewDiscordChannelManager(session)
	dispatcher := events.NewInMemoryDispatcher()
	ticketRegistry := registry.New()

	auditSink := audit.NewSink(channels, settingsStore, logger)
	auditSink.RegisterHandlers(dispatcher)

	controller := service.NewController(cfg.Lifecycle, service.ControllerDependencies{
		Registry:   ticketRegistry,
		Settings:   settingsStore,
		Channels:   channels,
		Dispatcher: dispatcher,
		Archive:    archiveStoreOrNil(archiveStore),
		Logger:     logger,
	})
	defer controller.Scheduler().Stop()

	ticketBot := bot.New(bot.Dependencies{
		Session:    session,
		Controller: controller,
		Registry:   ticketRegistry,
		Settings:   settingsStore,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err := ticketBot.Start(ctx); err != nil {
		logger.Fatal("failed to start bot", zap.Error(err))
	}
	defer ticketBot.Stop()

	var app *fiber.App
	if cfg.AdminAPI.Enabled {
		metrics := observability.NewMetrics()
		tokenManager := auth.NewTokenManager(cfg.AdminAPI.JWTSecret, 60)
		authMiddleware := auth.NewAuthMiddleware(tokenManager)

		app = fiber.New()
		httptransport.RegisterMiddlewares(app, logger, metrics)
		httptransport.RegisterRoutes(app, httptransport.RouteConfig{
			Health:         handlers.NewHealthHandler(settingsStore, pingerOrNil(archiveStore)),
			Admin:          handlers.NewAdminHandler(ticketRegistry, metrics),
			AuthMiddleware: authMiddleware,
		})

		go func() {
			if err := app.Listen(cfg.App.Addr()); err != nil {
				logger.Fatal("fiber listen", zap.Error(err))
			}
		}()
	}

	waitForShutdown(logger)

	if app != nil {
		_ = app.Shutdown()
	}
}

// archiveStoreOrNil avoids handing the controller a typed nil interface.
func archiveStoreOrNil(store *archive.PostgresStore) archive.Store {
	if store == nil {
		return nil
	}
	return store
}

func pingerOrNil(store *archive.PostgresStore) handlers.Pinger {
	if store == nil {
		return nil
	}
	return store
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
