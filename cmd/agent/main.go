package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fieldnote/agent/internal/avatar"
	"fieldnote/agent/internal/bus"
	"fieldnote/agent/internal/config"
	"fieldnote/agent/internal/control"
	"fieldnote/agent/internal/events"
	"fieldnote/agent/internal/identity"
	"fieldnote/agent/internal/jobs"
	"fieldnote/agent/internal/log"
	"fieldnote/agent/internal/profile"
	"fieldnote/agent/internal/session"
	"fieldnote/agent/internal/storage"
)

func main() {
	deepLinkURL := flag.String("deeplink", "", "deep link URL the process was launched with")
	ephemeral := flag.Bool("ephemeral", false, "keep local storage in memory instead of redis")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	var store storage.Store
	if *ephemeral {
		store = storage.NewMemoryStore()
	} else {
		redisClient, err := storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer redisClient.Close()
		store = storage.NewRedisStore(redisClient, cfg.Redis.KeyPrefix)
	}

	vault, err := storage.NewVault(cfg.Vault.DeviceSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init vault")
	}

	eventBus := bus.New()

	backend := identity.NewClient(cfg.Backend, store, vault, logger)
	backend.LoadPersisted(ctx)
	profiles := profile.NewClient(cfg.Backend, backend, eventBus, logger)

	var avatars *avatar.Resolver
	if cfg.Avatar.Endpoint != "" {
		avatars, err = avatar.NewResolver(cfg.Avatar, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("avatar resolver unavailable")
		}
	}

	connectivity := events.NewConnectivityMonitor(cfg.Backend.HealthURL, cfg.Session.ProbeInterval, nil, logger)
	lifecycle := events.NewLifecycleMonitor()
	deepLinks := events.NewDeepLinkRouter(*deepLinkURL)

	coordinator := session.New(session.Deps{
		Backend:      backend,
		Profiles:     profiles,
		Storage:      store,
		Bus:          eventBus,
		Connectivity: connectivity,
		Lifecycle:    lifecycle,
		DeepLinks:    deepLinks,
		Liveness:     nil, // wired below, needs the coordinator
		Logger:       logger,
	}, session.Config{SettleDelay: cfg.Session.SettleDelay})

	liveness := jobs.NewLivenessTimer(cfg.Session.LivenessInterval, coordinator.VerifySession, logger)
	coordinator.SetLiveness(liveness)

	coordinator.Start(ctx)
	connectivity.Start(ctx)

	var avatarResolver control.AvatarResolver
	if avatars != nil {
		avatarResolver = avatarAdapter{avatars}
	}
	controlServer := control.NewServer(cfg, logger, coordinator, avatarResolver, deepLinks, lifecycle)

	go func() {
		if err := controlServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("control server failed")
		}
	}()

	waitForShutdown(logger, controlServer, coordinator, connectivity)
}

type avatarAdapter struct {
	resolver *avatar.Resolver
}

func (a avatarAdapter) ResolveURL(ctx context.Context, ref string) string {
	return a.resolver.ResolveURL(ctx, ref)
}

func waitForShutdown(
	logger zerolog.Logger,
	srv *control.Server,
	coordinator *session.Coordinator,
	connectivity *events.ConnectivityMonitor,
) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	connectivity.Stop()
	coordinator.Close()

	logger.Info().Msg("agent exited cleanly")
	os.Exit(0)
}
