package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campus-connect-api/internal/cipher"
	"github.com/noah-isme/campus-connect-api/internal/config"
	"github.com/noah-isme/campus-connect-api/internal/database"
	"github.com/noah-isme/campus-connect-api/internal/deeplink"
	"github.com/noah-isme/campus-connect-api/internal/handler"
	"github.com/noah-isme/campus-connect-api/internal/middleware"
	"github.com/noah-isme/campus-connect-api/internal/models"
	"github.com/noah-isme/campus-connect-api/internal/realtime"
	"github.com/noah-isme/campus-connect-api/internal/repository"
	"github.com/noah-isme/campus-connect-api/internal/router"
	"github.com/noah-isme/campus-connect-api/internal/service"
	cloud "github.com/noah-isme/campus-connect-api/pkg/cloudinary"
	"github.com/noah-isme/campus-connect-api/pkg/expo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "production" {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var bus realtime.Bus
	switch cfg.RealtimeTransport {
	case "nats":
		natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
		bus = realtime.NewNATSBus(natsConn, cfg.ChannelBase, logger)
	default:
		bus = realtime.NewRedisBus(redisClient, cfg.ChannelBase, logger)
	}

	uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	messageCipher, err := cipher.New(cfg.MessageKeyPassphrase, cfg.MessageKeySalt)
	if err != nil {
		log.Fatalf("failed to derive message key: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	catalog := models.DefaultGroupCatalog()
	links := deeplink.NewResolver(cfg.DeepLinkScheme, cfg.DeepLinkWebHost)
	pushSender := expo.NewClient(expo.Config{URL: cfg.ExpoPushURL, AccessToken: cfg.ExpoAccessToken}, logger)

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	streakRepo := repository.NewStreakRepository(db)
	chatStore := repository.NewChatStore(redisClient)
	membershipMirror := repository.NewMembershipMirror(redisClient)
	presenceStore := repository.NewPresenceStore(redisClient)

	sessionService := service.NewSessionService(userRepo, validate, logger)
	avatarService := service.NewAvatarService(uploader, sessionService, cfg.AvatarMaxSizeMB, logger)
	presenceService := service.NewPresenceService(presenceStore, userRepo, cfg.PresenceTTL, logger)
	streakService := service.NewStreakService(streakRepo, logger)
	blockService := service.NewBlockService(userRepo, bus, logger)
	pushService := service.NewPushService(userRepo, presenceStore, pushSender, logger)
	membershipService := service.NewMembershipService(userRepo, membershipMirror, catalog, logger)
	notificationService := service.NewNotificationService(notificationRepo, bus, pushService, validate, logger)
	feedService := service.NewFeedService(postRepo, bus, notificationService, streakService, links, validate, logger)
	chatService := service.NewChatService(chatStore, userRepo, catalog, bus, messageCipher, validate, logger)
	chatSyncService := service.NewChatSyncService(chatStore, userRepo, catalog, bus, messageCipher, service.ChatSyncOptions{
		Watchdog: cfg.ChatWatchdogTimeout,
	}, logger)
	composerService := service.NewComposerService(chatStore, userRepo, membershipMirror, catalog, bus, messageCipher, streakService, pushService, validate, service.ComposerOptions{
		TypingTimeout: cfg.TypingTimeout,
		MessageTTL:    cfg.DisappearingTTL,
	}, logger)
	smartService, err := service.NewSmartService(service.AccountStores{
		Users:         userRepo,
		Posts:         postRepo,
		Notifications: notificationRepo,
		Streaks:       streakRepo,
		Chats:         chatStore,
		Mirror:        membershipMirror,
		Presence:      presenceStore,
	}, pushService, membershipService, logger)
	if err != nil {
		log.Fatalf("failed to create smart service: %v", err)
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	go service.NewExpirySweeper(chatStore, bus, cfg.ExpirySweepInterval, logger).Run(workerCtx)
	go runReconcileLoop(workerCtx, membershipService, cfg.ReconcileInterval, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		UserHandler:         handler.NewUserHandler(sessionService, avatarService, presenceService, streakService, blockService, logger),
		ChatHandler:         handler.NewChatHandler(chatService, chatSyncService, composerService, validate, logger),
		GroupHandler:        handler.NewGroupHandler(membershipService, logger),
		PushHandler:         handler.NewPushHandler(pushService, validate, logger),
		PostHandler:         handler.NewPostHandler(feedService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, cfg.NotificationKeepAlive),
		SmartServiceHandler: handler.NewSmartServiceHandler(smartService, logger),
		DeepLinks:           links,
		HealthProbes: map[string]handler.HealthProbe{
			"postgres": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
		JWTMiddleware: middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, stopWorkers)
}

// runReconcileLoop rebuilds the membership mirror from the relational rows on every tick.
func runReconcileLoop(ctx context.Context, membership service.MembershipService, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := membership.Reconcile(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("membership reconcile failed")
				continue
			}
			logger.Debug().Int("users", report.Users).Int("groups", report.Groups).Msg("membership mirror reconciled")
		}
	}
}

func waitForShutdown(app *fiber.App, stopWorkers context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
