package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	authsvc "campusmarket/internal/app/services/auth"
	chatsvc "campusmarket/internal/app/services/chat"
	domainauth "campusmarket/internal/domain/auth"
	domainchat "campusmarket/internal/domain/chat"
	"campusmarket/internal/domain/listings"
	domainuser "campusmarket/internal/domain/user"
	"campusmarket/internal/infra/broker/kafka"
	"campusmarket/internal/infra/config"
	mongostore "campusmarket/internal/infra/db/mongo"
	ginserver "campusmarket/internal/infra/http/gin"
	"campusmarket/internal/infra/messaging"
	"campusmarket/internal/infra/obs"
	"campusmarket/internal/infra/outbox"
	"campusmarket/internal/infra/security"
	"campusmarket/internal/infra/storage/memory"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		obs.NewLogger("dev").Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	app, cleanup, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		cleanup()
		os.Exit(1)
	}
	defer cleanup()

	if cfg.StorageMode == config.StorageMemory {
		if err := loadListingFixtures(ctx, cfg.ListingFixtures, app.fixtureSink, logger); err != nil {
			logger.Warn("listing fixtures load failed", "error", err, "path", cfg.ListingFixtures)
		}
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.StorageMode, "instance_id", cfg.InstanceID)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers    ginserver.Handlers
	ready       func() error
	fixtureSink *memory.ListingDirectory
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (application, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	hub := messaging.NewHub()

	var (
		messageStore  domainchat.MessageStore
		listingDir    listings.Directory
		userRepo      domainuser.Repository
		userDir       domainuser.Directory
		sessionStore  domainauth.SessionStore
		memoryListing *memory.ListingDirectory
		outboxStore   outbox.Store
		ready         = func() error { return nil }
	)

	switch cfg.StorageMode {
	case config.StorageMongo:
		client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return application{}, cleanup, fmt.Errorf("connect mongo: %w", err)
		}
		cleanups = append(cleanups, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Error("mongo disconnect failed", "error", err)
			}
		})

		messageStore = mongostore.NewMessageStore(client.DB)
		listingDir = mongostore.NewListingDirectory(client.DB)
		mongoUsers := mongostore.NewUserRepository(client.DB)
		userRepo = mongoUsers
		userDir = mongoUsers
		sessionStore = mongostore.NewSessionStore(client.DB)
		outboxStore = outbox.NewMongoStore(client.DB)
		ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}

		feed := &mongostore.ChangeFeed{
			DB:      client.DB,
			Hub:     hub,
			Logger:  logger,
			Backoff: cfg.ChangeFeedBackoff,
		}
		go func() {
			if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("change feed stopped", "error", err)
			}
		}()
	default:
		memoryListing = memory.NewListingDirectory()
		messageStore = memory.NewMessageStore()
		listingDir = memoryListing
		memoryUsers := memory.NewUserRepository()
		userRepo = memoryUsers
		userDir = memoryUsers
		sessionStore = memory.NewSessionStore()
	}

	chatService := &chatsvc.Service{
		Messages: messageStore,
		Listings: listingDir,
		Users:    userDir,
		Hub:      hub,
		Logger:   logger,
		Now:      time.Now,
		NewID:    uuid.NewString,
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return application{}, cleanup, fmt.Errorf("kafka producer: %w", err)
		}
		cleanups = append(cleanups, func() {
			if err := producer.Close(); err != nil {
				logger.Error("kafka producer close failed", "error", err)
			}
		})
		if outboxStore != nil {
			// Durable path: sends append to the outbox, the worker publishes.
			chatService.Announce = &outbox.Announcer{
				Store:  outboxStore,
				Origin: cfg.InstanceID,
				Topic:  kafka.TopicMessageInserted,
			}
			worker := &outbox.Worker{
				Store:    outboxStore,
				Producer: producer,
				ID:       cfg.InstanceID,
				Backoff:  []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
			}
			go func() {
				if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("outbox worker stopped", "error", err)
				}
			}()
		} else {
			chatService.Announce = &kafka.Announcer{
				Producer: producer,
				Origin:   cfg.InstanceID,
				Topic:    kafka.TopicMessageInserted,
			}
		}

		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, nil, kafka.HubBridge{
			Hub:    hub,
			Origin: cfg.InstanceID,
			Logger: logger,
		})
		if err != nil {
			return application{}, cleanup, fmt.Errorf("kafka consumer: %w", err)
		}
		cleanups = append(cleanups, func() {
			if err := consumer.Close(); err != nil {
				logger.Error("kafka consumer close failed", "error", err)
			}
		})
		go func() {
			if err := consumer.Run(ctx, []string{kafka.TopicMessageInserted}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("kafka consumer stopped", "error", err)
			}
		}()
		logger.Info("kafka fan-out enabled", "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroupID)
	}

	authService := &authsvc.Service{
		Users:      userRepo,
		Sessions:   sessionStore,
		Passwords:  security.BcryptHasher{},
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}

	handlers := ginserver.Handlers{
		Auth: &ginserver.AuthHandler{Service: authService, Logger: logger},
		Chat: &ginserver.ChatHandler{Service: chatService, Logger: logger},
		ChatSocket: &ginserver.ChatSocketHandler{
			Service: chatService,
			Hub:     hub,
			Logger:  logger,
		},
		AuthMiddleware: ginserver.AuthMiddleware{Service: authService, Logger: logger}.Handle,
	}

	return application{
		handlers:    handlers,
		ready:       ready,
		fixtureSink: memoryListing,
	}, cleanup, nil
}

type listingFixture struct {
	ID       string `json:"id"`
	SellerID string `json:"seller_id"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
	Status   string `json:"status"`
}

// loadListingFixtures seeds the in-memory listing directory so conversations
// can be exercised without a catalog service. Missing file is not an error.
func loadListingFixtures(ctx context.Context, path string, dir *memory.ListingDirectory, logger *slog.Logger) error {
	if path == "" || dir == nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("listing fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}

	var fixtures []listingFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	for _, fx := range fixtures {
		if fx.ID == "" {
			logger.Warn("fixture without id skipped")
			continue
		}
		snap := listings.Snapshot{
			ID:       listings.ListingID(fx.ID),
			SellerID: fx.SellerID,
			Title:    fx.Title,
			ImageURL: fx.ImageURL,
			Status:   listings.NormalizeStatus(fx.Status),
		}
		if err := dir.Save(ctx, snap); err != nil {
			logger.Error("cannot store fixture listing", "listing_id", fx.ID, "error", err)
			continue
		}
		logger.Info("listing fixture imported", "listing_id", fx.ID)
	}
	return nil
}
