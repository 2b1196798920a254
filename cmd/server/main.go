package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"    // .env loader for local development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/escrow-room-service/internal/blobstore"
	"github.com/iliyamo/escrow-room-service/internal/config"
	"github.com/iliyamo/escrow-room-service/internal/database"
	"github.com/iliyamo/escrow-room-service/internal/escrow"
	"github.com/iliyamo/escrow-room-service/internal/handler"
	"github.com/iliyamo/escrow-room-service/internal/middleware"
	"github.com/iliyamo/escrow-room-service/internal/queue"
	"github.com/iliyamo/escrow-room-service/internal/repository"
	"github.com/iliyamo/escrow-room-service/internal/router"
	queuepublisher "github.com/iliyamo/escrow-room-service/internal/service"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.Migrate(migrateCtx, db); err != nil {
		log.Fatalf("database: %v", err)
	}

	blobs, err := blobstore.NewDisk(cfg.EvidenceDir)
	if err != nil {
		log.Fatalf("blobstore: %v", err)
	}

	// Repositories
	rooms := repository.NewRoomRepo(db)
	occupants := repository.NewOccupantRepo(db)
	txns := repository.NewTransactionRepo(db)
	evidence := repository.NewEvidenceRepo(db)
	audit := repository.NewAuditRepo(db)
	arbiters := repository.NewArbiterRepo(db)
	tokens := repository.NewTokenRepo(db)

	// Services.  Events go out through RabbitMQ after each commit.
	publish := queuepublisher.PublishRoomEvent
	slots := repository.NewSlotStore(db, rooms, occupants, audit)
	escrowStore := repository.NewEscrowStore(db, rooms, occupants, txns, evidence, audit)
	manager := escrow.NewOccupancyManager(slots, publish)
	lifecycle := escrow.NewLifecycleService(escrowStore, publish)
	gateway := escrow.NewEvidenceGateway(escrowStore, publish,
		int64(cfg.CommissionBps), int64(cfg.FlatFeeCents))
	release := escrow.NewReleaseAuthority(lifecycle, arbiters)

	// Background consumer turns committed events into notification log lines.
	go func() {
		if err := queue.StartRoomEventsConsumer(); err != nil {
			log.Printf("room-consumer: %v", err)
		}
	}()

	e := echo.New()

	// Redis-backed rate limiting and response caching.  A nil client
	// disables both; the service degrades gracefully without Redis.
	if rdb := config.NewRedisClient(); rdb != nil {
		e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
		e.Use(middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	} else {
		log.Println("redis unavailable; rate limiting and response cache disabled")
	}

	authHandler := handler.NewAuthHandler(cfg, arbiters, tokens)
	roomHandler := handler.NewRoomHandler(cfg, rooms, occupants, audit, arbiters, manager)
	evidenceHandler := handler.NewEvidenceHandler(cfg, gateway, blobs, evidence, txns, arbiters)
	txnHandler := handler.NewTransactionHandler(lifecycle, release, arbiters)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authHandler, cfg.JWTSecret)
	router.RegisterPublic(e, roomHandler)
	router.RegisterArbiter(e, roomHandler, evidenceHandler, txnHandler, cfg.JWTSecret)
	router.RegisterSession(e, occupants, roomHandler, evidenceHandler, txnHandler)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
