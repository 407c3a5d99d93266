/**
 * @description
 * This is the main entry point for the settlement watcher. It is responsible
 * for initializing all components of the service: configuration, database
 * connection, chain RPC client, the permit relay signer, the live-query
 * transfer feed, the websocket session hub, the event reconciler, and the
 * HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/ethereum/go-ethereum/ethclient: Chain RPC access.
 * - internal/api, internal/app, internal/chain, internal/config,
 *   internal/store, internal/ws: Internal packages for the service.
 * - pkg/livequery: Transfer-event feed client.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/juliangm996/pluto-server-dlycop/internal/api"
	"github.com/juliangm996/pluto-server-dlycop/internal/app"
	"github.com/juliangm996/pluto-server-dlycop/internal/chain"
	"github.com/juliangm996/pluto-server-dlycop/internal/config"
	"github.com/juliangm996/pluto-server-dlycop/internal/domain"
	"github.com/juliangm996/pluto-server-dlycop/internal/store"
	"github.com/juliangm996/pluto-server-dlycop/internal/ws"
	"github.com/juliangm996/pluto-server-dlycop/pkg/livequery"
	rmrabbit "github.com/juliangm996/pluto-server-dlycop/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
	}

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url must be configured\" env=DATABASE_URL")
	}
	if strings.TrimSpace(cfg.RPCURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"chain rpc url must be configured\" env=RPC_URL")
	}
	if strings.TrimSpace(cfg.FeedAppID) == "" || strings.TrimSpace(cfg.FeedServerURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"feed credentials must be configured\" env=FEED_APP_ID,FEED_SERVER_URL")
	}
	if !common.IsHexAddress(cfg.MerchantWalletAddress) {
		log.Fatalf("level=fatal component=bootstrap msg=\"merchant settlement wallet must be a hex address\" env=MERCHANT_WALLET_ADDRESS")
	}

	log.Printf("level=info component=bootstrap msg=\"starting settlement watcher\" network=%s port=%s", cfg.Network, cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	repo := store.NewPostgresRepository(dbpool)

	// Optional Redis-backed per-order settlement lock. The conditional
	// update in the store keeps settlements exactly-once without it.
	var locker app.OrderLocker
	if cfg.RedisURL != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; order locking disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; order locking disabled\" err=%v", pingErr)
			} else {
				locker = app.NewRedisOrderLocker(redisClient, cfg.RedisOrderLockPrefix)
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis order locking enabled\"")
			}
		}
	}

	// Initialize the RabbitMQ producer to publish settlement events.
	var producer rmrabbit.Publisher
	if cfg.RabbitMQURL == "" {
		producer = &rmrabbit.EventProducerFallback{}
	} else if p, prodErr := rmrabbit.NewEventProducer(cfg.RabbitMQURL); prodErr != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", prodErr)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		producer = p
		defer p.Close()
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Resolve the active network profile's contract bindings.
	contracts, err := chain.ContractsForNetwork(cfg.Network)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"contract metadata resolution failed\" err=%v", err)
	}

	// Connect to the chain RPC endpoint.
	ethClient, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"chain rpc connection failed\" err=%v", err)
	}
	defer ethClient.Close()
	log.Println("level=info component=bootstrap msg=\"chain rpc connected\"")

	signer := chain.NewPermitSigner(ethClient, contracts, chain.SignerConfig{
		GasPriceMultiplier:    cfg.GasPriceMultiplier,
		GasPriceCapGwei:       cfg.GasPriceCapGwei,
		PermitDeadlineSeconds: cfg.PermitDeadlineSeconds,
	})

	hub := ws.NewHub(repo)
	defer hub.Shutdown()

	reconciler := app.NewReconciler(
		repo,
		signer,
		hub,
		locker,
		producer,
		cfg.OrderEventsExchange,
		common.HexToAddress(cfg.MerchantWalletAddress),
	)

	// Subscribe to the transfer-event feed. A subscription failure is a
	// startup-fatal condition for the watcher.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := livequery.NewClient(livequery.Config{
		ServerURL: cfg.FeedServerURL,
		AppID:     cfg.FeedAppID,
		Table:     cfg.FeedTable,
	})
	if err := feed.Connect(ctx); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"transfer feed subscription failed\" err=%v", err)
	}
	go feed.Run(ctx)

	// Bridge feed records into the reconciler's event stream.
	events := make(chan domain.TransferEvent, 64)
	go func() {
		defer close(events)
		for record := range feed.Events() {
			events <- domain.TransferEvent{
				From:            record.From,
				To:              record.To,
				Value:           record.Value,
				Confirmed:       record.Confirmed,
				TransactionHash: record.TransactionHash,
				ObjectID:        record.ObjectID,
			}
		}
	}()
	go reconciler.RunFeed(ctx, events)
	log.Println("level=info component=bootstrap msg=\"transfer feed watcher running\"")

	// Start the HTTP server.
	handlers := api.NewWatcherHandlers(repo)
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: api.WatcherRoutes(handlers, hub),
	}

	go func() {
		log.Printf("level=info component=bootstrap msg=\"http server listening\" port=%s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=bootstrap msg=\"http server failed\" err=%v", err)
		}
	}()

	// Graceful shutdown logic.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("level=info component=bootstrap msg=\"shutting down\"")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"server shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=bootstrap msg=\"stopped\"")
}
