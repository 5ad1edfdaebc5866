package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/sahilp2023/agrocyle-sub001/config"
	"github.com/sahilp2023/agrocyle-sub001/engine"
	"github.com/sahilp2023/agrocyle-sub001/messaging"
	"github.com/sahilp2023/agrocyle-sub001/presence"
	"github.com/sahilp2023/agrocyle-sub001/protocol"
	"github.com/sahilp2023/agrocyle-sub001/store"
	"github.com/sahilp2023/agrocyle-sub001/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "residuehub.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("residuehub", Version)
		return
	}

	if err := run(*configPath); err != nil {
		log.Printf("residuehub: %v", err)
		os.Exit(1)
	}
	log.Printf("residuehub: stopped")
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	log.Printf("residuehub: database open (%s)", cfg.Database.Driver)

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("residuehub: redis not available (%v), presence reads fall back to SQL", err)
	} else {
		log.Printf("residuehub: redis connected (%s)", cfg.Redis.Address)
	}
	cancel()
	defer redisClient.Close()

	// Presence (SQL first, Redis second)
	redisStore := presence.NewRedisStore(redisClient)
	presenceMgr := presence.NewManager(db, redisStore)

	// Messaging client
	msgClient := messaging.NewClient(&cfg.Messaging)
	if err := msgClient.Connect(); err != nil {
		log.Printf("residuehub: messaging connect failed (%v)", err)
	} else {
		log.Printf("residuehub: messaging connected (%s)", cfg.Messaging.Backend)
	}
	defer msgClient.Close()

	// Engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: configPath,
		DB:         db,
		Presence:   presenceMgr,
		Cache:      redisStore,
		MsgClient:  msgClient,
	})
	eng.Start()
	defer eng.Stop()

	// Protocol ingestor (inbound from field devices)
	coreHandler := messaging.NewCoreHandler(eng.Orchestrator(), presenceMgr, msgClient, cfg.Messaging.StationID, cfg.Messaging.ReplyTopic, cfg.Presence)
	coreHandler.Start()
	defer coreHandler.Stop()
	ingestor := protocol.NewIngestor(coreHandler, messaging.DeviceFilter)
	if err := msgClient.Subscribe(cfg.Messaging.InboundTopic, func(_ string, data []byte) {
		ingestor.HandleRaw(data)
	}); err != nil {
		log.Printf("residuehub: protocol ingestor subscribe failed: %v", err)
	} else {
		log.Printf("residuehub: protocol ingestor listening on %s", cfg.Messaging.InboundTopic)
	}

	// Web server
	handler, stopWeb := www.NewRouter(eng)
	defer stopWeb()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	// Outbox drainer (job.delivered facts to accounting)
	drainer := messaging.NewOutboxDrainer(db, msgClient, cfg.Messaging.OutboxDrainInterval)
	g.Go(func() error { return drainer.Run(gctx) })

	g.Go(func() error {
		log.Printf("residuehub: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Printf("residuehub: shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Printf("residuehub: ready")
	return g.Wait()
}
