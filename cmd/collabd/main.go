// Command collabd runs the collaboration server: config load, every
// collaborator wired per config, the gin HTTP/WebSocket surface, and a
// graceful shutdown sequence, grounded in
// collab-service/backend/cmd/collab_server/main.go.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"collabcore/internal/auth"
	"collabcore/internal/config"
	"collabcore/internal/engine"
	"collabcore/internal/eventbus"
	"collabcore/internal/httpapi"
	"collabcore/internal/idgen"
	"collabcore/internal/presence"
	"collabcore/internal/ratelimit"
	"collabcore/internal/session"
	"collabcore/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("collabd: load config: %v", err)
	}
	logger := log.Default()

	bus := buildEventBus(cfg, logger)
	snapshots, resolver := buildStore(cfg)
	buildPresence(cfg, bus, logger)

	eng := engine.New(engine.Options{
		EventBus:                bus,
		IDGenerator:              idgen.UUIDv7Generator{},
		CursorBroadcastInterval: cfg.CursorBroadcastInterval(),
		Logger:                  logger,
	})

	limiter := ratelimit.New(ratelimit.Options{
		MaxPerSecond: cfg.RateLimit.MaxPerSecond,
		MaxPerMinute: cfg.RateLimit.MaxPerMinute,
		WindowMs:     cfg.RateLimit.WindowMs,
	})

	fabric := session.NewFabric(eng, session.Options{
		Limiter:           limiter,
		SessionIDs:        idgen.SessionIDGenerator{},
		Logger:            logger,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		Resolver:          resolver,
		Snapshots:         snapshots,
	})
	if sub, ok := bus.(eventbus.Subscriber); ok {
		fabric.SubscribeEvents(sub)
	} else {
		logger.Printf("collabd: event bus does not support local subscription; notification fan-out disabled")
	}
	fabric.StartHeartbeat()

	decoder := auth.NewJWTDecoder(cfg.JWT.Secret, cfg.JWT.Issuer)
	authHandlers := buildAuthHandlers(cfg)

	router := httpapi.NewRouter(httpapi.Options{
		Fabric:       fabric,
		Decoder:      decoder,
		AuthHandlers: authHandlers,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Running.Port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("collabd: listen: %v", err)
		}
	}()
	log.Printf("collabd: listening on :%d", cfg.Running.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Printf("collabd: shutting down")
	fabric.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("collabd: http shutdown error: %v", err)
	}
}

func buildEventBus(cfg *config.Config, logger *log.Logger) eventbus.EventBus {
	if !cfg.Kafka.Enabled {
		return eventbus.NewInMemory()
	}
	kafkaCfg := sarama.NewConfig()
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("collabd: connect kafka: %v", err)
	}
	return eventbus.NewKafka(producer, eventbus.KafkaOptions{Topic: cfg.Kafka.Topic}, logger)
}

func buildStore(cfg *config.Config) (store.SnapshotStore, store.DocumentResolver) {
	if !cfg.Mysql.Enabled {
		return store.NewInMemorySnapshotStore(), store.NewInMemoryDocumentResolver()
	}
	db, err := gorm.Open(mysql.Open(cfg.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("collabd: open mysql: %v", err)
	}
	s := store.NewMySQLStore(db)
	if err := s.Migrate(); err != nil {
		log.Fatalf("collabd: migrate mysql: %v", err)
	}
	return s, s
}

func buildPresence(cfg *config.Config, bus eventbus.EventBus, logger *log.Logger) {
	if !cfg.Redis.Enabled {
		return
	}
	sub, ok := bus.(eventbus.Subscriber)
	if !ok {
		logger.Printf("collabd: presence enabled but event bus does not support local subscription; skipping")
		return
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	p := presence.NewRedisPresence(rdb)
	presence.Sync(sub, p, cfg.HeartbeatInterval()*2, logger.Printf)
}

func buildAuthHandlers(cfg *config.Config) *auth.Handlers {
	if !cfg.Mysql.Enabled {
		return nil
	}
	db, err := sql.Open("mysql", cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("collabd: open user store: %v", err)
	}
	userStore := auth.NewMySQLUserStore(db)
	return auth.NewHandlers(userStore, cfg.JWT.Secret, cfg.JWT.Issuer, 30*time.Minute)
}
