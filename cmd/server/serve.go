package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/config"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/db"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/events"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/pubsub"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/server"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/service"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/store"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

// serve 加载依赖并启动 Gin 服务，收到信号后优雅退出。
func serve(ctx context.Context, cfg config.Config) error {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	gdb, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return err
	}

	broker, err := newBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer broker.Close()

	pub, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	defer pub.Close()

	hub := ws.NewHub(broker)
	chat := service.NewChatService(store.New(gdb), hub, pub)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.SetupRouter(cfg, gdb, chat, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("chat server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	// Shutdown does not track hijacked connections.
	n := hub.CloseAll()
	log.Info().Int("connections", n).Msg("closed websocket connections")
	return err
}

// newBroker picks Redis fan-out when REDIS_ADDR is set and in-process
// delivery otherwise.
func newBroker(ctx context.Context, cfg config.Config) (pubsub.Broker, error) {
	if cfg.RedisAddr == "" {
		return pubsub.NewLocal(), nil
	}
	client, err := pubsub.NewRedisClient(ctx, pubsub.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: 10,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("addr", cfg.RedisAddr).Str("channel", cfg.RedisChannel).Msg("redis fan-out enabled")
	return pubsub.NewRedis(ctx, client, cfg.RedisChannel)
}

// newPublisher returns the lifecycle event publisher: Kafka behind an async
// queue when brokers are configured, a no-op otherwise.
func newPublisher(cfg config.Config) (events.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Nop{}, nil
	}
	k, err := events.NewKafka(events.KafkaConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		Username: cfg.KafkaUsername,
		Password: cfg.KafkaPassword,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka lifecycle events enabled")
	return events.NewAsync(k, 1024), nil
}
