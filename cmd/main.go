package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telemetry_relay/internal/config"
	"telemetry_relay/internal/handlers"
	"telemetry_relay/internal/logger"
	"telemetry_relay/internal/metrics"
	"telemetry_relay/internal/notify"
	"telemetry_relay/internal/publisher"
	"telemetry_relay/internal/repository"
	"telemetry_relay/internal/repository/db"
	"telemetry_relay/internal/server"
	"telemetry_relay/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:          "relay",
		Short:        "Device telemetry relay",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(configDir)
		},
	}
	root.PersistentFlags().StringVar(&configDir, "config", "configs", "directory holding config.yml")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(configDir)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "token",
		Short: "Print a new device token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gen, err := service.NewTokenGenerator()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), gen())
			return nil
		},
	})
	return root
}

func serve(configDir string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	log := logger.Get(cfg.Log.Level, cfg.Log.Encoding)

	conn, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Errorw("failed to init sqlite", "path", cfg.DB.Path, "err", err)
		return err
	}
	defer closeDB(conn, log)

	pusher, err := newPusher(cfg.Telegram, log)
	if err != nil {
		return err
	}
	pub := newPublisher(cfg.Kafka, log)
	defer func() {
		if cerr := pub.Close(); cerr != nil {
			log.Warnw("failed to close publisher", "err", cerr)
		}
	}()

	services, err := service.NewService(service.Deps{
		Repos:            repository.NewRepository(conn),
		Pusher:           pusher,
		Publisher:        pub,
		Metrics:          metrics.NewRelay(prometheus.DefaultRegisterer),
		Log:              log,
		OfflineDelay:     cfg.Lifecycle.OfflineDelay,
		FastOfflineDelay: cfg.Lifecycle.FastOfflineDelay,
		SigningKey:       cfg.Auth.SigningKey,
		TokenTTL:         cfg.Auth.TokenTTL,
	})
	if err != nil {
		log.Errorw("failed to wire services", "err", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if loader, ok := services.Profiles.(interface{ LoadAll(context.Context) error }); ok {
		if err := loader.LoadAll(ctx); err != nil {
			log.Errorw("failed to load profiles", "err", err)
			return err
		}
	}

	done := make(chan struct{})
	go services.Scheduler.Run(ctx, cfg.Scheduler.Tick)
	go func() {
		defer close(done)
		services.Profiles.Autosave(ctx, cfg.Profile.SaveInterval)
	}()

	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, handlers.NewHandler(services, log), log)

	waitForShutdown(cancel, srv, log)
	// Autosave performs a final save on cancel
	<-done
	return nil
}

func newPusher(cfg config.TelegramConfig, log *logger.Logger) (service.Pusher, error) {
	if cfg.Token == "" {
		log.Infow("telegram token not set; offline pushes disabled")
		return notify.Nop{}, nil
	}
	t, err := notify.NewTelegram(cfg.Token, cfg.ChatIDs)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return t, nil
}

type closingPublisher interface {
	service.StatusPublisher
	Close() error
}

func newPublisher(cfg config.KafkaConfig, log *logger.Logger) closingPublisher {
	if len(cfg.Brokers) == 0 {
		log.Infow("kafka brokers not set; status stream disabled")
		return publisher.Nop{}
	}
	log.Infow("publishing status events", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return publisher.NewKafka(cfg.Brokers, cfg.Topic)
}

func closeDB(conn *sql.DB, log *logger.Logger) {
	if err := conn.Close(); err != nil {
		log.Errorw("failed to close sqlite", "err", err)
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown blocks until SIGINT or SIGTERM, then stops background work and drains requests.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
