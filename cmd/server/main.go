package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/npezzotti/go-fireside/internal/api"
	"github.com/npezzotti/go-fireside/internal/config"
	"github.com/npezzotti/go-fireside/internal/database"
	"github.com/npezzotti/go-fireside/internal/delivery"
	"github.com/npezzotti/go-fireside/internal/kv"
	"github.com/npezzotti/go-fireside/internal/presence"
	"github.com/npezzotti/go-fireside/internal/pubsub"
	"github.com/npezzotti/go-fireside/internal/relay"
	"github.com/npezzotti/go-fireside/internal/stats"
)

const defaultSigningKey = "mJ3qNfKdyPp1pAnW0K6kDRWcSq0hG4y6dIEkz7hQx9o="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	migrationsDir  string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.StringVar(&migrationsDir, "migrations-dir", "migrations", "path to schema migrations")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[fireside] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, migrationsDir)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgFiresideRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := dbConn.Migrate(cfg.MigrationsDir); err != nil {
		logger.Fatal("migrate:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.RegisterMetric(relay.StatActiveConnections)
	statsUpdater.RegisterMetric(relay.StatActiveRooms)
	statsUpdater.RegisterMetric(relay.StatMessagesRelayed)
	statsUpdater.RegisterMetric(relay.StatMessagesPersisted)

	broker := pubsub.NewBroker()
	registry := presence.NewRegistry(kv.NewMemStore())
	channel := delivery.NewChannel(broker, registry)

	rl := relay.NewRelay(logger, dbConn, registry, channel, relay.DefaultEventHandlers(), statsUpdater)

	srv := api.NewFiresideApp(mux, logger, rl, broker, dbConn, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
