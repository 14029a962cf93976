package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/idocharity/rounds/catalog"
	"github.com/idocharity/rounds/cliparse"
	"github.com/idocharity/rounds/db"
	"github.com/idocharity/rounds/notify"
	"github.com/idocharity/rounds/router"
)

func main() {
	var err error

	// Optional .env for local development
	_ = godotenv.Load()

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	// Connect to the database
	dbConn, err := openDatabase(cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	// Verify connection
	if err := dbConn.Ping(); err != nil {
		slog.Error("database ping failed", "error", err)
		os.Exit(1)
	}

	// Create schema (tables)
	if err := db.CreateSchema(dbConn); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ready")

	// Seed the charity catalog on first boot
	if err := catalog.New(dbConn).Seed(context.Background()); err != nil {
		slog.Error("catalog seed failed", "error", err)
		os.Exit(1)
	}

	// In-process snapshot fanout, optionally bridged over Redis so that
	// every instance's SSE clients see every instance's votes.
	hub := notify.NewHub()
	var pub notify.Publisher = hub
	if cfg.RedisURL != "" {
		bridge := notify.NewRedisBridge(notify.MustRedis(cfg.RedisURL), hub, uuid.NewString())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("redis bridge stopped", "error", err)
			}
		}()
		pub = bridge
		slog.Info("Redis fanout enabled")
	}

	// Create router
	mux := router.NewRouter(dbConn, cfg, hub, pub)

	// Create server
	server := http.Server{
		Handler: mux,
		Addr:    ":" + strconv.Itoa(cfg.Port),
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		// Wait for Ctrl-C signal
		<-ctrlc
		server.Close()
	}()

	// Start server
	slog.Info("Listening", "port", cfg.Port)
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		slog.Error("Server closed", "error", err)
	} else {
		slog.Info("Server closed", "error", err)
	}
}

// openDatabase opens the configured backend. SQLite is the default and
// runs with a single writer connection; PostgreSQL keeps the pool defaults.
func openDatabase(cfg cliparse.Config) (*sql.DB, error) {
	if cfg.DatabaseType == "postgres" {
		return sql.Open("postgres", cfg.DatabaseURL)
	}

	conn, err := sql.Open("sqlite", cfg.DatabaseURL+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}
