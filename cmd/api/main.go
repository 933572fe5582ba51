package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xelth-com/eckrentgo/internal/booking"
	"github.com/xelth-com/eckrentgo/internal/buildinfo"
	"github.com/xelth-com/eckrentgo/internal/config"
	"github.com/xelth-com/eckrentgo/internal/database"
	"github.com/xelth-com/eckrentgo/internal/handlers"
	"github.com/xelth-com/eckrentgo/internal/models"
	"github.com/xelth-com/eckrentgo/internal/rental"
	"github.com/xelth-com/eckrentgo/internal/repository"
	"github.com/xelth-com/eckrentgo/internal/reservation"
	"github.com/xelth-com/eckrentgo/internal/serial"
	"github.com/xelth-com/eckrentgo/internal/services/invoice"
	"github.com/xelth-com/eckrentgo/internal/services/notify"
	"github.com/xelth-com/eckrentgo/internal/services/tasks"
	"github.com/xelth-com/eckrentgo/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireJWT(); err != nil {
		log.Fatalf("Refusing to start: %v", err)
	}

	// 2. Initialize database (embedded vs external Postgres, SQLite, or memory)
	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-Migrate Schema
	log.Println("🚀 Synchronizing database schema...")
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	// 4. Rental core: store, serials, lifecycle
	var (
		store    repository.Store
		counters serial.CounterStore
		audit    serial.AuditSink
	)
	if cfg.Storage.Driver == config.StorageMemory {
		mem, err := repository.NewMemoryStore(cfg.Storage.DataFile)
		if err != nil {
			log.Fatalf("Failed to load data file: %v", err)
		}
		if mem.Path() == "" {
			log.Println("⚠️ Memory store without DATA_FILE: everything is lost on exit")
		} else {
			log.Printf("📦 Memory store snapshot: %s", mem.Path())
		}
		store = mem
		counters = serial.NewSnapshotCounterStore(mem)
		audit = serial.LogAuditSink{}
	} else {
		store = repository.NewGormStore(db.DB)
		counters = serial.NewGormCounterStore(db.DB)
		audit = serial.NewGormAuditSink(db.DB)
	}

	policy, err := serial.ParseResetPolicy(cfg.Serial.ResetPolicy)
	if err != nil {
		log.Fatalf("Invalid serial configuration: %v", err)
	}
	serials := serial.NewIssuer(counters, audit, serial.Options{
		Width:       cfg.Serial.Width,
		ResetPolicy: policy,
	})
	machine := rental.NewMachine(store, serials)

	// 5. Collaborators
	hub := websocket.NewHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	inbox := notify.NewStoreChannel(db.DB)
	channels := notify.NewRegistry()
	for _, ch := range []notify.Channel{inbox, notify.NewWebsocketChannel(hub)} {
		if err := channels.Register(ch); err != nil {
			log.Printf("⚠️ Notify: failed to register %s: %v", ch.Code(), err)
		}
	}

	catalog := invoice.NewGormPropertyCatalog(db.DB)
	invoices := invoice.NewService(db.DB, serials, invoice.Config{
		PDFDir:          cfg.Invoice.PDFDir,
		DueDays:         cfg.Invoice.DueDays,
		DefaultCurrency: cfg.Invoice.DefaultCurrency,
	})
	taskSvc := tasks.NewService(db.DB, serials)

	intake := reservation.NewIntake(store, reservation.Collaborators{
		Properties: catalog,
		Invoices:   invoices,
		Notifier:   notify.NewService(channels),
		Tasks:      taskSvc,
	}, reservation.Options{
		Async:        cfg.Intake.Async,
		TaskDueAfter: cfg.Intake.TaskDueAfter,
	})

	// 6. Set up HTTP router
	router := handlers.NewRouter(handlers.Deps{
		Store:         store,
		Machine:       machine,
		Intake:        intake,
		Resolver:      booking.NewResolver(store),
		Serials:       serials,
		Hub:           hub,
		Catalog:       catalog,
		Inbox:         inbox,
		Tasks:         taskSvc,
		Invoices:      invoices,
		JWTSecret:     cfg.JWTSecret,
		StorageDriver: string(cfg.Storage.Driver),
	})

	// 7. Start server with graceful shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("🚀 Rental server (%s, storage=%s, commit=%s) starting on port %s\n",
			cfg.NodeEnv, cfg.Storage.Driver, buildinfo.Version(), cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Let in-flight reservation follow-ups finish before the database goes away
	log.Println("⏳ Waiting for reservation follow-ups...")
	intake.Wait()
	stopHub()

	// Close database (this also stops embedded PostgreSQL)
	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
