package database

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/xelth-com/eckrentgo/internal/config"
)

const embeddedPassword = "postgres"

// startEmbedded boots the bundled postgres and returns cfg rewritten to point at it
func startEmbedded(cfg config.DatabaseConfig) (*embeddedpostgres.EmbeddedPostgres, config.DatabaseConfig, error) {
	log.Printf("📦 Mode: [Embedded PostgreSQL] - data in %s, port %d", cfg.EmbeddedDir, cfg.EmbeddedPort)

	stopOrphan(filepath.Join(cfg.EmbeddedDir, "postmaster.pid"))
	if !waitPortFree(cfg.EmbeddedPort, 3*time.Second) {
		return nil, cfg, fmt.Errorf("port %d is still in use by another process", cfg.EmbeddedPort)
	}

	pg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		DataPath(cfg.EmbeddedDir).
		Port(uint32(cfg.EmbeddedPort)).
		Database(cfg.Database).
		Username(cfg.Username).
		Password(embeddedPassword))
	if err := pg.Start(); err != nil {
		return nil, cfg, fmt.Errorf("failed to start embedded database: %w", err)
	}

	cfg.Port = strconv.Itoa(cfg.EmbeddedPort)
	cfg.Password = embeddedPassword
	log.Printf("✅ Embedded PostgreSQL process started on port %d", cfg.EmbeddedPort)
	return pg, cfg, nil
}

// stopOrphan terminates a postgres left running by a crashed process and
// removes its pid file
func stopOrphan(pidFile string) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return
	}
	first, _, _ := strings.Cut(string(data), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		log.Printf("⚠️  Could not parse PID from %s: %v", pidFile, err)
		return
	}
	defer os.Remove(pidFile)

	proc, err := os.FindProcess(pid)
	if err != nil || proc.Signal(syscall.Signal(0)) != nil {
		log.Printf("🧹 Removing stale %s (PID %d not running)", pidFile, pid)
		return
	}

	log.Printf("⚠️  Found orphaned PostgreSQL process (PID %d), stopping...", pid)
	_ = proc.Signal(syscall.SIGTERM)
	for i := 0; i < 10; i++ {
		time.Sleep(500 * time.Millisecond)
		if proc.Signal(syscall.Signal(0)) != nil {
			log.Printf("✅ Orphaned PostgreSQL process stopped")
			return
		}
	}
	log.Printf("⚠️  PID %d ignored SIGTERM, killing", pid)
	_ = proc.Kill()
	time.Sleep(500 * time.Millisecond)
}

func portInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func waitPortFree(port int, max time.Duration) bool {
	deadline := time.Now().Add(max)
	for portInUse(port) {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(500 * time.Millisecond)
	}
	return true
}
