// Command strata-server binds the KV TCP endpoint and the admin HTTP API
// over a single LSM tree and runs until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nyasuto/strata/internal/api"
	"github.com/nyasuto/strata/internal/lsm"
	"github.com/nyasuto/strata/internal/server"
)

func main() {
	var (
		addr                = flag.String("addr", "127.0.0.1:6666", "KV protocol TCP bind address")
		adminAddr           = flag.String("admin-addr", "127.0.0.1:6667", "admin HTTP API bind address")
		walPath             = flag.String("wal", "data/wal.log", "path to the write-ahead log")
		sstableDir          = flag.String("sstables", "data/sstables", "directory for SSTable data and index files")
		memtableSize        = flag.Int("memtable-size", 1000, "max live MemTable entries before a flush")
		compactionThreshold = flag.Int("compaction-threshold", 4, "max SSTables per level before cascading compaction")
		compactionStrategy  = flag.String("compaction-strategy", "level-based", "compaction strategy: level-based or size-tiered")
		adminUser           = flag.String("admin-user", "admin", "admin API username")
		adminPassword       = flag.String("admin-password", "admin", "admin API password")
		jwtSecret           = flag.String("jwt-secret", "", "admin API JWT signing secret (defaults to a dev-only value)")
		logLevel            = flag.String("log-level", "info", "logrus level: debug, info, warn, error")
		help                = flag.Bool("help", false, "show help")
	)
	flag.Parse()

	if *help {
		fmt.Println("strata-server - durable LSM-tree key-value server")
		fmt.Println("\nUsage:")
		fmt.Println("  strata-server [options]")
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("invalid -log-level %q: %v", *logLevel, err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	strategy := lsm.LevelBased
	switch *compactionStrategy {
	case "level-based":
		strategy = lsm.LevelBased
	case "size-tiered":
		strategy = lsm.SizeTiered
	default:
		logrus.Fatalf("unknown -compaction-strategy %q", *compactionStrategy)
	}

	tree, err := lsm.Open(lsm.Config{
		WALPath:             *walPath,
		SSTableDir:          *sstableDir,
		MemTableMaxSize:     *memtableSize,
		CompactionThreshold: *compactionThreshold,
		CompactionStrategy:  strategy,
	})
	if err != nil {
		logrus.Fatalf("open engine: %v", err)
	}
	defer func() {
		if err := tree.Close(); err != nil {
			logrus.WithError(err).Error("close engine")
		}
	}()

	kvServer := server.New(tree)
	if err := kvServer.Start(*addr); err != nil {
		logrus.Fatalf("start kv server: %v", err)
	}
	defer func() {
		if err := kvServer.Stop(); err != nil {
			logrus.WithError(err).Error("stop kv server")
		}
	}()

	adminServer := api.NewServer(tree, api.Config{
		AdminUser:     *adminUser,
		AdminPassword: *adminPassword,
		JWTSecret:     *jwtSecret,
	})
	if err := adminServer.Start(*adminAddr); err != nil {
		logrus.Fatalf("start admin api: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := adminServer.Stop(ctx); err != nil {
			logrus.WithError(err).Error("stop admin api")
		}
	}()

	logrus.WithFields(logrus.Fields{"kv_addr": *addr, "admin_addr": *adminAddr}).Info("strata-server ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logrus.Info("shutting down")
}
