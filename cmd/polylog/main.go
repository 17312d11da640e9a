package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rizkyandriawan/polylog/internal/config"
	"github.com/rizkyandriawan/polylog/internal/coordinator"
	"github.com/rizkyandriawan/polylog/internal/engine"
	"github.com/rizkyandriawan/polylog/internal/group"
	"github.com/rizkyandriawan/polylog/internal/model"
	"github.com/rizkyandriawan/polylog/internal/server"
	"github.com/rizkyandriawan/polylog/internal/shard"
	"github.com/rizkyandriawan/polylog/internal/store"
)

var (
	version = "0.1.0"
	commit  = "none"
)

// acquireDataLock acquires an exclusive lock on the data directory
// Returns the lock file handle (must be kept open) or error if already locked
func acquireDataLock(dataDir string) (*os.File, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	lockPath := filepath.Join(dataDir, ".lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	// Try to acquire exclusive lock (non-blocking)
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another polylog instance is using data directory %s", dataDir)
	}

	return f, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		fmt.Printf("polylog %s (%s)\n", version, commit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`polylog - Kafka-shaped message broker with a shard-per-core coordinator

Usage:
  polylog <command> [options]

Commands:
  serve     Start the Polylog server
  version   Print version information
  help      Print this help message

Run 'polylog serve --help' for serve options.`)
}

func newLogger(cfg *config.Config) log.Logger {
	var logger log.Logger
	if cfg.Logging.Format == "json" {
		logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	}

	var opt level.Option
	switch cfg.Logging.Level {
	case "debug":
		opt = level.AllowDebug()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		opt = level.AllowInfo()
	}
	logger = level.NewFilter(logger, opt)
	return log.With(logger, "ts", log.DefaultTimestampUTC)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)

	configFile := fs.String("config", "", "Path to config file (YAML)")
	kafkaAddr := fs.String("kafka-addr", ":9092", "Kafka protocol listen address")
	httpAddr := fs.String("http-addr", ":8080", "HTTP API listen address")
	dataDir := fs.String("data-dir", "./data", "Data directory for storage")
	logLevel := fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	backend := fs.String("storage", "", "Storage backend: badger, sqlite or sqlite:memory")
	cores := fs.Int("cores", 0, "Execution cores (0 = one per CPU)")

	fs.Parse(args)

	// Load config with precedence: flags > env > file > defaults
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Override with flags if provided
	if *kafkaAddr != ":9092" || cfg.Server.KafkaAddr == "" {
		cfg.Server.KafkaAddr = *kafkaAddr
	}
	if *httpAddr != ":8080" || cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if *dataDir != "./data" || cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *logLevel != "info" || cfg.Logging.Level == "" {
		cfg.Logging.Level = *logLevel
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if *cores > 0 {
		cfg.Cores.Count = *cores
	}

	logger := newLogger(cfg)
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Acquire data directory lock (except for memory mode)
	var lockFile *os.File
	if cfg.Storage.Backend != "sqlite:memory" {
		var err error
		lockFile, err = acquireDataLock(cfg.Storage.DataDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to acquire data lock: %v\n", err)
			os.Exit(1)
		}
		defer lockFile.Close()
	}

	// Initialize storage
	var topicStore store.TopicStoreInterface
	var offsetStore store.OffsetStoreInterface
	var closer func() error

	switch cfg.Storage.Backend {
	case "badger", "":
		db, err := store.Open(cfg.Storage.DataDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open badger store: %v\n", err)
			os.Exit(1)
		}
		closer = db.Close
		topicStore = store.NewTopicStore(db)
		offsetStore = store.NewOffsetStore(db)

	case "sqlite", "sqlite:disk":
		sqliteDB, err := store.OpenSQLite(cfg.Storage.DataDir, "disk")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open sqlite store: %v\n", err)
			os.Exit(1)
		}
		closer = sqliteDB.Close
		topicStore = store.NewSQLiteTopicStore(sqliteDB)
		offsetStore = store.NewSQLiteOffsetStore(sqliteDB)

	case "sqlite:memory":
		sqliteDB, err := store.OpenSQLite(cfg.Storage.DataDir, "memory")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open sqlite store: %v\n", err)
			os.Exit(1)
		}
		closer = sqliteDB.Close
		topicStore = store.NewSQLiteTopicStore(sqliteDB)
		offsetStore = store.NewSQLiteOffsetStore(sqliteDB)

	default:
		fmt.Fprintf(os.Stderr, "unknown storage backend: %s (use 'badger', 'sqlite' or 'sqlite:memory')\n", cfg.Storage.Backend)
		os.Exit(1)
	}
	defer closer()

	// Core pool and per-core coordination state
	nCores := cfg.CoreCount()
	pool := shard.NewPool(nCores, logger)
	defer pool.Close()

	partitions := cfg.Coordinator.OffsetsPartitions
	mappers := shard.NewSharded(pool, func(shard.CoreID) *coordinator.Mapper {
		return coordinator.NewMapperWithPartitions(partitions)
	})
	shardTables := shard.NewSharded(pool, func(shard.CoreID) *coordinator.ShardTable {
		return coordinator.NewShardTable()
	})
	managers := shard.NewSharded(pool, func(core shard.CoreID) *group.Manager {
		return group.NewManager(core, pool, offsetStore, logger)
	})

	// Distribute offsets partitions round-robin and recover each on its
	// owning core. Every core's shard table sees the full assignment.
	var wg sync.WaitGroup
	for p := int32(0); p < partitions; p++ {
		ntp := model.OffsetsNTP(p)
		owner := shard.CoreID(int(p) % nCores)
		for c := 0; c < nCores; c++ {
			shardTables.Local(shard.CoreID(c)).SetOwner(ntp, owner)
		}

		wg.Add(1)
		mgr := managers.Local(owner)
		pool.SubmitTo(owner, func() {
			defer wg.Done()
			mgr.AttachPartition(ntp)
			if err := mgr.FinishRecovery(ntp); err != nil {
				level.Error(logger).Log("msg", "partition recovery failed", "ntp", ntp.String(), "err", err)
			}
		})
	}
	wg.Wait()

	sg := shard.NewSchedulingGroup("kafka-coordination", registry)
	ssg := shard.NewSMPServiceGroup("kafka-coordination", cfg.Coordinator.SMPConcurrency)

	routers := make([]*group.Router, nCores)
	for c := 0; c < nCores; c++ {
		routers[c] = group.NewRouter(shard.CoreID(c), sg, ssg, managers, shardTables, mappers, logger)
	}

	// Engine and schedulers
	eng := engine.New(cfg, topicStore, logger)
	eng.Start()
	defer eng.Stop()

	expiry := engine.NewMemberExpirationScheduler(pool, managers, cfg.Groups, logger)
	expiry.Start()
	defer expiry.Stop()

	// Servers
	kafkaSrv := server.NewKafkaServer(cfg, eng, routers, logger, registry)
	httpSrv := server.NewHTTPServer(cfg, eng, routers[0], logger, registry)

	go func() {
		level.Info(logger).Log("msg", "kafka server listening", "addr", cfg.Server.KafkaAddr, "cores", nCores)
		if err := kafkaSrv.ListenAndServe(); err != nil {
			level.Error(logger).Log("msg", "kafka server error", "err", err)
		}
	}()

	go func() {
		level.Info(logger).Log("msg", "http server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(logger).Log("msg", "http server error", "err", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	level.Info(logger).Log("msg", "shutting down")
	kafkaSrv.Close()
	httpSrv.Close()
	offsetStore.Close()
}
