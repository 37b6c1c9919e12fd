package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/mvcruz/lockstep/pkg/clock"
	"github.com/mvcruz/lockstep/pkg/journal"
	"github.com/mvcruz/lockstep/pkg/lockfile"
	"github.com/mvcruz/lockstep/pkg/metrics"
	"github.com/mvcruz/lockstep/pkg/peer"
	"github.com/mvcruz/lockstep/pkg/resource"
	"github.com/mvcruz/lockstep/pkg/types"
	"github.com/mvcruz/lockstep/pkg/worker"
)

const (
	exitOK      = 0
	exitFailure = 1
	// gave up waiting for the lock or for peer permissions
	exitTimeout = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		nodeID         = flag.String("node-id", envOr("NODE_ID", ""), "Unique worker ID (generates UUID if empty)")
		resourcePath   = flag.String("resource", envOr("RESOURCE_FILE", "resource.txt"), "Path of the shared resource file")
		lockPath       = flag.String("lock-file", envOr("LOCK_FILE", "lockfile.lock"), "Path of the lock file")
		acquireTimeout = flag.Duration("acquire-timeout", envDuration("ACQUIRE_TIMEOUT", 5*time.Second), "How long to wait for the lock (0 = non-blocking, negative = forever)")
		mode           = flag.String("mode", envOr("MODE", "increment"), "Protected operation: increment or append")
		hold           = flag.Duration("hold", envDuration("HOLD_DURATION", 0), "Extra time to hold the lock after writing")
		runs           = flag.Int("runs", envInt("RUNS", 1), "Number of protected operations (0 = run forever)")
		intervalMin    = flag.Duration("interval-min", envDuration("INTERVAL_MIN", 0), "Minimum sleep between runs")
		intervalMax    = flag.Duration("interval-max", envDuration("INTERVAL_MAX", 0), "Maximum sleep between runs")
		listenAddr     = flag.String("listen", envOr("LISTEN_ADDR", ""), "Peer coordination listen address (empty = no peer layer)")
		peerList       = flag.String("peers", envOr("PEERS", ""), "Comma-separated peers as id=host:port")
		journalPath    = flag.String("journal", envOr("JOURNAL_FILE", ""), "Access journal database path (empty = disabled)")
		metricsAddr    = flag.String("metrics-addr", envOr("METRICS_ADDR", ""), "Prometheus /metrics address (empty = disabled)")
		logLevel       = flag.String("log-level", envOr("LOG_LEVEL", "info"), "Log level: trace, debug, info, warn, error")
		inspect        = flag.Bool("inspect", false, "Print current lock owner diagnostics and exit")
	)
	flag.Parse()

	log := hclog.New(&hclog.LoggerOptions{
		Name:  "lockstep",
		Level: hclog.LevelFromString(*logLevel),
	})

	if *inspect {
		return runInspect(log, *lockPath)
	}

	id := *nodeID
	if id == "" {
		id = uuid.New().String()
		log.Info("generated worker id", "id", id)
	}

	log.Info("starting lockstep worker",
		"id", id,
		"resource", *resourcePath,
		"lock", *lockPath,
		"acquire_timeout", *acquireTimeout,
		"mode", *mode,
		"runs", *runs,
	)

	var mutate worker.Mutation
	switch *mode {
	case "increment":
		mutate = worker.Increment
	case "append":
		mutate = worker.AppendAccessLine(id)
	default:
		log.Error("unknown mode", "mode", *mode)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	uptime := clock.NewClock()

	// optional peer permission layer
	var coord *peer.Coordinator
	var peerSrv *peer.Server
	if *listenAddr != "" {
		coord = peer.NewCoordinator(id, clock.NewLamport(), peer.NewSender(log), log)

		peers, err := parsePeers(*peerList)
		if err != nil {
			log.Error("invalid -peers", "error", err)
			return exitFailure
		}
		for peerID, addr := range peers {
			coord.AddPeer(peerID, addr)
		}

		peerSrv = peer.NewServer(*listenAddr, coord, log)
		if err := peerSrv.Start(); err != nil {
			log.Error("failed to start peer server", "error", err)
			return exitFailure
		}
		defer peerSrv.Stop()

		log.Info("peer coordination enabled", "listen", peerSrv.Addr(), "peers", coord.PeerCount())
	}

	// optional access journal
	var jnl *journal.Journal
	if *journalPath != "" {
		var err error
		jnl, err = journal.Open(*journalPath)
		if err != nil {
			log.Error("failed to open journal", "error", err)
			return exitFailure
		}
		defer jnl.Close()
	}

	// optional metrics endpoint
	if *metricsAddr != "" {
		metricsSrv := metrics.NewServer(*metricsAddr)
		go func() {
			log.Info("metrics listening", "addr", *metricsAddr)
			if err := metricsSrv.Start(); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			metricsSrv.Stop(shutdownCtx)
		}()
	}

	w, err := worker.New(worker.Config{
		ID:             id,
		Store:          resource.NewStore(*resourcePath),
		Mutex:          lockfile.New(*lockPath, id, log),
		AcquireTimeout: *acquireTimeout,
		Hold:           *hold,
		Mutate:         mutate,
		Coordinator:    coord,
		Journal:        jnl,
		Logger:         log,
	})
	if err != nil {
		log.Error("invalid worker configuration", "error", err)
		return exitFailure
	}

	err = w.Run(ctx, *runs, *intervalMin, *intervalMax)

	switch {
	case err == nil:
		log.Info("done", "uptime", uptime.Elapsed())
		return exitOK
	case types.IsTimeout(err):
		log.Error("gave up waiting", "error", err, "uptime", uptime.Elapsed())
		return exitTimeout
	case ctx.Err() != nil:
		log.Info("interrupted", "uptime", uptime.Elapsed())
		return exitFailure
	default:
		log.Error("run failed", "error", err, "uptime", uptime.Elapsed())
		return exitFailure
	}
}

func runInspect(log hclog.Logger, lockPath string) int {
	info, alive, err := lockfile.Inspect(lockPath)
	if err != nil {
		log.Error("inspect failed", "error", err)
		return exitFailure
	}
	if info == nil {
		fmt.Printf("%s: no owner metadata\n", lockPath)
		return exitOK
	}
	fmt.Printf("%s: owner=%s pid=%d host=%s acquired=%s owner_alive=%v\n",
		lockPath, info.OwnerID, info.PID, info.Hostname,
		info.AcquiredAt.Format(time.RFC3339), alive)
	return exitOK
}

// peers are given as "id=host:port,id=host:port"
func parsePeers(s string) (map[string]string, error) {
	peers := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		return peers, nil
	}

	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, addr, ok := strings.Cut(entry, "=")
		if !ok || id == "" || addr == "" {
			return nil, fmt.Errorf("bad peer entry %q, want id=host:port", entry)
		}
		peers[id] = addr
	}
	return peers, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
