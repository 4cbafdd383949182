package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blockpatterns.dev/internal/catalogs"
	"blockpatterns.dev/internal/metrics"
	"blockpatterns.dev/internal/persistence/matchlog"
	"blockpatterns.dev/internal/tuning"
	"blockpatterns.dev/internal/watch"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory (blocks.json, tags.json, patterns/)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the SQLite read model (matches, strategy stats, reloads)")
		matchLog   = flag.Bool("matchlog", true, "write matches to <data>/matches/*.jsonl.zst")
		watchDir   = flag.Bool("watch", true, "reload patterns when files under <configs>/patterns change")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	logger.Printf("catalogs: %d blocks, %d tags, %d patterns",
		cats.Blocks.Registry.Len(), len(cats.Tags.ByName), len(cats.Patterns.Patterns))

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune, _ = tuning.Load("")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Optional: read-model index backend (never on the detection path).
	idx, err := openRuntimeIndex(*dataDir, *disableDB, m)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index upsert catalogs: %v", err)
		}
	}

	var mlog *matchlog.Logger
	if *matchLog {
		mlog = matchlog.New(filepath.Join(*dataDir, "matches"), envInt("BP_MATCHLOG_QUEUE", matchlog.DefaultQueue), m, logger)
	}

	rt, err := newRuntime(runtimeConfig{
		ConfigDir: *configDir,
		Catalogs:  cats,
		Tuning:    tune,
		Index:     idx,
		MatchLog:  mlog,
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("start engine: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if *watchDir {
		debounce := time.Duration(tune.Index.ReloadDebounceMs) * time.Millisecond
		w, err := watch.New(filepath.Join(*configDir, "patterns"), debounce, rt.reloadPatterns, logger)
		if err != nil {
			logger.Printf("pattern watcher disabled: %v", err)
		} else {
			rt.watcher = w
			go func() {
				if err := w.Run(ctx); err != nil {
					logger.Printf("pattern watcher: %v", err)
				}
			}()
		}
	}

	flushEvery := time.Duration(envInt("BP_STATS_FLUSH_MS", 10000)) * time.Millisecond
	go rt.runStatsFlusher(ctx, flushEvery)

	mux := http.NewServeMux()
	rt.routes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	if envBool("BP_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		rt.adminRoutes(mux)
	} else {
		logger.Printf("admin endpoints disabled (BP_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("BP_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (BP_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (index v%d)", *addr, rt.engine.Index().Version)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	rt.shutdown()
	logger.Printf("stopped")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
