package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/arena.grid/internal/api"
	"github.com/banshee-data/arena.grid/internal/broadcast"
	"github.com/banshee-data/arena.grid/internal/config"
	"github.com/banshee-data/arena.grid/internal/engine"
	"github.com/banshee-data/arena.grid/internal/mocap"
	"github.com/banshee-data/arena.grid/internal/monitoring"
	"github.com/banshee-data/arena.grid/internal/security"
	"github.com/banshee-data/arena.grid/internal/store"
	"github.com/banshee-data/arena.grid/internal/version"
)

var (
	configPath     = flag.String("config", "", "Path to arena JSON config (defaults are used when empty)")
	presetName     = flag.String("preset", "", "Built-in arena to use instead of -config (SMALL, MEDIUM, LARGE)")
	listen         = flag.String("listen", ":8080", "HTTP listen address")
	dbPath         = flag.String("db", "data/arena.db", "SQLite run history; empty disables it")
	mocapAddr      = flag.String("mocap-addr", fmt.Sprintf(":%d", mocap.DefaultPort), "UDP address for motion-capture frames")
	mocapRcvBuf    = flag.Int("mocap-rcvbuf", 1<<20, "UDP receive buffer size in bytes")
	replayPath     = flag.String("replay", "", "Replay a JSONL frame recording instead of listening")
	replayPCAP     = flag.String("replay-pcap", "", "Replay frames from a pcap capture instead of listening")
	replayInterval = flag.Duration("replay-interval", 0, "Delay between replayed frames")
	recordPath     = flag.String("record", "", "Append every received frame to this JSONL file")
	forwardAddr    = flag.String("forward", "", "Forward raw mocap datagrams to this UDP address")
	posesAddr      = flag.String("poses-addr", "", "Broadcast robot poses to this UDP address")
	plansAddr      = flag.String("plans-addr", "", "Broadcast solved plans to this UDP address")
	statsInterval  = flag.Duration("stats-interval", time.Minute, "How often transport counters are logged")
	dryRun         = flag.Bool("dry-run", false, "Expand the solver command without running it")
	quiet          = flag.Bool("quiet", false, "Silence pipeline diagnostics")
	showVersion    = flag.Bool("version", false, "Print version information and exit")
)

func loadConfig() (*config.ArenaConfig, error) {
	switch {
	case *configPath != "" && *presetName != "":
		return nil, errors.New("-config and -preset are mutually exclusive")
	case *configPath != "":
		return config.LoadArenaConfig(*configPath)
	case *presetName != "":
		return config.Preset(*presetName)
	}
	return &config.ArenaConfig{}, nil
}

func dialSender(ctx context.Context, addr string) (*broadcast.Forwarder, error) {
	if addr == "" {
		return nil, nil
	}
	f, err := broadcast.Dial(addr, *statsInterval)
	if err != nil {
		return nil, err
	}
	f.Start(ctx)
	return f, nil
}

// senderOrNil keeps a nil *Forwarder from becoming a non-nil interface.
func senderOrNil(f *broadcast.Forwarder) engine.Sender {
	if f == nil {
		return nil
	}
	return f
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *replayPath != "" && *replayPCAP != "" {
		log.Fatal("-replay and -replay-pcap are mutually exclusive")
	}
	if *quiet {
		monitoring.SetLogger(nil)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var db *store.DB
	if *dbPath != "" {
		db, err = store.Open(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poses, err := dialSender(ctx, *posesAddr)
	if err != nil {
		log.Fatalf("failed to dial pose broadcast: %v", err)
	}
	plans, err := dialSender(ctx, *plansAddr)
	if err != nil {
		log.Fatalf("failed to dial plan broadcast: %v", err)
	}
	forward, err := dialSender(ctx, *forwardAddr)
	if err != nil {
		log.Fatalf("failed to dial frame forwarder: %v", err)
	}

	a, err := buildApp(cfg, deps{DB: db, Poses: senderOrNil(poses), Plans: senderOrNil(plans), DryRun: *dryRun})
	if err != nil {
		log.Fatalf("failed to build arena: %v", err)
	}
	if err := a.engine.Restore(ctx); err != nil {
		log.Printf("failed to restore goals: %v", err)
	}
	log.Printf("arena %s ready: %s", version.String(), a.describe())

	var sink mocap.Sink = a.frames
	if *recordPath != "" {
		if err := security.ValidateOutputPath(*recordPath); err != nil {
			log.Fatalf("refusing to record: %v", err)
		}
		f, err := os.OpenFile(*recordPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("failed to open recording: %v", err)
		}
		defer f.Close()
		rec := mocap.NewRecorder(f)
		sink = mocap.SinkFunc(func(fr mocap.Frame) {
			a.frames.HandleFrame(fr)
			rec.HandleFrame(fr)
		})
		defer func() {
			if err := rec.Err(); err != nil {
				log.Printf("recording %s: %v", *recordPath, err)
			}
		}()
	}

	// frame source: a live UDP listener or a replayed capture
	stats := &mocap.Counters{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		switch {
		case *replayPath != "":
			err = replayFile(ctx, *replayPath, func(f *os.File) (int, error) {
				return mocap.ReadRecording(ctx, f, sink, mocap.ReplayOptions{Interval: *replayInterval, Stats: stats})
			})
		case *replayPCAP != "":
			err = replayFile(ctx, *replayPCAP, func(f *os.File) (int, error) {
				return mocap.ReplayPCAP(ctx, f, 0, sink, mocap.ReplayOptions{Interval: *replayInterval, Stats: stats})
			})
		default:
			l := mocap.NewListener(mocap.ListenerConfig{
				Address:     *mocapAddr,
				RcvBuf:      *mocapRcvBuf,
				LogInterval: *statsInterval,
				Stats:       stats,
				Sink:        sink,
				Forwarder:   forwarderOrNil(forward),
			})
			err = l.Start(ctx)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("frame source stopped: %v", err)
		}
		stats.Log()
		log.Print("frame source routine terminated")
	}()

	// classification passes
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("engine stopped: %v", err)
		}
		log.Print("engine routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux, err := api.NewServer(a.engine, a.runs, a.db).ServeMux()
		if err != nil {
			log.Printf("failed to build HTTP routes: %v", err)
			stop()
			return
		}
		server := &http.Server{
			Addr:              *listen,
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	for _, f := range []*broadcast.Forwarder{poses, plans, forward} {
		if f != nil {
			f.Close()
		}
	}
	log.Printf("Graceful shutdown complete")
}

func forwarderOrNil(f *broadcast.Forwarder) mocap.Forwarder {
	if f == nil {
		return nil
	}
	return f
}

// replayFile opens path and hands it to replay, keeping the process alive
// afterwards so the last frame stays inspectable over HTTP.
func replayFile(ctx context.Context, path string, replay func(*os.File) (int, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := replay(f)
	log.Printf("replayed %d frames from %s", n, path)
	if err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}
