// Command anchord runs the placement core against the simulated tracking
// platform and exposes it over the debug HTTP API and the control RPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/anchorpoint/internal/api"
	"github.com/banshee-data/anchorpoint/internal/config"
	"github.com/banshee-data/anchorpoint/internal/controlrpc"
	"github.com/banshee-data/anchorpoint/internal/journal"
	"github.com/banshee-data/anchorpoint/internal/monitor"
	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/placement"
	"github.com/banshee-data/anchorpoint/internal/spatial"
	"github.com/banshee-data/anchorpoint/internal/timeutil"
	"github.com/banshee-data/anchorpoint/internal/version"
	"github.com/banshee-data/anchorpoint/internal/xr/sim"
)

var (
	configPath  = flag.String("config", "", "Path to a placement JSON config (built-in defaults when empty)")
	showVersion = flag.Bool("version", false, "Print version and exit")
	httpListen  = flag.String("listen", "", "Debug HTTP listen address (overrides http_listen)")
	grpcListen  = flag.String("grpc-listen", "", "Control RPC listen address (overrides grpc_listen)")
	journalPath = flag.String("journal", "", "Journal database path (overrides journal_path)")
	traceDir    = flag.String("trace-dir", "", "Write hit-trace plots here on shutdown (overrides trace_dir)")
	debug       = flag.Bool("debug", false, "Enable per-frame debug logging")
	autoEnter   = flag.Bool("enter", false, "Enter a session at startup")
	tableHeight = flag.Float64("table", 0.75, "Height of the simulated table surface in metres, 0 for floor only")
)

// shutdownTimeout bounds HTTP shutdown and the final session exit.
const shutdownTimeout = 5 * time.Second

// overrides are the command-line values that replace config file entries.
// Empty strings and false leave the config alone.
type overrides struct {
	HTTPListen  string
	GRPCListen  string
	JournalPath string
	TraceDir    string
	Debug       bool
}

func applyOverrides(cfg *config.PlacementConfig, o overrides) {
	if o.HTTPListen != "" {
		cfg.HTTPListen = &o.HTTPListen
	}
	if o.GRPCListen != "" {
		cfg.GRPCListen = &o.GRPCListen
	}
	if o.JournalPath != "" {
		cfg.JournalPath = &o.JournalPath
	}
	if o.TraceDir != "" {
		cfg.TraceDir = &o.TraceDir
	}
	if o.Debug {
		cfg.DebugLogging = &o.Debug
	}
}

// demoPlanes is a floor with a round table in the middle of the room.
func demoPlanes(table float64) []spatial.Plane {
	planes := []spatial.Plane{spatial.Horizontal(0, 0)}
	if table > 0 {
		planes = append(planes, spatial.Horizontal(table, 0.6))
	}
	return planes
}

// demoViewer walks a slow circle around the table, looking down and
// slightly inward.
func demoViewer(t time.Duration) spatial.Pose {
	const radius, height, period = 1.2, 1.5, 20.0
	theta := 2 * math.Pi * t.Seconds() / period
	pos := r3.Vec{X: radius * math.Sin(theta), Y: height, Z: radius * math.Cos(theta)}
	yaw := spatial.AxisAngle(r3.Vec{Y: 1}, theta)
	pitch := spatial.AxisAngle(r3.Vec{X: 1}, -math.Pi/5)
	return spatial.NewPose(pos, quat.Mul(yaw, pitch))
}

type options struct {
	autoEnter bool
	table     float64
}

func run(ctx context.Context, cfg *config.PlacementConfig, opts options) error {
	monitoring.Logf("[anchord] %s", version.String())

	j, err := journal.Open(cfg.GetJournalPath())
	if err != nil {
		return err
	}
	defer j.Close()

	platform := sim.New(sim.Config{Planes: demoPlanes(opts.table), Viewer: demoViewer(0)})
	pres := sim.NewPresenter(timeutil.RealClock{}, cfg.GetFrameRateHz())
	pres.SetViewerScript(demoViewer)

	trace := monitor.NewTraceRecorder(cfg.GetTraceMaxSamples())
	events := controlrpc.NewBroadcaster()
	ctrl := placement.NewController(platform, placement.Config{
		Preview:    cfg.GetPreviewStep(),
		Scale:      spatial.UniformScale(cfg.GetContentScale()),
		EndTimeout: cfg.GetEndTimeout(),
		Device:     sim.NewDevice().Provider(),
		Presenter:  pres,
		Sink:       placement.Sinks(j, events),
		Observer:   trace.Observe,
	})
	pres.SetFrameHandler(ctrl.OnFrame)

	g, gctx := errgroup.WithContext(ctx)

	if addr := cfg.GetHTTPListen(); addr != "" {
		srv := api.NewServer(ctrl, j, trace.HandleTrace)
		g.Go(func() error { return serveHTTP(gctx, addr, api.LoggingMiddleware(srv.ServeMux())) })
	}

	if addr := cfg.GetGRPCListen(); addr != "" {
		rpc := controlrpc.NewServer(controlrpc.NewService(ctrl, events), events)
		if err := rpc.Start(addr); err != nil {
			return fmt.Errorf("control rpc: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			rpc.Stop()
			return nil
		})
	}

	if opts.autoEnter {
		g.Go(func() error {
			if err := ctrl.Enter(gctx); err != nil {
				// A failed enter is reported and journaled; the daemon stays up.
				monitoring.Logf("[anchord] startup enter failed: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		exitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := ctrl.Exit(exitCtx); err != nil {
			monitoring.Logf("[anchord] session exit: %v", err)
		}
		if dir := cfg.GetTraceDir(); dir != "" {
			paths, err := trace.SavePlots(dir, "anchord_"+time.Now().Format("20060102_150405"))
			if err != nil {
				monitoring.Logf("[anchord] trace plots not written: %v", err)
			}
			for _, p := range paths {
				monitoring.Logf("[anchord] wrote %s", p)
			}
		}
		stats := ctrl.Stats()
		monitoring.Logf("[anchord] sessions=%d frames=%d hits=%d hit_rate=%.2f",
			stats.Session.Started, stats.Poller.Frames, stats.Poller.Hits, trace.HitRate())
		return nil
	})

	return g.Wait()
}

func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("[anchord] debug HTTP listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	monitoring.Logf("[anchord] shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("[anchord] HTTP server shutdown error: %v", err)
	}
	return nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg := config.DefaultPlacementConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadPlacementConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	applyOverrides(cfg, overrides{
		HTTPListen:  *httpListen,
		GRPCListen:  *grpcListen,
		JournalPath: *journalPath,
		TraceDir:    *traceDir,
		Debug:       *debug,
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	monitoring.SetDebug(cfg.GetDebugLogging())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, options{autoEnter: *autoEnter, table: *tableHeight}); err != nil {
		log.Fatalf("anchord: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
