// Command health-app samples OBC health, logs it, and optionally stores it in
// the telemetry database and transmits it as a beacon through the radio
// service.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dora-sat/flight/internal/config"
	"github.com/dora-sat/flight/internal/health"
	"github.com/dora-sat/flight/internal/httputil"
	"github.com/dora-sat/flight/internal/timeutil"
	"github.com/dora-sat/flight/internal/version"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to the TOML configuration file")
	save       = flag.Bool("save", false, "Save the health information to the telemetry database")
	transmit   = flag.Bool("transmit", false, "Transmit the health beacon through the radio service")
	interval   = flag.Duration("interval", -1, "Repeat every interval (0 runs once; default from config)")
)

type app struct {
	cfg       config.HealthConfig
	collector *health.Collector
	client    httputil.HTTPClient
	save      bool
	transmit  bool
}

// runOnce collects one beacon and reports whether every requested delivery
// succeeded.
func (a *app) runOnce(ctx context.Context) bool {
	log.Printf("Getting health status info")
	b := a.collector.Collect(ctx)
	log.Printf("Up time: %.2f", b.Uptime)
	log.Printf("CPU usage: %.2f%%", b.CPUUsage)
	log.Printf("Memory usage: %.2f%%", b.MemUsage)
	log.Printf("Disk usage: root %.1f%%, home %.1f%%, sd %.1f%%, upgrade %.1f%%",
		b.DiskRoot, b.DiskHome, b.DiskSD, b.DiskUpgrade)

	ok := true
	if a.save {
		log.Printf("Storing health status")
		if err := health.SaveParameters(a.client, a.cfg.TelemetryURL, b); err != nil {
			log.Printf("Failed to save telemetry: %v", err)
			ok = false
		}
	}
	if a.transmit {
		log.Printf("Transmitting health beacon: %s", b)
		n, err := health.Transmit(a.cfg.RadioAddr, b)
		if err != nil {
			log.Printf("%v", err)
			ok = false
		} else {
			log.Printf("Bytes transmitted: %d", n)
		}
	}
	return ok
}

func main() {
	flag.Parse()
	log.Printf("health-app %s", version.String())

	cfg, err := config.Load(*configPath)
	if errors.Is(err, fs.ErrNotExist) && *configPath == config.DefaultConfigPath {
		log.Printf("No configuration at %s, using defaults", *configPath)
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	every := cfg.Health.Interval
	if *interval >= 0 {
		every = *interval
	}

	a := &app{
		cfg:       cfg.Health,
		collector: health.NewCollector(health.NewProbe(), cfg.Health.Disks),
		client:    httputil.NewStandardClient(&http.Client{Timeout: time.Second}),
		save:      *save,
		transmit:  *transmit,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if every == 0 {
		if !a.runOnce(ctx) {
			os.Exit(1)
		}
		return
	}

	repeat(ctx, timeutil.RealClock{}, every, a.runOnce)
	log.Printf("health-app stopped")
}

// repeat calls run immediately and then once per tick until ctx is done.
// A failed run is logged by run itself and does not stop the loop.
func repeat(ctx context.Context, clock timeutil.Clock, every time.Duration, run func(context.Context) bool) {
	ticker := clock.NewTicker(every)
	defer ticker.Stop()
	for {
		run(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
	}
}
