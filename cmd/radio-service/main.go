// Command radio-service drives the OBC radio UART. It relays messages read
// from the radio to subscribers and the message log, forwards datagrams from
// the downlink ports to the radio, and serves the telemetry query surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dora-sat/flight/internal/api"
	"github.com/dora-sat/flight/internal/comms"
	"github.com/dora-sat/flight/internal/config"
	"github.com/dora-sat/flight/internal/db"
	"github.com/dora-sat/flight/internal/linkhealth"
	"github.com/dora-sat/flight/internal/monitoring"
	"github.com/dora-sat/flight/internal/serialmux"
	"github.com/dora-sat/flight/internal/version"
)

var (
	configPath   = flag.String("config", config.DefaultConfigPath, "Path to the TOML configuration file")
	disableRadio = flag.Bool("disable-radio", false, "Run without the radio UART (reads idle, writes are discarded)")
	debug        = flag.Bool("debug", false, "Log every radio read and write")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// pruneInterval is how often logged radio messages past retention are removed.
const pruneInterval = time.Hour

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && path == config.DefaultConfigPath {
		log.Printf("No configuration at %s, using defaults", path)
		return config.Default(), nil
	}
	return cfg, err
}

// openRadio opens the UART named in cfg through ports, or a DisabledPort
// when the radio is switched off.
func openRadio(ports serialmux.SerialPortFactory, cfg config.RadioConfig, disabled bool) (*serialmux.Channel[serialmux.SerialPorter], error) {
	if cfg.Disabled || disabled {
		log.Printf("Radio disabled; reads will idle and writes are discarded")
		return serialmux.NewChannel[serialmux.SerialPorter](serialmux.NewDisabledPort(cfg.ReadTimeout())), nil
	}
	port, err := ports.Open(cfg.Device, cfg.PortOptions)
	if err != nil {
		return nil, err
	}
	log.Printf("Opened radio %s at %s", cfg.Device, cfg.PortOptions)
	return serialmux.NewChannel(port), nil
}

func pruneMessages(ctx context.Context, database *db.DB, retention time.Duration) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := database.PruneMessages(time.Now().Add(-retention))
			if err != nil {
				log.Printf("failed to prune radio messages: %v", err)
			} else if n > 0 {
				log.Printf("pruned %d radio messages older than %s", n, retention)
			}
		}
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	log.Printf("radio-service %s", version.String())
	monitoring.SetDebug(*debug)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	channel, err := openRadio(serialmux.RealPortFactory{}, cfg.Radio, *disableRadio)
	if err != nil {
		log.Fatalf("Failed to open radio: %v", err)
	}
	framer := serialmux.NewFramer(channel)
	framer.MaxRead = cfg.Radio.MaxRead
	framer.Backoff = cfg.Radio.Backoff()

	database, err := db.NewDB(cfg.DB.Path)
	if err != nil {
		channel.Close()
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	telem := comms.NewTelemetry(cfg.Comms.MaxErrors)
	cb, err := comms.NewControlBlock(framer.Read, []comms.WriteFunc{framer.Write}, cfg.Comms)
	if err != nil {
		channel.Close()
		log.Fatalf("Failed to create control block: %v", err)
	}
	engine := comms.NewEngine(cb, telem)
	if cfg.DB.LogMessages {
		engine.Sink = comms.MessageSinkFunc(func(dir comms.Direction, msg []byte) error {
			return database.RecordMessage(string(dir), msg)
		})
	}

	links := linkhealth.NewServer()
	engine.Observer = links
	if cfg.API.GRPCListen != "" {
		if err := links.Start(cfg.API.GRPCListen); err != nil {
			channel.Close()
			log.Fatalf("Failed to start gRPC health service: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		wg     sync.WaitGroup
		runErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil {
			log.Printf("comms engine stopped: %v", err)
			runErr = err
			stop()
		}
		log.Print("comms engine terminated")
	}()

	if cfg.DB.MessageRetention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pruneMessages(ctx, database, cfg.DB.MessageRetention)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		apiServer := api.NewServer(telem, database, cfg.API.AllowedDirs)
		mux := apiServer.ServeMux()
		apiServer.AttachAdminRoutes(mux)
		framer.AttachAdminRoutes(mux)
		database.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    cfg.API.Listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("HTTP server listening on %s", cfg.API.Listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	<-ctx.Done()
	// The engine's reader may be blocked inside the channel; closing it
	// makes the read fail and the reader exit.
	if err := channel.Close(); err != nil {
		log.Printf("failed to close radio: %v", err)
	}
	links.Stop()

	wg.Wait()
	if runErr != nil {
		log.Printf("Shutdown after radio failure")
		os.Exit(1)
	}
	log.Printf("Graceful shutdown complete")
}
