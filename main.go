package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/geofuse/internal/api"
	"github.com/banshee-data/geofuse/internal/config"
	"github.com/banshee-data/geofuse/internal/feeds"
	"github.com/banshee-data/geofuse/internal/fusion"
	"github.com/banshee-data/geofuse/internal/store"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode (replay canned NMEA fixtures instead of real hardware)")
	listen     = flag.String("listen", ":8080", "Listen address")
	dbFile     = flag.String("db", "geofuse.db", "Path to the estimate database")
	configPath = flag.String("config", "", "Path to a tuning config JSON file (optional)")
	gpsPort    = flag.String("gps-port", "", "Serial port for the gps feed (overrides config)")
	udpListen  = flag.String("udp-listen", "", "UDP listen address for the net feed (overrides config)")
	fixtures   = flag.String("fixtures", "fixtures/nmea.txt", "NMEA fixture file replayed in dev mode")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	// gps feed: a serial NMEA receiver, or a fixture replay in dev mode.
	var gpsMux *feeds.Mux
	if *devMode {
		data, err := os.ReadFile(*fixtures)
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		port := feeds.NewMockPort(data, 100*time.Millisecond)
		gpsMux = feeds.NewMux(fusion.FeedGPS, port, feeds.NewNMEAParser())
	} else {
		path := cfg.GetGPSSerialPath()
		if *gpsPort != "" {
			path = *gpsPort
		}
		mode := feeds.DefaultPortMode()
		mode.BaudRate = cfg.GetGPSBaudRate()
		port, err := feeds.OpenSerialPort(path, mode)
		if err != nil {
			log.Fatalf("failed to open gps serial port %s: %v", path, err)
		}
		gpsMux = feeds.NewMux(fusion.FeedGPS, port, feeds.NewNMEAParser())
	}
	defer gpsMux.Close()

	// net feed: newline-delimited JSON fixes over UDP.
	netAddr := cfg.GetNetListenAddr()
	if *udpListen != "" {
		netAddr = *udpListen
	}
	var netMux *feeds.Mux
	if netAddr != "" {
		conn, err := feeds.ListenUDP(netAddr)
		if err != nil {
			log.Fatalf("failed to listen for net feed on %s: %v", netAddr, err)
		}
		netMux = feeds.NewMux(fusion.FeedNet, conn, feeds.NewJSONFixParser())
		defer netMux.Close()
	}

	db, err := store.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var gpsSource, netSource fusion.FeedSource
	gpsSource = gpsMux
	if netMux != nil {
		netSource = netMux
	}
	manager := fusion.NewManager(cfg.Tuning(), gpsSource, netSource)
	defer manager.StopAll()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routines to manage IO on the feed transports
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gpsMux.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("gps monitor failed: %v", err)
		}
		log.Print("gps monitor routine terminated")
	}()
	if netMux != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := netMux.Monitor(ctx); err != nil && err != context.Canceled {
				log.Printf("net monitor failed: %v", err)
			}
			log.Print("net monitor routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(manager, db, cfg).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
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
	log.Printf("Graceful shutdown complete")
}
