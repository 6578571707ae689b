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

	"go.bug.st/serial"
	"tailscale.com/tsweb"

	"github.com/banshee-data/dealr/internal/api"
	"github.com/banshee-data/dealr/internal/config"
	"github.com/banshee-data/dealr/internal/db"
	"github.com/banshee-data/dealr/internal/dealer"
	"github.com/banshee-data/dealr/internal/fsutil"
	"github.com/banshee-data/dealr/internal/game/games"
	"github.com/banshee-data/dealr/internal/hal"
	"github.com/banshee-data/dealr/internal/hal/bridge"
	"github.com/banshee-data/dealr/internal/hal/sim"
	"github.com/banshee-data/dealr/internal/monitoring"
	"github.com/banshee-data/dealr/internal/serialmux"
	"github.com/banshee-data/dealr/internal/timeutil"
	"github.com/banshee-data/dealr/internal/version"
)

var (
	configPath      = flag.String("config", "", "Path to a JSON config file (default: compiled-in values)")
	devMode         = flag.Bool("dev", false, "Run on the simulated turntable instead of the serial bridge")
	listen          = flag.String("listen", "", "HTTP listen address (overrides config)")
	port            = flag.String("port", "", "Serial port of the bridge board (ignored in dev mode)")
	dbPath          = flag.String("db", "", "Path to the sqlite journal database")
	calibrationKind = flag.String("calibration", "", "Calibration backend: file or sqlite")
	calibrationFile = flag.String("calibration-file", "", "Calibration image path for the file backend")
	debugLog        = flag.Bool("debug", false, "Enable verbose logging")
	showVersion     = flag.Bool("version", false, "Print the version and exit")
)

const (
	handshakeTimeout = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	env, err := config.ParseEnv()
	if err != nil {
		log.Fatalf("failed to read environment: %v", err)
	}
	cfg, err := resolveConfig(overrides{
		ConfigPath:      *configPath,
		Listen:          *listen,
		Port:            *port,
		DBPath:          *dbPath,
		Calibration:     *calibrationKind,
		CalibrationFile: *calibrationFile,
		Debug:           *debugLog,
	}, env)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	monitoring.SetVerbose(cfg.GetVerbose())
	dev := *devMode || env.Dev

	if dev {
		printBanner()
	}
	log.Printf("starting %s", version.String())

	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	store, err := openCalibration(cfg, fsutil.OSFileSystem{}, database)
	if err != nil {
		log.Fatalf("failed to open calibration: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		hw        hal.Hardware
		display   hal.Display
		simulator *sim.Sim
		board     *serialmux.SerialMux[serial.Port]
	)
	if dev {
		simulator = sim.New(timeutil.RealClock{}, sim.DefaultLayout(), sim.DefaultSettings())
		hw = simulator
		display = newConsoleDisplay(os.Stdout)
		log.Printf("dev mode: simulated turntable with %d tags", len(sim.DefaultLayout().Tags))
	} else {
		board, err = serialmux.NewRealSerialMux(cfg.GetSerialPort(), serialmux.PortOptions{BaudRate: cfg.GetBaudRate()})
		if err != nil {
			log.Fatalf("failed to open serial port %s: %v", cfg.GetSerialPort(), err)
		}
		defer board.Close()
		if err := board.Initialize(); err != nil {
			log.Fatalf("failed to initialize bridge port: %v", err)
		}

		// run the monitor routine to manage IO on the serial port
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := board.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor serial port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()

		b := bridge.New(board)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("bridge stopped: %v", err)
			}
		}()
		if err := b.Handshake(ctx, handshakeTimeout); err != nil {
			log.Fatalf("bridge handshake failed: %v", err)
		}
		log.Printf("bridge ready on %s", cfg.GetSerialPort())
		hw, display = b, b
	}

	d, err := dealer.New(hw, dealer.Options{
		Config:  cfg,
		Store:   store,
		Display: display,
		Games:   games.Default(),
		Journal: database,
	})
	if err != nil {
		log.Fatalf("failed to build dealer: %v", err)
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		apiServer := api.NewServer(d, store, database)
		if simulator != nil {
			apiServer.WithSim(simulator)
		}
		mux := apiServer.ServeMux()
		apiServer.AttachAdminRoutes(mux)
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach database admin routes: %v", err)
		}
		if board != nil {
			board.AttachAdminRoutes(mux)
		}
		tsweb.Debugger(mux).KV("Version", version.String())

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", cfg.GetListen())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	if err := d.Boot(ctx); err != nil {
		log.Printf("boot aborted: %v", err)
	} else if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("dealer loop stopped: %v", err)
	}
	stop()

	wg.Wait()
	log.Printf("graceful shutdown complete")
}
