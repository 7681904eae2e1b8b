package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gunmetal-robotics/sentry/internal/api"
	"github.com/gunmetal-robotics/sentry/internal/config"
	"github.com/gunmetal-robotics/sentry/internal/db"
	"github.com/gunmetal-robotics/sentry/internal/gimbal"
	"github.com/gunmetal-robotics/sentry/internal/serialio"
	"github.com/gunmetal-robotics/sentry/internal/turret"
	"github.com/gunmetal-robotics/sentry/internal/units"
	"github.com/gunmetal-robotics/sentry/internal/version"
)

var (
	configPath    = flag.String("config", "", "Path to a JSON config file (deployed defaults apply when omitted)")
	devMode       = flag.Bool("dev", false, "Drive a simulated gimbal instead of hardware")
	listen        = flag.String("listen", "", "HTTP listen address (overrides config)")
	serialPort    = flag.String("port", "", "Serial port to try first (overrides config)")
	dbFile        = flag.String("db", "", "SQLite session store path (overrides config)")
	targetColor   = flag.String("color", "", "Target color band, red or blue (overrides config)")
	statusUnits   = flag.String("units", units.Ticks, "Angle units for status output (ticks or degrees)")
	noRecord      = flag.Bool("no-record", false, "Disable session recording")
	migrationsDir = flag.String("migrations", "migrations", "Directory holding schema migration files")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// simStatusInterval paces the simulated gimbal's telemetry in dev mode,
// matching the real bridge's report rate.
const simStatusInterval = 50 * time.Millisecond

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "migrate":
			handleMigrate(flag.Args()[1:])
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", flag.Arg(0))
			fmt.Fprintln(os.Stderr, "Usage: sentry [flags] | sentry migrate <up|down|version|force> [flags]")
			os.Exit(1)
		}
		return
	}

	cfg := config.EmptyTurretConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTurretConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	// Flags override the file.
	if *serialPort != "" {
		cfg.SerialPort = serialPort
	}
	if *listen != "" {
		cfg.HTTPAddr = listen
	}
	if *dbFile != "" {
		cfg.DatabasePath = dbFile
	}
	if *targetColor != "" {
		cfg.TargetColor = targetColor
	}

	if !units.IsValid(*statusUnits) {
		log.Fatalf("Invalid -units %q: want one of %s", *statusUnits, units.GetValidUnitsString())
	}
	color, err := turret.ParseTargetColor(cfg.GetTargetColor())
	if err != nil {
		log.Fatalf("Invalid target color: %v", err)
	}

	log.Print(version.String())

	var transport *serialio.Transport
	if *devMode {
		sim := serialio.NewSimulatedPort(simStatusInterval)
		transport = serialio.NewTransport(serialio.NewTestablePortFactory(sim))
		log.Print("Dev mode: driving a simulated gimbal")
	} else {
		transport = serialio.NewTransport(serialio.RealPortFactory{})
	}

	actuator := gimbal.NewActuator(transport, nil)
	actuator.SetCommandCANID(cfg.GetCommandCANID())

	// Open the session store and attach the recorders before the link comes
	// up, so the first transmitted frames land in the history.
	var (
		database  *db.DB
		recorder  *db.Recorder
		sessionID string
	)
	if *noRecord {
		log.Print("Session recording disabled")
	} else {
		database, err = db.Open(cfg.GetDatabasePath())
		if err != nil {
			log.Fatalf("Failed to open session store: %v", err)
		}
		defer database.Close()

		if err := database.CheckMigrations(*migrationsDir); err != nil {
			log.Fatalf("Session store schema: %v (run `sentry migrate up`)", err)
		}

		session, err := database.StartSession(string(color), cfg.GetSerialPort(), "")
		if err != nil {
			log.Fatalf("Failed to start session: %v", err)
		}
		sessionID = session.SessionID
		recorder = db.NewRecorder(database, sessionID)
		actuator.SetCommandRecorder(recorder)
		actuator.SetStatusRecorder(recorder)
		log.Printf("Recording session %s to %s", sessionID, cfg.GetDatabasePath())
	}

	opts := serialio.PortOptions{BaudRate: cfg.GetBaudRate()}
	if err := actuator.Initialize(cfg.GetPortCandidates(), opts); err != nil {
		log.Fatalf("Failed to initialize gimbal: %v", err)
	}
	defer actuator.Close()
	log.Printf("Gimbal link up on %s", transport.Path())

	// Drive to the configured start attitude.
	if err := actuator.SetPitch(cfg.GetPitchDefault()); err != nil {
		log.Printf("Failed to set start pitch: %v", err)
	}
	if err := actuator.SetYaw(cfg.GetYawDefault()); err != nil {
		log.Printf("Failed to set start yaw: %v", err)
	}
	if err := actuator.SetIdle(cfg.GetIdleAngle()); err != nil {
		log.Printf("Failed to set idle angle: %v", err)
	}

	tracker := turret.NewTracker(turret.TrackerConfig{
		Color:            color,
		CenterMarginPx:   cfg.GetCenterMarginPx(),
		YawNudge:         cfg.GetYawNudge(),
		PulseOnDuration:  cfg.GetPulseOn(),
		PulseOffDuration: cfg.GetPulseOff(),
		LossDebounce:     cfg.GetLossDebounce(),
	}, actuator)
	if recorder != nil {
		tracker.SetEngagementRecorder(recorder)
	}

	patrolCfg := turret.DefaultPatrolConfig()
	patrolCfg.RightLimit = cfg.GetPatrolRightLimit()
	patrolCfg.LeftLimit = cfg.GetPatrolLeftLimit()
	patrolCfg.BaseStep = cfg.GetPatrolStep()
	patrolCfg.Interval = cfg.GetPatrolInterval()

	orch := turret.NewOrchestrator(turret.OrchestratorConfig{
		Actuator: actuator,
		Tracker:  tracker,
		Patrol:   turret.NewPatrol(patrolCfg),
	})

	// Create a wait group for the HTTP server and control loop routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Control loops routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := orch.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("Orchestrator error: %v", err)
		}
		log.Print("control loop routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		apiServer := api.NewServer(actuator, orch, database, *statusUnits)
		mux := apiServer.ServeMux()
		if database != nil {
			if err := database.AttachAdminRoutes(mux); err != nil {
				log.Printf("Failed to attach admin routes: %v", err)
			}
		}

		server := &http.Server{
			Addr:    cfg.GetHTTPAddr(),
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", cfg.GetHTTPAddr())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		apiServer.CloseClients()

		// Create a shutdown context with a shorter timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()

	if recorder != nil {
		recorder.Close()
		if err := database.EndSession(sessionID); err != nil {
			log.Printf("Failed to end session: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
}

// handleMigrate runs the schema migration verbs against the session store.
func handleMigrate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: sentry migrate <up|down|version|force> [flags]")
		os.Exit(1)
	}
	verb := args[0]

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", "sentry.db", "SQLite session store path")
	dir := fs.String("migrations", "migrations", "Directory holding schema migration files")
	forceVersion := fs.Int("force-version", -1, "Schema version to pin with the force verb")
	fs.Parse(args[1:])

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer database.Close()

	switch verb {
	case "up":
		if err := database.MigrateUp(*dir); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Print("Migrations applied")
	case "down":
		if err := database.MigrateDown(*dir); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Print("Rolled back one migration")
	case "version":
		v, dirty, err := database.MigrateVersion(*dir)
		if err != nil {
			log.Fatalf("Failed to read schema version: %v", err)
		}
		fmt.Printf("version=%d dirty=%v\n", v, dirty)
	case "force":
		if *forceVersion < 0 {
			log.Fatal("force requires -force-version")
		}
		if err := database.MigrateForce(*dir, *forceVersion); err != nil {
			log.Fatalf("Force failed: %v", err)
		}
		log.Printf("Schema version pinned to %d", *forceVersion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate command: %s\n", verb)
		os.Exit(1)
	}
}
