package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yegors/tracon-sim/internal/api"
	"github.com/yegors/tracon-sim/internal/config"
	"github.com/yegors/tracon-sim/internal/recording"
	"github.com/yegors/tracon-sim/internal/refdata"
	"github.com/yegors/tracon-sim/internal/scenario"
	"github.com/yegors/tracon-sim/internal/simulation"
	"github.com/yegors/tracon-sim/internal/storage/sqlite"
	"github.com/yegors/tracon-sim/internal/websocket"
	"github.com/yegors/tracon-sim/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Logger())
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting TRACON simulator",
		logger.String("version", Version),
		logger.String("config_path", configPath),
	)

	// Reference data
	perfTable, err := refdata.LoadPerformance(cfg.Data.PerformancePath)
	if err != nil {
		return fmt.Errorf("loading performance table: %w", err)
	}
	airport, warnings, err := refdata.LoadAirport(cfg.Data.AirportPath)
	if err != nil {
		return fmt.Errorf("loading airport: %w", err)
	}
	for _, w := range warnings {
		log.Warn("Airport data warning", logger.Error(w))
	}
	wind, err := cfg.Wind()
	if err != nil {
		return err
	}
	log.Info("Loaded reference data",
		logger.String("airport", airport.ICAO),
		logger.Int("warnings", len(warnings)),
	)

	engine, err := simulation.NewEngine(cfg.Engine(), simulation.World{
		Airport:     airport,
		Performance: perfTable,
		Wind:        wind,
	}, log)
	if err != nil {
		return fmt.Errorf("creating simulation: %w", err)
	}

	// Sinks receive frames in the order they are added
	wsServer := websocket.NewServer(websocket.Config{SnapshotEvery: cfg.Server.SnapshotEvery}, log)
	wsServer.SetCommander(engine)
	engine.AddSink(wsServer)

	var history api.History
	var store *sqlite.Store
	if cfg.Storage.Enabled {
		store, err = sqlite.Open(cfg.Storage.SQLitePath, log)
		if err != nil {
			return fmt.Errorf("opening session store: %w", err)
		}
		defer store.Close()
		history = store
	}

	started := time.Now()
	sessionName := airport.ICAO
	var sc *scenario.Scenario
	if cfg.Data.ScenarioPath != "" {
		sc, err = scenario.Load(cfg.Data.ScenarioPath)
		if err != nil {
			return err
		}
		sessionName = sc.Name
		log.Info("Loaded scenario", logger.String("name", sc.Name), logger.Int("spawns", len(sc.Spawns)))
	}

	if store != nil {
		sessionLog, err := store.StartSession(sessionName, airport.ICAO, started)
		if err != nil {
			return fmt.Errorf("starting session log: %w", err)
		}
		engine.AddSink(sessionLog)
		log.Info("Recording session history", logger.Int64("session_id", sessionLog.ID()))
	}

	if cfg.Recording.Enabled {
		recorder, err := recording.Create(recording.Config{
			Path:          recording.FileName(cfg.Recording.Dir, started),
			SnapshotEvery: cfg.Recording.SnapshotEvery,
			Level:         cfg.Recording.Level,
		}, log)
		if err != nil {
			return fmt.Errorf("creating recorder: %w", err)
		}
		defer func() {
			if err := recorder.Close(); err != nil && !errors.Is(err, recording.ErrClosed) {
				log.Error("Failed to close recording", logger.Error(err))
			}
		}()
		engine.AddSink(recorder)
	}

	if sc != nil {
		engine.AddSink(scenario.NewRunner(sc, engine, log))
	}

	var static http.Handler
	if cfg.Server.StaticFilesDir != "" {
		static, err = api.NewStaticFileHandler(cfg.Server.StaticFilesDir, log)
		if err != nil {
			return fmt.Errorf("creating static handler: %w", err)
		}
	}
	router := api.NewRouter(api.NewHandler(engine, history, log), wsServer.HandleConnection, static, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The engine and the hub get their own contexts so the final frame is
	// delivered before either stops.
	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error { return wsServer.Run(hubCtx) })
	g.Go(func() error {
		err := engine.Run(engineCtx)
		stopHub()
		return err
	})
	g.Go(func() error {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", logger.Error(err))
		}

		if m, err := engine.End(); err == nil {
			log.Info("Final score",
				logger.Float64("score", m.Score),
				logger.String("grade", m.Grade),
				logger.Int("violations", m.Violations),
			)
		}
		stopEngine()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server fully stopped", logger.Int64("dropped_frames", engine.Dropped()))
	return nil
}
