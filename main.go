package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"pedestrian_staging/api"
	"pedestrian_staging/config"
	"pedestrian_staging/database"
	"pedestrian_staging/logger"
	"pedestrian_staging/models"
	"pedestrian_staging/pipeline"
	"pedestrian_staging/store"
)

func main() {
	command := "run"
	if len(os.Args) >= 2 {
		command = os.Args[1]
	}

	cfg := loadConfig()

	// Initialize logging only for commands that need it
	if needsLogging(command) {
		if err := logger.Init(cfg.Logging); err != nil {
			log.Fatalf("Failed to initialize logging: %v", err)
		}
		defer func() {
			if err := logger.Close(); err != nil {
				log.Printf("Failed to close logging: %v", err)
			}
		}()
		logger.LogCommand(os.Args[0], os.Args)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "run":
		err = runCommand(ctx, cfg)
	case "connect":
		err = connectCommand(ctx, cfg)
	case "db:info":
		err = dbInfoCommand(ctx, cfg)
	case "runs:status":
		err = runsStatusCommand(ctx, cfg)
	case "query":
		if len(os.Args) < 3 {
			fmt.Println("Error: SQL statement required")
			fmt.Println("Usage: pedestrian_staging query \"SELECT ...\"")
			os.Exit(2)
		}
		err = queryCommand(ctx, cfg, os.Args[2])
	case "serve":
		err = serveCommand(ctx, cfg)
	case "help", "-h", "--help":
		showHelp()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		showHelp()
		os.Exit(2)
	}

	if err != nil {
		logger.Errorf("%s failed: %v\n", command, err)
		stop()
		logger.Close()
		os.Exit(1)
	}
}

// needsLogging determines which commands need logging
func needsLogging(command string) bool {
	loggingCommands := map[string]bool{
		"run":         true,
		"connect":     true,
		"runs:status": true,
		"serve":       true,
	}
	return loggingCommands[command]
}

func showHelp() {
	fmt.Println("Pedestrian Staging - Melbourne pedestrian counting pipeline")
	fmt.Println("")
	fmt.Println("Usage: pedestrian_staging [command] [arguments]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  run                  Load, stage and compute all statistics (default)")
	fmt.Println("  connect              Test database connection")
	fmt.Println("  db:info              Show database information and staged tables")
	fmt.Println("  runs:status          Show the most recent pipeline runs")
	fmt.Println("  query <sql>          Run a read-only query against the staging store")
	fmt.Println("  serve                Serve the statistics tables over HTTP")
	fmt.Println("  help                 Show this help message")
	fmt.Println("")
	fmt.Println("Configuration:")
	fmt.Println("  Edit config.yaml (or set CONFIG_PATH); ${VAR} placeholders are read from the environment and .env")
}

func loadConfig() *config.Config {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

// withApp starts the application graph, populates targets and runs fn
func withApp(ctx context.Context, cfg *config.Config, fn func() error, targets ...interface{}) error {
	app := fx.New(append(ApplicationOptions(cfg), fx.Populate(targets...))...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warnf("Shutdown incomplete: %v\n", err)
	}
	return runErr
}

func runCommand(ctx context.Context, cfg *config.Config) error {
	var p *pipeline.Pipeline
	return withApp(ctx, cfg, func() error {
		run, err := p.Run(ctx)
		if run != nil {
			logger.Printf("Run %s finished with status %s in %v\n", run.RunID, run.Status, run.Duration().Round(time.Millisecond))
		}
		return err
	}, &p)
}

func connectCommand(ctx context.Context, cfg *config.Config) error {
	logger.Println("Testing database connection...")

	var db *gorm.DB
	return withApp(ctx, cfg, func() error {
		logger.Printf("✓ Successfully connected to %s database\n", cfg.Database.Driver)

		info := database.GetDatabaseInfo(db, cfg)
		infoJSON, _ := json.MarshalIndent(info, "", "  ")
		logger.Printf("Connection info: %s\n", infoJSON)
		return nil
	}, &db)
}

func dbInfoCommand(ctx context.Context, cfg *config.Config) error {
	fmt.Println("Database Information:")
	fmt.Println(strings.Repeat("=", 50))

	var (
		db *gorm.DB
		st *store.Store
	)
	err := withApp(ctx, cfg, func() error {
		info := database.GetDatabaseInfo(db, cfg)

		fmt.Printf("Database Type:     %v\n", info["driver"])
		fmt.Printf("Connection Status: %v\n", getConnectionStatusText(info["connected"]))

		switch cfg.Database.Driver {
		case "mysql", "postgres":
			fmt.Printf("Host:              %v\n", info["host"])
			fmt.Printf("Port:              %v\n", info["port"])
			fmt.Printf("Database:          %v\n", info["database"])
		case "sqlite":
			fmt.Printf("File Path:         %v\n", info["path"])
			fmt.Printf("Engine:            %v\n", info["engine"])
		}

		fmt.Println("\nConnection Pool:")
		fmt.Printf("  Max Connections: %v\n", info["max_open_connections"])
		fmt.Printf("  Open Connections:%v\n", info["open_connections"])
		fmt.Printf("  In Use:          %v\n", info["in_use"])
		fmt.Printf("  Idle:            %v\n", info["idle"])

		fmt.Println("\nStaged Tables:")
		tables := append([]string{models.SensorTable, models.HourlyCountTable}, models.DerivedTables...)
		for _, table := range tables {
			exists, err := st.HasTable(ctx, table)
			if err != nil {
				return err
			}
			if !exists {
				fmt.Printf("  %-38s missing\n", table)
				continue
			}
			n, err := st.Count(ctx, table)
			if err != nil {
				return err
			}
			fmt.Printf("  %-38s %d rows\n", table, n)
		}
		return nil
	}, &db, &st)

	fmt.Println(strings.Repeat("=", 50))
	return err
}

func getConnectionStatusText(connected interface{}) string {
	if conn, ok := connected.(bool); ok && conn {
		return "✓ Connected"
	}
	return "✗ Disconnected"
}

func runsStatusCommand(ctx context.Context, cfg *config.Config) error {
	var ledger *database.RunLedger
	return withApp(ctx, cfg, func() error {
		runs, err := ledger.Recent(ctx, 10)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			logger.Println("No pipeline runs recorded")
			return nil
		}

		logger.Printf("%-36s %-10s %-19s %10s %8s %8s\n", "Run", "Status", "Started", "Duration", "Counts", "Derived")
		logger.LogDivider()
		for _, r := range runs {
			logger.Printf("%-36s %-10s %-19s %10v %8d %8d\n", r.RunID, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Duration().Round(time.Second), r.CountRows, r.DerivedRows)
			if r.Error != "" {
				logger.Printf("  error: %s\n", r.Error)
			}
		}
		return nil
	}, &ledger)
}

func queryCommand(ctx context.Context, cfg *config.Config, sql string) error {
	var st *store.Store
	return withApp(ctx, cfg, func() error {
		frame, err := st.Query(ctx, sql)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, strings.Join(frame.ColumnNames(), "\t"))
		for _, row := range frame.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				if v == nil {
					cells[i] = "NULL"
					continue
				}
				cells[i] = fmt.Sprint(v)
			}
			fmt.Fprintln(w, strings.Join(cells, "\t"))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("(%d rows)\n", frame.Len())
		return nil
	}, &st)
}

func serveCommand(ctx context.Context, cfg *config.Config) error {
	var (
		st     *store.Store
		ledger *database.RunLedger
	)
	return withApp(ctx, cfg, func() error {
		router := api.NewRouter(st, ledger)
		logger.Printf("Serving statistics on %s\n", cfg.Server.Addr)

		errCh := make(chan error, 1)
		go func() { errCh <- router.Run(cfg.Server.Addr) }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			logger.Println("Shutting down")
			return nil
		}
	}, &st, &ledger)
}
