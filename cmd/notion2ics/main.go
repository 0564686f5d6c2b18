package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/serverwentdown/notion2ics"
	"github.com/serverwentdown/notion2ics/internal/config"
	"github.com/serverwentdown/notion2ics/internal/history"
	"github.com/serverwentdown/notion2ics/internal/metrics"
	"github.com/serverwentdown/notion2ics/internal/scheduler"
)

func main() {
	app := &cli.App{
		Name:                 "notion2ics",
		Usage:                "generate iCal calendars from Notion databases",
		EnableBashCompletion: true,
		Suggest:              true,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    "config",
				Aliases: []string{"c"},
				EnvVars: []string{"NOTION2ICS_CONFIG"},
				Usage:   "read settings from this YAML file; flags take precedence",
			},
			&cli.StringFlag{
				Name:    "api-key",
				Aliases: []string{"k"},
				EnvVars: []string{"NOTION_API_KEY"},
				Usage:   "read events from the API using this API key",
			},
			&cli.StringSliceFlag{
				Name:    "database",
				Aliases: []string{"d"},
				EnvVars: []string{"NOTION_DATABASE_ID"},
				Usage:   "read events from this database ID (repeatable)",
			},
			&cli.PathFlag{
				Name:    "output-path",
				Aliases: []string{"o"},
				EnvVars: []string{"NOTION2ICS_OUTPUT_PATH"},
				Usage:   "directory to place the resulting <database>.ics files in",
			},
			&cli.StringFlag{
				Name:    "refresh",
				Aliases: []string{"r"},
				EnvVars: []string{"NOTION2ICS_REFRESH"},
				Usage:   "refresh interval (e.g. 15m) or cron expression",
			},
			&cli.StringFlag{
				Name:    "date-property",
				EnvVars: []string{"NOTION_DATE_PROPERTY"},
				Usage:   "use this date property for the event date instead of looking for the first date property",
			},
			&cli.StringFlag{
				Name:    "hide-property",
				EnvVars: []string{"NOTION_HIDE_PROPERTY"},
				Usage:   "hide events that have this checkbox property set",
			},
			&cli.PathFlag{
				Name:    "export",
				Aliases: []string{"e"},
				Usage:   "read events from this export ZIP file instead of the API",
			},
			&cli.StringFlag{
				Name:    "export-timezone",
				Aliases: []string{"z"},
				Usage:   "timezone to interpret dates in the export",
			},
			&cli.DurationFlag{
				Name:  "fetch-timeout",
				Usage: "timeout for each request to Notion",
			},
			&cli.StringFlag{
				Name:    "metrics-listen",
				EnvVars: []string{"NOTION2ICS_METRICS_LISTEN"},
				Usage:   "serve Prometheus metrics on this host and port",
			},
			&cli.PathFlag{
				Name:    "state-db",
				EnvVars: []string{"NOTION2ICS_STATE_DB"},
				Usage:   "record every sync in this SQLite database",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"NOTION2ICS_LOG_LEVEL"},
				Usage:   "one of debug, info, warn, error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "regenerate the calendars on every refresh until interrupted",
				Action: runAction,
			},
			{
				Name:   "save",
				Usage:  "regenerate the calendars once and exit",
				Action: saveAction,
			},
			{
				Name:  "history",
				Usage: "show recent syncs recorded in the state database",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "number of syncs to show",
						Value:   20,
					},
				},
				Action: historyAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func configFromFlags(ctx *cli.Context) (config.Config, error) {
	cfg, err := config.Load(ctx.Path("config"))
	if err != nil {
		return config.Config{}, err
	}

	if ctx.IsSet("api-key") {
		cfg.APIKey = ctx.String("api-key")
	}
	if ctx.IsSet("database") {
		cfg.Databases = ctx.StringSlice("database")
	}
	if ctx.IsSet("output-path") {
		cfg.OutputPath = ctx.Path("output-path")
	}
	if ctx.IsSet("refresh") {
		cfg.Refresh = ctx.String("refresh")
	}
	if ctx.IsSet("date-property") {
		cfg.DateProperty = ctx.String("date-property")
	}
	if ctx.IsSet("hide-property") {
		cfg.HideProperty = ctx.String("hide-property")
	}
	if ctx.IsSet("export") {
		cfg.Export = ctx.Path("export")
	}
	if ctx.IsSet("export-timezone") {
		cfg.ExportTimezone = ctx.String("export-timezone")
	}
	if ctx.IsSet("fetch-timeout") {
		cfg.FetchTimeout = ctx.Duration("fetch-timeout")
	}
	if ctx.IsSet("metrics-listen") {
		cfg.MetricsListen = ctx.String("metrics-listen")
	}
	if ctx.IsSet("state-db") {
		cfg.StateDB = ctx.Path("state-db")
	}
	if ctx.IsSet("log-level") {
		cfg.LogLevel = ctx.String("log-level")
	}

	if err := cfg.Validate(); err != nil {
		if showErr := cli.ShowAppHelp(ctx); showErr != nil {
			log.Fatal(showErr)
		}
		return config.Config{}, err
	}

	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	zapConfig.EncoderConfig.TimeKey = "time"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapConfig.Build()
}

// app holds everything built from the configuration.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	pipeline  *notion2ics.Pipeline
	databases []string
	metrics   *metrics.Metrics
	closers   []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func newApp(ctx *cli.Context) (*app, error) {
	cfg, err := configFromFlags(ctx)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	schedule, err := scheduler.Parse(cfg.Refresh)
	if err != nil {
		return nil, err
	}

	a.pipeline = &notion2ics.Pipeline{
		OutputDir:       cfg.OutputPath,
		DateProperty:    cfg.DateProperty,
		FetchTimeout:    cfg.FetchTimeout,
		RefreshInterval: scheduler.Interval(schedule, time.Now()),
		Logger:          logger,
	}

	if err := a.openSource(ctx.Context); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.StateDB != "" {
		store, err := history.Open(cfg.StateDB, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.pipeline.Reporters = append(a.pipeline.Reporters, store)
	}

	if cfg.MetricsListen != "" {
		a.metrics = metrics.New(cfg.MetricsListen)
		a.pipeline.Reporters = append(a.pipeline.Reporters, a.metrics)
	}

	logger.Info("effective config",
		zap.Strings("databases", a.databases),
		zap.String("output_path", cfg.OutputPath),
		zap.String("refresh", cfg.Refresh),
		zap.Bool("export", cfg.Export != ""),
		zap.String("date_property", cfg.DateProperty),
		zap.String("hide_property", cfg.HideProperty),
		zap.String("metrics_listen", cfg.MetricsListen),
		zap.String("state_db", cfg.StateDB),
	)

	return a, nil
}

func (a *app) openSource(ctx context.Context) error {
	cfg := a.cfg

	if cfg.Export != "" {
		archive, err := os.Open(cfg.Export)
		if err != nil {
			return fmt.Errorf("error opening archive: %w", err)
		}
		a.closers = append(a.closers, archive.Close)

		zone, err := time.LoadLocation(cfg.ExportTimezone)
		if err != nil {
			return fmt.Errorf("error loading timezone: %w", err)
		}

		source, err := notion2ics.NewSourceExport(notion2ics.ConfigSourceExport{
			Archive:      archive,
			Zone:         zone,
			DateProperty: cfg.DateProperty,
		})
		if err != nil {
			return err
		}

		a.pipeline.Store = source
		a.databases = cfg.Databases
		if len(a.databases) == 0 {
			a.databases = source.Databases()
		}
		return nil
	}

	source := notion2ics.NewSourceAPI(notion2ics.ConfigSourceAPI{
		APIKey:       cfg.APIKey,
		HideProperty: cfg.HideProperty,
		HTTPClient:   &http.Client{Timeout: cfg.FetchTimeout},
		Logger:       a.logger,
	})
	a.pipeline.Store = source
	a.databases = cfg.Databases

	// A misconfigured database is reported but does not stop the others.
	for _, id := range a.databases {
		checkCtx, cancel := withTimeout(ctx, cfg.FetchTimeout)
		title, err := source.CheckDatabase(checkCtx, id, cfg.DateProperty)
		cancel()
		if err != nil {
			a.logger.Warn("database check failed", zap.String("database", id), zap.Error(err))
			continue
		}
		a.logger.Info("found database", zap.String("database", id), zap.String("title", title))
	}

	return nil
}

// withTimeout applies d unless it is zero, which means no timeout.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func runAction(ctx *cli.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.metrics != nil {
		go func() {
			if err := a.metrics.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.metrics.Shutdown(shutdownCtx)
		}()
	}

	s, err := scheduler.New(a.cfg.Refresh, a.logger)
	if err != nil {
		return err
	}

	err = s.Run(runCtx, func(ctx context.Context) {
		if err := a.pipeline.RunCycle(ctx, a.databases); err != nil {
			a.logger.Warn("cycle finished with errors", zap.Error(err))
		}
	})
	if errors.Is(err, context.Canceled) {
		a.logger.Info("shutting down")
		return nil
	}
	return err
}

func saveAction(ctx *cli.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.pipeline.RunCycle(ctx.Context, a.databases)
}

func historyAction(ctx *cli.Context) error {
	path := ctx.Path("state-db")
	if path == "" {
		cfg, err := config.Load(ctx.Path("config"))
		if err != nil {
			return err
		}
		path = cfg.StateDB
	}
	if path == "" {
		return errors.New("state-db is not configured")
	}

	store, err := history.Open(path, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	var database string
	if databases := ctx.StringSlice("database"); len(databases) == 1 {
		database = databases[0]
	}

	runs, err := store.Recent(ctx.Context, database, ctx.Int("limit"))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tDATABASE\tDURATION\tRECORDS\tEVENTS\tDROPPED\tRELATION FAILURES\tERROR")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			run.StartedAt.Format(time.DateTime),
			run.DatabaseID,
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
			run.Records,
			run.Events,
			run.Dropped,
			run.RelationFailures,
			run.Error,
		)
	}
	return w.Flush()
}
