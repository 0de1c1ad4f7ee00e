package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"

	"github.com/shiimaxx/logs-insights-newrelic-metrics/internal/app"
	"github.com/shiimaxx/logs-insights-newrelic-metrics/internal/metrics"
	appConfig "github.com/shiimaxx/logs-insights-newrelic-metrics/pkg/config"
	"github.com/shiimaxx/logs-insights-newrelic-metrics/pkg/models"
)

const defaultSchedule = "0 5 * * * *"

// appVersion should be populated at build time using ldflags
var appVersion = "undefined"

var (
	envFile = cli.StringFlag{
		Name:  "env-file",
		Usage: "Load environment variables from this dotenv `file` before reading the configuration.",
	}
	queriesFile = cli.StringFlag{
		Name:  "queries",
		Usage: "Query list `file`: an invocation event (.json) or [[QueryMetric]] tables (.toml).",
	}
	schedule = cli.StringFlag{
		Name:  "cron",
		Usage: "Cron `spec` with a seconds field used by the schedule command.",
		Value: defaultSchedule,
	}
)

func main() {
	cliApp := cli.NewApp()
	cliApp.Name = "insights-metrics"
	cliApp.Version = fmt.Sprintf("%s/%s/%s-%s", appVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	cliApp.Usage = "Publish CloudWatch Logs Insights query results to New Relic as gauge metrics"
	cliApp.Flags = []cli.Flag{envFile}
	cliApp.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "Run a single invocation over the previous full hour and print the result",
			Flags:  []cli.Flag{queriesFile},
			Action: runOnce,
		},
		{
			Name:   "schedule",
			Usage:  "Run an invocation on a cron schedule until interrupted",
			Flags:  []cli.Flag{queriesFile, schedule},
			Action: runScheduled,
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("insights-metrics failed")
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*metrics.Processor, *models.InvocationEvent, error) {
	if path := c.GlobalString(envFile.Name); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, nil, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg, err := appConfig.Load()
	if err != nil {
		return nil, nil, err
	}
	app.ConfigureLogging(cfg, os.Stderr)

	path := c.String(queriesFile.Name)
	if path == "" {
		return nil, nil, fmt.Errorf("--%s is required", queriesFile.Name)
	}
	event, err := appConfig.LoadQueryFile(path)
	if err != nil {
		return nil, nil, err
	}

	clients, err := app.LoadClients(context.Background(), cfg)
	if err != nil {
		return nil, nil, err
	}

	return app.NewProcessor(cfg, clients), event, nil
}

func runOnce(c *cli.Context) error {
	processor, event, err := setup(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := invoke(ctx, processor, *event)
	if err := writeResult(os.Stdout, result); err != nil {
		return err
	}

	if result.OverallStatus != http.StatusOK {
		return fmt.Errorf("invocation finished with status %d", result.OverallStatus)
	}
	return nil
}

func runScheduled(c *cli.Context) error {
	processor, event, err := setup(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec := c.String(schedule.Name)
	scheduler, err := newScheduler(spec, func() {
		result := invoke(ctx, processor, *event)
		if err := writeResult(os.Stdout, result); err != nil {
			log.Error().Err(err).Msg("Failed to write invocation result")
		}
	})
	if err != nil {
		return err
	}

	log.Info().Str("schedule", spec).Msg("Starting cron scheduler")
	scheduler.Start()

	<-ctx.Done()

	log.Info().Msg("Stopping cron scheduler...")
	<-scheduler.Stop().Done()
	return nil
}

// newScheduler runs job on spec. A run that is still going when the next one
// is due makes that next run skip, so one window is never published twice
// concurrently.
func newScheduler(spec string, job func()) (*cron.Cron, error) {
	logger := cronLogger{logger: log.With().Str("component", "cron").Logger()}
	scheduler := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := scheduler.AddFunc(spec, job); err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return scheduler, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

func invoke(ctx context.Context, processor *metrics.Processor, event models.InvocationEvent) models.InvocationResult {
	invocationID := uuid.NewString()
	logger := log.With().Str("request_id", invocationID).Logger()
	return processor.HandleEvent(logger.WithContext(ctx), invocationID, event)
}

func writeResult(w io.Writer, result models.InvocationResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
