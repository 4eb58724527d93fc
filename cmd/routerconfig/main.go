// Command routerconfig pushes one command batch to a list of network devices
// over interactive SSH and writes every session transcript to a report.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrej220/routerconfig/internal/lg"
	"github.com/andrej220/routerconfig/pkg/config"
	"github.com/andrej220/routerconfig/pkg/config/filestore"
	"github.com/andrej220/routerconfig/pkg/dispatcher"
	"github.com/andrej220/routerconfig/pkg/executor"
	"github.com/andrej220/routerconfig/pkg/factstore"
	"github.com/andrej220/routerconfig/pkg/inventory"
	"github.com/andrej220/routerconfig/pkg/report"
	"github.com/andrej220/routerconfig/pkg/resolver"
	"github.com/google/uuid"
	"github.com/namsral/flag"
)

const SERVICENAME = "routerconfig"

const replayIdle = 10 * time.Second

const (
	exitOK      = 0
	exitRun     = 1
	exitStartup = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitStartup
	}

	logger := lg.New(&lg.Config{ServiceName: SERVICENAME, Debug: opts.debug, Format: opts.logFormat})
	defer logger.Sync()

	cfg, err := loadConfig(opts)
	if err != nil {
		logger.Error("configuration failed", lg.Err(err))
		return exitStartup
	}
	if opts.replayRun != "" {
		return replay(opts.replayRun, cfg, logger)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration failed", lg.Err(err))
		return exitStartup
	}
	logger.Debug("effective configuration", lg.Any("config", cfg.Redacted()))

	if opts.saveConfig != "" {
		if err := filestore.New(opts.saveConfig).Save(cfg.Redacted()); err != nil {
			logger.Error("saving configuration failed", lg.String("path", opts.saveConfig), lg.Err(err))
			return exitStartup
		}
	}

	devices, err := inventory.LoadDevices(cfg.Devices)
	if err != nil {
		logger.Error("reading device list failed", lg.Err(err))
		return exitStartup
	}
	commands, err := inventory.LoadCommands(cfg.Commands)
	if err != nil {
		logger.Error("reading command batch failed", lg.Err(err))
		return exitStartup
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.New()
	logger = logger.With(lg.String("run_id", runID.String()))
	ctx = lg.Attach(ctx, logger)

	sink, err := openSinks(cfg, runID, logger)
	if err != nil {
		logger.Error("opening report failed", lg.Err(err))
		return exitStartup
	}

	facts, err := openFactStore(ctx, cfg)
	if err != nil {
		sink.Close()
		logger.Error("opening facts store failed", lg.Err(err))
		return exitStartup
	}
	if facts != nil {
		defer func() {
			if err := facts.Close(); err != nil {
				logger.Warn("closing facts store failed", lg.Err(err))
			}
		}()
	}

	res := resolver.New(resolver.PingProber{Command: cfg.ProbeCommand}, cfg.LegacyPrefix, cfg.LegacySuffix)
	dialer := executor.NewSSHDialer(cfg.Username, cfg.Password, cfg.Port, cfg.ConnectTimeout,
		executor.NewBreaker(cfg.BreakerThreshold))
	driver := executor.NewDriver(dialer, executor.Options{
		Attempts:       cfg.ConnectAttempts,
		PagingCommand:  cfg.PagingCommand,
		PacingDelay:    cfg.PacingDelay,
		CommandTimeout: cfg.CommandTimeout,
	})
	d := dispatcher.New(res, driver, sink, dispatcher.Options{
		Workers:       cfg.Workers,
		DeviceTimeout: cfg.DeviceTimeout,
		RunID:         runID,
		Facts:         facts,
	})

	summary, runErr := d.Dispatch(ctx, devices, commands)
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if m, ok := sink.(*report.MultiSink); ok && m.Err() != nil {
		logger.Warn("report mirror incomplete", lg.Err(m.Err()))
	}
	if runErr != nil {
		logger.Error("run did not complete", lg.Err(runErr),
			lg.String("report", cfg.Output), lg.Int("failed_writes", summary.FailedWrites))
		return exitRun
	}
	logger.Info("report written",
		lg.String("report", cfg.Output),
		lg.Int("devices", len(summary.Outcomes)),
		lg.Int("lines", summary.Lines))
	return exitOK
}

// loadConfig layers defaults, the config document and explicit flags.
func loadConfig(opts *cliOptions) (*config.RunConfig, error) {
	cfg := config.Default()

	storeType, err := config.ParseStoreType(opts.configStore)
	if err != nil {
		return nil, err
	}
	var storeCfg any
	switch storeType {
	case config.FileStore:
		storeCfg = &config.FileConfig{Path: opts.configPath}
	case config.MongoStore:
		uri := opts.overrides.Mongo.URI
		storeCfg = &config.MongoConfig{URI: uri, DBName: opts.overrides.Mongo.Database, CollName: opts.configColl, ID: opts.configID}
	}

	if storeType == config.MongoStore || opts.configPath != "" {
		store, err := config.NewStore(storeType, storeCfg)
		if err != nil {
			return nil, err
		}
		if c, ok := store.(io.Closer); ok {
			defer c.Close()
		}
		if err := store.Load(cfg); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	opts.apply(cfg)
	return cfg, nil
}

func openSinks(cfg *config.RunConfig, runID uuid.UUID, logger lg.Logger) (report.Sink, error) {
	file, err := report.NewFileSink(cfg.Output)
	if err != nil {
		return nil, err
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return file, nil
	}
	logger.Info("mirroring report to Kafka", lg.Any("brokers", cfg.Kafka.Brokers), lg.String("topic", cfg.Kafka.Topic))
	return report.NewMultiSink(file, logger, report.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, runID, logger)), nil
}

// openFactStore returns nil when fact collection is off.
func openFactStore(ctx context.Context, cfg *config.RunConfig) (factstore.Store, error) {
	switch factstore.Backend(cfg.Facts.Backend) {
	case factstore.BackendNone, "":
		return nil, nil
	case factstore.BackendJSON:
		return factstore.NewJSONStore(cfg.Facts.Path), nil
	case factstore.BackendSQLite:
		return factstore.NewSQLiteStore(cfg.Facts.Path)
	case factstore.BackendMongo:
		return factstore.NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
	default:
		return nil, fmt.Errorf("%w: %q", factstore.ErrInvalidBackend, cfg.Facts.Backend)
	}
}

// replay rebuilds a run's report from the lines its KafkaSink mirrored.
func replay(id string, cfg *config.RunConfig, logger lg.Logger) int {
	runID, err := uuid.Parse(id)
	if err != nil {
		logger.Error("invalid run id", lg.String("run_id", id), lg.Err(err))
		return exitStartup
	}
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
		logger.Error("replay needs kafka brokers and topic")
		return exitStartup
	}
	sink, err := report.NewFileSink(cfg.Output)
	if err != nil {
		logger.Error("opening report failed", lg.Err(err))
		return exitStartup
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger = logger.With(lg.String("run_id", runID.String()))
	ctx = lg.Attach(ctx, logger)

	mirror := report.NewMirrorReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, runID)
	defer mirror.Close()

	n, err := report.Replay(ctx, mirror, sink, replayIdle)
	if cerr := sink.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		logger.Error("replay failed", lg.Err(err), lg.Int("lines", n))
		return exitRun
	}
	logger.Info("report replayed", lg.String("report", cfg.Output), lg.Int("lines", n))
	return exitOK
}
