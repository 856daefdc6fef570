// Package servecmder provides the serve command for running the spool
// index API server.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/spool/api"
	"github.com/papercomputeco/spool/pkg/annotate"
	annotatelocal "github.com/papercomputeco/spool/pkg/annotate/local"
	"github.com/papercomputeco/spool/pkg/backend/fsdir"
	cacheinmemory "github.com/papercomputeco/spool/pkg/cache/inmemory"
	cachepostgres "github.com/papercomputeco/spool/pkg/cache/postgres"
	cachesqlite "github.com/papercomputeco/spool/pkg/cache/sqlite"
	"github.com/papercomputeco/spool/pkg/catalog"
	"github.com/papercomputeco/spool/pkg/config"
	"github.com/papercomputeco/spool/pkg/dotdir"
	"github.com/papercomputeco/spool/pkg/eventstream"
	eventstreamkafka "github.com/papercomputeco/spool/pkg/eventstream/kafka"
	eventstreamnop "github.com/papercomputeco/spool/pkg/eventstream/nop"
	"github.com/papercomputeco/spool/pkg/logger"
	"github.com/papercomputeco/spool/pkg/service"
)

const serveLongDesc string = `Run the spool index API server.

Lists and hydrates conversation logs from the configured backend and serves
snapshots, siblings, and trie layouts over HTTP.

Examples:
  spool serve --subject alice
  spool serve --root ./logs --listen :8081
  spool serve --cache postgres --postgres-dsn postgres://localhost/spool`

const serveShortDesc string = "Run the spool index API server"

// serveFlags is the flag registry for the serve command. Flag names,
// shorthands, and viper keys live here so they cannot drift from the
// config file's dotted keys.
var serveFlags = config.FlagSet{
	config.FlagAPIListen: {
		Name: "listen", Shorthand: "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
	config.FlagBackendRoot: {
		Name: "root", Shorthand: "r",
		ViperKey:    "backend.root",
		Description: "Backend root directory holding per-subject log dirs",
	},
	config.FlagCacheProvider: {
		Name:        "cache",
		ViperKey:    "cache.provider",
		Description: "Hydration cache provider (sqlite, postgres, memory, none)",
	},
	config.FlagSQLite: {
		Name: "sqlite", Shorthand: "s",
		ViperKey:    "cache.sqlite_path",
		Description: "Path to the SQLite cache database (default: .spool/spool.sqlite)",
	},
	config.FlagPostgresDSN: {
		Name:        "postgres-dsn",
		ViperKey:    "cache.postgres_dsn",
		Description: "Postgres DSN for the hydration cache",
	},
	config.FlagBatchSize: {
		Name:        "batch-size",
		ViperKey:    "hydration.batch_size",
		Description: "Number of logs hydrated per scheduler batch",
	},
	config.FlagEventProvider: {
		Name:        "eventstream",
		ViperKey:    "eventstream.provider",
		Description: "Hydration event stream provider (kafka, none)",
	},
	config.FlagEventTopic: {
		Name:        "topic",
		ViperKey:    "eventstream.topic",
		Description: "Topic hydration progress events are published to",
	},
}

var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagBackendRoot,
	config.FlagCacheProvider,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagBatchSize,
	config.FlagEventProvider,
	config.FlagEventTopic,
}

type serveCommander struct {
	debug     bool
	configDir string

	listen        string
	backendRoot   string
	cacheProvider string
	sqlitePath    string
	postgresDSN   string
	batchSize     int
	eventProvider string
	eventTopic    string

	eventBrokers    []string
	annotateEnabled bool

	subject string
	watch   bool
	logFile string

	logger *slog.Logger
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %w", err)
			}

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)
			cmder.applyViper(v)

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagBackendRoot, &cmder.backendRoot)
	config.AddStringFlag(cmd, serveFlags, config.FlagCacheProvider, &cmder.cacheProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddIntFlag(cmd, serveFlags, config.FlagBatchSize, &cmder.batchSize)
	config.AddStringFlag(cmd, serveFlags, config.FlagEventProvider, &cmder.eventProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagEventTopic, &cmder.eventTopic)

	cmd.Flags().StringVar(&cmder.subject, "subject", "", "Subject to index on startup")
	cmd.Flags().BoolVarP(&cmder.watch, "watch", "w", false, "Watch the backend and refresh on changes")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

// applyViper reads the effective values out of the bound viper instance so
// the precedence chain (flag > env > config file > default) applies.
func (c *serveCommander) applyViper(v *viper.Viper) {
	c.listen = v.GetString("api.listen")
	c.backendRoot = v.GetString("backend.root")
	c.cacheProvider = v.GetString("cache.provider")
	c.sqlitePath = v.GetString("cache.sqlite_path")
	c.postgresDSN = v.GetString("cache.postgres_dsn")
	c.batchSize = v.GetInt("hydration.batch_size")
	c.eventProvider = v.GetString("eventstream.provider")
	c.eventTopic = v.GetString("eventstream.topic")
	c.eventBrokers = v.GetStringSlice("eventstream.brokers")
	c.annotateEnabled = v.GetBool("annotate.enabled")
}

func (c *serveCommander) run(ctx context.Context) error {
	c.logger = logger.New(logger.WithDebug(c.debug))
	if c.logFile != "" {
		f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		c.logger = logger.Multi(
			c.logger,
			logger.New(logger.WithDebug(c.debug), logger.WithJSON(true), logger.WithWriter(f)),
		)
	}

	port := fsdir.NewPort(c.backendRoot)

	cache, closeCache, err := c.newCache(ctx)
	if err != nil {
		return err
	}
	if closeCache != nil {
		defer closeCache()
	}

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	svcOpts := []service.Option{
		service.WithLogger(c.logger),
		service.WithPublisher(publisher),
		service.WithAnnotator(c.newAnnotator()),
	}
	if cache != nil {
		svcOpts = append(svcOpts, service.WithCache(cache))
	}
	if c.batchSize > 0 {
		svcOpts = append(svcOpts, service.WithBatchSize(c.batchSize))
	}

	svc := service.New(port, svcOpts...)
	defer func() { _ = svc.Dispose() }()

	if c.subject != "" {
		if err := svc.Refresh(ctx, c.subject); err != nil {
			return fmt.Errorf("initial refresh: %w", err)
		}
	}

	apiServer := api.NewServer(api.Config{ListenAddr: c.listen}, svc, c.logger)
	defer func() { _ = apiServer.Shutdown() }()

	errChan := make(chan error, 2)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	if c.watch && c.subject != "" {
		if err := c.watchBackend(watchCtx, port, svc); err != nil {
			return err
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return nil
	}
}

// watchBackend re-refreshes the subject whenever the backend directory
// changes. A refresh that loses the in-flight race is retried on the next
// pulse, so drops are harmless.
func (c *serveCommander) watchBackend(ctx context.Context, port *fsdir.Port, svc *service.Service) error {
	pulses, err := port.Watch(ctx, c.subject, 250*time.Millisecond)
	if err != nil {
		return fmt.Errorf("watching backend: %w", err)
	}

	go func() {
		for range pulses {
			err := svc.Refresh(ctx, c.subject)
			switch {
			case err == nil:
				c.logger.Debug("backend change reconciled", "subject", c.subject)
			case errors.Is(err, service.ErrRefreshInFlight):
			default:
				c.logger.Warn("watch refresh failed", "subject", c.subject, "error", err)
			}
		}
	}()

	c.logger.Info("watching backend", "subject", c.subject, "root", c.backendRoot)
	return nil
}

func (c *serveCommander) newCache(ctx context.Context) (catalog.Cache, func(), error) {
	switch c.cacheProvider {
	case "sqlite":
		path := c.sqlitePath
		if path == "" {
			dir, err := dotdir.NewManager().Target(c.configDir)
			if err != nil {
				return nil, nil, fmt.Errorf("resolving cache dir: %w", err)
			}
			path = filepath.Join(dir, "spool.sqlite")
		}
		driver, err := cachesqlite.NewDriver(path)
		if err != nil {
			return nil, nil, fmt.Errorf("creating SQLite cache: %w", err)
		}
		c.logger.Info("using SQLite cache", "path", path)
		return driver, func() { _ = driver.Close() }, nil

	case "postgres":
		driver, err := cachepostgres.NewDriver(ctx, c.postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("creating Postgres cache: %w", err)
		}
		c.logger.Info("using Postgres cache")
		return driver, func() { _ = driver.Close() }, nil

	case "memory":
		c.logger.Info("using in-memory cache")
		return cacheinmemory.NewDriver(), nil, nil

	case "none", "":
		return nil, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache provider: %q", c.cacheProvider)
	}
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	switch c.eventProvider {
	case "kafka":
		brokers := c.eventBrokers
		if len(brokers) == 0 {
			brokers = []string{"localhost:9092"}
		}
		c.logger.Info("publishing hydration events to Kafka", "topic", c.eventTopic)
		return eventstreamkafka.NewPublisher(eventstreamkafka.Config{
			Brokers: brokers,
			Topic:   c.eventTopic,
		}), nil

	case "none", "":
		return eventstreamnop.NewPublisher(), nil

	default:
		return nil, fmt.Errorf("unknown eventstream provider: %q", c.eventProvider)
	}
}

func (c *serveCommander) newAnnotator() annotate.Source {
	if !c.annotateEnabled {
		return nil
	}
	return annotatelocal.NewSource(annotatelocal.Config{Enabled: true})
}
