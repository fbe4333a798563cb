package main

import (
	"database/sql"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/dataway-dev/dataway/internal/adapter"
	"github.com/dataway-dev/dataway/internal/adapter/rest"
	"github.com/dataway-dev/dataway/internal/adapter/sqlitedb"
	"github.com/dataway-dev/dataway/internal/adapter/wamp"
	"github.com/dataway-dev/dataway/internal/auth"
	"github.com/dataway-dev/dataway/internal/bus"
	"github.com/dataway-dev/dataway/internal/config"
	"github.com/dataway-dev/dataway/internal/credstore"
	"github.com/dataway-dev/dataway/internal/db"
	"github.com/dataway-dev/dataway/internal/dispatcher"
	"github.com/dataway-dev/dataway/internal/logging"
	"github.com/dataway-dev/dataway/internal/routes"
)

// restartExitCode signals the supervisor to restart the client with a
// clean session state.
const restartExitCode = 3

// stack is the assembled data layer: configuration, route table, active
// adapter, dispatcher, and authentication machine, wired once at start.
type stack struct {
	cfg      *config.Config
	table    *routes.Table
	notifier *bus.Bus
	active   adapter.Adapter
	disp     *dispatcher.Dispatcher
	machine  *auth.Machine
	database *sql.DB
}

// buildStack loads the profile and route table and assembles the
// components by explicit construction.
func buildStack(logger *zap.Logger) (*stack, error) {
	cfg, err := config.Load(rootFlags.profile, config.LocalHost(), logger.Named("config"))
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	routesPath := cfg.RoutesPath
	if rootFlags.routes != "" {
		routesPath = rootFlags.routes
	}
	table, err := routes.LoadFile(routesPath)
	if err != nil {
		return nil, fmt.Errorf("load route table: %w", err)
	}

	notifier := bus.New(logger.Named("bus"))

	s := &stack{cfg: cfg, table: table, notifier: notifier}

	switch cfg.Data.Protocol {
	case config.ProtocolWAMP:
		s.active = wamp.New(wamp.Config{
			URL:        cfg.Servers.WAMP.URL,
			Realm:      cfg.Servers.WAMP.Realm,
			RetryMax:   cfg.Data.RetryMax,
			RetryDelay: cfg.Data.RetryDelay(),
		}, notifier, logger.Named("wamp"))
	case config.ProtocolREST:
		s.active = rest.New(cfg.Servers.REST.URL, logger.Named("rest"))
	case config.ProtocolSQLite:
		var database *sql.DB
		if cfg.Database.Name != "" {
			database, err = db.OpenSeeded(cfg.Database.Name, cfg.Database.CreateFromLocation)
			if err != nil {
				return nil, fmt.Errorf("open database: %w", err)
			}
		}
		s.database = database
		s.active = sqlitedb.New(database, logger.Named("sqlite"))
	}

	s.disp = dispatcher.New(table, cfg.Data.Protocol, s.active, logger.Named("dispatcher"))

	store, err := credstore.NewFileStore(getEnv("DATAWAY_CRED_DIR", ".dataway"))
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	s.machine = auth.New(auth.Options{
		Config:      cfg.Auth,
		Invoker:     s.disp,
		Store:       store,
		Notifier:    notifier,
		Reconfigure: s.active.Configure,
		Restart: func() {
			logging.Sync(logger)
			os.Exit(restartExitCode)
		},
		Logger: logger.Named("auth"),
	})

	return s, nil
}

func (s *stack) close() {
	s.machine.Close()
	_ = s.active.Close()
	if s.database != nil {
		_ = s.database.Close()
	}
	s.notifier.Shutdown()
}
