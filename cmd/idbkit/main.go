package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"idbkit/internal/config"
	"idbkit/internal/console"
	"idbkit/internal/logging"
	"idbkit/pkg/idb"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dataDir := flag.String("dir", "", "database directory (overrides config)")
	dbName := flag.String("db", "default", "database name")
	version := flag.Int("version", 0, "schema version to open at (default: the stored version, or 1)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	metricsAddr := flag.String("metrics", "", "serve Prometheus metrics on this address (e.g. :9100)")
	list := flag.Bool("list", false, "list databases and exit")
	flag.Parse()

	// Load config (TOML file with defaults)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// CLI flags override config file values
	if *dataDir != "" {
		cfg.Storage.Dir = *dataDir
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	cfg.Storage.Dir = config.ExpandHome(cfg.Storage.Dir)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logging.InitWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	logger := logging.For("idbkit")

	factory := idb.NewFactory(cfg.Storage.Dir,
		idb.WithOpenTimeout(cfg.Storage.OpenTimeout),
		idb.WithNoSync(cfg.Storage.NoSync),
		idb.WithDefaultPageSize(cfg.Paging.DefaultSize),
		// The console prints failures itself.
		idb.WithErrorHandler(func(op string, err error) {
			logger.Debug("request failed", "op", op, "err", err)
		}),
	)

	if *list {
		names, err := factory.Databases()
		if err != nil {
			log.Fatalf("list: %v", err)
		}
		for _, name := range names {
			_, _ = os.Stdout.WriteString(name + "\n")
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openDatabase(ctx, factory, *dbName, *version)
	if err != nil {
		log.Fatalf("open %s: %v", *dbName, err)
	}
	session := console.NewSession(factory, db)
	defer func() {
		if err := session.Close(); err != nil {
			logger.Error("close failed", "err", err)
		}
	}()

	if *metricsAddr != "" {
		srv, err := serveMetrics(*metricsAddr, session)
		if err != nil {
			log.Fatalf("metrics: %v", err)
		}
		defer srv.Close()
		logger.Info("metrics listening", "addr", *metricsAddr)
	}

	reg := console.NewCommandRegistry()
	console.RegisterTableCommands(reg)
	reg.RegisterBuiltins()

	if term.IsTerminal(int(os.Stdin.Fd())) {
		err = runTerminal(ctx, session, reg)
	} else {
		err = session.RunLines(ctx, reg, os.Stdin, os.Stdout)
	}
	if err != nil && ctx.Err() == nil {
		logger.Error("console stopped", "err", err)
	}
}

// openDatabase opens name at version; version 0 means the stored version,
// or 1 for a new database.
func openDatabase(ctx context.Context, f *idb.Factory, name string, version int) (*idb.Database, error) {
	if version < 1 {
		stored, err := f.StoredVersion(name)
		if err != nil {
			return nil, err
		}
		version = max(stored, 1)
	}
	db := f.Database(name, version)
	if _, err := db.Open(ctx, nil).Wait(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func runTerminal(ctx context.Context, session *console.Session, reg *console.CommandRegistry) error {
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer func() { _ = term.Restore(fd, state) }()
	return session.RunTerminal(ctx, reg, stdio{os.Stdin, os.Stdout})
}

// stdio joins stdin and stdout into the io.ReadWriter a terminal needs.
type stdio struct {
	io.Reader
	io.Writer
}
