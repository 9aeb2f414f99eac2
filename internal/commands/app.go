package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/smsledger/smsledger/internal/config"
	"github.com/smsledger/smsledger/internal/display"
	"github.com/smsledger/smsledger/internal/extractor"
	"github.com/smsledger/smsledger/internal/ledger"
	applog "github.com/smsledger/smsledger/internal/log"
	"github.com/smsledger/smsledger/internal/store"
)

// app is the per-invocation state shared by subcommands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

// loadApp reads .env and the config file, applies environment and flag
// overrides, and builds the logger. Relative paths in the config are
// resolved against the config file's directory.
func loadApp(opts *rootOptions, out io.Writer) (*app, error) {
	path := opts.configPath
	explicit := path != ""
	if !explicit {
		path = config.DefaultFile
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	baseDir := filepath.Dir(absPath)

	if err := godotenv.Load(filepath.Join(baseDir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load(absPath)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, os.ErrNotExist):
		cfg = config.Default()
	default:
		return nil, err
	}

	cfg.ApplyEnv()
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.DataDir = resolvePath(baseDir, cfg.DataDir)
	if cfg.Store.Path != "" {
		cfg.Store.Path = resolvePath(baseDir, cfg.Store.Path)
	}

	logger, err := applog.New(cfg.Log.Level, applog.Format(cfg.Log.Format))
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, out: out}, nil
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func (a *app) extractor() *extractor.Extractor {
	return extractor.New(extractor.WithSenders(a.cfg.Banks.Senders...))
}

func (a *app) format(b ledger.Balance) string {
	return display.Format(b, a.cfg.Display.Currency)
}

// openLedger loads the persisted balance and returns a ledger persisting
// back to the same store. With notify set, every change is printed. The
// returned func waits for pending writes and closes the store.
func (a *app) openLedger(ctx context.Context, notify bool) (*ledger.Ledger, func(), error) {
	st, err := store.Open(ctx, a.cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	initial, err := st.Load(ctx)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("loading balance: %w", err)
	}

	opts := []ledger.Option{
		ledger.WithPersister(st),
		ledger.WithLogger(a.logger),
		ledger.WithDispatchTimeout(a.cfg.Pipeline.DispatchTimeout),
	}
	var n *display.Notifier
	if notify {
		n = display.NewNotifier(a.out, a.cfg.Display.Currency)
		opts = append(opts, ledger.WithNotifier(n))
	}
	l := ledger.New(initial, opts...)
	if n != nil {
		n.Attach(l)
	}

	closeFn := func() {
		l.Wait()
		if err := st.Close(); err != nil {
			a.logger.Warn("closing store failed", zap.Error(err))
		}
		_ = a.logger.Sync()
	}
	return l, closeFn, nil
}
