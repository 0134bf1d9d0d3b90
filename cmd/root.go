// Package cmd contains the rampart CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"grimm.is/rampart/internal/brand"
	"grimm.is/rampart/internal/cache"
	"grimm.is/rampart/internal/client"
	"grimm.is/rampart/internal/config"
	"grimm.is/rampart/internal/events"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/logging"
	"grimm.is/rampart/internal/metrics"
	"grimm.is/rampart/internal/resource"
	"grimm.is/rampart/internal/session"
	"grimm.is/rampart/internal/state"
)

// Printer localizes CLI output.
var Printer = i18n.NewCLIPrinter()

var (
	cfgFile   string
	serverURL string
	timeout   time.Duration
	debug     bool
	lang      string
	output    string

	cfg    *config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   brand.BinaryName,
	Short: brand.Description,
	Long: brand.Name + ` is the operator console for the WAF management API.

Sign in once with "` + brand.BinaryName + ` login"; the session token is kept in the
state directory and reused by every other command until it expires or the
server rejects it.

Example usage:
  ` + brand.BinaryName + ` login -u alice
  ` + brand.BinaryName + ` sites list --search shop
  ` + brand.BinaryName + ` rules update 42 --status disabled
  ` + brand.BinaryName + ` logs --since 1h
  ` + brand.BinaryName + ` console`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", brand.DefaultConfigPath(), "config file")
	pf.StringVar(&serverURL, "server", "", "management API base URL (overrides config)")
	pf.DurationVar(&timeout, "timeout", 0, "per-request timeout (overrides config)")
	pf.BoolVar(&debug, "debug", false, "debug logging")
	pf.StringVar(&lang, "lang", "", "message language (en, zh)")
	pf.StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")

	rootCmd.AddCommand(
		loginCmd, logoutCmd, whoamiCmd, passwdCmd,
		newResourceCmd(sitesCommand),
		newResourceCmd(rulesCommand),
		newResourceCmd(certificatesCommand),
		logsCmd, dashboardCmd, monitorCmd,
		consoleCmd, devServerCmd, configCmd,
		versionCmd,
	)
}

// initConfig loads the config file and applies flag overrides.
func initConfig(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if timeout > 0 {
		cfg.Server.Timeout = timeout.String()
	}
	if err := checkFormat(output); err != nil {
		return err
	}
	if lang != "" {
		cfg.Console.Language = lang
	}
	if cfg.Console.Language != "" {
		Printer = i18n.ForLanguage(cfg.Console.Language)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if debug {
		level = logging.LevelDebug
	}
	logger = logging.New(logging.Config{Level: level, JSON: cfg.Log.JSON, Output: cmd.ErrOrStderr()})
	logging.SetDefault(logger)

	logger.Debug("configuration loaded", "server", cfg.Server.URL, "storage", cfg.Session.Storage)
	return nil
}

// app is the wired core a command runs against.
type app struct {
	cfg      *config.Config
	store    *session.Store
	api      *client.HTTPClient
	cache    *cache.Cache
	hub      *events.Hub
	metrics  *metrics.Registry
	closeAll []func() error
}

// newApp opens session storage, restores the persisted token and builds
// the request pipeline. log overrides the command logger (the console logs
// to a file).
func newApp(ctx context.Context, log *logging.Logger) (*app, error) {
	if log == nil {
		log = logger
	}
	a := &app{cfg: cfg, hub: events.NewHub(), metrics: metrics.Get()}

	storage, err := a.openStorage()
	if err != nil {
		return nil, err
	}

	a.store = session.New(storage,
		session.WithLogger(log.WithComponent("session")),
		session.WithHub(a.hub),
		session.WithMetrics(a.metrics),
	)
	if err := a.store.Hydrate(ctx); err != nil {
		log.Warn("could not restore session", "error", err)
	}

	opts := []client.ClientOption{
		client.WithTimeout(cfg.Timeout()),
		client.WithLogger(log.WithComponent("client")),
		client.WithMetrics(a.metrics),
		client.WithPrinter(Printer),
		client.WithUserAgent(brand.UserAgent(brand.Version)),
	}
	if cfg.Server.Insecure {
		opts = append(opts, client.WithInsecureTLS())
	}
	if cfg.Server.Fingerprint != "" {
		opts = append(opts, client.WithFingerprint(cfg.Server.Fingerprint))
	}
	a.api = client.NewHTTPClient(cfg.Server.URL, a.store, opts...)

	a.cache = cache.New(cache.Options{
		StaleTime: cfg.StaleTime(),
		GCTime:    cfg.GCTime(),
		Logger:    log.WithComponent("cache"),
		Metrics:   a.metrics,
		Hub:       a.hub,
	})
	return a, nil
}

func (a *app) openStorage() (session.Storage, error) {
	switch a.cfg.Session.Storage {
	case config.StorageMemory:
		return session.NewMemoryStorage(), nil
	case config.StorageSQLite:
		db, err := state.NewSQLiteStore(state.DefaultOptions(a.cfg.SessionPath()))
		if err != nil {
			return nil, fmt.Errorf("opening session database: %w", err)
		}
		a.closeAll = append(a.closeAll, db.Close)
		return state.NewSessionStorage(db), nil
	default:
		return session.NewFileStorage(a.cfg.SessionPath()), nil
	}
}

// Close releases storage handles.
func (a *app) Close() error {
	var errs []error
	for _, fn := range a.closeAll {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}

// deps are the resource controller dependencies.
func (a *app) deps() resource.Deps {
	return resource.Deps{API: a.api, Cache: a.cache, Printer: Printer, Hub: a.hub, Logger: logger.WithComponent("resource")}
}

// errNotLoggedIn is returned by commands that need a session.
var errNotLoggedIn = fmt.Errorf("not signed in, run %q first", brand.BinaryName+" login")

// requireSession returns the app when a token is held.
func requireSession(ctx context.Context) (*app, error) {
	a, err := newApp(ctx, nil)
	if err != nil {
		return nil, err
	}
	if !a.store.Snapshot().IsAuthenticated() {
		a.Close()
		return nil, errNotLoggedIn
	}
	return a, nil
}

// explain turns a pipeline error into a one-line message. An auth failure
// has already cleared the stored session.
func explain(err error) error {
	if err == nil {
		return nil
	}
	if client.IsAuth(err) {
		return fmt.Errorf("%s", Printer.Sprintf(i18n.ErrAuth))
	}
	var e *client.Error
	if errors.As(err, &e) {
		if e.RequestID != "" {
			logger.Debug("request failed", "request_id", e.RequestID, "status", e.Status)
		}
		return fmt.Errorf("%s", e.Message)
	}
	return err
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s, built %s)\n", brand.Name, brand.Version, brand.GitCommit, brand.BuildTime)
	},
}

// out is the command's stdout.
func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
