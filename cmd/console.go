package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"grimm.is/rampart/internal/brand"
	"grimm.is/rampart/internal/logging"
	"grimm.is/rampart/internal/tui"
)

var consolePage string

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start the interactive console",
	Long: `Start the full-screen console. Logs go to the file named by log.file, or
console.log in the state directory, because the console owns the terminal.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		level, _ := logging.ParseLevel(cfg.Log.Level)
		if debug {
			level = logging.LevelDebug
		}
		path := cfg.Log.File
		if path == "" {
			path = filepath.Join(brand.GetStateDir(), "console.log")
		}
		log, closeLog, err := logging.OpenFile(path, logging.Config{Level: level, JSON: cfg.Log.JSON})
		if err != nil {
			return err
		}
		defer closeLog()
		log = log.WithComponent("console")
		log.Info("starting console", "server", cfg.Server.URL, "version", brand.Version)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := newApp(ctx, log)
		if err != nil {
			return err
		}
		defer a.Close()
		go a.cache.RunGC(ctx, cfg.GCTime()/2)

		b := tui.NewBackend(ctx, a.store, a.api, a.cache, a.hub, Printer, log, cfg.PollInterval())
		return tui.Run(b, consolePage)
	},
}

func init() {
	consoleCmd.Flags().StringVar(&consolePage, "page", "", "page to open, e.g. /rules (default: dashboard)")
}
