package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Othernet-Project/fsal/internal/config"
	"github.com/Othernet-Project/fsal/internal/fsalserver"
	"github.com/Othernet-Project/fsal/internal/indexer"
	"github.com/Othernet-Project/fsal/internal/logging"
	"github.com/Othernet-Project/fsal/internal/notify"
	"github.com/Othernet-Project/fsal/internal/scheduler"
	"github.com/Othernet-Project/fsal/internal/store"
)

var serverConfPath string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the daemon in the foreground",
	Long:  "Load the config file, build the index, and serve the wire protocol over fsal.socket until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(serverConfPath)
	},
}

func init() {
	serverCmd.Flags().StringVar(&serverConfPath, "conf", "", "path to the YAML config file")
	serverCmd.MarkFlagRequired("conf")
	rootCmd.AddCommand(serverCmd)
}

// runServer is the whole daemon lifecycle: load config, wire the store,
// scheduler, indexer, notification listener and socket server together,
// then block until SIGINT/SIGTERM.
func runServer(confPath string) error {
	cfg, err := config.Load(confPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Database.Name)
	if err != nil {
		return err
	}
	defer st.Close()

	sched := scheduler.New(32, logger.Logger)
	defer sched.Stop()

	bases := make([]indexer.BaseConfig, len(cfg.FSAL.BasePaths))
	for i, p := range cfg.FSAL.BasePaths {
		bases[i] = indexer.BaseConfig{
			Path:        p,
			BundlesDir:  cfg.Bundles.BundlesDir,
			BundlesExts: cfg.Bundles.BundlesExts,
		}
	}

	ix, err := indexer.New(bases, cfg.FSAL.Blacklist, st, sched, logger.Logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ix.Start(ctx); err != nil {
		return err
	}
	defer ix.Stop()

	if cfg.ONDD.Socket != "" {
		listener := notify.New(cfg.ONDD.Socket, ix.NotificationCallback(), 0, logger.Logger)
		go listener.Run(ctx)
	}

	srv := fsalserver.New(cfg.FSAL.Socket, ix, logger.Logger)
	logger.Printf("fsald: listening on %s", cfg.FSAL.Socket)
	return srv.Serve(ctx)
}
