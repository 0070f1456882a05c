package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/pagemirror/internal/config"
	"github.com/agentworkforce/pagemirror/internal/engine"
	"github.com/agentworkforce/pagemirror/internal/metadoc"
	"github.com/agentworkforce/pagemirror/internal/notify"
	"github.com/agentworkforce/pagemirror/internal/remote"
	"github.com/agentworkforce/pagemirror/internal/storage"
	"github.com/agentworkforce/pagemirror/internal/watchfs"
)

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the tree and reconcile changes with the remote store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd)
		},
	}
}

func runWatch(cmd *cobra.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if strings.HasPrefix(cfg.Root, "memory://") {
		return errors.New("watch needs a directory root, not a memory workspace")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, err := storage.Open(cfg.Root)
	if err != nil {
		return err
	}
	docs, err := metadoc.NewStore(ws, cfg.DataDir)
	if err != nil {
		return err
	}
	bus := notify.NewBroadcaster()

	eng, err := engine.NewEngine(engine.Options{
		Workspace: ws,
		Remote:    remote.NewHTTPClient(cfg.RemoteURL, cfg.RemoteToken, nil),
		Docs:      docs,
		Broadcast: bus,
		Confirmer: engine.NewPolicyConfirmer(cfg.GatePolicy, cfg.AssumeYes, logger),
		Layout:    layoutFromConfig(cfg),
		Windows:   windowsFromConfig(cfg),

		GateThreshold: cfg.GateThreshold,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	report, err := eng.Scan(ctx)
	if err != nil {
		return err
	}
	logger.Info().
		Int("entities", report.Entities).
		Int("trashed", report.Trashed).
		Int("bare", report.Bare).
		Int("docs", report.Docs).
		Msg("initial scan done")

	watcher, err := watchfs.New(cfg.Root, logger)
	if err != nil {
		return err
	}
	defer watcher.Close()
	go watcher.Run()

	var srv *http.Server
	if cfg.Listen != "" {
		srv = &http.Server{
			Addr:              cfg.Listen,
			Handler:           notify.NewServer(bus, notify.ServerConfig{}, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.Listen).Msg("notification server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("notification server failed")
			}
		}()
	}

	logger.Info().Str("root", cfg.Root).Msg("watching")
	runErr := eng.Run(ctx, watcher.Events())

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("notification server shutdown")
		}
	}
	logger.Info().Msg("stopped")
	return runErr
}

func layoutFromConfig(cfg *config.Config) engine.Layout {
	return engine.Layout{
		Collections: cfg.Collections,
		TrashDir:    cfg.TrashDir,
		DataDir:     cfg.DataDir,
		ContentExt:  cfg.ContentExt,
	}
}

func windowsFromConfig(cfg *config.Config) engine.Windows {
	return engine.Windows{
		Pending:          cfg.PendingWindow,
		DelayedRestore:   cfg.DelayedRestoreWindow,
		PromotionSettle:  cfg.PromotionSettle,
		ContentSettle:    cfg.ContentSettle,
		FolderCooldown:   cfg.FolderCooldown,
		MetadataCooldown: cfg.MetadataCooldown,
		ContentCooldown:  cfg.ContentCooldown,
		TombstoneTTL:     cfg.TombstoneTTL,
		Gate:             cfg.GateWindow,
	}
}
