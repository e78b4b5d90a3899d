package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/internal/notify"
	"github.com/scrypster/engram/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Watcher.Enabled {
		watcher := notify.NewInboxWatcher(a.cfg.Storage.DataPath, a.cfg.Watcher.DefaultOwner,
			func(ownerID, text, sourceID string) {
				if !a.engine.EnqueueIngest(engine.IngestRequest{
					OwnerID:    ownerID,
					Text:       text,
					SourceType: "file",
					SourceID:   sourceID,
				}) {
					a.log.Warnw("ingest queue full, dropping inbox note", "source_id", sourceID)
				}
			}, a.log)
		if err := watcher.Start(); err != nil {
			a.log.Warnw("inbox watcher failed to start", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.log.Infow("starting engram", "version", VersionString())
	srv := server.New(a.cfg, a.engine, VersionString(), a.log)
	return srv.Start(ctx)
}
