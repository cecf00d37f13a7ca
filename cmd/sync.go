package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/locks"
	"github.com/ebogdum/cloudbox/syncer"
)

var (
	syncWatch        bool
	syncSkipUpload   bool
	syncSkipDownload bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [local dir] [remote folder]",
	Short: "Copy files missing on either side between a local directory and a remote folder",
	Long: `Copy files that exist only locally to the remote folder and files that
exist only remotely to the local directory. Files present on both sides are
left alone. Without arguments the sync section of the configuration is used.`,
	Args: cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(ctx context.Context, a *app) error {
			opts := syncer.Options{
				LocalRoot:    a.cfg.Sync.LocalRoot,
				RemoteRoot:   a.cfg.Sync.RemoteRoot,
				Recursive:    a.cfg.Sync.Recursive,
				SkipUpload:   syncSkipUpload,
				SkipDownload: syncSkipDownload,
			}
			if len(args) > 0 {
				opts.LocalRoot = args[0]
			}
			if len(args) > 1 {
				opts.RemoteRoot = args[1]
			}

			lockManager, err := openLockManager(a.cfg.Locks, a.logger)
			if err != nil {
				return err
			}
			defer lockManager.Close()

			runner := syncer.NewRunner(a.storage, lockManager, a.logger)
			if syncWatch {
				return runner.Watch(ctx, opts, a.cfg.Sync.WatchDebounce, printReport)
			}

			report, err := runner.Run(ctx, opts)
			printReport(report, err)
			if errors.Is(err, locks.ErrLockHeld) {
				a.logger.Warn("Another sync owns the remote folder", zap.String("remote_root", opts.RemoteRoot))
			}
			return err
		})
	},
}

func printReport(report *syncer.Report, err error) {
	if err != nil {
		printFailure("Sync failed: %v", err)
		return
	}
	for _, p := range report.Uploaded {
		printSuccess("uploaded %s", p)
	}
	for _, p := range report.Downloaded {
		printSuccess("downloaded %s", p)
	}
	for _, p := range report.Skipped {
		printSuccess("%s %s", warning("skipped"), p)
	}
	printSuccess("%d uploaded, %d downloaded, %d identical in %s",
		len(report.Uploaded), len(report.Downloaded), report.Identical, report.Duration.Round(time.Millisecond))
}

func init() {
	syncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false, "Keep running and sync again after local changes")
	syncCmd.Flags().BoolVar(&syncSkipUpload, "no-upload", false, "Do not upload files that exist only locally")
	syncCmd.Flags().BoolVar(&syncSkipDownload, "no-download", false, "Do not download files that exist only remotely")
}
