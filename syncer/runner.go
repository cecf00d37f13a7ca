// Package syncer brings a local directory and a remote folder in line by
// copying whatever is missing on either side.
package syncer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/core"
	cblog "github.com/ebogdum/cloudbox/core/log"
	"github.com/ebogdum/cloudbox/dirdiff"
	"github.com/ebogdum/cloudbox/internal/pathutil"
	"github.com/ebogdum/cloudbox/locks"
)

// LockKeyPrefix prefixes the lock key of every remote folder under sync
const LockKeyPrefix = "sync:"

// Options describes one sync run
type Options struct {
	LocalRoot  string
	RemoteRoot string
	Recursive  bool
	// SkipUpload leaves files that exist only locally alone
	SkipUpload bool
	// SkipDownload leaves files that exist only remotely alone
	SkipDownload bool
	Progress     core.FileProgressFunc
}

// Report lists what a run changed. Paths are relative to both roots.
type Report struct {
	Uploaded   []string
	Downloaded []string
	Skipped    []string
	Identical  int
	Duration   time.Duration
}

// Runner applies directory diffs through a storage session
type Runner struct {
	storage *core.CloudStorage
	locks   locks.Manager
	logger  *zap.Logger
}

// NewRunner creates a runner. Without a lock manager runs are serialized
// in process only.
func NewRunner(storage *core.CloudStorage, lockManager locks.Manager, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lockManager == nil {
		lockManager = locks.NewLocalManager(0)
	}
	return &Runner{storage: storage, locks: lockManager, logger: logger}
}

// Run diffs the two roots and copies missing files in both directions. It
// returns locks.ErrLockHeld when another run owns the remote folder.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.LocalRoot == "" || !pathutil.IsRooted(opts.RemoteRoot) {
		return nil, backends.NewError(backends.CodeInvalidParameters, "local root and rooted remote root are required", nil)
	}
	if !r.storage.IsOpened() {
		return nil, backends.NewError(backends.CodeOpenedConnectionNeeded, "sync needs an open session", nil)
	}

	var report *Report
	err := locks.WithLock(ctx, r.locks, LockKeyPrefix+pathutil.Normalize(opts.RemoteRoot), r.logger, func(ctx context.Context) error {
		var err error
		report, err = r.run(ctx, opts)
		return err
	})
	return report, err
}

func (r *Runner) run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()

	if err := os.MkdirAll(opts.LocalRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create local root: %w", err)
	}
	remote, err := r.storage.CreateFolderPath(ctx, opts.RemoteRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote root: %w", err)
	}
	if remote == nil {
		return nil, backends.NewError(backends.CodeFileNotFound, "remote root not available: "+opts.RemoteRoot, nil)
	}

	items, err := dirdiff.Compare(ctx, opts.LocalRoot, remote, opts.Recursive)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		switch item.Kind {
		case dirdiff.Identical:
			report.Identical++
		case dirdiff.MissingInRemoteFolder:
			if opts.SkipUpload {
				report.Skipped = append(report.Skipped, item.Path)
				continue
			}
			if err := r.upload(ctx, opts, item); err != nil {
				return report, err
			}
			report.Uploaded = append(report.Uploaded, item.Path)
		case dirdiff.MissingInLocalFolder:
			if opts.SkipDownload {
				report.Skipped = append(report.Skipped, item.Path)
				continue
			}
			if err := r.download(ctx, opts, item); err != nil {
				return report, err
			}
			report.Downloaded = append(report.Downloaded, item.Path)
		}
	}

	report.Duration = time.Since(start)
	r.logger.Info("Sync completed",
		zap.String("local_root", opts.LocalRoot),
		cblog.Path("remote_root", opts.RemoteRoot),
		zap.Int("uploaded", len(report.Uploaded)),
		zap.Int("downloaded", len(report.Downloaded)),
		zap.Int("identical", report.Identical),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (r *Runner) upload(ctx context.Context, opts Options, item dirdiff.ResultItem) error {
	remoteDir := pathutil.Normalize(opts.RemoteRoot)
	if dir := path.Dir(item.Path); dir != "." {
		remoteDir = pathutil.Combine(remoteDir, dir)
	}

	parent, err := r.storage.CreateFolderPath(ctx, remoteDir)
	if err != nil {
		return fmt.Errorf("failed to create remote folder %s: %w", remoteDir, err)
	}
	if parent == nil {
		return backends.NewError(backends.CodeCreateOperationFailed, "remote folder not created: "+remoteDir, nil)
	}

	if _, err := r.storage.UploadFile(ctx, item.Local.FullPath, parent, "", opts.Progress); err != nil {
		return fmt.Errorf("failed to upload %s: %w", item.Path, err)
	}
	r.logger.Debug("File uploaded", cblog.Path("path", item.Path))
	return nil
}

func (r *Runner) download(ctx context.Context, opts Options, item dirdiff.ResultItem) error {
	localDir := filepath.Join(opts.LocalRoot, filepath.FromSlash(path.Dir(item.Path)))
	if err := os.MkdirAll(localDir, 0755); err != nil {
		return fmt.Errorf("failed to create local directory %s: %w", localDir, err)
	}

	if _, err := r.storage.DownloadFileFromPath(ctx, item.Remote.Path(), localDir, opts.Progress); err != nil {
		return fmt.Errorf("failed to download %s: %w", item.Path, err)
	}
	r.logger.Debug("File downloaded", cblog.Path("path", item.Path))
	return nil
}
