package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/backends"
	clog "github.com/ebogdum/cloudbox/core/log"
	"github.com/ebogdum/cloudbox/metrics"
	"github.com/ebogdum/cloudbox/transfer"
)

// ErrTransferAborted is returned with the entry when a progress callback or
// the context stopped a transfer. Data written before the stop is kept.
var ErrTransferAborted = errors.New("transfer aborted")

// FileTransferEvent reports the progress of an upload or download.
type FileTransferEvent struct {
	Entry        backends.FileSystemEntry
	CurrentBytes int64
	// TotalBytes is transfer.Unknown when neither the stream nor the entry
	// knows the length.
	TotalBytes          int64
	PercentageProgress  int
	TransferRateTotal   int64
	TransferRateCurrent int64
	// OpenTransferTime is the estimated time left
	OpenTransferTime time.Duration
}

// FileProgressFunc receives transfer progress and may abort the transfer.
type FileProgressFunc func(ev FileTransferEvent) transfer.Action

// UploadFile uploads the local file at localPath into target. An empty
// targetName keeps the local base name.
func (s *CloudStorage) UploadFile(ctx context.Context, localPath string, target *backends.DirectoryEntry, targetName string, progress FileProgressFunc) (*backends.FileEntry, error) {
	if localPath == "" || target == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "local path and target folder are required", nil)
	}
	if targetName == "" {
		targetName = filepath.Base(localPath)
	}

	info, err := os.Stat(localPath)
	if err != nil || !info.Mode().IsRegular() {
		return nil, backends.NewError(backends.CodeFileNotFound, "no local file at "+localPath, err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local file: %w", err)
	}
	defer src.Close()

	return s.UploadStream(ctx, src, targetName, target, progress)
}

// UploadFileToPath uploads localPath into the remote folder targetDir
func (s *CloudStorage) UploadFileToPath(ctx context.Context, localPath, targetDir, targetName string, progress FileProgressFunc) (*backends.FileEntry, error) {
	if localPath == "" || targetDir == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "local path and target folder are required", nil)
	}

	target, err := s.GetFolder(ctx, targetDir)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, backends.NewError(backends.CodeFileNotFound, "target folder not found: "+targetDir, nil)
	}
	return s.UploadFile(ctx, localPath, target, targetName, progress)
}

// UploadStream creates targetName in target and fills it from r
func (s *CloudStorage) UploadStream(ctx context.Context, r io.Reader, targetName string, target *backends.DirectoryEntry, progress FileProgressFunc) (*backends.FileEntry, error) {
	if r == nil || targetName == "" || target == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "source, target name and target folder are required", nil)
	}

	file, err := s.CreateFile(ctx, target, targetName)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, backends.NewError(backends.CodeFileNotFound, "failed to create "+targetName, nil)
	}

	w, err := s.provider.OpenWrite(ctx, file)
	if err != nil {
		return nil, backends.Wrap(err, "failed to open "+file.Path()+" for writing")
	}

	transferErr := s.runTransfer(ctx, "upload", file, transfer.Unknown, r, w, progress)
	if err := w.Close(); err != nil && transferErr == nil {
		transferErr = backends.Wrap(err, "failed to commit "+file.Path())
	}
	if transferErr != nil && !errors.Is(transferErr, ErrTransferAborted) {
		return nil, transferErr
	}

	// Re-stat so the returned entry carries the uploaded length
	if fresh, err := s.provider.GetFileSystemObject(ctx, file.Path(), nil); err == nil {
		if f, ok := fresh.(*backends.FileEntry); ok {
			file = f
		}
	}
	return file, transferErr
}

// DownloadFile writes the file name from parent into targetDir, which may
// contain environment variables. An existing local file is truncated.
func (s *CloudStorage) DownloadFile(ctx context.Context, parent *backends.DirectoryEntry, name, targetDir string, progress FileProgressFunc) (*backends.FileEntry, error) {
	if parent == nil || name == "" || targetDir == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "parent, name and target directory are required", nil)
	}
	targetDir = os.ExpandEnv(targetDir)

	file, err := s.lookupFile(ctx, name, parent)
	if err != nil {
		return nil, err
	}

	out, err := os.Create(filepath.Join(targetDir, file.Name()))
	if err != nil {
		return nil, fmt.Errorf("failed to create local file: %w", err)
	}

	transferErr := s.download(ctx, file, out, progress)
	if err := out.Close(); err != nil && transferErr == nil {
		transferErr = fmt.Errorf("failed to close local file: %w", err)
	}
	if transferErr != nil && !errors.Is(transferErr, ErrTransferAborted) {
		return nil, transferErr
	}
	return file, transferErr
}

// DownloadFileFromPath downloads the remote file at remotePath into targetDir
func (s *CloudStorage) DownloadFileFromPath(ctx context.Context, remotePath, targetDir string, progress FileProgressFunc) (*backends.FileEntry, error) {
	if remotePath == "" || targetDir == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "remote path and target directory are required", nil)
	}

	dir, leaf := splitPath(remotePath)
	container, err := s.GetFolder(ctx, dir)
	if err != nil {
		return nil, err
	}
	if container == nil {
		return nil, backends.NewError(backends.CodeFileNotFound, "folder not found: "+dir, nil)
	}
	return s.DownloadFile(ctx, container, leaf, targetDir, progress)
}

// DownloadStream copies the file name from parent into w
func (s *CloudStorage) DownloadStream(ctx context.Context, name string, parent *backends.DirectoryEntry, w io.Writer, progress FileProgressFunc) (*backends.FileEntry, error) {
	if parent == nil || name == "" || w == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "name, parent and target stream are required", nil)
	}

	file, err := s.lookupFile(ctx, name, parent)
	if err != nil {
		return nil, err
	}
	if err := s.download(ctx, file, w, progress); err != nil {
		if errors.Is(err, ErrTransferAborted) {
			return file, err
		}
		return nil, err
	}
	return file, nil
}

func (s *CloudStorage) lookupFile(ctx context.Context, name string, parent *backends.DirectoryEntry) (*backends.FileEntry, error) {
	file, err := s.GetFile(ctx, name, parent)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, backends.NewError(backends.CodeFileNotFound, "file not found: "+name, nil)
	}
	return file, nil
}

func (s *CloudStorage) download(ctx context.Context, file *backends.FileEntry, w io.Writer, progress FileProgressFunc) error {
	r, err := s.provider.OpenRead(ctx, file)
	if err != nil {
		return backends.Wrap(err, "failed to open "+file.Path()+" for reading")
	}
	defer r.Close()

	return s.runTransfer(ctx, "download", file, file.Length(), r, w, progress)
}

// runTransfer drives the copy and translates its progress into
// FileTransferEvents. fallbackLength stands in for an unknown stream length.
func (s *CloudStorage) runTransfer(ctx context.Context, direction string, entry backends.FileSystemEntry, fallbackLength int64, src io.Reader, dst io.Writer, progress FileProgressFunc) error {
	start := time.Now()

	onProgress := func(ev transfer.ProgressEvent) transfer.Action {
		if ctx.Err() != nil {
			return transfer.Abort
		}
		if progress == nil {
			return transfer.Continue
		}

		total := ev.TotalLength
		if total < 0 {
			total = fallbackLength
		}
		return progress(FileTransferEvent{
			Entry:               entry,
			CurrentBytes:        ev.ReadBytesTotal,
			TotalBytes:          total,
			PercentageProgress:  transfer.Percentage(ev.ReadBytesTotal, total),
			TransferRateTotal:   ev.TransferRateTotal,
			TransferRateCurrent: ev.TransferRateCurrent,
			OpenTransferTime:    transfer.RemainingTime(ev.ReadBytesTotal, total, ev.TransferRateTotal),
		})
	}

	result, err := transfer.Copy(src, dst, 0, onProgress)

	metrics.TransferBytesTotal.WithLabelValues(direction).Add(float64(result.BytesTransferred))
	metrics.TransfersTotal.WithLabelValues(direction, result.Code.String()).Inc()
	metrics.TransferDuration.WithLabelValues(direction).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("transfer", direction).Inc()
		return backends.NewError(backends.CodeProviderFailure,
			fmt.Sprintf("failed to %s %s", direction, entry.Path()), err)
	}

	if result.Code == transfer.ResultAborted {
		s.logger.Info("Transfer aborted",
			zap.String("direction", direction),
			clog.Path("path", entry.Path()),
			zap.Int64("bytes", result.BytesTransferred))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ErrTransferAborted, ctxErr)
		}
		return ErrTransferAborted
	}

	s.logger.Info("Transfer completed",
		zap.String("direction", direction),
		clog.Path("path", entry.Path()),
		zap.Int64("bytes", result.BytesTransferred),
		zap.Duration("duration", time.Since(start)))
	return nil
}
