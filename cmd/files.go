package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/core"
	"github.com/ebogdum/cloudbox/internal/pathutil"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a remote folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := pathutil.Delimiter
		if len(args) == 1 {
			target = args[0]
		}
		return withApp(true, func(ctx context.Context, a *app) error {
			return listFolder(ctx, a.storage, target)
		})
	},
}

func listFolder(ctx context.Context, storage *core.CloudStorage, target string) error {
	folder, err := storage.GetFolder(ctx, target)
	if err != nil {
		return err
	}
	if folder == nil {
		return backends.NewError(backends.CodeFileNotFound, "folder not found: "+target, nil)
	}

	children, err := folder.Children(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, child := range children {
		kind, size := "-", fmt.Sprintf("%d", child.Length())
		name := child.Name()
		if child.IsDirectory() {
			kind, size, name = "d", "", info(name+pathutil.Delimiter)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", kind, size, faint(child.Modified().Format("2006-01-02 15:04")), name)
	}
	return w.Flush()
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a remote folder and any missing parents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(ctx context.Context, a *app) error {
			folder, err := a.storage.CreateFolderPath(ctx, args[0])
			if err != nil {
				return err
			}
			if folder == nil {
				return backends.NewError(backends.CodeInvalidFileOrDirectoryName, "path must start with "+pathutil.Delimiter, nil)
			}
			printSuccess("Created %s", folder.Path())
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete a remote file or folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(ctx context.Context, a *app) error {
			return reportPathOp(a.storage.DeletePath(ctx, args[0]))("Deleted %s", args[0])
		})
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <path> <folder>",
	Short: "Move a remote entry into another folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(ctx context.Context, a *app) error {
			return reportPathOp(a.storage.MovePath(ctx, args[0], args[1]))("Moved %s to %s", args[0], args[1])
		})
	},
}

var cpCmd = &cobra.Command{
	Use:   "cp <path> <folder>",
	Short: "Copy a remote entry into another folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(ctx context.Context, a *app) error {
			return reportPathOp(a.storage.CopyPath(ctx, args[0], args[1]))("Copied %s to %s", args[0], args[1])
		})
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <path> <name>",
	Short: "Rename a remote entry in place",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(ctx context.Context, a *app) error {
			return reportPathOp(a.storage.RenamePath(ctx, args[0], args[1]))("Renamed %s to %s", args[0], args[1])
		})
	},
}

// reportPathOp turns the result of a path operation into a printer
func reportPathOp(ok bool, err error) func(format string, a ...any) error {
	return func(format string, a ...any) error {
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("provider refused the operation")
		}
		printSuccess(format, a...)
		return nil
	}
}

var uploadName string

var uploadCmd = &cobra.Command{
	Use:   "upload <local file> <remote folder>",
	Short: "Upload a local file into a remote folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(ctx context.Context, a *app) error {
			stat, err := os.Stat(args[0])
			if err != nil {
				return err
			}

			progress, finish := progressBar(a.cfg.Transfer.Progress, os.Stderr, stat.Size(), "uploading")
			file, err := a.storage.UploadFileToPath(ctx, args[0], args[1], uploadName, progress)
			finish()
			if err != nil {
				return err
			}
			printSuccess("Uploaded %s (%d bytes)", file.Path(), file.Length())
			return nil
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <remote file> [local dir]",
	Short: "Download a remote file into a local directory",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetDir := "."
		if len(args) == 2 {
			targetDir = args[1]
		}
		return withApp(true, func(ctx context.Context, a *app) error {
			file, err := a.storage.GetFile(ctx, args[0], nil)
			if err != nil {
				return err
			}

			progress, finish := progressBar(a.cfg.Transfer.Progress, os.Stderr, file.Length(), "downloading")
			_, err = a.storage.DownloadFileFromPath(ctx, args[0], targetDir, progress)
			finish()
			if err != nil {
				return err
			}
			printSuccess("Downloaded %s to %s", file.Path(), filepath.Join(os.ExpandEnv(targetDir), file.Name()))
			return nil
		})
	},
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadName, "name", "n", "", "Remote file name (defaults to the local name)")
}
