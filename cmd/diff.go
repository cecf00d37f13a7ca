package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/dirdiff"
)

var diffOpts dirdiff.Options

var diffCmd = &cobra.Command{
	Use:   "diff <local dir> <remote folder>",
	Short: "Compare a local directory with a remote folder by path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(ctx context.Context, a *app) error {
			remote, err := a.storage.GetFolder(ctx, args[1])
			if err != nil {
				return err
			}
			if remote == nil {
				return backends.NewError(backends.CodeFileNotFound, "folder not found: "+args[1], nil)
			}

			items, err := dirdiff.CompareWithOptions(ctx, args[0], remote, diffOpts)
			if err != nil {
				return err
			}
			printDiff(items)
			return nil
		})
	},
}

func printDiff(items []dirdiff.ResultItem) {
	for _, item := range items {
		switch item.Kind {
		case dirdiff.Identical:
			fmt.Printf("  %s\n", faint(item.Path))
		case dirdiff.MissingInRemoteFolder:
			fmt.Printf("%s %s\n", success("+"), item.Path)
		case dirdiff.MissingInLocalFolder:
			fmt.Printf("%s %s\n", warning("-"), item.Path)
		}
	}

	s := dirdiff.Summarize(items)
	fmt.Printf("\n%s %d identical, %d only local, %d only remote\n",
		bold("Summary:"), s.Identical, s.MissingInRemote, s.MissingInLocal)
	if s.InSync() {
		printSuccess("In sync")
	}
}

func init() {
	diffCmd.Flags().BoolVarP(&diffOpts.Recursive, "recursive", "r", true, "Descend into subdirectories")
	diffCmd.Flags().BoolVar(&diffOpts.IncludeDirectories, "dirs", false, "Include directories in the listing")
}
