package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/irdrive/internal/driveops"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [segment...]",
		Short: "List a folder below the configured root",
		RunE:  runLs,
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <segment>...",
		Short: "Create a folder path below the configured root",
		Long: `Create every missing folder along the path below the configured root.
Existing folders are reused, matching names without regard to case.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runMkdir,
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <segment>...",
		Short: "Report whether a path below the configured root is taken",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCheck,
	}
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-file> <segment>...",
		Short: "Upload a file into a folder path, creating the path",
		Args:  cobra.MinimumNArgs(2), //nolint:mnd // file plus at least one segment
		RunE:  runPut,
	}

	cmd.Flags().String("name", "", "remote file name (default: the local file name)")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <item-id> [local-path]",
		Short: "Download a file by item ID",
		Long:  "Download a file by item ID. Without a local path the remote name is used in the current directory.",
		Args:  cobra.RangeArgs(1, 2), //nolint:mnd // item and optional target
		RunE:  runGet,
	}
}

type lsOutput struct {
	Path    string          `json:"path"`
	Exists  bool            `json:"exists"`
	Folders []driveops.Item `json:"folders"`
	Files   []driveops.Item `json:"files"`
}

func runLs(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	spec, err := pathSpec(cc, args)
	if err != nil {
		return err
	}

	out := lsOutput{Path: spec.String(), Folders: []driveops.Item{}, Files: []driveops.Item{}}

	err = withDrive(ctx, cc, func(sess *driveops.Session) error {
		resolver := sess.Resolver()

		lookup, err := resolver.Lookup(ctx, spec.String())
		if err != nil {
			return err
		}

		item, ok := lookup.Item()
		if !ok {
			return nil
		}

		out.Exists = true

		if !item.IsFolder() {
			out.Files = append(out.Files, item)
			return nil
		}

		if out.Folders, err = resolver.ListFolders(ctx, spec); err != nil {
			return err
		}

		out.Files, err = driveFiles(cc, sess).List(ctx, item.ID)

		return err
	})
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, out)
	}

	if !out.Exists {
		return fmt.Errorf("%s: %w", out.Path, driveops.ErrNotFound)
	}

	rows := make([][]string, 0, len(out.Folders)+len(out.Files))

	for _, f := range out.Folders {
		rows = append(rows, []string{f.Name + "/", "-", formatTime(f.ModifiedAt), f.ID})
	}

	for _, f := range out.Files {
		rows = append(rows, []string{f.Name, formatSize(f.Size), formatTime(f.ModifiedAt), f.ID})
	}

	printTable(os.Stdout, isTerminal(os.Stdout), []string{"NAME", "SIZE", "MODIFIED", "ID"}, rows)

	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	spec, err := pathSpec(cc, args)
	if err != nil {
		return err
	}

	var folder *driveops.Item

	err = withDrive(ctx, cc, func(sess *driveops.Session) error {
		folder, err = sess.Resolver().EnsurePath(ctx, spec)
		return err
	})
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, folder)
	}

	cc.Statusf("Ensured %s\n", spec)
	fmt.Println(folder.ID)

	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	spec, err := pathSpec(cc, args)
	if err != nil {
		return err
	}

	var taken bool

	err = withDrive(ctx, cc, func(sess *driveops.Session) error {
		taken, err = sess.Resolver().CheckDuplicate(ctx, spec)
		return err
	})
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, map[string]any{"path": spec.String(), "exists": taken})
	}

	fmt.Println(strconv.FormatBool(taken))

	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	local := args[0]

	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return err
	}

	if name == "" {
		name = filepath.Base(local)
	}

	spec, err := pathSpec(cc, args[1:])
	if err != nil {
		return err
	}

	data, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("reading %s: %w", local, err)
	}

	var item *driveops.Item

	err = withDrive(ctx, cc, func(sess *driveops.Session) error {
		item, err = driveFiles(cc, sess).UploadToPath(ctx, sess.Resolver(), spec, name, data, contentTypeOf(name))
		return err
	})
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, item)
	}

	cc.Statusf("Uploaded %s to %s (%s)\n", name, spec, formatSize(item.Size))
	fmt.Println(item.ID)

	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	itemID := args[0]

	var (
		target string
		n      int64
	)

	if len(args) > 1 {
		target = args[1]
	}

	err := withDrive(ctx, cc, func(sess *driveops.Session) error {
		if target == "" {
			meta, err := sess.Meta.GetItem(ctx, sess.DriveID, itemID)
			if err != nil {
				return fmt.Errorf("reading %s: %w", itemID, err)
			}

			target = filepath.Base(meta.Name)
		}

		var err error
		n, err = driveFiles(cc, sess).DownloadToFile(ctx, itemID, target)

		return err
	})
	if err != nil {
		return err
	}

	cc.Statusf("Downloaded %s to %s (%s)\n", itemID, target, formatSize(n))

	return nil
}

// contentTypeOf guesses a MIME type from the file extension.
func contentTypeOf(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}

	return "application/octet-stream"
}
