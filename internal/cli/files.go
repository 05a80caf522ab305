package cli

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-comms/internal/files"
	"github.com/celerix-dev/celerix-comms/pkg/schema"
)

// NewFilesCommand groups the file archive commands.
func NewFilesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage the file archive",
	}
	cmd.AddCommand(newFilesPutCommand(rootOpts))
	cmd.AddCommand(newFilesListCommand(rootOpts))
	cmd.AddCommand(newFilesGetCommand(rootOpts))
	cmd.AddCommand(newFilesRemoveCommand(rootOpts))
	cmd.AddCommand(newFilesUsageCommand(rootOpts))
	cmd.AddCommand(newFilesClearCommand(rootOpts))
	return cmd
}

// detectMimeType prefers the extension, like a browser file picker does, and
// sniffs the content when the extension is unknown.
func detectMimeType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return stripParams(t)
	}
	if m, err := mimetype.DetectFile(path); err == nil {
		return stripParams(m.String())
	}
	return ""
}

func stripParams(t string) string {
	base, _, _ := strings.Cut(t, ";")
	return strings.TrimSpace(base)
}

type putResult struct {
	Stored []fileMeta `json:"stored"`
	Failed []failure  `json:"failed"`
}

type failure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

func newFilesPutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <path>...",
		Short: "Archive one or more files",
		Long: `Archive one or more files. Files over the size limit are skipped and
reported; the others are stored.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(a *app, f *OutputFormatter) error {
				uploads := make([]files.Upload, 0, len(args))
				for _, path := range args {
					info, err := os.Stat(path)
					if err != nil {
						return f.Fail("stat "+path, err)
					}
					uploads = append(uploads, files.Upload{
						Name:     filepath.Base(path),
						MimeType: detectMimeType(path),
						Size:     info.Size(),
						Open:     func() (io.ReadCloser, error) { return os.Open(path) },
					})
				}

				res := a.files.PutBatch(cmd.Context(), uploads)

				out := putResult{Stored: []fileMeta{}, Failed: []failure{}}
				for _, rec := range res.Stored {
					out.Stored = append(out.Stored, metaOf(rec))
				}
				for _, fe := range res.Failed {
					out.Failed = append(out.Failed, failure{Name: fe.Name, Error: fe.Err.Error()})
				}

				if err := f.Success(out, func(w io.Writer) {
					for _, m := range out.Stored {
						fmt.Fprintf(w, "stored  %s  %s (%s)\n", m.ID, m.Name, files.FormatSize(m.SizeBytes))
					}
					for _, fl := range out.Failed {
						fmt.Fprintf(w, "skipped %s: %s\n", fl.Name, fl.Error)
					}
				}); err != nil {
					return err
				}
				if len(res.Failed) > 0 {
					return WrapExitError(exitCodeFor(res.Failed[0].Err),
						fmt.Sprintf("%d of %d files not stored", len(res.Failed), len(uploads)), res.Failed[0])
				}
				return nil
			})
		},
	}
}

// fileMeta is a FileRecord without its payload.
type fileMeta struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	MimeType   string          `json:"type"`
	SizeBytes  int64           `json:"size"`
	UploadedAt string          `json:"uploadDate"`
	Category   schema.Category `json:"category"`
}

func metaOf(f schema.FileRecord) fileMeta {
	return fileMeta{
		ID:         f.ID,
		Name:       f.Name,
		MimeType:   f.MimeType,
		SizeBytes:  f.SizeBytes,
		UploadedAt: f.UploadedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Category:   f.Category,
	}
}

func newFilesListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List archived files, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(a *app, f *OutputFormatter) error {
				res := a.files.List()
				if !res.Usable() {
					return f.Fail("load files", res.Err)
				}
				warnRecovered(f, "file archive", res.Status, res.Err)

				out := make([]fileMeta, 0, len(res.Value))
				for _, rec := range res.Value {
					out = append(out, metaOf(rec))
				}
				return f.Success(out, func(w io.Writer) {
					if len(out) == 0 {
						fmt.Fprintln(w, "Файлов нет")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tSIZE\tUPLOADED")
					for _, m := range out {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Category, files.FormatSize(m.SizeBytes), m.UploadedAt)
					}
					tw.Flush()
				})
			})
		},
	}
}

func newFilesGetCommand(rootOpts *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Write an archived file to disk",
		Long:  "Write an archived file to disk. Without --output the original name is used; - writes to stdout.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(a *app, f *OutputFormatter) error {
				data, rec, err := a.files.Open(args[0])
				if err != nil {
					return f.Fail("get "+args[0], err)
				}
				if output == "-" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				path := output
				if path == "" {
					path = filepath.Base(rec.Name)
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return f.Fail("write "+path, err)
				}
				return f.Success(map[string]any{"path": path, "bytes": len(data)}, func(w io.Writer) {
					fmt.Fprintf(w, "%s -> %s (%s)\n", rec.Name, path, files.FormatSize(int64(len(data))))
				})
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file, - for stdout")
	return cmd
}

func newFilesRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete an archived file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(a *app, f *OutputFormatter) error {
				if err := a.files.DeleteByID(args[0]); err != nil {
					return f.Fail("delete "+args[0], err)
				}
				return f.Success(map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Файл %s удалён\n", args[0])
				})
			})
		},
	}
}

func newFilesUsageCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show archive size against the storage budget",
		Long: `Show archive size against the storage budget.

The budget is for display only. Writes fail only when the store quota
(quota_bytes) runs out; payloads take about 4/3 of their size in the store.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(a *app, f *OutputFormatter) error {
				u, err := a.files.Usage()
				if err != nil {
					return f.Fail("usage", err)
				}
				return f.Success(u, func(w io.Writer) {
					fmt.Fprintf(w, "%d files, %s of %s (%.1f%%, %s)\n",
						u.Files, files.FormatSize(u.TotalBytes), files.FormatSize(u.BudgetBytes), u.Percent, u.Status)
				})
			})
		},
	}
}

func newFilesClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every archived file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitRejected, "refusing to clear the file archive without --yes")
			}
			return rootOpts.withApp(cmd, func(a *app, f *OutputFormatter) error {
				if err := a.files.Clear(); err != nil {
					return f.Fail("clear", err)
				}
				return f.Success(map[string]string{"cleared": files.StorageKey}, func(w io.Writer) {
					fmt.Fprintln(w, "Файловый архив очищен")
				})
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}
