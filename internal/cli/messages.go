package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-comms/internal/files"
	"github.com/celerix-dev/celerix-comms/internal/messages"
	"github.com/celerix-dev/celerix-comms/internal/snapshot"
	"github.com/celerix-dev/celerix-comms/internal/view"
	"github.com/celerix-dev/celerix-comms/pkg/schema"
)

const timeLayout = "02.01.2006 15:04:05"

func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		system  bool
		attachs []string
	)
	cmd := &cobra.Command{
		Use:   "send <text>...",
		Short: "Append a message to the log",
		Long: `Append a message to the log as the operator, or as the system with --system.

Messages containing СРОЧНО or ВАЖНО are marked as priority. Archived files
can be referenced with --attach <file-id>.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(a *app, f *OutputFormatter) error {
				sender := schema.SenderOperator
				if system {
					sender = schema.SenderSystem
				}

				refs := make([]schema.AttachmentRef, 0, len(attachs))
				for _, id := range attachs {
					file, err := a.files.GetByID(id)
					if err != nil {
						return f.Fail("attach "+id, err)
					}
					refs = append(refs, schema.AttachmentRef{
						Name:      file.Name,
						MimeType:  file.MimeType,
						SizeBytes: file.SizeBytes,
						FileID:    file.ID,
					})
				}

				rec, err := a.messages.Send(sender, strings.Join(args, " "), refs...)
				if err != nil {
					return f.Fail("send", err)
				}
				return f.Success(rec, func(w io.Writer) {
					printMessage(w, rec)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&system, "system", false, "send as СИСТЕМА")
	cmd.Flags().StringArrayVar(&attachs, "attach", nil, "attach an archived file by id (repeatable)")
	return cmd
}

func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		filter string
		page   int
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show one page of the message log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mf, err := view.ParseMessageFilter(filter)
			if err != nil {
				return NewExitError(ExitRejected, err.Error())
			}
			return rootOpts.withApp(cmd, func(a *app, f *OutputFormatter) error {
				res := a.messages.LoadAll()
				if !res.Usable() {
					return f.Fail("load messages", res.Err)
				}
				warnRecovered(f, "message log", res.Status, res.Err)

				p := view.Apply(res.Value, view.NewState().WithFilter(mf).WithPage(page))
				return f.Success(p, func(w io.Writer) {
					if p.Matched == 0 {
						fmt.Fprintln(w, "Сообщений нет")
						return
					}
					for _, rec := range p.Items {
						printMessage(w, rec)
					}
					fmt.Fprintf(w, "-- page %d/%d, %d of %d messages\n", p.State.Page, p.TotalPages, p.Matched, p.Total)
				})
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", string(view.FilterAll), "all|operator|system")
	cmd.Flags().IntVar(&page, "page", 1, "1-based page number")
	return cmd
}

func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitRejected, "refusing to clear the message log without --yes")
			}
			return rootOpts.withApp(cmd, func(a *app, f *OutputFormatter) error {
				if err := a.messages.Clear(); err != nil {
					return f.Fail("clear", err)
				}
				return f.Success(map[string]string{"cleared": messages.StorageKey}, func(w io.Writer) {
					fmt.Fprintln(w, "Архив сообщений очищен")
				})
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}

func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the message log as a text archive",
		Long: `Write the message log in the archive text format.

Without --output the file is named collective_3826_archive_<date>.txt in the
current directory. Use --output - for stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(a *app, f *OutputFormatter) error {
				var buf bytes.Buffer
				if err := a.messages.Export(&buf); err != nil {
					return f.Fail("export", err)
				}
				if output == "-" {
					_, err := cmd.OutOrStdout().Write(buf.Bytes())
					return err
				}
				path := output
				if path == "" {
					path = messages.ExportFilename(time.Now())
				}
				if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
					return f.Fail("write "+path, err)
				}
				return f.Success(map[string]any{"path": path, "bytes": buf.Len()}, func(w io.Writer) {
					fmt.Fprintf(w, "Архив сохранён: %s\n", path)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file, - for stdout")
	return cmd
}

func printMessage(w io.Writer, rec schema.MessageRecord) {
	mark := ""
	if rec.Priority {
		mark = "! "
	}
	fmt.Fprintf(w, "%s[%s] %s: %s\n", mark, rec.Timestamp.Local().Format(timeLayout), rec.Sender, rec.Text)
	for _, att := range rec.Attachments {
		fmt.Fprintf(w, "    📎 %s (%s)\n", att.Name, files.FormatSize(att.SizeBytes))
	}
}

func warnRecovered(f *OutputFormatter, what string, status snapshot.Status, err error) {
	if status == snapshot.StatusRecovered {
		fmt.Fprintf(f.ErrWriter, "warning: %s was unreadable and is shown as empty: %v\n", what, err)
	}
}
