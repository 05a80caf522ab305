package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-comms/internal/stats"
	"github.com/celerix-dev/celerix-comms/pkg/schema"
)

type statsView struct {
	Statistics schema.ActivityStats `json:"statistics"`
	WorkTime   string               `json:"workTime"`
	Chart      []stats.Bar          `json:"chart"`
}

func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		reset  bool
		export string
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show activity statistics",
		Long: `Show activity statistics and the seven-day activity chart.

--reset zeroes the message and file counters and regenerates the chart.
--export writes the statistics as JSON; pass - for stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(a *app, f *OutputFormatter) error {
				var (
					st  schema.ActivityStats
					err error
				)
				if reset {
					st, err = a.stats.Reset()
				} else {
					st, err = a.stats.Refresh()
				}
				if err != nil {
					return f.Fail("stats", err)
				}

				if export != "" {
					var buf bytes.Buffer
					if err := a.stats.Export(&buf); err != nil {
						return f.Fail("export stats", err)
					}
					if export == "-" {
						_, err := cmd.OutOrStdout().Write(buf.Bytes())
						return err
					}
					if err := os.WriteFile(export, buf.Bytes(), 0o644); err != nil {
						return f.Fail("write "+export, err)
					}
					f.VerboseLog("Statistics written to %s", export)
				}

				v := statsView{
					Statistics: st,
					WorkTime:   stats.FormatWorkTime(st.WorkTime),
					Chart:      stats.Chart(st, time.Now()),
				}
				return f.Success(v, func(w io.Writer) {
					fmt.Fprintf(w, "Сообщений:  %d\n", st.MessagesSent)
					fmt.Fprintf(w, "Файлов:     %d\n", st.FilesUploaded)
					fmt.Fprintf(w, "Сессий:     %d\n", st.SessionsCount)
					fmt.Fprintf(w, "Время:      %s\n\n", v.WorkTime)
					for _, b := range v.Chart {
						fmt.Fprintf(w, "%s %-20s %d\n", b.Day, strings.Repeat("█", int(b.Height/5)), b.Actions)
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "reset counters")
	cmd.Flags().StringVar(&export, "export", "", "write statistics JSON to this file (- for stdout)")
	return cmd
}
