// Package cli implements the comms command line client.
package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-comms/internal/config"
	"github.com/celerix-dev/celerix-comms/internal/events"
	"github.com/celerix-dev/celerix-comms/internal/files"
	"github.com/celerix-dev/celerix-comms/internal/messages"
	"github.com/celerix-dev/celerix-comms/internal/stats"
	"github.com/celerix-dev/celerix-comms/pkg/sdk"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "text" | "json" | "yaml"
	ConfigPath string
	DataDir    string
	Addr       string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the comms CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "comms",
		Short:         "Collective 3826 communication archive",
		Long:          "Send and browse archived messages, store files and read activity statistics.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitRejected, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./comms.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "data directory, overrides COMMS_DATA_DIR")
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "", "commsd address, overrides COMMS_STORE_ADDR")

	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewFilesCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewPingCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig applies flag overrides on top of the file and environment.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitRejected, "load config", err)
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if o.Addr != "" {
		cfg.StoreAddr = o.Addr
	}
	return cfg, nil
}

// app is one opened archive: the store plus the three domain services on it.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    sdk.Store
	bus      *events.Bus
	messages *messages.Log
	files    *files.Archive
	stats    *stats.Tracker
}

func (o *RootOptions) open(cmd *cobra.Command) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	store, err := sdk.Open(cfg.StoreOptions(logger))
	if err != nil {
		return nil, WrapExitError(ExitFailure, "open store", err)
	}

	bus := events.NewBus()
	bus.Subscribe(events.LogTo(logger))

	log := messages.New(store, messages.WithLogger(logger), messages.WithBus(bus))
	archive := files.New(store, append(cfg.ArchiveOptions(), files.WithLogger(logger), files.WithBus(bus))...)
	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		bus:      bus,
		messages: log,
		files:    archive,
		stats:    stats.New(store, log, archive, stats.WithLogger(logger), stats.WithBus(bus)),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// withApp opens the archive for the duration of fn.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(*app, *OutputFormatter) error) error {
	f := o.formatter(cmd)
	a, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	f.VerboseLog("Using data in %s (backend %s)", a.cfg.DataDir, a.cfg.Backend)
	return fn(a, f)
}
