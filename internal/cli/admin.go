package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-comms/internal/vault"
	"github.com/celerix-dev/celerix-comms/pkg/engine"
	"github.com/celerix-dev/celerix-comms/pkg/sdk"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		toBackend string
		toPath    string
		toAddr    string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy every stored key into another store",
		Long: `Copy every stored key from the configured store into another one.

Examples:
  comms migrate --to-backend sqlite --to-path ./data/comms.db
  comms migrate --to-addr 10.0.0.5:7101`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if toAddr == "" && toBackend == "" {
				return NewExitError(ExitRejected, "one of --to-backend or --to-addr is required")
			}
			if toAddr == "" && toPath == "" {
				return NewExitError(ExitRejected, "--to-backend needs --to-path")
			}
			return rootOpts.withApp(cmd, func(a *app, f *OutputFormatter) error {
				dst, err := openDestination(a, toAddr, toBackend, toPath)
				if err != nil {
					return f.Fail("open destination", err)
				}
				defer dst.Close()

				n, err := engine.Migrate(a.store, dst)
				if err != nil {
					return f.Fail(fmt.Sprintf("migrate (copied %d keys)", n), err)
				}
				return f.Success(map[string]int{"copied": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Copied %d keys\n", n)
				})
			})
		},
	}
	cmd.Flags().StringVar(&toBackend, "to-backend", "", "embedded destination backend (file|sqlite)")
	cmd.Flags().StringVar(&toPath, "to-path", "", "destination data directory or SQLite file")
	cmd.Flags().StringVar(&toAddr, "to-addr", "", "destination commsd address")
	return cmd
}

// openDestination opens the migration target with the same sealing as the
// source. A remote target is dialled directly; sdk.Open would fall back to
// an embedded store when it is down.
func openDestination(a *app, addr, backend, path string) (sdk.Store, error) {
	var key []byte
	if a.cfg.MasterKey != "" {
		key = a.cfg.StoreOptions(a.logger).MasterKey
	}

	if addr == "" {
		return sdk.Open(sdk.Options{
			Backend:    backend,
			DataDir:    path,
			SQLitePath: path,
			MasterKey:  key,
			Logger:     a.logger,
		})
	}

	client, err := sdk.Connect(addr, sdk.WithTLS(!a.cfg.DisableTLS), sdk.WithClientLogger(a.logger))
	if err != nil {
		return nil, err
	}
	if key == nil {
		return client, nil
	}
	sealed, err := vault.Seal(client, key)
	if err != nil {
		client.Close()
		return nil, err
	}
	return sealedClient{Sealed: sealed, Closer: client}, nil
}

type sealedClient struct {
	*vault.Sealed
	io.Closer
}

func NewPingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured commsd answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreAddr == "" {
				return NewExitError(ExitRejected, "no daemon configured: set --addr or COMMS_STORE_ADDR")
			}
			client, err := sdk.Connect(cfg.StoreAddr, sdk.WithTLS(!cfg.DisableTLS))
			if err != nil {
				return f.Fail("connect "+cfg.StoreAddr, err)
			}
			defer client.Close()
			if err := client.Ping(); err != nil {
				return f.Fail("ping "+cfg.StoreAddr, err)
			}
			return f.Success(map[string]string{"addr": cfg.StoreAddr, "reply": "PONG"}, func(w io.Writer) {
				fmt.Fprintf(w, "%s: PONG\n", cfg.StoreAddr)
			})
		},
	}
}
