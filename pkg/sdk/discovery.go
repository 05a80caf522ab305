package sdk

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/celerix-dev/celerix-comms/internal/vault"
	"github.com/celerix-dev/celerix-comms/pkg/engine"
)

// Environment variables read by New.
const (
	EnvStoreAddr  = "COMMS_STORE_ADDR"
	EnvDisableTLS = "COMMS_DISABLE_TLS"
)

// Backends for the embedded store.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Options selects and configures a store.
type Options struct {
	// Addr of a commsd daemon. Empty means embedded.
	Addr       string
	DisableTLS bool

	DataDir    string
	Backend    string
	SQLitePath string
	// Quota in bytes for the embedded store. Zero means unlimited.
	Quota int64

	// MasterKey, when set, seals every value with AES-GCM.
	MasterKey []byte

	Logger *slog.Logger
}

// New opens a store from the environment. If COMMS_STORE_ADDR names a
// reachable daemon it is used, otherwise files under dataDir are.
func New(dataDir string) (Store, error) {
	return Open(Options{
		Addr:       os.Getenv(EnvStoreAddr),
		DisableTLS: os.Getenv(EnvDisableTLS) == "true",
		DataDir:    dataDir,
		Backend:    BackendFile,
		Quota:      engine.DefaultQuota,
	})
}

// Open returns a remote store when opts.Addr answers and an embedded one
// otherwise.
func Open(opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var s Store
	if opts.Addr != "" {
		client, err := Connect(opts.Addr, WithTLS(!opts.DisableTLS), WithClientLogger(logger))
		if err == nil {
			s = client
		} else {
			logger.Warn("remote store unreachable, using embedded store",
				slog.String("addr", opts.Addr),
				slog.Any("err", err),
			)
		}
	}
	if s == nil {
		embedded, err := OpenEmbedded(opts)
		if err != nil {
			return nil, err
		}
		s = embedded
	}

	if len(opts.MasterKey) == 0 {
		return s, nil
	}
	sealed, err := vault.Seal(s, opts.MasterKey)
	if err != nil {
		s.Close()
		return nil, err
	}
	return sealedStore{Sealed: sealed, Closer: s}, nil
}

type sealedStore struct {
	*vault.Sealed
	io.Closer
}

// Embedded is a store living in this process.
type Embedded struct {
	*engine.MemStore
	closer io.Closer
}

var _ Store = (*Embedded)(nil)

func (e *Embedded) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

// OpenEmbedded loads the configured backend into a MemStore.
func OpenEmbedded(opts Options) (*Embedded, error) {
	var (
		p      engine.Persister
		closer io.Closer
	)
	switch opts.Backend {
	case "", BackendFile:
		fp, err := engine.NewPersistence(opts.DataDir, opts.Logger)
		if err != nil {
			return nil, err
		}
		p = fp
	case BackendSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = filepath.Join(opts.DataDir, "comms.db")
		}
		sp, err := engine.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		p, closer = sp, sp
	case BackendMemory:
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}

	var all map[string]string
	if p != nil {
		var err error
		if all, err = p.LoadAll(); err != nil {
			if closer != nil {
				closer.Close()
			}
			return nil, err
		}
	}

	ms := engine.NewMemStore(all, p)
	ms.SetQuota(opts.Quota)
	return &Embedded{MemStore: ms, closer: closer}, nil
}
