package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const valueExt = ".json"

// FilePersistence keeps one file per key inside DataDir.
type FilePersistence struct {
	DataDir string
	mu      sync.Mutex // Protects concurrent writes to the filesystem
	logger  *slog.Logger
}

// NewPersistence initializes a file persistence handler.
func NewPersistence(dir string, logger *slog.Logger) (*FilePersistence, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FilePersistence{
		DataDir: dir,
		logger:  logger.With(slog.String("component", "persistence")),
	}, nil
}

// SaveKey writes a single value to its file atomically.
func (p *FilePersistence) SaveKey(key, val string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	filePath := filepath.Join(p.DataDir, key+valueExt)
	tempPath := filePath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(val); err != nil {
		f.Close()
		os.Remove(tempPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}

	// Readers see either the old value or the new one, never a torn write.
	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}

// DeleteKey removes the file backing key. Missing files are ignored.
func (p *FilePersistence) DeleteKey(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := os.Remove(filepath.Join(p.DataDir, key+valueExt))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LoadAll returns every value found in the data directory.
func (p *FilePersistence) LoadAll() (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	all := make(map[string]string)
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != valueExt {
			continue
		}
		key := strings.TrimSuffix(file.Name(), valueExt)

		content, err := os.ReadFile(filepath.Join(p.DataDir, file.Name()))
		if err != nil {
			p.logger.Warn("skipping unreadable value file",
				slog.String("file", file.Name()),
				slog.Any("err", err),
			)
			continue
		}
		all[key] = string(content)
	}
	return all, nil
}
