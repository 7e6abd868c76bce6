// Package artifact owns the on-disk layout of a backup: the metadata and plan
// JSON files and one SQL script per table.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/dbsmedya/gofkdump/internal/config"
)

const (
	MetadataFile = "metadata.json"
	PlanFile     = "plan.json"
	FilesDir     = "files"

	sqlExt  = ".sql"
	zstdExt = ".zst"
)

// ErrTableFileNotFound is returned when a table has no script in the backup.
var ErrTableFileNotFound = errors.New("table file not found")

// Layout resolves artifact paths under a backup directory.
type Layout struct {
	Root        string
	Compression string
}

// NewLayout creates a layout rooted at dir. compression is one of the
// config.Compression* values; empty means none.
func NewLayout(dir, compression string) *Layout {
	if compression == "" {
		compression = config.CompressionNone
	}
	return &Layout{Root: dir, Compression: compression}
}

// Ensure creates the backup directory and its files directory.
func (l *Layout) Ensure() error {
	if err := os.MkdirAll(l.FilesPath(), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	return nil
}

// MetadataPath returns the path of metadata.json.
func (l *Layout) MetadataPath() string {
	return filepath.Join(l.Root, MetadataFile)
}

// PlanPath returns the path of plan.json.
func (l *Layout) PlanPath() string {
	return filepath.Join(l.Root, PlanFile)
}

// FilesPath returns the directory holding the table scripts.
func (l *Layout) FilesPath() string {
	return filepath.Join(l.Root, FilesDir)
}

// TablePath returns the script path of table for the configured compression.
func (l *Layout) TablePath(table string) string {
	name := fileName(table) + sqlExt
	if l.Compression == config.CompressionZstd {
		name += zstdExt
	}
	return filepath.Join(l.FilesPath(), name)
}

// fileName maps a table name to a file name that stays inside files/.
func fileName(table string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")
	name := r.Replace(table)
	if name == "." || name == ".." {
		name = "_" + name
	}
	return name
}

// CreateTableFile opens the script of table for writing, truncating any
// previous one. Closing the writer flushes compression and the file.
func (l *Layout) CreateTableFile(table string) (io.WriteCloser, error) {
	path := l.TablePath(table)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create table file %s: %w", path, err)
	}

	if l.Compression != config.CompressionZstd {
		return f, nil
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	return &zstdFile{enc: enc, f: f}, nil
}

// ReadTableFile returns the script of table. Both the plain and the zstd
// variant are looked up, whatever the configured compression.
func (l *Layout) ReadTableFile(table string) ([]byte, error) {
	base := filepath.Join(l.FilesPath(), fileName(table)+sqlExt)

	if data, err := os.ReadFile(base); err == nil {
		return data, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read table file %s: %w", base, err)
	}

	f, err := os.Open(base + zstdExt)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTableFileNotFound, table)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open table file %s: %w", base+zstdExt, err)
	}
	defer func() { _ = f.Close() }()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress table file %s: %w", base+zstdExt, err)
	}
	return data, nil
}

type zstdFile struct {
	enc *zstd.Encoder
	f   *os.File
}

func (z *zstdFile) Write(p []byte) (int, error) {
	return z.enc.Write(p)
}

func (z *zstdFile) Close() error {
	encErr := z.enc.Close()
	fileErr := z.f.Close()
	if encErr != nil {
		return fmt.Errorf("failed to flush zstd stream: %w", encErr)
	}
	return fileErr
}
