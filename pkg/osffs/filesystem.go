// Package osffs is the public face of the client: a filesystem-like view
// of one OSF project's storage provider, built for content-addressed
// remotes. All operations are resilient — pooled connections, typed
// errors, retry with backoff — and verify content hashes on transfer.
package osffs

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/osffs/osffs/internal/config"
	"github.com/osffs/osffs/internal/fileops"
	"github.com/osffs/osffs/internal/metrics"
	"github.com/osffs/osffs/internal/storage/osf"
	"github.com/osffs/osffs/internal/transport"
)

// Entry re-exports the descriptor type so callers do not import internal
// packages.
type Entry = osf.ObjectDescriptor

// ProgressFunc reports (unitsCompleted, unitsTotal): bytes for single
// transfers, items for batches.
type ProgressFunc = osf.ProgressFunc

// Options for constructing a FileSystem.
type Option func(*settings)

type settings struct {
	token   string
	logger  *slog.Logger
	metrics bool
}

// WithToken overrides the credential from the configuration and
// environment.
func WithToken(token string) Option {
	return func(s *settings) { s.token = token }
}

// WithLogger sets the structured logger; default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithMetrics enables the Prometheus collector regardless of the
// configuration.
func WithMetrics() Option {
	return func(s *settings) { s.metrics = true }
}

// FileSystem is a filesystem-like session against one project + provider.
// It is cheap to keep around: state is the connection pool and the cached
// provider root.
type FileSystem struct {
	cfg     *config.Config
	client  *transport.Client
	backend *osf.Backend
	ops     *fileops.Manipulator
	logger  *slog.Logger
	metrics *metrics.Collector
}

// New builds a FileSystem from the configuration. The credential follows
// the precedence: WithToken > cfg.Token > OSF_TOKEN.
func New(cfg *config.Config, opts ...Option) (*FileSystem, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	cfg.Token = ResolveToken(s.token, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}

	var collector *metrics.Collector
	if s.metrics || cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace)
	}

	client := transport.New(cfg, logger, collector)
	backend := osf.NewBackend(client, cfg, logger, collector)
	return &FileSystem{
		cfg:     cfg,
		client:  client,
		backend: backend,
		ops:     fileops.New(backend, logger, collector),
		logger:  logger,
		metrics: collector,
	}, nil
}

// Project returns the bound project identifier.
func (fs *FileSystem) Project() string { return fs.backend.Project() }

// Provider returns the bound storage provider.
func (fs *FileSystem) Provider() string { return fs.backend.Provider() }

// Exists reports whether path exists; absence is not an error.
func (fs *FileSystem) Exists(ctx context.Context, path string) (bool, error) {
	return fs.backend.Exists(ctx, fs.scoped(path))
}

// Info returns the metadata of the entry at path.
func (fs *FileSystem) Info(ctx context.Context, path string) (*Entry, error) {
	return fs.backend.Stat(ctx, fs.scoped(path))
}

// Ls lists the direct children of the folder at path.
func (fs *FileSystem) Ls(ctx context.Context, path string) ([]*Entry, error) {
	return fs.backend.List(ctx, fs.scoped(path))
}

// Open starts a streaming read of the file at path. The caller must close
// the returned body; no hash verification happens on this raw stream.
func (fs *FileSystem) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	body, _, err := fs.backend.OpenRead(ctx, fs.scoped(path))
	return body, err
}

// Download fetches the file at path into localPath, verifying its hash.
func (fs *FileSystem) Download(ctx context.Context, path, localPath string, progress ProgressFunc) error {
	return fs.backend.DownloadToLocal(ctx, fs.scoped(path), localPath, progress)
}

// Upload sends localPath to path, creating missing remote folders and
// verifying the stored hash.
func (fs *FileSystem) Upload(ctx context.Context, localPath, path string, progress ProgressFunc) (*Entry, error) {
	return fs.backend.UploadFromLocal(ctx, localPath, fs.scoped(path), progress)
}

// Mkdir creates the folder at path, parents included.
func (fs *FileSystem) Mkdir(ctx context.Context, path string) error {
	_, err := fs.backend.EnsureFolder(ctx, fs.scoped(path))
	return err
}

// Rm removes the entry at path; folders need recursive.
func (fs *FileSystem) Rm(ctx context.Context, path string, recursive bool) error {
	return fs.backend.Remove(ctx, fs.scoped(path), recursive)
}

// Copy duplicates src at dst within the bound project.
func (fs *FileSystem) Copy(ctx context.Context, src, dst string, recursive, overwrite bool) error {
	return fs.ops.Copy(ctx,
		fileops.Location{Path: fs.scoped(src)},
		fileops.Location{Path: fs.scoped(dst)},
		fileops.Options{Recursive: recursive, Overwrite: overwrite})
}

// Move relocates src to dst within the bound project. An existing
// destination always fails with Conflict; moves never overwrite.
func (fs *FileSystem) Move(ctx context.Context, src, dst string, recursive bool) error {
	return fs.ops.Move(ctx,
		fileops.Location{Path: fs.scoped(src)},
		fileops.Location{Path: fs.scoped(dst)},
		fileops.Options{Recursive: recursive})
}

// Batch runs a sequence of same-kind operations, returning one outcome
// per item; partial failure is a normal result. progress fires after each
// item with the processed path and operation kind.
func (fs *FileSystem) Batch(ctx context.Context, kind fileops.BatchKind, items []fileops.BatchItem, progress fileops.BatchProgressFunc) (*fileops.BatchResult, error) {
	return fs.ops.Batch(ctx, kind, items, progress, fileops.Options{})
}

// MetricsHandler exposes the Prometheus registry; it serves 404 when
// metrics are disabled.
func (fs *FileSystem) MetricsHandler() http.Handler {
	return fs.metrics.Handler()
}

// scoped prefixes the configured root path, so a FileSystem can be rooted
// at a sub-folder of the provider.
func (fs *FileSystem) scoped(path string) string {
	path = NormalizePath(path)
	root := NormalizePath(fs.cfg.RootPath)
	switch {
	case root == "":
		return path
	case path == "":
		return root
	default:
		return root + "/" + path
	}
}
