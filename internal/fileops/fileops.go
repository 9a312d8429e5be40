// Package fileops synthesizes copy, move, and batch operations from the
// object-store primitives. The API has no server-side copy, so every copy
// round-trips through a scoped local temp file with hash verification on
// both legs.
package fileops

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/osffs/osffs/internal/metrics"
	"github.com/osffs/osffs/internal/storage/osf"
	"github.com/osffs/osffs/pkg/errors"
)

// Store is the slice of the object-store facade the manipulation layer
// needs. It is satisfied by *osf.Backend.
type Store interface {
	Project() string
	Provider() string
	Stat(ctx context.Context, path string) (*osf.ObjectDescriptor, error)
	Exists(ctx context.Context, path string) (bool, error)
	List(ctx context.Context, path string) ([]*osf.ObjectDescriptor, error)
	DownloadToLocal(ctx context.Context, remotePath, localPath string, progress osf.ProgressFunc) error
	UploadFromLocal(ctx context.Context, localPath, remotePath string, progress osf.ProgressFunc) (*osf.ObjectDescriptor, error)
	Remove(ctx context.Context, path string, recursive bool) error
}

// Location addresses an entry for a manipulation request. Project and
// Provider may be empty, meaning "wherever the manipulator is bound".
type Location struct {
	Project  string
	Provider string
	Path     string
}

func (l Location) String() string {
	return l.Path
}

// Options tunes one copy or move.
type Options struct {
	// Recursive permits folder sources.
	Recursive bool
	// Overwrite permits replacing an existing destination file.
	Overwrite bool
}

// Manipulator performs multi-step operations against one bound store.
type Manipulator struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Collector
}

// New creates a manipulator bound to store. logger and collector may be
// nil.
func New(store Store, logger *slog.Logger, collector *metrics.Collector) *Manipulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manipulator{store: store, logger: logger, metrics: collector}
}

// validatePlacement rejects requests that would leave the bound
// project + provider pair. Cross-project transfers would need independent
// credentials and a second session, which this layer does not model.
func (m *Manipulator) validatePlacement(locs ...Location) error {
	for _, l := range locs {
		if l.Project != "" && l.Project != m.store.Project() {
			return errors.New(errors.ErrCodeUnsupportedOperation,
				fmt.Sprintf("cross-project operation: bound to %s, requested %s", m.store.Project(), l.Project))
		}
		if l.Provider != "" && l.Provider != m.store.Provider() {
			return errors.New(errors.ErrCodeUnsupportedOperation,
				fmt.Sprintf("cross-provider operation: bound to %s, requested %s", m.store.Provider(), l.Provider))
		}
	}
	return nil
}

// Copy duplicates src at dst. Folders need opts.Recursive; an existing
// destination file needs opts.Overwrite.
func (m *Manipulator) Copy(ctx context.Context, src, dst Location, opts Options) error {
	start := time.Now()
	err := m.copy(ctx, src, dst, opts)
	m.metrics.RecordOperation("copy", time.Since(start), err == nil)
	return err
}

func (m *Manipulator) copy(ctx context.Context, src, dst Location, opts Options) error {
	if err := m.validatePlacement(src, dst); err != nil {
		return err
	}

	d, err := m.store.Stat(ctx, src.Path)
	if err != nil {
		return err
	}

	if d.IsDir() {
		if !opts.Recursive {
			return errors.New(errors.ErrCodeClientError, "source is a folder; recursive copy required").
				WithOp("copy").WithPath(src.Path)
		}
		// The destination collision is rejected here, before any data
		// movement, not per file mid-walk.
		if !opts.Overwrite {
			exists, err := m.store.Exists(ctx, dst.Path)
			if err != nil {
				return err
			}
			if exists {
				return errors.New(errors.ErrCodeConflict, "destination already exists").
					WithOp("copy").WithPath(dst.Path)
			}
		}
		walkOpts := opts
		walkOpts.Overwrite = true
		var copied int
		if err := m.copyTree(ctx, src.Path, dst.Path, walkOpts, &copied); err != nil {
			code := errors.CodeOf(err)
			if code == "" {
				code = errors.ErrCodeClientError
			}
			return errors.Wrap(code,
				fmt.Sprintf("tree copy aborted; %d file(s) were copied before the failure", copied), err).
				WithOp("copy").WithPath(src.Path)
		}
		return nil
	}
	return m.copyFile(ctx, src.Path, dst.Path, opts)
}

func (m *Manipulator) copyFile(ctx context.Context, srcPath, dstPath string, opts Options) error {
	if !opts.Overwrite {
		exists, err := m.store.Exists(ctx, dstPath)
		if err != nil {
			return err
		}
		if exists {
			return errors.New(errors.ErrCodeConflict, "destination already exists").
				WithOp("copy").WithPath(dstPath)
		}
	}

	// The temp directory scopes the intermediate payload; RemoveAll on
	// every exit path keeps partial transfers off the disk.
	tmpDir, err := os.MkdirTemp("", "osffs-copy-")
	if err != nil {
		return errors.Wrap(errors.ErrCodeClientError, "cannot create temp directory", err).WithOp("copy")
	}
	defer os.RemoveAll(tmpDir)

	local := filepath.Join(tmpDir, "payload")
	if err := m.store.DownloadToLocal(ctx, srcPath, local, nil); err != nil {
		return err
	}
	if _, err := m.store.UploadFromLocal(ctx, local, dstPath, nil); err != nil {
		return err
	}

	m.logger.Debug("copied file", "src", srcPath, "dst", dstPath)
	return nil
}

// copyTree copies every file under srcPath, preserving relative layout and
// counting completed files so an aborting error can report how far the
// walk got. Folders materialize implicitly on upload; empty source folders
// are not recreated.
func (m *Manipulator) copyTree(ctx context.Context, srcPath, dstPath string, opts Options, copied *int) error {
	children, err := m.store.List(ctx, srcPath)
	if err != nil {
		return err
	}
	for _, child := range children {
		rel := strings.TrimPrefix(strings.TrimPrefix(child.Path, srcPath), "/")
		target := dstPath + "/" + rel
		if child.IsDir() {
			if err := m.copyTree(ctx, child.Path, target, opts, copied); err != nil {
				return err
			}
			continue
		}
		if err := m.copyFile(ctx, child.Path, target, opts); err != nil {
			return err
		}
		*copied++
	}
	return nil
}

// Move relocates src to dst as copy-then-delete; the API offers nothing
// atomic. When the copy lands but the source delete fails, the move
// reports success and the orphaned source is logged for manual cleanup.
func (m *Manipulator) Move(ctx context.Context, src, dst Location, opts Options) error {
	start := time.Now()
	err := m.move(ctx, src, dst, opts)
	m.metrics.RecordOperation("move", time.Since(start), err == nil)
	return err
}

func (m *Manipulator) move(ctx context.Context, src, dst Location, opts Options) error {
	// A move never overwrites: an existing destination is a Conflict.
	opts.Overwrite = false
	if err := m.copy(ctx, src, dst, opts); err != nil {
		return err
	}
	if err := m.store.Remove(ctx, src.Path, opts.Recursive); err != nil {
		m.logger.Warn("move left orphaned source: copy succeeded but source removal failed",
			"src", src.Path,
			"dst", dst.Path,
			"error", err)
	}
	return nil
}

// BatchKind selects the per-item operation of a batch.
type BatchKind string

const (
	BatchCopy   BatchKind = "copy"
	BatchMove   BatchKind = "move"
	BatchDelete BatchKind = "delete"
)

// BatchProgressFunc reports batch progress after each item: how many items
// finished out of how many, which path was just processed, and the
// operation applied to it.
type BatchProgressFunc func(completed, total int, path string, kind BatchKind)

// BatchItem is one unit of work. Dst is ignored for BatchDelete.
type BatchItem struct {
	Src Location
	Dst Location
}

// BatchOutcome records how one item fared. Err is nil on success.
type BatchOutcome struct {
	Item BatchItem
	Err  error
}

// BatchResult aggregates a whole batch. Partial failure is a normal
// result, not an error.
type BatchResult struct {
	Outcomes  []BatchOutcome
	Succeeded int
	Failed    int
}

// Batch runs the items sequentially, recording one outcome per item and
// invoking progress after each. Precondition violations (empty batch,
// duplicate destinations) fail the whole batch before any network work.
func (m *Manipulator) Batch(ctx context.Context, kind BatchKind, items []BatchItem, progress BatchProgressFunc, opts Options) (*BatchResult, error) {
	if len(items) == 0 {
		return nil, errors.New(errors.ErrCodePreconditionFailed, "empty batch")
	}
	if kind == BatchCopy || kind == BatchMove {
		seen := make(map[string]struct{}, len(items))
		for _, item := range items {
			key := item.Dst.Project + "/" + item.Dst.Provider + "/" + item.Dst.Path
			if _, dup := seen[key]; dup {
				return nil, errors.New(errors.ErrCodePreconditionFailed,
					fmt.Sprintf("duplicate destination %q", item.Dst.Path))
			}
			seen[key] = struct{}{}
		}
	}

	result := &BatchResult{Outcomes: make([]BatchOutcome, 0, len(items))}
	for i, item := range items {
		var err error
		switch kind {
		case BatchCopy:
			err = m.Copy(ctx, item.Src, item.Dst, opts)
		case BatchMove:
			err = m.Move(ctx, item.Src, item.Dst, opts)
		case BatchDelete:
			if err = m.validatePlacement(item.Src); err == nil {
				err = m.store.Remove(ctx, item.Src.Path, opts.Recursive)
			}
		default:
			err = errors.New(errors.ErrCodeClientError, fmt.Sprintf("unknown batch kind %q", kind))
		}

		result.Outcomes = append(result.Outcomes, BatchOutcome{Item: item, Err: err})
		if err != nil {
			result.Failed++
			m.logger.Warn("batch item failed",
				"kind", string(kind),
				"src", item.Src.Path,
				"error", err)
		} else {
			result.Succeeded++
		}
		if progress != nil {
			progress(i+1, len(items), item.Src.Path, kind)
		}
	}
	return result, nil
}
