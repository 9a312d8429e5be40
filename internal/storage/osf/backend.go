// Package osf exposes one OSF project's storage provider as an object
// store: metadata lookups through the JSON:API endpoints and content
// transfers through the waterbutler endpoint references they return.
package osf

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/osffs/osffs/internal/cache"
	"github.com/osffs/osffs/internal/config"
	"github.com/osffs/osffs/internal/integrity"
	"github.com/osffs/osffs/internal/metrics"
	"github.com/osffs/osffs/internal/transport"
	"github.com/osffs/osffs/pkg/errors"
)

// ProgressFunc reports transfer progress as (unitsCompleted, unitsTotal).
// For single transfers the units are bytes.
type ProgressFunc func(completed, total int64)

// Backend is the object-store facade over one project + provider pair.
// Entries are addressed by provider-relative paths; the backend resolves
// them to endpoint references by walking listings, since the API has no
// lookup-by-path endpoint.
type Backend struct {
	client   *transport.Client
	project  string
	provider string

	uploadChunkThreshold int64
	uploadChunkSize      int64

	logger  *slog.Logger
	metrics *metrics.Collector

	root     *ObjectDescriptor // cached provider root
	listings *cache.Cache[[]*ObjectDescriptor]
}

// Listing cache bounds. Writes purge the whole cache, so the TTL only
// matters for changes made by other clients.
const (
	listingCacheSize = 256
	listingCacheTTL  = 30 * time.Second
)

// NewBackend creates a backend for the configured project and provider.
// logger and collector may be nil.
func NewBackend(client *transport.Client, cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		client:               client,
		project:              cfg.Project,
		provider:             cfg.Provider,
		uploadChunkThreshold: cfg.Transfer.UploadChunkThreshold,
		uploadChunkSize:      cfg.Transfer.UploadChunkSize,
		logger:               logger,
		metrics:              collector,
		listings:             cache.New[[]*ObjectDescriptor](listingCacheSize, listingCacheTTL),
	}
}

// Project returns the project identifier the backend is bound to.
func (b *Backend) Project() string { return b.project }

// Provider returns the storage provider the backend is bound to.
func (b *Backend) Provider() string { return b.provider }

// providerRoot fetches (once) the provider entry, whose links anchor
// uploads and folder creation at the top level.
func (b *Backend) providerRoot(ctx context.Context) (*ObjectDescriptor, error) {
	if b.root != nil {
		return b.root, nil
	}

	pages := b.client.Paginate(fmt.Sprintf("nodes/%s/files/", b.project))
	for {
		page, err := pages.Next(ctx)
		if err != nil {
			return nil, err
		}
		if page == nil {
			break
		}
		for _, raw := range page.Data {
			d, err := descriptorFromRaw(raw)
			if err != nil {
				return nil, err
			}
			if d.Name == b.provider {
				d.Path = ""
				d.Kind = KindFolder
				b.root = d
				return d, nil
			}
		}
	}
	return nil, errors.New(errors.ErrCodeNotFound,
		fmt.Sprintf("storage provider %q not found in project %s", b.provider, b.project)).
		WithOp("stat")
}

// listFolder walks every page of a folder's listing, memoizing the result
// by folder id.
func (b *Backend) listFolder(ctx context.Context, folder *ObjectDescriptor) ([]*ObjectDescriptor, error) {
	if cached, ok := b.listings.Get(folder.ID); ok {
		return cloneDescriptors(cached), nil
	}

	var listURL string
	if folder.Path == "" {
		listURL = fmt.Sprintf("nodes/%s/files/%s/", b.project, b.provider)
	} else {
		listURL = fmt.Sprintf("nodes/%s/files/%s%s/", b.project, b.provider, folderAPIPath(folder))
	}

	var out []*ObjectDescriptor
	pages := b.client.Paginate(listURL)
	for {
		page, err := pages.Next(ctx)
		if err != nil {
			return nil, err
		}
		if page == nil {
			b.listings.Put(folder.ID, cloneDescriptors(out))
			return out, nil
		}
		for _, raw := range page.Data {
			d, err := descriptorFromRaw(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
	}
}

// cloneDescriptors keeps cached listings immutable: resolve and List stamp
// paths onto the descriptors they hand out, and callers may mutate them
// further, so the cache never shares pointers with either side.
func cloneDescriptors(in []*ObjectDescriptor) []*ObjectDescriptor {
	out := make([]*ObjectDescriptor, len(in))
	for i, d := range in {
		c := *d
		out[i] = &c
	}
	return out
}

// folderAPIPath returns the waterbutler id path for a folder ("/abc123/").
// Folder ids come back prefixed with the provider name in the JSON:API id
// field ("osfstorage/abc123").
func folderAPIPath(d *ObjectDescriptor) string {
	id := d.ID
	if i := strings.IndexByte(id, '/'); i >= 0 {
		id = id[i+1:]
	}
	return "/" + strings.Trim(id, "/")
}

// resolve walks the listing tree to the entry at the given path. The walk
// is the price of the API's id-based addressing; each level is one
// paginated listing.
func (b *Backend) resolve(ctx context.Context, entryPath string) (*ObjectDescriptor, error) {
	entryPath = normalizePath(entryPath)

	current, err := b.providerRoot(ctx)
	if err != nil {
		return nil, err
	}
	if entryPath == "" {
		return current, nil
	}

	segments := strings.Split(entryPath, "/")
	for i, segment := range segments {
		children, err := b.listFolder(ctx, current)
		if err != nil {
			return nil, err
		}

		var match *ObjectDescriptor
		for _, child := range children {
			if child.Name == segment {
				match = child
				break
			}
		}
		if match == nil {
			return nil, errors.New(errors.ErrCodeNotFound,
				fmt.Sprintf("no entry named %q", segment)).
				WithPath(entryPath)
		}
		if i < len(segments)-1 && !match.IsDir() {
			return nil, errors.New(errors.ErrCodeNotFound,
				fmt.Sprintf("%q is a file, not a folder", segment)).
				WithPath(entryPath)
		}
		match.Path = strings.Join(segments[:i+1], "/")
		current = match
	}
	return current, nil
}

func normalizePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

// Stat returns the descriptor for the entry at path.
func (b *Backend) Stat(ctx context.Context, entryPath string) (*ObjectDescriptor, error) {
	start := time.Now()
	d, err := b.resolve(ctx, entryPath)
	b.metrics.RecordOperation("stat", time.Since(start), err == nil)
	return d, err
}

// Exists reports whether an entry exists at path. Absence is a normal
// answer, not an error.
func (b *Backend) Exists(ctx context.Context, entryPath string) (bool, error) {
	_, err := b.resolve(ctx, entryPath)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns the direct children of the folder at path, in server order.
func (b *Backend) List(ctx context.Context, entryPath string) ([]*ObjectDescriptor, error) {
	start := time.Now()
	folder, err := b.resolve(ctx, entryPath)
	if err != nil {
		b.metrics.RecordOperation("list", time.Since(start), false)
		return nil, err
	}
	if !folder.IsDir() {
		b.metrics.RecordOperation("list", time.Since(start), false)
		return nil, errors.New(errors.ErrCodeClientError, "cannot list a file").
			WithOp("list").WithPath(entryPath)
	}

	children, err := b.listFolder(ctx, folder)
	b.metrics.RecordOperation("list", time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	prefix := normalizePath(entryPath)
	for _, child := range children {
		if prefix == "" {
			child.Path = child.Name
		} else {
			child.Path = prefix + "/" + child.Name
		}
	}
	return children, nil
}

// OpenRead opens a streaming read of the file at path. The caller owns the
// returned body.
func (b *Backend) OpenRead(ctx context.Context, entryPath string) (io.ReadCloser, *ObjectDescriptor, error) {
	d, err := b.resolve(ctx, entryPath)
	if err != nil {
		return nil, nil, err
	}
	if d.IsDir() {
		return nil, nil, errors.New(errors.ErrCodeClientError, "cannot read a folder").
			WithOp("open").WithPath(entryPath)
	}
	if d.links.Download == "" {
		return nil, nil, errors.New(errors.ErrCodeClientError, "entry has no download endpoint").
			WithOp("open").WithPath(entryPath)
	}

	body, err := b.client.OpenDownload(ctx, d.links.Download)
	if err != nil {
		return nil, nil, wrapWith(err, "open", entryPath)
	}
	return body, d, nil
}

// DownloadToLocal streams the remote file at entryPath into localPath,
// verifying the rolling MD5 against the server-reported hash. A mismatch
// removes the local file: a wrong artifact must not survive the call.
func (b *Backend) DownloadToLocal(ctx context.Context, entryPath, localPath string, progress ProgressFunc) error {
	start := time.Now()
	err := b.downloadToLocal(ctx, entryPath, localPath, progress)
	b.metrics.RecordOperation("download", time.Since(start), err == nil)
	return err
}

func (b *Backend) downloadToLocal(ctx context.Context, entryPath, localPath string, progress ProgressFunc) error {
	body, d, err := b.OpenRead(ctx, entryPath)
	if err != nil {
		return err
	}
	defer body.Close()

	if dir := filepath.Dir(localPath); dir != "." && dir != string(filepath.Separator) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(errors.ErrCodeClientError, "cannot create local directory", err).
				WithOp("download").WithPath(entryPath)
		}
	}

	f, err := os.Create(localPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeClientError, "cannot create local file", err).
			WithOp("download").WithPath(entryPath)
	}

	w := integrity.NewWriter(f)
	buf := make([]byte, b.client.DownloadChunkSize())
	copyErr := copyChunks(w, body, buf, d.Size, progress)
	closeErr := f.Close()

	if copyErr != nil {
		os.Remove(localPath)
		return wrapWith(copyErr, "download", entryPath)
	}
	if closeErr != nil {
		os.Remove(localPath)
		return errors.Wrap(errors.ErrCodeClientError, "cannot finish local file", closeErr).
			WithOp("download").WithPath(entryPath)
	}

	if d.MD5 != "" && w.Sum() != d.MD5 {
		os.Remove(localPath)
		b.logger.Error("download integrity mismatch",
			"path", entryPath,
			"expected", d.MD5,
			"actual", w.Sum())
		return errors.New(errors.ErrCodeIntegrityMismatch,
			fmt.Sprintf("md5 mismatch: expected %s, got %s", d.MD5, w.Sum())).
			WithOp("download").WithPath(entryPath)
	}

	b.metrics.RecordTransfer("download", w.BytesWritten())
	b.logger.Debug("downloaded file",
		"path", entryPath,
		"bytes", w.BytesWritten())
	return nil
}

// copyChunks copies src to dst in bounded reads, reporting progress after
// each one plus a final (total, total) report.
func copyChunks(dst io.Writer, src io.Reader, buf []byte, total int64, progress ProgressFunc) error {
	var done int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return errors.Wrap(errors.ErrCodeClientError, "local write failed", werr)
			}
			done += int64(n)
			if progress != nil {
				progress(done, total)
			}
		}
		if rerr == io.EOF {
			if progress != nil && done != total {
				progress(done, total)
			}
			return nil
		}
		if rerr != nil {
			return errors.Wrap(errors.ErrCodeNetworkError, "stream interrupted", rerr)
		}
	}
}

// EnsureFolder creates (as needed) every folder along dirPath and returns
// the final folder's descriptor. Creating an already-existing folder is
// not an error.
func (b *Backend) EnsureFolder(ctx context.Context, dirPath string) (*ObjectDescriptor, error) {
	dirPath = normalizePath(dirPath)

	current, err := b.providerRoot(ctx)
	if err != nil {
		return nil, err
	}
	if dirPath == "" {
		return current, nil
	}

	for _, segment := range strings.Split(dirPath, "/") {
		children, err := b.listFolder(ctx, current)
		if err != nil {
			return nil, err
		}

		var next *ObjectDescriptor
		for _, child := range children {
			if child.Name == segment {
				next = child
				break
			}
		}
		if next != nil {
			if !next.IsDir() {
				return nil, errors.New(errors.ErrCodeConflict,
					fmt.Sprintf("%q exists and is a file", segment)).
					WithOp("mkdir").WithPath(dirPath)
			}
			current = next
			continue
		}

		created, err := b.createFolder(ctx, current, segment)
		if err != nil {
			return nil, err
		}
		current = created
	}
	return current, nil
}

func (b *Backend) createFolder(ctx context.Context, parent *ObjectDescriptor, name string) (*ObjectDescriptor, error) {
	if parent.links.NewFolder == "" {
		return nil, errors.New(errors.ErrCodeUnsupportedOperation, "parent has no folder-creation endpoint").
			WithOp("mkdir")
	}
	target, err := withQuery(parent.links.NewFolder, map[string]string{"kind": "folder", "name": name})
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data entity `json:"data"`
	}
	if err := b.client.PutJSON(ctx, target, &envelope); err != nil {
		return nil, wrapWith(err, "mkdir", name)
	}
	b.listings.Purge()
	d := envelope.Data.toDescriptor()
	d.Kind = KindFolder
	b.logger.Debug("created folder", "name", name)
	return d, nil
}

// UploadFromLocal uploads localPath to entryPath, creating missing remote
// parent folders. Files at or above the chunk threshold stream in bounded
// chunks with per-chunk timeouts; smaller files go up in one piece. After
// the upload the server-reported MD5 is checked against the local rolling
// hash.
func (b *Backend) UploadFromLocal(ctx context.Context, localPath, entryPath string, progress ProgressFunc) (*ObjectDescriptor, error) {
	start := time.Now()
	d, err := b.uploadFromLocal(ctx, localPath, entryPath, progress)
	b.metrics.RecordOperation("upload", time.Since(start), err == nil)
	return d, err
}

func (b *Backend) uploadFromLocal(ctx context.Context, localPath, entryPath string, progress ProgressFunc) (*ObjectDescriptor, error) {
	entryPath = normalizePath(entryPath)
	if entryPath == "" {
		return nil, errors.New(errors.ErrCodeClientError, "upload needs a destination file path").WithOp("upload")
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeClientError, "cannot read local file", err).
			WithOp("upload").WithPath(entryPath)
	}
	if info.IsDir() {
		return nil, errors.New(errors.ErrCodeClientError, "local source is a directory").
			WithOp("upload").WithPath(entryPath)
	}
	size := info.Size()

	dir, name := path.Split(entryPath)
	parent, err := b.EnsureFolder(ctx, dir)
	if err != nil {
		return nil, err
	}
	if parent.links.Upload == "" {
		return nil, errors.New(errors.ErrCodeUnsupportedOperation, "folder has no upload endpoint").
			WithOp("upload").WithPath(entryPath)
	}
	target, err := withQuery(parent.links.Upload, map[string]string{"kind": "file", "name": name})
	if err != nil {
		return nil, err
	}

	opts := transport.UploadOptions{Size: size}
	if size >= b.uploadChunkThreshold && b.uploadChunkThreshold > 0 {
		opts.ChunkSize = b.uploadChunkSize
	}
	if progress != nil {
		opts.Progress = func(sent, total int64) { progress(sent, total) }
	}

	// Each retry attempt reopens the file and hashes from the start, so
	// the digest always matches exactly what the successful attempt sent.
	var hashed *integrity.Reader
	open := func() (io.ReadCloser, error) {
		f, err := os.Open(localPath)
		if err != nil {
			return nil, err
		}
		hashed = integrity.NewReader(f)
		return readCloser{Reader: hashed, Closer: f}, nil
	}

	var envelope struct {
		Data entity `json:"data"`
	}
	if err := b.client.Upload(ctx, target, open, &envelope, opts); err != nil {
		return nil, wrapWith(err, "upload", entryPath)
	}
	b.listings.Purge()

	d := envelope.Data.toDescriptor()
	d.Path = entryPath

	if err := b.verifyUpload(ctx, d, hashed.Sum(), entryPath); err != nil {
		return nil, err
	}

	b.metrics.RecordTransfer("upload", size)
	b.logger.Debug("uploaded file", "path", entryPath, "bytes", size)
	return d, nil
}

// verifyUpload compares the server-reported MD5 with the locally computed
// one, re-statting through the info link when the upload response carries
// no hashes yet. A mismatch removes the remote copy so a corrupt object is
// not left behind.
func (b *Backend) verifyUpload(ctx context.Context, d *ObjectDescriptor, localSum, entryPath string) error {
	remoteSum := d.MD5
	if remoteSum == "" && d.links.Info != "" {
		var envelope struct {
			Data entity `json:"data"`
		}
		if err := b.client.GetJSON(ctx, d.links.Info, &envelope); err != nil {
			return wrapWith(err, "upload", entryPath)
		}
		refreshed := envelope.Data.toDescriptor()
		refreshed.Path = entryPath
		*d = *refreshed
		remoteSum = d.MD5
	}
	if remoteSum == "" {
		b.logger.Debug("server reported no hash, skipping verification", "path", entryPath)
		return nil
	}
	if remoteSum == localSum {
		return nil
	}

	if d.links.Delete != "" {
		if derr := b.client.Delete(ctx, d.links.Delete); derr != nil {
			b.logger.Warn("could not remove corrupt upload",
				"path", entryPath,
				"error", derr)
		}
	}
	return errors.New(errors.ErrCodeIntegrityMismatch,
		fmt.Sprintf("md5 mismatch: sent %s, server has %s", localSum, remoteSum)).
		WithOp("upload").WithPath(entryPath)
}

// Remove deletes the entry at path. Folders require recursive; the server
// deletes their contents in one call.
func (b *Backend) Remove(ctx context.Context, entryPath string, recursive bool) error {
	start := time.Now()
	err := b.remove(ctx, entryPath, recursive)
	b.metrics.RecordOperation("remove", time.Since(start), err == nil)
	return err
}

func (b *Backend) remove(ctx context.Context, entryPath string, recursive bool) error {
	d, err := b.resolve(ctx, entryPath)
	if err != nil {
		return err
	}
	if d.IsDir() && !recursive {
		return errors.New(errors.ErrCodeClientError, "folder removal requires recursive").
			WithOp("remove").WithPath(entryPath)
	}
	if d.links.Delete == "" {
		return errors.New(errors.ErrCodeUnsupportedOperation, "entry has no delete endpoint").
			WithOp("remove").WithPath(entryPath)
	}
	if err := b.client.Delete(ctx, d.links.Delete); err != nil {
		return wrapWith(err, "remove", entryPath)
	}
	b.listings.Purge()
	b.logger.Debug("removed entry", "path", entryPath, "kind", string(d.Kind))
	return nil
}

// withQuery adds parameters to an endpoint reference, preserving whatever
// query it already carries.
func withQuery(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeClientError, "malformed endpoint reference", err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// wrapWith stamps op and path onto a classified error without disturbing
// its code or retryability.
func wrapWith(err error, op, entryPath string) error {
	var oe *errors.OSFError
	if stderrors.As(err, &oe) {
		if oe.Op == "" {
			oe.Op = op
		}
		if oe.Path == "" {
			oe.Path = entryPath
		}
		return oe
	}
	return errors.Wrap(errors.ErrCodeClientError, "operation failed", err).
		WithOp(op).WithPath(entryPath)
}

type readCloser struct {
	io.Reader
	io.Closer
}
