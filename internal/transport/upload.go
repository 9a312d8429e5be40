package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/osffs/osffs/pkg/errors"
)

// UploadOptions controls one streaming upload.
type UploadOptions struct {
	// Size is the total body size in bytes; zero is a valid size for
	// empty objects.
	Size int64

	// ChunkSize splits the body into bounded chunks. Zero or negative
	// means single-chunk mode: the whole body counts as one chunk.
	ChunkSize int64

	// ChunkTimeout is the per-chunk deadline; the watchdog resets every
	// time a chunk completes. Zero falls back to the configured upload
	// chunk timeout.
	ChunkTimeout time.Duration

	// Progress, when set, is invoked synchronously after each completed
	// chunk with (bytesSent, totalBytes).
	Progress func(sent, total int64)
}

// Upload streams a PUT to url with retry. open re-creates the body for
// each attempt, which is why Upload takes a factory rather than a reader.
// The response entity is decoded into out when non-nil.
func (c *Client) Upload(ctx context.Context, url string, open func() (io.ReadCloser, error), out interface{}, opts UploadOptions) error {
	chunkTimeout := opts.ChunkTimeout
	if chunkTimeout <= 0 {
		chunkTimeout = c.uploadChunkTime
	}

	return c.retryer.Do(ctx, func(ctx context.Context) error {
		body, err := open()
		if err != nil {
			return errors.Wrap(errors.ErrCodeClientError, "cannot open upload source", err)
		}
		defer body.Close()

		attemptCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		// The watchdog trips when one chunk stalls past its deadline;
		// completed chunks keep pushing it forward so total transfer
		// time is unbounded while per-chunk time is not.
		var timedOut atomic.Bool
		watchdog := time.AfterFunc(chunkTimeout, func() {
			timedOut.Store(true)
			cancel()
		})
		defer watchdog.Stop()

		src := &chunkReader{
			src:      body,
			chunk:    opts.ChunkSize,
			total:    opts.Size,
			progress: opts.Progress,
			onChunk:  func() { watchdog.Reset(chunkTimeout) },
		}

		req, err := c.newRequest(attemptCtx, http.MethodPut, c.ResolveURL(url), src)
		if err != nil {
			return err
		}
		req.ContentLength = opts.Size
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := c.do(req)
		if err != nil {
			if timedOut.Load() {
				return errors.Wrap(errors.ErrCodeOperationTimeout, "upload chunk timed out", err)
			}
			return err
		}
		defer resp.Body.Close()

		if out == nil {
			return drainBody(resp.Body)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(errors.ErrCodeClientError, "malformed API response", err)
		}
		return nil
	})
}

// chunkReader forwards bytes from src while accounting for chunk
// boundaries: after every completed chunk (including a final partial one)
// it reports progress and pokes the watchdog.
type chunkReader struct {
	src      io.Reader
	chunk    int64
	total    int64
	progress func(sent, total int64)
	onChunk  func()

	sent     int64
	inChunk  int64
	notified bool // progress already reported for an empty body
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.chunk > 0 {
		room := r.chunk - r.inChunk
		if int64(len(p)) > room {
			p = p[:room]
		}
	}

	n, err := r.src.Read(p)
	if n > 0 {
		r.sent += int64(n)
		r.inChunk += int64(n)
		r.notified = true
	}

	if r.chunk > 0 && r.inChunk >= r.chunk {
		r.completeChunk()
	}
	if err == io.EOF {
		if r.inChunk > 0 || !r.notified {
			// Final partial chunk, or a zero-byte body that still
			// deserves one progress report.
			r.notified = true
			r.completeChunk()
		}
	}
	return n, err
}

func (r *chunkReader) completeChunk() {
	r.inChunk = 0
	if r.progress != nil {
		r.progress(r.sent, r.total)
	}
	if r.onChunk != nil {
		r.onChunk()
	}
}
