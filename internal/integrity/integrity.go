// Package integrity provides streaming content-hash computation for
// transfer verification. OSF records an MD5 for every stored file, so both
// transfer directions fold bytes into a rolling MD5 as they pass through
// and verification in the storage layer is symmetric.
package integrity

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
)

// Reader wraps an io.Reader and hashes every byte read through it without
// altering the stream.
type Reader struct {
	src  io.Reader
	hash hash.Hash
	n    int64
}

// NewReader creates a hashing wrapper around src.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, hash: md5.New()}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		// hash.Hash.Write never returns an error
		r.hash.Write(p[:n])
		r.n += int64(n)
	}
	return n, err
}

// Sum returns the hex digest of all bytes read so far.
func (r *Reader) Sum() string {
	return hex.EncodeToString(r.hash.Sum(nil))
}

// BytesRead returns the number of bytes forwarded so far.
func (r *Reader) BytesRead() int64 {
	return r.n
}

// Writer wraps an io.Writer and hashes every byte written through it.
type Writer struct {
	dst  io.Writer
	hash hash.Hash
	n    int64
}

// NewWriter creates a hashing wrapper around dst.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{dst: dst, hash: md5.New()}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if n > 0 {
		w.hash.Write(p[:n])
		w.n += int64(n)
	}
	return n, err
}

// Sum returns the hex digest of all bytes written so far.
func (w *Writer) Sum() string {
	return hex.EncodeToString(w.hash.Sum(nil))
}

// BytesWritten returns the number of bytes forwarded so far.
func (w *Writer) BytesWritten() int64 {
	return w.n
}

// SumBytes returns the hex MD5 digest of a byte slice. Used by tests and
// by callers that already hold the full content.
func SumBytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
