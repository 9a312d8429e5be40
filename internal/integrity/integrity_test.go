package integrity

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderHashesWithoutAlteringBytes(t *testing.T) {
	payload := []byte("the quick brown fox")
	r := NewReader(bytes.NewReader(payload))

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	want := md5.Sum(payload)
	assert.Equal(t, hex.EncodeToString(want[:]), r.Sum())
	assert.Equal(t, int64(len(payload)), r.BytesRead())
}

func TestReaderSmallChunks(t *testing.T) {
	payload := strings.Repeat("abc123", 1000)
	r := NewReader(strings.NewReader(payload))

	// Drain in 7-byte reads so hashing crosses chunk boundaries.
	buf := make([]byte, 7)
	var out bytes.Buffer
	for {
		n, err := r.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	assert.Equal(t, payload, out.String())
	assert.Equal(t, SumBytes([]byte(payload)), r.Sum())
}

func TestWriterHashes(t *testing.T) {
	var dst bytes.Buffer
	w := NewWriter(&dst)

	// Every byte value 0-255 must round-trip through the hash untouched.
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}

	n, err := w.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, dst.Bytes())
	assert.Equal(t, SumBytes(payload), w.Sum())
	assert.Equal(t, int64(256), w.BytesWritten())
}

func TestEmptyStreamDigest(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	_, err := io.ReadAll(r)
	require.NoError(t, err)

	// MD5 of the empty input.
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", r.Sum())
	assert.Equal(t, int64(0), r.BytesRead())
}

func TestReaderAndWriterAgree(t *testing.T) {
	payload := []byte("symmetric verification payload")

	r := NewReader(bytes.NewReader(payload))
	var sink bytes.Buffer
	w := NewWriter(&sink)

	_, err := io.Copy(w, r)
	require.NoError(t, err)

	assert.Equal(t, r.Sum(), w.Sum())
}
