package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type progressCall struct {
	sent, total int64
}

func TestUploadReportsProgressPerChunk(t *testing.T) {
	payload := bytes.Repeat([]byte{0xA5}, 12)

	var received []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		received, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data": {"id": "new-file"}}`))
	}))
	defer server.Close()

	client := New(newTestConfig(server.URL), nil, nil)

	var calls []progressCall
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	err := client.Upload(context.Background(), "upload/", func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}, &out, UploadOptions{
		Size:      int64(len(payload)),
		ChunkSize: 5,
		Progress: func(sent, total int64) {
			calls = append(calls, progressCall{sent, total})
		},
	})
	require.NoError(t, err)

	assert.Equal(t, payload, received)
	assert.Equal(t, "new-file", out.Data.ID)
	// 12 bytes in 5-byte chunks: 5, 5, and a final partial 2.
	assert.Equal(t, []progressCall{{5, 12}, {10, 12}, {12, 12}}, calls)
}

func TestUploadSingleChunkMode(t *testing.T) {
	payload := []byte("single shot body")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data": {}}`))
	}))
	defer server.Close()

	client := New(newTestConfig(server.URL), nil, nil)

	var calls []progressCall
	err := client.Upload(context.Background(), "upload/", func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}, nil, UploadOptions{
		Size: int64(len(payload)),
		Progress: func(sent, total int64) {
			calls = append(calls, progressCall{sent, total})
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []progressCall{{int64(len(payload)), int64(len(payload))}}, calls)
}

func TestUploadEmptyBodyReportsOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data": {}}`))
	}))
	defer server.Close()

	client := New(newTestConfig(server.URL), nil, nil)

	var calls []progressCall
	err := client.Upload(context.Background(), "upload/", func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}, nil, UploadOptions{
		Size: 0,
		Progress: func(sent, total int64) {
			calls = append(calls, progressCall{sent, total})
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []progressCall{{0, 0}}, calls)
}

func TestUploadReopensBodyOnRetry(t *testing.T) {
	payload := []byte("retried payload must arrive whole")

	var attempts atomic.Int32
	var lastBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		lastBody = body
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data": {}}`))
	}))
	defer server.Close()

	client := New(newTestConfig(server.URL), nil, nil)

	var opens atomic.Int32
	err := client.Upload(context.Background(), "upload/", func() (io.ReadCloser, error) {
		opens.Add(1)
		return io.NopCloser(bytes.NewReader(payload)), nil
	}, nil, UploadOptions{Size: int64(len(payload))})
	require.NoError(t, err)

	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, int32(2), opens.Load(), "each attempt reopens a fresh body")
	assert.Equal(t, payload, lastBody)
}
