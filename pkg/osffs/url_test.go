package osffs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	r, err := ParseURL("osf://abc123/data/file.csv")
	require.NoError(t, err)
	assert.Equal(t, "abc123", r.Project)
	assert.Equal(t, "data/file.csv", r.Path)

	r, err = ParseURL("osf://abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", r.Project)
	assert.Empty(t, r.Path)
}

func TestParseURLRejectsOtherSchemes(t *testing.T) {
	for _, raw := range []string{"s3://bucket/key", "https://osf.io/abc123", "osf://"} {
		_, err := ParseURL(raw)
		assert.Error(t, err, raw)
	}
}

func TestBuildURLRoundTrips(t *testing.T) {
	for _, raw := range []string{"osf://abc123/data/file.csv", "osf://abc123"} {
		r, err := ParseURL(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, BuildURL(r))
	}

	assert.Equal(t, "osf://p1/a/b", BuildURL(Remote{Project: "p1", Path: "/a//b/"}))
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"":          "",
		"/":         "",
		"a/b":       "a/b",
		"/a/b/":     "a/b",
		"a//b///c":  "a/b/c",
		"  /a/b/  ": "a/b",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePath(in), "input %q", in)
	}
}

func TestHashPath(t *testing.T) {
	p, err := HashPath("5d41402abc4b2a76b9719d911017c592")
	require.NoError(t, err)
	assert.Equal(t, "5d/41402abc4b2a76b9719d911017c592", p)

	_, err = HashPath("ab")
	assert.Error(t, err)
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "0.0 B", FormatFileSize(0))
	assert.Equal(t, "512.0 B", FormatFileSize(512))
	assert.Equal(t, "1.5 KB", FormatFileSize(1536))
	assert.Equal(t, "5.0 MB", FormatFileSize(5*1024*1024))
	assert.Equal(t, "2.0 GB", FormatFileSize(2*1024*1024*1024))
}
