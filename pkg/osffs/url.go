package osffs

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/osffs/osffs/pkg/errors"
)

// URLScheme is the scheme of remote URLs this filesystem understands.
const URLScheme = "osf"

// Remote is a parsed osf:// URL: the project holding the data and the
// provider-relative path inside it.
type Remote struct {
	Project string
	Path    string
}

// ParseURL parses "osf://project/path/inside" into its components.
func ParseURL(raw string) (Remote, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Remote{}, errors.Wrap(errors.ErrCodeInvalidConfig, "malformed remote URL", err)
	}
	if u.Scheme != URLScheme {
		return Remote{}, errors.New(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("unsupported URL scheme %q, expected %q", u.Scheme, URLScheme))
	}
	if u.Host == "" {
		return Remote{}, errors.New(errors.ErrCodeInvalidConfig, "remote URL is missing the project identifier")
	}
	return Remote{
		Project: u.Host,
		Path:    NormalizePath(u.Path),
	}, nil
}

// BuildURL renders a Remote back into osf:// form.
func BuildURL(r Remote) string {
	p := NormalizePath(r.Path)
	if p == "" {
		return fmt.Sprintf("%s://%s", URLScheme, r.Project)
	}
	return fmt.Sprintf("%s://%s/%s", URLScheme, r.Project, p)
}

// NormalizePath strips leading/trailing slashes and collapses repeats, so
// "/a//b/" and "a/b" address the same entry.
func NormalizePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

// HashPath maps a content hash to its storage location: the first two hex
// characters become a fan-out folder, the rest the file name.
func HashPath(hash string) (string, error) {
	if len(hash) < 3 {
		return "", errors.New(errors.ErrCodeInvalidConfig, "hash too short for content addressing")
	}
	return hash[:2] + "/" + hash[2:], nil
}

// FormatFileSize renders a byte count for humans ("1.5 MB").
func FormatFileSize(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if value < 1024.0 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= 1024.0
	}
	return fmt.Sprintf("%.1f PB", value)
}
