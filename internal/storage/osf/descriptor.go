package osf

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/osffs/osffs/pkg/errors"
)

// Kind distinguishes the two entry kinds the API reports.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// entityLinks are the endpoint references carried by a metadata response.
// All mutating requests target one of these rather than a constructed URL.
type entityLinks struct {
	Info      string
	Download  string
	Upload    string
	Delete    string
	NewFolder string
}

// ObjectDescriptor is the normalized view of one remote entry. Folders are
// virtual: they exist only as listing containers and carry no size or
// hashes.
type ObjectDescriptor struct {
	ID       string
	Name     string
	Path     string // provider-relative, no leading slash
	Kind     Kind
	Size     int64
	MD5      string
	SHA256   string
	Modified time.Time

	links entityLinks
}

// IsDir reports whether the entry is a folder.
func (d *ObjectDescriptor) IsDir() bool {
	return d.Kind == KindFolder
}

// entity mirrors the JSON:API resource shape for files and folders.
type entity struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Kind             string `json:"kind"`
		Name             string `json:"name"`
		Path             string `json:"path"`
		MaterializedPath string `json:"materialized_path"`
		Size             *int64 `json:"size"`
		DateModified     string `json:"date_modified"`
		Provider         string `json:"provider"`
		Extra            struct {
			Hashes struct {
				MD5    string `json:"md5"`
				SHA256 string `json:"sha256"`
			} `json:"hashes"`
		} `json:"extra"`
	} `json:"attributes"`
	Links struct {
		Info      string `json:"info"`
		Download  string `json:"download"`
		Upload    string `json:"upload"`
		Delete    string `json:"delete"`
		NewFolder string `json:"new_folder"`
	} `json:"links"`
}

// modifiedLayouts covers the timestamp forms the API emits: RFC 3339 with
// and without a zone designator.
var modifiedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func parseModified(value string) time.Time {
	for _, layout := range modifiedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (e *entity) toDescriptor() *ObjectDescriptor {
	d := &ObjectDescriptor{
		ID:       e.ID,
		Name:     e.Attributes.Name,
		Path:     strings.Trim(e.Attributes.MaterializedPath, "/"),
		Kind:     Kind(e.Attributes.Kind),
		MD5:      e.Attributes.Extra.Hashes.MD5,
		SHA256:   e.Attributes.Extra.Hashes.SHA256,
		Modified: parseModified(e.Attributes.DateModified),
		links: entityLinks{
			Info:      e.Links.Info,
			Download:  e.Links.Download,
			Upload:    e.Links.Upload,
			Delete:    e.Links.Delete,
			NewFolder: e.Links.NewFolder,
		},
	}
	if e.Attributes.Size != nil {
		d.Size = *e.Attributes.Size
	}
	if d.Path == "" {
		d.Path = d.Name
	}
	return d
}

func descriptorFromRaw(raw json.RawMessage) (*ObjectDescriptor, error) {
	var e entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, errors.Wrap(errors.ErrCodeClientError, "malformed file entity", err)
	}
	return e.toDescriptor(), nil
}
