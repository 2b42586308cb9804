package db

import (
	"path/filepath"
	"time"

	"golang.org/x/xerrors"

	"github.com/jvm-metadata/harvester/pkg/fileutil"
)

const metadataFile = "metadata.json"

// Metadata describes a built catalog.
type Metadata struct {
	Version    int `json:",omitempty"`
	NextUpdate time.Time
	UpdatedAt  time.Time
	// Artifacts is the number of records in the catalog.
	Artifacts int
}

// Client reads and writes the metadata file next to the catalog.
type Client struct {
	path string
}

// MetadataPath returns the metadata file path
func MetadataPath(dir string) string {
	return filepath.Join(dir, metadataFile)
}

func NewMetadata(dir string) Client {
	return Client{
		path: MetadataPath(dir),
	}
}

// Get returns the catalog metadata
func (c *Client) Get() (Metadata, error) {
	var meta Metadata
	if err := fileutil.ReadJSON(c.path, &meta); err != nil {
		return Metadata{}, xerrors.Errorf("unable to read metadata: %w", err)
	}
	return meta, nil
}

func (c *Client) Update(meta Metadata) error {
	if err := fileutil.WriteJSON(c.path, meta); err != nil {
		return xerrors.Errorf("unable to write metadata: %w", err)
	}
	return nil
}
