package builder

import (
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/xerrors"
	"k8s.io/utils/clock"

	"github.com/jvm-metadata/harvester/pkg/db"
	"github.com/jvm-metadata/harvester/pkg/fileutil"
	"github.com/jvm-metadata/harvester/pkg/types"
)

const (
	updateInterval = time.Hour * 24 // vendors publish daily at most
	batchSize      = 1000
)

type Builder struct {
	db    db.DB
	meta  db.Client
	clock clock.Clock
}

func NewBuilder(dbc db.DB, meta db.Client, clk clock.Clock) Builder {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return Builder{
		db:    dbc,
		meta:  meta,
		clock: clk,
	}
}

func isAggregate(name string) bool {
	return name == types.AggregateFile
}

// Build loads the aggregate file of every vendor under metadataDir into the catalog.
func (b *Builder) Build(metadataDir string) error {
	vendorDir := filepath.Join(metadataDir, types.VendorDir)
	count, err := fileutil.Count(vendorDir, isAggregate)
	if err != nil {
		return xerrors.Errorf("count error: %w", err)
	}
	bar := pb.StartNew(count)
	defer slog.Info("Build completed")
	defer bar.Finish()

	var artifacts []types.Metadata
	if err = fileutil.Walk(vendorDir, isAggregate, func(r io.Reader, path string) error {
		var records []types.Metadata
		if err := json.NewDecoder(r).Decode(&records); err != nil {
			return xerrors.Errorf("failed to decode %s: %w", path, err)
		}
		slog.Debug("Loaded aggregate file", slog.String("path", path), slog.Int("records", len(records)))
		artifacts = append(artifacts, records...)
		bar.Increment()

		if len(artifacts) > batchSize {
			if err := b.db.InsertArtifacts(artifacts); err != nil {
				return xerrors.Errorf("failed to insert artifacts to db: %w", err)
			}
			artifacts = []types.Metadata{}
		}
		return nil
	}); err != nil {
		return xerrors.Errorf("walk error: %w", err)
	}

	// Insert the remaining artifacts
	if err = b.db.InsertArtifacts(artifacts); err != nil {
		return xerrors.Errorf("failed to insert artifacts to db: %w", err)
	}

	if err = b.db.VacuumDB(); err != nil {
		return xerrors.Errorf("failed to vacuum db: %w", err)
	}

	total, err := b.db.CountArtifacts()
	if err != nil {
		return xerrors.Errorf("failed to count artifacts: %w", err)
	}

	// save metadata
	metaDB := db.Metadata{
		Version:    db.SchemaVersion,
		NextUpdate: b.clock.Now().UTC().Add(updateInterval),
		UpdatedAt:  b.clock.Now().UTC(),
		Artifacts:  total,
	}
	if err = b.meta.Update(metaDB); err != nil {
		return xerrors.Errorf("failed to update metadata: %w", err)
	}

	return nil
}
