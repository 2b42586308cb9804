package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/jvm-metadata/harvester/pkg/builder"
	"github.com/jvm-metadata/harvester/pkg/db"
)

func newBuildDBCmd(global *globalOptions) *cobra.Command {
	var metadataDir, dbDir string
	cmd := &cobra.Command{
		Use:   "build-db",
		Short: "Build the SQLite catalog from the harvested metadata",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			logger := newLogger(global)

			// The catalog is always rebuilt from scratch.
			if err := os.Remove(db.Path(dbDir)); err != nil && !os.IsNotExist(err) {
				return xerrors.Errorf("unable to remove the old catalog: %w", err)
			}
			dbc, err := db.New(dbDir)
			if err != nil {
				return xerrors.Errorf("db create error: %w", err)
			}
			defer dbc.Close()
			if err = dbc.Init(); err != nil {
				return xerrors.Errorf("db init error: %w", err)
			}

			b := builder.NewBuilder(dbc, db.NewMetadata(dbDir), nil)
			if err = b.Build(metadataDir); err != nil {
				return xerrors.Errorf("db build error: %w", err)
			}
			logger.Info("Catalog written", slog.String("path", db.Path(dbDir)))
			return nil
		},
	}
	cmd.Flags().StringVar(&metadataDir, "metadata-dir", "metadata", "root of the metadata tree")
	cmd.Flags().StringVar(&dbDir, "db-dir", "catalog", "output directory of the catalog")
	return cmd
}
