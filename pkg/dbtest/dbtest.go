package dbtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jvm-metadata/harvester/pkg/db"
	"github.com/jvm-metadata/harvester/pkg/types"
)

// InitDB returns an initialized catalog in a temporary directory holding artifacts.
func InitDB(t *testing.T, artifacts []types.Metadata) db.DB {
	t.Helper()
	dbc, err := db.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbc.Close() })

	require.NoError(t, dbc.Init())
	if len(artifacts) > 0 {
		require.NoError(t, dbc.InsertArtifacts(artifacts))
	}
	return dbc
}
