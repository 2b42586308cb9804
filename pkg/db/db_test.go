package db_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvm-metadata/harvester/pkg/db"
	"github.com/jvm-metadata/harvester/pkg/dbtest"
	"github.com/jvm-metadata/harvester/pkg/types"
)

var (
	temurin17 = types.Metadata{
		Vendor:       "adoptium",
		Filename:     "OpenJDK17U-jdk_x64_linux_hotspot_17.0.9_9.tar.gz",
		ReleaseType:  types.GA,
		Version:      "17.0.9+9",
		JavaVersion:  "17.0",
		JVMImpl:      "hotspot",
		OS:           "linux",
		Architecture: "x86_64",
		FileType:     "tar.gz",
		ImageType:    "jdk",
		Features:     []string{},
		URL:          "https://example.com/OpenJDK17U-jdk_x64_linux_hotspot_17.0.9_9.tar.gz",
		SHA256:       "7b133bd9e8b1d9e7e4d8f5ae0d06a0f34b9f9f5a3d0d4e0b2a2e6ddc8c2ad8d0",
		Size:         191000000,
	}
	temurin21 = types.Metadata{
		Vendor:       "adoptium",
		Filename:     "OpenJDK21U-jre_aarch64_mac_hotspot_21.0.1_12.tar.gz",
		ReleaseType:  types.GA,
		Version:      "21.0.1+12",
		JavaVersion:  "21.0",
		JVMImpl:      "hotspot",
		OS:           "macosx",
		Architecture: "aarch64",
		FileType:     "tar.gz",
		ImageType:    "jre",
		Features:     []string{"large_heap"},
		URL:          "https://example.com/OpenJDK21U-jre_aarch64_mac_hotspot_21.0.1_12.tar.gz",
		Size:         42,
	}
	corretto17 = types.Metadata{
		Vendor:       "corretto",
		Filename:     "amazon-corretto-17.0.9.8.1-linux-x64.tar.gz",
		ReleaseType:  types.GA,
		Version:      "17.0.9.8.1",
		JavaVersion:  "17.0",
		JVMImpl:      "hotspot",
		OS:           "linux",
		Architecture: "x86_64",
		FileType:     "tar.gz",
		ImageType:    "jdk",
		Features:     []string{"musl", "x"},
		URL:          "https://corretto.aws/downloads/resources/17.0.9.8.1/amazon-corretto-17.0.9.8.1-linux-x64.tar.gz",
		MD5:          "d1b4c1e3f7e1a7b3c0d8a4b0d4f9e6c2",
		SHA256:       "7b133bd9e8b1d9e7e4d8f5ae0d06a0f34b9f9f5a3d0d4e0b2a2e6ddc8c2ad8d0",
	}
)

func TestSelectArtifact(t *testing.T) {
	tests := []struct {
		name      string
		vendor    string
		filename  string
		version   string
		want      types.Metadata
		assertErr assert.ErrorAssertionFunc
	}{
		{
			name:      "happy path",
			vendor:    "adoptium",
			filename:  temurin21.Filename,
			version:   "21.0.1+12",
			want:      temurin21,
			assertErr: assert.NoError,
		},
		{
			name:      "wrong version",
			vendor:    "adoptium",
			filename:  temurin21.Filename,
			version:   "21.0.2+13",
			want:      types.Metadata{},
			assertErr: assert.NoError,
		},
		{
			name:      "wrong vendor",
			vendor:    "corretto",
			filename:  temurin21.Filename,
			version:   "21.0.1+12",
			want:      types.Metadata{},
			assertErr: assert.NoError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbc := dbtest.InitDB(t, []types.Metadata{temurin17, temurin21, corretto17})

			got, err := dbc.SelectArtifact(tt.vendor, tt.filename, tt.version)
			tt.assertErr(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectArtifactsBySHA256(t *testing.T) {
	dbc := dbtest.InitDB(t, []types.Metadata{temurin17, temurin21, corretto17})

	got, err := dbc.SelectArtifactsBySHA256("7B133BD9E8B1D9E7E4D8F5AE0D06A0F34B9F9F5A3D0D4E0B2A2E6DDC8C2AD8D0")
	require.NoError(t, err)
	assert.Equal(t, []types.Metadata{temurin17, corretto17}, got)

	got, err = dbc.SelectArtifactsBySHA256("0000")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInsertArtifactsUpserts(t *testing.T) {
	dbc := dbtest.InitDB(t, []types.Metadata{temurin17, temurin21})

	corrected := temurin17
	corrected.Size = 1
	corrected.Features = []string{"jfr"}
	require.NoError(t, dbc.InsertArtifacts([]types.Metadata{corrected}))

	got, err := dbc.SelectArtifactsByVendor("adoptium")
	require.NoError(t, err)
	assert.Equal(t, []types.Metadata{corrected, temurin21}, got)

	n, err := dbc.CountArtifacts()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetadata(t *testing.T) {
	dir := t.TempDir()
	c := db.NewMetadata(dir)

	_, err := c.Get()
	require.Error(t, err)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	want := db.Metadata{
		Version:    db.SchemaVersion,
		NextUpdate: now.Add(24 * time.Hour),
		UpdatedAt:  now,
		Artifacts:  3,
	}
	require.NoError(t, c.Update(want))

	got, err := c.Get()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.FileExists(t, db.MetadataPath(dir))
}
