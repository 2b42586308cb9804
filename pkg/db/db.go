// Package db is the SQLite catalog derived from the harvested metadata tree.
package db

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
	_ "modernc.org/sqlite"

	"github.com/jvm-metadata/harvester/pkg/types"
)

const (
	dbFileName    = "jvm-metadata.db"
	SchemaVersion = 1
)

type DB struct {
	client *sql.DB
	dir    string
}

func Path(dir string) string {
	return filepath.Join(dir, dbFileName)
}

func New(dir string) (DB, error) {
	dbPath := Path(dir)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return DB{}, xerrors.Errorf("failed to mkdir: %w", err)
	}

	client, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return DB{}, xerrors.Errorf("can't open db: %w", err)
	}

	return DB{
		client: client,
		dir:    dir,
	}, nil
}

func (db *DB) Init() error {
	if _, err := db.client.Exec("PRAGMA foreign_keys=true"); err != nil {
		return xerrors.Errorf("failed to enable 'foreign_keys': %w", err)
	}
	if _, err := db.client.Exec("CREATE TABLE vendors(id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		return xerrors.Errorf("unable to create 'vendors' table: %w", err)
	}
	if _, err := db.client.Exec(`CREATE TABLE artifacts(vendor_id INTEGER, filename TEXT, version TEXT, release_type TEXT,
		java_version TEXT, jvm_impl TEXT, os TEXT, architecture TEXT, file_type TEXT, image_type TEXT, features TEXT,
		url TEXT, md5 TEXT, sha1 TEXT, sha256 TEXT, sha512 TEXT, size INTEGER,
		foreign key (vendor_id) references vendors(id))`); err != nil {
		return xerrors.Errorf("unable to create 'artifacts' table: %w", err)
	}

	if _, err := db.client.Exec("CREATE UNIQUE INDEX vendors_idx ON vendors(name)"); err != nil {
		return xerrors.Errorf("unable to create 'vendors_idx' index: %w", err)
	}
	if _, err := db.client.Exec("CREATE UNIQUE INDEX artifacts_idx ON artifacts(vendor_id, filename, version)"); err != nil {
		return xerrors.Errorf("unable to create 'artifacts_idx' index: %w", err)
	}
	if _, err := db.client.Exec("CREATE INDEX artifacts_sha256_idx ON artifacts(sha256)"); err != nil {
		return xerrors.Errorf("unable to create 'artifacts_sha256_idx' index: %w", err)
	}
	return nil
}

func (db *DB) Dir() string {
	return db.dir
}

func (db *DB) Close() error {
	return db.client.Close()
}

func (db *DB) VacuumDB() error {
	if _, err := db.client.Exec("VACUUM"); err != nil {
		return xerrors.Errorf("vacuum database error: %w", err)
	}
	return nil
}

// InsertArtifacts upserts records by identity. Later records win, so
// corrected metadata replaces what an earlier run produced.
func (db *DB) InsertArtifacts(artifacts []types.Metadata) error {
	tx, err := db.client.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range artifacts {
		if _, err = tx.Exec(`INSERT INTO vendors(name) VALUES (?) ON CONFLICT(name) DO NOTHING`, a.Vendor); err != nil {
			return xerrors.Errorf("unable to insert to 'vendors' table: %w", err)
		}
		if _, err = tx.Exec(`INSERT INTO artifacts(vendor_id, filename, version, release_type, java_version, jvm_impl, os,
			architecture, file_type, image_type, features, url, md5, sha1, sha256, sha512, size)
			VALUES ((SELECT id FROM vendors WHERE name=?), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(vendor_id, filename, version) DO UPDATE SET release_type=excluded.release_type,
			java_version=excluded.java_version, jvm_impl=excluded.jvm_impl, os=excluded.os,
			architecture=excluded.architecture, file_type=excluded.file_type, image_type=excluded.image_type,
			features=excluded.features, url=excluded.url, md5=excluded.md5, sha1=excluded.sha1,
			sha256=excluded.sha256, sha512=excluded.sha512, size=excluded.size`,
			a.Vendor, a.Filename, a.Version, a.ReleaseType, a.JavaVersion, a.JVMImpl, a.OS, a.Architecture,
			a.FileType, a.ImageType, strings.Join(a.Features, ","), a.URL, a.MD5, a.SHA1, a.SHA256, a.SHA512,
			a.Size); err != nil {
			return xerrors.Errorf("unable to insert to 'artifacts' table: %w", err)
		}
	}
	return tx.Commit()
}

const selectArtifacts = `SELECT v.name, a.filename, a.version, a.release_type, a.java_version, a.jvm_impl, a.os,
	a.architecture, a.file_type, a.image_type, a.features, a.url, a.md5, a.sha1, a.sha256, a.sha512, a.size
	FROM artifacts a JOIN vendors v ON v.id = a.vendor_id`

// SelectArtifact returns the record with the given identity, or a zero value.
func (db *DB) SelectArtifact(vendor, filename, version string) (types.Metadata, error) {
	row := db.client.QueryRow(selectArtifacts+` WHERE v.name = ? AND a.filename = ? AND a.version = ?`,
		vendor, filename, version)
	m, err := scan(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return types.Metadata{}, xerrors.Errorf("select artifact error: %w", err)
	}
	return m, nil
}

func (db *DB) SelectArtifactsBySHA256(sum string) ([]types.Metadata, error) {
	return db.query(selectArtifacts+` WHERE a.sha256 = ? ORDER BY v.name, a.filename`, strings.ToLower(sum))
}

func (db *DB) SelectArtifactsByVendor(vendor string) ([]types.Metadata, error) {
	return db.query(selectArtifacts+` WHERE v.name = ? ORDER BY a.filename, a.version`, vendor)
}

func (db *DB) CountArtifacts() (int, error) {
	var n int
	if err := db.client.QueryRow(`SELECT COUNT(*) FROM artifacts`).Scan(&n); err != nil {
		return 0, xerrors.Errorf("count error: %w", err)
	}
	return n, nil
}

func (db *DB) query(query string, args ...any) ([]types.Metadata, error) {
	rows, err := db.client.Query(query, args...)
	if err != nil {
		return nil, xerrors.Errorf("select artifacts error: %w", err)
	}
	defer rows.Close()

	var artifacts []types.Metadata
	for rows.Next() {
		m, err := scan(rows)
		if err != nil {
			return nil, xerrors.Errorf("scan row error: %w", err)
		}
		artifacts = append(artifacts, m)
	}
	return artifacts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (types.Metadata, error) {
	var m types.Metadata
	var features string
	if err := s.Scan(&m.Vendor, &m.Filename, &m.Version, &m.ReleaseType, &m.JavaVersion, &m.JVMImpl, &m.OS,
		&m.Architecture, &m.FileType, &m.ImageType, &features, &m.URL, &m.MD5, &m.SHA1, &m.SHA256, &m.SHA512,
		&m.Size); err != nil {
		return types.Metadata{}, err
	}
	m.Features = []string{}
	if features != "" {
		m.Features = strings.Split(features, ",")
	}
	return m, nil
}
