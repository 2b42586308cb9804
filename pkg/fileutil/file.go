package fileutil

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

// Walk calls walkFn for every non-empty regular file under root whose name is
// accepted by match. A nil match accepts every file.
func Walk(root string, match func(name string) bool, walkFn func(r io.Reader, path string) error) error {
	if err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		} else if d.IsDir() || (match != nil && !match(d.Name())) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return xerrors.Errorf("file info error: %w", err)
		}

		if info.Size() == 0 {
			slog.Warn("Skipping empty file", slog.String("path", path))
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return xerrors.Errorf("failed to open file: %w", err)
		}
		defer f.Close()

		return walkFn(f, path)
	}); err != nil {
		return xerrors.Errorf("file walk error: %w", err)
	}
	return nil
}

// Count counts the files under root accepted by match.
func Count(root string, match func(name string) bool) (int, error) {
	var count int
	err := Walk(root, match, func(_ io.Reader, _ string) error {
		count++
		return nil
	})
	if err != nil {
		return 0, xerrors.Errorf("file count error: %w", err)
	}
	return count, nil
}

// Exists reports whether a regular file exists at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// WriteJSON writes v as indented JSON through WriteAtomic.
func WriteJSON(filePath string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return xerrors.Errorf("failed to marshal JSON: %w", err)
	}
	return WriteAtomic(filePath, func(w io.Writer) error {
		_, err := w.Write(b)
		return err
	})
}

// WriteAtomic creates the parent directories of filePath, lets write fill a
// temporary file in the same directory and renames it into place, so readers
// never observe a partially written file. Nothing is left behind on error.
func WriteAtomic(filePath string, write func(w io.Writer) error) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return xerrors.Errorf("unable to create a directory: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".*")
	if err != nil {
		return xerrors.Errorf("unable to open a temp file for %s: %w", filePath, err)
	}
	tmp := f.Name()

	err = write(f)
	err = errors.Join(err, f.Close())
	if err != nil {
		_ = os.Remove(tmp)
		return xerrors.Errorf("failed to save a file: %w", err)
	}
	if err = os.Rename(tmp, filePath); err != nil {
		_ = os.Remove(tmp)
		return xerrors.Errorf("failed to move %s into place: %w", filePath, err)
	}
	return nil
}

// ReadJSON decodes the JSON file at filePath into v.
func ReadJSON(filePath string, v any) error {
	b, err := os.ReadFile(filePath)
	if err != nil {
		return xerrors.Errorf("unable to read file %s: %w", filePath, err)
	}
	if err = json.Unmarshal(b, v); err != nil {
		return xerrors.Errorf("unable to unmarshal file %s: %w", filePath, err)
	}
	return nil
}
