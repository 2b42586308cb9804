// Package checksum computes artifact digests and parses detached checksum files.
package checksum

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"strings"

	"golang.org/x/xerrors"
)

type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

// Algorithms lists the supported digests in canonical order.
var Algorithms = []Algorithm{MD5, SHA1, SHA256, SHA512}

// HexLen returns the length of the hex encoded digest.
func (a Algorithm) HexLen() int {
	switch a {
	case MD5:
		return 32
	case SHA1:
		return 40
	case SHA256:
		return 64
	case SHA512:
		return 128
	}
	return 0
}

func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	}
	return nil, xerrors.Errorf("unsupported checksum algorithm %q", a)
}

// Compute reads r once and returns the lower-case hex digest for every algorithm.
func Compute(r io.Reader, algos ...Algorithm) (map[Algorithm]string, error) {
	hashes := make(map[Algorithm]hash.Hash, len(algos))
	writers := make([]io.Writer, 0, len(algos))
	for _, a := range algos {
		h, err := a.New()
		if err != nil {
			return nil, err
		}
		hashes[a] = h
		writers = append(writers, h)
	}
	if _, err := io.Copy(io.MultiWriter(writers...), r); err != nil {
		return nil, xerrors.Errorf("digest read error: %w", err)
	}

	sums := make(map[Algorithm]string, len(hashes))
	for a, h := range hashes {
		sums[a] = hex.EncodeToString(h.Sum(nil))
	}
	return sums, nil
}

// Parse extracts the digest from the content of a detached checksum file.
// It returns "" when no token of the expected length is found.
func Parse(algo Algorithm, data []byte) string {
	data = bytes.TrimSpace(data)

	// Handle empty checksum files
	if len(data) == 0 {
		return ""
	}

	// Files are usually "<digest>  <filename>" but some vendors put the file
	// name first or add extra columns.
	for _, part := range strings.Fields(string(data)) {
		if len(part) == algo.HexLen() && isHexString(part) {
			return strings.ToLower(part)
		}
	}
	return ""
}

// Format renders a digest in the sha256sum style "<digest>  <filename>\n".
func Format(sum, filename string) string {
	return sum + "  " + filename + "\n"
}

// isHexString checks if a string contains only hex characters
func isHexString(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
