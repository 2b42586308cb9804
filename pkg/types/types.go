package types

import (
	"fmt"
	"strings"
)

type ReleaseType string

const (
	GA ReleaseType = "ga"
	EA ReleaseType = "ea"

	// MetadataSuffix is appended to the canonical filename of per-item files.
	MetadataSuffix = ".json"
	// AggregateFile collects every record produced by one successful run.
	AggregateFile = "all.json"
	// VendorDir is the subdirectory of the metadata root holding vendor trees.
	VendorDir = "vendor"
)

// Metadata describes one distributable artifact.
// Identity is (Vendor, Filename, Version); every other field may be corrected later.
type Metadata struct {
	Vendor       string      `json:"vendor" validate:"required"`
	Filename     string      `json:"filename" validate:"required,excludesall=/\\"`
	ReleaseType  ReleaseType `json:"release_type" validate:"oneof=ga ea"`
	Version      string      `json:"version" validate:"required"`
	JavaVersion  string      `json:"java_version"`
	JVMImpl      string      `json:"jvm_impl"`
	OS           string      `json:"os"`
	Architecture string      `json:"architecture"`
	FileType     string      `json:"file_type"`
	ImageType    string      `json:"image_type"`
	Features     []string    `json:"features"`
	URL          string      `json:"url" validate:"omitempty,url"`
	MD5          string      `json:"md5,omitempty" validate:"omitempty,hexadecimal"`
	MD5File      string      `json:"md5_file,omitempty"`
	SHA1         string      `json:"sha1,omitempty" validate:"omitempty,hexadecimal"`
	SHA1File     string      `json:"sha1_file,omitempty"`
	SHA256       string      `json:"sha256,omitempty" validate:"omitempty,hexadecimal"`
	SHA256File   string      `json:"sha256_file,omitempty"`
	SHA512       string      `json:"sha512,omitempty" validate:"omitempty,hexadecimal"`
	SHA512File   string      `json:"sha512_file,omitempty"`
	Size         int64       `json:"size" validate:"gte=0"`
}

// Key returns the identity of the record.
func (m Metadata) Key() string {
	return fmt.Sprintf("%s|%s|%s", m.Vendor, m.Filename, m.Version)
}

// Equal reports whether both records describe the same artifact.
func (m Metadata) Equal(o Metadata) bool {
	return m.Vendor == o.Vendor && m.Filename == o.Filename && m.Version == o.Version
}

// MetadataFile returns the per-item file name for a canonical filename.
func MetadataFile(filename string) string {
	return filename + MetadataSuffix
}

// FileTypeOf returns the archive extension of a filename, keeping compound
// extensions such as "tar.gz" intact.
func FileTypeOf(filename string) string {
	lower := strings.ToLower(filename)
	for _, ext := range []string{"tar.gz", "tar.xz", "tar.z", "tar.bz2"} {
		if strings.HasSuffix(lower, "."+ext) {
			return ext
		}
	}
	if i := strings.LastIndex(lower, "."); i >= 0 && i < len(lower)-1 {
		return lower[i+1:]
	}
	return ""
}
