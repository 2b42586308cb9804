// Package hash derives stable 64-bit keys from record identities.
package hash

import (
	"github.com/cespare/xxhash/v2"

	"github.com/jvm-metadata/harvester/pkg/types"
)

const sep = "\x00"

// Identity hashes the (vendor, filename, version) identity of a record for
// de-duplication.
func Identity(m types.Metadata) uint64 {
	return VFV(m.Vendor, m.Filename, m.Version)
}

// VFV hashes Vendor + Filename + Version.
func VFV(vendor, filename, version string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(vendor)
	_, _ = d.WriteString(sep)
	_, _ = d.WriteString(filename)
	_, _ = d.WriteString(sep)
	_, _ = d.WriteString(version)
	return d.Sum64()
}
