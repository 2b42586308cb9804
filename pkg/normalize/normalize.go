// Package normalize maps vendor vocabularies onto the canonical metadata schema.
//
// All functions are pure and total. The empty string stands for a missing value.
package normalize

import (
	"slices"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/jvm-metadata/harvester/pkg/types"
)

const Unknown = "unknown"

// archAliases maps every known alias onto its canonical architecture.
var archAliases = map[string]string{}

func init() {
	groups := map[string][]string{
		"x86_64":         {"amd64", "x64", "x86_64", "x86-64"},
		"i686":           {"x32", "x86", "x86_32", "x86-32", "i386", "i586", "i686"},
		"aarch64":        {"aarch64", "arm64"},
		"arm32":          {"arm", "arm32", "armv7", "aarch32sf"},
		"arm32-vfp-hflt": {"arm32-vfp-hflt", "aarch32hf"},
		"ppc32":          {"ppc"},
		"ppc64":          {"ppc64"},
		"ppc64le":        {"ppc64le"},
		"s390x":          {"s390", "s390x"},
		"sparcv9":        {"sparcv9"},
		"riscv64":        {"riscv64"},
	}
	for canonical, aliases := range groups {
		for _, alias := range aliases {
			archAliases[alias] = canonical
		}
	}
}

// OS returns the canonical operating system name.
func OS(raw string) string {
	if raw == "" {
		return Unknown
	}
	lower := strings.ToLower(raw)
	switch {
	// "darwin" contains "win", so the mac rule must come first.
	case strings.Contains(lower, "mac"), strings.Contains(lower, "osx"), strings.Contains(lower, "darwin"):
		return "macosx"
	case strings.Contains(lower, "win"):
		return "windows"
	case strings.Contains(lower, "linux"):
		return "linux"
	case lower == "solaris":
		return "solaris"
	case lower == "aix":
		return "aix"
	}
	return "unknown-os-" + lower
}

// Arch returns the canonical CPU architecture.
func Arch(raw string) string {
	if raw == "" {
		return Unknown
	}
	lower := strings.ToLower(raw)
	if canonical, ok := archAliases[lower]; ok {
		return canonical
	}
	return "unknown-arch-" + lower
}

// ReleaseType classifies a vendor release label.
// Any label containing "ea" is early access, which also catches words such as
// "release". Historical data was produced with this rule and must stay stable.
func ReleaseType(raw string) types.ReleaseType {
	if strings.Contains(strings.ToLower(raw), "ea") {
		return types.EA
	}
	return types.GA
}

// JavaVersion derives the canonical major.minor version from a vendor version
// string, e.g. "17.0.2+8" -> "17.0", "1.8.0_292" -> "8.0", "21-ea+3" -> "21".
func JavaVersion(raw string) string {
	s := strings.TrimLeftFunc(raw, func(r rune) bool { return !unicode.IsDigit(r) })
	if i := strings.IndexAny(s, "+-"); i >= 0 {
		s = s[:i]
	}
	parts := lo.Filter(strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == '_' }),
		func(p string, _ int) bool { return p != "" && strings.IndexFunc(p, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 })
	if len(parts) == 0 {
		return Unknown
	}
	// Legacy scheme: 1.8.0_292 is Java 8.
	if parts[0] == "1" && len(parts) > 1 {
		parts = parts[1:]
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + "." + parts[1]
}

// Features returns the feature tags as a sorted, de-duplicated, lower-case set.
func Features(raw []string) []string {
	features := lo.Uniq(lo.FilterMap(raw, func(f string, _ int) (string, bool) {
		f = strings.ToLower(strings.TrimSpace(f))
		return f, f != ""
	}))
	slices.Sort(features)
	return features
}

// Metadata returns a copy of m with every vocabulary field canonicalized.
func Metadata(m types.Metadata) types.Metadata {
	m.OS = OS(m.OS)
	m.Architecture = Arch(m.Architecture)
	m.ReleaseType = ReleaseType(string(m.ReleaseType))
	if m.JavaVersion == "" {
		m.JavaVersion = JavaVersion(m.Version)
	}
	if m.FileType == "" {
		m.FileType = types.FileTypeOf(m.Filename)
	}
	m.ImageType = strings.ToLower(m.ImageType)
	m.JVMImpl = strings.ToLower(m.JVMImpl)
	m.Features = Features(m.Features)
	return m
}
