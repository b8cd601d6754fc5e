package resolver

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"vsxreg/internal/model"
)

// Semver is a parsed major.minor.patch[-prerelease][+build] version.
type Semver struct {
	Major      int64
	Minor      int64
	Patch      int64
	PreRelease string // without the leading '-'
	Build      string // without the leading '+'
}

// IsPreRelease reports whether the version carries a pre-release tag.
func (s Semver) IsPreRelease() bool {
	return s.PreRelease != ""
}

// ParseSemver parses a full three-component semantic version.
// A leading 'v' is rejected, as are the shorthand forms "1" and "1.2".
func ParseSemver(version string) (Semver, error) {
	if strings.HasPrefix(version, "v") {
		return Semver{}, fmt.Errorf("%s is not a valid semantic version", version)
	}
	// golang.org/x/mod/semver requires the "v" prefix.
	v := "v" + version
	if !semver.IsValid(v) {
		return Semver{}, fmt.Errorf("%s is not a valid semantic version", version)
	}

	pre := semver.Prerelease(v)
	build := semver.Build(v)
	core := strings.TrimSuffix(strings.TrimSuffix(v, build), pre)
	parts := strings.Split(strings.TrimPrefix(core, "v"), ".")
	if len(parts) != 3 {
		return Semver{}, fmt.Errorf("%s is not a valid semantic version: expected major.minor.patch", version)
	}

	nums := make([]int64, 3)
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return Semver{}, fmt.Errorf("%s is not a valid semantic version: %w", version, err)
		}
		nums[i] = n
	}

	return Semver{
		Major:      nums[0],
		Minor:      nums[1],
		Patch:      nums[2],
		PreRelease: strings.TrimPrefix(pre, "-"),
		Build:      strings.TrimPrefix(build, "+"),
	}, nil
}

// CompareVersions compares two version strings by semantic precedence.
// The result is 0 if v == w, -1 if v < w, or +1 if v > w.
func CompareVersions(v, w string) (int, error) {
	if _, err := ParseSemver(v); err != nil {
		return 0, err
	}
	if _, err := ParseSemver(w); err != nil {
		return 0, err
	}
	return semver.Compare("v"+v, "v"+w), nil
}

// ApplySemver parses v.Version and fills the semver ordering columns.
func ApplySemver(v *model.ExtensionVersion) error {
	sv, err := ParseSemver(v.Version)
	if err != nil {
		return err
	}
	v.SemverMajor = sv.Major
	v.SemverMinor = sv.Minor
	v.SemverPatch = sv.Patch
	v.SemverPreRelease = sv.PreRelease
	v.SemverIsPreRelease = sv.IsPreRelease()
	return nil
}
