// Package resolver selects "the" version of an extension for a request.
package resolver

import (
	"sort"

	"vsxreg/internal/model"
)

// Version aliases accepted wherever a concrete version string is.
const (
	AliasLatest     = "latest"
	AliasPreRelease = "pre-release"
)

// IsAlias reports whether s is a version alias rather than a concrete version.
func IsAlias(s string) bool {
	return s == AliasLatest || s == AliasPreRelease
}

// Aliases lists every version alias.
var Aliases = []string{AliasLatest, AliasPreRelease}

// Compare orders versions newest first. It returns a negative number when a
// sorts before b, positive when after, and 0 for a full tie.
//
// Keys, in order: semver major, minor, patch (descending); semver
// pre-release-ness (stable first); universal build first; target platform
// name (ascending); publication timestamp (descending).
func Compare(a, b *model.ExtensionVersion) int {
	if c := cmpDesc(a.SemverMajor, b.SemverMajor); c != 0 {
		return c
	}
	if c := cmpDesc(a.SemverMinor, b.SemverMinor); c != 0 {
		return c
	}
	if c := cmpDesc(a.SemverPatch, b.SemverPatch); c != 0 {
		return c
	}
	if a.SemverIsPreRelease != b.SemverIsPreRelease {
		if a.SemverIsPreRelease {
			return 1
		}
		return -1
	}
	if a.IsUniversal() != b.IsUniversal() {
		if a.IsUniversal() {
			return -1
		}
		return 1
	}
	if a.TargetPlatform != b.TargetPlatform {
		if a.TargetPlatform < b.TargetPlatform {
			return -1
		}
		return 1
	}
	switch {
	case a.Timestamp.After(b.Timestamp):
		return -1
	case a.Timestamp.Before(b.Timestamp):
		return 1
	}
	return 0
}

func cmpDesc(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

// Sort returns a copy of versions in resolution order, newest first.
func Sort(versions []*model.ExtensionVersion) []*model.ExtensionVersion {
	sorted := make([]*model.ExtensionVersion, len(versions))
	copy(sorted, versions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Compare(sorted[i], sorted[j]) < 0
	})
	return sorted
}

// SelectLatest returns the first version under the resolution order after
// filtering, or nil. An empty targetPlatform matches every platform.
//
// With includePreRelease false, stable builds are preferred once the
// candidates contain an established stable line of at least two stable
// builds. With fewer, the newest candidate wins even if it is a pre-release,
// so an active extension always resolves to something. For example
// [1.0.0, 1.1.0-pre] resolves to 1.1.0-pre, while [0.9.0, 1.0.0, 1.1.0-pre]
// resolves to 1.0.0.
func SelectLatest(versions []*model.ExtensionVersion, targetPlatform string, includePreRelease, onlyActive bool) *model.ExtensionVersion {
	candidates := filter(versions, targetPlatform, onlyActive)
	if !includePreRelease {
		stable := keep(candidates, func(v *model.ExtensionVersion) bool { return !isPreRelease(v) })
		if len(stable) >= 2 {
			candidates = stable
		}
	}
	return first(candidates)
}

// SelectPreRelease returns the newest build flagged as pre-release by its
// publisher, or nil. A semver pre-release tag alone does not qualify.
func SelectPreRelease(versions []*model.ExtensionVersion, targetPlatform string, onlyActive bool) *model.ExtensionVersion {
	candidates := keep(filter(versions, targetPlatform, onlyActive), func(v *model.ExtensionVersion) bool {
		return v.PreRelease
	})
	return first(candidates)
}

// Select resolves a concrete version string or an alias. For a concrete
// version the platform tie-break picks among builds of that version.
func Select(versions []*model.ExtensionVersion, targetPlatform, versionOrAlias string, onlyActive bool) *model.ExtensionVersion {
	switch versionOrAlias {
	case AliasLatest:
		return SelectLatest(versions, targetPlatform, false, onlyActive)
	case AliasPreRelease:
		return SelectPreRelease(versions, targetPlatform, onlyActive)
	}
	candidates := keep(filter(versions, targetPlatform, onlyActive), func(v *model.ExtensionVersion) bool {
		return v.Version == versionOrAlias
	})
	return first(candidates)
}

// LatestPerPlatform returns the latest build for each target platform present,
// in resolution order.
func LatestPerPlatform(versions []*model.ExtensionVersion, includePreRelease, onlyActive bool) []*model.ExtensionVersion {
	seen := make(map[string]bool)
	var result []*model.ExtensionVersion
	for _, v := range Sort(filter(versions, "", onlyActive)) {
		if seen[v.TargetPlatform] {
			continue
		}
		seen[v.TargetPlatform] = true
		if latest := SelectLatest(versions, v.TargetPlatform, includePreRelease, onlyActive); latest != nil {
			result = append(result, latest)
		}
	}
	return Sort(result)
}

func isPreRelease(v *model.ExtensionVersion) bool {
	return v.PreRelease || v.SemverIsPreRelease
}

func filter(versions []*model.ExtensionVersion, targetPlatform string, onlyActive bool) []*model.ExtensionVersion {
	return keep(versions, func(v *model.ExtensionVersion) bool {
		if onlyActive && !v.Active {
			return false
		}
		return targetPlatform == "" || v.TargetPlatform == targetPlatform
	})
}

func keep(versions []*model.ExtensionVersion, pred func(*model.ExtensionVersion) bool) []*model.ExtensionVersion {
	var out []*model.ExtensionVersion
	for _, v := range versions {
		if v != nil && pred(v) {
			out = append(out, v)
		}
	}
	return out
}

func first(candidates []*model.ExtensionVersion) *model.ExtensionVersion {
	var best *model.ExtensionVersion
	for _, v := range candidates {
		if best == nil || Compare(v, best) < 0 {
			best = v
		}
	}
	return best
}
