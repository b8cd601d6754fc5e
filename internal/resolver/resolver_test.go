package resolver

import (
	"testing"
	"time"

	"vsxreg/internal/model"
)

var baseTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

type vopt func(*model.ExtensionVersion)

func platform(p string) vopt { return func(v *model.ExtensionVersion) { v.TargetPlatform = p } }
func preRelease() vopt       { return func(v *model.ExtensionVersion) { v.PreRelease = true } }
func inactive() vopt         { return func(v *model.ExtensionVersion) { v.Active = false } }
func at(d time.Duration) vopt {
	return func(v *model.ExtensionVersion) { v.Timestamp = baseTime.Add(d) }
}

func newVersion(t *testing.T, id int64, version string, opts ...vopt) *model.ExtensionVersion {
	t.Helper()
	v := &model.ExtensionVersion{
		ID:             id,
		Version:        version,
		TargetPlatform: model.TargetPlatformUniversal,
		Active:         true,
		Timestamp:      baseTime,
	}
	if err := ApplySemver(v); err != nil {
		t.Fatalf("ApplySemver(%q) error = %v", version, err)
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

func versionOf(v *model.ExtensionVersion) string {
	if v == nil {
		return "<nil>"
	}
	return v.Version + "@" + v.TargetPlatform
}

// permutations returns every ordering of vs.
func permutations(vs []*model.ExtensionVersion) [][]*model.ExtensionVersion {
	if len(vs) <= 1 {
		return [][]*model.ExtensionVersion{append([]*model.ExtensionVersion(nil), vs...)}
	}
	var out [][]*model.ExtensionVersion
	for i := range vs {
		rest := make([]*model.ExtensionVersion, 0, len(vs)-1)
		rest = append(rest, vs[:i]...)
		rest = append(rest, vs[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]*model.ExtensionVersion{vs[i]}, p...))
		}
	}
	return out
}

func TestSelectLatest_Empty(t *testing.T) {
	if got := SelectLatest(nil, "", true, true); got != nil {
		t.Errorf("SelectLatest(nil) = %s, want nil", versionOf(got))
	}
}

func TestSelectLatest_OrderIndependent(t *testing.T) {
	versions := []*model.ExtensionVersion{
		newVersion(t, 1, "1.0.0"),
		newVersion(t, 2, "1.2.0"),
		newVersion(t, 3, "1.2.0-beta.1"),
		newVersion(t, 4, "1.1.9"),
		newVersion(t, 5, "1.2.0", platform(model.TargetPlatformLinuxX64)),
	}

	for i, perm := range permutations(versions) {
		got := SelectLatest(perm, "", true, true)
		if got == nil || got.ID != 2 {
			t.Fatalf("permutation %d: SelectLatest() = %s, want 1.2.0@universal", i, versionOf(got))
		}
	}
}

func TestSelectLatest_TwoVersionOrdering(t *testing.T) {
	tests := []struct {
		name string
		v1   *model.ExtensionVersion // sorts first
		v2   *model.ExtensionVersion
	}{
		{"major", newVersion(t, 1, "2.0.0"), newVersion(t, 2, "1.9.9")},
		{"minor", newVersion(t, 1, "1.3.0"), newVersion(t, 2, "1.2.9")},
		{"patch", newVersion(t, 1, "1.2.4"), newVersion(t, 2, "1.2.3")},
		{"stable before semver pre-release", newVersion(t, 1, "1.2.3"), newVersion(t, 2, "1.2.3-rc.1")},
		{"universal before specific", newVersion(t, 1, "1.0.0"), newVersion(t, 2, "1.0.0", platform(model.TargetPlatformAlpineX64))},
		{"platform name ascending",
			newVersion(t, 1, "1.0.0", platform(model.TargetPlatformDarwinARM64)),
			newVersion(t, 2, "1.0.0", platform(model.TargetPlatformLinuxX64))},
		{"newer timestamp first", newVersion(t, 1, "1.0.0", at(time.Hour)), newVersion(t, 2, "1.0.0")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, in := range [][]*model.ExtensionVersion{{tt.v1, tt.v2}, {tt.v2, tt.v1}} {
				got := SelectLatest(in, "", true, true)
				if got != tt.v1 {
					t.Errorf("SelectLatest() = %s (id %d), want id %d", versionOf(got), got.ID, tt.v1.ID)
				}
			}
		})
	}
}

func TestSelectLatest_PreReleaseFallback(t *testing.T) {
	tests := []struct {
		name     string
		versions []*model.ExtensionVersion
		want     string
	}{
		{
			name: "only pre-release newer than single stable",
			versions: []*model.ExtensionVersion{
				newVersion(t, 1, "1.0.0"),
				newVersion(t, 2, "1.1.0", preRelease()),
			},
			want: "1.1.0",
		},
		{
			name: "established stable line wins",
			versions: []*model.ExtensionVersion{
				newVersion(t, 1, "1.0.0"),
				newVersion(t, 2, "1.1.0", preRelease()),
				newVersion(t, 3, "0.9.0"),
			},
			want: "1.0.0",
		},
		{
			name: "no stable at all",
			versions: []*model.ExtensionVersion{
				newVersion(t, 1, "0.1.0", preRelease()),
				newVersion(t, 2, "0.2.0", preRelease()),
			},
			want: "0.2.0",
		},
		{
			name: "newest is stable",
			versions: []*model.ExtensionVersion{
				newVersion(t, 1, "1.0.0", preRelease()),
				newVersion(t, 2, "2.0.0"),
			},
			want: "2.0.0",
		},
		{
			name: "semver tag counts as pre-release",
			versions: []*model.ExtensionVersion{
				newVersion(t, 1, "1.0.0"),
				newVersion(t, 2, "1.1.0-pre"),
			},
			want: "1.1.0-pre",
		},
		{
			name: "semver tag loses to stable line",
			versions: []*model.ExtensionVersion{
				newVersion(t, 1, "0.9.0"),
				newVersion(t, 2, "1.0.0"),
				newVersion(t, 3, "1.1.0-pre"),
			},
			want: "1.0.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectLatest(tt.versions, "", false, true)
			if got == nil || got.Version != tt.want {
				t.Errorf("SelectLatest(includePreRelease=false) = %s, want %s", versionOf(got), tt.want)
			}
		})
	}
}

func TestSelectLatest_Filters(t *testing.T) {
	versions := []*model.ExtensionVersion{
		newVersion(t, 1, "1.0.0"),
		newVersion(t, 2, "2.0.0", inactive()),
		newVersion(t, 3, "1.5.0", platform(model.TargetPlatformWin32X64)),
		newVersion(t, 4, "1.0.0", platform(model.TargetPlatformLinuxX64)),
	}

	tests := []struct {
		name       string
		platform   string
		onlyActive bool
		wantID     int64
	}{
		{"active any platform", "", true, 3},
		{"include inactive", "", false, 2},
		{"platform filter", model.TargetPlatformLinuxX64, true, 4},
		{"universal only", model.TargetPlatformUniversal, true, 1},
		{"platform with no builds", model.TargetPlatformWeb, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectLatest(versions, tt.platform, true, tt.onlyActive)
			if tt.wantID == 0 {
				if got != nil {
					t.Errorf("SelectLatest() = %s, want nil", versionOf(got))
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Errorf("SelectLatest() = %s, want id %d", versionOf(got), tt.wantID)
			}
		})
	}
}

func TestSelect_UniversalPreferredForLatest(t *testing.T) {
	universal := newVersion(t, 1, "1.0.0")
	linux := newVersion(t, 2, "1.0.0", platform(model.TargetPlatformLinuxX64))

	got := Select([]*model.ExtensionVersion{linux, universal}, "", AliasLatest, true)
	if got != universal {
		t.Errorf("Select(latest) = %s, want universal build", versionOf(got))
	}

	got = Select([]*model.ExtensionVersion{linux, universal}, model.TargetPlatformLinuxX64, AliasLatest, true)
	if got != linux {
		t.Errorf("Select(latest, linux-x64) = %s, want linux-x64 build", versionOf(got))
	}
}

func TestSelect_AliasesAndExact(t *testing.T) {
	versions := []*model.ExtensionVersion{
		newVersion(t, 1, "1.0.0"),
		newVersion(t, 2, "1.1.0", preRelease()),
		newVersion(t, 3, "0.9.0"),
		newVersion(t, 4, "0.9.0", platform(model.TargetPlatformWeb)),
	}

	tests := []struct {
		name    string
		request string
		wantID  int64
	}{
		{"latest prefers stable line", AliasLatest, 1},
		{"pre-release alias", AliasPreRelease, 2},
		{"exact version picks universal build", "0.9.0", 3},
		{"unknown version", "3.0.0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(versions, "", tt.request, true)
			if tt.wantID == 0 {
				if got != nil {
					t.Errorf("Select(%q) = %s, want nil", tt.request, versionOf(got))
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Errorf("Select(%q) = %s, want id %d", tt.request, versionOf(got), tt.wantID)
			}
		})
	}
}

func TestSelectPreRelease_RequiresPublisherFlag(t *testing.T) {
	tests := []struct {
		name     string
		versions []*model.ExtensionVersion
		wantID   int64
	}{
		{
			name: "semver tag without flag",
			versions: []*model.ExtensionVersion{
				newVersion(t, 1, "1.0.0"),
				newVersion(t, 2, "1.1.0-beta.1"),
			},
		},
		{
			name: "flagged build older than tagged one",
			versions: []*model.ExtensionVersion{
				newVersion(t, 1, "1.0.0", preRelease()),
				newVersion(t, 2, "1.1.0-beta.1"),
			},
			wantID: 1,
		},
		{
			name: "flagged stable-looking version",
			versions: []*model.ExtensionVersion{
				newVersion(t, 1, "1.0.0"),
				newVersion(t, 2, "1.1.0", preRelease()),
			},
			wantID: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(tt.versions, "", AliasPreRelease, true)
			if tt.wantID == 0 {
				if got != nil {
					t.Errorf("Select(pre-release) = %s, want nil", versionOf(got))
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Errorf("Select(pre-release) = %s, want id %d", versionOf(got), tt.wantID)
			}
		})
	}
}

func TestLatestPerPlatform(t *testing.T) {
	versions := []*model.ExtensionVersion{
		newVersion(t, 1, "1.0.0"),
		newVersion(t, 2, "1.1.0", platform(model.TargetPlatformLinuxX64)),
		newVersion(t, 3, "1.0.0", platform(model.TargetPlatformLinuxX64)),
		newVersion(t, 4, "2.0.0", platform(model.TargetPlatformWeb), inactive()),
	}

	got := LatestPerPlatform(versions, true, true)
	if len(got) != 2 {
		t.Fatalf("len(LatestPerPlatform()) = %d, want 2", len(got))
	}
	if got[0].ID != 2 || got[1].ID != 1 {
		t.Errorf("LatestPerPlatform() = [%s %s], want [1.1.0@linux-x64 1.0.0@universal]", versionOf(got[0]), versionOf(got[1]))
	}
}

func TestIsAlias(t *testing.T) {
	for _, s := range []string{"latest", "pre-release"} {
		if !IsAlias(s) {
			t.Errorf("IsAlias(%q) = false", s)
		}
	}
	for _, s := range []string{"1.0.0", "Latest", ""} {
		if IsAlias(s) {
			t.Errorf("IsAlias(%q) = true", s)
		}
	}
}
