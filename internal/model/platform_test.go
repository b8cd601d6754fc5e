package model

import "testing"

func TestNormalizeTargetPlatform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"linux-x64", "linux-x64"},
		{"Linux-X64", "linux-x64"},
		{" universal ", "universal"},
		{"web", "web"},
		{"", ""},
		{"solaris-sparc", ""},
		{"win32", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeTargetPlatform(tt.in); got != tt.want {
				t.Errorf("NormalizeTargetPlatform(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTargetPlatforms_UniversalFirst(t *testing.T) {
	if TargetPlatforms[0] != TargetPlatformUniversal {
		t.Errorf("TargetPlatforms[0] = %q, want %q", TargetPlatforms[0], TargetPlatformUniversal)
	}
	if len(TargetPlatforms) != 12 {
		t.Errorf("len(TargetPlatforms) = %d, want 12", len(TargetPlatforms))
	}
}
