package model

import "strings"

// Target platform identifiers.
const (
	TargetPlatformUniversal   = "universal"
	TargetPlatformWin32X64    = "win32-x64"
	TargetPlatformWin32IA32   = "win32-ia32"
	TargetPlatformWin32ARM64  = "win32-arm64"
	TargetPlatformLinuxX64    = "linux-x64"
	TargetPlatformLinuxARM64  = "linux-arm64"
	TargetPlatformLinuxARMHF  = "linux-armhf"
	TargetPlatformAlpineX64   = "alpine-x64"
	TargetPlatformAlpineARM64 = "alpine-arm64"
	TargetPlatformDarwinX64   = "darwin-x64"
	TargetPlatformDarwinARM64 = "darwin-arm64"
	TargetPlatformWeb         = "web"
)

// TargetPlatforms is the closed set of known platforms, universal first.
var TargetPlatforms = []string{
	TargetPlatformUniversal,
	TargetPlatformWin32X64,
	TargetPlatformWin32IA32,
	TargetPlatformWin32ARM64,
	TargetPlatformLinuxX64,
	TargetPlatformLinuxARM64,
	TargetPlatformLinuxARMHF,
	TargetPlatformAlpineX64,
	TargetPlatformAlpineARM64,
	TargetPlatformDarwinX64,
	TargetPlatformDarwinARM64,
	TargetPlatformWeb,
}

// IsValidTargetPlatform reports whether name is a known platform identifier.
func IsValidTargetPlatform(name string) bool {
	for _, p := range TargetPlatforms {
		if p == name {
			return true
		}
	}
	return false
}

// NormalizeTargetPlatform turns a request parameter into a platform filter.
// Unknown or empty values mean "no filter" and yield "".
func NormalizeTargetPlatform(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if IsValidTargetPlatform(name) {
		return name
	}
	return ""
}
