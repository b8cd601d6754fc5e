package asset

import (
	"strings"

	"vsxreg/internal/model"
)

// fileBase returns "{ns}.{name}-{version}" with "@{platform}" appended for
// platform-specific builds.
func fileBase(namespace, extension string, v *model.ExtensionVersion) string {
	base := namespace + "." + extension + "-" + v.Version
	if !v.IsUniversal() {
		base += "@" + v.TargetPlatform
	}
	return base
}

// PackageFileName names the downloadable package of a version.
func PackageFileName(namespace, extension string, v *model.ExtensionVersion) string {
	return fileBase(namespace, extension, v) + ".vsix"
}

// SignatureFileName names the signature bundle of a version.
func SignatureFileName(namespace, extension string, v *model.ExtensionVersion) string {
	return fileBase(namespace, extension, v) + ".sigzip"
}

// StorageKey returns the blob-store key of a version's file:
// {ns}/{ext}[/{platform}]/{version}/{name}. Namespace and extension are
// lowercased since lookups ignore their case.
func StorageKey(namespace, extension string, v *model.ExtensionVersion, name string) string {
	parts := []string{strings.ToLower(namespace), strings.ToLower(extension)}
	if !v.IsUniversal() {
		parts = append(parts, v.TargetPlatform)
	}
	parts = append(parts, v.Version, name)
	return strings.Join(parts, "/")
}
