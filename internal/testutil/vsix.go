package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
)

// VSIXOptions describes a synthetic extension package.
type VSIXOptions struct {
	Publisher      string
	Name           string
	Version        string
	DisplayName    string
	Description    string
	Categories     []string
	Keywords       []string
	License        string
	Preview        bool
	TargetPlatform string // written to extension.vsixmanifest when set
	PreRelease     bool   // sets the pre-release property in extension.vsixmanifest

	// Files maps archive paths below extension/ to content,
	// e.g. "README.md" or "media/icon.png".
	Files map[string]string
	Icon  string // package.json icon path, relative to extension/
}

// BuildVSIX returns the bytes of a .vsix archive built from opts.
// Empty Publisher, Name and Version default to "acme", "tool" and "1.0.0".
func BuildVSIX(t *testing.T, opts VSIXOptions) []byte {
	t.Helper()
	if opts.Publisher == "" {
		opts.Publisher = "acme"
	}
	if opts.Name == "" {
		opts.Name = "tool"
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}

	manifest := map[string]any{
		"name":      opts.Name,
		"publisher": opts.Publisher,
		"version":   opts.Version,
		"engines":   map[string]string{"vscode": "^1.80.0"},
	}
	if opts.DisplayName != "" {
		manifest["displayName"] = opts.DisplayName
	}
	if opts.Description != "" {
		manifest["description"] = opts.Description
	}
	if len(opts.Categories) > 0 {
		manifest["categories"] = opts.Categories
	}
	if len(opts.Keywords) > 0 {
		manifest["keywords"] = opts.Keywords
	}
	if opts.License != "" {
		manifest["license"] = opts.License
	}
	if opts.Icon != "" {
		manifest["icon"] = opts.Icon
	}
	if opts.Preview {
		manifest["preview"] = true
	}
	packageJSON, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("encoding package.json: %v", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name string, data []byte) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	write("extension.vsixmanifest", []byte(vsixManifest(opts)))
	write("extension/package.json", packageJSON)
	for name, content := range opts.Files {
		write("extension/"+name, []byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing archive: %v", err)
	}
	return buf.Bytes()
}

func vsixManifest(opts VSIXOptions) string {
	targetPlatform := ""
	if opts.TargetPlatform != "" {
		targetPlatform = fmt.Sprintf(` TargetPlatform="%s"`, opts.TargetPlatform)
	}
	properties := ""
	if opts.PreRelease {
		properties = `<Property Id="Microsoft.VisualStudio.Code.PreRelease" Value="true" />`
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<PackageManifest Version="2.0.0" xmlns="http://schemas.microsoft.com/developer/vsx-schema/2011">
  <Metadata>
    <Identity Language="en-US" Id="%s" Version="%s" Publisher="%s"%s />
    <Properties>%s</Properties>
  </Metadata>
</PackageManifest>
`, opts.Name, opts.Version, opts.Publisher, targetPlatform, properties)
}
