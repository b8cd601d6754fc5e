// Package vsix reads extension packages: the package.json manifest, the
// vsixmanifest and the bundled files.
package vsix

import (
	"archive/zip"
	"bytes"
	_ "embed"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"vsxreg/internal/errs"
	"vsxreg/internal/model"
)

// Well-known archive paths.
const (
	PackageJSONPath  = "extension/package.json"
	VsixManifestPath = "extension.vsixmanifest"
	ExtensionDir     = "extension/"

	preReleaseProperty = "Microsoft.VisualStudio.Code.PreRelease"
)

//go:embed schema/package.json
var packageSchema []byte

var compiledPackageSchema = func() *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile(packageSchema)
	if err != nil {
		panic(fmt.Sprintf("compile package schema: %v", err))
	}
	return schema
}()

// Manifest is the subset of package.json the registry records.
type Manifest struct {
	Name                  string            `json:"name"`
	Publisher             string            `json:"publisher"`
	Version               string            `json:"version"`
	DisplayName           string            `json:"displayName"`
	Description           string            `json:"description"`
	Categories            []string          `json:"categories"`
	Keywords              []string          `json:"keywords"`
	License               string            `json:"license"`
	Icon                  string            `json:"icon"`
	Preview               bool              `json:"preview"`
	Engines               map[string]string `json:"engines"`
	ExtensionDependencies []string          `json:"extensionDependencies"`
	ExtensionPack         []string          `json:"extensionPack"`
	Repository            json.RawMessage   `json:"repository"`
}

// RepositoryURL returns the repository, which package.json allows as a
// plain string or as an object with a url field.
func (m *Manifest) RepositoryURL() string {
	if len(m.Repository) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Repository, &s); err == nil {
		return s
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(m.Repository, &obj); err == nil {
		return obj.URL
	}
	return ""
}

// EngineList renders engines as "name@range" strings in name order.
func (m *Manifest) EngineList() []string {
	names := make([]string, 0, len(m.Engines))
	for name := range m.Engines {
		names = append(names, name)
	}
	sort.Strings(names)
	list := make([]string, len(names))
	for i, name := range names {
		list[i] = name + "@" + m.Engines[name]
	}
	return list
}

type packageManifestXML struct {
	Metadata struct {
		Identity struct {
			TargetPlatform string `xml:"TargetPlatform,attr"`
		} `xml:"Identity"`
		Properties struct {
			Property []struct {
				ID    string `xml:"Id,attr"`
				Value string `xml:"Value,attr"`
			} `xml:"Property"`
		} `xml:"Properties"`
	} `xml:"Metadata"`
}

// File is one bundled file.
type File struct {
	Path string // archive path, e.g. "extension/README.md"
	Data []byte
}

// Package is a decoded .vsix archive.
type Package struct {
	Manifest       Manifest
	TargetPlatform string
	PreRelease     bool

	raw          []byte
	files        map[string][]byte
	order        []string
	vsixManifest []byte
}

// Read decodes and validates a .vsix archive.
func Read(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errs.InvalidInputf("not a valid extension package: %v", err)
	}

	pkg := &Package{raw: data, files: make(map[string][]byte)}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errs.InvalidInputf("opening %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errs.InvalidInputf("reading %s: %v", f.Name, err)
		}
		pkg.files[f.Name] = content
		pkg.order = append(pkg.order, f.Name)
	}

	if err := pkg.readManifest(); err != nil {
		return nil, err
	}
	if err := pkg.readVsixManifest(); err != nil {
		return nil, err
	}
	return pkg, nil
}

func (p *Package) readManifest() error {
	raw, ok := p.files[PackageJSONPath]
	if !ok {
		return errs.InvalidInputf("extension package is missing %s", PackageJSONPath)
	}
	result := compiledPackageSchema.ValidateJSON(raw)
	if !result.IsValid() {
		return errs.InvalidInputf("invalid %s: %v", PackageJSONPath, result.Errors)
	}
	if err := json.Unmarshal(raw, &p.Manifest); err != nil {
		return errs.InvalidInputf("decoding %s: %v", PackageJSONPath, err)
	}
	return nil
}

func (p *Package) readVsixManifest() error {
	p.TargetPlatform = model.TargetPlatformUniversal
	p.PreRelease = p.Manifest.Preview

	raw, ok := p.files[VsixManifestPath]
	if !ok {
		return nil
	}
	p.vsixManifest = raw

	var doc packageManifestXML
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return errs.InvalidInputf("decoding %s: %v", VsixManifestPath, err)
	}
	if tp := strings.TrimSpace(doc.Metadata.Identity.TargetPlatform); tp != "" {
		normalized := model.NormalizeTargetPlatform(tp)
		if normalized == "" {
			return errs.InvalidInputf("unsupported target platform: %q", tp)
		}
		p.TargetPlatform = normalized
	}
	for _, prop := range doc.Metadata.Properties.Property {
		if prop.ID == preReleaseProperty && strings.EqualFold(prop.Value, "true") {
			p.PreRelease = true
		}
	}
	return nil
}

// Raw returns the archive bytes.
func (p *Package) Raw() []byte { return p.raw }

// File returns the content of an archive path.
func (p *Package) File(name string) ([]byte, bool) {
	data, ok := p.files[name]
	return data, ok
}

// Readme, Changelog and License look for the conventional file names in the
// extension directory, case-insensitively.
func (p *Package) Readme() *File    { return p.findExtensionFile("readme.md", "readme.txt", "readme") }
func (p *Package) Changelog() *File { return p.findExtensionFile("changelog.md", "changelog.txt", "changelog") }
func (p *Package) License() *File {
	return p.findExtensionFile("license.md", "license.txt", "license", "licence.md", "licence.txt", "licence")
}

func (p *Package) findExtensionFile(candidates ...string) *File {
	for _, want := range candidates {
		for _, name := range p.order {
			if strings.EqualFold(name, ExtensionDir+want) {
				return &File{Path: name, Data: p.files[name]}
			}
		}
	}
	return nil
}

// Icon returns the icon named by package.json, if it exists in the archive.
func (p *Package) Icon() *File {
	if p.Manifest.Icon == "" {
		return nil
	}
	name := path.Join("extension", path.Clean("/" + p.Manifest.Icon)[1:])
	data, ok := p.files[name]
	if !ok {
		return nil
	}
	return &File{Path: name, Data: data}
}

// VsixManifest returns the raw extension.vsixmanifest, or nil when absent.
func (p *Package) VsixManifest() []byte { return p.vsixManifest }

// ExtensionFiles returns every file below the extension directory in archive order.
func (p *Package) ExtensionFiles() []File {
	var files []File
	for _, name := range p.order {
		if strings.HasPrefix(name, ExtensionDir) {
			files = append(files, File{Path: name, Data: p.files[name]})
		}
	}
	return files
}

// ApplyTo copies the recorded metadata onto v.
func (p *Package) ApplyTo(v *model.ExtensionVersion) {
	m := &p.Manifest
	v.Version = m.Version
	v.TargetPlatform = p.TargetPlatform
	v.PreRelease = p.PreRelease
	v.DisplayName = m.DisplayName
	v.Description = m.Description
	v.Categories = m.Categories
	v.Tags = m.Keywords
	v.Dependencies = m.ExtensionDependencies
	v.BundledExtensions = m.ExtensionPack
	v.Engines = m.EngineList()
	v.License = m.License
	v.Repository = m.RepositoryURL()
}
