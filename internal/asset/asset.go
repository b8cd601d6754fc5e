// Package asset maps gallery asset-type tokens onto the stored file
// resources of a version, and builds the URLs clients fetch them from.
package asset

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"sort"
	"strings"

	"vsxreg/internal/marketplace"
	"vsxreg/internal/model"
)

// Token names an asset type in the gallery protocol.
type Token string

const (
	TokenPackage      Token = "Microsoft.VisualStudio.Services.VSIXPackage"
	TokenManifest     Token = "Microsoft.VisualStudio.Code.Manifest"
	TokenReadme       Token = "Microsoft.VisualStudio.Services.Content.Details"
	TokenChangelog    Token = "Microsoft.VisualStudio.Services.Content.Changelog"
	TokenLicense      Token = "Microsoft.VisualStudio.Services.Content.License"
	TokenIcon         Token = "Microsoft.VisualStudio.Services.Icons.Default"
	TokenVsixManifest Token = "Microsoft.VisualStudio.Services.VsixManifest"
	TokenSignature    Token = "Microsoft.VisualStudio.Services.VsixSignature"
	TokenPublicKey    Token = "Microsoft.VisualStudio.Services.PublicKey"

	// WebResourcesPrefix introduces a sub-resource token; the rest of the
	// token is the resource's path inside the package.
	WebResourcesPrefix = "Microsoft.VisualStudio.Code.WebResources/"
)

// CacheControl is sent with redirects and browse listings.
const CacheControl = "max-age=604800, public"

// resourceTypes maps each fixed token backed by a stored file to its type.
var resourceTypes = map[Token]string{
	TokenPackage:      model.ResourceDownload,
	TokenManifest:     model.ResourceManifest,
	TokenReadme:       model.ResourceReadme,
	TokenChangelog:    model.ResourceChangelog,
	TokenLicense:      model.ResourceLicense,
	TokenIcon:         model.ResourceIcon,
	TokenVsixManifest: model.ResourceVsixManifest,
	TokenSignature:    model.ResourceSignature,
}

// fileTokens is the order files appear in a query response.
var fileTokens = []Token{
	TokenManifest, TokenReadme, TokenLicense, TokenIcon, TokenPackage, TokenChangelog, TokenVsixManifest,
}

// IsKnown reports whether token is a fixed token or a sub-resource token.
func IsKnown(token string) bool {
	if strings.HasPrefix(token, WebResourcesPrefix) {
		return true
	}
	t := Token(token)
	_, ok := resourceTypes[t]
	return ok || t == TokenPublicKey
}

// Ref is a resolved asset.
type Ref struct {
	Token Token

	// Resource is the stored file. It is nil for the public key, which
	// lives with the key pair rather than the version.
	Resource *model.FileResource

	// KeyPairID identifies the key that signed the version (public key only).
	KeyPairID string

	// URL is the externally visible location of the asset.
	URL string
}

// Resolver resolves asset tokens for versions of one registry.
type Resolver struct {
	baseURL        string
	signingEnabled bool
}

// NewResolver creates a Resolver. When signingEnabled is false the signature
// and public-key tokens never resolve, even for versions signed earlier.
func NewResolver(baseURL string, signingEnabled bool) *Resolver {
	return &Resolver{baseURL: strings.TrimRight(baseURL, "/"), signingEnabled: signingEnabled}
}

// BaseURL returns the registry base URL without a trailing slash.
func (r *Resolver) BaseURL() string { return r.baseURL }

// SigningEnabled reports whether signature assets are exposed.
func (r *Resolver) SigningEnabled() bool { return r.signingEnabled }

// Fingerprint identifies the settings that shape resolved URLs. Payloads
// built under one fingerprint are not valid under another.
func (r *Resolver) Fingerprint() string {
	return fmt.Sprintf("base_url=%s signing=%t", r.baseURL, r.signingEnabled)
}

// Resolve returns the asset named by token for version v of ext, or nil
// when no such asset exists. resources are v's stored files.
func (r *Resolver) Resolve(ext *model.Extension, v *model.ExtensionVersion, resources []*model.FileResource, token string) *Ref {
	if strings.HasPrefix(token, WebResourcesPrefix) {
		name := strings.TrimPrefix(token, WebResourcesPrefix)
		if !strings.HasPrefix(name, "extension/") {
			return nil
		}
		res := findResource(resources, model.ResourceSubResource, name)
		if res == nil {
			return nil
		}
		return &Ref{Token: Token(WebResourcesPrefix), Resource: res, URL: r.FileURL(ext, v, res.Name)}
	}

	t := Token(token)
	switch t {
	case TokenPublicKey:
		if !r.signingEnabled || v.SignatureKeyPairID == "" {
			return nil
		}
		return &Ref{Token: t, KeyPairID: v.SignatureKeyPairID, URL: r.PublicKeyURL(v.SignatureKeyPairID)}
	case TokenSignature:
		if !r.signingEnabled {
			return nil
		}
	}

	resourceType, ok := resourceTypes[t]
	if !ok {
		return nil
	}
	res := findResource(resources, resourceType, "")
	if res == nil {
		return nil
	}
	return &Ref{Token: t, Resource: res, URL: r.FileURL(ext, v, res.Name)}
}

// Files lists the file entries of a query response for v.
func (r *Resolver) Files(ext *model.Extension, v *model.ExtensionVersion, resources []*model.FileResource) []marketplace.File {
	tokens := fileTokens
	if r.signingEnabled {
		tokens = append(append([]Token{}, fileTokens...), TokenSignature, TokenPublicKey)
	}
	var files []marketplace.File
	for _, t := range tokens {
		if ref := r.Resolve(ext, v, resources, string(t)); ref != nil {
			files = append(files, marketplace.File{AssetType: string(t), Source: ref.URL})
		}
	}
	return files
}

func findResource(resources []*model.FileResource, resourceType, name string) *model.FileResource {
	for _, res := range resources {
		if res.Type == resourceType && (name == "" || res.Name == name) {
			return res
		}
	}
	return nil
}

// FileURL returns {base}/api/{ns}/{ext}[/{platform}]/{version}/file/{name}.
// The platform segment is omitted for universal builds.
func (r *Resolver) FileURL(ext *model.Extension, v *model.ExtensionVersion, name string) string {
	segments := []string{"api", ext.NamespaceName, ext.Name}
	if !v.IsUniversal() {
		segments = append(segments, v.TargetPlatform)
	}
	segments = append(segments, v.Version, "file")
	segments = append(segments, strings.Split(name, "/")...)
	return r.url(segments...)
}

// PublicKeyURL returns {base}/api/-/public-key/{id}.
func (r *Resolver) PublicKeyURL(keyPairID string) string {
	return r.url("api", "-", "public-key", keyPairID)
}

// AssetURI returns the base URI clients append asset tokens to.
func (r *Resolver) AssetURI(ext *model.Extension, v *model.ExtensionVersion) string {
	return r.url("vscode", "asset", ext.NamespaceName, ext.Name, v.Version)
}

// BrowseURL returns the browse location of path within a version.
func (r *Resolver) BrowseURL(namespace, extension, version, p string) string {
	segments := []string{"vscode", "unpkg", namespace, extension, version}
	if p != "" {
		segments = append(segments, strings.Split(p, "/")...)
	}
	return r.url(segments...)
}

func (r *Resolver) url(segments ...string) string {
	var b strings.Builder
	b.WriteString(r.baseURL)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// Listing is the result of browsing a path: either a single file or the
// URLs of the entries below a directory. Directory URLs end with "/".
type Listing struct {
	File    *model.FileResource
	Entries []string
}

// Browse looks up p among the sub-resources of a version. An exact match of
// a single resource is a file; otherwise every resource below p is grouped
// into its next path segment. It returns nil when nothing matches.
func (r *Resolver) Browse(namespace, extension, version string, resources []*model.FileResource, p string) *Listing {
	var matches []*model.FileResource
	for _, res := range resources {
		if res.Type == model.ResourceSubResource && strings.HasPrefix(res.Name, p) {
			matches = append(matches, res)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	if len(matches) == 1 && matches[0].Name == p {
		return &Listing{File: matches[0]}
	}

	dir := p
	if dir != "" && !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	seen := make(map[string]bool)
	for _, res := range matches {
		if !strings.HasPrefix(res.Name, dir) {
			continue
		}
		name := res.Name
		isDir := false
		if i := strings.IndexByte(name[len(dir):], '/'); i >= 0 {
			name = name[:len(dir)+i]
			isDir = true
		}
		u := r.BrowseURL(namespace, extension, version, name)
		if isDir {
			u += "/"
		}
		seen[u] = true
	}
	if len(seen) == 0 {
		return nil
	}
	entries := make([]string, 0, len(seen))
	for u := range seen {
		entries = append(entries, u)
	}
	sort.Strings(entries)
	return &Listing{Entries: entries}
}

// ContentType guesses a media type from a file name.
func ContentType(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
