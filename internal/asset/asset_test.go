package asset

import (
	"reflect"
	"testing"

	"vsxreg/internal/model"
)

func testVersion(platform string) (*model.Extension, *model.ExtensionVersion) {
	ext := &model.Extension{ID: 1, NamespaceName: "redhat", Name: "java"}
	v := &model.ExtensionVersion{ID: 10, ExtensionID: 1, Version: "1.2.3", TargetPlatform: platform, SignatureKeyPairID: "kp-1"}
	return ext, v
}

func testResources() []*model.FileResource {
	return []*model.FileResource{
		{ID: 1, Type: model.ResourceDownload, Name: "redhat.java-1.2.3.vsix"},
		{ID: 2, Type: model.ResourceManifest, Name: "package.json"},
		{ID: 3, Type: model.ResourceReadme, Name: "README.md"},
		{ID: 4, Type: model.ResourceSignature, Name: "redhat.java-1.2.3.sigzip"},
		{ID: 5, Type: model.ResourceSubResource, Name: "extension/package.json"},
		{ID: 6, Type: model.ResourceSubResource, Name: "extension/out/main.js"},
		{ID: 7, Type: model.ResourceSubResource, Name: "extension/out/lib/util.js"},
		{ID: 8, Type: model.ResourceSubResource, Name: "extension/media/icon.png"},
	}
}

func TestResolver_Resolve(t *testing.T) {
	ext, v := testVersion(model.TargetPlatformUniversal)
	resources := testResources()

	tests := []struct {
		name       string
		signing    bool
		token      string
		wantID     int64
		wantNil    bool
		wantKeyURL string
	}{
		{"package", true, string(TokenPackage), 1, false, ""},
		{"manifest", true, string(TokenManifest), 2, false, ""},
		{"readme", true, string(TokenReadme), 3, false, ""},
		{"missing changelog", true, string(TokenChangelog), 0, true, ""},
		{"signature", true, string(TokenSignature), 4, false, ""},
		{"signature with signing disabled", false, string(TokenSignature), 0, true, ""},
		{"public key", true, string(TokenPublicKey), 0, false, "https://vsx.example.com/api/-/public-key/kp-1"},
		{"public key with signing disabled", false, string(TokenPublicKey), 0, true, ""},
		{"sub-resource", false, WebResourcesPrefix + "extension/out/main.js", 6, false, ""},
		{"sub-resource outside extension dir", false, WebResourcesPrefix + "package.json", 0, true, ""},
		{"missing sub-resource", false, WebResourcesPrefix + "extension/nope.js", 0, true, ""},
		{"unknown token", true, "Microsoft.VisualStudio.Nothing", 0, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver("https://vsx.example.com/", tt.signing)
			ref := r.Resolve(ext, v, resources, tt.token)
			if tt.wantNil {
				if ref != nil {
					t.Fatalf("Resolve() = %+v, want nil", ref)
				}
				return
			}
			if ref == nil {
				t.Fatal("Resolve() = nil")
			}
			if tt.wantKeyURL != "" {
				if ref.Resource != nil || ref.KeyPairID != "kp-1" || ref.URL != tt.wantKeyURL {
					t.Errorf("Resolve() = %+v", ref)
				}
				return
			}
			if ref.Resource == nil || ref.Resource.ID != tt.wantID {
				t.Errorf("Resolve() resource = %+v, want id %d", ref.Resource, tt.wantID)
			}
		})
	}
}

func TestResolver_PublicKeyUnsignedVersion(t *testing.T) {
	ext, v := testVersion(model.TargetPlatformUniversal)
	v.SignatureKeyPairID = ""
	if ref := NewResolver("https://x", true).Resolve(ext, v, nil, string(TokenPublicKey)); ref != nil {
		t.Errorf("Resolve() = %+v, want nil for unsigned version", ref)
	}
}

func TestResolver_FileURL(t *testing.T) {
	r := NewResolver("https://vsx.example.com", false)

	ext, universal := testVersion(model.TargetPlatformUniversal)
	got := r.FileURL(ext, universal, "extension/out/main.js")
	want := "https://vsx.example.com/api/redhat/java/1.2.3/file/extension/out/main.js"
	if got != want {
		t.Errorf("FileURL() = %q, want %q", got, want)
	}

	_, linux := testVersion("linux-x64")
	got = r.FileURL(ext, linux, "README.md")
	want = "https://vsx.example.com/api/redhat/java/linux-x64/1.2.3/file/README.md"
	if got != want {
		t.Errorf("FileURL() = %q, want %q", got, want)
	}

	got = r.FileURL(ext, universal, "my file.md")
	want = "https://vsx.example.com/api/redhat/java/1.2.3/file/my%20file.md"
	if got != want {
		t.Errorf("FileURL() = %q, want %q", got, want)
	}
}

func TestResolver_Files(t *testing.T) {
	ext, v := testVersion(model.TargetPlatformUniversal)

	files := NewResolver("https://x", false).Files(ext, v, testResources())
	var tokens []string
	for _, f := range files {
		tokens = append(tokens, f.AssetType)
	}
	want := []string{string(TokenManifest), string(TokenReadme), string(TokenPackage)}
	if !reflect.DeepEqual(tokens, want) {
		t.Errorf("Files() tokens = %v, want %v", tokens, want)
	}

	signed := NewResolver("https://x", true).Files(ext, v, testResources())
	if len(signed) != 5 {
		t.Errorf("len(Files()) with signing = %d, want 5", len(signed))
	}
}

func TestResolver_Browse(t *testing.T) {
	r := NewResolver("https://x", false)
	resources := testResources()
	base := "https://x/vscode/unpkg/redhat/java/1.2.3/"

	tests := []struct {
		name     string
		path     string
		wantFile int64
		want     []string
		wantNil  bool
	}{
		{"file", "extension/package.json", 5, nil, false},
		{"root", "", 0, []string{base + "extension/"}, false},
		{"extension dir", "extension", 0, []string{
			base + "extension/media/",
			base + "extension/out/",
			base + "extension/package.json",
		}, false},
		{"trailing slash", "extension/out/", 0, []string{
			base + "extension/out/lib/",
			base + "extension/out/main.js",
		}, false},
		{"partial name is not a directory", "extension/ou", 0, nil, true},
		{"missing", "extension/nope", 0, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing := r.Browse("redhat", "java", "1.2.3", resources, tt.path)
			if tt.wantNil {
				if listing != nil {
					t.Fatalf("Browse() = %+v, want nil", listing)
				}
				return
			}
			if listing == nil {
				t.Fatal("Browse() = nil")
			}
			if tt.wantFile != 0 {
				if listing.File == nil || listing.File.ID != tt.wantFile {
					t.Errorf("Browse() file = %+v, want id %d", listing.File, tt.wantFile)
				}
				return
			}
			if !reflect.DeepEqual(listing.Entries, tt.want) {
				t.Errorf("Browse() entries = %v, want %v", listing.Entries, tt.want)
			}
		})
	}
}

func TestFileNames(t *testing.T) {
	_, universal := testVersion(model.TargetPlatformUniversal)
	_, linux := testVersion("linux-x64")

	tests := []struct {
		got, want string
	}{
		{PackageFileName("redhat", "java", universal), "redhat.java-1.2.3.vsix"},
		{PackageFileName("redhat", "java", linux), "redhat.java-1.2.3@linux-x64.vsix"},
		{SignatureFileName("redhat", "java", linux), "redhat.java-1.2.3@linux-x64.sigzip"},
		{StorageKey("RedHat", "Java", universal, "README.md"), "redhat/java/1.2.3/README.md"},
		{StorageKey("redhat", "java", linux, "extension/out/main.js"), "redhat/java/linux-x64/1.2.3/extension/out/main.js"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestIsKnown(t *testing.T) {
	for _, token := range []string{string(TokenPackage), string(TokenPublicKey), WebResourcesPrefix + "extension/a.js"} {
		if !IsKnown(token) {
			t.Errorf("IsKnown(%q) = false", token)
		}
	}
	if IsKnown("Microsoft.VisualStudio.Nothing") {
		t.Error("IsKnown() = true for unknown token")
	}
}

func TestContentType(t *testing.T) {
	if got := ContentType("a.json"); got != "application/json" {
		t.Errorf("ContentType(a.json) = %q", got)
	}
	if got := ContentType("blob"); got != "application/octet-stream" {
		t.Errorf("ContentType(blob) = %q", got)
	}
}
