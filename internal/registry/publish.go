package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"vsxreg/internal/asset"
	"vsxreg/internal/cache"
	"vsxreg/internal/errs"
	"vsxreg/internal/model"
	"vsxreg/internal/resolver"
	"vsxreg/internal/vsix"
)

// maxParallelUploads bounds concurrent blob uploads for one version.
const maxParallelUploads = 4

// PublishResult describes a version accepted for publishing.
type PublishResult struct {
	Extension *model.Extension
	Version   *model.ExtensionVersion
}

// Publish validates an uploaded .vsix, records the new version inactive and
// stages the upload. The version becomes visible once ProcessPending has
// stored and signed its files.
func (s *Service) Publish(ctx context.Context, r io.Reader, user string) (*PublishResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	pkg, err := vsix.Read(data)
	if err != nil {
		return nil, err
	}
	m := pkg.Manifest

	if err := s.checkNamespaceAllowed(m.Publisher); err != nil {
		return nil, err
	}
	ns, err := s.catalog.FindNamespace(ctx, m.Publisher)
	if err != nil {
		return nil, fmt.Errorf("finding namespace: %w", err)
	}
	if ns == nil {
		return nil, errs.InvalidInputf("unknown publisher: %s (create the namespace first)", m.Publisher)
	}
	if ns.Owner != "" && ns.Owner != user {
		return nil, errs.InvalidInputf("user %q may not publish to namespace %s", user, ns.Name)
	}
	if err := validateName("extension", m.Name); err != nil {
		return nil, err
	}

	v := &model.ExtensionVersion{}
	pkg.ApplyTo(v)
	if err := resolver.ApplySemver(v); err != nil {
		return nil, errs.InvalidInputf("invalid version: %v", err)
	}

	ext, err := s.catalog.FindOrCreateExtension(ctx, ns.ID, m.Name, s.idgen.New())
	if err != nil {
		return nil, fmt.Errorf("creating extension: %w", err)
	}
	existing, err := s.catalog.FindVersion(ctx, ext.ID, v.Version, v.TargetPlatform)
	if err != nil {
		return nil, fmt.Errorf("checking for existing version: %w", err)
	}
	if existing != nil {
		return nil, errs.InvalidInputf("%s %s (%s) is already published", ext.FullName(), v.Version, v.TargetPlatform)
	}

	v.ExtensionID = ext.ID
	v.Active = false
	v.Timestamp = s.clock.Now()
	v.PublishedBy = user
	if err := s.catalog.CreateVersion(ctx, v); err != nil {
		return nil, fmt.Errorf("creating version: %w", err)
	}

	if err := s.staging.Stage(v.ID, bytes.NewReader(data)); err != nil {
		if delErr := s.catalog.DeleteVersion(ctx, v.ID); delErr != nil {
			s.logger.Error("removing unstaged version failed", "version_id", v.ID, "error", delErr)
		}
		return nil, fmt.Errorf("staging upload: %w", err)
	}

	s.logger.Info("version staged", "extension", ext.FullName(), "version", v.Version, "platform", v.TargetPlatform, "user", user)
	return &PublishResult{Extension: ext, Version: v}, nil
}

// ProcessPending post-processes every staged upload and returns how many
// versions were activated. It stops at the first transient failure, leaving
// that upload queued for the next run.
func (s *Service) ProcessPending(ctx context.Context) (int, error) {
	activated := 0
	for {
		// Check if there are any staged uploads left
		queueSize, err := s.staging.Count()
		if err != nil {
			return activated, fmt.Errorf("checking staging queue: %w", err)
		}
		if queueSize == 0 {
			break
		}

		var ok bool
		err = s.staging.ProcessNext(func(r io.Reader, upload StagedUpload) error {
			var err error
			ok, err = s.processUpload(ctx, r, upload)
			return err
		})
		if err != nil {
			return activated, fmt.Errorf("processing upload: %w", err)
		}
		if ok {
			activated++
		}
	}

	s.logger.Info("processing complete", "activated", activated)
	return activated, nil
}

// pendingFile is a file resource together with the bytes to store.
type pendingFile struct {
	resource *model.FileResource
	data     []byte
}

// processUpload turns one staged upload into an active version. It returns
// true when the version was activated. A nil error with false means the
// upload was rejected permanently and its version removed.
func (s *Service) processUpload(ctx context.Context, r io.Reader, upload StagedUpload) (bool, error) {
	v, err := s.catalog.FindVersionByID(ctx, upload.VersionID)
	if err != nil {
		return false, fmt.Errorf("finding version: %w", err)
	}
	if v == nil {
		s.logger.Warn("dropping upload for missing version", "version_id", upload.VersionID)
		return false, nil
	}
	ext, err := s.catalog.FindExtensionByID(ctx, v.ExtensionID)
	if err != nil {
		return false, fmt.Errorf("finding extension: %w", err)
	}
	if ext == nil {
		s.logger.Warn("dropping upload for missing extension", "version_id", v.ID)
		return false, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return false, fmt.Errorf("reading staged upload: %w", err)
	}
	if got := digest.FromBytes(data).String(); got != upload.Digest {
		return false, s.reject(ctx, ext, v, nil, errs.Wrap(fmt.Errorf("staged upload digest %s, want %s", got, upload.Digest), errs.CategoryIntegrityFailure, false))
	}

	pkg, err := vsix.Read(data)
	if err != nil {
		return false, s.reject(ctx, ext, v, nil, err)
	}
	files := s.extractFiles(ext, v, pkg)

	keyPairID := ""
	if s.opts.SigningEnabled() {
		kpID, kp, err := s.activeSigningKey(ctx)
		if err != nil {
			if isPermanent(err) {
				return false, s.reject(ctx, ext, v, nil, err)
			}
			return false, err
		}
		sig, err := s.signFile(ext, v, data, kp)
		if err != nil {
			return false, s.reject(ctx, ext, v, nil, err)
		}
		files = append(files, sig)
		keyPairID = kpID
	}

	if err := s.storeFiles(ctx, files); err != nil {
		if isPermanent(err) {
			return false, s.reject(ctx, ext, v, files, err)
		}
		return false, err
	}

	resources := make([]*model.FileResource, len(files))
	for i, f := range files {
		resources[i] = f.resource
	}
	err = s.retry(ctx, "activating version", func() error {
		return s.catalog.ActivateVersion(ctx, v.ID, keyPairID, resources)
	})
	if err != nil {
		return false, err
	}

	versions, err := s.catalog.ListVersions(ctx, ext.ID)
	if err != nil {
		s.logger.Warn("listing versions for invalidation failed", "extension", ext.FullName(), "error", err)
	}
	kind := cache.VersionAdded
	if !ext.Active {
		kind = cache.ExtensionCreated
	}
	s.invalidate(ctx, kind, ext, append(versionStrings(versions), v.Version))

	s.logger.Info("version published", "extension", ext.FullName(), "version", v.Version, "platform", v.TargetPlatform, "files", len(files), "signed", keyPairID != "")
	return true, nil
}

// reject removes a version whose upload can never be processed. Stored files
// are deleted best-effort. It returns nil so the upload leaves the queue.
func (s *Service) reject(ctx context.Context, ext *model.Extension, v *model.ExtensionVersion, files []pendingFile, cause error) error {
	s.logger.Warn("upload rejected", "extension", ext.FullName(), "version", v.Version, "platform", v.TargetPlatform,
		"category", string(errs.CategoryOf(cause)), "error", cause)
	var resources []*model.FileResource
	for _, f := range files {
		resources = append(resources, f.resource)
	}
	s.deleteBlobs(ctx, resources)
	if err := s.catalog.DeleteVersion(ctx, v.ID); err != nil {
		return fmt.Errorf("removing rejected version: %w", err)
	}
	return nil
}

// extractFiles lists the file resources of a package: the package itself,
// its manifests, the conventional documents and every bundled file.
func (s *Service) extractFiles(ext *model.Extension, v *model.ExtensionVersion, pkg *vsix.Package) []pendingFile {
	var files []pendingFile
	add := func(resourceType, name string, data []byte) {
		files = append(files, pendingFile{
			resource: &model.FileResource{
				Type:       resourceType,
				Name:       name,
				StorageKey: asset.StorageKey(ext.NamespaceName, ext.Name, v, name),
				Size:       int64(len(data)),
			},
			data: data,
		})
	}

	add(model.ResourceDownload, asset.PackageFileName(ext.NamespaceName, ext.Name, v), pkg.Raw())
	if data, ok := pkg.File(vsix.PackageJSONPath); ok {
		add(model.ResourceManifest, "package.json", data)
	}
	if f := pkg.Readme(); f != nil {
		add(model.ResourceReadme, path.Base(f.Path), f.Data)
	}
	if f := pkg.Changelog(); f != nil {
		add(model.ResourceChangelog, path.Base(f.Path), f.Data)
	}
	if f := pkg.License(); f != nil {
		add(model.ResourceLicense, path.Base(f.Path), f.Data)
	}
	if f := pkg.Icon(); f != nil {
		add(model.ResourceIcon, path.Base(f.Path), f.Data)
	}
	if data := pkg.VsixManifest(); data != nil {
		add(model.ResourceVsixManifest, vsix.VsixManifestPath, data)
	}
	for _, f := range pkg.ExtensionFiles() {
		add(model.ResourceSubResource, f.Path, f.Data)
	}
	return files
}

// storeFiles writes file content to the blob store, or inline into the
// resources when no blob store is configured. Uploads run in parallel and
// each is retried on transient failure.
func (s *Service) storeFiles(ctx context.Context, files []pendingFile) error {
	if s.blobs == nil {
		for _, f := range files {
			f.resource.StorageType = model.StorageDatabase
			f.resource.StorageKey = ""
			f.resource.Content = f.data
			f.resource.Digest = digest.FromBytes(f.data).String()
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)
	for _, f := range files {
		g.Go(func() error {
			return s.retry(gctx, "storing "+f.resource.StorageKey, func() error {
				d, size, err := s.blobs.Put(gctx, f.resource.StorageKey, bytes.NewReader(f.data))
				if err != nil {
					return err
				}
				f.resource.StorageType = s.blobs.Type()
				f.resource.Digest = d.String()
				f.resource.Size = size
				return nil
			})
		})
	}
	return g.Wait()
}

// deleteBlobs removes stored content of resources, logging failures.
func (s *Service) deleteBlobs(ctx context.Context, resources []*model.FileResource) {
	if s.blobs == nil {
		return
	}
	for _, res := range resources {
		if res.StorageType == model.StorageDatabase || res.StorageKey == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, res.StorageKey); err != nil {
			s.logger.Warn("deleting stored file failed", "key", res.StorageKey, "error", err)
		}
	}
}
