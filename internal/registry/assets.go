package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"

	"vsxreg/internal/asset"
	"vsxreg/internal/errs"
	"vsxreg/internal/integrity"
	"vsxreg/internal/model"
	"vsxreg/internal/resolver"
)

// AssetResponse is either inline content or a redirect to external storage.
type AssetResponse struct {
	FileName     string
	ContentType  string
	Content      []byte
	RedirectURL  string
	CacheControl string
}

// IsRedirect reports whether the client should fetch RedirectURL instead.
func (r *AssetResponse) IsRedirect() bool { return r.RedirectURL != "" }

// GetAsset resolves an asset token for a version of an extension. Fetching
// the package counts as a download.
func (s *Service) GetAsset(ctx context.Context, namespace, extension, versionOrAlias, targetPlatform, token string) (*AssetResponse, error) {
	if !asset.IsKnown(token) {
		return nil, errs.NotFoundf("unknown asset type: %s", token)
	}
	ext, err := s.activeExtension(ctx, namespace, extension)
	if err != nil {
		return nil, err
	}
	v, err := s.resolveActive(ctx, ext, targetPlatform, versionOrAlias)
	if err != nil {
		return nil, err
	}
	resources, err := s.catalog.ListFileResources(ctx, v.ID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	ref := s.assets.Resolve(ext, v, resources, token)
	if ref == nil {
		return nil, errs.NotFoundf("asset not found: %s", token)
	}

	if ref.Token == asset.TokenPublicKey {
		kp, err := s.PublicKey(ctx, ref.KeyPairID)
		if err != nil {
			return nil, err
		}
		return &AssetResponse{
			FileName:    kp.ID + ".pem",
			ContentType: "application/x-pem-file",
			Content:     []byte(kp.PublicKeyText),
		}, nil
	}

	if ref.Resource.Type == model.ResourceDownload {
		if err := s.catalog.IncrementDownloadCount(ctx, ext.ID); err != nil {
			return nil, fmt.Errorf("counting download: %w", err)
		}
	}
	return s.serve(ctx, ref.Resource)
}

// serve answers with a redirect when the blob store exposes a location,
// and with the verified content otherwise.
func (s *Service) serve(ctx context.Context, res *model.FileResource) (*AssetResponse, error) {
	resp := &AssetResponse{FileName: res.Name, ContentType: asset.ContentType(res.Name)}
	if res.StorageType != model.StorageDatabase && s.blobs != nil {
		location, err := s.blobs.Location(ctx, res.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("locating %s: %w", res.Name, err)
		}
		if location != "" {
			resp.RedirectURL = location
			resp.CacheControl = asset.CacheControl
			return resp, nil
		}
	}

	content, err := s.readContent(ctx, res)
	if err != nil {
		return nil, err
	}
	resp.Content = content
	return resp, nil
}

// readContent returns the bytes of a stored file, verified against its digest.
func (s *Service) readContent(ctx context.Context, res *model.FileResource) ([]byte, error) {
	if res.StorageType == model.StorageDatabase {
		return res.Content, nil
	}
	if s.blobs == nil {
		return nil, errs.Unavailable(fmt.Errorf("file %s is in %s storage but no blob store is configured", res.Name, res.StorageType))
	}

	var buf bytes.Buffer
	err := s.blobs.Get(ctx, res.StorageKey, &buf, digest.Digest(res.Digest))
	if errs.CategoryOf(err) == errs.CategoryIntegrityFailure {
		s.logger.Warn("stored file failed verification", "key", res.StorageKey, "error", err)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", res.Name, err)
	}
	return buf.Bytes(), nil
}

// BrowseResult is a single file or a directory listing of entry URLs.
type BrowseResult struct {
	File         *AssetResponse
	Entries      []string
	CacheControl string
}

// Browse looks up a path among the bundled files of a version. The universal
// build is preferred; otherwise the first build in resolution order.
func (s *Service) Browse(ctx context.Context, namespace, extension, versionOrAlias, p string) (*BrowseResult, error) {
	ext, err := s.activeExtension(ctx, namespace, extension)
	if err != nil {
		return nil, err
	}
	versions, err := s.catalog.ListVersions(ctx, ext.ID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	v := resolver.Select(versions, "", versionOrAlias, true)
	if v == nil {
		return nil, errs.NotFoundf("version not found: %s %s", ext.FullName(), versionOrAlias)
	}
	resources, err := s.catalog.ListFileResources(ctx, v.ID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	listing := s.assets.Browse(ext.NamespaceName, ext.Name, v.Version, resources, p)
	if listing == nil {
		return nil, errs.NotFoundf("path not found: %s", p)
	}
	if listing.File != nil {
		resp, err := s.serve(ctx, listing.File)
		if err != nil {
			return nil, err
		}
		return &BrowseResult{File: resp}, nil
	}
	return &BrowseResult{Entries: listing.Entries, CacheControl: asset.CacheControl}, nil
}

// VerifyVersion checks the stored signature of a version against its stored
// package and the public key of the pair that signed it. A mismatch is
// reported as false and logged.
func (s *Service) VerifyVersion(ctx context.Context, namespace, extension, version, targetPlatform string) (bool, error) {
	ext, err := s.anyExtension(ctx, namespace, extension)
	if err != nil {
		return false, err
	}
	v, err := s.findBuild(ctx, ext, version, targetPlatform)
	if err != nil {
		return false, err
	}
	if v.SignatureKeyPairID == "" {
		return false, errs.NotFoundf("%s %s is not signed", ext.FullName(), v.Version)
	}
	kp, err := s.catalog.FindKeyPair(ctx, v.SignatureKeyPairID)
	if err != nil {
		return false, fmt.Errorf("finding key pair: %w", err)
	}
	if kp == nil {
		return false, errs.NotFoundf("key pair not found: %s", v.SignatureKeyPairID)
	}

	resources, err := s.catalog.ListFileResources(ctx, v.ID)
	if err != nil {
		return false, fmt.Errorf("listing files: %w", err)
	}
	download := findResourceType(resources, model.ResourceDownload)
	signature := findResourceType(resources, model.ResourceSignature)
	if download == nil || signature == nil {
		return false, errs.NotFoundf("%s %s has no package or signature", ext.FullName(), v.Version)
	}

	artifact, err := s.readContent(ctx, download)
	if err != nil {
		return false, err
	}
	archive, err := s.readContent(ctx, signature)
	if err != nil {
		return false, err
	}
	ok, err := integrity.VerifyBundle(artifact, archive, kp.PublicKeyText)
	if err != nil {
		if errors.Is(err, integrity.ErrInvalidPublicKey) {
			return false, errs.Wrap(err, errs.CategoryIntegrityFailure, false)
		}
		return false, err
	}
	if !ok {
		s.logger.Warn("signature verification failed", "extension", ext.FullName(), "version", v.Version, "platform", v.TargetPlatform)
	}
	return ok, nil
}
