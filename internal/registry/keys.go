package registry

import (
	"context"
	"errors"
	"fmt"

	"vsxreg/internal/asset"
	"vsxreg/internal/cache"
	"vsxreg/internal/config"
	"vsxreg/internal/errs"
	"vsxreg/internal/integrity"
	"vsxreg/internal/model"
)

// EnsureKeyPair makes sure an active signing key pair exists when signing is
// enabled, generating one on first use. It returns nil when signing is disabled.
func (s *Service) EnsureKeyPair(ctx context.Context) (*model.SignatureKeyPair, error) {
	if !s.opts.SigningEnabled() {
		return nil, nil
	}
	active, err := s.catalog.ActiveKeyPair(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding active key pair: %w", err)
	}
	if active != nil {
		return active, nil
	}
	return s.createKeyPair(ctx)
}

// RenewResult describes a key rotation.
type RenewResult struct {
	KeyPair  *model.SignatureKeyPair
	Resigned int
}

// RenewKeyPair generates a new active key pair. The previous pair stays
// available for verifying versions it signed. With resign, every active
// version not signed by the new key is signed again.
func (s *Service) RenewKeyPair(ctx context.Context, resign bool) (*RenewResult, error) {
	if s.opts.KeyPairMode != config.KeyPairRenew {
		return nil, errs.InvalidInputf("key renewal requires integrity key_pair mode %q", config.KeyPairRenew)
	}
	kp, err := s.createKeyPair(ctx)
	if err != nil {
		return nil, err
	}
	result := &RenewResult{KeyPair: kp}
	if resign {
		n, err := s.resignAll(ctx)
		result.Resigned = n
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// PublicKey returns the key pair with id, or the active one when id is
// empty. Key pairs are hidden while signing is disabled.
func (s *Service) PublicKey(ctx context.Context, id string) (*model.SignatureKeyPair, error) {
	if !s.opts.SigningEnabled() {
		return nil, errs.NotFoundf("signing is disabled")
	}
	var kp *model.SignatureKeyPair
	var err error
	if id == "" {
		kp, err = s.catalog.ActiveKeyPair(ctx)
	} else {
		kp, err = s.catalog.FindKeyPair(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("finding key pair: %w", err)
	}
	if kp == nil {
		return nil, errs.NotFoundf("key pair not found: %s", id)
	}
	return kp, nil
}

func (s *Service) createKeyPair(ctx context.Context) (*model.SignatureKeyPair, error) {
	if s.sealer == nil {
		return nil, errors.New("no key sealer configured")
	}
	kp, err := integrity.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}
	publicPEM, err := integrity.EncodePublicKeyPEM(kp.Public)
	if err != nil {
		return nil, fmt.Errorf("encoding public key: %w", err)
	}
	sealed, err := s.sealer.Seal(kp.Seed())
	if err != nil {
		return nil, fmt.Errorf("sealing private key: %w", err)
	}

	record := &model.SignatureKeyPair{
		ID:            s.idgen.New(),
		PublicKeyText: publicPEM,
		PrivateKey:    sealed,
		Active:        true,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.catalog.ActivateKeyPair(ctx, record); err != nil {
		return nil, fmt.Errorf("activating key pair: %w", err)
	}
	s.logger.Info("key pair activated", "key_pair_id", record.ID)
	return record, nil
}

// activeSigningKey loads a point-in-time snapshot of the active key pair.
// Catalog errors are returned as is; unusable key material is a signing failure.
func (s *Service) activeSigningKey(ctx context.Context) (string, integrity.KeyPair, error) {
	record, err := s.catalog.ActiveKeyPair(ctx)
	if err != nil {
		return "", integrity.KeyPair{}, fmt.Errorf("finding active key pair: %w", err)
	}
	if record == nil {
		return "", integrity.KeyPair{}, errs.Wrap(errors.New("no active key pair"), errs.CategorySigningFailure, false)
	}
	if s.sealer == nil {
		return "", integrity.KeyPair{}, errs.Wrap(errors.New("no key sealer configured"), errs.CategorySigningFailure, false)
	}
	seed, err := s.sealer.Open(record.PrivateKey)
	if err != nil {
		return "", integrity.KeyPair{}, errs.Wrap(fmt.Errorf("opening private key: %w", err), errs.CategorySigningFailure, false)
	}
	kp, err := integrity.KeyPairFromSeed(seed)
	if err != nil {
		return "", integrity.KeyPair{}, errs.Wrap(err, errs.CategorySigningFailure, false)
	}
	return record.ID, kp, nil
}

// signFile signs artifact and returns the signature archive as a file to store.
func (s *Service) signFile(ext *model.Extension, v *model.ExtensionVersion, artifact []byte, kp integrity.KeyPair) (pendingFile, error) {
	sig, err := integrity.Sign(artifact, kp)
	if err != nil {
		return pendingFile{}, err
	}
	name := asset.SignatureFileName(ext.NamespaceName, ext.Name, v)
	return pendingFile{
		resource: &model.FileResource{
			Type:       model.ResourceSignature,
			Name:       name,
			StorageKey: asset.StorageKey(ext.NamespaceName, ext.Name, v, name),
			Size:       int64(len(sig)),
		},
		data: sig,
	}, nil
}

// resignAll signs every active version not signed by the active key and
// returns how many were signed.
func (s *Service) resignAll(ctx context.Context) (int, error) {
	kpID, kp, err := s.activeSigningKey(ctx)
	if err != nil {
		return 0, err
	}
	exts, _, err := s.catalog.SearchExtensions(ctx, SearchQuery{})
	if err != nil {
		return 0, fmt.Errorf("listing extensions: %w", err)
	}

	count := 0
	for _, ext := range exts {
		versions, err := s.catalog.ListVersions(ctx, ext.ID)
		if err != nil {
			return count, fmt.Errorf("listing versions: %w", err)
		}
		changed := false
		for _, v := range versions {
			if !v.Active || v.SignatureKeyPairID == kpID {
				continue
			}
			if err := s.resign(ctx, ext, v, kpID, kp); err != nil {
				return count, fmt.Errorf("re-signing %s %s: %w", ext.FullName(), v.Version, err)
			}
			changed = true
			count++
		}
		if changed {
			s.invalidate(ctx, cache.ExtensionUpdated, ext, versionStrings(versions))
		}
	}
	s.logger.Info("versions re-signed", "count", count, "key_pair_id", kpID)
	return count, nil
}

func (s *Service) resign(ctx context.Context, ext *model.Extension, v *model.ExtensionVersion, kpID string, kp integrity.KeyPair) error {
	resources, err := s.catalog.ListFileResources(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("listing files: %w", err)
	}
	download := findResourceType(resources, model.ResourceDownload)
	if download == nil {
		return errs.NotFoundf("version has no package")
	}
	artifact, err := s.readContent(ctx, download)
	if err != nil {
		return err
	}

	sig, err := s.signFile(ext, v, artifact, kp)
	if err != nil {
		return err
	}
	if err := s.storeFiles(ctx, []pendingFile{sig}); err != nil {
		return err
	}
	if err := s.catalog.ReplaceSignature(ctx, v.ID, kpID, sig.resource); err != nil {
		return fmt.Errorf("replacing signature: %w", err)
	}
	return nil
}

func findResourceType(resources []*model.FileResource, resourceType string) *model.FileResource {
	for _, res := range resources {
		if res.Type == resourceType {
			return res
		}
	}
	return nil
}
