package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vsxreg/internal/database/migrations"
	"vsxreg/internal/model"
	"vsxreg/internal/registry"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements registry.Catalog using SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	clock registry.Clock
	path  string
}

var _ registry.Catalog = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens a catalog database.
// path can be a file path or ":memory:" for an in-memory database.
// A nil clock uses registry.RealClock.
func NewSQLiteDatabase(path string, clock registry.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteDatabaseFromDB(db, clock), nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB, clock registry.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = registry.RealClock{}
	}
	return &SQLiteDatabase{db: db, clock: clock}
}

// OpenConnection opens and configures a SQLite database connection.
// Foreign keys are enabled through the DSN so every pooled connection gets them.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// DB exposes the underlying connection for migrations.
func (s *SQLiteDatabase) DB() *sql.DB {
	return s.db
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction and commits when fn succeeds.
func (s *SQLiteDatabase) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Namespace operations

func (s *SQLiteDatabase) CreateNamespace(ctx context.Context, name, owner string) (*model.Namespace, error) {
	ns := &model.Namespace{Name: name, Owner: owner, CreatedAt: s.clock.Now()}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO namespaces (name, owner, created_at) VALUES (?, ?, ?)",
		ns.Name, ns.Owner, ns.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating namespace: %w", err)
	}
	if ns.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading namespace id: %w", err)
	}
	return ns, nil
}

func (s *SQLiteDatabase) FindNamespace(ctx context.Context, name string) (*model.Namespace, error) {
	var ns model.Namespace
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, owner, created_at FROM namespaces WHERE name = ? COLLATE NOCASE", name).
		Scan(&ns.ID, &ns.Name, &ns.Owner, &ns.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding namespace: %w", err)
	}
	return &ns, nil
}

func (s *SQLiteDatabase) UpdateNamespaceOwner(ctx context.Context, namespaceID int64, owner string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE namespaces SET owner = ? WHERE id = ?", owner, namespaceID); err != nil {
		return fmt.Errorf("updating namespace owner: %w", err)
	}
	return nil
}

// Extension operations

const extensionColumns = `e.id, e.public_id, e.namespace_id, n.name, e.name, e.active,
	e.download_count, e.average_rating, e.review_count, e.created_at`

const extensionFrom = ` FROM extensions e JOIN namespaces n ON n.id = e.namespace_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExtension(row rowScanner) (*model.Extension, error) {
	var e model.Extension
	var rating sql.NullFloat64
	if err := row.Scan(&e.ID, &e.PublicID, &e.NamespaceID, &e.NamespaceName, &e.Name, &e.Active,
		&e.DownloadCount, &rating, &e.ReviewCount, &e.CreatedAt); err != nil {
		return nil, err
	}
	if rating.Valid {
		e.AverageRating = &rating.Float64
	}
	return &e, nil
}

func findExtension(ctx context.Context, q querier, where string, args ...any) (*model.Extension, error) {
	e, err := scanExtension(q.QueryRowContext(ctx, "SELECT "+extensionColumns+extensionFrom+" WHERE "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding extension: %w", err)
	}
	return e, nil
}

func listExtensions(ctx context.Context, q querier, query string, args ...any) ([]*model.Extension, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing extensions: %w", err)
	}
	defer rows.Close()

	var result []*model.Extension
	for rows.Next() {
		e, err := scanExtension(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning extension: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) FindExtension(ctx context.Context, namespace, name string) (*model.Extension, error) {
	return findExtension(ctx, s.db, "n.name = ? COLLATE NOCASE AND e.name = ? COLLATE NOCASE", namespace, name)
}

func (s *SQLiteDatabase) FindExtensionByID(ctx context.Context, id int64) (*model.Extension, error) {
	return findExtension(ctx, s.db, "e.id = ?", id)
}

func (s *SQLiteDatabase) FindOrCreateExtension(ctx context.Context, namespaceID int64, name, publicID string) (*model.Extension, error) {
	var ext *model.Extension
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := findExtension(ctx, tx, "e.namespace_id = ? AND e.name = ? COLLATE NOCASE", namespaceID, name)
		if err != nil {
			return err
		}
		if existing != nil {
			ext = existing
			return nil
		}

		res, err := tx.ExecContext(ctx,
			"INSERT INTO extensions (public_id, namespace_id, name, created_at) VALUES (?, ?, ?, ?)",
			publicID, namespaceID, name, s.clock.Now())
		if err != nil {
			return fmt.Errorf("creating extension: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading extension id: %w", err)
		}
		ext, err = findExtension(ctx, tx, "e.id = ?", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ext, nil
}

func (s *SQLiteDatabase) ListExtensionsInNamespace(ctx context.Context, namespaceID int64) ([]*model.Extension, error) {
	return listExtensions(ctx, s.db,
		"SELECT "+extensionColumns+extensionFrom+" WHERE e.namespace_id = ? ORDER BY e.name", namespaceID)
}

func (s *SQLiteDatabase) ListExtensionsPublishedBy(ctx context.Context, user string) ([]*model.Extension, error) {
	return listExtensions(ctx, s.db,
		"SELECT "+extensionColumns+extensionFrom+
			" WHERE e.id IN (SELECT extension_id FROM extension_versions WHERE published_by = ?) ORDER BY n.name, e.name", user)
}

func (s *SQLiteDatabase) SearchExtensions(ctx context.Context, q registry.SearchQuery) ([]*model.Extension, int, error) {
	where, args := searchConditions(q)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+extensionFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting extensions: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query := "SELECT " + extensionColumns + extensionFrom + where + searchOrder(q) + " LIMIT ? OFFSET ?"
	exts, err := listExtensions(ctx, s.db, query, append(args, limit, q.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return exts, total, nil
}

// activeVersionExists builds a predicate over the extension's active versions.
func activeVersionExists(cond string) string {
	return "EXISTS (SELECT 1 FROM extension_versions v WHERE v.extension_id = e.id AND v.active = 1 AND " + cond + ")"
}

func searchConditions(q registry.SearchQuery) (string, []any) {
	var conds []string
	var args []any

	if !q.IncludeInactive {
		conds = append(conds, "e.active = 1")
	}
	if len(q.PublicIDs) > 0 {
		conds = append(conds, "e.public_id IN ("+placeholders(len(q.PublicIDs))+")")
		for _, id := range q.PublicIDs {
			args = append(args, id)
		}
	}
	if len(q.FullNames) > 0 {
		conds = append(conds, "lower(n.name || '.' || e.name) IN ("+placeholders(len(q.FullNames))+")")
		for _, name := range q.FullNames {
			args = append(args, strings.ToLower(name))
		}
	}
	if q.Text != "" {
		like := "%" + q.Text + "%"
		conds = append(conds, "(e.name LIKE ? OR n.name LIKE ? OR "+
			activeVersionExists("(v.display_name LIKE ? OR v.description LIKE ? OR v.tags LIKE ?)")+")")
		args = append(args, like, like, like, like, like)
	}
	for _, tag := range q.Tags {
		conds = append(conds, activeVersionExists("v.tags LIKE ?"))
		args = append(args, `%"`+tag+`"%`)
	}
	if q.Category != "" {
		conds = append(conds, activeVersionExists("v.categories LIKE ?"))
		args = append(args, `%"`+q.Category+`"%`)
	}
	if q.TargetPlatform != "" {
		conds = append(conds, activeVersionExists("v.target_platform IN (?, ?)"))
		args = append(args, q.TargetPlatform, model.TargetPlatformUniversal)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func searchOrder(q registry.SearchQuery) string {
	dir := " DESC"
	if q.SortAscending {
		dir = " ASC"
	}
	var key string
	switch q.SortBy {
	case "downloadCount":
		key = "e.download_count" + dir
	case "averageRating":
		key = "COALESCE(e.average_rating, 0)" + dir
	case "timestamp":
		key = "(SELECT MAX(v.timestamp) FROM extension_versions v WHERE v.extension_id = e.id AND v.active = 1)" + dir
	default:
		key = "e.download_count DESC"
	}
	return " ORDER BY " + key + ", n.name ASC, e.name ASC"
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (s *SQLiteDatabase) RenameExtension(ctx context.Context, extensionID int64, newName string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE extensions SET name = ? WHERE id = ?", newName, extensionID); err != nil {
		return fmt.Errorf("renaming extension: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteExtension(ctx context.Context, extensionID int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM extensions WHERE id = ?", extensionID); err != nil {
		return fmt.Errorf("deleting extension: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) IncrementDownloadCount(ctx context.Context, extensionID int64) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE extensions SET download_count = download_count + 1 WHERE id = ?", extensionID); err != nil {
		return fmt.Errorf("incrementing download count: %w", err)
	}
	return nil
}

// Version operations

const versionColumns = `id, extension_id, version, target_platform,
	semver_major, semver_minor, semver_patch, semver_pre_release, semver_is_pre_release,
	pre_release, active, timestamp, display_name, description,
	categories, tags, dependencies, bundled_extensions, engines,
	license, repository, published_by, signature_key_pair_id`

func scanVersion(row rowScanner) (*model.ExtensionVersion, error) {
	var v model.ExtensionVersion
	var categories, tags, deps, bundled, engines string
	var keyPairID sql.NullString
	if err := row.Scan(&v.ID, &v.ExtensionID, &v.Version, &v.TargetPlatform,
		&v.SemverMajor, &v.SemverMinor, &v.SemverPatch, &v.SemverPreRelease, &v.SemverIsPreRelease,
		&v.PreRelease, &v.Active, &v.Timestamp, &v.DisplayName, &v.Description,
		&categories, &tags, &deps, &bundled, &engines,
		&v.License, &v.Repository, &v.PublishedBy, &keyPairID); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw string
		dst *[]string
	}{
		{categories, &v.Categories},
		{tags, &v.Tags},
		{deps, &v.Dependencies},
		{bundled, &v.BundledExtensions},
		{engines, &v.Engines},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("decoding list column: %w", err)
		}
	}
	v.SignatureKeyPairID = keyPairID.String
	return &v, nil
}

func encodeList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(list)
	return string(data)
}

func (s *SQLiteDatabase) CreateVersion(ctx context.Context, v *model.ExtensionVersion) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO extension_versions (
		extension_id, version, target_platform,
		semver_major, semver_minor, semver_patch, semver_pre_release, semver_is_pre_release,
		universal_target_platform, pre_release, active, timestamp, display_name, description,
		categories, tags, dependencies, bundled_extensions, engines,
		license, repository, published_by, signature_key_pair_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''))`,
		v.ExtensionID, v.Version, v.TargetPlatform,
		v.SemverMajor, v.SemverMinor, v.SemverPatch, v.SemverPreRelease, v.SemverIsPreRelease,
		v.IsUniversal(), v.PreRelease, v.Active, v.Timestamp, v.DisplayName, v.Description,
		encodeList(v.Categories), encodeList(v.Tags), encodeList(v.Dependencies),
		encodeList(v.BundledExtensions), encodeList(v.Engines),
		v.License, v.Repository, v.PublishedBy, v.SignatureKeyPairID)
	if err != nil {
		return fmt.Errorf("creating version: %w", err)
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading version id: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindVersionByID(ctx context.Context, id int64) (*model.ExtensionVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, "SELECT "+versionColumns+" FROM extension_versions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding version: %w", err)
	}
	return v, nil
}

func (s *SQLiteDatabase) FindVersion(ctx context.Context, extensionID int64, version, targetPlatform string) (*model.ExtensionVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx,
		"SELECT "+versionColumns+" FROM extension_versions WHERE extension_id = ? AND version = ? AND target_platform = ?",
		extensionID, version, targetPlatform))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding version: %w", err)
	}
	return v, nil
}

func (s *SQLiteDatabase) ListVersions(ctx context.Context, extensionID int64) ([]*model.ExtensionVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+versionColumns+" FROM extension_versions WHERE extension_id = ? ORDER BY id", extensionID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var result []*model.ExtensionVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// refreshExtensionActive re-derives extensions.active from the versions.
func refreshExtensionActive(ctx context.Context, q querier, extensionID int64) error {
	_, err := q.ExecContext(ctx, `UPDATE extensions SET active = EXISTS (
		SELECT 1 FROM extension_versions WHERE extension_id = extensions.id AND active = 1
	) WHERE id = ?`, extensionID)
	if err != nil {
		return fmt.Errorf("refreshing extension active flag: %w", err)
	}
	return nil
}

func versionExtensionID(ctx context.Context, q querier, versionID int64) (int64, error) {
	var extID int64
	err := q.QueryRowContext(ctx, "SELECT extension_id FROM extension_versions WHERE id = ?", versionID).Scan(&extID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("version %d does not exist", versionID)
	}
	if err != nil {
		return 0, fmt.Errorf("finding version extension: %w", err)
	}
	return extID, nil
}

func insertFileResource(ctx context.Context, q querier, versionID int64, r *model.FileResource) error {
	res, err := q.ExecContext(ctx, `INSERT INTO file_resources
		(extension_version_id, type, name, storage_type, storage_key, content, size, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		versionID, r.Type, r.Name, r.StorageType, r.StorageKey, r.Content, r.Size, r.Digest)
	if err != nil {
		return fmt.Errorf("inserting file resource %s: %w", r.Name, err)
	}
	r.ExtensionVersionID = versionID
	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading file resource id: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ActivateVersion(ctx context.Context, versionID int64, keyPairID string, resources []*model.FileResource) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		extID, err := versionExtensionID(ctx, tx, versionID)
		if err != nil {
			return err
		}
		for _, r := range resources {
			if err := insertFileResource(ctx, tx, versionID, r); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE extension_versions SET active = 1, signature_key_pair_id = NULLIF(?, '') WHERE id = ?",
			keyPairID, versionID); err != nil {
			return fmt.Errorf("activating version: %w", err)
		}
		return refreshExtensionActive(ctx, tx, extID)
	})
}

func (s *SQLiteDatabase) SetVersionActive(ctx context.Context, versionID int64, active bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		extID, err := versionExtensionID(ctx, tx, versionID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE extension_versions SET active = ? WHERE id = ?", active, versionID); err != nil {
			return fmt.Errorf("updating version active flag: %w", err)
		}
		return refreshExtensionActive(ctx, tx, extID)
	})
}

func (s *SQLiteDatabase) DeactivateVersionsPublishedBy(ctx context.Context, user string) (int64, error) {
	var changed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE extension_versions SET active = 0 WHERE published_by = ? AND active = 1", user)
		if err != nil {
			return fmt.Errorf("deactivating versions: %w", err)
		}
		if changed, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("counting deactivated versions: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE extensions SET active = EXISTS (
			SELECT 1 FROM extension_versions WHERE extension_id = extensions.id AND active = 1
		) WHERE id IN (SELECT extension_id FROM extension_versions WHERE published_by = ?)`, user)
		if err != nil {
			return fmt.Errorf("refreshing extension active flags: %w", err)
		}
		return nil
	})
	return changed, err
}

func (s *SQLiteDatabase) DeleteVersion(ctx context.Context, versionID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		extID, err := versionExtensionID(ctx, tx, versionID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM extension_versions WHERE id = ?", versionID); err != nil {
			return fmt.Errorf("deleting version: %w", err)
		}
		return refreshExtensionActive(ctx, tx, extID)
	})
}

func (s *SQLiteDatabase) ReplaceSignature(ctx context.Context, versionID int64, keyPairID string, signature *model.FileResource) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM file_resources WHERE extension_version_id = ? AND type = ?",
			versionID, model.ResourceSignature); err != nil {
			return fmt.Errorf("removing old signature: %w", err)
		}
		if err := insertFileResource(ctx, tx, versionID, signature); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE extension_versions SET signature_key_pair_id = ? WHERE id = ?", keyPairID, versionID); err != nil {
			return fmt.Errorf("updating version key pair: %w", err)
		}
		return nil
	})
}

// File resource operations

func (s *SQLiteDatabase) ListFileResources(ctx context.Context, versionID int64) ([]*model.FileResource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, extension_version_id, type, name, storage_type, storage_key, content, size, digest
		FROM file_resources WHERE extension_version_id = ? ORDER BY id`, versionID)
	if err != nil {
		return nil, fmt.Errorf("listing file resources: %w", err)
	}
	defer rows.Close()

	var result []*model.FileResource
	for rows.Next() {
		var r model.FileResource
		if err := rows.Scan(&r.ID, &r.ExtensionVersionID, &r.Type, &r.Name, &r.StorageType,
			&r.StorageKey, &r.Content, &r.Size, &r.Digest); err != nil {
			return nil, fmt.Errorf("scanning file resource: %w", err)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

// Signing key operations

const keyPairColumns = "id, public_key_text, private_key, active, created_at"

func (s *SQLiteDatabase) findKeyPair(ctx context.Context, where string, args ...any) (*model.SignatureKeyPair, error) {
	var kp model.SignatureKeyPair
	err := s.db.QueryRowContext(ctx, "SELECT "+keyPairColumns+" FROM signature_key_pairs WHERE "+where, args...).
		Scan(&kp.ID, &kp.PublicKeyText, &kp.PrivateKey, &kp.Active, &kp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding key pair: %w", err)
	}
	return &kp, nil
}

func (s *SQLiteDatabase) ActiveKeyPair(ctx context.Context) (*model.SignatureKeyPair, error) {
	return s.findKeyPair(ctx, "active = 1")
}

func (s *SQLiteDatabase) FindKeyPair(ctx context.Context, id string) (*model.SignatureKeyPair, error) {
	return s.findKeyPair(ctx, "id = ?", id)
}

func (s *SQLiteDatabase) ActivateKeyPair(ctx context.Context, kp *model.SignatureKeyPair) error {
	if kp.CreatedAt.IsZero() {
		kp.CreatedAt = s.clock.Now()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "UPDATE signature_key_pairs SET active = 0 WHERE active = 1"); err != nil {
			return fmt.Errorf("deactivating previous key pair: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO signature_key_pairs ("+keyPairColumns+") VALUES (?, ?, ?, 1, ?)",
			kp.ID, kp.PublicKeyText, kp.PrivateKey, kp.CreatedAt); err != nil {
			return fmt.Errorf("inserting key pair: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	kp.Active = true
	return nil
}

// Operation log

func (s *SQLiteDatabase) CreateOperation(ctx context.Context, operation, parameters string) (*model.Operation, error) {
	op := &model.Operation{Operation: operation, Parameters: parameters, Status: "running", StartedAt: s.clock.Now()}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO operations (operation, parameters, status, started_at) VALUES (?, ?, ?, ?)",
		op.Operation, op.Parameters, op.Status, op.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishOperation(ctx context.Context, id int64, status string) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE operations SET status = ?, finished_at = ? WHERE id = ?", status, s.clock.Now(), id); err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(ctx context.Context, limit int) ([]*model.Operation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, operation, parameters, status, started_at, finished_at FROM operations ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var result []*model.Operation
	for rows.Next() {
		var op model.Operation
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status, &op.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			op.FinishedAt = &finished.Time
		}
		result = append(result, &op)
	}
	return result, rows.Err()
}

// CheckMigrations verifies that the database schema is up to date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Migrate applies pending migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}
