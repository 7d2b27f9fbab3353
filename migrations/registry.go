// Package migrations exposes the embedded SQL migration tree per dialect
// so callers can hand each filesystem to their persistence layer.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	mtd "github.com/goliatone/go-mtd"
)

// SourceLabel identifies this module's migrations in multi-source setups.
const SourceLabel = "go-mtd"

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const migrationsRoot = "data/sql/migrations"

// FilesystemSpec pairs a dialect with its migration filesystem. Path is the
// location inside the embedded tree, kept for error reporting.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// RegisterFunc receives one dialect's migration filesystem.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

// Filesystems returns the embedded migration tree split by dialect. The
// postgres scripts live at the tree root, the sqlite alternatives under
// sqlite/. Each filesystem is validated to contain at least one *.up.sql.
func Filesystems() ([]FilesystemSpec, error) {
	root, err := fs.Sub(mtd.GetMigrationsFS(), migrationsRoot)
	if err != nil {
		return nil, fmt.Errorf("migrations: %s not found: %w", migrationsRoot, err)
	}
	sqliteFS, err := fs.Sub(root, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: migrationsRoot, FS: root},
		{Dialect: DialectSQLite, Path: migrationsRoot + "/sqlite", FS: sqliteFS},
	}
	for _, spec := range filesystems {
		matches, globErr := fs.Glob(spec.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", spec.Dialect, spec.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
		}
	}
	return filesystems, nil
}

// Register invokes registerFn once per requested dialect with that dialect's
// filesystem. With no dialects given, both are registered.
func Register(ctx context.Context, registerFn RegisterFunc, dialects ...string) error {
	if registerFn == nil {
		return fmt.Errorf("migrations: register function is required")
	}

	filesystems, err := Filesystems()
	if err != nil {
		return err
	}
	byDialect := make(map[string]FilesystemSpec, len(filesystems))
	for _, spec := range filesystems {
		byDialect[spec.Dialect] = spec
	}

	if len(dialects) == 0 {
		dialects = []string{DialectPostgres, DialectSQLite}
	}
	for _, dialect := range dialects {
		dialect = strings.TrimSpace(strings.ToLower(dialect))
		spec, ok := byDialect[dialect]
		if !ok {
			return fmt.Errorf("migrations: unknown dialect %q", dialect)
		}
		if err := registerFn(ctx, spec.Dialect, SourceLabel, spec.FS); err != nil {
			return fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return nil
}
