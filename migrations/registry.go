package migrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	kick "github.com/goliatone/go-kick"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// SourceKick labels the embedded token and webhook delivery schema.
	SourceKick = "go-kick"

	migrationsDir = "data/sql/migrations"
)

// Source is one migration directory resolved for a single dialect.
type Source struct {
	Dialect string
	Label   string
	FS      fs.FS
}

// RegisterFunc receives each Source in application order.
type RegisterFunc func(ctx context.Context, source Source) error

// Sources resolves the embedded kick schema for dialect, followed by the
// matching directory of every extra tree. Extra trees share the embedded
// layout: postgres files at the root, sqlite files under sqlite/, optionally
// nested in data/sql/migrations.
func Sources(dialect string, extra ...fs.FS) ([]Source, error) {
	dialect = strings.TrimSpace(strings.ToLower(dialect))
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}

	sources := make([]Source, 0, len(extra)+1)
	kickFS, err := dialectFS(kick.GetMigrationsFS(), dialect)
	if err != nil {
		return nil, fmt.Errorf("migrations: %s: %w", SourceKick, err)
	}
	sources = append(sources, Source{Dialect: dialect, Label: SourceKick, FS: kickFS})

	for i, root := range extra {
		if root == nil {
			continue
		}
		label := fmt.Sprintf("extra-%d", i+1)
		fsys, err := dialectFS(root, dialect)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s: %w", label, err)
		}
		sources = append(sources, Source{Dialect: dialect, Label: label, FS: fsys})
	}
	return sources, nil
}

// Register resolves Sources for dialect and hands each one to registerFn,
// stopping at the first error.
func Register(ctx context.Context, dialect string, registerFn RegisterFunc, extra ...fs.FS) ([]Source, error) {
	if registerFn == nil {
		return nil, errors.New("migrations: register function is required")
	}
	sources, err := Sources(dialect, extra...)
	if err != nil {
		return nil, err
	}
	for _, source := range sources {
		if err := registerFn(ctx, source); err != nil {
			return sources, fmt.Errorf("migrations: register %s (%s): %w", source.Label, source.Dialect, err)
		}
	}
	return sources, nil
}

func dialectFS(root fs.FS, dialect string) (fs.FS, error) {
	base := root
	if info, err := fs.Stat(root, migrationsDir); err == nil && info.IsDir() {
		sub, err := fs.Sub(root, migrationsDir)
		if err != nil {
			return nil, err
		}
		base = sub
	}
	if dialect == DialectSQLite {
		sub, err := fs.Sub(base, "sqlite")
		if err != nil {
			return nil, fmt.Errorf("resolve sqlite directory: %w", err)
		}
		base = sub
	}

	matches, err := fs.Glob(base, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("glob %s migrations: %w", dialect, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no %s *.up.sql files", dialect)
	}
	return base, nil
}
