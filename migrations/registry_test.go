package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	kick "github.com/goliatone/go-kick"
	_ "github.com/mattn/go-sqlite3"
)

func TestSources_ResolveEachDialect(t *testing.T) {
	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		sources, err := Sources(dialect)
		if err != nil {
			t.Fatalf("sources %s: %v", dialect, err)
		}
		if len(sources) != 1 || sources[0].Label != SourceKick || sources[0].Dialect != dialect {
			t.Fatalf("unexpected %s sources %+v", dialect, sources)
		}
		matches, err := fs.Glob(sources[0].FS, "*.up.sql")
		if err != nil {
			t.Fatalf("glob %s: %v", dialect, err)
		}
		if len(matches) != 2 {
			t.Fatalf("expected 2 %s up migrations, got %v", dialect, matches)
		}
	}
}

func TestSources_SQLiteDiffersFromPostgres(t *testing.T) {
	postgres, err := Sources(DialectPostgres)
	if err != nil {
		t.Fatalf("postgres sources: %v", err)
	}
	sqlite, err := Sources(" SQLite ")
	if err != nil {
		t.Fatalf("sqlite sources: %v", err)
	}
	pg, err := fs.ReadFile(postgres[0].FS, "00001_kick_tokens.up.sql")
	if err != nil {
		t.Fatalf("read postgres: %v", err)
	}
	lite, err := fs.ReadFile(sqlite[0].FS, "00001_kick_tokens.up.sql")
	if err != nil {
		t.Fatalf("read sqlite: %v", err)
	}
	if string(pg) == string(lite) {
		t.Fatalf("expected sqlite schema to come from the sqlite directory")
	}
}

func TestSources_RejectsUnknownDialect(t *testing.T) {
	if _, err := Sources("mysql"); err == nil {
		t.Fatalf("expected unsupported dialect to fail")
	}
}

func TestSources_AppendsExtraTrees(t *testing.T) {
	extra := fstest.MapFS{
		"data/sql/migrations/00100_app.up.sql":          {Data: []byte("CREATE TABLE app (id TEXT);")},
		"data/sql/migrations/sqlite/00100_app.up.sql":   {Data: []byte("CREATE TABLE app (id TEXT);")},
		"data/sql/migrations/sqlite/00100_app.down.sql": {Data: []byte("DROP TABLE app;")},
	}
	flat := fstest.MapFS{
		"00200_flat.up.sql":        {Data: []byte("SELECT 1;")},
		"sqlite/00200_flat.up.sql": {Data: []byte("SELECT 1;")},
	}

	sources, err := Sources(DialectSQLite, extra, nil, flat)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(sources) != 3 {
		t.Fatalf("expected kick plus two extra sources, got %d", len(sources))
	}
	if sources[0].Label != SourceKick || sources[1].Label != "extra-1" || sources[2].Label != "extra-3" {
		t.Fatalf("unexpected labels %q %q %q", sources[0].Label, sources[1].Label, sources[2].Label)
	}
	if _, err := fs.ReadFile(sources[1].FS, "00100_app.down.sql"); err != nil {
		t.Fatalf("expected nested sqlite directory, got %v", err)
	}
	if _, err := fs.ReadFile(sources[2].FS, "00200_flat.up.sql"); err != nil {
		t.Fatalf("expected flat sqlite directory, got %v", err)
	}
}

func TestSources_ExtraTreeWithoutDialectFiles(t *testing.T) {
	postgresOnly := fstest.MapFS{"00100_app.up.sql": {Data: []byte("SELECT 1;")}}
	if _, err := Sources(DialectSQLite, postgresOnly); err == nil {
		t.Fatalf("expected missing sqlite migrations to fail")
	}
}

func TestRegister_VisitsSourcesInOrder(t *testing.T) {
	extra := fstest.MapFS{"00100_app.up.sql": {Data: []byte("SELECT 1;")}}
	var labels []string
	_, err := Register(context.Background(), DialectPostgres, func(_ context.Context, source Source) error {
		labels = append(labels, source.Label)
		return nil
	}, extra)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if strings.Join(labels, ",") != SourceKick+",extra-1" {
		t.Fatalf("unexpected registration order %v", labels)
	}
}

func TestRegister_StopsOnError(t *testing.T) {
	calls := 0
	_, err := Register(context.Background(), DialectSQLite, func(context.Context, Source) error {
		calls++
		return errors.New("boom")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected first failure to stop registration, got calls=%d err=%v", calls, err)
	}
}

func TestRegister_RequiresRegisterFunc(t *testing.T) {
	if _, err := Register(context.Background(), DialectSQLite, nil); err == nil {
		t.Fatalf("expected missing register function to fail")
	}
}

func TestMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := kick.GetMigrationsFS()
	names := []string{
		"00001_kick_tokens",
		"00002_kick_webhook_deliveries",
	}
	for _, name := range names {
		for _, dir := range []string{"data/sql/migrations", "data/sql/migrations/sqlite"} {
			for _, direction := range []string{"up", "down"} {
				migrationPath := dir + "/" + name + "." + direction + ".sql"
				content, err := fs.ReadFile(root, migrationPath)
				if err != nil {
					t.Fatalf("read migration %s: %v", migrationPath, err)
				}
				if strings.TrimSpace(string(content)) == "" {
					t.Fatalf("expected migration %s to have SQL content", migrationPath)
				}
			}
		}
	}
}

func TestSQLiteWebhookDeliveriesMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-webhook-deliveries?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(kick.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	for _, migration := range []string{
		"00001_kick_tokens.up.sql",
		"00002_kick_webhook_deliveries.up.sql",
	} {
		if err := execSQLMigration(context.Background(), db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply migration %s: %v", migration, err)
		}
	}

	insertStatement := `
		INSERT INTO kick_webhook_deliveries (id, message_id, status, expires_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := db.ExecContext(context.Background(), insertStatement,
		"row-1", "msg-1", "claimed", "2026-03-14T12:10:00Z",
	); err != nil {
		t.Fatalf("insert first delivery: %v", err)
	}
	if _, err := db.ExecContext(context.Background(), insertStatement,
		"row-2", "msg-1", "claimed", "2026-03-14T12:10:00Z",
	); err == nil {
		t.Fatalf("expected unique message id violation")
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00002_kick_webhook_deliveries.down.sql"); err != nil {
		t.Fatalf("apply webhook deliveries migration down: %v", err)
	}

	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		"kick_webhook_deliveries",
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master after down migration: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected kick_webhook_deliveries to be dropped after down migration")
	}
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		"kick_tokens",
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master for kick_tokens: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected kick_tokens to survive the deliveries rollback")
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
