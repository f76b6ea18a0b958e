package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// Statements returns every migration statement in file order. Migrations are
// idempotent, so replaying them on startup is safe.
func Statements() ([]string, error) {
	files, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var out []string
	for _, file := range files {
		content, err := migrations.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}
		for _, stmt := range strings.Split(string(content), ";") {
			if q := strings.TrimSpace(stmt); q != "" {
				out = append(out, q)
			}
		}
	}
	return out, nil
}

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts, err := Statements()
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("exec migration: %w\nstmt=%s", err, q)
		}
	}
	return nil
}
