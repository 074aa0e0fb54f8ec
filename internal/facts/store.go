package facts

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// storeSchema mirrors the JSON relations one table per relation, so the
// same rows can be queried with SQL.
var storeSchema = []string{
	`CREATE TABLE designs (name TEXT, file TEXT, has_forceable_signals INTEGER)`,
	`CREATE TABLE signals (module TEXT, name TEXT, kind TEXT, shape TEXT, width INTEGER, elements INTEGER,
		forceable INTEGER, primary_io INTEGER, public_rw INTEGER, file TEXT, line INTEGER)`,
	`CREATE TABLE instances (scope TEXT, module TEXT, signal TEXT, file TEXT)`,
	`CREATE TABLE shadow_sets (scope TEXT, signal TEXT, read_alias TEXT, enable TEXT, value TEXT, file TEXT)`,
	`CREATE TABLE blocks (scope TEXT, label TEXT, kind TEXT, statements INTEGER, file TEXT, line INTEGER)`,
	`CREATE TABLE statements (scope TEXT, block TEXT, kind TEXT, targets TEXT, text TEXT,
		suppress_blkandnblk INTEGER, file TEXT, line INTEGER)`,
	`CREATE TABLE refs (scope TEXT, block TEXT, signal TEXT, access TEXT, file TEXT, line INTEGER)`,
	`CREATE TABLE diagnostics (code TEXT, severity TEXT, signal TEXT, scope TEXT, file TEXT, line INTEGER)`,
	`CREATE INDEX statements_kind ON statements (kind)`,
	`CREATE INDEX refs_signal ON refs (scope, signal)`,
}

// OpenStore opens (creating if needed) a SQLite database file.
func OpenStore(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return db, nil
}

// WriteStore replaces the contents of path with tables.
func WriteStore(ctx context.Context, path string, tables Tables) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove old store: %w", err)
	}
	db, err := OpenStore(path)
	if err != nil {
		return err
	}
	defer db.Close()
	return Export(ctx, db, tables)
}

// Export creates the fact schema in db and inserts every row in one
// transaction. The tables must not exist yet.
func Export(ctx context.Context, db *sql.DB, tables Tables) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, ddl := range storeSchema {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	t := tables
	inserts := []struct {
		query string
		n     int
		row   func(i int) []any
	}{
		{`INSERT INTO designs VALUES (?, ?, ?)`, len(t.Designs), func(i int) []any {
			r := t.Designs[i]
			return []any{r.Name, r.File, r.HasForceableSignals}
		}},
		{`INSERT INTO signals VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(t.Signals), func(i int) []any {
			r := t.Signals[i]
			return []any{r.Module, r.Name, r.Kind, r.Shape, r.Width, r.Elements, r.Forceable, r.PrimaryIO, r.PublicRW, r.File, r.Line}
		}},
		{`INSERT INTO instances VALUES (?, ?, ?, ?)`, len(t.Instances), func(i int) []any {
			r := t.Instances[i]
			return []any{r.Scope, r.Module, r.Signal, r.File}
		}},
		{`INSERT INTO shadow_sets VALUES (?, ?, ?, ?, ?, ?)`, len(t.ShadowSets), func(i int) []any {
			r := t.ShadowSets[i]
			return []any{r.Scope, r.Signal, r.ReadAlias, r.Enable, r.Value, r.File}
		}},
		{`INSERT INTO blocks VALUES (?, ?, ?, ?, ?, ?)`, len(t.Blocks), func(i int) []any {
			r := t.Blocks[i]
			return []any{r.Scope, r.Label, r.Kind, r.Statements, r.File, r.Line}
		}},
		{`INSERT INTO statements VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, len(t.Statements), func(i int) []any {
			r := t.Statements[i]
			return []any{r.Scope, r.Block, r.Kind, r.Targets, r.Text, r.NoBlkNblkWarn, r.File, r.Line}
		}},
		{`INSERT INTO refs VALUES (?, ?, ?, ?, ?, ?)`, len(t.References), func(i int) []any {
			r := t.References[i]
			return []any{r.Scope, r.Block, r.Signal, r.Access, r.File, r.Line}
		}},
		{`INSERT INTO diagnostics VALUES (?, ?, ?, ?, ?, ?)`, len(t.Diagnostics), func(i int) []any {
			r := t.Diagnostics[i]
			return []any{r.Code, r.Severity, r.Signal, r.Scope, r.File, r.Line}
		}},
	}
	for _, ins := range inserts {
		if ins.n == 0 {
			continue
		}
		stmt, err := tx.PrepareContext(ctx, ins.query)
		if err != nil {
			return fmt.Errorf("prepare %q: %w", ins.query, err)
		}
		for i := 0; i < ins.n; i++ {
			if _, err := stmt.ExecContext(ctx, ins.row(i)...); err != nil {
				_ = stmt.Close()
				return fmt.Errorf("insert row: %w", err)
			}
		}
		_ = stmt.Close()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}
	return nil
}
