// Package migrate applies the SQL files under ops/migrations/sql. The
// layout is paired files: NNNN_name.up.sql with an NNNN_name.down.sql
// companion; bookkeeping lives in the schema_migrations table.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const ledgerTable = "schema_migrations"

// Applied is one row of migration bookkeeping.
type Applied struct {
	Name      string
	AppliedAt time.Time
}

// Runner executes migrations from a single directory against one database.
type Runner struct {
	db  *sql.DB
	dir string
}

func NewRunner(db *sql.DB, dir string) *Runner {
	return &Runner{db: db, dir: dir}
}

// Up applies every pending .up.sql in name order and returns what was applied.
func (r *Runner) Up(ctx context.Context) ([]string, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	done, err := r.appliedSet(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := r.upFiles()
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, name := range pending {
		if done[name] {
			continue
		}
		if err := r.execFile(ctx, filepath.Join(r.dir, name)); err != nil {
			return applied, fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx,
			`insert into `+ledgerTable+`(name, applied_at) values ($1, $2)`,
			name, time.Now().UTC()); err != nil {
			return applied, err
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// Down rolls back the most recently applied migration and returns its name.
func (r *Runner) Down(ctx context.Context) (string, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return "", err
	}
	history, err := r.Status(ctx)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", errors.New("no migrations applied")
	}
	last := history[len(history)-1].Name

	down := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	if _, err := os.Stat(filepath.Join(r.dir, down)); err != nil {
		return "", fmt.Errorf("missing down migration for %s", last)
	}
	if err := r.execFile(ctx, filepath.Join(r.dir, down)); err != nil {
		return "", fmt.Errorf("rollback %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx, `delete from `+ledgerTable+` where name = $1`, last)
	return last, err
}

// Status lists applied migrations in application order.
func (r *Runner) Status(ctx context.Context) ([]Applied, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`select name, applied_at from `+ledgerTable+` order by applied_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []Applied
	for rows.Next() {
		var a Applied
		if err := rows.Scan(&a.Name, &a.AppliedAt); err != nil {
			return nil, err
		}
		history = append(history, a)
	}
	return history, rows.Err()
}

func (r *Runner) ensureLedger(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		create table if not exists `+ledgerTable+` (
			name text primary key,
			applied_at timestamptz not null default now()
		)`)
	return err
}

func (r *Runner) appliedSet(ctx context.Context) (map[string]bool, error) {
	history, err := r.Status(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(history))
	for _, a := range history {
		set[a.Name] = true
	}
	return set, nil
}

// upFiles returns the sorted .up.sql names in the migrations directory.
func (r *Runner) upFiles() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// execFile runs one migration file inside a transaction. pgx's extended
// protocol rejects multi-statement strings, so the file is split on
// semicolons outside string literals.
func (r *Runner) execFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range splitStatements(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func splitStatements(script string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inQuote  bool
	)
	for _, ch := range script {
		switch {
		case ch == '\'':
			inQuote = !inQuote
			current.WriteRune(ch)
		case ch == ';' && !inQuote:
			if s := strings.TrimSpace(current.String()); s != "" {
				stmts = append(stmts, s)
			}
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}
