// Package migrate applies the goose SQL migrations. They are embedded in every
// binary so deploys never depend on files next to the executable.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where `create` writes new migrations in the source tree.
const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded exposes the migrations compiled into the binary.
func Embedded() fs.FS {
	return embedded
}

// Result is one migration the provider ran.
type Result struct {
	Version   int64
	File      string
	Direction string
	Took      time.Duration
}

// Status is the applied state of one known migration.
type Status struct {
	Version   int64
	File      string
	Applied   bool
	AppliedAt time.Time
}

// Migrator runs migrations from the embedded set or, when dir is set, from
// a directory on disk.
type Migrator struct {
	provider *goose.Provider
}

// New never closes db; the caller owns it.
func New(db *sql.DB, dir string) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	fsys, err := migrationsFS(dir)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

func migrationsFS(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, embeddedDir)
	}
	return os.DirFS(dir), nil
}

func (m *Migrator) Up(ctx context.Context) ([]Result, error) {
	res, err := m.provider.Up(ctx)
	return results(res), wrap("up", err)
}

// Down rolls back the most recent migration only.
func (m *Migrator) Down(ctx context.Context) ([]Result, error) {
	res, err := m.provider.Down(ctx)
	if res == nil {
		return nil, wrap("down", err)
	}
	return results([]*goose.MigrationResult{res}), wrap("down", err)
}

// To moves the schema up or down until target (YYYYMMDDHHMMSS) is the
// newest applied version.
func (m *Migrator) To(ctx context.Context, target string) ([]Result, error) {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || version < 0 {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", target)
	}
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current == version:
		return nil, nil
	case current < version:
		res, err := m.provider.UpTo(ctx, version)
		return results(res), wrap(fmt.Sprintf("up-to %d", version), err)
	default:
		res, err := m.provider.DownTo(ctx, version)
		return results(res), wrap(fmt.Sprintf("down-to %d", version), err)
	}
}

func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	raw, err := m.provider.Status(ctx)
	if err != nil {
		return nil, wrap("status", err)
	}
	out := make([]Status, 0, len(raw))
	for _, s := range raw {
		out = append(out, Status{
			Version:   s.Source.Version,
			File:      s.Source.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}

func results(raw []*goose.MigrationResult) []Result {
	out := make([]Result, 0, len(raw))
	for _, r := range raw {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, Result{
			Version:   r.Source.Version,
			File:      r.Source.Path,
			Direction: r.Direction,
			Took:      r.Duration,
		})
	}
	return out
}

func wrap(op string, err error) error {
	if err == nil || errors.Is(err, goose.ErrNoNextVersion) {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
