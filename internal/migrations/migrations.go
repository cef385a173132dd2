// Package migrations 内嵌数据库 schema，并按版本号顺序升级。
package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var files embed.FS

// DB 是 pgxpool.Pool 的子集
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Migration struct {
	Version int
	Name    string
	SQL     string
}

type Runner struct {
	db         DB
	migrations []Migration
	logger     *zap.Logger
}

func NewRunner(db DB, logger *zap.Logger) (*Runner, error) {
	ms, err := Load(files, "sql")
	if err != nil {
		return nil, err
	}
	return &Runner{db: db, migrations: ms, logger: logger}, nil
}

// Load 读取 dir 下形如 0001_name.sql 的文件并按版本排序
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var ms []Migration
	seen := map[int]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: name must be <version>_<name>.sql", e.Name())
		}
		v, err := strconv.Atoi(prefix)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("migration %s: invalid version %q", e.Name(), prefix)
		}
		if other, dup := seen[v]; dup {
			return nil, fmt.Errorf("migration %s: version %d already used by %s", e.Name(), v, other)
		}
		seen[v] = e.Name()

		body, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		ms = append(ms, Migration{Version: v, Name: e.Name(), SQL: string(body)})
	}

	sort.Slice(ms, func(i, j int) bool { return ms[i].Version < ms[j].Version })
	return ms, nil
}

// Latest 内嵌 schema 的最高版本
func (r *Runner) Latest() int {
	if len(r.migrations) == 0 {
		return 0
	}
	return r.migrations[len(r.migrations)-1].Version
}

// Version 返回数据库当前版本；schema_version 表不存在时为 0
func (r *Runner) Version(ctx context.Context) (int, error) {
	return currentVersion(ctx, r.db)
}

func currentVersion(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}) (int, error) {
	var version *int
	if err := q.QueryRow(ctx, `SELECT max(version) FROM schema_version`).Scan(&version); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
			return 0, nil
		}
		return -1, err
	}
	if version == nil {
		return 0, nil
	}
	return *version, nil
}

// Upgrade 在单个事务中应用所有未执行的迁移，返回应用的数量
func (r *Runner) Upgrade(ctx context.Context) (int, error) {
	current, err := r.Version(ctx)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_version: %w", err)
	}

	applied := 0
	for _, m := range r.migrations {
		if m.Version <= current {
			continue
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			return 0, fmt.Errorf("apply %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM schema_version`); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, m.Version); err != nil {
			return 0, err
		}
		r.logger.Info("Applied migration", zap.String("name", m.Name), zap.Int("version", m.Version))
		applied++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return applied, nil
}

// Check 数据库版本落后于内嵌 schema 时返回错误
func (r *Runner) Check(ctx context.Context) error {
	current, err := r.Version(ctx)
	if err != nil {
		return err
	}
	if current < r.Latest() {
		return fmt.Errorf("schema is outdated: %d (in db) < %d (embedded); run `mochimoctl migrate`", current, r.Latest())
	}
	return nil
}
