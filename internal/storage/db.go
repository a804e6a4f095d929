/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	applog "gostoryboard/internal/log"

	// Postgres driver registered as "pgx"
	_ "github.com/jackc/pgx/v5/stdlib"
	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

// Dialect names the SQL flavour behind a DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DB is an open library database. Queries are written with ? placeholders
// and rebound for the dialect.
type DB struct {
	sql     *sql.DB
	dialect Dialect
	where   string
}

// OpenSQLite opens (creating if needed) the SQLite library at path,
// enables WAL mode and brings the schema up to date.
func OpenSQLite(path string) (*DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "open").With(
		slog.String("driver", string(SQLite)), slog.String("path", path),
	)
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	// URI with shared cache and a busy timeout; forward slashes for SQLite URIs.
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer is all SQLite can do anyway.
	sdb.SetMaxOpenConns(1)
	sdb.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := sdb.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = sdb.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := sdb.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		l.Warn("enable foreign_keys failed", slog.Any("err", err))
	}
	db := &DB{sql: sdb, dialect: SQLite, where: path}
	if err := db.prepare(ctx); err != nil {
		_ = sdb.Close()
		l.Error("prepare schema failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("library ready")
	return db, nil
}

// OpenPostgres connects to a Postgres library through the pgx stdlib driver.
func OpenPostgres(dsn string) (*DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "open").With(slog.String("driver", string(Postgres)))
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sdb, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sdb.PingContext(ctx); err != nil {
		_ = sdb.Close()
		l.Error("ping failed", slog.Any("err", err))
		return nil, fmt.Errorf("ping db: %w", err)
	}
	db := &DB{sql: sdb, dialect: Postgres, where: redactDSN(dsn)}
	if err := db.prepare(ctx); err != nil {
		_ = sdb.Close()
		l.Error("prepare schema failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("library ready", slog.String("dsn", db.where))
	return db, nil
}

// Dialect reports the SQL flavour.
func (d *DB) Dialect() Dialect { return d.dialect }

// String describes the database location; passwords are redacted.
func (d *DB) String() string { return string(d.dialect) + ":" + d.where }

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) prepare(ctx context.Context) error {
	if err := ensureMetaAndVersion(ctx, d); err != nil {
		return err
	}
	return runMigrations(ctx, d)
}

// rebind turns ? placeholders into $n for Postgres.
func (d *DB) rebind(q string) string {
	if d.dialect != Postgres || !strings.Contains(q, "?") {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *DB) blobType() string {
	if d.dialect == Postgres {
		return "BYTEA"
	}
	return "BLOB"
}

func (d *DB) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return d.sql.ExecContext(ctx, d.rebind(q), args...)
}

func (d *DB) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return d.sql.QueryRowContext(ctx, d.rebind(q), args...)
}

func (d *DB) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return d.sql.QueryContext(ctx, d.rebind(q), args...)
}

// tx is a transaction that rebinds like its DB.
type tx struct {
	*sql.Tx
	db *DB
}

func (d *DB) begin(ctx context.Context) (*tx, error) {
	t, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &tx{Tx: t, db: d}, nil
}

func (t *tx) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return t.ExecContext(ctx, t.db.rebind(q), args...)
}

func (t *tx) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return t.QueryContext(ctx, t.db.rebind(q), args...)
}

// redactDSN hides the password of a URL-style DSN.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		creds = creds[:i] + ":***"
	}
	return dsn[:scheme+3] + creds + dsn[at:]
}
