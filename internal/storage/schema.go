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
	"time"

	"gostoryboard/internal/version"
)

// schemaVersion tracks the library schema.
// Bump this when you perform schema changes and add a migration step.
const schemaVersion = 3

// Fixed-width UTC timestamps sort lexicographically in both dialects.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func stamp(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseStamp(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func ensureMetaAndVersion(ctx context.Context, db *DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.exec(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := stamp(time.Now())
	appv := version.String()
	var cur int
	err := db.queryRow(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// A fresh database starts at 0 and runs every migration.
		if _, err := db.exec(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 0, ?, ?, ?)`, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// Keep the existing schema for migrations
		if _, err := db.exec(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// migration brings the schema from version-1 to version.
type migration struct {
	version int
	stmts   func(d *DB) []string
	after   func(ctx context.Context, t *tx) error
}

var migrations = []migration{
	{
		version: 1,
		stmts: func(d *DB) []string {
			return []string{
				`CREATE TABLE IF NOT EXISTS projects (
					id          TEXT PRIMARY KEY,
					title       TEXT NOT NULL,
					mode        TEXT NOT NULL,
					scene_count INTEGER NOT NULL,
					thumbnail   TEXT,
					doc         ` + d.blobType() + ` NOT NULL,
					created_at  TEXT NOT NULL,
					updated_at  TEXT NOT NULL
				);`,
				`CREATE INDEX IF NOT EXISTS idx_projects_updated ON projects(updated_at);`,
				// Content-addressed artifact bytes; hash is the blob key.
				`CREATE TABLE IF NOT EXISTS blobs (
					hash       TEXT PRIMARY KEY,
					mime       TEXT NOT NULL,
					size       INTEGER NOT NULL,
					data       ` + d.blobType() + ` NOT NULL,
					created_at TEXT NOT NULL
				);`,
			}
		},
	},
	{
		// Track which blobs a project references so unreferenced ones can be pruned.
		version: 2,
		stmts: func(d *DB) []string {
			return []string{
				`CREATE TABLE IF NOT EXISTS project_blobs (
					project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					hash       TEXT NOT NULL,
					PRIMARY KEY(project_id, hash)
				);`,
				`CREATE INDEX IF NOT EXISTS idx_project_blobs_hash ON project_blobs(hash);`,
			}
		},
		after: backfillProjectBlobs,
	},
	{
		// Undo history: one row per entry, the cursor per project and the
		// blobs entries reference so pruning keeps them.
		version: 3,
		stmts: func(d *DB) []string {
			return []string{
				`CREATE TABLE IF NOT EXISTS history_entries (
					project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					idx        INTEGER NOT NULL,
					label      TEXT NOT NULL,
					at         TEXT NOT NULL,
					doc        ` + d.blobType() + ` NOT NULL,
					PRIMARY KEY(project_id, idx)
				);`,
				`CREATE TABLE IF NOT EXISTS history_cursors (
					project_id TEXT PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
					cur_idx    INTEGER NOT NULL
				);`,
				`CREATE TABLE IF NOT EXISTS history_blobs (
					project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					hash       TEXT NOT NULL,
					PRIMARY KEY(project_id, hash)
				);`,
				`CREATE INDEX IF NOT EXISTS idx_history_blobs_hash ON history_blobs(hash);`,
			}
		},
	},
}

// runMigrations applies incremental schema migrations up to schemaVersion,
// each step in its own transaction.
func runMigrations(ctx context.Context, db *DB) error {
	var cur int
	if err := db.queryRow(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		// Written by a newer build; do not downgrade.
		return nil
	}
	for _, m := range migrations {
		if m.version <= cur {
			continue
		}
		t, err := db.begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		for _, q := range m.stmts(db) {
			if _, err := t.exec(ctx, q); err != nil {
				_ = t.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", m.version, err)
			}
		}
		if m.after != nil {
			if err := m.after(ctx, t); err != nil {
				_ = t.Rollback()
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if _, err := t.exec(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, m.version, stamp(time.Now())); err != nil {
			_ = t.Rollback()
			return fmt.Errorf("migration %d update version: %w", m.version, err)
		}
		if err := t.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", m.version, err)
		}
		cur = m.version
	}
	return nil
}

// backfillProjectBlobs fills project_blobs from the stored documents of
// libraries created before version 2.
func backfillProjectBlobs(ctx context.Context, t *tx) error {
	rows, err := t.query(ctx, `SELECT id, doc FROM projects`)
	if err != nil {
		return fmt.Errorf("read projects: %w", err)
	}
	refs := map[string][]string{}
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			_ = rows.Close()
			return err
		}
		p, err := decodeDocument(raw)
		if err != nil {
			// Nothing usable is referenced by an unreadable document.
			continue
		}
		refs[id] = blobKeys(p)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	// Close the cursor before writing
	if err := rows.Close(); err != nil {
		return err
	}
	for id, keys := range refs {
		for _, k := range keys {
			if _, err := t.exec(ctx, `INSERT INTO project_blobs(project_id, hash) VALUES(?, ?) ON CONFLICT DO NOTHING`, id, k); err != nil {
				return fmt.Errorf("backfill %s: %w", id, err)
			}
		}
	}
	return nil
}
