/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gostoryboard/internal/domain"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/resource"
)

// History is the stored undo history of a project: entries oldest first and
// the index of the current one.
type History struct {
	Entries []domain.HistoryEntry
	Cursor  int
}

// language=SQL
const insertHistoryEntrySQL = `INSERT INTO history_entries(project_id, idx, label, at, doc) VALUES (?, ?, ?, ?, ?)`

// language=SQL
const listHistoryEntriesSQL = `SELECT label, at, doc FROM history_entries WHERE project_id = ? ORDER BY idx`

// language=SQL
const upsertHistoryCursorSQL = `INSERT INTO history_cursors(project_id, cur_idx) VALUES (?, ?)
	ON CONFLICT(project_id) DO UPDATE SET cur_idx = excluded.cur_idx`

// language=SQL
const selectHistoryCursorSQL = `SELECT cur_idx FROM history_cursors WHERE project_id = ?`

type historyRow struct {
	label string
	at    string
	doc   []byte
}

// SetHistoryLimit caps the entries SaveSession keeps per project. Values
// below 1 keep every entry.
func (l *Library) SetHistoryLimit(n int) { l.historyLimit = n }

// SaveSession stores p like Save and replaces the project's stored undo
// history with h in the same transaction. An empty h clears it.
func (l *Library) SaveSession(ctx context.Context, p domain.Project, h History) (string, error) {
	return l.save(ctx, p, &h)
}

// LoadSession reads project id with its undo history. Entries and the
// project share one display handle per stored blob. A project saved without
// history comes back with none.
func (l *Library) LoadSession(ctx context.Context, id string) (domain.Project, History, error) {
	var raw []byte
	err := l.db.queryRow(ctx, `SELECT doc FROM projects WHERE id=?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, History{}, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.Project{}, History{}, fmt.Errorf("read project: %w", err)
	}
	p, err := decodeDocument(raw)
	if err != nil {
		return domain.Project{}, History{}, fmt.Errorf("project %s: %w", id, err)
	}
	p.ID = id
	handles := map[string]domain.ResourceRef{}
	if err := l.resolve(ctx, &p, handles); err != nil {
		return domain.Project{}, History{}, err
	}
	h, err := l.loadHistory(ctx, id, handles)
	if err != nil {
		return domain.Project{}, History{}, err
	}
	return p, h, nil
}

func (l *Library) loadHistory(ctx context.Context, id string, handles map[string]domain.ResourceRef) (History, error) {
	rows, err := l.db.query(ctx, listHistoryEntriesSQL, id)
	if err != nil {
		return History{}, fmt.Errorf("read history: %w", err)
	}
	var stored []historyRow
	for rows.Next() {
		var r historyRow
		if err := rows.Scan(&r.label, &r.at, &r.doc); err != nil {
			_ = rows.Close()
			return History{}, err
		}
		stored = append(stored, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return History{}, err
	}
	if err := rows.Close(); err != nil {
		return History{}, err
	}
	if len(stored) == 0 {
		return History{}, nil
	}

	h := History{Entries: make([]domain.HistoryEntry, 0, len(stored))}
	for i, r := range stored {
		p, err := decodeDocument(r.doc)
		if err != nil {
			return History{}, fmt.Errorf("project %s history entry %d: %w", id, i, err)
		}
		p.ID = id
		if err := l.resolve(ctx, &p, handles); err != nil {
			return History{}, err
		}
		h.Entries = append(h.Entries, domain.HistoryEntry{Project: p, Label: r.label, At: parseStamp(r.at)})
	}
	err = l.db.queryRow(ctx, selectHistoryCursorSQL, id).Scan(&h.Cursor)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		h.Cursor = len(h.Entries) - 1
	case err != nil:
		return History{}, fmt.Errorf("read history cursor: %w", err)
	}
	h.Cursor = min(max(h.Cursor, 0), len(h.Entries)-1)
	return h, nil
}

// historyRows encodes the entries SaveSession keeps, collecting their blobs.
// It returns the cursor relative to the kept entries.
func (l *Library) historyRows(ctx context.Context, h History, blobs map[string]*resource.Blob) ([]historyRow, int, error) {
	h = trimHistory(h, l.historyLimit)
	out := make([]historyRow, 0, len(h.Entries))
	for i, e := range h.Entries {
		p := e.Project.Clone()
		if _, err := l.toStored(ctx, &p, blobs); err != nil {
			return nil, 0, fmt.Errorf("history entry %d: %w", i, err)
		}
		raw, err := encodeDocument(p)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, historyRow{label: e.Label, at: stamp(e.At), doc: raw})
	}
	return out, h.Cursor, nil
}

// trimHistory keeps at most keep entries. The oldest go first, but never the
// cursor's own entry; past it the redo tail is cut instead.
func trimHistory(h History, keep int) History {
	n := len(h.Entries)
	h.Cursor = min(max(h.Cursor, 0), max(n-1, 0))
	if keep <= 0 || n <= keep {
		return h
	}
	start := min(n-keep, h.Cursor)
	return History{Entries: h.Entries[start : start+keep], Cursor: h.Cursor - start}
}

func writeHistory(ctx context.Context, t *tx, id string, rows []historyRow, cursor int, blobs map[string]*resource.Blob, now time.Time) error {
	if err := clearHistory(ctx, t, id); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	if err := insertBlobs(ctx, t, blobs, stamp(now)); err != nil {
		return err
	}
	for i, r := range rows {
		if _, err := t.exec(ctx, insertHistoryEntrySQL, id, i, r.label, r.at, r.doc); err != nil {
			return fmt.Errorf("insert history entry: %w", err)
		}
	}
	for key := range blobs {
		if _, err := t.exec(ctx, `INSERT INTO history_blobs(project_id, hash) VALUES(?, ?)`, id, key); err != nil {
			return fmt.Errorf("insert history blob ref: %w", err)
		}
	}
	if _, err := t.exec(ctx, upsertHistoryCursorSQL, id, cursor); err != nil {
		return fmt.Errorf("write history cursor: %w", err)
	}
	applog.WithOperation(applog.WithComponent("storage"), "save").Debug("history saved",
		slog.String("project", id), slog.Int("entries", len(rows)), slog.Int("cursor", cursor))
	return nil
}

// clearHistory removes every stored entry, blob ref and the cursor of project id.
func clearHistory(ctx context.Context, t *tx, id string) error {
	for _, q := range []string{
		`DELETE FROM history_entries WHERE project_id=?`,
		`DELETE FROM history_blobs WHERE project_id=?`,
		`DELETE FROM history_cursors WHERE project_id=?`,
	} {
		if _, err := t.exec(ctx, q, id); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
	}
	return nil
}
