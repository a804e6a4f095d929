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
	"errors"
	"image/color"
	"testing"
	"time"

	"gostoryboard/internal/domain"
)

func entryAt(p domain.Project, label string, minute int) domain.HistoryEntry {
	return domain.HistoryEntry{Project: p, Label: label, At: time.Date(2025, 3, 1, 10, minute, 0, 0, time.UTC)}
}

func TestLibrary_SessionRoundTrip(t *testing.T) {
	lib, _ := openTestLibrary(t)
	ctx := context.Background()
	oldImg := dataRef("image/png", pngBytes(t, 6, 6, color.RGBA{R: 90, A: 255}))
	newImg := dataRef("image/png", pngBytes(t, 6, 6, color.RGBA{B: 90, A: 255}))

	v1 := domain.Project{Title: "Harbor", Mode: domain.ModeComic, Scenes: []domain.Scene{{ID: 1, Text: "dawn", Image: domain.Artifact{Ref: oldImg}}}}
	v2 := v1.Clone()
	v2.Scenes[0].Image = domain.Artifact{Ref: newImg}
	v3 := v2.Clone()
	v3.Scenes[0].Text = "dusk"

	id, err := lib.SaveSession(ctx, v2, History{
		Entries: []domain.HistoryEntry{entryAt(v1, "opened", 1), entryAt(v2, "generated story", 2), entryAt(v3, "edited scene 1", 3)},
		Cursor:  1,
	})
	if err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if n := countBlobs(t, lib); n != 2 {
		t.Fatalf("history blobs not stored: %d", n)
	}

	p, h, err := lib.LoadSession(ctx, id)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if len(h.Entries) != 3 || h.Cursor != 1 {
		t.Fatalf("history = %d entries at %d", len(h.Entries), h.Cursor)
	}
	if e := h.Entries[2]; e.Label != "edited scene 1" || !e.At.Equal(time.Date(2025, 3, 1, 10, 3, 0, 0, time.UTC)) || e.Project.ID != id {
		t.Fatalf("entry metadata: %+v", e)
	}
	if sc := h.Entries[2].Project.Scenes[0]; sc.Text != "dusk" {
		t.Fatalf("entry document: %+v", sc)
	}
	old := h.Entries[0].Project.Scenes[0].Image.Ref
	if !old.IsHandle() || old == p.Scenes[0].Image.Ref {
		t.Fatalf("oldest entry should keep its own image: %q vs %q", old, p.Scenes[0].Image.Ref)
	}
	// the same blob in the project and an entry resolves to one handle
	if h.Entries[1].Project.Scenes[0].Image.Ref != p.Scenes[0].Image.Ref {
		t.Fatalf("shared blob got two handles")
	}

	// a plain save keeps the stored history and the blobs it needs
	p.Title = "Harbor, revised"
	if _, err := lib.Save(ctx, p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n := countBlobs(t, lib); n != 2 {
		t.Fatalf("blob referenced only by history was pruned: %d", n)
	}
	if _, h, _ := lib.LoadSession(ctx, id); len(h.Entries) != 3 {
		t.Fatalf("plain save dropped history")
	}

	// an empty history clears the entries and frees their blobs
	if _, err := lib.SaveSession(ctx, p, History{}); err != nil {
		t.Fatalf("SaveSession empty: %v", err)
	}
	if _, h, _ := lib.LoadSession(ctx, id); len(h.Entries) != 0 {
		t.Fatalf("history not cleared: %d", len(h.Entries))
	}
	if n := countBlobs(t, lib); n != 1 {
		t.Fatalf("orphaned history blob not pruned: %d", n)
	}
}

func TestLibrary_SessionHistoryLimit(t *testing.T) {
	lib, _ := openTestLibrary(t)
	lib.SetHistoryLimit(2)
	ctx := context.Background()
	p := domain.Project{Title: "T", Mode: domain.ModeComic, Scenes: []domain.Scene{{ID: 1}}}
	var entries []domain.HistoryEntry
	for i, label := range []string{"a", "b", "c", "d"} {
		entries = append(entries, entryAt(p, label, i))
	}

	id, err := lib.SaveSession(ctx, p, History{Entries: entries, Cursor: 3})
	if err != nil {
		t.Fatal(err)
	}
	_, h, _ := lib.LoadSession(ctx, id)
	if len(h.Entries) != 2 || h.Entries[0].Label != "c" || h.Cursor != 1 {
		t.Fatalf("oldest entries should go: %+v cursor %d", h.Entries, h.Cursor)
	}

	// undone far back: the redo tail is cut, never the current entry
	if _, err := lib.SaveSession(ctx, p, History{Entries: entries, Cursor: 0}); err != nil {
		t.Fatal(err)
	}
	_, h, _ = lib.LoadSession(ctx, id)
	if len(h.Entries) != 2 || h.Entries[0].Label != "a" || h.Entries[1].Label != "b" || h.Cursor != 0 {
		t.Fatalf("cursor entry dropped: %+v cursor %d", h.Entries, h.Cursor)
	}
}

func TestLibrary_DeleteRemovesHistory(t *testing.T) {
	lib, _ := openTestLibrary(t)
	ctx := context.Background()
	img := dataRef("image/png", pngBytes(t, 4, 4, color.White))
	v1 := domain.Project{Title: "T", Mode: domain.ModeComic, Scenes: []domain.Scene{{ID: 1, Image: domain.Artifact{Ref: img}}}}
	v2 := v1.Clone()
	v2.Scenes[0].Image = domain.Artifact{}

	id, err := lib.SaveSession(ctx, v2, History{Entries: []domain.HistoryEntry{entryAt(v1, "opened", 0), entryAt(v2, "removed image", 1)}, Cursor: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := lib.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n := countBlobs(t, lib); n != 0 {
		t.Fatalf("history blob outlived its project: %d", n)
	}
	var rows int
	if err := lib.db.queryRow(ctx, `SELECT COUNT(*) FROM history_entries`).Scan(&rows); err != nil || rows != 0 {
		t.Fatalf("history rows left: %d %v", rows, err)
	}
	if _, _, err := lib.LoadSession(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadSession after delete: %v", err)
	}
}

func TestLibrary_CheckCoversHistory(t *testing.T) {
	lib, _ := openTestLibrary(t)
	ctx := context.Background()
	p := domain.Project{Title: "T", Mode: domain.ModeComic, Scenes: []domain.Scene{{ID: 1}}}
	id, err := lib.SaveSession(ctx, p, History{Entries: []domain.HistoryEntry{entryAt(p, "opened", 0)}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lib.db.exec(ctx, `UPDATE history_entries SET doc=? WHERE project_id=?`, []byte("not zstd"), id); err != nil {
		t.Fatal(err)
	}
	problems, err := lib.Check(ctx)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(problems) != 1 || problems[0].ProjectID != id {
		t.Fatalf("Check problems: %v", problems)
	}
}
