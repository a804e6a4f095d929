/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package crash

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/history"
	"gostoryboard/internal/resource"
	"gostoryboard/internal/storage"
)

type fixedProject domain.Project

func (f fixedProject) Current() domain.Project { return domain.Project(f) }

type failingSaver struct{ calls int }

func (f *failingSaver) Save(context.Context, domain.Project) (string, error) {
	f.calls++
	return "", errors.New("database is locked")
}

func sampleProject() domain.Project {
	return domain.Project{
		ID:     "p-1",
		Title:  "Secret title",
		Mode:   domain.ModeComic,
		Scenes: []domain.Scene{{ID: 1, Text: "a harbour at night"}},
	}
}

// silenceStderr keeps the crash banner out of test output.
func silenceStderr(t *testing.T) {
	t.Helper()
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	t.Cleanup(func() {
		_ = w.Close()
		os.Stderr = old
		_, _ = io.Copy(io.Discard, r)
	})
}

func TestWriteReportCreatesFileInTemp(t *testing.T) {
	path, err := writeReport(nil, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	defer os.Remove(path)
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "Storyboard Crash Report") {
		t.Fatalf("report header missing")
	}
	if !strings.Contains(s, "Panic: boom") {
		t.Fatalf("panic content missing: %s", s)
	}
}

func TestWriteReportOmitsProjectText(t *testing.T) {
	dir := t.TempDir()
	s := &Session{Project: fixedProject(sampleProject()), Dir: dir}
	path, err := writeReport(s, "kaboom", []byte("stack"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("expected report under %s, got %s", dir, path)
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "Project: p-1") || !strings.Contains(string(b), "Scenes: 1") {
		t.Fatalf("project summary missing: %s", b)
	}
	if strings.Contains(string(b), "Secret title") || strings.Contains(string(b), "harbour") {
		t.Fatalf("report leaks project text: %s", b)
	}
}

func TestRecover_SavesToLibrary(t *testing.T) {
	silenceStderr(t)
	code := 0
	oldExit := exitFn
	exitFn = func(c int) { code = c }
	defer func() { exitFn = oldExit }()

	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "lib.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()
	codec := resource.NewCodec()
	lib := storage.NewLibrary(db, codec)

	store := history.New(history.Config{})
	store.InitHistory(sampleProject())

	func() {
		defer Recover(&Session{Project: store, Library: lib, Codec: codec, Dir: t.TempDir()})
		panic("boom")
	}()

	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	got, err := lib.Load(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("autosaved project not in library: %v", err)
	}
	if len(got.Scenes) != 1 || got.Scenes[0].Text != "a harbour at night" {
		t.Fatalf("autosave content mismatch: %+v", got.Scenes)
	}
}

func TestRecover_FallsBackToFile(t *testing.T) {
	silenceStderr(t)
	oldExit := exitFn
	exitFn = func(int) {}
	defer func() { exitFn = oldExit }()

	dir := t.TempDir()
	saver := &failingSaver{}
	func() {
		defer Recover(&Session{Project: fixedProject(sampleProject()), Library: saver, Codec: resource.NewCodec(), Dir: dir})
		panic("boom")
	}()

	if saver.calls != 1 {
		t.Fatalf("library save attempts = %d", saver.calls)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "autosave-p-1-*.json"))
	if len(matches) != 1 {
		t.Fatalf("expected one autosave file, got %v", matches)
	}
	p, err := storage.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if p.ID != "p-1" || len(p.Scenes) != 1 {
		t.Fatalf("file autosave mismatch: %+v", p)
	}
	reports, _ := filepath.Glob(filepath.Join(dir, "crash-*.log"))
	if len(reports) != 1 {
		t.Fatalf("expected one crash report, got %v", reports)
	}
}

func TestAutosave_NothingToSave(t *testing.T) {
	where, err := autosave(&Session{Project: fixedProject(domain.Project{})})
	if err != nil || where != "" {
		t.Fatalf("empty project: where=%q err=%v", where, err)
	}
	if where, err := autosave(nil); err != nil || where != "" {
		t.Fatalf("nil session: where=%q err=%v", where, err)
	}
}
