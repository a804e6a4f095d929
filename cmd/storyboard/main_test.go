/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type cli struct {
	t   *testing.T
	dir string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	// keep the keyring and the user's config out of the test
	t.Setenv("GSB_BACKEND_TOKEN", "test-token")
	t.Setenv("GSB_TELEMETRY_OPT_IN", "")
	t.Setenv("GSB_STORAGE_DRIVER", "")
	return &cli{t: t, dir: t.TempDir()}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var out bytes.Buffer
	a := &app{out: &out}
	defer a.close()
	root := newRootCmd(a)
	root.SetArgs(append([]string{
		"--config", filepath.Join(c.dir, "config.yaml"),
		"--db", filepath.Join(c.dir, "library.sqlite"),
		"--backend", "placeholder",
	}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("storyboard %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func TestCLI_NewGenerateExportDelete(t *testing.T) {
	c := newCLI(t)
	id := lastLine(c.mustRun("new", "--title", "Night Ferry", "--mode", "comic",
		"--scene", "The ferry leaves the harbour.", "--scene", "Fog rolls in."))
	if id == "" {
		t.Fatalf("new printed no id")
	}

	out := c.mustRun("generate", id)
	if !strings.Contains(out, "Generated image for 2 scene(s)") {
		t.Fatalf("generate output: %s", out)
	}
	out = c.mustRun("generate", id, "--kind", "audio", "--scene", "2")
	if !strings.Contains(out, "Generated audio for 1 scene(s)") {
		t.Fatalf("generate audio output: %s", out)
	}

	show := c.mustRun("show", id)
	if !strings.Contains(show, "Night Ferry (comic)") {
		t.Fatalf("show header: %s", show)
	}
	if strings.Count(show, "ok") < 3 {
		t.Fatalf("expected two images and one audio: %s", show)
	}

	list := c.mustRun("list")
	if !strings.Contains(list, id) || !strings.Contains(list, "Night Ferry") {
		t.Fatalf("list: %s", list)
	}

	outDir := filepath.Join(c.dir, "out")
	files := c.mustRun("export", id, "--format", "archive", "-o", outDir)
	zipPath := lastLine(files)
	if filepath.Ext(zipPath) != ".zip" {
		t.Fatalf("archive export printed %q", files)
	}
	if _, err := os.Stat(zipPath); err != nil {
		t.Fatalf("archive missing: %v", err)
	}
	pages := c.mustRun("export", id, "-o", outDir, "--columns", "1")
	if !strings.Contains(pages, "-page-") {
		t.Fatalf("comic mode should default to page export: %s", pages)
	}

	c.mustRun("check")

	c.mustRun("delete", id)
	if out := c.mustRun("list"); !strings.Contains(out, "No projects found") {
		t.Fatalf("list after delete: %s", out)
	}
	if _, err := c.run("show", id); err == nil {
		t.Fatalf("show after delete should fail")
	}
}

func TestCLI_RegenerateModifyAndFileRoundTrip(t *testing.T) {
	c := newCLI(t)
	id := lastLine(c.mustRun("new", "--title", "Lighthouse", "--scene", "A keeper climbs the stairs.", "--generate"))

	c.mustRun("regenerate", id, "1")
	c.mustRun("modify", id, "1", "make", "it", "rain")
	if _, err := c.run("modify", id, "7", "nothing"); err == nil {
		t.Fatalf("modify of an unknown scene should fail")
	}

	file := filepath.Join(c.dir, "lighthouse.json")
	c.mustRun("save-file", id, file)
	c.mustRun("delete", id)
	newID := lastLine(c.mustRun("import", file))
	if newID != id {
		t.Fatalf("import should keep the project id: got %s want %s", newID, id)
	}
	if show := c.mustRun("show", id); !strings.Contains(show, "ok") {
		t.Fatalf("imported image missing: %s", show)
	}
}

func TestCLI_Errors(t *testing.T) {
	c := newCLI(t)
	if _, err := c.run("new"); err == nil || !strings.Contains(err.Error(), "--title") {
		t.Fatalf("new without title: %v", err)
	}
	if _, err := c.run("new", "--title", "x", "--mode", "opera"); err == nil {
		t.Fatalf("unknown mode should fail")
	}
	if _, err := c.run("generate", "missing"); err == nil {
		t.Fatalf("generate for unknown project should fail")
	}
	id := lastLine(c.mustRun("new", "--title", "x", "--scene", "one"))
	if _, err := c.run("generate", id, "--kind", "smell"); err == nil {
		t.Fatalf("unknown kind should fail")
	}
	if _, err := c.run("generate", id, "--scene", "9"); err == nil {
		t.Fatalf("unknown scene should fail")
	}
	if _, err := c.run("export", id, "--format", "gif"); err == nil {
		t.Fatalf("unknown format should fail")
	}
}

func TestCLI_VersionAndPresets(t *testing.T) {
	c := newCLI(t)
	if out := c.mustRun("version"); strings.TrimSpace(out) == "" {
		t.Fatalf("empty version")
	}
	out := c.mustRun("export", "--list-presets")
	for _, want := range []string{"classic", "manga", "webtoon", "speech"} {
		if !strings.Contains(out, want) {
			t.Fatalf("preset %s missing: %s", want, out)
		}
	}
}

func TestCLI_NewFromScript(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(c.dir, "ferry.txt")
	src := "# Harbour\nMARA: Cast off!\n\n# Open sea\nCAPTION: Fog rolls in.\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	id := lastLine(c.mustRun("new", "--title", "Ferry", "--script", path, "--anchor", "Mara=red coat, grey braid"))
	show := c.mustRun("show", id)
	if !strings.Contains(show, "MARA: Cast off!") || !strings.Contains(show, "Fog rolls in.") {
		t.Fatalf("script scenes missing: %s", show)
	}
	if !strings.Contains(show, "Anchor Mara: red coat, grey braid") {
		t.Fatalf("anchor missing: %s", show)
	}

	bad := filepath.Join(c.dir, "bad.txt")
	if err := os.WriteFile(bad, []byte("# One\nBOB:\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.run("new", "--title", "Bad", "--script", bad); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("script error not reported: %v", err)
	}
}

func TestCLI_EditUndoRedoHistory(t *testing.T) {
	c := newCLI(t)
	id := lastLine(c.mustRun("new", "--title", "Harbor", "--scene", "The ferry leaves.", "--generate"))

	out := c.mustRun("history", id)
	if !strings.Contains(out, "opened") || !strings.Contains(out, "* ") || !strings.Contains(out, "generated story") {
		t.Fatalf("new --generate should leave two entries: %s", out)
	}

	out = c.mustRun("edit", id, "1", "--text", "Fog rolls in.", "--directive", "wide shot")
	if !strings.Contains(out, "edited scene 1") {
		t.Fatalf("edit output: %s", out)
	}
	if show := c.mustRun("show", id); !strings.Contains(show, "Fog rolls in.") {
		t.Fatalf("edit not saved: %s", show)
	}

	// history survives between runs, so undo reaches the previous run's edit
	c.mustRun("undo", id)
	if show := c.mustRun("show", id); !strings.Contains(show, "The ferry leaves.") || !strings.Contains(show, "ok") {
		t.Fatalf("undo should restore the generated scene: %s", show)
	}
	c.mustRun("redo", id)
	if show := c.mustRun("show", id); !strings.Contains(show, "Fog rolls in.") {
		t.Fatalf("redo: %s", show)
	}
	if _, err := c.run("redo", id); err == nil || !strings.Contains(err.Error(), "nothing to redo") {
		t.Fatalf("redo at the newest entry: %v", err)
	}

	c.mustRun("history", id, "--jump", "0")
	if show := c.mustRun("show", id); strings.Contains(show, "ok") {
		t.Fatalf("jump to the first entry should drop the image: %s", show)
	}
	if _, err := c.run("undo", id); err == nil {
		t.Fatalf("undo at the first entry should fail")
	}
	if _, err := c.run("history", id, "--jump", "9"); err == nil {
		t.Fatalf("jump out of range should fail")
	}
	if _, err := c.run("edit", id, "4", "--text", "x"); err == nil {
		t.Fatalf("edit of an unknown scene should fail")
	}
	if _, err := c.run("edit", id, "1"); err == nil {
		t.Fatalf("edit without changes should fail")
	}
	c.mustRun("check")
}

func TestCLI_GenerateIsOneUndoStep(t *testing.T) {
	c := newCLI(t)
	id := lastLine(c.mustRun("new", "--title", "Harbor", "--scene", "one", "--scene", "two"))
	c.mustRun("generate", id, "--kind", "video", "--cancel-after", "1h")
	out := c.mustRun("history", id)
	if !strings.Contains(out, "generated video") {
		t.Fatalf("generate should be recorded: %s", out)
	}
	c.mustRun("undo", id)
	if show := c.mustRun("show", id); strings.Contains(show, "ok") {
		t.Fatalf("undo should remove the whole batch: %s", show)
	}
}

type recordingCanceler struct {
	mu      sync.Mutex
	running map[int]bool
	calls   []int
}

func (r *recordingCanceler) Cancel(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
	return r.running[id]
}

func TestCancelVideosAfter(t *testing.T) {
	rc := &recordingCanceler{running: map[int]bool{2: true}}
	stop := cancelVideosAfter(rc, []int{1, 2, 3}, time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for {
		rc.mu.Lock()
		n := len(rc.calls)
		rc.mu.Unlock()
		if n == 3 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := stop(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("canceled = %v, want [2]", got)
	}

	idle := &recordingCanceler{}
	if got := cancelVideosAfter(idle, []int{1}, time.Hour)(); got != nil || len(idle.calls) != 0 {
		t.Fatalf("stopped timer still canceled: %v %v", got, idle.calls)
	}
	if got := cancelVideosAfter(idle, []int{1}, 0)(); got != nil {
		t.Fatalf("zero duration must not cancel")
	}
}
