/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package history

import (
	"fmt"
	"math/rand/v2"
	"reflect"
	"sync"
	"testing"
	"time"

	"gostoryboard/internal/domain"
)

// tick returns a deterministic clock advancing one second per call.
func tick() func() time.Time {
	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func sampleProject(n int) domain.Project {
	p := domain.Project{Title: "Harbor", Mode: domain.ModeComic}
	for i := 1; i <= n; i++ {
		p.Scenes = append(p.Scenes, domain.Scene{ID: i, Text: fmt.Sprintf("scene %d", i)})
	}
	return p
}

func strp(s string) *string { return &s }

func TestUndoRedoBasic(t *testing.T) {
	s := New(Config{Clock: tick()})
	s.InitHistory(sampleProject(2))
	s.UpdateScene(1, ScenePatch{Text: strp("a")}, true, "")
	s.UpdateScene(1, ScenePatch{Text: strp("b")}, true, "")
	if s.Len() != 3 || s.Cursor() != 2 {
		t.Fatalf("expected 3 entries at cursor 2, got len=%d cursor=%d", s.Len(), s.Cursor())
	}
	if got := s.Entries()[2].Label; got != "edited scene 1" {
		t.Fatalf("default label = %q", got)
	}
	s.Undo()
	if sc, _ := s.Current().Scene(1); sc.Text != "a" {
		t.Fatalf("undo expected 'a', got %q", sc.Text)
	}
	s.Redo()
	if sc, _ := s.Current().Scene(1); sc.Text != "b" {
		t.Fatalf("redo expected 'b', got %q", sc.Text)
	}
}

func TestHistoryLinearity(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 50; round++ {
		s := New(Config{Clock: tick()})
		s.InitHistory(sampleProject(4))
		steps := 1 + rng.IntN(12)
		for i := 0; i < steps; i++ {
			switch rng.IntN(3) {
			case 0:
				p := s.Current()
				p.Title = fmt.Sprintf("title %d", i)
				s.Apply(p, fmt.Sprintf("retitle %d", i))
			case 1:
				id := 1 + rng.IntN(4)
				s.UpdateScene(id, ScenePatch{Directive: strp(fmt.Sprintf("d%d", i))}, true, "directive")
			default:
				s.Undo()
			}
		}
		before := s.Current()
		undos := rng.IntN(6)
		for i := 0; i < undos; i++ {
			s.Undo()
		}
		for i := 0; i < undos; i++ {
			s.Redo()
		}
		if !reflect.DeepEqual(before, s.Current()) {
			t.Fatalf("round %d: redo after %d undos did not restore project\nwant %+v\ngot  %+v", round, undos, before, s.Current())
		}
	}
}

func TestTruncationOnBranch(t *testing.T) {
	s := New(Config{Clock: tick()})
	s.InitHistory(sampleProject(1))
	p1 := s.Current()
	p1.Title = "one"
	s.Apply(p1, "one")
	p2 := s.Current()
	p2.Title = "two"
	s.Apply(p2, "two")

	s.Undo()
	branch := s.Current()
	branch.Title = "branch"
	s.Apply(branch, "branch")

	s.Redo()
	if got := s.Current().Title; got != "branch" {
		t.Fatalf("redo after branch must be a no-op, title=%q", got)
	}
	if s.CanRedo() {
		t.Fatalf("CanRedo must be false after branching apply")
	}
	if s.Len() != 3 {
		t.Fatalf("expected the 'two' entry to be discarded, len=%d", s.Len())
	}
}

func TestStaleWriteIsNoop(t *testing.T) {
	s := New(Config{Clock: tick()})
	s.InitHistory(sampleProject(5))
	s.Update(func(p domain.Project) domain.Project {
		p.Scenes = p.Scenes[:4]
		return p
	}, "removed scene 5")
	before := s.Current()
	entries := s.Len()

	s.UpdateScene(5, ScenePatch{Text: strp("late")}, false, "")
	s.UpdateScene(5, ScenePatch{Text: strp("late")}, true, "late")
	if ok := s.MutateScene(5, func(*domain.Scene) bool { return true }, ""); ok {
		t.Fatalf("MutateScene on a missing scene reported a write")
	}
	if !reflect.DeepEqual(before, s.Current()) || s.Len() != entries {
		t.Fatalf("stale write changed the store")
	}
}

func TestTransientWritesDoNotTouchHistory(t *testing.T) {
	s := New(Config{Clock: tick()})
	s.InitHistory(sampleProject(3))
	for id := 1; id <= 3; id++ {
		s.UpdateScene(id, ScenePatch{Image: &domain.Artifact{Loading: true}}, false, "ignored")
	}
	if s.Len() != 1 || s.Cursor() != 0 {
		t.Fatalf("transient writes created history: len=%d cursor=%d", s.Len(), s.Cursor())
	}
	if sc, _ := s.Current().Scene(2); !sc.Image.Loading {
		t.Fatalf("transient write not applied")
	}
	// The history entry itself is untouched.
	if sc, _ := s.Entries()[0].Project.Scene(2); sc.Image.Loading {
		t.Fatalf("history entry was mutated by a transient write")
	}
}

func TestEntriesNeverRecordLoadingFlags(t *testing.T) {
	s := New(Config{Clock: tick()})
	s.InitHistory(sampleProject(2))
	ref := domain.ResourceRef("data:image/png;base64,AA==")
	s.UpdateScene(2, ScenePatch{Image: &domain.Artifact{Loading: true}, Audio: &domain.Artifact{Ref: ref, Loading: true}}, false, "")
	s.UpdateScene(1, ScenePatch{Text: strp("retake")}, true, "regenerated scene 1")

	if sc, _ := s.Current().Scene(2); !sc.Image.Loading || !sc.Audio.Loading {
		t.Fatalf("current lost the in-flight flags: %+v", sc)
	}
	entry, _ := s.Entries()[1].Project.Scene(2)
	if entry.Image.Loading || entry.Audio.Loading || entry.Audio.Ref != ref {
		t.Fatalf("entry recorded in-flight state: %+v", entry)
	}

	s.Undo()
	s.Redo()
	if sc, _ := s.Current().Scene(2); sc.Image.Loading || sc.Audio.Loading {
		t.Fatalf("redo brought back loading flags: %+v", sc)
	}
}

func TestRestoreResumesSavedHistory(t *testing.T) {
	src := New(Config{Clock: tick()})
	src.InitHistory(sampleProject(2))
	src.UpdateScene(1, ScenePatch{Text: strp("a")}, true, "")
	src.UpdateScene(1, ScenePatch{Text: strp("b")}, true, "")
	src.Undo()
	current := src.Current()
	current.Scenes[1].Image = domain.Artifact{Ref: "data:image/png;base64,AA==", Loading: true}

	var notified int
	s := New(Config{Clock: tick(), MaxEntries: 2})
	s.Subscribe(func(domain.Project) { notified++ })
	s.Restore(current, src.Entries(), src.Cursor())

	// the oldest entry is dropped by the cap and the cursor follows it
	if s.Len() != 2 || s.Cursor() != 0 || notified != 1 {
		t.Fatalf("len=%d cursor=%d notified=%d", s.Len(), s.Cursor(), notified)
	}
	if sc, _ := s.Current().Scene(2); sc.Image.Ref == "" || !sc.Image.Loading {
		t.Fatalf("current project not kept as given: %+v", sc)
	}
	if !s.CanRedo() || s.CanUndo() {
		t.Fatalf("undo/redo availability wrong after restore")
	}
	s.Redo()
	if sc, _ := s.Current().Scene(1); sc.Text != "b" {
		t.Fatalf("redo after restore got %q", sc.Text)
	}

	s.Restore(sampleProject(1), nil, 7)
	if s.Len() != 1 || s.Cursor() != 0 || s.Entries()[0].Label != "opened" {
		t.Fatalf("restore without entries should init history: %+v", s.Entries())
	}
	s.Restore(sampleProject(1), src.Entries(), 99)
	if s.Cursor() != 1 {
		t.Fatalf("cursor not clamped: %d", s.Cursor())
	}
}

func TestJumpToOutOfRange(t *testing.T) {
	s := New(Config{Clock: tick()})
	s.JumpTo(0) // before init
	s.Undo()
	if s.Cursor() != -1 {
		t.Fatalf("cursor moved before init: %d", s.Cursor())
	}
	s.InitHistory(sampleProject(1))
	s.Apply(s.Current(), "a")
	s.Apply(s.Current(), "b")
	s.JumpTo(7)
	s.JumpTo(-1)
	if s.Cursor() != 2 {
		t.Fatalf("out-of-range jump moved cursor to %d", s.Cursor())
	}
	s.JumpTo(0)
	if s.Cursor() != 0 || s.Current().Label != "opened" {
		t.Fatalf("jump to 0 failed: cursor=%d label=%q", s.Cursor(), s.Current().Label)
	}
}

func TestCoalesce(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := New(Config{CoalesceWindow: 500 * time.Millisecond, Clock: clock})
	s.InitHistory(sampleProject(1))
	s.UpdateScene(1, ScenePatch{Text: strp("h")}, true, "typing")
	now = now.Add(100 * time.Millisecond)
	s.UpdateScene(1, ScenePatch{Text: strp("he")}, true, "typing")
	if s.Len() != 2 {
		t.Fatalf("expected coalesced to 2 entries, got %d", s.Len())
	}
	now = now.Add(time.Second)
	s.UpdateScene(1, ScenePatch{Text: strp("hey")}, true, "typing")
	if s.Len() != 3 {
		t.Fatalf("expected new entry outside the window, got %d", s.Len())
	}
	s.Undo()
	if sc, _ := s.Current().Scene(1); sc.Text != "he" {
		t.Fatalf("expected coalesced snapshot 'he', got %q", sc.Text)
	}
}

func TestCaps(t *testing.T) {
	s := New(Config{MaxEntries: 3, Clock: tick()})
	s.InitHistory(sampleProject(1))
	for i := 0; i < 10; i++ {
		p := s.Current()
		p.Title = fmt.Sprintf("t%d", i)
		s.Apply(p, p.Title)
	}
	if s.Len() != 3 || s.Cursor() != 2 {
		t.Fatalf("expected cap of 3 entries, len=%d cursor=%d", s.Len(), s.Cursor())
	}
	if got := s.Entries()[0].Label; got != "t7" {
		t.Fatalf("oldest kept entry = %q", got)
	}
}

func TestMutateSceneVeto(t *testing.T) {
	s := New(Config{Clock: tick()})
	s.InitHistory(sampleProject(1))
	wrote := s.MutateScene(1, func(sc *domain.Scene) bool {
		sc.Text = "never"
		return false
	}, "veto")
	if wrote || s.Len() != 1 {
		t.Fatalf("vetoed mutation was written")
	}
	if sc, _ := s.Current().Scene(1); sc.Text == "never" {
		t.Fatalf("vetoed mutation leaked into current")
	}
}

func TestLiveRefsCoversHistory(t *testing.T) {
	s := New(Config{Clock: tick()})
	s.InitHistory(sampleProject(1))
	s.UpdateScene(1, ScenePatch{Image: &domain.Artifact{Ref: "handle:old"}}, true, "first")
	s.UpdateScene(1, ScenePatch{Image: &domain.Artifact{Ref: "handle:new"}}, true, "second")
	s.UpdateScene(1, ScenePatch{Audio: &domain.Artifact{Ref: "handle:tmp"}}, false, "")
	live := s.LiveRefs()
	for _, r := range []domain.ResourceRef{"handle:old", "handle:new", "handle:tmp"} {
		if _, ok := live[r]; !ok {
			t.Fatalf("missing live ref %s", r)
		}
	}
	// Re-initializing drops everything but the given project.
	s.InitHistory(sampleProject(1))
	if n := len(s.LiveRefs()); n != 0 {
		t.Fatalf("expected no live refs after InitHistory, got %d", n)
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	s := New(Config{Clock: tick()})
	var got []string
	cancel := s.Subscribe(func(p domain.Project) { got = append(got, p.Title) })
	p := sampleProject(0)
	s.InitHistory(p)
	p.Title = "x"
	s.Apply(p, "retitle")
	cancel()
	s.Undo()
	if len(got) != 2 || got[1] != "x" {
		t.Fatalf("unexpected notifications: %v", got)
	}
}

func TestConcurrentSceneWritesDoNotLoseUpdates(t *testing.T) {
	s := New(Config{Clock: tick()})
	s.InitHistory(sampleProject(20))
	var wg sync.WaitGroup
	for id := 1; id <= 20; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ref := domain.ResourceRef(fmt.Sprintf("handle:%d", id))
			s.UpdateScene(id, ScenePatch{Image: &domain.Artifact{Ref: ref}}, false, "")
		}(id)
	}
	wg.Wait()
	for _, sc := range s.Current().Scenes {
		if want := domain.ResourceRef(fmt.Sprintf("handle:%d", sc.ID)); sc.Image.Ref != want {
			t.Fatalf("scene %d lost its update: %q", sc.ID, sc.Image.Ref)
		}
	}
}
