/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package history owns the current project and its linear undo history.
//
// Writes come in two flavors. A transient write (empty label) replaces the
// current project and leaves history alone; loading flags and provisional
// references use it. A labelled write truncates everything after the cursor,
// appends a new entry and moves the cursor to it.
//
// Every mutation is a whole-value replacement done under one mutex, so a
// reader never observes a half-written project. Writes addressed to a scene
// id that no longer exists are silent no-ops.
package history

import (
	"fmt"
	"sync"
	"time"

	"gostoryboard/internal/domain"
)

// Config controls depth caps and coalescing behavior.
type Config struct {
	// MaxEntries limits the number of history entries kept (0 means unlimited).
	// The oldest entries are dropped first and the cursor shifts with them.
	MaxEntries int
	// CoalesceWindow replaces the newest entry instead of appending when a write
	// with the same label arrives within the window and nothing was undone.
	// 0 disables coalescing.
	CoalesceWindow time.Duration
	// Clock stamps new entries; defaults to time.Now.
	Clock func() time.Time
}

// ScenePatch lists the scene fields to overwrite; nil fields are left alone.
type ScenePatch struct {
	Text       *string
	Directive  *string
	Image      *domain.Artifact
	Audio      *domain.Artifact
	Video      *domain.Artifact
	Tags       *[]string
	Characters *[]string
}

func (p ScenePatch) applyTo(sc *domain.Scene) {
	if p.Text != nil {
		sc.Text = *p.Text
	}
	if p.Directive != nil {
		sc.Directive = *p.Directive
	}
	if p.Image != nil {
		sc.Image = *p.Image
	}
	if p.Audio != nil {
		sc.Audio = *p.Audio
	}
	if p.Video != nil {
		sc.Video = *p.Video
	}
	if p.Tags != nil {
		sc.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Characters != nil {
		sc.Characters = append([]string(nil), (*p.Characters)...)
	}
}

// Store is the versioned project store. It is safe for concurrent use.
type Store struct {
	cfg Config
	mu  sync.Mutex

	current domain.Project
	entries []domain.HistoryEntry
	cursor  int

	subs    map[int]func(domain.Project)
	nextSub int
}

// New returns an empty store; the cursor is -1 until the first labelled write or InitHistory.
func New(cfg Config) *Store {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Store{cfg: cfg, cursor: -1, subs: make(map[int]func(domain.Project))}
}

// Current returns a copy of the current project.
func (s *Store) Current() domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Cursor returns the index of the current history entry (-1 before initialization).
func (s *Store) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Len returns the number of history entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns copies of all history entries, oldest first.
func (s *Store) Entries() []domain.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.HistoryEntry, len(s.entries))
	for i, e := range s.entries {
		e.Project = e.Project.Clone()
		out[i] = e
	}
	return out
}

func (s *Store) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor > 0
}

func (s *Store) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor >= 0 && s.cursor < len(s.entries)-1
}

// InitHistory resets history to a single entry holding p and moves the cursor to it.
func (s *Store) InitHistory(p domain.Project) {
	s.mu.Lock()
	now := s.cfg.Clock()
	p = p.Clone()
	if p.Label == "" {
		p.Label = "opened"
	}
	if p.ModifiedAt.IsZero() {
		p.ModifiedAt = now
	}
	s.entries = []domain.HistoryEntry{{Project: settled(p.Clone()), Label: p.Label, At: now}}
	s.cursor = 0
	s.current = p.Clone()
	snap := s.current.Clone()
	s.mu.Unlock()
	s.notify(snap)
}

// Restore replaces history with entries, oldest first, and moves the cursor
// to cursor, clamped into range. current becomes the current project as given
// since a reloaded project may hold transient results newer than its entry.
// Without entries Restore behaves like InitHistory(current).
func (s *Store) Restore(current domain.Project, entries []domain.HistoryEntry, cursor int) {
	if len(entries) == 0 {
		s.InitHistory(current)
		return
	}
	s.mu.Lock()
	s.entries = make([]domain.HistoryEntry, len(entries))
	for i, e := range entries {
		e.Project = settled(e.Project.Clone())
		s.entries[i] = e
	}
	s.cursor = min(max(cursor, 0), len(entries)-1)
	s.enforceCapsLocked()
	s.current = current.Clone()
	snap := s.current.Clone()
	s.mu.Unlock()
	s.notify(snap)
}

// Apply replaces the current project. An empty label makes the write transient;
// otherwise it becomes a new history entry.
func (s *Store) Apply(next domain.Project, label string) {
	s.mu.Lock()
	s.commitLocked(next.Clone(), label)
	snap := s.current.Clone()
	s.mu.Unlock()
	s.notify(snap)
}

// Update runs fn against a copy of the current project and stores the result
// with the same semantics as Apply. The read and the write happen under one lock.
func (s *Store) Update(fn func(domain.Project) domain.Project, label string) {
	s.mu.Lock()
	next := fn(s.current.Clone())
	s.commitLocked(next, label)
	snap := s.current.Clone()
	s.mu.Unlock()
	s.notify(snap)
}

// UpdateScene overwrites the patched fields of scene id. Unknown ids are ignored.
// A history-producing update without a label is recorded as "edited scene N".
func (s *Store) UpdateScene(id int, patch ScenePatch, historyProducing bool, label string) {
	if historyProducing && label == "" {
		label = fmt.Sprintf("edited scene %d", id)
	}
	if !historyProducing {
		label = ""
	}
	s.MutateScene(id, func(sc *domain.Scene) bool {
		patch.applyTo(sc)
		return true
	}, label)
}

// MutateScene edits scene id in place on a copy of the current project. When fn
// returns false nothing is written. It reports whether a write happened; an
// unknown id is a no-op that returns false.
func (s *Store) MutateScene(id int, fn func(*domain.Scene) bool, label string) bool {
	s.mu.Lock()
	idx := s.current.SceneIndex(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	next := s.current.Clone()
	if !fn(&next.Scenes[idx]) {
		s.mu.Unlock()
		return false
	}
	s.commitLocked(next, label)
	snap := s.current.Clone()
	s.mu.Unlock()
	s.notify(snap)
	return true
}

// Undo moves the cursor one entry back. No-op at the first entry.
func (s *Store) Undo() { s.move(func(c int) int { return c - 1 }) }

// Redo moves the cursor one entry forward. No-op at the last entry.
func (s *Store) Redo() { s.move(func(c int) int { return c + 1 }) }

// JumpTo moves the cursor to index i. Out-of-range indexes are ignored.
func (s *Store) JumpTo(i int) { s.move(func(int) int { return i }) }

func (s *Store) move(to func(cur int) int) {
	s.mu.Lock()
	i := to(s.cursor)
	if s.cursor < 0 || i < 0 || i >= len(s.entries) || i == s.cursor {
		s.mu.Unlock()
		return
	}
	s.cursor = i
	s.current = s.entries[i].Project.Clone()
	snap := s.current.Clone()
	s.mu.Unlock()
	s.notify(snap)
}

// LiveRefs returns every resource reference reachable from the current project
// or from any history entry.
func (s *Store) LiveRefs() map[domain.ResourceRef]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := make(map[domain.ResourceRef]struct{})
	add := func(p domain.Project) {
		for _, sc := range p.Scenes {
			for _, r := range sc.Refs() {
				live[r] = struct{}{}
			}
		}
	}
	add(s.current)
	for _, e := range s.entries {
		add(e.Project)
	}
	return live
}

// Subscribe registers fn to be called with a copy of the project after every change.
// The returned func unregisters it.
func (s *Store) Subscribe(fn func(domain.Project)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(p domain.Project) {
	s.mu.Lock()
	fns := make([]func(domain.Project), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (s *Store) commitLocked(next domain.Project, label string) {
	if label == "" {
		s.current = next
		return
	}
	now := s.cfg.Clock()
	next.ModifiedAt = now
	next.Label = label
	entry := domain.HistoryEntry{Project: settled(next.Clone()), Label: label, At: now}

	atEnd := s.cursor == len(s.entries)-1
	if n := len(s.entries); n > 0 && atEnd && s.cfg.CoalesceWindow > 0 {
		last := s.entries[n-1]
		if last.Label == label && now.Sub(last.At) < s.cfg.CoalesceWindow {
			s.entries[n-1] = entry
			s.current = next
			return
		}
	}
	// Any new entry invalidates redo.
	if s.cursor >= 0 && !atEnd {
		s.entries = s.entries[:s.cursor+1]
	}
	s.entries = append(s.entries, entry)
	s.cursor = len(s.entries) - 1
	s.enforceCapsLocked()
	s.current = next
}

// settled clears the loading flags of p. Entries never record in-flight work;
// a job's result is written to the current project only.
func settled(p domain.Project) domain.Project {
	for i := range p.Scenes {
		sc := &p.Scenes[i]
		sc.Image.Loading = false
		sc.Audio.Loading = false
		sc.Video.Loading = false
	}
	return p
}

func (s *Store) enforceCapsLocked() {
	if s.cfg.MaxEntries <= 0 || len(s.entries) <= s.cfg.MaxEntries {
		return
	}
	// drop the oldest extras
	toDrop := len(s.entries) - s.cfg.MaxEntries
	s.entries = append([]domain.HistoryEntry{}, s.entries[toDrop:]...)
	s.cursor -= toDrop
	if s.cursor < 0 {
		s.cursor = 0
	}
}
