/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the core data model of a storyboard project.
// Values are plain structs that serialize to JSON; a Project stored in history
// is never mutated, edits always produce a new value (see Clone).

import (
	"slices"
	"strings"
	"time"
)

// Mode selects how a project is presented and exported.
type Mode string

const (
	ModeStoryboard Mode = "storyboard"
	ModeComic      Mode = "comic"
)

// ArtifactKind names a generated artifact attached to a scene.
type ArtifactKind string

const (
	ArtifactImage ArtifactKind = "image"
	ArtifactAudio ArtifactKind = "audio"
	ArtifactVideo ArtifactKind = "video"
)

// ResourceRef points at binary content in one of its representations.
// The scheme prefix tells which one:
//   - "data:"          self-contained payload
//   - "http(s)://"     remote payload, fetched on demand
//   - "handle:"        session-local display handle
//   - "blob:"          key of a storage blob
//
// The empty string means absent.
type ResourceRef string

const (
	SchemeData   = "data:"
	SchemeHandle = "handle:"
	SchemeBlob   = "blob:"
)

func (r ResourceRef) IsZero() bool   { return r == "" }
func (r ResourceRef) IsData() bool   { return strings.HasPrefix(string(r), SchemeData) }
func (r ResourceRef) IsHandle() bool { return strings.HasPrefix(string(r), SchemeHandle) }
func (r ResourceRef) IsBlob() bool   { return strings.HasPrefix(string(r), SchemeBlob) }
func (r ResourceRef) IsRemote() bool {
	s := string(r)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Artifact is the per-kind state of a scene: the resolved reference plus the
// transient loading flag and the last error text.
type Artifact struct {
	Ref     ResourceRef `json:"ref,omitempty"`
	Loading bool        `json:"loading,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Scene is one narrative unit. ID is stable and unique within a project.
type Scene struct {
	ID         int      `json:"id"`
	Text       string   `json:"text"`
	Directive  string   `json:"directive"`
	Image      Artifact `json:"image"`
	Audio      Artifact `json:"audio"`
	Video      Artifact `json:"video"`
	Tags       []string `json:"tags,omitempty"`
	Characters []string `json:"characters,omitempty"`
}

// Artifact returns a pointer to the artifact slot of the given kind.
func (s *Scene) Artifact(kind ArtifactKind) *Artifact {
	switch kind {
	case ArtifactAudio:
		return &s.Audio
	case ArtifactVideo:
		return &s.Video
	default:
		return &s.Image
	}
}

// Loading reports whether any artifact of the scene is in flight.
func (s Scene) Loading() bool { return s.Image.Loading || s.Audio.Loading || s.Video.Loading }

// Refs returns every non-empty resource reference held by the scene.
func (s Scene) Refs() []ResourceRef {
	out := make([]ResourceRef, 0, 3)
	for _, a := range []Artifact{s.Image, s.Audio, s.Video} {
		if !a.Ref.IsZero() {
			out = append(out, a.Ref)
		}
	}
	return out
}

// VisualAnchor is a named character appearance shared by scenes.
// Scenes reference anchors by name only.
type VisualAnchor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Project is the root aggregate.
type Project struct {
	ID         string         `json:"id,omitempty"`
	Title      string         `json:"title"`
	Mode       Mode           `json:"mode"`
	World      string         `json:"world,omitempty"`
	Style      string         `json:"style,omitempty"`
	Seed       *int64         `json:"seed,omitempty"`
	Anchors    []VisualAnchor `json:"anchors,omitempty"`
	Scenes     []Scene        `json:"scenes"`
	ModifiedAt time.Time      `json:"modifiedAt"`
	Label      string         `json:"label,omitempty"`
}

// Clone returns a deep copy so callers can edit without touching history entries.
func (p Project) Clone() Project {
	out := p
	if p.Seed != nil {
		s := *p.Seed
		out.Seed = &s
	}
	out.Anchors = slices.Clone(p.Anchors)
	if p.Scenes != nil {
		out.Scenes = make([]Scene, len(p.Scenes))
		for i, sc := range p.Scenes {
			sc.Tags = slices.Clone(sc.Tags)
			sc.Characters = slices.Clone(sc.Characters)
			out.Scenes[i] = sc
		}
	}
	return out
}

// SceneIndex returns the slice index of scene id, or -1.
func (p Project) SceneIndex(id int) int {
	for i, sc := range p.Scenes {
		if sc.ID == id {
			return i
		}
	}
	return -1
}

// Scene returns the scene with the given id.
func (p Project) Scene(id int) (Scene, bool) {
	if i := p.SceneIndex(id); i >= 0 {
		return p.Scenes[i], true
	}
	return Scene{}, false
}

// NextSceneID returns an id not used by any scene.
func (p Project) NextSceneID() int {
	next := 1
	for _, sc := range p.Scenes {
		if sc.ID >= next {
			next = sc.ID + 1
		}
	}
	return next
}

// AnchorsFor resolves the character names of a scene to anchors, in scene order.
// Unknown names are skipped.
func (p Project) AnchorsFor(sc Scene) []VisualAnchor {
	if len(sc.Characters) == 0 || len(p.Anchors) == 0 {
		return nil
	}
	var out []VisualAnchor
	for _, name := range sc.Characters {
		for _, a := range p.Anchors {
			if strings.EqualFold(a.Name, name) {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// FirstImage returns the first resolved scene image, if any.
func (p Project) FirstImage() (ResourceRef, bool) {
	for _, sc := range p.Scenes {
		if !sc.Image.Ref.IsZero() {
			return sc.Image.Ref, true
		}
	}
	return "", false
}

// HistoryEntry is an immutable project snapshot with its label and timestamp.
type HistoryEntry struct {
	Project Project   `json:"project"`
	Label   string    `json:"label"`
	At      time.Time `json:"at"`
}
