/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package generate

import (
	"context"
	"errors"

	"gostoryboard/internal/domain"
)

// ErrUnknownScene is returned by single-scene operations addressed to a scene
// that is not part of the current project.
var ErrUnknownScene = errors.New("unknown scene")

// Backend produces one artifact per request. The returned ref is a data URI or
// a remote URL; the orchestrator turns it into a display handle.
type Backend interface {
	Generate(ctx context.Context, req Request) (domain.ResourceRef, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request) (domain.ResourceRef, error)

func (f BackendFunc) Generate(ctx context.Context, req Request) (domain.ResourceRef, error) {
	return f(ctx, req)
}

// Request describes one artifact to generate.
type Request struct {
	Kind      domain.ArtifactKind   `json:"kind"`
	SceneID   int                   `json:"sceneId"`
	Directive string                `json:"directive"`
	Text      string                `json:"text,omitempty"`
	World     string                `json:"world,omitempty"`
	Style     string                `json:"style,omitempty"`
	Anchors   []domain.VisualAnchor `json:"anchors,omitempty"`
	Seed      *int64                `json:"seed,omitempty"`
	// Reference is the current image as a payload, set for modifications.
	Reference domain.ResourceRef `json:"reference,omitempty"`
	Feedback  string             `json:"feedback,omitempty"`
}

// Shared carries the parameters common to every scene of a batch.
type Shared struct {
	World string
	Style string
	Seed  *int64
}

// SharedFrom takes the shared parameters from a project.
func SharedFrom(p domain.Project) Shared {
	return Shared{World: p.World, Style: p.Style, Seed: p.Seed}
}

func buildRequest(p domain.Project, sc domain.Scene, kind domain.ArtifactKind, sh Shared) Request {
	req := Request{
		Kind:      kind,
		SceneID:   sc.ID,
		Directive: sc.Directive,
		Text:      sc.Text,
		World:     sh.World,
		Style:     sh.Style,
		Anchors:   p.AnchorsFor(sc),
	}
	if req.Directive == "" {
		req.Directive = sc.Text
	}
	if sh.Seed != nil {
		s := *sh.Seed
		req.Seed = &s
	}
	return req
}
