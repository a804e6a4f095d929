/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"path/filepath"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/layout"
)

// layoutFor resolves presets and overrides for the raster formats.
func layoutFor(p domain.Project, opts Options, defaultPreset string) (layout.Config, error) {
	name := opts.LayoutPreset
	if name == "" {
		name = defaultPreset
	}
	bubble := opts.BubblePreset
	if bubble == "" {
		bubble = BubbleClassic
	}
	cfg, err := opts.Presets.ResolveLayout(name, bubble, opts.Layout, opts.Bubble)
	if err != nil {
		return layout.Config{}, err
	}
	if opts.TargetWidth > 0 {
		cfg.Width = opts.TargetWidth
	}
	if opts.Layout.Title == nil {
		cfg.Title = p.Title
	}
	cfg.BurnCaptions = opts.BurnCaptions
	return cfg, nil
}

func panelsFor(p domain.Project, images []image.Image) []layout.Panel {
	panels := make([]layout.Panel, len(p.Scenes))
	for i, sc := range p.Scenes {
		panels[i] = layout.Panel{Image: images[i], Caption: sc.Text, Ordinal: i + 1}
	}
	return panels
}

// exportComic writes one PNG per page: <name>-page-NN.png.
func exportComic(ctx context.Context, p domain.Project, src Source, opts Options, logger *slog.Logger) ([]string, error) {
	cfg, err := layoutFor(p, opts, LayoutClassic)
	if err != nil {
		return nil, err
	}
	images, err := prefetch(ctx, p, src, opts.Concurrency, logger)
	if err != nil {
		return nil, err
	}
	pages, err := layout.NewEngine(opts.Provider).RenderPages(ctx, panelsFor(p, images), cfg)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(pages))
	for i, pg := range pages {
		name := filepath.Join(opts.OutDir, fmt.Sprintf("%s-page-%02d.png", opts.Name, i+1))
		if err := writePNG(name, pg); err != nil {
			return files, err
		}
		files = append(files, name)
	}
	return files, nil
}

// exportStoryboard writes all scenes into one long image: <name>-storyboard.png.
func exportStoryboard(ctx context.Context, p domain.Project, src Source, opts Options, logger *slog.Logger) ([]string, error) {
	cfg, err := layoutFor(p, opts, LayoutCinematic)
	if err != nil {
		return nil, err
	}
	images, err := prefetch(ctx, p, src, opts.Concurrency, logger)
	if err != nil {
		return nil, err
	}
	img, err := layout.NewEngine(opts.Provider).RenderComposite(ctx, panelsFor(p, images), cfg)
	if err != nil {
		return nil, err
	}
	name := filepath.Join(opts.OutDir, opts.Name+"-storyboard.png")
	if err := writePNG(name, img); err != nil {
		return nil, err
	}
	return []string{name}, nil
}

func writePNG(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}
