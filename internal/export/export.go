/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export writes a project in one of four shapes: comic pages,
// a long storyboard image, a paginated document, or an archive.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"gostoryboard/internal/domain"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/resource"
	"gostoryboard/internal/textlayout"
)

// Format selects the output shape.
type Format string

const (
	FormatComic      Format = "comic"
	FormatStoryboard Format = "storyboard"
	FormatDocument   Format = "document"
	FormatArchive    Format = "archive"
)

// Formats lists every supported format.
var Formats = []Format{FormatComic, FormatStoryboard, FormatDocument, FormatArchive}

// ParseFormat is case-insensitive.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range Formats {
		if f == k {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ErrNoScenes is returned for a project without scenes.
var ErrNoScenes = errors.New("export: project has no scenes")

// Source turns scene references into images and bytes; *resource.Codec
// implements it.
type Source interface {
	Open(ctx context.Context, ref domain.ResourceRef) (image.Image, string, error)
	ToStorageBlob(ctx context.Context, ref domain.ResourceRef) (*resource.Blob, error)
}

// Options controls one export.
//
//nolint:revive // keep fields explicit for clarity
type Options struct {
	Format Format
	// OutDir is created when missing.
	OutDir string
	// Name is the base file name; defaults to a slug of the title.
	Name string
	// TargetWidth overrides the page width in pixels when > 0.
	TargetWidth  int
	BurnCaptions bool
	// LayoutPreset and BubblePreset apply to comic and storyboard output.
	// Empty selects classic for comic and cinematic for storyboard.
	LayoutPreset string
	BubblePreset string
	Layout       LayoutOverrides
	Bubble       BubbleOverrides
	// Presets defaults to the built-ins.
	Presets *Presets
	// Provider renders text; nil selects the bundled Go font.
	Provider textlayout.Provider
	// Concurrency bounds image decoding; default 4.
	Concurrency int
}

// Result lists the files written, in order.
type Result struct {
	Format Format
	Files  []string
}

// Export writes p according to opts. Scenes whose image cannot be loaded
// are rendered as placeholders; only I/O on the output fails the export.
func Export(ctx context.Context, p domain.Project, src Source, opts Options) (Result, error) {
	logger := applog.WithOperation(applog.WithComponent("export"), "export")
	if len(p.Scenes) == 0 {
		return Result{}, ErrNoScenes
	}
	f, err := ParseFormat(string(opts.Format))
	if err != nil {
		return Result{}, err
	}
	if opts.Presets == nil {
		opts.Presets = BuiltinPresets()
	}
	if opts.Provider == nil {
		opts.Provider = textlayout.DefaultProvider()
	}
	if opts.Name == "" {
		opts.Name = slug(p.Title)
	}
	if opts.OutDir == "" {
		opts.OutDir = "."
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("ensure out dir: %w", err)
	}

	res := Result{Format: f}
	switch f {
	case FormatComic:
		res.Files, err = exportComic(ctx, p, src, opts, logger)
	case FormatStoryboard:
		res.Files, err = exportStoryboard(ctx, p, src, opts, logger)
	case FormatDocument:
		res.Files, err = exportDocument(ctx, p, src, opts, logger)
	case FormatArchive:
		res.Files, err = exportArchive(ctx, p, src, opts, logger)
	}
	if err != nil {
		return Result{}, fmt.Errorf("export %s: %w", f, err)
	}
	logger.Info("export finished", slog.String("format", string(f)), slog.Int("files", len(res.Files)), slog.Int("scenes", len(p.Scenes)))
	return res, nil
}

// prefetch decodes every scene image in parallel. A missing or broken image
// leaves a nil entry.
func prefetch(ctx context.Context, p domain.Project, src Source, limit int, logger *slog.Logger) ([]image.Image, error) {
	if limit <= 0 {
		limit = 4
	}
	out := make([]image.Image, len(p.Scenes))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	for i, sc := range p.Scenes {
		if sc.Image.Ref.IsZero() {
			continue
		}
		eg.Go(func() error {
			img, _, err := src.Open(egCtx, sc.Image.Ref)
			if err != nil {
				if egCtx.Err() != nil {
					return egCtx.Err()
				}
				logger.Warn("scene image unavailable, using placeholder", slog.Int("scene", sc.ID), slog.String("err", err.Error()))
				return nil
			}
			out[i] = img
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// writeFileAtomic writes to a temp file in the same directory, syncs it and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if err := writeFileSync(temp, data); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(temp, path); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// slug keeps letters and digits and joins the rest with dashes.
func slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "storyboard"
	}
	return s
}
