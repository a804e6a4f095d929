/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package layout

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"gostoryboard/internal/textlayout"
)

func solid(w, h int, c color.Color) image.Image {
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(m, m.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return m
}

func smallConfig() Config {
	return Config{Width: 440, Columns: 2, RowsPerPage: 3, Aspect: FixedAspect(4, 3), Spacing: 20, Margin: 10, PageGap: 40}
}

func TestRenderPages_SevenScenes(t *testing.T) {
	e := NewEngine(textlayout.BasicProvider{})
	panels := make([]Panel, 7)
	for i := range panels {
		panels[i].Image = solid(80, 60, color.RGBA{R: 200, A: 255})
	}
	pages, err := e.RenderPages(context.Background(), panels, smallConfig())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(pages))
	}
	plan := PlanPages(panels, smallConfig())
	if pages[1].Bounds().Dy() != ceil(plan.Pages[1].Height) {
		t.Fatalf("last page height %d, plan %v", pages[1].Bounds().Dy(), plan.Pages[1].Height)
	}
	// first slot of page 2 holds the panel, the second stays background
	cell := plan.Pages[1].Rows[0].Cells[0].Rect
	cx, cy := int(cell.X+cell.W/2), int(cell.Y+cell.H/2)
	if got := pages[1].RGBAAt(cx, cy); got.R != 200 || got.G != 0 {
		t.Fatalf("panel pixel %v", got)
	}
	if got := pages[1].RGBAAt(cx+int(plan.PanelWidth)+20, cy); got != (color.RGBA{255, 255, 255, 255}) {
		t.Fatalf("empty slot was drawn: %v", got)
	}
}

func TestRenderPlaceholderForMissingImage(t *testing.T) {
	e := NewEngine(textlayout.BasicProvider{})
	cfg := smallConfig()
	pages, err := e.RenderPages(context.Background(), []Panel{{}, {Image: solid(10, 10, color.Black)}}, cfg)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	cell := PlanPages([]Panel{{}}, cfg).Pages[0].Rows[0].Cells[0].Rect
	got := pages[0].RGBAAt(int(cell.X+cell.W/2), int(cell.Y+cell.H*0.2))
	if got.R != 0xdd || got.G != 0xdd || got.B != 0xdd {
		t.Fatalf("placeholder pixel %v", got)
	}
}

func TestCoverFitCropsWithoutDistortion(t *testing.T) {
	// left half red, right half blue; a tall slot keeps only the middle
	src := image.NewRGBA(image.Rect(0, 0, 200, 50))
	draw.Draw(src, image.Rect(0, 0, 100, 50), image.NewUniform(color.RGBA{R: 255, A: 255}), image.Point{}, draw.Src)
	draw.Draw(src, image.Rect(100, 0, 200, 50), image.NewUniform(color.RGBA{B: 255, A: 255}), image.Point{}, draw.Src)
	dst := image.NewRGBA(image.Rect(0, 0, 100, 100))
	drawCover(dst, dst.Bounds(), src)
	if l := dst.RGBAAt(5, 50); l.R < 200 || l.B > 50 {
		t.Fatalf("left edge should be red, got %v", l)
	}
	if r := dst.RGBAAt(94, 50); r.B < 200 || r.R > 50 {
		t.Fatalf("right edge should be blue, got %v", r)
	}
	for y := 0; y < 100; y += 10 {
		if dst.RGBAAt(20, y).A != 255 {
			t.Fatalf("cover left a gap at y=%d", y)
		}
	}
}

func TestRenderComposite_HeightFromPlan(t *testing.T) {
	e := NewEngine(textlayout.BasicProvider{})
	cfg := smallConfig()
	cfg.HeaderHeight = 60
	cfg.Title = "Night Train"
	cfg.ShowOrdinals = true
	cfg.ShowPageNumbers = true
	cfg.BurnCaptions = true
	cfg.Border = Border{Width: 2, Dashed: true}
	panels := make([]Panel, 9)
	for i := range panels {
		panels[i] = Panel{Image: solid(40, 30, color.Gray{Y: 90}), Caption: "on the platform"}
	}
	img, err := e.RenderComposite(context.Background(), panels, cfg)
	if err != nil {
		t.Fatalf("composite: %v", err)
	}
	plan := PlanPages(panels, cfg)
	if img.Bounds().Dx() != 440 || img.Bounds().Dy() != ceil(plan.Height) {
		t.Fatalf("composite bounds %v, plan height %v", img.Bounds(), plan.Height)
	}
	// the gap between pages is plain background
	gapY := int(plan.Pages[0].Height + plan.PageGap/2)
	if got := img.RGBAAt(220, gapY); got != (color.RGBA{255, 255, 255, 255}) {
		t.Fatalf("gap pixel %v", got)
	}
}

func TestRenderErrors(t *testing.T) {
	e := NewEngine(textlayout.BasicProvider{})
	if _, err := e.RenderPages(context.Background(), nil, Config{}); !errors.Is(err, ErrNoPanels) {
		t.Fatalf("expected ErrNoPanels, got %v", err)
	}
	if _, err := e.RenderComposite(context.Background(), nil, Config{}); !errors.Is(err, ErrNoPanels) {
		t.Fatalf("expected ErrNoPanels, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.RenderPages(ctx, []Panel{{}}, smallConfig()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
