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
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"math"
	"strconv"

	xdraw "golang.org/x/image/draw"

	applog "gostoryboard/internal/log"
	"gostoryboard/internal/textlayout"
	"gostoryboard/internal/vector"
)

// ErrNoPanels is returned when there is nothing to lay out.
var ErrNoPanels = errors.New("layout: no panels")

var placeholderFill = vector.Color{R: 0xdd, G: 0xdd, B: 0xdd, A: 0xff}
var placeholderInk = vector.Color{R: 0xaa, G: 0xaa, B: 0xaa, A: 0xff}

// Engine rasterizes planned pages. It holds no per-render state and can be
// shared.
type Engine struct {
	provider textlayout.Provider
	logger   *slog.Logger
}

// NewEngine uses provider for all text; nil selects the bundled Go font.
func NewEngine(provider textlayout.Provider) *Engine {
	if provider == nil {
		provider = textlayout.DefaultProvider()
	}
	return &Engine{provider: provider, logger: applog.WithComponent("layout")}
}

// RenderPages returns one raster per page. Empty trailing slots of the last
// page are not drawn.
func (e *Engine) RenderPages(ctx context.Context, panels []Panel, cfg Config) ([]*image.RGBA, error) {
	if len(panels) == 0 {
		return nil, ErrNoPanels
	}
	cfg = cfg.normalized()
	plan := PlanPages(panels, cfg)
	out := make([]*image.RGBA, 0, len(plan.Pages))
	for _, pg := range plan.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img := image.NewRGBA(image.Rect(0, 0, cfg.Width, ceil(pg.Height)))
		e.drawPage(img, 0, plan, pg, panels, cfg)
		out = append(out, img)
	}
	e.logger.Debug("pages rendered", slog.Int("pages", len(out)), slog.Int("panels", len(panels)))
	return out, nil
}

// RenderComposite draws every page onto one canvas whose height is fixed by
// the plan before drawing starts.
func (e *Engine) RenderComposite(ctx context.Context, panels []Panel, cfg Config) (*image.RGBA, error) {
	if len(panels) == 0 {
		return nil, ErrNoPanels
	}
	cfg = cfg.normalized()
	plan := PlanPages(panels, cfg)
	h := ceil(plan.Height)
	if int64(cfg.Width)*int64(h) > math.MaxInt32 {
		return nil, fmt.Errorf("layout: composite %dx%d too large", cfg.Width, h)
	}
	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(cfg.Background.NRGBA()), image.Point{}, draw.Src)
	for _, pg := range plan.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.drawPage(img, pg.Y, plan, pg, panels, cfg)
	}
	e.logger.Debug("composite rendered", slog.Int("height", h), slog.Int("pages", len(plan.Pages)))
	return img, nil
}

func (e *Engine) drawPage(dst *image.RGBA, oy float32, plan Plan, pg Page, panels []Panel, cfg Config) {
	area := vector.R(0, oy, plan.Width, pg.Height).Image()
	draw.Draw(dst, area, image.NewUniform(cfg.Background.NRGBA()), image.Point{}, draw.Src)

	if pg.Header > 0 && cfg.Title != "" {
		size := pg.Header * 0.4
		box, _ := textlayout.NewRuneWrap(e.provider).Layout(cfg.Title, textlayout.FontSpec{SizePt: size}, plan.Width-2*cfg.Margin)
		face, _ := e.provider.Resolve(textlayout.FontSpec{SizePt: size})
		ty := oy + (pg.Header+cfg.Margin-box.Height)/2
		textlayout.Draw(dst, face, box, 0, ty, plan.Width, vector.Black.NRGBA())
	}

	for _, row := range pg.Rows {
		for _, cell := range row.Cells {
			r := cell.Rect.Offset(0, oy)
			p := panels[cell.Panel]
			if p.Image != nil {
				drawCover(dst, r.Image(), p.Image)
			} else {
				drawPlaceholder(dst, r)
			}
			if cfg.Border.Width > 0 {
				s := vector.Stroke{Color: cfg.Border.Color, Width: cfg.Border.Width, Enabled: true}
				if cfg.Border.Dashed {
					s.Dash = []float32{cfg.Border.Width * 4, cfg.Border.Width * 3}
				}
				vector.StrokeRect(dst, r, s)
			}
			if cfg.BurnCaptions && p.Caption != "" {
				b := PlaceBubble(r, p.Caption, cfg.Bubble, e.provider)
				b.draw(dst, cfg.Bubble, e.provider)
			}
			if cfg.ShowOrdinals {
				n := p.Ordinal
				if n == 0 {
					n = cell.Panel + 1
				}
				e.drawBadge(dst, r, strconv.Itoa(n))
			}
		}
	}

	if cfg.ShowPageNumbers {
		label := "page " + strconv.Itoa(pg.Index+1)
		size := max(min(cfg.Margin*0.5, 40), 10)
		box, _ := textlayout.NewRuneWrap(e.provider).Layout(label, textlayout.FontSpec{SizePt: size}, 0)
		face, _ := e.provider.Resolve(textlayout.FontSpec{SizePt: size})
		ty := oy + pg.Height - cfg.Margin + (cfg.Margin-box.Height)/2
		textlayout.Draw(dst, face, box, 0, ty, plan.Width, vector.Black.NRGBA())
	}
}

// drawCover scales src uniformly so it covers r and crops the overflow
// around the center. The aspect ratio is never distorted.
func drawCover(dst draw.Image, r image.Rectangle, src image.Image) {
	sb := src.Bounds()
	if r.Empty() || sb.Empty() {
		return
	}
	scale := max(float64(r.Dx())/float64(sb.Dx()), float64(r.Dy())/float64(sb.Dy()))
	cw := min(int(math.Round(float64(r.Dx())/scale)), sb.Dx())
	ch := min(int(math.Round(float64(r.Dy())/scale)), sb.Dy())
	x0 := sb.Min.X + (sb.Dx()-cw)/2
	y0 := sb.Min.Y + (sb.Dy()-ch)/2
	crop := image.Rect(x0, y0, x0+cw, y0+ch)
	xdraw.CatmullRom.Scale(dst, r, src, crop, draw.Src, nil)
}

func drawPlaceholder(dst draw.Image, r vector.Rect) {
	vector.FillRect(dst, r, placeholderFill)
	var x vector.Path
	x.MoveTo(r.X, r.Y)
	x.LineTo(r.X+r.W, r.Y+r.H)
	x.MoveTo(r.X+r.W, r.Y)
	x.LineTo(r.X, r.Y+r.H)
	vector.StrokePath(dst, x, vector.Stroke{Color: placeholderInk, Width: 2, Enabled: true})
}

func (e *Engine) drawBadge(dst draw.Image, panel vector.Rect, label string) {
	size := max(min(panel.W, panel.H)*0.06, 12)
	d := size * 1.8
	badge := vector.R(panel.X+size*0.5, panel.Y+panel.H-d-size*0.5, d, d)
	vector.FillPath(dst, vector.Ellipse(badge), vector.Black)
	box, _ := textlayout.NewRuneWrap(e.provider).Layout(label, textlayout.FontSpec{SizePt: size}, 0)
	face, _ := e.provider.Resolve(textlayout.FontSpec{SizePt: size})
	textlayout.Draw(dst, face, box, badge.X, badge.Y+(d-box.Height)/2, d, vector.White.NRGBA())
}

func ceil(v float32) int { return int(math.Ceil(float64(v))) }
