/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import (
	"image"
	"image/draw"
	"math"

	xvector "golang.org/x/image/vector"
)

// curveSteps is the number of line segments a curve is flattened into when stroking.
const curveSteps = 16

// FillPath paints the interior of p onto dst with anti-aliasing.
func FillPath(dst draw.Image, p Path, c Color) {
	if c.A == 0 || len(p.Cmds) == 0 {
		return
	}
	// Rasterize over the whole path so no point falls outside the rasterizer,
	// then let draw.DrawMask clip against dst.
	full := outward(p.Bounds())
	area := full.Intersect(dst.Bounds())
	if area.Empty() {
		return
	}
	z := xvector.NewRasterizer(full.Dx(), full.Dy())
	ox, oy := float32(full.Min.X), float32(full.Min.Y)
	open := false
	for _, cmd := range p.Cmds {
		d := cmd.Data
		switch cmd.Op {
		case MoveTo:
			if open {
				z.ClosePath()
			}
			z.MoveTo(d[0]-ox, d[1]-oy)
			open = true
		case LineTo:
			z.LineTo(d[0]-ox, d[1]-oy)
		case QuadTo:
			z.QuadTo(d[0]-ox, d[1]-oy, d[2]-ox, d[3]-oy)
		case CubicTo:
			z.CubeTo(d[0]-ox, d[1]-oy, d[2]-ox, d[3]-oy, d[4]-ox, d[5]-oy)
		case Close:
			z.ClosePath()
			open = false
		}
	}
	if open {
		z.ClosePath()
	}
	mask := image.NewAlpha(image.Rect(0, 0, full.Dx(), full.Dy()))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	draw.DrawMask(dst, area, image.NewUniform(c.NRGBA()), image.Point{}, mask, area.Min.Sub(full.Min), draw.Over)
}

// StrokePath paints the outline of p. Each segment becomes a quad of the
// stroke width; Dash splits the outline into on/off runs.
func StrokePath(dst draw.Image, p Path, s Stroke) {
	if s.Width <= 0 || s.Color.A == 0 {
		return
	}
	var out Path
	for _, line := range flatten(p) {
		for _, run := range dashRuns(line, s.Dash) {
			for i := 0; i+1 < len(run); i++ {
				segmentQuad(&out, run[i], run[i+1], s.Width/2)
			}
		}
	}
	FillPath(dst, out, s.Color)
}

// StrokeRect outlines r.
func StrokeRect(dst draw.Image, r Rect, s Stroke) { StrokePath(dst, RoundedRect(r, 0), s) }

// FillRect paints r.
func FillRect(dst draw.Image, r Rect, c Color) { FillPath(dst, RoundedRect(r, 0), c) }

// segmentQuad appends a rectangle around a->b extended by hw at both ends so
// neighbouring segments overlap at the joins.
func segmentQuad(out *Path, a, b Pt, hw float32) {
	dx, dy := b.X-a.X, b.Y-a.Y
	l := hypot(dx, dy)
	if l == 0 {
		return
	}
	ux, uy := dx/l, dy/l
	nx, ny := -uy*hw, ux*hw
	a = Pt{a.X - ux*hw, a.Y - uy*hw}
	b = Pt{b.X + ux*hw, b.Y + uy*hw}
	out.MoveTo(a.X+nx, a.Y+ny)
	out.LineTo(b.X+nx, b.Y+ny)
	out.LineTo(b.X-nx, b.Y-ny)
	out.LineTo(a.X-nx, a.Y-ny)
	out.Close()
}

// flatten turns p into polylines; closed subpaths repeat their first point.
func flatten(p Path) [][]Pt {
	var lines [][]Pt
	var cur []Pt
	var start, pen Pt
	flush := func() {
		if len(cur) > 1 {
			lines = append(lines, cur)
		}
		cur = nil
	}
	for _, c := range p.Cmds {
		d := c.Data
		switch c.Op {
		case MoveTo:
			flush()
			pen = Pt{d[0], d[1]}
			start = pen
			cur = []Pt{pen}
		case LineTo:
			pen = Pt{d[0], d[1]}
			cur = append(cur, pen)
		case QuadTo:
			p0, p1, p2 := pen, Pt{d[0], d[1]}, Pt{d[2], d[3]}
			for i := 1; i <= curveSteps; i++ {
				t := float32(i) / curveSteps
				mt := 1 - t
				cur = append(cur, Pt{
					mt*mt*p0.X + 2*mt*t*p1.X + t*t*p2.X,
					mt*mt*p0.Y + 2*mt*t*p1.Y + t*t*p2.Y,
				})
			}
			pen = p2
		case CubicTo:
			p0, p1, p2, p3 := pen, Pt{d[0], d[1]}, Pt{d[2], d[3]}, Pt{d[4], d[5]}
			for i := 1; i <= curveSteps; i++ {
				t := float32(i) / curveSteps
				mt := 1 - t
				a, b, c, e := mt*mt*mt, 3*mt*mt*t, 3*mt*t*t, t*t*t
				cur = append(cur, Pt{
					a*p0.X + b*p1.X + c*p2.X + e*p3.X,
					a*p0.Y + b*p1.Y + c*p2.Y + e*p3.Y,
				})
			}
			pen = p3
		case Close:
			if len(cur) > 0 && cur[len(cur)-1] != start {
				cur = append(cur, start)
			}
			flush()
			pen = start
		}
	}
	flush()
	return lines
}

// dashRuns cuts a polyline into the "on" parts of the dash pattern.
func dashRuns(line []Pt, dash []float32) [][]Pt {
	if len(dash) == 0 {
		return [][]Pt{line}
	}
	var total float32
	for _, d := range dash {
		total += d
	}
	if total <= 0 {
		return [][]Pt{line}
	}
	var runs [][]Pt
	idx, left, on := 0, dash[0], true
	run := []Pt{line[0]}
	for i := 0; i+1 < len(line); i++ {
		a, b := line[i], line[i+1]
		seg := hypot(b.X-a.X, b.Y-a.Y)
		pos := float32(0)
		for seg-pos > left {
			pos += left
			t := pos / seg
			q := Pt{a.X + (b.X-a.X)*t, a.Y + (b.Y-a.Y)*t}
			if on {
				run = append(run, q)
				runs = append(runs, run)
				run = nil
			} else {
				run = []Pt{q}
			}
			on = !on
			idx = (idx + 1) % len(dash)
			left = dash[idx]
		}
		left -= seg - pos
		if on {
			run = append(run, b)
		}
	}
	if on && len(run) > 1 {
		runs = append(runs, run)
	}
	return runs
}

func outward(r Rect) image.Rectangle {
	return image.Rect(
		int(math.Floor(float64(r.X))), int(math.Floor(float64(r.Y))),
		int(math.Ceil(float64(r.X+r.W))), int(math.Ceil(float64(r.Y+r.H))),
	)
}
