/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

// Path commands and shape builders.

type PathOp uint8

const (
	MoveTo PathOp = iota
	LineTo
	QuadTo  // quadratic bezier (cx, cy, x, y)
	CubicTo // cubic bezier (cx1, cy1, cx2, cy2, x, y)
	Close
)

type PathCmd struct {
	Op   PathOp
	Data [6]float32 // enough for cubic; unused slots are zero
}

type Path struct{ Cmds []PathCmd }

func (p *Path) MoveTo(x, y float32) {
	p.Cmds = append(p.Cmds, PathCmd{Op: MoveTo, Data: [6]float32{x, y}})
}
func (p *Path) LineTo(x, y float32) {
	p.Cmds = append(p.Cmds, PathCmd{Op: LineTo, Data: [6]float32{x, y}})
}
func (p *Path) QuadTo(cx, cy, x, y float32) {
	p.Cmds = append(p.Cmds, PathCmd{Op: QuadTo, Data: [6]float32{cx, cy, x, y}})
}
func (p *Path) CubicTo(cx1, cy1, cx2, cy2, x, y float32) {
	p.Cmds = append(p.Cmds, PathCmd{Op: CubicTo, Data: [6]float32{cx1, cy1, cx2, cy2, x, y}})
}
func (p *Path) Close() { p.Cmds = append(p.Cmds, PathCmd{Op: Close}) }

// Append adds all commands of o.
func (p *Path) Append(o Path) { p.Cmds = append(p.Cmds, o.Cmds...) }

// Transform returns a copy with every point mapped through m.
func (p Path) Transform(m Affine2D) Path {
	out := Path{Cmds: make([]PathCmd, len(p.Cmds))}
	for i, c := range p.Cmds {
		for j := 0; j+1 < len(c.Data); j += 2 {
			q := m.Apply(Pt{c.Data[j], c.Data[j+1]})
			c.Data[j], c.Data[j+1] = q.X, q.Y
		}
		out.Cmds[i] = c
	}
	return out
}

// Bounds returns an axis-aligned box around all points including control
// points, so curves may be over-estimated.
func (p *Path) Bounds() Rect {
	minX, minY := float32(+1e9), float32(+1e9)
	maxX, maxY := float32(-1e9), float32(-1e9)
	add := func(x, y float32) {
		minX, minY = min(minX, x), min(minY, y)
		maxX, maxY = max(maxX, x), max(maxY, y)
	}
	for _, c := range p.Cmds {
		switch c.Op {
		case MoveTo, LineTo:
			add(c.Data[0], c.Data[1])
		case QuadTo:
			add(c.Data[0], c.Data[1])
			add(c.Data[2], c.Data[3])
		case CubicTo:
			add(c.Data[0], c.Data[1])
			add(c.Data[2], c.Data[3])
			add(c.Data[4], c.Data[5])
		}
	}
	if minX > maxX || minY > maxY {
		return Rect{}
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522847498

// RoundedRect returns a closed path for r with corner radius clamped to half
// the shorter side. radius <= 0 yields a plain rectangle.
func RoundedRect(r Rect, radius float32) Path {
	var p Path
	rad := min(radius, min(r.W, r.H)/2)
	if rad <= 0 {
		p.MoveTo(r.X, r.Y)
		p.LineTo(r.X+r.W, r.Y)
		p.LineTo(r.X+r.W, r.Y+r.H)
		p.LineTo(r.X, r.Y+r.H)
		p.Close()
		return p
	}
	k := rad * kappa
	x0, y0, x1, y1 := r.X, r.Y, r.X+r.W, r.Y+r.H
	p.MoveTo(x0+rad, y0)
	p.LineTo(x1-rad, y0)
	p.CubicTo(x1-rad+k, y0, x1, y0+rad-k, x1, y0+rad)
	p.LineTo(x1, y1-rad)
	p.CubicTo(x1, y1-rad+k, x1-rad+k, y1, x1-rad, y1)
	p.LineTo(x0+rad, y1)
	p.CubicTo(x0+rad-k, y1, x0, y1-rad+k, x0, y1-rad)
	p.LineTo(x0, y0+rad)
	p.CubicTo(x0, y0+rad-k, x0+rad-k, y0, x0+rad, y0)
	p.Close()
	return p
}

// Ellipse returns a closed path for the ellipse inscribed in r.
func Ellipse(r Rect) Path {
	var p Path
	cx, cy := r.X+r.W/2, r.Y+r.H/2
	rx, ry := r.W/2, r.H/2
	kx, ky := rx*kappa, ry*kappa
	p.MoveTo(cx+rx, cy)
	p.CubicTo(cx+rx, cy+ky, cx+kx, cy+ry, cx, cy+ry)
	p.CubicTo(cx-kx, cy+ry, cx-rx, cy+ky, cx-rx, cy)
	p.CubicTo(cx-rx, cy-ky, cx-kx, cy-ry, cx, cy-ry)
	p.CubicTo(cx+kx, cy-ry, cx+rx, cy-ky, cx+rx, cy)
	p.Close()
	return p
}
