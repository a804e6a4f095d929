/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import "math"

// TailOptions controls the generated tail geometry.
// Units are the same as the canvas (pixels).
// Output points are rounded to 3 decimals so results are deterministic.
type TailOptions struct {
	// BaseWidth is the width where the tail attaches to the bubble edge.
	BaseWidth float32
	// Length is the distance from the base center to the tip. A target closer
	// than Length in the outward direction becomes the tip itself.
	Length float32
	// Inset keeps the base away from rounded corners.
	Inset float32
}

// TailGeometry describes the generated tail points and its path.
type TailGeometry struct {
	BaseLeft   Pt
	BaseRight  Pt
	BaseCenter Pt
	Tip        Pt
	Side       string // left/right/top/bottom
	Path       Path
}

// ComputeBubbleTail builds a triangular tail for a rectangular bubble pointing
// at target. The base sits on the bubble edge where the ray from the bubble
// center towards target leaves the rectangle, pulled inside the straight part
// of that edge by Inset.
func ComputeBubbleTail(bubble Rect, target Pt, opts TailOptions) TailGeometry {
	if opts.BaseWidth <= 0 {
		opts.BaseWidth = max(8, min(bubble.W, bubble.H)*0.2)
	}
	if opts.Length <= 0 {
		opts.Length = max(12, min(bubble.W, bubble.H)*0.35)
	}

	c := bubble.Center()
	vx, vy := target.X-c.X, target.Y-c.Y
	if vx == 0 && vy == 0 {
		vy = 1 // straight down
	}
	mag := hypot(vx, vy)
	ux, uy := vx/mag, vy/mag

	// distance from center to the rectangle edge along u
	tx, ty := float32(math.Inf(1)), float32(math.Inf(1))
	if ux != 0 {
		tx = (bubble.W / 2) / float32(math.Abs(float64(ux)))
	}
	if uy != 0 {
		ty = (bubble.H / 2) / float32(math.Abs(float64(uy)))
	}
	d := min(tx, ty)
	side := classifySide(ux, uy, tx, ty)

	bc := Pt{c.X + ux*d, c.Y + uy*d}
	halfW := opts.BaseWidth / 2
	// base runs along the edge, not perpendicular to u, so it sits flush
	var ex, ey float32
	switch side {
	case "top", "bottom":
		lo, hi := bubble.X+opts.Inset+halfW, bubble.X+bubble.W-opts.Inset-halfW
		bc.X = clampF(bc.X, lo, hi)
		ex = 1
	default:
		lo, hi := bubble.Y+opts.Inset+halfW, bubble.Y+bubble.H-opts.Inset-halfW
		bc.Y = clampF(bc.Y, lo, hi)
		ey = 1
	}
	bc = Pt{FloatRound(bc.X, 3), FloatRound(bc.Y, 3)}
	bl := Pt{FloatRound(bc.X-ex*halfW, 3), FloatRound(bc.Y-ey*halfW, 3)}
	br := Pt{FloatRound(bc.X+ex*halfW, 3), FloatRound(bc.Y+ey*halfW, 3)}

	// outward normal of the chosen edge
	nx, ny := float32(0), float32(0)
	switch side {
	case "left":
		nx = -1
	case "right":
		nx = 1
	case "top":
		ny = -1
	default:
		ny = 1
	}
	var tip Pt
	dot := (target.X-bc.X)*nx + (target.Y-bc.Y)*ny
	if dot > 0 && hypot(target.X-bc.X, target.Y-bc.Y) <= opts.Length {
		tip = Pt{FloatRound(target.X, 3), FloatRound(target.Y, 3)}
	} else {
		// lean the tip towards the target but never back into the bubble
		dx, dy := ux, uy
		if dx*nx+dy*ny < 0.3 {
			dx, dy = nx, ny
		}
		tip = Pt{FloatRound(bc.X+dx*opts.Length, 3), FloatRound(bc.Y+dy*opts.Length, 3)}
	}

	var path Path
	path.MoveTo(bl.X, bl.Y)
	path.LineTo(tip.X, tip.Y)
	path.LineTo(br.X, br.Y)
	path.Close()

	return TailGeometry{
		BaseLeft:   bl,
		BaseRight:  br,
		BaseCenter: bc,
		Tip:        tip,
		Side:       side,
		Path:       path,
	}
}

// classifySide picks the edge hit first by the ray; tx and ty are the ray
// lengths to the vertical and horizontal edges.
func classifySide(ux, uy, tx, ty float32) string {
	if tx <= ty {
		if ux >= 0 {
			return "right"
		}
		return "left"
	}
	if uy >= 0 {
		return "bottom"
	}
	return "top"
}

func clampF(v, lo, hi float32) float32 {
	if lo > hi {
		return (lo + hi) / 2
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
