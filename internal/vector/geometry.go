/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package vector holds the 2D geometry used by page layout: rectangles,
// paths, bubble tails, and rasterization of paths onto images.
package vector

// Float values use float32; layout rounds to whole pixels only when drawing.

import (
	"image"
	"math"
)

// Pt is a 2D point.
type Pt struct{ X, Y float32 }

// Rect is an axis-aligned rectangle: panel slots, bubbles and page areas.
type Rect struct {
	X, Y float32
	W, H float32
}

func R(x, y, w, h float32) Rect { return Rect{X: x, Y: y, W: w, H: h} }

func (r Rect) Center() Pt { return Pt{r.X + r.W/2, r.Y + r.H/2} }
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Offset moves the rectangle by dx,dy.
func (r Rect) Offset(dx, dy float32) Rect { return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W, H: r.H} }

// Image converts to an integer image.Rectangle, rounding each edge.
func (r Rect) Image() image.Rectangle {
	x0 := int(math.Round(float64(r.X)))
	y0 := int(math.Round(float64(r.Y)))
	x1 := int(math.Round(float64(r.X + r.W)))
	y1 := int(math.Round(float64(r.Y + r.H)))
	return image.Rect(x0, y0, x1, y1)
}

// Affine2D is the transform [a c e; b d f] applied to path points.
// Layout only translates (bubble shadows), so there is no composition.
type Affine2D struct{ A, B, C, D, E, F float32 }

func (m Affine2D) Apply(p Pt) Pt {
	return Pt{
		X: m.A*p.X + m.C*p.Y + m.E,
		Y: m.B*p.X + m.D*p.Y + m.F,
	}
}

func Translate(tx, ty float32) Affine2D { return Affine2D{A: 1, D: 1, E: tx, F: ty} }

// FloatRound rounds v to n decimal places so tail geometry is reproducible.
func FloatRound(v float32, places int) float32 {
	if places < 0 {
		return v
	}
	pow := float32(math.Pow(10, float64(places)))
	return float32(math.Round(float64(v*pow))) / pow
}

func hypot(dx, dy float32) float32 { return float32(math.Hypot(float64(dx), float64(dy))) }
