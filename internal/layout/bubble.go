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
	"image/draw"

	"gostoryboard/internal/textlayout"
	"gostoryboard/internal/vector"
)

// Bubble is a placed caption.
type Bubble struct {
	Rect vector.Rect
	Text textlayout.TextBox
	// Position is the resolved corner; never Auto.
	Position Position
	Style    BubbleStyle
	// Tail is set for the speech style only.
	Tail *vector.TailGeometry
}

// PlaceBubble sizes a bubble from the wrapped caption and places it inside
// panel. All styles share the same size computation.
func PlaceBubble(panel vector.Rect, caption string, cfg BubbleConfig, provider textlayout.Provider) Bubble {
	cfg = cfg.normalized()
	maxText := max(panel.W*cfg.MaxWidthRatio-2*cfg.Padding, 1)
	box, _ := textlayout.NewRuneWrap(provider).Layout(caption, textlayout.FontSpec{SizePt: cfg.FontSize}, maxText)
	w := box.Width + 2*cfg.Padding
	h := box.Height + 2*cfg.Padding

	pos := cfg.Position
	if pos == Auto {
		pos = TopLeft
		if h > autoCenterRatio*panel.H {
			pos = Center
		}
	}
	m := cfg.Margin
	var x, y float32
	switch pos {
	case TopRight:
		x, y = panel.X+panel.W-m-w, panel.Y+m
	case BottomLeft:
		x, y = panel.X+m, panel.Y+panel.H-m-h
	case BottomRight:
		x, y = panel.X+panel.W-m-w, panel.Y+panel.H-m-h
	case Center:
		x, y = panel.X+(panel.W-w)/2, panel.Y+(panel.H-h)/2
	default:
		x, y = panel.X+m, panel.Y+m
	}
	b := Bubble{Rect: vector.R(x, y, w, h), Text: box, Position: pos, Style: cfg.Style}
	if cfg.Style == StyleSpeech {
		// the tail points away from the panel edge the bubble sits on
		c := b.Rect.Center()
		target := vector.Pt{X: c.X - w/4, Y: y + h + h}
		if pos == BottomLeft || pos == BottomRight {
			target.Y = y - h
		}
		tail := vector.ComputeBubbleTail(b.Rect, target, vector.TailOptions{Inset: cfg.Radius})
		b.Tail = &tail
	}
	return b
}

// shape is the outline shared by all styles. Soft bubbles are rounder.
func (b Bubble) shape(cfg BubbleConfig) vector.Path {
	radius := cfg.Radius
	if b.Style == StyleSoft {
		radius = max(radius*2, min(b.Rect.W, b.Rect.H)/3)
	}
	p := vector.RoundedRect(b.Rect, radius)
	if b.Tail != nil {
		p.Append(b.Tail.Path)
	}
	return p
}

// draw paints the bubble and its text. The fill of the tail overlaps the
// bubble outline so the joint stays open.
func (b Bubble) draw(dst draw.Image, cfg BubbleConfig, provider textlayout.Provider) {
	cfg = cfg.normalized()
	if cfg.Shadow {
		off := max(cfg.StrokeWidth, 4)
		shadow := b
		shadow.Rect = b.Rect.Offset(off, off)
		if b.Tail != nil {
			t := *b.Tail
			t.Path = t.Path.Transform(vector.Translate(off, off))
			shadow.Tail = &t
		}
		vector.FillPath(dst, shadow.shape(cfg), vector.Color{A: 90})
	}
	outline := b.shape(cfg)
	if cfg.StrokeWidth > 0 {
		vector.StrokePath(dst, outline, vector.Stroke{Color: cfg.Stroke, Width: cfg.StrokeWidth, Enabled: true})
	}
	vector.FillPath(dst, outline, cfg.Fill)

	face, _ := provider.Resolve(textlayout.FontSpec{SizePt: cfg.FontSize})
	textlayout.Draw(dst, face, b.Text, b.Rect.X, b.Rect.Y+cfg.Padding, b.Rect.W, cfg.Text.NRGBA())
}
