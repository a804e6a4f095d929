/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package textlayout measures and wraps caption text. All measurement goes
// through a Provider so tests can use a fixed-width face.
package textlayout

import (
	"image"
	"image/color"
	"image/draw"
	"strings"
	"unicode"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// FontSpec describes a requested font.
type FontSpec struct {
	Family string // logical family name
	SizePt float32
	Weight int // 100..900
	Italic bool
}

// Metrics provides font metrics in pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float32
}

// LineHeight is the baseline to baseline distance.
func (m Metrics) LineHeight() float32 { return m.Ascent + m.Descent + m.LineGap }

// Line is a single laid out line.
type Line struct {
	Text  string
	Width float32
}

// TextBox is the result of laying out text into a box width.
type TextBox struct {
	Lines   []Line
	Width   float32
	Height  float32
	Metrics Metrics
}

// Provider maps FontSpec to a concrete font.Face.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// Layouter performs line-breaking and measurement.
type Layouter interface {
	Layout(text string, spec FontSpec, maxWidth float32) (TextBox, error)
}

// BasicProvider uses x/image/basicfont Face7x13 for deterministic tests.
// Every glyph advances 7px and lines are 13px apart regardless of size.
type BasicProvider struct{}

func (BasicProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	f := basicfont.Face7x13
	return f, metricsOf(f)
}

func metricsOf(f font.Face) Metrics {
	m := f.Metrics()
	return Metrics{
		Ascent:  float32(m.Ascent.Round()),
		Descent: float32(m.Descent.Round()),
		LineGap: float32(m.Height.Round() - m.Ascent.Round() - m.Descent.Round()),
	}
}

// RuneWrapLayouter breaks lines greedily per character. Captions may be CJK
// text without any whitespace, so word boundaries are not required. Explicit
// newlines always start a new line and a wrapped line never starts with a
// space.
type RuneWrapLayouter struct{ Provider Provider }

func NewRuneWrap(provider Provider) *RuneWrapLayouter { return &RuneWrapLayouter{Provider: provider} }

func (l *RuneWrapLayouter) Layout(text string, spec FontSpec, maxWidth float32) (TextBox, error) {
	p := l.Provider
	if p == nil {
		p = BasicProvider{}
	}
	face, met := p.Resolve(spec)
	drawer := &font.Drawer{Face: face}
	box := TextBox{Metrics: met}

	var cur strings.Builder
	var width float32
	addLine := func() {
		box.Lines = append(box.Lines, Line{Text: cur.String(), Width: width})
		if width > box.Width {
			box.Width = width
		}
		cur.Reset()
		width = 0
	}
	for _, para := range strings.Split(text, "\n") {
		wrapped := false
		for _, r := range para {
			if wrapped && cur.Len() == 0 && unicode.IsSpace(r) {
				continue
			}
			w := advance(drawer, string(r))
			// a single glyph wider than the box still gets its own line
			if cur.Len() > 0 && maxWidth > 0 && width+w > maxWidth {
				addLine()
				wrapped = true
				if unicode.IsSpace(r) {
					continue
				}
			}
			cur.WriteRune(r)
			width += w
		}
		addLine()
	}
	box.Height = float32(len(box.Lines)) * met.LineHeight()
	return box, nil
}

func advance(d *font.Drawer, s string) float32 {
	return float32(d.MeasureString(s) >> 6) // fixed.Int26_6 to px
}

// Measure provides a quick way to measure text width/height without line-breaks.
func Measure(provider Provider, spec FontSpec, text string) (w, h float32) {
	if provider == nil {
		provider = BasicProvider{}
	}
	face, met := provider.Resolve(spec)
	d := &font.Drawer{Face: face}
	return advance(d, text), met.Ascent + met.Descent
}

// Draw paints box onto dst with its top-left at (x, y). Each line is centered
// horizontally within width.
func Draw(dst draw.Image, face font.Face, box TextBox, x, y, width float32, c color.Color) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face}
	lh := box.Metrics.LineHeight()
	for i, ln := range box.Lines {
		if ln.Text == "" {
			continue
		}
		lx := x + (width-ln.Width)/2
		base := y + float32(i)*lh + box.Metrics.Ascent
		d.Dot = fixed.Point26_6{X: fixed.Int26_6(lx * 64), Y: fixed.Int26_6(base * 64)}
		d.DrawString(ln.Text)
	}
}
