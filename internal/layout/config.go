/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package layout composes scene images into comic pages and long storyboard
// strips. Geometry is computed up front by PlanPages; drawing never changes it.
package layout

import (
	"fmt"
	"strconv"
	"strings"

	"gostoryboard/internal/vector"
)

// Aspect is the per-panel ratio policy: a fixed W:H ratio for every panel, or
// Auto to use each image's own ratio.
type Aspect struct {
	Auto bool
	W, H float32
}

// FixedAspect returns a fixed w:h policy.
func FixedAspect(w, h float32) Aspect { return Aspect{W: w, H: h} }

// AutoAspect uses the native ratio of every image.
var AutoAspect = Aspect{Auto: true}

// ParseAspect accepts "auto" and "fixed:W:H".
func ParseAspect(s string) (Aspect, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "auto" {
		return AutoAspect, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] != "fixed" {
		return Aspect{}, fmt.Errorf("invalid aspect %q: want auto or fixed:W:H", s)
	}
	w, err1 := strconv.ParseFloat(parts[1], 32)
	h, err2 := strconv.ParseFloat(parts[2], 32)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return Aspect{}, fmt.Errorf("invalid aspect %q: ratio must be positive numbers", s)
	}
	return FixedAspect(float32(w), float32(h)), nil
}

func (a Aspect) String() string {
	if a.Auto {
		return "auto"
	}
	return "fixed:" + strconv.FormatFloat(float64(a.W), 'f', -1, 32) + ":" + strconv.FormatFloat(float64(a.H), 'f', -1, 32)
}

func (a Aspect) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Aspect) UnmarshalText(b []byte) error {
	v, err := ParseAspect(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ratio is height per width unit; missing images fall back to 4:3 under auto.
func (a Aspect) ratio() float32 {
	if a.Auto || a.W <= 0 || a.H <= 0 {
		return 3.0 / 4.0
	}
	return a.H / a.W
}

type Border struct {
	Width  float32
	Color  vector.Color
	Dashed bool
}

type BubbleStyle string

const (
	StyleClassic BubbleStyle = "classic"
	StyleSoft    BubbleStyle = "soft"
	StyleSpeech  BubbleStyle = "speech"
)

type Position string

const (
	TopLeft     Position = "top-left"
	TopRight    Position = "top-right"
	BottomLeft  Position = "bottom-left"
	BottomRight Position = "bottom-right"
	Center      Position = "center"
	Auto        Position = "auto"
)

// autoCenterRatio is the share of the panel height above which an auto
// bubble moves to the center.
const autoCenterRatio = 0.6

// BubbleConfig controls caption bubbles burned into panels.
type BubbleConfig struct {
	Style    BubbleStyle
	Position Position
	Fill     vector.Color
	Stroke   vector.Color
	Text     vector.Color
	// StrokeWidth of the outline; 0 draws no outline.
	StrokeWidth float32
	// FontSize in points at 72 DPI, i.e. pixels.
	FontSize float32
	Padding  float32
	Radius   float32
	Shadow   bool
	// MaxWidthRatio caps the bubble width as a share of the panel width.
	MaxWidthRatio float32
	// Margin between bubble and panel edge.
	Margin float32
}

// DefaultBubble returns the classic bubble.
func DefaultBubble() BubbleConfig {
	return BubbleConfig{
		Style:         StyleClassic,
		Position:      Auto,
		Fill:          vector.White,
		Stroke:        vector.Black,
		Text:          vector.Black,
		StrokeWidth:   3,
		FontSize:      36,
		Padding:       24,
		Radius:        24,
		Shadow:        false,
		MaxWidthRatio: 0.8,
		Margin:        16,
	}
}

// Config is the full page layout description. A zero Width, Columns,
// RowsPerPage or Aspect is replaced by the DefaultConfig value when planning.
type Config struct {
	// Width of every page and of the composite in pixels.
	Width       int
	Columns     int
	RowsPerPage int
	Aspect      Aspect
	Spacing     float32
	Margin      float32
	// PageGap separates pages in the composite.
	PageGap float32
	// HeaderHeight is reserved on the first page only; 0 disables it.
	HeaderHeight    float32
	Title           string
	Border          Border
	ShowPageNumbers bool
	ShowOrdinals    bool
	Background      vector.Color
	BurnCaptions    bool
	Bubble          BubbleConfig
}

// DefaultConfig is a 2x3 grid on an A4-width page at 300 DPI.
func DefaultConfig() Config {
	return Config{
		Width:           2480,
		Columns:         2,
		RowsPerPage:     3,
		Aspect:          FixedAspect(4, 3),
		Spacing:         24,
		Margin:          60,
		PageGap:         80,
		HeaderHeight:    160,
		Border:          Border{Width: 4, Color: vector.Black},
		ShowPageNumbers: true,
		Background:      vector.White,
		Bubble:          DefaultBubble(),
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.Width <= 0 {
		c.Width = d.Width
	}
	if c.Columns <= 0 {
		c.Columns = d.Columns
	}
	if c.RowsPerPage <= 0 {
		c.RowsPerPage = d.RowsPerPage
	}
	if !c.Aspect.Auto && (c.Aspect.W <= 0 || c.Aspect.H <= 0) {
		c.Aspect = d.Aspect
	}
	c.Spacing = max(c.Spacing, 0)
	c.Margin = max(c.Margin, 0)
	c.PageGap = max(c.PageGap, 0)
	c.HeaderHeight = max(c.HeaderHeight, 0)
	if c.Background == (vector.Color{}) {
		c.Background = d.Background
	}
	c.Bubble = c.Bubble.normalized()
	return c
}

func (b BubbleConfig) normalized() BubbleConfig {
	d := DefaultBubble()
	switch b.Style {
	case StyleClassic, StyleSoft, StyleSpeech:
	default:
		b.Style = d.Style
	}
	switch b.Position {
	case TopLeft, TopRight, BottomLeft, BottomRight, Center, Auto:
	default:
		b.Position = d.Position
	}
	if b.FontSize <= 0 {
		b.FontSize = d.FontSize
	}
	if b.MaxWidthRatio <= 0 || b.MaxWidthRatio > 1 {
		b.MaxWidthRatio = d.MaxWidthRatio
	}
	b.Padding = max(b.Padding, 0)
	b.Margin = max(b.Margin, 0)
	b.Radius = max(b.Radius, 0)
	if b.Fill == (vector.Color{}) && b.Stroke == (vector.Color{}) && b.Text == (vector.Color{}) {
		b.Fill, b.Stroke, b.Text = d.Fill, d.Stroke, d.Text
	}
	return b
}
