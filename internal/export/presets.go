/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0
 */

package export

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"gostoryboard/internal/layout"
	"gostoryboard/internal/vector"
)

// Built-in preset names.
const (
	LayoutClassic   = "classic"
	LayoutCinematic = "cinematic"
	LayoutManga     = "manga"
	LayoutWebtoon   = "webtoon"
	LayoutGrid      = "grid"

	BubbleClassic = "classic"
	BubbleSoft    = "soft"
	BubbleSpeech  = "speech"
)

// LayoutOverrides changes individual layout fields. A nil field keeps the
// value underneath, so merging never resets fields the caller did not set.
// The same type describes presets, both built in and loaded from TOML.
type LayoutOverrides struct {
	// Extends names the preset this one builds on; only used in preset files.
	Extends      string         `toml:"extends"`
	Width        *int           `toml:"width"`
	Columns      *int           `toml:"columns"`
	RowsPerPage  *int           `toml:"rows_per_page"`
	Aspect       *layout.Aspect `toml:"aspect"`
	Spacing      *float32       `toml:"spacing"`
	Margin       *float32       `toml:"margin"`
	PageGap      *float32       `toml:"page_gap"`
	HeaderHeight *float32       `toml:"header_height"`
	Title        *string        `toml:"title"`
	BorderWidth  *float32       `toml:"border_width"`
	BorderColor  *vector.Color  `toml:"border_color"`
	BorderDashed *bool          `toml:"border_dashed"`
	PageNumbers  *bool          `toml:"page_numbers"`
	Ordinals     *bool          `toml:"ordinals"`
	Background   *vector.Color  `toml:"background"`
}

// BubbleOverrides changes individual bubble fields; see LayoutOverrides.
type BubbleOverrides struct {
	Extends       string              `toml:"extends"`
	Style         *layout.BubbleStyle `toml:"style"`
	Position      *layout.Position    `toml:"position"`
	Fill          *vector.Color       `toml:"fill"`
	Stroke        *vector.Color       `toml:"stroke"`
	Text          *vector.Color       `toml:"text"`
	StrokeWidth   *float32            `toml:"stroke_width"`
	FontSize      *float32            `toml:"font_size"`
	Padding       *float32            `toml:"padding"`
	Radius        *float32            `toml:"radius"`
	Shadow        *bool               `toml:"shadow"`
	MaxWidthRatio *float32            `toml:"max_width_ratio"`
	Margin        *float32            `toml:"margin"`
}

func (o LayoutOverrides) apply(c *layout.Config) {
	set(&c.Width, o.Width)
	set(&c.Columns, o.Columns)
	set(&c.RowsPerPage, o.RowsPerPage)
	set(&c.Aspect, o.Aspect)
	set(&c.Spacing, o.Spacing)
	set(&c.Margin, o.Margin)
	set(&c.PageGap, o.PageGap)
	set(&c.HeaderHeight, o.HeaderHeight)
	set(&c.Title, o.Title)
	set(&c.Border.Width, o.BorderWidth)
	set(&c.Border.Color, o.BorderColor)
	set(&c.Border.Dashed, o.BorderDashed)
	set(&c.ShowPageNumbers, o.PageNumbers)
	set(&c.ShowOrdinals, o.Ordinals)
	set(&c.Background, o.Background)
}

// merge returns o with every field set in top replaced.
func (o LayoutOverrides) merge(top LayoutOverrides) LayoutOverrides {
	pick(&o.Width, top.Width)
	pick(&o.Columns, top.Columns)
	pick(&o.RowsPerPage, top.RowsPerPage)
	pick(&o.Aspect, top.Aspect)
	pick(&o.Spacing, top.Spacing)
	pick(&o.Margin, top.Margin)
	pick(&o.PageGap, top.PageGap)
	pick(&o.HeaderHeight, top.HeaderHeight)
	pick(&o.Title, top.Title)
	pick(&o.BorderWidth, top.BorderWidth)
	pick(&o.BorderColor, top.BorderColor)
	pick(&o.BorderDashed, top.BorderDashed)
	pick(&o.PageNumbers, top.PageNumbers)
	pick(&o.Ordinals, top.Ordinals)
	pick(&o.Background, top.Background)
	if top.Extends != "" {
		o.Extends = top.Extends
	}
	return o
}

func (o BubbleOverrides) apply(b *layout.BubbleConfig) {
	set(&b.Style, o.Style)
	set(&b.Position, o.Position)
	set(&b.Fill, o.Fill)
	set(&b.Stroke, o.Stroke)
	set(&b.Text, o.Text)
	set(&b.StrokeWidth, o.StrokeWidth)
	set(&b.FontSize, o.FontSize)
	set(&b.Padding, o.Padding)
	set(&b.Radius, o.Radius)
	set(&b.Shadow, o.Shadow)
	set(&b.MaxWidthRatio, o.MaxWidthRatio)
	set(&b.Margin, o.Margin)
}

func (o BubbleOverrides) merge(top BubbleOverrides) BubbleOverrides {
	pick(&o.Style, top.Style)
	pick(&o.Position, top.Position)
	pick(&o.Fill, top.Fill)
	pick(&o.Stroke, top.Stroke)
	pick(&o.Text, top.Text)
	pick(&o.StrokeWidth, top.StrokeWidth)
	pick(&o.FontSize, top.FontSize)
	pick(&o.Padding, top.Padding)
	pick(&o.Radius, top.Radius)
	pick(&o.Shadow, top.Shadow)
	pick(&o.MaxWidthRatio, top.MaxWidthRatio)
	pick(&o.Margin, top.Margin)
	if top.Extends != "" {
		o.Extends = top.Extends
	}
	return o
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func pick[T any](dst **T, v *T) {
	if v != nil {
		*dst = v
	}
}

func ptr[T any](v T) *T { return &v }

// Presets holds the named layout and bubble presets.
type Presets struct {
	Layouts map[string]LayoutOverrides
	Bubbles map[string]BubbleOverrides
}

// BuiltinPresets returns a fresh copy of the bundled presets.
func BuiltinPresets() *Presets {
	fixed := func(w, h float32) *layout.Aspect { return ptr(layout.FixedAspect(w, h)) }
	return &Presets{
		Layouts: map[string]LayoutOverrides{
			LayoutClassic: {
				Columns: ptr(2), RowsPerPage: ptr(3), Aspect: fixed(4, 3), Spacing: ptr[float32](24),
				BorderWidth: ptr[float32](4), BorderDashed: ptr(false), PageNumbers: ptr(true), Ordinals: ptr(false),
			},
			LayoutCinematic: {
				Columns: ptr(1), RowsPerPage: ptr(3), Aspect: fixed(16, 9), Spacing: ptr[float32](40),
				BorderWidth: ptr[float32](0), PageNumbers: ptr(false), Ordinals: ptr(true),
			},
			LayoutManga: {
				Columns: ptr(2), RowsPerPage: ptr(3), Aspect: fixed(3, 4), Spacing: ptr[float32](16),
				BorderWidth: ptr[float32](6), BorderDashed: ptr(false), PageNumbers: ptr(true), Ordinals: ptr(false),
			},
			LayoutWebtoon: {
				Columns: ptr(1), RowsPerPage: ptr(6), Aspect: ptr(layout.AutoAspect), Spacing: ptr[float32](0),
				PageGap: ptr[float32](0), BorderWidth: ptr[float32](0), PageNumbers: ptr(false), Ordinals: ptr(false),
			},
			LayoutGrid: {
				Columns: ptr(3), RowsPerPage: ptr(3), Aspect: fixed(1, 1), Spacing: ptr[float32](12),
				BorderWidth: ptr[float32](2), BorderDashed: ptr(true), PageNumbers: ptr(true), Ordinals: ptr(true),
			},
		},
		Bubbles: map[string]BubbleOverrides{
			BubbleClassic: {
				Style: ptr(layout.StyleClassic), Position: ptr(layout.Auto), Fill: ptr(vector.White),
				Stroke: ptr(vector.Black), Text: ptr(vector.Black), FontSize: ptr[float32](36),
				Padding: ptr[float32](24), Radius: ptr[float32](24), Shadow: ptr(false),
			},
			BubbleSoft: {
				Style: ptr(layout.StyleSoft), Position: ptr(layout.BottomLeft),
				Fill: ptr(vector.Color{R: 0xff, G: 0xfb, B: 0xf0, A: 0xf0}), Stroke: ptr(vector.Color{R: 0x55, G: 0x55, B: 0x55, A: 0xff}),
				Text: ptr(vector.Color{R: 0x22, G: 0x22, B: 0x22, A: 0xff}), StrokeWidth: ptr[float32](2),
				FontSize: ptr[float32](32), Padding: ptr[float32](28), Radius: ptr[float32](32), Shadow: ptr(true),
			},
			BubbleSpeech: {
				Style: ptr(layout.StyleSpeech), Position: ptr(layout.TopLeft), Fill: ptr(vector.White),
				Stroke: ptr(vector.Black), Text: ptr(vector.Black), StrokeWidth: ptr[float32](4),
				FontSize: ptr[float32](36), Padding: ptr[float32](24), Radius: ptr[float32](20), Shadow: ptr(false),
			},
		},
	}
}

// presetFile is the TOML layout:
//
//	[layout.tall]
//	extends = "manga"
//	columns = 1
//
//	[bubble.loud]
//	style = "speech"
//	fill = "#ffee00"
type presetFile struct {
	Layout map[string]LayoutOverrides `toml:"layout"`
	Bubble map[string]BubbleOverrides `toml:"bubble"`
}

// LoadPresets reads user presets from a TOML file on top of the built-ins.
// A preset named like a built-in changes only the fields it sets.
func LoadPresets(path string) (*Presets, error) {
	p := BuiltinPresets()
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets %s: %w", path, err)
	}
	var f presetFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", path, err)
	}
	for name, o := range f.Layout {
		name = strings.ToLower(name)
		p.Layouts[name] = p.Layouts[name].merge(o)
	}
	for name, o := range f.Bubble {
		name = strings.ToLower(name)
		p.Bubbles[name] = p.Bubbles[name].merge(o)
	}
	return p, nil
}

// LayoutNames lists the known layout presets in order.
func (p *Presets) LayoutNames() []string { return sortedKeys(p.Layouts) }

// BubbleNames lists the known bubble presets in order.
func (p *Presets) BubbleNames() []string { return sortedKeys(p.Bubbles) }

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ResolveLayout builds the final layout: defaults, then the layout preset
// (with its extends chain), then the bubble preset, then the overrides.
// Empty preset names skip that step.
func (p *Presets) ResolveLayout(layoutName, bubbleName string, lo LayoutOverrides, bo BubbleOverrides) (layout.Config, error) {
	cfg := layout.DefaultConfig()
	if err := p.applyLayout(&cfg, strings.ToLower(layoutName), 0); err != nil {
		return layout.Config{}, err
	}
	if err := p.applyBubble(&cfg.Bubble, strings.ToLower(bubbleName), 0); err != nil {
		return layout.Config{}, err
	}
	lo.apply(&cfg)
	bo.apply(&cfg.Bubble)
	return cfg, nil
}

const maxExtendsDepth = 8

func (p *Presets) applyLayout(cfg *layout.Config, name string, depth int) error {
	if name == "" {
		return nil
	}
	o, ok := p.Layouts[name]
	if !ok {
		return fmt.Errorf("unknown layout preset %q (known: %s)", name, strings.Join(p.LayoutNames(), ", "))
	}
	if depth > maxExtendsDepth {
		return fmt.Errorf("layout preset %q: extends chain too deep", name)
	}
	if base := strings.ToLower(o.Extends); base != "" && base != name {
		if err := p.applyLayout(cfg, base, depth+1); err != nil {
			return err
		}
	}
	o.apply(cfg)
	return nil
}

func (p *Presets) applyBubble(b *layout.BubbleConfig, name string, depth int) error {
	if name == "" {
		return nil
	}
	o, ok := p.Bubbles[name]
	if !ok {
		return fmt.Errorf("unknown bubble preset %q (known: %s)", name, strings.Join(p.BubbleNames(), ", "))
	}
	if depth > maxExtendsDepth {
		return fmt.Errorf("bubble preset %q: extends chain too deep", name)
	}
	if base := strings.ToLower(o.Extends); base != "" && base != name {
		if err := p.applyBubble(b, base, depth+1); err != nil {
			return err
		}
	}
	o.apply(b)
	return nil
}
