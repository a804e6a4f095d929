/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// GoFamily is the family name the bundled Go Regular face is registered under.
const GoFamily = "Go"

// FontLibrary stores loaded OpenType fonts mapped by family/weight/italic.
// It does not support named instances or variations beyond weight and
// italic flags. A library is filled once and then only read.
type FontLibrary struct {
	fonts    map[fontKey]*opentype.Font
	families []string // load order; the first one is the default
}

type fontKey struct {
	family string
	weight int
	italic bool
}

func NewFontLibrary() *FontLibrary { return &FontLibrary{fonts: make(map[fontKey]*opentype.Font)} }

// LoadTTF loads a font file into the library under the given family/weight/italic.
func (fl *FontLibrary) LoadTTF(family string, weight int, italic bool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	if err := fl.LoadBytes(family, weight, italic, data); err != nil {
		return fmt.Errorf("font %s: %w", path, err)
	}
	return nil
}

// LoadBytes parses TTF/OTF data and registers it.
func (fl *FontLibrary) LoadBytes(family string, weight int, italic bool, data []byte) error {
	if fl.fonts == nil {
		fl.fonts = make(map[fontKey]*opentype.Font)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font: %w", err)
	}
	if weight == 0 {
		weight = 400
	}
	k := fontKey{family: family, weight: weight, italic: italic}
	if _, seen := fl.fonts[k]; !seen && !fl.hasFamily(family) {
		fl.families = append(fl.families, family)
	}
	fl.fonts[k] = f
	return nil
}

func (fl *FontLibrary) hasFamily(family string) bool {
	for _, f := range fl.families {
		if f == family {
			return true
		}
	}
	return false
}

func (fl *FontLibrary) find(spec FontSpec) *opentype.Font {
	if fl == nil || len(fl.fonts) == 0 {
		return nil
	}
	family := spec.Family
	if family == "" {
		family = fl.families[0]
	}
	weight := spec.Weight
	if weight == 0 {
		weight = 400
	}
	// Exact match first
	if f, ok := fl.fonts[fontKey{family: family, weight: weight, italic: spec.Italic}]; ok {
		return f
	}
	// Same family, any weight/italic. Pick the closest weight.
	var best *opentype.Font
	bestDist := 1 << 30
	for k, f := range fl.fonts {
		if k.family != family {
			continue
		}
		d := k.weight - weight
		if d < 0 {
			d = -d
		}
		if k.italic != spec.Italic {
			d += 1000
		}
		if d < bestDist {
			best, bestDist = f, d
		}
	}
	return best
}

// OTProvider resolves FontSpec using a FontLibrary and falls back to another Provider.
// It uses kerning as provided by opentype.Face and font.Drawer.
// Faces are created per call because an opentype face is not safe for
// concurrent use; the parsed fonts are shared.
type OTProvider struct {
	Lib      *FontLibrary
	DPI      float64 // default 72 if zero
	Fallback Provider
}

func (p OTProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	if spec.SizePt <= 0 {
		spec.SizePt = 12
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 72
	}

	if p.Lib != nil {
		if f := p.Lib.find(spec); f != nil {
			face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: float64(spec.SizePt), DPI: dpi, Hinting: font.HintingFull})
			if err == nil {
				return face, metricsOf(face)
			}
		}
	}
	fb := p.Fallback
	if fb == nil {
		fb = BasicProvider{}
	}
	return fb.Resolve(spec)
}

// DefaultProvider renders with the bundled Go Regular face.
func DefaultProvider() Provider {
	lib := NewFontLibrary()
	// goregular.TTF is a known good font; a parse error cannot happen.
	_ = lib.LoadBytes(GoFamily, 400, false, goregular.TTF)
	return OTProvider{Lib: lib}
}

// NewProvider returns a provider for the font file at path, registered as
// the default family with Go Regular behind it. An empty path yields
// DefaultProvider.
func NewProvider(path string) (Provider, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultProvider(), nil
	}
	lib := NewFontLibrary()
	family := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := lib.LoadTTF(family, 400, false, path); err != nil {
		return nil, err
	}
	return OTProvider{Lib: lib, Fallback: DefaultProvider()}, nil
}
