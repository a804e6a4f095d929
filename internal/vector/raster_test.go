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
	"image/color"
	"testing"
)

func TestFillRectPaintsInterior(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	FillRect(img, R(10, 10, 20, 20), Color{255, 0, 0, 255})
	if got := img.RGBAAt(20, 20); got != (color.RGBA{255, 0, 0, 255}) {
		t.Fatalf("center not filled: %v", got)
	}
	if got := img.RGBAAt(2, 2); got.A != 0 {
		t.Fatalf("outside painted: %v", got)
	}
}

func TestFillPathClipsToDestination(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	FillPath(img, RoundedRect(R(-20, -20, 25, 25), 0), Black)
	if got := img.RGBAAt(1, 1); got.A != 255 {
		t.Fatalf("visible part not filled: %v", got)
	}
	FillPath(img, RoundedRect(R(50, 50, 5, 5), 0), Black) // fully outside, no panic
}

func TestStrokeDashedLeavesGaps(t *testing.T) {
	solid := image.NewRGBA(image.Rect(0, 0, 100, 20))
	dashed := image.NewRGBA(image.Rect(0, 0, 100, 20))
	var p Path
	p.MoveTo(0, 10)
	p.LineTo(100, 10)
	StrokePath(solid, p, Stroke{Color: Black, Width: 4})
	StrokePath(dashed, p, Stroke{Color: Black, Width: 4, Dash: []float32{10, 10}})

	count := func(img *image.RGBA) int {
		n := 0
		for x := 0; x < 100; x++ {
			if img.RGBAAt(x, 10).A > 128 {
				n++
			}
		}
		return n
	}
	s, d := count(solid), count(dashed)
	if s < 95 {
		t.Fatalf("solid stroke incomplete: %d", s)
	}
	if d >= s || d < 30 {
		t.Fatalf("dashed stroke coverage %d vs solid %d", d, s)
	}
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#0f8")
	if err != nil || c != (Color{0x00, 0xff, 0x88, 0xff}) {
		t.Fatalf("short hex: %v %v", c, err)
	}
	c, err = ParseHex("11223344")
	if err != nil || c != (Color{0x11, 0x22, 0x33, 0x44}) || c.Hex() != "#11223344" {
		t.Fatalf("long hex: %v %v", c, err)
	}
	if _, err := ParseHex("#zz"); err == nil {
		t.Fatalf("expected error")
	}
}
