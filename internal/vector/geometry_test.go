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
	"testing"
)

func TestRectCenterAndOffset(t *testing.T) {
	r := R(10, 20, 100, 50)
	if c := r.Center(); c.X != 60 || c.Y != 45 {
		t.Fatalf("unexpected center: %+v", c)
	}
	if o := r.Offset(-10, 5); o != R(0, 25, 100, 50) {
		t.Fatalf("unexpected offset: %+v", o)
	}
	if r.Empty() || !R(0, 0, 0, 10).Empty() {
		t.Fatalf("empty mismatch")
	}
}

func TestRectImageRounds(t *testing.T) {
	if got := R(0.4, 0.6, 10.2, 9.5).Image(); got != image.Rect(0, 1, 11, 10) {
		t.Fatalf("unexpected image rect: %v", got)
	}
}

func TestTranslateAndRound(t *testing.T) {
	p := Translate(10, 5).Apply(Pt{1, 1})
	if p.X != 11 || p.Y != 6 {
		t.Fatalf("unexpected transform result: %+v", p)
	}
	if got := FloatRound(1.23456, 2); got != 1.23 {
		t.Fatalf("FloatRound: %v", got)
	}
}
