/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/generate"
	"gostoryboard/internal/resource"
)

// Placeholder renders deterministic stand-in artifacts without any network.
// The same request always yields the same bytes. It backs the "offline" backend
// kind and the tests.
type Placeholder struct {
	Width, Height int
	// Delay simulates backend latency; it honors ctx.
	Delay time.Duration
}

var _ generate.Backend = (*Placeholder)(nil)

func NewPlaceholder() *Placeholder { return &Placeholder{Width: 640, Height: 480} }

func (p *Placeholder) Generate(ctx context.Context, req generate.Request) (domain.ResourceRef, error) {
	if p.Delay > 0 {
		t := time.NewTimer(p.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	seed := requestHash(req)
	switch req.Kind {
	case domain.ArtifactAudio:
		return domain.ResourceRef(resource.EncodeDataURI("audio/wav", silentWAV(1))), nil
	case domain.ArtifactVideo:
		b, err := p.animation(seed, req)
		if err != nil {
			return "", err
		}
		return domain.ResourceRef(resource.EncodeDataURI("image/gif", b)), nil
	default:
		var buf bytes.Buffer
		if err := png.Encode(&buf, p.frame(seed, req, 0)); err != nil {
			return "", err
		}
		return domain.ResourceRef(resource.EncodeDataURI("image/png", buf.Bytes())), nil
	}
}

func requestHash(req generate.Request) uint64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%d|%s|%s|%s|%s", req.Kind, req.SceneID, req.Directive, req.World, req.Style, req.Feedback)
	if req.Seed != nil {
		_ = binary.Write(h, binary.LittleEndian, *req.Seed)
	}
	return h.Sum64()
}

func (p *Placeholder) size() (int, int) {
	w, h := p.Width, p.Height
	if w <= 0 {
		w = 640
	}
	if h <= 0 {
		h = 480
	}
	return w, h
}

// frame paints a two-tone gradient derived from seed plus the scene label.
func (p *Placeholder) frame(seed uint64, req generate.Request, shift int) *image.RGBA {
	w, h := p.size()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	a := color.RGBA{uint8(seed), uint8(seed >> 8), uint8(seed >> 16), 255}
	b := color.RGBA{uint8(seed >> 24), uint8(seed >> 32), uint8(seed >> 40), 255}
	for y := 0; y < h; y++ {
		t := (y + shift) % h
		c := color.RGBA{
			R: lerp(a.R, b.R, t, h),
			G: lerp(a.G, b.G, t, h),
			B: lerp(a.B, b.B, t, h),
			A: 255,
		}
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(12, 24),
	}
	d.DrawString(fmt.Sprintf("scene %d", req.SceneID))
	return img
}

func (p *Placeholder) animation(seed uint64, req generate.Request) ([]byte, error) {
	const frames = 4
	w, h := p.size()
	anim := &gif.GIF{}
	pal := make(color.Palette, 0, 256)
	for i := 0; i < 256; i++ {
		pal = append(pal, color.RGBA{uint8(i), uint8(i), uint8(255 - i), 255})
	}
	for i := 0; i < frames; i++ {
		src := p.frame(seed, req, i*h/frames)
		dst := image.NewPaletted(image.Rect(0, 0, w, h), pal)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(x, y, src.At(x, y))
			}
		}
		anim.Image = append(anim.Image, dst)
		anim.Delay = append(anim.Delay, 25)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lerp(a, b uint8, t, n int) uint8 {
	return uint8(int(a) + (int(b)-int(a))*t/n)
}

// silentWAV returns a mono 8 kHz 8-bit PCM file of the given length.
func silentWAV(seconds int) []byte {
	const rate = 8000
	n := rate * seconds
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+n))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(8))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(n))
	buf.Write(bytes.Repeat([]byte{128}, n))
	return buf.Bytes()
}
