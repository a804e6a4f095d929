/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/image/font/gofont/goregular"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/version"
)

// Document geometry in points, A4 portrait.
const (
	docWidth   = 595.0
	docHeight  = 842.0
	docMargin  = 48.0
	docFont    = "go"
	docImageHt = 0.55 // share of the page height available to the image
)

// exportDocument writes one PDF with a title page and one page per scene:
// the image fitted to the text width and the scene text below it. The Go
// Regular font is embedded so any UTF-8 caption renders.
func exportDocument(ctx context.Context, p domain.Project, src Source, opts Options, logger *slog.Logger) ([]string, error) {
	images, err := prefetch(ctx, p, src, opts.Concurrency, logger)
	if err != nil {
		return nil, err
	}

	// Use points for 1:1 mapping from layout to PDF
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: docWidth, Ht: docHeight},
	})
	pdf.SetTitle(p.Title, true)
	pdf.SetCreator("storyboard "+version.String(), true)
	pdf.SetMargins(docMargin, docMargin, docMargin)
	pdf.SetAutoPageBreak(true, docMargin)
	pdf.AddUTF8FontFromBytes(docFont, "", goregular.TTF)

	textW := docWidth - 2*docMargin

	pdf.AddPage()
	pdf.SetFont(docFont, "", 28)
	pdf.SetY(docHeight / 3)
	pdf.MultiCell(textW, 34, p.Title, "", "C", false)
	pdf.SetFont(docFont, "", 12)
	pdf.Ln(12)
	sub := fmt.Sprintf("%d scenes · %s", len(p.Scenes), p.Mode)
	if p.Style != "" {
		sub += " · " + p.Style
	}
	pdf.MultiCell(textW, 16, sub, "", "C", false)
	if p.World != "" {
		pdf.Ln(8)
		pdf.MultiCell(textW, 15, p.World, "", "C", false)
	}

	for i, sc := range p.Scenes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pdf.AddPage()
		pdf.SetFont(docFont, "", 16)
		pdf.CellFormat(textW, 22, fmt.Sprintf("Scene %d", i+1), "", 1, "L", false, 0, "")
		pdf.Ln(6)

		maxH := docHeight * docImageHt
		y := pdf.GetY()
		if img := images[i]; img != nil {
			w, h := fitContain(img.Bounds(), textW, maxH)
			name := fmt.Sprintf("scene-%d", sc.ID)
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				return nil, fmt.Errorf("encode scene %d: %w", sc.ID, err)
			}
			opt := gofpdf.ImageOptions{ImageType: "PNG"}
			pdf.RegisterImageOptionsReader(name, opt, &buf)
			pdf.ImageOptions(name, docMargin+(textW-w)/2, y, w, h, false, opt, 0, "")
			pdf.SetY(y + h + 14)
		} else {
			pdf.SetFillColor(0xdd, 0xdd, 0xdd)
			h := textW * 3 / 4
			pdf.Rect(docMargin, y, textW, h, "F")
			pdf.SetY(y + h + 14)
		}

		pdf.SetFont(docFont, "", 12)
		pdf.MultiCell(textW, 16, sc.Text, "", "L", false)
		if len(sc.Characters) > 0 {
			pdf.Ln(6)
			pdf.SetFont(docFont, "", 10)
			pdf.MultiCell(textW, 13, "Characters: "+strings.Join(sc.Characters, ", "), "", "L", false)
		}
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("build pdf: %w", err)
	}
	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	name := filepath.Join(opts.OutDir, opts.Name+".pdf")
	if err := writeFileAtomic(name, out.Bytes()); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return []string{name}, nil
}

// fitContain scales b to fit inside maxW x maxH keeping its ratio.
func fitContain(b image.Rectangle, maxW, maxH float64) (w, h float64) {
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return maxW, maxW * 3 / 4
	}
	s := min(maxW/float64(b.Dx()), maxH/float64(b.Dy()))
	return float64(b.Dx()) * s, float64(b.Dy()) * s
}
