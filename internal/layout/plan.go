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
	"image"

	"gostoryboard/internal/vector"
)

// Panel is one scene to lay out. A nil Image renders as a placeholder.
type Panel struct {
	Image   image.Image
	Caption string
	// Ordinal is the number shown on the badge; 0 means position+1.
	Ordinal int
}

// Cell is a planned panel slot. Rect is the drawn image area inside the row
// band; Slot is the full band area for the column.
type Cell struct {
	Panel int
	Rect  vector.Rect
	Slot  vector.Rect
}

type Row struct {
	// Y is relative to the page top.
	Y      float32
	Height float32
	Cells  []Cell
}

type Page struct {
	Index int
	// Y is the page offset inside the composite.
	Y      float32
	Height float32
	Header float32
	Rows   []Row
}

// Plan is the complete geometry for a list of panels.
type Plan struct {
	Width       float32
	Height      float32
	PanelWidth  float32
	PageGap     float32
	Pages       []Page
	PanelsTotal int
}

// PlanPages computes the geometry of every page before anything is drawn.
// Panels are chunked into pages of Columns*RowsPerPage. Within a row each
// panel takes its native height (from the fixed ratio, or the image ratio
// under auto) and the row height is the maximum of them; shorter panels are
// centered in the row band. Rows past the last panel are not planned.
func PlanPages(panels []Panel, cfg Config) Plan {
	cfg = cfg.normalized()
	width := float32(cfg.Width)
	pw := (width - 2*cfg.Margin - float32(cfg.Columns-1)*cfg.Spacing) / float32(cfg.Columns)
	pw = max(pw, 1)
	plan := Plan{Width: width, PanelWidth: pw, PageGap: cfg.PageGap, PanelsTotal: len(panels)}

	perPage := cfg.Columns * cfg.RowsPerPage
	var y float32
	for start, idx := 0, 0; start < len(panels); start, idx = start+perPage, idx+1 {
		end := min(start+perPage, len(panels))
		pg := Page{Index: idx, Y: y}
		if idx == 0 {
			pg.Header = cfg.HeaderHeight
		}
		ry := pg.Header + cfg.Margin
		for rs := start; rs < end; rs += cfg.Columns {
			re := min(rs+cfg.Columns, end)
			row := Row{Y: ry}
			heights := make([]float32, 0, re-rs)
			for i := rs; i < re; i++ {
				h := nativeHeight(panels[i].Image, pw, cfg.Aspect)
				heights = append(heights, h)
				row.Height = max(row.Height, h)
			}
			for i := rs; i < re; i++ {
				col := i - rs
				h := heights[col]
				x := cfg.Margin + float32(col)*(pw+cfg.Spacing)
				row.Cells = append(row.Cells, Cell{
					Panel: i,
					Rect:  vector.R(x, ry+(row.Height-h)/2, pw, h),
					Slot:  vector.R(x, ry, pw, row.Height),
				})
			}
			pg.Rows = append(pg.Rows, row)
			ry += row.Height + cfg.Spacing
		}
		// the loop added one spacing too many
		pg.Height = ry - cfg.Spacing + cfg.Margin
		plan.Pages = append(plan.Pages, pg)
		y += pg.Height + cfg.PageGap
	}
	if len(plan.Pages) > 0 {
		plan.Height = y - cfg.PageGap
	}
	return plan
}

// nativeHeight is the panel height at width pw. Under auto a missing or
// degenerate image counts as 4:3.
func nativeHeight(img image.Image, pw float32, a Aspect) float32 {
	if a.Auto && img != nil {
		b := img.Bounds()
		if b.Dx() > 0 && b.Dy() > 0 {
			return pw * float32(b.Dy()) / float32(b.Dx())
		}
	}
	return pw * a.ratio()
}
