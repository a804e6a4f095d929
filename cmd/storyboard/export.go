/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/export"
	"gostoryboard/internal/layout"
	"gostoryboard/internal/textlayout"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		format, outDir, name   string
		layoutName, bubbleName string
		presetsFile, fontFile  string
		aspect                 string
		width, columns, rows   int
		captions, pageNumbers  bool
		listPresets            bool
	)
	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Export a project as comic pages, a storyboard image, a PDF or an archive",
		Long: `Export a project. Formats:
  comic       one PNG per page
  storyboard  one long PNG
  document    PDF, one scene per page with its text
  archive     zip with every artifact, script.txt and ComicInfo.xml

The default format follows the project mode. Layout and bubble presets come
from the built-ins plus the TOML presets file; flags override single fields.`,
		Args: cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if presetsFile == "" {
				presetsFile = a.cfg.Export.PresetsFile
			}
			presets := export.BuiltinPresets()
			if presetsFile != "" {
				var err error
				if presets, err = export.LoadPresets(presetsFile); err != nil {
					return err
				}
			}
			if listPresets {
				fmt.Fprintln(cmd.OutOrStdout(), "layouts:", strings.Join(presets.LayoutNames(), ", "))
				fmt.Fprintln(cmd.OutOrStdout(), "bubbles:", strings.Join(presets.BubbleNames(), ", "))
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("project id is required")
			}

			ctx := cmd.Context()
			lib, err := a.library()
			if err != nil {
				return err
			}
			p, err := lib.Load(ctx, args[0])
			if err != nil {
				return err
			}
			if format == "" {
				format = string(export.FormatStoryboard)
				if p.Mode == domain.ModeComic {
					format = string(export.FormatComic)
				}
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			if fontFile == "" {
				fontFile = a.cfg.Export.FontFile
			}
			provider, err := textlayout.NewProvider(fontFile)
			if err != nil {
				return fmt.Errorf("load font: %w", err)
			}
			if outDir == "" {
				outDir = a.cfg.Export.OutDir
			}
			opts := export.Options{
				Format:       f,
				OutDir:       outDir,
				Name:         name,
				TargetWidth:  a.cfg.Export.TargetWidth,
				BurnCaptions: captions,
				LayoutPreset: layoutName,
				BubblePreset: bubbleName,
				Presets:      presets,
				Provider:     provider,
				Concurrency:  a.cfg.Generation.Concurrency,
			}
			if opts.LayoutPreset == "" && p.Mode == domain.ModeComic {
				opts.LayoutPreset = a.cfg.Export.LayoutPreset
			}
			if opts.BubblePreset == "" {
				opts.BubblePreset = a.cfg.Export.BubblePreset
			}
			fl := cmd.Flags()
			if fl.Changed("width") {
				opts.TargetWidth = width
			}
			if fl.Changed("columns") {
				opts.Layout.Columns = &columns
			}
			if fl.Changed("rows") {
				opts.Layout.RowsPerPage = &rows
			}
			if fl.Changed("page-numbers") {
				opts.Layout.PageNumbers = &pageNumbers
			}
			if aspect != "" {
				asp, err := layout.ParseAspect(aspect)
				if err != nil {
					return err
				}
				opts.Layout.Aspect = &asp
			}

			res, err := export.Export(ctx, p, a.codec, opts)
			if err != nil {
				return err
			}
			for _, file := range res.Files {
				fmt.Fprintln(cmd.OutOrStdout(), file)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&format, "format", "", "comic, storyboard, document or archive (default from project mode)")
	fl.StringVarP(&outDir, "out", "o", "", "output directory (default export.out_dir)")
	fl.StringVar(&name, "name", "", "base file name (default from the title)")
	fl.StringVar(&layoutName, "layout", "", "layout preset")
	fl.StringVar(&bubbleName, "bubble", "", "bubble preset")
	fl.StringVar(&presetsFile, "presets", "", "TOML presets file (default export.presets_file)")
	fl.StringVar(&fontFile, "font", "", "TTF/OTF font for captions (default export.font_file)")
	fl.StringVar(&aspect, "aspect", "", `panel aspect: "auto" or "fixed:W:H"`)
	fl.IntVar(&width, "width", 0, "page width in pixels")
	fl.IntVar(&columns, "columns", 0, "panels per row")
	fl.IntVar(&rows, "rows", 0, "rows per comic page")
	fl.BoolVar(&captions, "captions", false, "burn scene text into speech bubbles")
	fl.BoolVar(&pageNumbers, "page-numbers", false, "print page numbers")
	fl.BoolVar(&listPresets, "list-presets", false, "list preset names and exit")
	return cmd
}
