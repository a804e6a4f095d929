/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/generate"
	"gostoryboard/internal/script"
	"gostoryboard/internal/storage"
)

func newNewCmd(a *app) *cobra.Command {
	var (
		title, mode, world, style, script string
		scenes, anchors                   []string
		seed                              int64
		generateNow                       bool
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a project from scene texts",
		Long: `Create a project and store it in the library.

Scenes come from repeated --scene flags or from a script file. In a script,
"# heading" or "Panel N" starts a scene, "> text" adds to its visual
directive, "NAME: line" is dialogue and names a character matched against
--anchor names, and a blank line ends a scene in scripts without headings.

Examples:
  storyboard new --title "Night Ferry" --scene "The ferry leaves." --scene "Fog rolls in."
  storyboard new --title "Night Ferry" --mode comic --script ferry.txt --generate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if strings.TrimSpace(title) == "" {
				return errors.New("--title is required")
			}
			if mode == "" {
				mode = a.cfg.General.DefaultMode
			}
			m := domain.Mode(strings.ToLower(mode))
			if m != domain.ModeStoryboard && m != domain.ModeComic {
				return fmt.Errorf("unknown mode %q", mode)
			}
			p := domain.Project{Title: title, Mode: m, World: world, Style: style}
			if p.Style == "" {
				p.Style = a.cfg.Generation.DefaultStyle
			}
			if cmd.Flags().Changed("seed") {
				p.Seed = &seed
			}
			for _, s := range anchors {
				name, desc, ok := strings.Cut(s, "=")
				if !ok || strings.TrimSpace(name) == "" {
					return fmt.Errorf("anchor %q: want name=description", s)
				}
				p.Anchors = append(p.Anchors, domain.VisualAnchor{Name: strings.TrimSpace(name), Description: strings.TrimSpace(desc)})
			}
			for _, text := range scenes {
				p.Scenes = append(p.Scenes, domain.Scene{ID: p.NextSceneID(), Text: text})
			}
			if script != "" {
				parsed, err := readScript(script, p.NextSceneID())
				if err != nil {
					return err
				}
				p.Scenes = append(p.Scenes, parsed...)
			}
			if p.Scenes == nil {
				p.Scenes = []domain.Scene{}
			}

			lib, err := a.library()
			if err != nil {
				return err
			}
			id, err := lib.Save(ctx, p)
			if err != nil {
				return err
			}
			p.ID = id
			if generateNow && len(p.Scenes) > 0 {
				s, err := a.sessionFor(p)
				if err != nil {
					return err
				}
				defer s.close()
				s.orch.GenerateBatch(ctx, sceneIDs(p), domain.ArtifactImage, generate.SharedFrom(p))
				s.store.Apply(s.store.Current(), "generated story")
				if p, err = a.save(ctx, s); err != nil {
					return err
				}
				reportFailures(cmd.OutOrStdout(), p, domain.ArtifactImage)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&title, "title", "", "project title")
	f.StringVar(&mode, "mode", "", `"storyboard" or "comic" (default from config)`)
	f.StringVar(&world, "world", "", "setting and atmosphere shared by every scene")
	f.StringVar(&style, "style", "", "art style (default from config)")
	f.Int64Var(&seed, "seed", 0, "fixed seed for every generation")
	f.StringArrayVar(&scenes, "scene", nil, "scene text; repeat for more scenes")
	f.StringArrayVar(&anchors, "anchor", nil, "visual anchor as name=description; repeatable")
	f.StringVar(&script, "script", "", `script file ("-" reads stdin)`)
	f.BoolVar(&generateNow, "generate", false, "generate scene images right away")
	return cmd
}

// readScript reads scenes numbered from firstID. Any problem in the script
// fails the command so that no scene is silently dropped.
func readScript(path string, firstID int) ([]domain.Scene, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		r = f
	}
	scenes, perrs := script.Parse(r, firstID)
	if len(perrs) > 0 {
		errs := make([]error, len(perrs))
		for i, e := range perrs {
			errs[i] = e
		}
		return nil, fmt.Errorf("script %s: %w", path, errors.Join(errs...))
	}
	return scenes, nil
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.library()
			if err != nil {
				return err
			}
			sums, err := lib.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(sums) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects found")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tMODE\tSCENES\tUPDATED")
			for _, s := range sums {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Title, s.Mode, s.SceneCount, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project's scenes and artifact state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.library()
			if err != nil {
				return err
			}
			p, err := lib.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", p.Title, p.Mode)
			if p.World != "" {
				fmt.Fprintf(out, "World: %s\n", p.World)
			}
			if p.Style != "" {
				fmt.Fprintf(out, "Style: %s\n", p.Style)
			}
			for _, an := range p.Anchors {
				fmt.Fprintf(out, "Anchor %s: %s\n", an.Name, an.Description)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCENE\tIMAGE\tAUDIO\tVIDEO\tTEXT")
			for _, sc := range p.Scenes {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", sc.ID, artifactState(sc.Image), artifactState(sc.Audio), artifactState(sc.Video), truncate(sc.Text, 60))
			}
			return tw.Flush()
		},
	}
}

func artifactState(a domain.Artifact) string {
	switch {
	case a.Error != "":
		return "failed"
	case a.Ref.IsZero():
		return "-"
	default:
		return "ok"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project and the artifacts only it uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.library()
			if err != nil {
				return err
			}
			if err := lib.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Deleted", args[0])
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Store a project file in the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := storage.ReadFile(args[0])
			if err != nil {
				return err
			}
			lib, err := a.library()
			if err != nil {
				return err
			}
			// an imported file starts a fresh history
			id, err := lib.SaveSession(cmd.Context(), p, storage.History{})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newSaveFileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save-file <project-id> <file>",
		Short: "Write a project to a self-contained file",
		Long: `Write a project as JSON with every artifact embedded. The previous file,
if any, is kept under a backups directory next to it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.library()
			if err != nil {
				return err
			}
			p, err := lib.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := storage.WriteFile(cmd.Context(), args[1], p, a.codec); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Wrote", args[1])
			return nil
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the library database and stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.library()
			if err != nil {
				return err
			}
			problems, err := lib.Check(cmd.Context())
			if err != nil {
				return err
			}
			for _, pr := range problems {
				fmt.Fprintln(cmd.OutOrStdout(), pr.String())
			}
			if len(problems) > 0 {
				return fmt.Errorf("%d problem(s) found", len(problems))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
